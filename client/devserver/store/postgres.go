package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"msg_client/client/chat/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            BIGSERIAL PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	first_name    TEXT NOT NULL,
	last_name     TEXT,
	phone         TEXT,
	bio           TEXT,
	avatar_url    TEXT,
	password_hash TEXT NOT NULL,
	is_online     BOOLEAN NOT NULL DEFAULT FALSE,
	last_seen     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS chats (
	id          BIGSERIAL PRIMARY KEY,
	type        TEXT NOT NULL,
	name        TEXT,
	username    TEXT UNIQUE,
	description TEXT,
	avatar_url  TEXT,
	created_by  BIGINT NOT NULL REFERENCES users(id),
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS chat_members (
	chat_id   BIGINT NOT NULL REFERENCES chats(id),
	user_id   BIGINT NOT NULL REFERENCES users(id),
	role      TEXT NOT NULL,
	is_pinned BOOLEAN NOT NULL DEFAULT FALSE,
	is_muted  BOOLEAN NOT NULL DEFAULT FALSE,
	joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (chat_id, user_id)
);
CREATE TABLE IF NOT EXISTS messages (
	id           BIGSERIAL PRIMARY KEY,
	chat_id      BIGINT NOT NULL REFERENCES chats(id),
	sender_id    BIGINT NOT NULL REFERENCES users(id),
	text         TEXT,
	message_type TEXT NOT NULL DEFAULT 'text',
	media_url    TEXT,
	media_name   TEXT,
	is_edited    BOOLEAN NOT NULL DEFAULT FALSE,
	is_forwarded BOOLEAN NOT NULL DEFAULT FALSE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS messages_chat_created_idx ON messages(chat_id, created_at DESC, id DESC);
CREATE TABLE IF NOT EXISTS read_messages (
	chat_id              BIGINT NOT NULL REFERENCES chats(id),
	user_id              BIGINT NOT NULL REFERENCES users(id),
	last_read_message_id BIGINT NOT NULL,
	PRIMARY KEY (chat_id, user_id)
);
CREATE TABLE IF NOT EXISTS reactions (
	message_id BIGINT NOT NULL REFERENCES messages(id),
	user_id    BIGINT NOT NULL REFERENCES users(id),
	emoji      TEXT NOT NULL,
	PRIMARY KEY (message_id, user_id, emoji)
);`

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (r *PostgresStore) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schema)
	return err
}

func (r *PostgresStore) Close() {
	r.pool.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *PostgresStore) CreateUser(ctx context.Context, user NewUser) (domain.WireUser, error) {
	var out domain.WireUser
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users(username, first_name, last_name, phone, password_hash, is_online)
		VALUES($1, $2, $3, $4, $5, TRUE)
		RETURNING id, username, first_name, last_name, phone, avatar_url, bio, is_online
	`, user.Username, user.FirstName, user.LastName, user.Phone, user.PasswordHash).Scan(
		&out.ID, &out.Username, &out.FirstName, &out.LastName, &out.Phone, &out.AvatarURL, &out.Bio, &out.IsOnline,
	)
	if isUniqueViolation(err) {
		return domain.WireUser{}, ErrUsernameTaken
	}
	return out, err
}

func (r *PostgresStore) UserByUsername(ctx context.Context, username string) (UserRecord, error) {
	var rec UserRecord
	err := r.pool.QueryRow(ctx, `
		SELECT id, username, first_name, last_name, phone, avatar_url, bio, is_online, password_hash
		FROM users
		WHERE username=$1
	`, username).Scan(
		&rec.ID, &rec.Username, &rec.FirstName, &rec.LastName, &rec.Phone, &rec.AvatarURL, &rec.Bio, &rec.IsOnline, &rec.PasswordHash,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserRecord{}, ErrNotFound
	}
	return rec, err
}

func (r *PostgresStore) UserByID(ctx context.Context, id int64) (domain.WireUser, error) {
	var out domain.WireUser
	err := r.pool.QueryRow(ctx, `
		SELECT id, username, first_name, last_name, phone, avatar_url, bio, is_online
		FROM users
		WHERE id=$1
	`, id).Scan(&out.ID, &out.Username, &out.FirstName, &out.LastName, &out.Phone, &out.AvatarURL, &out.Bio, &out.IsOnline)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.WireUser{}, ErrNotFound
	}
	return out, err
}

func (r *PostgresStore) SetOnline(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE users SET is_online=TRUE, last_seen=NOW() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresStore) SearchUsers(ctx context.Context, query string, limit int) ([]domain.WireUser, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, username, first_name, last_name, avatar_url, bio
		FROM users
		WHERE username LIKE '%' || $1 || '%'
		   OR LOWER(first_name) LIKE '%' || $1 || '%'
		   OR LOWER(COALESCE(last_name, '')) LIKE '%' || $1 || '%'
		ORDER BY id
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.WireUser, 0)
	for rows.Next() {
		var u domain.WireUser
		if err := rows.Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.AvatarURL, &u.Bio); err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	return items, rows.Err()
}

func (r *PostgresStore) CreateChat(ctx context.Context, chat NewChat) (domain.WireChat, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.WireChat{}, err
	}
	defer tx.Rollback(ctx)

	var out domain.WireChat
	err = tx.QueryRow(ctx, `
		INSERT INTO chats(type, name, username, created_by)
		VALUES($1, $2, $3, $4)
		RETURNING id, type, name, username
	`, string(chat.Type), chat.Name, chat.Username, chat.CreatedBy).Scan(&out.ID, &out.Type, &out.Name, &out.Username)
	if isUniqueViolation(err) {
		return domain.WireChat{}, ErrUsernameTaken
	}
	if err != nil {
		return domain.WireChat{}, err
	}

	if _, err := tx.Exec(ctx, `INSERT INTO chat_members(chat_id, user_id, role) VALUES($1, $2, $3)`, out.ID, chat.CreatedBy, RoleOwner); err != nil {
		return domain.WireChat{}, err
	}
	for _, memberID := range chat.MemberIDs {
		if memberID == chat.CreatedBy {
			continue
		}
		if _, err := tx.Exec(ctx, `INSERT INTO chat_members(chat_id, user_id, role) VALUES($1, $2, $3) ON CONFLICT DO NOTHING`, out.ID, memberID, RoleMember); err != nil {
			return domain.WireChat{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.WireChat{}, err
	}
	return out, nil
}

func (r *PostgresStore) ListChats(ctx context.Context, userID int64) ([]domain.WireChat, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT
			c.id, c.type, c.name, c.username, c.description, c.avatar_url,
			cm.is_pinned, cm.is_muted,
			(SELECT COUNT(*)::INT FROM chat_members WHERE chat_id = c.id) AS members,
			(SELECT COUNT(*)::INT FROM messages m
			 LEFT JOIN read_messages rm ON rm.chat_id = c.id AND rm.user_id = $1
			 WHERE m.chat_id = c.id AND m.sender_id <> $1
			   AND (rm.last_read_message_id IS NULL OR m.id > rm.last_read_message_id)
			) AS unread_count,
			lm.id, lm.text, lm.created_at, lm.sender_id, lm.first_name, lm.last_name
		FROM chats c
		JOIN chat_members cm ON cm.chat_id = c.id
		LEFT JOIN LATERAL (
			SELECT m.id, m.text, m.created_at, m.sender_id, u.first_name, u.last_name
			FROM messages m
			JOIN users u ON u.id = m.sender_id
			WHERE m.chat_id = c.id
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT 1
		) lm ON true
		WHERE cm.user_id = $1
		ORDER BY c.updated_at DESC, c.id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.WireChat, 0)
	for rows.Next() {
		var (
			c            domain.WireChat
			members      int
			lastID       *int64
			lastText     *string
			lastAt       *time.Time
			lastSenderID *int64
			lastFirst    *string
			lastLast     *string
		)
		if err := rows.Scan(
			&c.ID, &c.Type, &c.Name, &c.Username, &c.Description, &c.AvatarURL,
			&c.IsPinned, &c.IsMuted, &members, &c.UnreadCount,
			&lastID, &lastText, &lastAt, &lastSenderID, &lastFirst, &lastLast,
		); err != nil {
			return nil, err
		}
		c.Members = &members
		if lastID != nil {
			c.LastMessage = &domain.WireLastMessage{
				ID:       *lastID,
				Text:     lastText,
				SenderID: derefInt64(lastSenderID),
				LastName: lastLast,
			}
			if lastAt != nil {
				c.LastMessage.CreatedAt = FormatTime(*lastAt)
			}
			if lastFirst != nil {
				c.LastMessage.FirstName = *lastFirst
			}
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *PostgresStore) IsMember(ctx context.Context, chatID, userID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM chat_members WHERE chat_id=$1 AND user_id=$2
		)
	`, chatID, userID).Scan(&exists)
	return exists, err
}

func (r *PostgresStore) ListMessages(ctx context.Context, chatID, viewerID int64, limit, offset int) ([]domain.WireMessage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT
			m.id, m.chat_id, m.text, m.message_type, m.media_url, m.media_name,
			m.is_edited, m.is_forwarded, m.created_at,
			m.sender_id, u.first_name, u.last_name, u.username, u.avatar_url
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.chat_id = $1
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $2 OFFSET $3
	`, chatID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	newestFirst := make([]domain.WireMessage, 0)
	for rows.Next() {
		var (
			m         domain.WireMessage
			createdAt time.Time
			username  string
		)
		if err := rows.Scan(
			&m.ID, &m.ChatID, &m.Text, &m.MessageType, &m.MediaURL, &m.MediaName,
			&m.IsEdited, &m.IsForwarded, &createdAt,
			&m.SenderID, &m.FirstName, &m.LastName, &username, &m.AvatarURL,
		); err != nil {
			return nil, err
		}
		m.CreatedAt = FormatTime(createdAt)
		m.Username = &username
		newestFirst = append(newestFirst, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items := make([]domain.WireMessage, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		items = append(items, newestFirst[i])
	}
	for i := range items {
		reactions, err := r.reactions(ctx, items[i].ID, viewerID)
		if err != nil {
			return nil, err
		}
		items[i].Reactions = reactions
	}

	if offset == 0 && len(items) > 0 {
		if _, err := r.pool.Exec(ctx, `
			INSERT INTO read_messages(chat_id, user_id, last_read_message_id)
			VALUES($1, $2, $3)
			ON CONFLICT (chat_id, user_id)
			DO UPDATE SET last_read_message_id = GREATEST(read_messages.last_read_message_id, EXCLUDED.last_read_message_id)
		`, chatID, viewerID, items[len(items)-1].ID); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (r *PostgresStore) reactions(ctx context.Context, messageID, viewerID int64) ([]domain.WireReaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT emoji, COUNT(*)::INT, BOOL_OR(user_id = $2)
		FROM reactions
		WHERE message_id = $1
		GROUP BY emoji
		ORDER BY emoji
	`, messageID, viewerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.WireReaction, 0)
	for rows.Next() {
		var item domain.WireReaction
		if err := rows.Scan(&item.Emoji, &item.Count, &item.Selected); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *PostgresStore) CreateMessage(ctx context.Context, chatID, senderID int64, text, messageType string) (domain.WireMessage, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.WireMessage{}, err
	}
	defer tx.Rollback(ctx)

	var (
		m         domain.WireMessage
		createdAt time.Time
	)
	err = tx.QueryRow(ctx, `
		INSERT INTO messages(chat_id, sender_id, text, message_type)
		VALUES($1, $2, $3, $4)
		RETURNING id, chat_id, sender_id, text, message_type, created_at
	`, chatID, senderID, text, messageType).Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Text, &m.MessageType, &createdAt)
	if err != nil {
		return domain.WireMessage{}, err
	}
	if _, err := tx.Exec(ctx, `UPDATE chats SET updated_at=NOW() WHERE id=$1`, chatID); err != nil {
		return domain.WireMessage{}, err
	}
	if err := tx.QueryRow(ctx, `SELECT first_name, last_name FROM users WHERE id=$1`, senderID).Scan(&m.FirstName, &m.LastName); err != nil {
		return domain.WireMessage{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.WireMessage{}, err
	}
	m.CreatedAt = FormatTime(createdAt)
	m.Reactions = []domain.WireReaction{}
	return m, nil
}

func derefInt64(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"

	"msg_client/client/chat/api"
	"msg_client/client/chat/service"
	"msg_client/client/chat/session"
	"msg_client/client/common/infra/cache"
	"msg_client/client/common/infra/db"
	"msg_client/client/common/infra/mq"
	commonlog "msg_client/client/common/log"
	"msg_client/client/common/metrics"
)

type Server struct {
	HTTPServer *http.Server
	Session    *session.Session
	API        *service.TelegramAPI
	Sync       *service.Synchronizer

	mqConn *amqp.Connection
	sink   *service.AMQPSink
}

// NewServer wires the session store, the remote client and the synchronizer
// behind the local bridge. Start must be called before serving.
func NewServer(cfg Config) (*Server, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := openSessionStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	sess := session.Open(ctx, store)

	remote := service.NewTelegramAPI(service.TelegramAPIConfig{
		AuthURL: cfg.AuthURL,
		DataURL: cfg.APIURL,
		Timeout: cfg.HTTPTimeout,
	}, sess)

	s := &Server{Session: sess, API: remote}

	var opts []service.SyncOption
	if cfg.EventsEnabled {
		conn, err := mq.NewConnection(cfg.LavinMQURL)
		if err != nil {
			_ = sess.Close()
			return nil, fmt.Errorf("connect lavinmq: %w", err)
		}
		sink, err := service.NewAMQPSink(conn)
		if err != nil {
			_ = conn.Close()
			_ = sess.Close()
			return nil, fmt.Errorf("open events channel: %w", err)
		}
		s.mqConn, s.sink = conn, sink
		opts = append(opts, service.WithEventSink(sink))
		commonlog.Infof("publishing client events to %s", mq.EventsExchange)
	}

	s.Sync = service.NewSynchronizer(remote, service.SyncConfig{
		ChatRefreshInterval:    cfg.ChatRefreshInterval,
		MessageRefreshInterval: cfg.MessageRefreshInterval,
		MessagePageSize:        cfg.MessagePageSize,
		RestoreChatID:          int64(cfg.RestoreChatID),
	}, opts...)
	s.Sync.OnChange(func(snap service.Snapshot) {
		commonlog.Debugf("client state=%s version=%d chats=%d selected=%d", snap.State, snap.Version, len(snap.Chats), snap.SelectedChatID)
	})

	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), metrics.GinMiddleware())
	api.NewHandler(s.Sync).RegisterRoutes(r)

	s.HTTPServer = &http.Server{
		Addr:         "127.0.0.1:" + cfg.BridgePort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Start runs the silent verify and, on success, the refresh timers.
func (s *Server) Start(ctx context.Context) service.State {
	state := s.Sync.Start(ctx)
	commonlog.Infof("client session state: %s", state)
	return state
}

func (s *Server) Shutdown(ctx context.Context) error {
	err := s.HTTPServer.Shutdown(ctx)
	s.Sync.Close()
	if s.sink != nil {
		s.sink.Close()
	}
	if s.mqConn != nil {
		_ = s.mqConn.Close()
	}
	if cerr := s.Session.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func openSessionStore(ctx context.Context, cfg Config) (session.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.SessionStore)) {
	case SessionStoreMemory:
		commonlog.Infof("session store: memory")
		return session.NewMemoryStore(), nil
	case SessionStoreRedis:
		client := cache.NewClient(cfg.RedisAddr)
		if err := cache.Ping(ctx, client); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		commonlog.Infof("session store: redis %s", cfg.RedisAddr)
		return session.NewRedisStore(client, cfg.RedisKeyPrefix), nil
	case SessionStorePostgres:
		pool, err := db.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		st := session.NewPostgresStore(pool)
		if err := st.Migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate session schema: %w", err)
		}
		commonlog.Infof("session store: postgres")
		return st, nil
	case SessionStoreFile, "":
		path := cfg.SessionFile
		if path == "" {
			p, err := session.DefaultFilePath(cfg.SessionProfile)
			if err != nil {
				return nil, fmt.Errorf("resolve session file: %w", err)
			}
			path = p
		}
		commonlog.Infof("session store: file %s", path)
		return session.NewFileStore(path), nil
	default:
		return nil, fmt.Errorf("unknown SESSION_STORE %q", cfg.SessionStore)
	}
}

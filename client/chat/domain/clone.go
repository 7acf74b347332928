package domain

// Clone returns a copy that shares no memory with u.
func (u User) Clone() User {
	u.LastName = copyString(u.LastName)
	u.Bio = copyString(u.Bio)
	u.Avatar = copyString(u.Avatar)
	u.Phone = copyString(u.Phone)
	return u
}

// Clone returns a copy that shares no memory with c, including the last
// message preview and the kind's optional fields.
func (c Chat) Clone() Chat {
	c.Kind = cloneKind(c.Kind)
	c.Username = copyString(c.Username)
	c.Avatar = copyString(c.Avatar)
	c.Description = copyString(c.Description)
	if c.LastMessage != nil {
		m := c.LastMessage.Clone()
		c.LastMessage = &m
	}
	return c
}

// Clone returns a copy that shares no memory with m.
func (m Message) Clone() Message {
	if m.Attachments != nil {
		attachments := make([]Attachment, len(m.Attachments))
		for i, a := range m.Attachments {
			a.Name = copyString(a.Name)
			attachments[i] = a
		}
		m.Attachments = attachments
	}
	if m.Reactions != nil {
		m.Reactions = append([]Reaction(nil), m.Reactions...)
	}
	return m
}

func CloneChats(chats []Chat) []Chat {
	if chats == nil {
		return nil
	}
	out := make([]Chat, len(chats))
	for i, c := range chats {
		out[i] = c.Clone()
	}
	return out
}

func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

func cloneKind(k ChatKind) ChatKind {
	switch v := k.(type) {
	case PrivateChat:
		return PrivateChat{Online: copyBool(v.Online)}
	case GroupChat:
		return GroupChat{Members: copyInt(v.Members)}
	case ChannelChat:
		return ChannelChat{Members: copyInt(v.Members)}
	}
	return k
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

func copyBool(v *bool) *bool {
	if v == nil {
		return nil
	}
	b := *v
	return &b
}

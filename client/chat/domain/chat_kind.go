package domain

// ChatKind is the closed set of chat variants. Only types in this package
// implement it.
type ChatKind interface {
	Type() ChatType
	isChatKind()
}

type PrivateChat struct {
	Online *bool
}

type GroupChat struct {
	Members *int
}

type ChannelChat struct {
	Members *int
}

type BotChat struct{}

func (PrivateChat) Type() ChatType { return ChatTypePrivate }
func (GroupChat) Type() ChatType   { return ChatTypeGroup }
func (ChannelChat) Type() ChatType { return ChatTypeChannel }
func (BotChat) Type() ChatType     { return ChatTypeBot }

func (PrivateChat) isChatKind() {}
func (GroupChat) isChatKind()   {}
func (ChannelChat) isChatKind() {}
func (BotChat) isChatKind()     {}

// KindFor builds the variant for t. Unknown types yield nil, false.
func KindFor(t ChatType, members *int) (ChatKind, bool) {
	switch t {
	case ChatTypePrivate:
		return PrivateChat{}, true
	case ChatTypeGroup:
		return GroupChat{Members: copyInt(members)}, true
	case ChatTypeChannel:
		return ChannelChat{Members: copyInt(members)}, true
	case ChatTypeBot:
		return BotChat{}, true
	default:
		return nil, false
	}
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

package decode

import "github.com/google/uuid"

// DecodedEvent is the immutable result of decoding one raw kernel event
// record (spec.md §3): identity fields plus the ordered property tree.
// Callers must copy a DecodedEvent out before an append across threads
// since the OS callback's raw event pointer is only valid for the
// duration of the callback (spec.md §9, "callback lifetime").
type DecodedEvent struct {
	ProviderGUID uuid.UUID
	ProviderName string
	LevelName    string
	ChannelName  string
	KeywordsName string
	EventName    string
	OpcodeName   string
	ProcessID    uint32
	ThreadID     uint32
	Timestamp    FileTime
	Properties   Value // always KindStruct
}

// NewDecodedEvent builds a DecodedEvent from a resolved EventInfo, a
// decoded property tree, and record header fields.
func NewDecodedEvent(providerGUID uuid.UUID, info *EventInfo, pid, tid uint32, ts FileTime, props Value) DecodedEvent {
	return DecodedEvent{
		ProviderGUID: providerGUID,
		ProviderName: info.ProviderName,
		LevelName:    info.LevelName,
		ChannelName:  info.ChannelName,
		KeywordsName: info.KeywordsName,
		EventName:    info.EventName,
		OpcodeName:   info.OpcodeName,
		ProcessID:    pid,
		ThreadID:     tid,
		Timestamp:    ts,
		Properties:   props,
	}
}

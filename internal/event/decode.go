package event

import (
	"encoding/json"
	"fmt"

	"github.com/rickgao/pylon/internal/model"
)

// payloadTypes maps each known event kind to a factory for its payload
// struct. Kinds absent here decode as KindUnknown.
var payloadTypes = map[Kind]func() any{
	KindReady:   func() any { return &ReadyData{} },
	KindResumed: func() any { return &struct{}{} },

	KindGuildCreate: func() any { return &model.Guild{} },
	KindGuildUpdate: func() any { return &model.Guild{} },
	KindGuildDelete: func() any { return &GuildDeleteData{} },

	KindChannelCreate: func() any { return &model.Channel{} },
	KindChannelUpdate: func() any { return &model.Channel{} },
	KindChannelDelete: func() any { return &model.Channel{} },

	KindGuildMemberAdd:    func() any { return &model.Member{} },
	KindGuildMemberUpdate: func() any { return &model.Member{} },
	KindGuildMemberRemove: func() any { return &GuildMemberRemoveData{} },

	KindGuildRoleCreate: func() any { return &GuildRoleData{} },
	KindGuildRoleUpdate: func() any { return &GuildRoleData{} },
	KindGuildRoleDelete: func() any { return &GuildRoleDeleteData{} },

	KindMessageCreate: func() any { return &model.Message{} },
	KindMessageUpdate: func() any { return &model.Message{} },
	KindMessageDelete: func() any { return &MessageDeleteData{} },

	KindVoiceServerUpdate: func() any { return &model.VoiceServer{} },
}

// Decode turns a raw dispatch payload into a typed Event. Unknown event
// types are not an error; they come back as KindUnknown with Raw set.
func Decode(eventType string, shardID int, seq int64, raw json.RawMessage) (Event, error) {
	ev := Event{
		ShardID:  shardID,
		Sequence: seq,
		Raw:      raw,
	}

	factory, ok := payloadTypes[Kind(eventType)]
	if !ok {
		return ev, nil
	}

	data := factory()
	if err := json.Unmarshal(raw, data); err != nil {
		return ev, fmt.Errorf("decode %s payload: %w", eventType, err)
	}

	ev.Kind = Kind(eventType)
	ev.Data = data
	return ev, nil
}

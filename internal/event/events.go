package event

import (
	"encoding/json"

	"github.com/rickgao/pylon/internal/model"
)

// Kind identifies a decoded dispatch event type. Values match the wire
// event names.
type Kind string

const (
	KindReady   Kind = "READY"
	KindResumed Kind = "RESUMED"

	KindGuildCreate Kind = "GUILD_CREATE"
	KindGuildUpdate Kind = "GUILD_UPDATE"
	KindGuildDelete Kind = "GUILD_DELETE"

	KindChannelCreate Kind = "CHANNEL_CREATE"
	KindChannelUpdate Kind = "CHANNEL_UPDATE"
	KindChannelDelete Kind = "CHANNEL_DELETE"

	KindGuildMemberAdd    Kind = "GUILD_MEMBER_ADD"
	KindGuildMemberUpdate Kind = "GUILD_MEMBER_UPDATE"
	KindGuildMemberRemove Kind = "GUILD_MEMBER_REMOVE"

	KindGuildRoleCreate Kind = "GUILD_ROLE_CREATE"
	KindGuildRoleUpdate Kind = "GUILD_ROLE_UPDATE"
	KindGuildRoleDelete Kind = "GUILD_ROLE_DELETE"

	KindMessageCreate Kind = "MESSAGE_CREATE"
	KindMessageUpdate Kind = "MESSAGE_UPDATE"
	KindMessageDelete Kind = "MESSAGE_DELETE"

	KindVoiceServerUpdate Kind = "VOICE_SERVER_UPDATE"

	// KindUnknown carries event types this library does not model. The
	// raw payload is preserved in Event.Raw.
	KindUnknown Kind = ""
)

// Event is one decoded dispatch event.
type Event struct {
	Kind     Kind
	ShardID  int
	Sequence int64

	// Data is the typed payload (see the *Data structs); nil for
	// unknown kinds.
	Data any

	// Raw is the undecoded payload, always set.
	Raw json.RawMessage
}

// ReadyData is the identify acknowledgment payload.
type ReadyData struct {
	Version          int           `json:"v"`
	User             model.User    `json:"user"`
	SessionID        string        `json:"session_id"`
	ResumeGatewayURL string        `json:"resume_gateway_url"`
	Guilds           []model.Guild `json:"guilds"`
	Shard            []int         `json:"shard,omitempty"`
}

// GuildDeleteData distinguishes removal (kicked, guild deleted) from a
// temporary outage: Unavailable is true for outages.
type GuildDeleteData struct {
	ID          model.Snowflake `json:"id"`
	Unavailable bool            `json:"unavailable"`
}

// GuildRoleData wraps role create/update payloads.
type GuildRoleData struct {
	GuildID model.Snowflake `json:"guild_id"`
	Role    model.Role      `json:"role"`
}

// GuildRoleDeleteData is the role delete payload.
type GuildRoleDeleteData struct {
	GuildID model.Snowflake `json:"guild_id"`
	RoleID  model.Snowflake `json:"role_id"`
}

// GuildMemberRemoveData is the member remove payload.
type GuildMemberRemoveData struct {
	GuildID model.Snowflake `json:"guild_id"`
	User    model.User      `json:"user"`
}

// MessageDeleteData is the message delete payload.
type MessageDeleteData struct {
	ID        model.Snowflake `json:"id"`
	ChannelID model.Snowflake `json:"channel_id"`
	GuildID   model.Snowflake `json:"guild_id,omitempty"`
}

package model

import "time"

// ChannelType discriminates channel entities.
type ChannelType int

const (
	ChannelTypeGuildText ChannelType = 0
	ChannelTypeDM        ChannelType = 1
	ChannelTypeGuildVoice ChannelType = 2
	ChannelTypeCategory   ChannelType = 4
)

// User is a platform account.
type User struct {
	ID            Snowflake `json:"id"`
	Username      string    `json:"username"`
	Discriminator string    `json:"discriminator,omitempty"`
	Bot           bool      `json:"bot,omitempty"`
	Avatar        string    `json:"avatar,omitempty"`
}

// Guild is a top-level entity owning channels, members, and roles. Guild ID
// is the partition key for shard routing.
type Guild struct {
	ID          Snowflake `json:"id"`
	Name        string    `json:"name,omitempty"`
	Icon        string    `json:"icon,omitempty"`
	OwnerID     Snowflake `json:"owner_id,omitempty"`
	MemberCount int       `json:"member_count,omitempty"`

	// Unavailable guilds arrive as stubs during Ready; the full object
	// follows in a later GUILD_CREATE.
	Unavailable bool `json:"unavailable,omitempty"`
}

// Channel is a message container within a guild, or a DM.
type Channel struct {
	ID            Snowflake   `json:"id"`
	GuildID       Snowflake   `json:"guild_id,omitempty"`
	Type          ChannelType `json:"type"`
	Name          string      `json:"name,omitempty"`
	Topic         string      `json:"topic,omitempty"`
	ParentID      Snowflake   `json:"parent_id,omitempty"`
	LastMessageID Snowflake   `json:"last_message_id,omitempty"`
}

// Member is a user's guild-scoped state. The GuildID back-reference is
// non-owning; the Guild entry lives in the cache on its own.
type Member struct {
	GuildID  Snowflake   `json:"guild_id,omitempty"`
	User     *User       `json:"user,omitempty"`
	Nick     string      `json:"nick,omitempty"`
	Roles    []Snowflake `json:"roles,omitempty"`
	JoinedAt time.Time   `json:"joined_at,omitempty"`
}

// Role is a guild permission group.
type Role struct {
	ID          Snowflake `json:"id"`
	GuildID     Snowflake `json:"guild_id,omitempty"`
	Name        string    `json:"name,omitempty"`
	Color       int       `json:"color,omitempty"`
	Position    int       `json:"position,omitempty"`
	Permissions uint64    `json:"permissions,string,omitempty"`
}

// Message is a single chat message. Cached messages live in a bounded
// per-channel ring.
type Message struct {
	ID              Snowflake `json:"id"`
	ChannelID       Snowflake `json:"channel_id"`
	GuildID         Snowflake `json:"guild_id,omitempty"`
	Author          *User     `json:"author,omitempty"`
	Content         string    `json:"content,omitempty"`
	Timestamp       time.Time `json:"timestamp,omitempty"`
	EditedTimestamp time.Time `json:"edited_timestamp,omitempty"`
	Nonce           string    `json:"nonce,omitempty"`
}

// VoiceServer is the negotiated voice handoff tuple. The audio transport
// consuming it is a separate component.
type VoiceServer struct {
	GuildID   Snowflake `json:"guild_id"`
	SessionID string    `json:"session_id,omitempty"`
	Token     string    `json:"token"`
	Endpoint  string    `json:"endpoint"`
}

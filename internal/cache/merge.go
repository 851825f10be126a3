package cache

import "github.com/rickgao/pylon/internal/model"

// Merge helpers copy only the fields present in a patch. Update payloads
// omit unchanged fields, so a zero value means "absent", not "clear".
// Applying the same patch twice is a no-op.

func mergeGuild(dst *model.Guild, src model.Guild) {
	if src.Name != "" {
		dst.Name = src.Name
	}
	if src.Icon != "" {
		dst.Icon = src.Icon
	}
	if !src.OwnerID.IsZero() {
		dst.OwnerID = src.OwnerID
	}
	if src.MemberCount != 0 {
		dst.MemberCount = src.MemberCount
	}
	dst.Unavailable = src.Unavailable
}

func mergeChannel(dst *model.Channel, src model.Channel) {
	if src.GuildID != 0 {
		dst.GuildID = src.GuildID
	}
	if src.Type != 0 {
		dst.Type = src.Type
	}
	if src.Name != "" {
		dst.Name = src.Name
	}
	if src.Topic != "" {
		dst.Topic = src.Topic
	}
	if !src.ParentID.IsZero() {
		dst.ParentID = src.ParentID
	}
	if !src.LastMessageID.IsZero() {
		dst.LastMessageID = src.LastMessageID
	}
}

func mergeMember(dst *model.Member, src model.Member) {
	if !src.GuildID.IsZero() {
		dst.GuildID = src.GuildID
	}
	if src.User != nil {
		if dst.User == nil {
			dst.User = &model.User{ID: src.User.ID}
		}
		mergeUser(dst.User, *src.User)
	}
	if src.Nick != "" {
		dst.Nick = src.Nick
	}
	if src.Roles != nil {
		dst.Roles = append([]model.Snowflake(nil), src.Roles...)
	}
	if !src.JoinedAt.IsZero() {
		dst.JoinedAt = src.JoinedAt
	}
}

func mergeUser(dst *model.User, src model.User) {
	if src.Username != "" {
		dst.Username = src.Username
	}
	if src.Discriminator != "" {
		dst.Discriminator = src.Discriminator
	}
	if src.Avatar != "" {
		dst.Avatar = src.Avatar
	}
	dst.Bot = dst.Bot || src.Bot
}

func mergeRole(dst *model.Role, src model.Role) {
	if !src.GuildID.IsZero() {
		dst.GuildID = src.GuildID
	}
	if src.Name != "" {
		dst.Name = src.Name
	}
	if src.Color != 0 {
		dst.Color = src.Color
	}
	if src.Position != 0 {
		dst.Position = src.Position
	}
	if src.Permissions != 0 {
		dst.Permissions = src.Permissions
	}
}

func mergeMessage(dst *model.Message, src model.Message) {
	if !src.ChannelID.IsZero() {
		dst.ChannelID = src.ChannelID
	}
	if !src.GuildID.IsZero() {
		dst.GuildID = src.GuildID
	}
	if src.Author != nil {
		if dst.Author == nil {
			dst.Author = &model.User{ID: src.Author.ID}
		}
		mergeUser(dst.Author, *src.Author)
	}
	if src.Content != "" {
		dst.Content = src.Content
	}
	if !src.Timestamp.IsZero() {
		dst.Timestamp = src.Timestamp
	}
	if !src.EditedTimestamp.IsZero() {
		dst.EditedTimestamp = src.EditedTimestamp
	}
	if src.Nonce != "" {
		dst.Nonce = src.Nonce
	}
}

// copyMember deep-copies the entry so readers never share pointers with
// the cache.
func copyMember(m *model.Member) model.Member {
	out := *m
	if m.User != nil {
		u := *m.User
		out.User = &u
	}
	out.Roles = append([]model.Snowflake(nil), m.Roles...)
	return out
}

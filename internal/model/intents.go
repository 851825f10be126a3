package model

// Intents is the capability bitmask requested at identify time. It filters
// which event categories the gateway delivers to a session.
type Intents uint64

const (
	IntentGuilds Intents = 1 << iota
	IntentGuildMembers
	IntentGuildModeration
	IntentGuildExpressions
	IntentGuildIntegrations
	IntentGuildWebhooks
	IntentGuildInvites
	IntentGuildVoiceStates
	IntentGuildPresences
	IntentGuildMessages
	IntentGuildMessageReactions
	IntentGuildMessageTyping
	IntentDirectMessages
	IntentDirectMessageReactions
	IntentDirectMessageTyping
	IntentMessageContent
)

// IntentsDefault covers the event categories the cache consumes.
var IntentsDefault = IntentGuilds | IntentGuildMembers | IntentGuildMessages | IntentDirectMessages

// Has reports whether every bit in mask is set.
func (i Intents) Has(mask Intents) bool { return i&mask == mask }

package gateway

// CloseAction is what a close code means for session recovery.
type CloseAction int

const (
	// ActionResume: reconnect and resume with the stored session.
	ActionResume CloseAction = iota
	// ActionReidentify: reconnect but start a fresh session.
	ActionReidentify
	// ActionFatal: unrecoverable; stop the shard coordinator.
	ActionFatal
)

// Close codes from the gateway protocol.
const (
	CloseUnknownError      = 4000
	CloseUnknownOpcode     = 4001
	CloseDecodeError       = 4002
	CloseNotAuthenticated  = 4003
	CloseAuthFailed        = 4004
	CloseAlreadyAuth       = 4005
	CloseInvalidSeq        = 4007
	CloseRateLimited       = 4008
	CloseSessionTimedOut   = 4009
	CloseInvalidShard      = 4010
	CloseShardingRequired  = 4011
	CloseInvalidAPIVersion = 4012
	CloseInvalidIntents    = 4013
	CloseDisallowedIntents = 4014
)

// ClosePolicy maps close codes to recovery actions. The mapping tracks
// the remote protocol's published code table and evolves with it, so it
// is data rather than branching: callers may override individual entries
// per protocol revision.
type ClosePolicy map[int]CloseAction

// DefaultClosePolicy matches the current protocol revision. Codes not
// listed resume by default (covers ordinary 1000/1001/1006 transport
// closes).
func DefaultClosePolicy() ClosePolicy {
	return ClosePolicy{
		CloseUnknownError:      ActionResume,
		CloseUnknownOpcode:     ActionResume,
		CloseDecodeError:       ActionResume,
		CloseNotAuthenticated:  ActionReidentify,
		CloseAuthFailed:        ActionFatal,
		CloseAlreadyAuth:       ActionResume,
		CloseInvalidSeq:        ActionReidentify,
		CloseRateLimited:       ActionResume,
		CloseSessionTimedOut:   ActionReidentify,
		CloseInvalidShard:      ActionFatal,
		CloseShardingRequired:  ActionFatal,
		CloseInvalidAPIVersion: ActionFatal,
		CloseInvalidIntents:    ActionFatal,
		CloseDisallowedIntents: ActionFatal,
	}
}

// ActionFor looks up the recovery action for a close code.
func (p ClosePolicy) ActionFor(code int) CloseAction {
	if action, ok := p[code]; ok {
		return action
	}
	return ActionResume
}

// Package event decodes gateway dispatch payloads into typed events and
// routes them to registered handlers.
//
// Event kinds are an explicit enumeration; the decode table maps each wire
// name to its payload type. Unknown event types pass through as
// KindUnknown rather than failing the session.
package event

package ratelimit

// Route identifies a logical endpoint class: method, path template, and the
// major parameter (guild, channel, or webhook ID) that splits otherwise
// identical templates into separate buckets.
type Route struct {
	Method     string
	Path       string // path template, e.g. "/channels/{channel.id}/messages"
	MajorParam string // major parameter value, "" when the route has none
}

// Key returns the fallback bucket key used until the server assigns a hash.
func (r Route) Key() string {
	return r.Method + " " + r.Path + " " + r.MajorParam
}

package cache

import "github.com/rickgao/pylon/internal/model"

// messageRing is a bounded, insertion-ordered message store for one
// channel. Past capacity, the oldest message goes first.
type messageRing struct {
	limit int
	msgs  []model.Message
}

func newMessageRing(limit int) *messageRing {
	return &messageRing{limit: limit}
}

func (r *messageRing) len() int { return len(r.msgs) }

// upsert merges an existing entry or appends a new one, evicting
// oldest-first at capacity. Returns how many entries were added and
// evicted for accounting.
func (r *messageRing) upsert(patch model.Message) (added, evicted int) {
	for i := range r.msgs {
		if r.msgs[i].ID == patch.ID {
			mergeMessage(&r.msgs[i], patch)
			return 0, 0
		}
	}

	msg := model.Message{ID: patch.ID}
	mergeMessage(&msg, patch)
	r.msgs = append(r.msgs, msg)
	added = 1

	for len(r.msgs) > r.limit {
		r.msgs = r.msgs[1:]
		evicted++
	}
	return added, evicted
}

func (r *messageRing) get(id model.Snowflake) (model.Message, bool) {
	for i := range r.msgs {
		if r.msgs[i].ID == id {
			return r.msgs[i], true
		}
	}
	return model.Message{}, false
}

func (r *messageRing) remove(id model.Snowflake) bool {
	for i := range r.msgs {
		if r.msgs[i].ID == id {
			r.msgs = append(r.msgs[:i], r.msgs[i+1:]...)
			return true
		}
	}
	return false
}

// snapshot copies the ring contents, oldest first.
func (r *messageRing) snapshot() []model.Message {
	out := make([]model.Message, len(r.msgs))
	copy(out, r.msgs)
	return out
}

package cache

import (
	"sync"

	"github.com/rickgao/pylon/internal/metrics"
	"github.com/rickgao/pylon/internal/model"
)

// DefaultMessageLimit bounds the per-channel message ring.
const DefaultMessageLimit = 200

const numStripes = 32

// memberKey identifies a member: the user ID scoped to a guild.
type memberKey struct {
	guildID model.Snowflake
	userID  model.Snowflake
}

// stripe holds one lock's worth of entries. Entities land in a stripe by
// ID, so mutations of the same entity always serialize while unrelated
// entities proceed in parallel.
type stripe struct {
	mu       sync.RWMutex
	guilds   map[model.Snowflake]*model.Guild
	channels map[model.Snowflake]*model.Channel
	members  map[memberKey]*model.Member
	roles    map[model.Snowflake]*model.Role
	messages map[model.Snowflake]*messageRing // by channel ID
}

// Cache is the shared entity store. Entries are mutated only through
// upsert/remove; reads return copies.
type Cache struct {
	stripes      [numStripes]stripe
	messageLimit int
}

// New creates a cache. messageLimit <= 0 uses DefaultMessageLimit.
func New(messageLimit int) *Cache {
	if messageLimit <= 0 {
		messageLimit = DefaultMessageLimit
	}

	c := &Cache{messageLimit: messageLimit}
	for i := range c.stripes {
		s := &c.stripes[i]
		s.guilds = make(map[model.Snowflake]*model.Guild)
		s.channels = make(map[model.Snowflake]*model.Channel)
		s.members = make(map[memberKey]*model.Member)
		s.roles = make(map[model.Snowflake]*model.Role)
		s.messages = make(map[model.Snowflake]*messageRing)
	}
	return c
}

func (c *Cache) stripeFor(id model.Snowflake) *stripe {
	return &c.stripes[uint64(id)%numStripes]
}

// --- Guilds ---

// UpsertGuild merges the patch into the cached guild, creating a stub on
// first reference.
func (c *Cache) UpsertGuild(patch model.Guild) {
	s := c.stripeFor(patch.ID)
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.guilds[patch.ID]
	if !ok {
		g = &model.Guild{ID: patch.ID}
		s.guilds[patch.ID] = g
		metrics.CacheEntries.WithLabelValues("guild").Inc()
	}
	mergeGuild(g, patch)
}

// Guild returns a copy of the cached guild; a miss is a valid outcome.
func (c *Cache) Guild(id model.Snowflake) (model.Guild, bool) {
	s := c.stripeFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.guilds[id]
	if !ok {
		return model.Guild{}, false
	}
	return *g, true
}

// RemoveGuild evicts the guild entry and everything scoped to it:
// channels, members, roles, and message rings.
func (c *Cache) RemoveGuild(id model.Snowflake) {
	s := c.stripeFor(id)
	s.mu.Lock()
	if _, ok := s.guilds[id]; ok {
		delete(s.guilds, id)
		metrics.CacheEntries.WithLabelValues("guild").Dec()
	}
	s.mu.Unlock()

	c.evictGuildScoped(id)
}

// --- Channels ---

func (c *Cache) UpsertChannel(patch model.Channel) {
	s := c.stripeFor(patch.ID)
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[patch.ID]
	if !ok {
		ch = &model.Channel{ID: patch.ID}
		s.channels[patch.ID] = ch
		metrics.CacheEntries.WithLabelValues("channel").Inc()
	}
	mergeChannel(ch, patch)
}

func (c *Cache) Channel(id model.Snowflake) (model.Channel, bool) {
	s := c.stripeFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, ok := s.channels[id]
	if !ok {
		return model.Channel{}, false
	}
	return *ch, true
}

func (c *Cache) RemoveChannel(id model.Snowflake) {
	s := c.stripeFor(id)
	s.mu.Lock()
	if _, ok := s.channels[id]; ok {
		delete(s.channels, id)
		metrics.CacheEntries.WithLabelValues("channel").Dec()
	}
	if ring, ok := s.messages[id]; ok {
		metrics.CacheEntries.WithLabelValues("message").Sub(float64(ring.len()))
		delete(s.messages, id)
	}
	s.mu.Unlock()
}

// --- Members ---

func (c *Cache) UpsertMember(patch model.Member) {
	if patch.User == nil {
		return
	}
	key := memberKey{guildID: patch.GuildID, userID: patch.User.ID}
	s := c.stripeFor(key.userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.members[key]
	if !ok {
		m = &model.Member{GuildID: patch.GuildID, User: &model.User{ID: key.userID}}
		s.members[key] = m
		metrics.CacheEntries.WithLabelValues("member").Inc()
	}
	mergeMember(m, patch)
}

func (c *Cache) Member(guildID, userID model.Snowflake) (model.Member, bool) {
	s := c.stripeFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[memberKey{guildID: guildID, userID: userID}]
	if !ok {
		return model.Member{}, false
	}
	return copyMember(m), true
}

func (c *Cache) RemoveMember(guildID, userID model.Snowflake) {
	s := c.stripeFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memberKey{guildID: guildID, userID: userID}
	if _, ok := s.members[key]; ok {
		delete(s.members, key)
		metrics.CacheEntries.WithLabelValues("member").Dec()
	}
}

// --- Roles ---

func (c *Cache) UpsertRole(patch model.Role) {
	s := c.stripeFor(patch.ID)
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.roles[patch.ID]
	if !ok {
		r = &model.Role{ID: patch.ID}
		s.roles[patch.ID] = r
		metrics.CacheEntries.WithLabelValues("role").Inc()
	}
	mergeRole(r, patch)
}

func (c *Cache) Role(id model.Snowflake) (model.Role, bool) {
	s := c.stripeFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.roles[id]
	if !ok {
		return model.Role{}, false
	}
	return *r, true
}

func (c *Cache) RemoveRole(id model.Snowflake) {
	s := c.stripeFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roles[id]; ok {
		delete(s.roles, id)
		metrics.CacheEntries.WithLabelValues("role").Dec()
	}
}

// --- Messages ---

// UpsertMessage adds a message to its channel ring, or merges into the
// existing entry on update events. At capacity the oldest message is
// evicted first.
func (c *Cache) UpsertMessage(patch model.Message) {
	s := c.stripeFor(patch.ChannelID)
	s.mu.Lock()
	defer s.mu.Unlock()

	ring, ok := s.messages[patch.ChannelID]
	if !ok {
		ring = newMessageRing(c.messageLimit)
		s.messages[patch.ChannelID] = ring
	}

	added, evicted := ring.upsert(patch)
	metrics.CacheEntries.WithLabelValues("message").Add(float64(added - evicted))
}

// Message returns one cached message by channel and ID.
func (c *Cache) Message(channelID, id model.Snowflake) (model.Message, bool) {
	s := c.stripeFor(channelID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	ring, ok := s.messages[channelID]
	if !ok {
		return model.Message{}, false
	}
	return ring.get(id)
}

// Messages returns the cached messages for a channel, oldest first.
func (c *Cache) Messages(channelID model.Snowflake) []model.Message {
	s := c.stripeFor(channelID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	ring, ok := s.messages[channelID]
	if !ok {
		return nil
	}
	return ring.snapshot()
}

func (c *Cache) RemoveMessage(channelID, id model.Snowflake) {
	s := c.stripeFor(channelID)
	s.mu.Lock()
	defer s.mu.Unlock()

	ring, ok := s.messages[channelID]
	if !ok {
		return
	}
	if ring.remove(id) {
		metrics.CacheEntries.WithLabelValues("message").Dec()
	}
}

// --- Bulk eviction ---

// InvalidateGuilds evicts every guild matching the predicate along with
// its scoped entities. Sessions use it to drop one shard's owned
// entities after a non-resumable reconnect.
func (c *Cache) InvalidateGuilds(match func(guildID model.Snowflake) bool) {
	var victims []model.Snowflake
	for i := range c.stripes {
		s := &c.stripes[i]
		s.mu.RLock()
		for id := range s.guilds {
			if match(id) {
				victims = append(victims, id)
			}
		}
		s.mu.RUnlock()
	}

	for _, id := range victims {
		c.RemoveGuild(id)
	}
}

// evictGuildScoped walks every stripe removing entities owned by the
// guild.
func (c *Cache) evictGuildScoped(guildID model.Snowflake) {
	for i := range c.stripes {
		s := &c.stripes[i]
		s.mu.Lock()

		for id, ch := range s.channels {
			if ch.GuildID == guildID {
				delete(s.channels, id)
				metrics.CacheEntries.WithLabelValues("channel").Dec()
				if ring, ok := s.messages[id]; ok {
					metrics.CacheEntries.WithLabelValues("message").Sub(float64(ring.len()))
					delete(s.messages, id)
				}
			}
		}
		for key := range s.members {
			if key.guildID == guildID {
				delete(s.members, key)
				metrics.CacheEntries.WithLabelValues("member").Dec()
			}
		}
		for id, r := range s.roles {
			if r.GuildID == guildID {
				delete(s.roles, id)
				metrics.CacheEntries.WithLabelValues("role").Dec()
			}
		}

		s.mu.Unlock()
	}
}

package shard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/rickgao/pylon/internal/cache"
	"github.com/rickgao/pylon/internal/event"
	"github.com/rickgao/pylon/internal/gateway"
	"github.com/rickgao/pylon/internal/model"
	"github.com/rickgao/pylon/internal/rest"
)

// DefaultIdentifyMinInterval is the minimum gap between identify calls
// across shards when neither the config nor the gateway info narrows it.
const DefaultIdentifyMinInterval = 5 * time.Second

// ShardFor returns the shard index responsible for a guild. The mapping is
// the fixed routing formula, so it is stable across restarts for a given
// shard count.
func ShardFor(guildID model.Snowflake, shardCount int) int {
	if shardCount <= 0 {
		return 0
	}
	return int((uint64(guildID) >> 22) % uint64(shardCount))
}

// Config configures the coordinator.
type Config struct {
	Token      string
	GatewayURL string // "" discovers the URL from the REST API
	ShardCount int    // 0 uses the recommended count from the REST API
	Intents    model.Intents
	Presence   *gateway.Presence

	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration

	// IdentifyMinInterval spaces identify calls across shards. Zero
	// uses the default, shortened when the gateway advertises a higher
	// max concurrency.
	IdentifyMinInterval time.Duration

	ReidentifyDelay time.Duration
}

// Coordinator owns the shard sessions. Start brings them all up; a fatal
// close on any shard stops the whole set.
type Coordinator struct {
	cfg      Config
	rest     *rest.Client
	cache    *cache.Cache
	registry *event.Registry
	logger   *slog.Logger

	identify *rate.Limiter

	mu         sync.Mutex
	sessions   []*gateway.Session
	shardCount int
	cancel     context.CancelFunc
	group      *errgroup.Group
	started    bool
}

// New creates a coordinator. The REST client is required when either the
// gateway URL or the shard count must be discovered.
func New(cfg Config, restClient *rest.Client, c *cache.Cache, registry *event.Registry, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if c == nil {
		c = cache.New(0)
	}
	if registry == nil {
		registry = event.NewRegistry(logger)
	}
	return &Coordinator{
		cfg:      cfg,
		rest:     restClient,
		cache:    c,
		registry: registry,
		logger:   logger.With("component", "shard_coordinator"),
	}
}

// Cache returns the entity cache the sessions feed.
func (c *Coordinator) Cache() *cache.Cache { return c.cache }

// Registry returns the event registry the sessions dispatch into.
func (c *Coordinator) Registry() *event.Registry { return c.registry }

// ShardCount returns the resolved shard count, 0 before Start.
func (c *Coordinator) ShardCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shardCount
}

// Start resolves the gateway endpoint and shard count, then opens every
// shard session. It returns once all sessions are launched; use Wait for
// the terminal outcome.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("coordinator already started")
	}
	c.started = true
	c.mu.Unlock()

	gatewayURL, shardCount, interval, err := c.resolve(ctx)
	if err != nil {
		return fmt.Errorf("resolving gateway topology: %w", err)
	}
	c.identify = rate.NewLimiter(rate.Every(interval), 1)

	runCtx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(runCtx)

	c.logger.Info("starting shards",
		"shard_count", shardCount,
		"gateway_url", gatewayURL,
		"identify_interval", interval,
	)

	sessions := make([]*gateway.Session, shardCount)
	for i := 0; i < shardCount; i++ {
		shardID := i
		sess := gateway.NewSession(gateway.Config{
			Token:              c.cfg.Token,
			GatewayURL:         gatewayURL,
			ShardID:            shardID,
			ShardCount:         shardCount,
			Intents:            c.cfg.Intents,
			Presence:           c.cfg.Presence,
			ReconnectBaseDelay: c.cfg.ReconnectBaseDelay,
			ReconnectMaxDelay:  c.cfg.ReconnectMaxDelay,
			ReidentifyDelay:    c.cfg.ReidentifyDelay,
			IdentifyGate:       c.identifyGate,
			OnEvent:            c.onEvent,
			OnInvalidate:       c.onInvalidate,
		}, c.logger)
		sessions[i] = sess

		group.Go(func() error {
			if err := sess.Open(gctx); err != nil {
				return fmt.Errorf("shard %d: %w", shardID, err)
			}
			select {
			case <-gctx.Done():
				sess.Close()
				return nil
			case <-sess.Done():
				if err := sess.Err(); err != nil {
					return fmt.Errorf("shard %d: %w", shardID, err)
				}
				return nil
			}
		})
	}

	c.mu.Lock()
	c.sessions = sessions
	c.shardCount = shardCount
	c.cancel = cancel
	c.group = group
	c.mu.Unlock()
	return nil
}

// Wait blocks until every session has terminated and returns the first
// fatal error, if any.
func (c *Coordinator) Wait() error {
	c.mu.Lock()
	group := c.group
	c.mu.Unlock()
	if group == nil {
		return nil
	}
	return group.Wait()
}

// Close shuts every session down and waits for them to drain.
func (c *Coordinator) Close() {
	c.mu.Lock()
	cancel := c.cancel
	group := c.group
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if group != nil {
		_ = group.Wait()
	}
}

// Session returns the session for one shard index, nil when out of range
// or before Start.
func (c *Coordinator) Session(shardID int) *gateway.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if shardID < 0 || shardID >= len(c.sessions) {
		return nil
	}
	return c.sessions[shardID]
}

// resolve determines the gateway URL, shard count, and identify spacing,
// consulting the REST API for whatever the config leaves open.
func (c *Coordinator) resolve(ctx context.Context) (url string, count int, interval time.Duration, err error) {
	url = c.cfg.GatewayURL
	count = c.cfg.ShardCount
	interval = c.cfg.IdentifyMinInterval
	if interval <= 0 {
		interval = DefaultIdentifyMinInterval
	}

	if url != "" && count > 0 {
		return url, count, interval, nil
	}
	if c.rest == nil {
		return "", 0, 0, errors.New("gateway URL and shard count must both be set without a REST client")
	}

	info, err := c.rest.GetGateway(ctx)
	if err != nil {
		return "", 0, 0, err
	}
	if url == "" {
		url = info.URL
	}
	if count <= 0 {
		count = info.Shards
	}
	if count <= 0 {
		count = 1
	}
	if c.cfg.IdentifyMinInterval <= 0 && info.SessionStartLimit.MaxConcurrency > 1 {
		interval = DefaultIdentifyMinInterval / time.Duration(info.SessionStartLimit.MaxConcurrency)
	}
	return url, count, interval, nil
}

// identifyGate blocks until this shard may send its identify. Sessions
// call it before every fresh identify, never before a resume.
func (c *Coordinator) identifyGate(ctx context.Context) error {
	return c.identify.Wait(ctx)
}

// onInvalidate evicts everything a shard had cached after the shard
// abandons its resumable session.
func (c *Coordinator) onInvalidate(shardID int) {
	c.mu.Lock()
	count := c.shardCount
	c.mu.Unlock()
	if count <= 0 {
		return
	}
	c.logger.Info("invalidating cached entities for shard", "shard_id", shardID)
	c.cache.InvalidateGuilds(func(guildID model.Snowflake) bool {
		return ShardFor(guildID, count) == shardID
	})
}

// onEvent applies a dispatch event to the cache, then hands it to the
// registry. Cache application happens first so handlers observe the
// post-event state.
func (c *Coordinator) onEvent(ev event.Event) {
	c.apply(ev)
	c.registry.Dispatch(ev)
}

func (c *Coordinator) apply(ev event.Event) {
	switch data := ev.Data.(type) {
	case *event.ReadyData:
		for _, g := range data.Guilds {
			c.cache.UpsertGuild(g)
		}

	case *model.Guild:
		switch ev.Kind {
		case event.KindGuildCreate, event.KindGuildUpdate:
			c.cache.UpsertGuild(*data)
		}
	case *event.GuildDeleteData:
		if data.Unavailable {
			// Outage, not removal. Keep the entities, flag the guild.
			c.cache.UpsertGuild(model.Guild{ID: data.ID, Unavailable: true})
			return
		}
		c.cache.RemoveGuild(data.ID)

	case *model.Channel:
		if ev.Kind == event.KindChannelDelete {
			c.cache.RemoveChannel(data.ID)
			return
		}
		c.cache.UpsertChannel(*data)

	case *model.Member:
		c.cache.UpsertMember(*data)
	case *event.GuildMemberRemoveData:
		c.cache.RemoveMember(data.GuildID, data.User.ID)

	case *event.GuildRoleData:
		role := data.Role
		if role.GuildID.IsZero() {
			role.GuildID = data.GuildID
		}
		c.cache.UpsertRole(role)
	case *event.GuildRoleDeleteData:
		c.cache.RemoveRole(data.RoleID)

	case *model.Message:
		c.cache.UpsertMessage(*data)
	case *event.MessageDeleteData:
		c.cache.RemoveMessage(data.ChannelID, data.ID)
	}
}

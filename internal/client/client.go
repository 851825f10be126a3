package client

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rickgao/pylon/internal/cache"
	"github.com/rickgao/pylon/internal/config"
	"github.com/rickgao/pylon/internal/event"
	"github.com/rickgao/pylon/internal/gateway"
	"github.com/rickgao/pylon/internal/model"
	"github.com/rickgao/pylon/internal/ratelimit"
	"github.com/rickgao/pylon/internal/rest"
	"github.com/rickgao/pylon/internal/shard"
)

// Client bundles the gateway shards, the REST API, and the entity cache
// behind one handle.
type Client struct {
	cfg    *config.GatewayConfig
	logger *slog.Logger

	rest     *rest.Client
	limiter  *ratelimit.Limiter
	cache    *cache.Cache
	registry *event.Registry
	coord    *shard.Coordinator
}

// New wires a client from a validated config. It does not connect until
// Open.
func New(cfg *config.GatewayConfig, logger *slog.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if cfg.Token == "" {
		return nil, errors.New("config missing token")
	}
	if logger == nil {
		logger = slog.Default()
	}

	limiter := ratelimit.NewLimiter(cfg.Cache.BucketIdleTTL, logger)
	restClient := rest.NewClient(cfg.Rest.URL, cfg.Token,
		rest.WithTimeout(cfg.Rest.Timeout),
		rest.WithRetries(cfg.Rest.MaxRetries, cfg.Rest.RetryBackoff),
		rest.WithLimiter(limiter),
		rest.WithLogger(logger),
	)

	intents := model.Intents(cfg.Gateway.Intents)
	if intents == 0 {
		intents = model.IntentsDefault
	}
	var presence *gateway.Presence
	if cfg.Gateway.PresenceStatus != "" {
		presence = &gateway.Presence{Status: cfg.Gateway.PresenceStatus}
	}

	entityCache := cache.New(cfg.Cache.MessageLimit)
	registry := event.NewRegistry(logger)

	coord := shard.New(shard.Config{
		Token:               cfg.Token,
		GatewayURL:          cfg.Gateway.URL,
		ShardCount:          cfg.Gateway.ShardCount,
		Intents:             intents,
		Presence:            presence,
		ReconnectBaseDelay:  cfg.Gateway.ReconnectBaseDelay,
		ReconnectMaxDelay:   cfg.Gateway.ReconnectMaxDelay,
		IdentifyMinInterval: cfg.Gateway.IdentifyMinInterval,
	}, restClient, entityCache, registry, logger)

	return &Client{
		cfg:      cfg,
		logger:   logger,
		rest:     restClient,
		limiter:  limiter,
		cache:    entityCache,
		registry: registry,
		coord:    coord,
	}, nil
}

// Open brings every shard online. It returns once the sessions are
// launched; use Wait to block on the terminal outcome.
func (c *Client) Open(ctx context.Context) error {
	return c.coord.Start(ctx)
}

// Wait blocks until the shards terminate and returns the fatal error, if
// any.
func (c *Client) Wait() error {
	return c.coord.Wait()
}

// Close shuts the shards down and stops the rate limiter's janitor.
func (c *Client) Close() {
	c.coord.Close()
	c.limiter.Close()
}

// On registers a handler for one event kind.
func (c *Client) On(kind event.Kind, h event.Handler) {
	c.registry.On(kind, h)
}

// OnAll registers a handler for every event, unknown kinds included.
func (c *Client) OnAll(h event.Handler) {
	c.registry.OnAll(h)
}

// OnVoiceServerUpdate delivers the voice handoff tuple whenever the
// server moves a voice session. Connecting to the voice endpoint is the
// caller's business.
func (c *Client) OnVoiceServerUpdate(h func(model.VoiceServer)) {
	c.registry.On(event.KindVoiceServerUpdate, func(ev event.Event) {
		if vs, ok := ev.Data.(*model.VoiceServer); ok {
			h(*vs)
		}
	})
}

// HandlerErrors reports handler panics.
func (c *Client) HandlerErrors() <-chan error {
	return c.registry.Errors()
}

// Rest exposes the underlying REST client for endpoints the facade does
// not wrap.
func (c *Client) Rest() *rest.Client { return c.rest }

// Cache exposes the entity cache.
func (c *Client) Cache() *cache.Cache { return c.cache }

// ShardFor returns the shard index responsible for a guild.
func (c *Client) ShardFor(guildID model.Snowflake) int {
	return shard.ShardFor(guildID, c.coord.ShardCount())
}

// Guild returns a guild, from cache when possible.
func (c *Client) Guild(ctx context.Context, id model.Snowflake) (model.Guild, error) {
	if g, ok := c.cache.Guild(id); ok {
		return g, nil
	}
	g, err := c.rest.GetGuild(ctx, id)
	if err != nil {
		return model.Guild{}, err
	}
	c.cache.UpsertGuild(*g)
	return *g, nil
}

// Channel returns a channel, from cache when possible.
func (c *Client) Channel(ctx context.Context, id model.Snowflake) (model.Channel, error) {
	if ch, ok := c.cache.Channel(id); ok {
		return ch, nil
	}
	ch, err := c.rest.GetChannel(ctx, id)
	if err != nil {
		return model.Channel{}, err
	}
	c.cache.UpsertChannel(*ch)
	return *ch, nil
}

// Member returns a guild member, from cache when possible.
func (c *Client) Member(ctx context.Context, guildID, userID model.Snowflake) (model.Member, error) {
	if m, ok := c.cache.Member(guildID, userID); ok {
		return m, nil
	}
	m, err := c.rest.GetGuildMember(ctx, guildID, userID)
	if err != nil {
		return model.Member{}, err
	}
	if m.GuildID.IsZero() {
		m.GuildID = guildID
	}
	c.cache.UpsertMember(*m)
	return *m, nil
}

// Messages returns a channel's recent messages. Cached messages are
// served when present; otherwise the REST history endpoint backfills the
// cache.
func (c *Client) Messages(ctx context.Context, channelID model.Snowflake, limit int) ([]model.Message, error) {
	if msgs := c.cache.Messages(channelID); len(msgs) > 0 {
		if limit > 0 && len(msgs) > limit {
			msgs = msgs[len(msgs)-limit:]
		}
		return msgs, nil
	}
	msgs, err := c.rest.GetChannelMessages(ctx, channelID, limit)
	if err != nil {
		return nil, err
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		// History arrives newest first; feed the ring oldest first.
		c.cache.UpsertMessage(msgs[i])
	}
	return msgs, nil
}

// SendMessage creates a message in a channel and caches the result.
func (c *Client) SendMessage(ctx context.Context, channelID model.Snowflake, content string) (model.Message, error) {
	msg, err := c.rest.CreateMessage(ctx, channelID, content)
	if err != nil {
		return model.Message{}, err
	}
	c.cache.UpsertMessage(*msg)
	return *msg, nil
}

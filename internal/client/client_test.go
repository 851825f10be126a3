package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rickgao/pylon/internal/config"
	"github.com/rickgao/pylon/internal/event"
	"github.com/rickgao/pylon/internal/model"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.GatewayConfig{Token: "test-token"}
	cfg.Rest.URL = server.URL
	c, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, server
}

func TestNewRequiresToken(t *testing.T) {
	if _, err := New(&config.GatewayConfig{}, nil); err == nil {
		t.Fatal("New accepted a config without token")
	}
	if _, err := New(nil, nil); err == nil {
		t.Fatal("New accepted a nil config")
	}
}

func TestChannelCacheFirst(t *testing.T) {
	var hits int32
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		json.NewEncoder(w).Encode(map[string]any{
			"id": "100", "name": "general", "guild_id": "1",
		})
	}))

	ctx := context.Background()

	ch, err := c.Channel(ctx, 100)
	if err != nil {
		t.Fatalf("Channel failed: %v", err)
	}
	if ch.Name != "general" {
		t.Errorf("name = %q", ch.Name)
	}

	// Second read is served from cache.
	if _, err := c.Channel(ctx, 100); err != nil {
		t.Fatalf("cached Channel failed: %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("REST hits = %d, want 1", n)
	}
}

func TestMemberFallbackScopesGuild(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"user": map[string]any{"id": "9", "username": "ana"},
			"nick": "an",
		})
	}))

	m, err := c.Member(context.Background(), 1, 9)
	if err != nil {
		t.Fatalf("Member failed: %v", err)
	}
	if m.Nick != "an" {
		t.Errorf("nick = %q", m.Nick)
	}

	// The REST payload omits guild_id; the cache entry must still land
	// under the requested guild.
	if _, ok := c.Cache().Member(1, 9); !ok {
		t.Error("member not cached under its guild")
	}
}

func TestSendMessageCachesResult(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id": "55", "channel_id": "10", "content": "hello",
		})
	}))

	msg, err := c.SendMessage(context.Background(), 10, "hello")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if msg.ID != 55 {
		t.Errorf("id = %d", msg.ID)
	}
	if _, ok := c.Cache().Message(10, 55); !ok {
		t.Error("sent message not cached")
	}
}

func TestMessagesBackfillOldestFirst(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// History endpoints return newest first.
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": "3", "channel_id": "10", "content": "newest"},
			{"id": "2", "channel_id": "10", "content": "middle"},
			{"id": "1", "channel_id": "10", "content": "oldest"},
		})
	}))

	if _, err := c.Messages(context.Background(), 10, 3); err != nil {
		t.Fatalf("Messages failed: %v", err)
	}

	cached := c.Cache().Messages(10)
	if len(cached) != 3 {
		t.Fatalf("cached %d messages, want 3", len(cached))
	}
	if cached[0].ID != 1 || cached[2].ID != 3 {
		t.Errorf("cache order = %v, want oldest first", []model.Snowflake{cached[0].ID, cached[1].ID, cached[2].ID})
	}
}

func TestOnVoiceServerUpdate(t *testing.T) {
	c, _ := testClient(t, http.NotFoundHandler())

	var got model.VoiceServer
	c.OnVoiceServerUpdate(func(vs model.VoiceServer) { got = vs })

	c.registry.Dispatch(event.Event{
		Kind: event.KindVoiceServerUpdate,
		Data: &model.VoiceServer{Token: "vt", GuildID: 1, Endpoint: "voice.example.chat:443"},
	})

	if got.Endpoint != "voice.example.chat:443" || got.Token != "vt" {
		t.Errorf("handoff tuple = %+v", got)
	}
}

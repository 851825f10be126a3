package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/rickgao/pylon/internal/model"
	"github.com/rickgao/pylon/internal/ratelimit"
)

// GatewayInfo is the connection bootstrap response: the gateway URL, the
// recommended shard count, and identify-concurrency limits.
type GatewayInfo struct {
	URL               string `json:"url"`
	Shards            int    `json:"shards"`
	SessionStartLimit struct {
		Total          int `json:"total"`
		Remaining      int `json:"remaining"`
		ResetAfter     int `json:"reset_after"`
		MaxConcurrency int `json:"max_concurrency"`
	} `json:"session_start_limit"`
}

// GetGateway fetches the gateway URL and shard/identify limits for this
// credential.
func (c *Client) GetGateway(ctx context.Context) (*GatewayInfo, error) {
	var info GatewayInfo
	err := c.getJSON(ctx, ratelimit.Route{
		Method: http.MethodGet,
		Path:   "/gateway/bot",
	}, "/gateway/bot", nil, &info)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// GetChannel fetches a channel by ID.
func (c *Client) GetChannel(ctx context.Context, channelID model.Snowflake) (*model.Channel, error) {
	var ch model.Channel
	err := c.getJSON(ctx, ratelimit.Route{
		Method:     http.MethodGet,
		Path:       "/channels/{channel.id}",
		MajorParam: channelID.String(),
	}, "/channels/"+channelID.String(), nil, &ch)
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// GetGuild fetches a guild by ID.
func (c *Client) GetGuild(ctx context.Context, guildID model.Snowflake) (*model.Guild, error) {
	var g model.Guild
	err := c.getJSON(ctx, ratelimit.Route{
		Method:     http.MethodGet,
		Path:       "/guilds/{guild.id}",
		MajorParam: guildID.String(),
	}, "/guilds/"+guildID.String(), nil, &g)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// GetGuildMember fetches one member of a guild.
func (c *Client) GetGuildMember(ctx context.Context, guildID, userID model.Snowflake) (*model.Member, error) {
	var m model.Member
	err := c.getJSON(ctx, ratelimit.Route{
		Method:     http.MethodGet,
		Path:       "/guilds/{guild.id}/members/{user.id}",
		MajorParam: guildID.String(),
	}, "/guilds/"+guildID.String()+"/members/"+userID.String(), nil, &m)
	if err != nil {
		return nil, err
	}
	m.GuildID = guildID
	return &m, nil
}

// GetChannelMessages lists recent messages in a channel, newest first.
func (c *Client) GetChannelMessages(ctx context.Context, channelID model.Snowflake, limit int) ([]model.Message, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var msgs []model.Message
	err := c.getJSON(ctx, ratelimit.Route{
		Method:     http.MethodGet,
		Path:       "/channels/{channel.id}/messages",
		MajorParam: channelID.String(),
	}, "/channels/"+channelID.String()+"/messages", query, &msgs)
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// CreateMessage posts a message to a channel. A random nonce lets the
// caller match the echoed dispatch event to this call.
func (c *Client) CreateMessage(ctx context.Context, channelID model.Snowflake, content string) (*model.Message, error) {
	payload, err := json.Marshal(struct {
		Content string `json:"content"`
		Nonce   string `json:"nonce"`
	}{
		Content: content,
		Nonce:   uuid.NewString(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	body, err := c.Do(ctx, Request{
		Route: ratelimit.Route{
			Method:     http.MethodPost,
			Path:       "/channels/{channel.id}/messages",
			MajorParam: channelID.String(),
		},
		Method: http.MethodPost,
		Path:   "/channels/" + channelID.String() + "/messages",
		Body:   payload,
	})
	if err != nil {
		return nil, err
	}

	var msg model.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	return &msg, nil
}

// getJSON performs a GET and unmarshals the response.
func (c *Client) getJSON(ctx context.Context, route ratelimit.Route, path string, query url.Values, result any) error {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	body, err := c.Do(ctx, Request{
		Route:  route,
		Method: http.MethodGet,
		Path:   path,
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

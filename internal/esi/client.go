// Package esi implements the game-data lookup collaborator against
// EVE's public ESI API. Only unauthenticated endpoints are used.
package esi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/coldwine/intelwatch/internal/annotate"
)

// DefaultBaseURL is the public ESI endpoint.
const DefaultBaseURL = "https://esi.evetech.net/latest"

var _ annotate.Lookup = (*Client)(nil)

// Config holds client configuration.
type Config struct {
	BaseURL string

	// ShipDataURL serves the ship type dump loaded into the index:
	// a JSON array of {type_id, name, group_id}.
	ShipDataURL string

	Timeout        time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:        DefaultBaseURL,
		Timeout:        10 * time.Second,
		MaxRetries:     2,
		RetryBaseDelay: time.Second,
	}
}

// Client resolves characters, ships and ship groups. It satisfies the
// annotation passes' Lookup interface; every method failure reads as
// "no match" to the caller.
type Client struct {
	cfg  *Config
	http *http.Client

	mu     sync.Mutex
	ships  map[string]annotate.Ship
	groups map[int64]string
}

// New creates a client. A nil config uses defaults.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		ships:  make(map[string]annotate.Ship),
		groups: make(map[int64]string),
	}
}

// CharacterByName resolves an exact character name via /universe/ids/.
// Returns nil, nil when the name is not a character.
func (c *Client) CharacterByName(ctx context.Context, name string) (*annotate.Character, error) {
	payload, err := json.Marshal([]string{name})
	if err != nil {
		return nil, err
	}
	body, err := c.post(ctx, "/universe/ids/", payload)
	if err != nil {
		return nil, fmt.Errorf("esi: ids lookup: %w", err)
	}

	match := gjson.GetBytes(body, "characters.0")
	if !match.Exists() {
		return nil, nil
	}
	// ESI matches case-insensitively; take only exact-name hits so the
	// annotation pass does not link arbitrary words.
	if !strings.EqualFold(match.Get("name").String(), name) {
		return nil, nil
	}
	return &annotate.Character{
		ID:   match.Get("id").Int(),
		Name: match.Get("name").String(),
	}, nil
}

// LoadShipIndex fetches the ship dump and builds the uppercased-name
// index. Call once at startup when the ship parser is enabled.
func (c *Client) LoadShipIndex(ctx context.Context) error {
	if c.cfg.ShipDataURL == "" {
		return fmt.Errorf("esi: no ship data url configured")
	}
	body, err := c.get(ctx, c.cfg.ShipDataURL)
	if err != nil {
		return fmt.Errorf("esi: ship dump: %w", err)
	}

	ships := make(map[string]annotate.Ship)
	gjson.ParseBytes(body).ForEach(func(_, entry gjson.Result) bool {
		name := entry.Get("name").String()
		if name == "" {
			return true
		}
		ships[strings.ToUpper(name)] = annotate.Ship{
			TypeID:  entry.Get("type_id").Int(),
			Name:    name,
			GroupID: entry.Get("group_id").Int(),
		}
		return true
	})

	c.mu.Lock()
	c.ships = ships
	c.mu.Unlock()
	return nil
}

// ShipIndex returns the loaded ship index; empty until LoadShipIndex
// has succeeded. Callers must treat the map as read-only: a reload
// swaps in a fresh map, it never mutates a handed-out one.
func (c *Client) ShipIndex() map[string]annotate.Ship {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ships
}

// GroupName resolves a ship group's display name, caching results.
func (c *Client) GroupName(ctx context.Context, groupID int64) (string, error) {
	c.mu.Lock()
	if name, ok := c.groups[groupID]; ok {
		c.mu.Unlock()
		return name, nil
	}
	c.mu.Unlock()

	body, err := c.get(ctx, fmt.Sprintf("%s/universe/groups/%d/", c.cfg.BaseURL, groupID))
	if err != nil {
		return "", fmt.Errorf("esi: group %d: %w", groupID, err)
	}
	name := gjson.GetBytes(body, "name").String()
	if name == "" {
		return "", fmt.Errorf("esi: group %d has no name", groupID)
	}

	c.mu.Lock()
	c.groups[groupID] = name
	c.mu.Unlock()
	return name, nil
}

func (c *Client) post(ctx context.Context, path string, payload []byte) ([]byte, error) {
	return c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	return c.do(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	})
}

// do runs a request with exponential backoff on server errors.
func (c *Client) do(ctx context.Context, build func() (*http.Request, error)) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.cfg.RetryBaseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := build()
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		switch {
		case resp.StatusCode == http.StatusOK:
			return body, nil
		case resp.StatusCode == http.StatusNotFound:
			return nil, fmt.Errorf("not found")
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server error %d", resp.StatusCode)
			continue
		default:
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
	}
	return nil, lastErr
}

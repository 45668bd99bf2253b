// Package classapi talks to the platform backend about class lifecycle.
// Calls are fire-and-forget: failures are logged, never surfaced.
package classapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lectern/meshcall/internal/domain"
)

const requestTimeout = 5 * time.Second

type Client struct {
	base string
	http *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		base: baseURL,
		http: &http.Client{Timeout: requestTimeout},
	}
}

// StartClass tells the backend a moderator opened the class room.
func (c *Client) StartClass(ctx context.Context, code domain.RoomCode) {
	c.post(ctx, fmt.Sprintf("%s/classes/%s/start", c.base, code))
}

// EndClass tells the backend a moderator ended the class.
func (c *Client) EndClass(ctx context.Context, code domain.RoomCode) {
	c.post(ctx, fmt.Sprintf("%s/classes/%s/end", c.base, code))
}

func (c *Client) post(ctx context.Context, url string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "classapi").Str("url", url).Msg("build request")
		return
	}
	resp, err := c.http.Do(req)
	if err != nil {
		log.Error().Err(err).Str("module", "classapi").Str("url", url).Msg("request failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Warn().Str("module", "classapi").Str("url", url).Int("status", resp.StatusCode).Msg("unexpected status")
		return
	}
	log.Info().Str("module", "classapi").Str("url", url).Msg("notified backend")
}

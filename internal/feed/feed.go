package feed

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"fieldops/internal/model"
	"fieldops/internal/store"
)

// Update is one technician telemetry message from the field gateway. Zero
// fields mean "unchanged"; the store applies only what is present.
type Update struct {
	OrgID        string                   `json:"orgId" validate:"required"`
	TechnicianID string                   `json:"technicianId" validate:"required"`
	Location     *model.Coordinate        `json:"location,omitempty"`
	Availability model.AvailabilityStatus `json:"availability,omitempty" validate:"omitempty,oneof=available on_job off_duty break"`
}

// Client subscribes to the telemetry websocket and writes location and
// availability updates into the store between planning cycles. It reconnects
// with bounded backoff and stops when the context is cancelled.
type Client struct {
	url   string
	store store.Store
	log   zerolog.Logger

	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewClient(url string, st store.Store, log zerolog.Logger) *Client {
	return &Client{
		url:        url,
		store:      st,
		log:        log,
		minBackoff: time.Second,
		maxBackoff: time.Minute,
	}
}

// Run blocks until ctx is cancelled, maintaining the subscription across
// connection drops.
func (c *Client) Run(ctx context.Context) {
	backoff := c.minBackoff
	for {
		if ctx.Err() != nil {
			return
		}
		err := c.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		c.log.Warn().Err(err).Dur("retryIn", backoff).Str("url", c.url).Msg("telemetry feed disconnected")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

func (c *Client) consume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	c.log.Info().Str("url", c.url).Msg("telemetry feed connected")

	// Unblock ReadJSON when the context ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var u Update
		if err := conn.ReadJSON(&u); err != nil {
			return err
		}
		c.apply(ctx, &u)
	}
}

func (c *Client) apply(ctx context.Context, u *Update) {
	if err := model.Validate(u); err != nil {
		c.log.Warn().Err(err).Msg("dropping malformed telemetry update")
		return
	}
	err := c.store.UpdateTechnicianTelemetry(ctx, u.OrgID, u.TechnicianID, u.Location, u.Availability)
	if err != nil {
		c.log.Warn().Err(err).
			Str("org", u.OrgID).
			Str("technician", u.TechnicianID).
			Msg("telemetry update not applied")
		return
	}
	c.log.Debug().Str("technician", u.TechnicianID).Msg("telemetry applied")
}

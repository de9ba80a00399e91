package alerter

import (
	"time"

	"github.com/rs/zerolog"
)

// Cooldown remembers when each alert key was last accepted and suppresses
// repeats inside the window. Callers serialize access (the engine mutex).
type Cooldown struct {
	log    zerolog.Logger
	window time.Duration
	last   map[string]time.Time // alert key -> last accepted
}

// NewCooldown creates a cooldown gate.
func NewCooldown(log zerolog.Logger, window time.Duration) *Cooldown {
	return &Cooldown{
		log:    log.With().Str("component", "cooldown").Logger(),
		window: window,
		last:   make(map[string]time.Time),
	}
}

// Allow reports whether key may be accepted at now. A key whose window has
// fully elapsed is allowed.
func (c *Cooldown) Allow(key string, now time.Time) bool {
	last, ok := c.last[key]
	if !ok {
		return true
	}
	return now.Sub(last) >= c.window
}

// Accept records key as accepted at now.
func (c *Cooldown) Accept(key string, now time.Time) {
	c.last[key] = now
}

// Cleanup removes entries whose window has expired. Call periodically.
func (c *Cooldown) Cleanup(now time.Time) {
	removed := 0
	for key, ts := range c.last {
		if now.Sub(ts) >= c.window {
			delete(c.last, key)
			removed++
		}
	}
	if removed > 0 {
		c.log.Debug().Int("removed", removed).Int("remaining", len(c.last)).Msg("Expired cooldown entries removed")
	}
}

package coordinator

import (
	"context"

	"go.uber.org/zap"

	"github.com/anicoll/tibber-prices/internal/pkg/cachecheck"
)

// HandleMidnightTransition rotates tomorrow's prices into today at the
// local midnight boundary and follows up with a regular refresh cycle,
// all under the coordinator's serialization so a coinciding scheduled
// tick cannot interleave.
func (c *Coordinator) HandleMidnightTransition(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Info("midnight transition: rotating price data")

	rotated := cachecheck.Rotate(c.cache)
	c.tomorrowDataAvailable = false
	c.logger.Info("moved tomorrow prices to today",
		zap.Int("homes_with_tomorrow", rotated),
		zap.Int("total_homes", len(c.cache.PriceInfo)))

	if err := c.saveLocked(ctx); err != nil {
		return err
	}

	return c.refreshLocked(ctx)
}

package coordinator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// quarterMarks are the wall-clock minutes updates are aligned to.
var quarterMarks = [...]int{0, 15, 30, 45}

// NextQuarterHour returns the next quarter-hour boundary strictly after
// now. Past all four marks of the current hour the target rolls to minute
// zero of the next hour, with day rollover handled explicitly.
func NextQuarterHour(now time.Time) time.Time {
	nextMinute := -1
	for _, mark := range quarterMarks {
		if mark > now.Minute() {
			nextMinute = mark
			break
		}
	}

	hour := now.Hour()
	if nextMinute == -1 {
		nextMinute = quarterMarks[0]
		hour++
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), hour%24, nextMinute, 0, 0, now.Location())
	if hour >= 24 {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Run drives the recurring quarter-hour update loop until ctx is
// cancelled. Each iteration arms exactly one timer, so there is never
// more than one wake-up outstanding, and cancellation stops the pending
// timer before returning.
func (c *Coordinator) Run(ctx context.Context) error {
	for {
		now := c.now()
		next := NextQuarterHour(now)
		timer := time.NewTimer(next.Sub(now))
		c.logger.Debug("scheduled next update",
			zap.Time("at", next),
			zap.String("api_state", c.State().String()))

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if err := c.Refresh(ctx); err != nil {
			if errors.Is(err, ErrReauthenticationRequired) {
				return err
			}
			c.logger.Error("scheduled refresh failed", zap.Error(err))
		}
	}
}

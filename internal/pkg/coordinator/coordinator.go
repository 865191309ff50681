package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/tibber-prices/internal/pkg/cachecheck"
	"github.com/anicoll/tibber-prices/internal/pkg/model"
	"github.com/anicoll/tibber-prices/internal/pkg/tibber"
	"github.com/anicoll/tibber-prices/pkg/hasher"
)

var (
	// ErrReauthenticationRequired means the access token was rejected.
	// Not recoverable here; the operator has to reconfigure.
	ErrReauthenticationRequired = errors.New("coordinator: authentication failed, reconfiguration required")
	// ErrUpdateFailed is a retriable update failure. The cache keeps its
	// last known good contents.
	ErrUpdateFailed = errors.New("coordinator: update failed")
)

type apiClient interface {
	GetUserInfo(ctx context.Context) (*tibber.Viewer, error)
	GetPriceInfo(ctx context.Context) ([]tibber.ViewerHome, error)
	GetDailyPriceRating(ctx context.Context) ([]tibber.ViewerHome, error)
	GetHourlyPriceRating(ctx context.Context) ([]tibber.ViewerHome, error)
	GetMonthlyPriceRating(ctx context.Context) ([]tibber.ViewerHome, error)
}

// CacheStore persists the whole cache blob; Load returns nil on first run.
type CacheStore interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, blob []byte) error
}

// Coordinator owns the price cache for one installation and decides, tick
// by tick, whether the API gets called. All cache access is serialized by
// its mutex: scheduled ticks, midnight rotations and forced refreshes
// never interleave.
type Coordinator struct {
	client      apiClient
	store       CacheStore
	logger      *zap.Logger
	homeID      string
	offsetIndex int

	mu                    sync.Mutex
	cache                 *model.PriceCache
	lastFullUpdate        time.Time
	lastTomorrowCheck     time.Time
	tomorrowDataAvailable bool
	initialized           bool
	refreshRequested      bool

	now func() time.Time
}

func New(client apiClient, store CacheStore, homeID string) *Coordinator {
	c := &Coordinator{
		client:      client,
		store:       store,
		logger:      zap.L(),
		homeID:      homeID,
		offsetIndex: hasher.OffsetIndex(homeID, len(apiMinuteOffsets)),
		cache:       model.NewPriceCache(),
		now:         time.Now,
	}
	c.logger.Debug("using minute offset index for api distribution", zap.Int("offset_index", c.offsetIndex))
	return c
}

// Initialize loads the persisted cache, repairs day-boundary drift
// accumulated while the process was down and validates what remains. Any
// repair it decides on is executed by the next Refresh call, under the
// same serialization as every other cycle.
func (c *Coordinator) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Info("initializing price cache coordinator", zap.String("home_id", c.homeID))

	raw, err := c.store.Load(ctx)
	if err != nil {
		return err
	}
	if raw == nil {
		c.logger.Info("first run: no cached data found, will perform full initialization")
		c.initialized = true
		return nil
	}

	now := c.now()
	c.cache = c.decodeCache(raw)
	c.tomorrowDataAvailable = anyHomeHasTomorrow(c.cache)
	c.initialized = true

	c.logger.Info("restored cache from persistent storage",
		zap.Int("homes", len(c.cache.Homes)),
		zap.Int("price_info_records", len(c.cache.PriceInfo)),
		zap.Bool("tomorrow_data", c.tomorrowDataAvailable))

	if len(c.cache.PriceInfo) == 0 {
		return nil
	}

	check := cachecheck.MissedRotation(c.cache.PriceInfo, now)
	if !check.NeedsRotation {
		if c.validateCacheLocked(now) {
			c.refreshRequested = true
		}
		return nil
	}

	c.logger.Warn("missed midnight transition detected",
		zap.Int("outdated_homes", check.OutdatedHomes),
		zap.Int("total_homes", check.TotalHomes),
		zap.Float64("avg_days_old", check.AvgDaysOld),
		zap.Bool("severely_outdated", check.SeverelyOutdated))

	rotated := cachecheck.Rotate(c.cache)
	c.tomorrowDataAvailable = false
	c.logger.Info("completed missed midnight data rotation", zap.Int("homes_with_tomorrow", rotated))

	if err := c.saveLocked(ctx); err != nil {
		return err
	}
	if check.SeverelyOutdated {
		c.logger.Warn("data is severely outdated, requesting immediate refresh",
			zap.Float64("avg_days_old", check.AvgDaysOld))
		c.refreshRequested = true
	}
	return nil
}

// decodeCache turns a persisted blob into a usable cache, discarding it
// when the structure validator deems it unusable.
func (c *Coordinator) decodeCache(raw []byte) *model.PriceCache {
	structure := cachecheck.Structure(raw)
	if structure.NeedsFullRefresh {
		c.logger.Warn("persisted cache failed structure validation, discarding",
			zap.Strings("issues", structure.Issues()))
		return model.NewPriceCache()
	}
	if !structure.Valid {
		c.logger.Warn("persisted cache has structural issues", zap.Strings("issues", structure.Issues()))
	}

	cache := model.NewPriceCache()
	if err := json.Unmarshal(raw, cache); err != nil {
		c.logger.Warn("persisted cache failed to decode, discarding", zap.Error(err))
		return model.NewPriceCache()
	}
	normalize(cache)
	return cache
}

// Refresh runs one update cycle: decide whether to fetch, fetch and merge,
// validate, persist.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx)
}

// ForceRefresh bypasses the fetch decision for a manual trigger.
func (c *Coordinator) ForceRefresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshRequested = true
	return c.refreshLocked(ctx)
}

func (c *Coordinator) refreshLocked(ctx context.Context) error {
	if !c.initialized {
		c.logger.Debug("skipping refresh: coordinator not initialized yet")
		return nil
	}

	now := c.now()
	if !c.shouldFetchLocked(now) {
		c.logger.Debug("using cached data, no api call needed")
		if !c.validateCacheLocked(now) {
			return nil
		}
		// A validator asked for a repair; run it right away under the
		// serialization we already hold.
		c.logger.Info("cache validation requested a repair refresh")
		c.refreshRequested = true
	}

	return c.fetchCycleLocked(ctx, now)
}

// fetchCycleLocked performs the API calls for one cycle against a scratch
// copy of the cache. The live cache is only replaced when the whole cycle
// succeeds, so aborted cycles leave the last known good data in place.
func (c *Coordinator) fetchCycleLocked(ctx context.Context, now time.Time) error {
	state := c.stateLocked(now)
	c.logger.Info("starting api data update cycle",
		zap.String("api_state", state.String()),
		zap.String("time_window", timeWindow(now)))

	working, err := c.cache.Clone()
	if err != nil {
		return err
	}

	if err := c.fetchBasicData(ctx, working); err != nil {
		return c.cycleError(err)
	}

	homes, err := c.client.GetPriceInfo(ctx)
	if err != nil {
		return c.cycleError(err)
	}
	applyPriceInfo(working, homes)
	c.lastFullUpdate = now

	if err := c.fetchPriceRatings(ctx, state, working); err != nil {
		return c.cycleError(err)
	}

	if state == model.StateWaiting || state == model.StateSearching {
		if err := c.checkTomorrowData(ctx, state, working); err != nil {
			return c.cycleError(err)
		}
	}

	c.cache = working
	c.refreshRequested = false
	if err := c.saveLocked(ctx); err != nil {
		return err
	}

	if updated := c.stateLocked(c.now()); updated != state {
		c.logger.Info("api state transition after data update",
			zap.String("from", state.String()),
			zap.String("to", updated.String()))
	}
	c.logDataSummaryLocked()
	return nil
}

// cycleError maps an aborted cycle onto the error taxonomy. A rate limit
// is a soft success: the cached snapshot stays current and the next
// scheduled tick retries naturally.
func (c *Coordinator) cycleError(err error) error {
	switch {
	case errors.Is(err, tibber.ErrAuthentication):
		return fmt.Errorf("%w: %v", ErrReauthenticationRequired, err)
	case errors.Is(err, tibber.ErrRateLimit):
		c.logger.Warn("rate limit exceeded, keeping cached data", zap.Error(err))
		return nil
	default:
		return fmt.Errorf("%w: %v", ErrUpdateFailed, err)
	}
}

func (c *Coordinator) fetchBasicData(ctx context.Context, working *model.PriceCache) error {
	if working.UserInfo != nil && len(working.Homes) > 0 {
		return nil
	}
	c.logger.Info("fetching user info and homes from api")
	viewer, err := c.client.GetUserInfo(ctx)
	if err != nil {
		return err
	}
	applyUserInfo(working, viewer)
	c.logger.Info("initial user data loaded",
		zap.Int("homes", len(working.Homes)),
		zap.String("account_name", viewer.Name))
	return nil
}

// fetchPriceRatings fetches the daily rating every cycle, the hourly one
// during active states and the expensive monthly one only in the quiet
// idle state, unless either has never been cached.
func (c *Coordinator) fetchPriceRatings(ctx context.Context, state model.ApiState, working *model.PriceCache) error {
	daily, err := c.client.GetDailyPriceRating(ctx)
	if err != nil {
		return err
	}
	applyPriceRating(working, daily, ratingPeriodDaily)

	if state != model.StateIdle || !hasRatingPeriod(working, ratingPeriodHourly) {
		hourly, err := c.client.GetHourlyPriceRating(ctx)
		if err != nil {
			return err
		}
		applyPriceRating(working, hourly, ratingPeriodHourly)
	}

	if state == model.StateIdle || !hasRatingPeriod(working, ratingPeriodMonthly) {
		monthly, err := c.client.GetMonthlyPriceRating(ctx)
		if err != nil {
			return err
		}
		applyPriceRating(working, monthly, ratingPeriodMonthly)
	}

	return nil
}

// validateCacheLocked runs the validation pipeline in order: structure,
// staleness, completeness, per-home price data. Returns true when any of
// them wants a repair refresh. Validators never fail the caller.
func (c *Coordinator) validateCacheLocked(now time.Time) bool {
	if len(c.cache.PriceInfo) == 0 {
		return false
	}

	structure := cachecheck.CacheStructure(c.cache)
	if !structure.Valid {
		c.logger.Warn("cache structure validation detected issues", zap.Strings("issues", structure.Issues()))
		if structure.NeedsFullRefresh {
			return true
		}
	}

	if !c.lastFullUpdate.IsZero() {
		if stale := cachecheck.Stale(c.lastFullUpdate, now); stale.IsStale {
			c.logger.Warn("cache data is stale", zap.String("reason", stale.Reason))
			if stale.NeedsRefresh {
				return true
			}
		}
	}

	vc := cachecheck.NewContext(now)

	completeness := cachecheck.Completeness(c.cache.PriceInfo, vc)
	if !completeness.Complete {
		c.logger.Warn("cache completeness check failed",
			zap.Int("homes_with_incomplete_data", completeness.HomesWithIncompleteData),
			zap.Int("homes_with_missing_today", completeness.HomesWithMissingToday),
			zap.Int("homes_with_missing_tomorrow", completeness.HomesWithMissingTomorrow),
			zap.Int("total_homes", completeness.TotalHomes),
			zap.Strings("missing_hour_ranges", completeness.MissingHourRanges),
			zap.Ints("critical_missing_hours", completeness.CriticalMissingHours))
		if completeness.NeedsRefresh {
			return true
		}
	}

	priceData := cachecheck.PriceData(c.cache.PriceInfo, vc)
	if !priceData.Valid {
		c.logger.Warn("cache price data validation failed",
			zap.Int("homes_with_issues", priceData.HomesWithIssues),
			zap.Int("total_homes", priceData.TotalHomes),
			zap.Strings("issues", priceData.Issues))
		return true
	}

	c.logger.Debug("cache data validation successful")
	return false
}

func (c *Coordinator) saveLocked(ctx context.Context) error {
	blob, err := json.Marshal(c.cache)
	if err != nil {
		return err
	}
	if err := c.store.Save(ctx, blob); err != nil {
		return err
	}

	todayPoints, tomorrowPoints := 0, 0
	for _, info := range c.cache.PriceInfo {
		todayPoints += len(info.Today)
		tomorrowPoints += len(info.Tomorrow)
	}
	c.logger.Info("cache persisted",
		zap.Int("homes", len(c.cache.Homes)),
		zap.Int("price_info_records", len(c.cache.PriceInfo)),
		zap.Int("today_prices", todayPoints),
		zap.Int("tomorrow_prices", tomorrowPoints))
	return nil
}

// Snapshot returns the current cache contents as JSON.
func (c *Coordinator) Snapshot() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return json.Marshal(c.cache)
}

func (c *Coordinator) logDataSummaryLocked() {
	homesWithToday, homesWithTomorrow := 0, 0
	for _, info := range c.cache.PriceInfo {
		if len(info.Today) > 0 {
			homesWithToday++
		}
		if len(info.Tomorrow) > 0 {
			homesWithTomorrow++
		}
	}
	c.logger.Info("data update summary",
		zap.Int("homes", len(c.cache.Homes)),
		zap.Int("homes_with_today", homesWithToday),
		zap.Int("homes_with_tomorrow", homesWithTomorrow),
		zap.Int("rating_records", len(c.cache.PriceRating)))
}

func normalize(cache *model.PriceCache) {
	for _, info := range cache.PriceInfo {
		if info == nil {
			continue
		}
		if info.Today == nil {
			info.Today = []model.PricePoint{}
		}
		if info.Tomorrow == nil {
			info.Tomorrow = []model.PricePoint{}
		}
	}
}

// anyHomeHasTomorrow is the coarse startup check: it only looks for a
// non-empty tomorrow series, the date-accurate recomputation happens on
// the first tomorrow-check cycle.
func anyHomeHasTomorrow(cache *model.PriceCache) bool {
	for _, info := range cache.PriceInfo {
		if info != nil && len(info.Tomorrow) > 0 {
			return true
		}
	}
	return false
}

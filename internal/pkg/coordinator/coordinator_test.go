package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/anicoll/tibber-prices/internal/pkg/model"
	"github.com/anicoll/tibber-prices/internal/pkg/tibber"
)

// MockApiClient is a mock implementation of apiClient.
type MockApiClient struct {
	GetUserInfoFunc           func(ctx context.Context) (*tibber.Viewer, error)
	GetPriceInfoFunc          func(ctx context.Context) ([]tibber.ViewerHome, error)
	GetDailyPriceRatingFunc   func(ctx context.Context) ([]tibber.ViewerHome, error)
	GetHourlyPriceRatingFunc  func(ctx context.Context) ([]tibber.ViewerHome, error)
	GetMonthlyPriceRatingFunc func(ctx context.Context) ([]tibber.ViewerHome, error)

	UserInfoCalls  int
	PriceInfoCalls int
	DailyCalls     int
	HourlyCalls    int
	MonthlyCalls   int
}

func (m *MockApiClient) GetUserInfo(ctx context.Context) (*tibber.Viewer, error) {
	m.UserInfoCalls++
	if m.GetUserInfoFunc != nil {
		return m.GetUserInfoFunc(ctx)
	}
	return &tibber.Viewer{}, nil
}

func (m *MockApiClient) GetPriceInfo(ctx context.Context) ([]tibber.ViewerHome, error) {
	m.PriceInfoCalls++
	if m.GetPriceInfoFunc != nil {
		return m.GetPriceInfoFunc(ctx)
	}
	return nil, nil
}

func (m *MockApiClient) GetDailyPriceRating(ctx context.Context) ([]tibber.ViewerHome, error) {
	m.DailyCalls++
	if m.GetDailyPriceRatingFunc != nil {
		return m.GetDailyPriceRatingFunc(ctx)
	}
	return nil, nil
}

func (m *MockApiClient) GetHourlyPriceRating(ctx context.Context) ([]tibber.ViewerHome, error) {
	m.HourlyCalls++
	if m.GetHourlyPriceRatingFunc != nil {
		return m.GetHourlyPriceRatingFunc(ctx)
	}
	return nil, nil
}

func (m *MockApiClient) GetMonthlyPriceRating(ctx context.Context) ([]tibber.ViewerHome, error) {
	m.MonthlyCalls++
	if m.GetMonthlyPriceRatingFunc != nil {
		return m.GetMonthlyPriceRatingFunc(ctx)
	}
	return nil, nil
}

func (m *MockApiClient) totalCalls() int {
	return m.UserInfoCalls + m.PriceInfoCalls + m.DailyCalls + m.HourlyCalls + m.MonthlyCalls
}

// MockStore is an in-memory CacheStore.
type MockStore struct {
	LoadFunc func(ctx context.Context) ([]byte, error)
	SaveFunc func(ctx context.Context, blob []byte) error

	blob      []byte
	SaveCalls int
}

func (m *MockStore) Load(ctx context.Context) ([]byte, error) {
	if m.LoadFunc != nil {
		return m.LoadFunc(ctx)
	}
	return m.blob, nil
}

func (m *MockStore) Save(ctx context.Context, blob []byte) error {
	m.SaveCalls++
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, blob)
	}
	m.blob = blob
	return nil
}

func newTestCoordinator(t *testing.T, client *MockApiClient, store *MockStore, now time.Time) *Coordinator {
	t.Helper()
	originalLogger := zap.L()
	zap.ReplaceGlobals(zaptest.NewLogger(t))
	t.Cleanup(func() {
		zap.ReplaceGlobals(originalLogger)
	})

	c := New(client, store, "home-a")
	c.now = func() time.Time { return now }
	return c
}

// hourlyPoints builds count consecutive hourly price points starting at
// start, with valid totals.
func hourlyPoints(start time.Time, count int) []model.PricePoint {
	points := make([]model.PricePoint, 0, count)
	for i := 0; i < count; i++ {
		points = append(points, model.PricePoint{
			StartsAt: start.Add(time.Duration(i) * time.Hour),
			Total:    model.AmountFromFloat(0.25),
			Energy:   model.AmountFromFloat(0.18),
			Tax:      model.AmountFromFloat(0.07),
			Level:    model.PriceLevelNormal,
		})
	}
	return points
}

func viewerHomes(priceInfo *tibber.PriceInfoPayload) []tibber.ViewerHome {
	return []tibber.ViewerHome{{
		ID:          "home-a",
		Type:        "HOUSE",
		AppNickname: "Main house",
		CurrentSubscription: &tibber.Subscription{
			PriceInfo: priceInfo,
		},
	}}
}

func cacheBlob(t *testing.T, cache *model.PriceCache) []byte {
	t.Helper()
	blob, err := json.Marshal(cache)
	require.NoError(t, err)
	return blob
}

func TestInitialize_FirstRun(t *testing.T) {
	now := time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)
	c := newTestCoordinator(t, &MockApiClient{}, &MockStore{}, now)

	require.NoError(t, c.Initialize(context.Background()))

	assert.True(t, c.initialized)
	assert.False(t, c.refreshRequested)
	assert.True(t, c.cache.Empty())
}

func TestInitialize_CorruptBlobIsDiscarded(t *testing.T) {
	now := time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)
	store := &MockStore{blob: []byte(`{"userInfo": "broken"`)}
	c := newTestCoordinator(t, &MockApiClient{}, store, now)

	require.NoError(t, c.Initialize(context.Background()))

	assert.True(t, c.initialized)
	assert.True(t, c.cache.Empty())
}

func TestInitialize_MissedRotation(t *testing.T) {
	now := time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC)
	yesterday := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	today := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	cache := model.NewPriceCache()
	cache.UserInfo = &model.UserInfo{UserID: "u1"}
	cache.Homes["home-a"] = model.Home{ID: "home-a"}
	cache.PriceInfo["home-a"] = &model.HomePriceInfo{
		Today:    hourlyPoints(yesterday, 24),
		Tomorrow: hourlyPoints(today, 24),
	}

	store := &MockStore{blob: cacheBlob(t, cache)}
	c := newTestCoordinator(t, &MockApiClient{}, store, now)

	require.NoError(t, c.Initialize(context.Background()))

	// Yesterday's tomorrow became today, and the repaired cache was
	// persisted. One day behind is not severe, so no refresh is forced.
	info := c.cache.PriceInfo["home-a"]
	require.Len(t, info.Today, 24)
	assert.Equal(t, today, info.Today[0].StartsAt)
	assert.Empty(t, info.Tomorrow)
	assert.False(t, c.tomorrowDataAvailable)
	assert.Equal(t, 1, store.SaveCalls)
	assert.False(t, c.refreshRequested)
}

func TestInitialize_SeverelyOutdatedRequestsRefresh(t *testing.T) {
	now := time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC)
	old := time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC)

	cache := model.NewPriceCache()
	cache.UserInfo = &model.UserInfo{UserID: "u1"}
	cache.Homes["home-a"] = model.Home{ID: "home-a"}
	cache.PriceInfo["home-a"] = &model.HomePriceInfo{Today: hourlyPoints(old, 24)}

	store := &MockStore{blob: cacheBlob(t, cache)}
	c := newTestCoordinator(t, &MockApiClient{}, store, now)

	require.NoError(t, c.Initialize(context.Background()))

	assert.True(t, c.refreshRequested)
	assert.Empty(t, c.cache.PriceInfo["home-a"].Today)
}

func TestState_Derivation(t *testing.T) {
	morning := time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)
	c := newTestCoordinator(t, &MockApiClient{}, &MockStore{}, morning)
	c.initialized = true

	// Missing basics force a search whatever the time is.
	assert.Equal(t, model.StateSearching, c.State())

	midnight := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	c.cache.UserInfo = &model.UserInfo{UserID: "u1"}
	c.cache.Homes["home-a"] = model.Home{ID: "home-a"}
	c.cache.PriceInfo["home-a"] = &model.HomePriceInfo{Today: hourlyPoints(midnight, 24)}

	// With today's data present the clock decides.
	assert.Equal(t, model.StateIdle, c.State())

	c.now = func() time.Time { return time.Date(2024, 6, 15, 14, 0, 0, 0, time.UTC) }
	assert.Equal(t, model.StateWaiting, c.State())

	c.now = func() time.Time { return time.Date(2024, 6, 15, 16, 0, 0, 0, time.UTC) }
	assert.Equal(t, model.StateSearching, c.State())

	// Tomorrow's data trumps the clock.
	c.tomorrowDataAvailable = true
	assert.Equal(t, model.StateIdle, c.State())
}

func TestRefresh_FirstCyclePopulatesCache(t *testing.T) {
	now := time.Date(2024, 6, 15, 16, 0, 0, 0, time.UTC)
	todayStart := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	tomorrowStart := todayStart.AddDate(0, 0, 1)

	client := &MockApiClient{
		GetUserInfoFunc: func(ctx context.Context) (*tibber.Viewer, error) {
			return &tibber.Viewer{
				UserID: "u1",
				Name:   "Test User",
				Homes:  viewerHomes(nil),
			}, nil
		},
		GetPriceInfoFunc: func(ctx context.Context) ([]tibber.ViewerHome, error) {
			return viewerHomes(&tibber.PriceInfoPayload{
				Today:    hourlyPoints(todayStart, 24),
				Tomorrow: hourlyPoints(tomorrowStart, 24),
			}), nil
		},
	}
	store := &MockStore{}
	c := newTestCoordinator(t, client, store, now)
	require.NoError(t, c.Initialize(context.Background()))

	require.NoError(t, c.Refresh(context.Background()))

	assert.Equal(t, 1, client.UserInfoCalls)
	assert.Equal(t, 1, client.PriceInfoCalls)
	assert.Equal(t, 1, client.DailyCalls)
	assert.Equal(t, 1, client.HourlyCalls)
	assert.Equal(t, 1, client.MonthlyCalls)

	assert.Equal(t, "u1", c.cache.UserInfo.UserID)
	assert.Contains(t, c.cache.Homes, "home-a")
	require.Contains(t, c.cache.PriceInfo, "home-a")
	assert.Len(t, c.cache.PriceInfo["home-a"].Today, 24)
	assert.Len(t, c.cache.PriceInfo["home-a"].Tomorrow, 24)
	assert.True(t, c.tomorrowDataAvailable)
	assert.Equal(t, model.StateIdle, c.State())
	assert.Equal(t, 1, store.SaveCalls)
	assert.Equal(t, now, c.lastFullUpdate)
}

func TestRefresh_IdleMakesNoAPICalls(t *testing.T) {
	now := time.Date(2024, 6, 15, 16, 5, 0, 0, time.UTC)
	todayStart := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	client := &MockApiClient{}
	c := newTestCoordinator(t, client, &MockStore{}, now)
	c.initialized = true
	c.tomorrowDataAvailable = true
	c.lastFullUpdate = now.Add(-2 * time.Minute)
	c.cache.UserInfo = &model.UserInfo{UserID: "u1"}
	c.cache.Homes["home-a"] = model.Home{ID: "home-a"}
	c.cache.PriceInfo["home-a"] = &model.HomePriceInfo{
		Today:    hourlyPoints(todayStart, 24),
		Tomorrow: hourlyPoints(todayStart.AddDate(0, 0, 1), 24),
	}

	require.NoError(t, c.Refresh(context.Background()))

	assert.Zero(t, client.totalCalls())
}

func TestRefresh_RepairAfterCorruptCurrentHour(t *testing.T) {
	now := time.Date(2024, 6, 15, 16, 5, 0, 0, time.UTC)
	todayStart := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	goodToday := hourlyPoints(todayStart, 24)

	client := &MockApiClient{
		GetPriceInfoFunc: func(ctx context.Context) ([]tibber.ViewerHome, error) {
			return viewerHomes(&tibber.PriceInfoPayload{
				Today:    goodToday,
				Tomorrow: hourlyPoints(todayStart.AddDate(0, 0, 1), 24),
			}), nil
		},
	}
	c := newTestCoordinator(t, client, &MockStore{}, now)
	c.initialized = true
	c.tomorrowDataAvailable = true
	c.lastFullUpdate = now.Add(-2 * time.Minute)
	c.cache.UserInfo = &model.UserInfo{UserID: "u1"}
	c.cache.Homes["home-a"] = model.Home{ID: "home-a"}

	corrupt := hourlyPoints(todayStart, 24)
	corrupt[16].Total = model.Amount{}
	c.cache.PriceInfo["home-a"] = &model.HomePriceInfo{
		Today:    corrupt,
		Tomorrow: hourlyPoints(todayStart.AddDate(0, 0, 1), 24),
	}

	// Idle would normally skip the fetch, but the corrupt current hour
	// makes validation request a repair cycle.
	require.NoError(t, c.Refresh(context.Background()))

	assert.Equal(t, 1, client.PriceInfoCalls)
	assert.True(t, c.cache.PriceInfo["home-a"].Today[16].Total.Valid)
	assert.False(t, c.refreshRequested)
}

func TestRefresh_AuthenticationFailure(t *testing.T) {
	now := time.Date(2024, 6, 15, 16, 0, 0, 0, time.UTC)
	client := &MockApiClient{
		GetUserInfoFunc: func(ctx context.Context) (*tibber.Viewer, error) {
			return nil, tibber.ErrAuthentication
		},
	}
	c := newTestCoordinator(t, client, &MockStore{}, now)
	c.initialized = true

	err := c.Refresh(context.Background())

	assert.ErrorIs(t, err, ErrReauthenticationRequired)
}

func TestRefresh_RateLimitKeepsCachedData(t *testing.T) {
	now := time.Date(2024, 6, 15, 16, 5, 0, 0, time.UTC)
	todayStart := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	yesterdayStart := todayStart.AddDate(0, 0, -1)

	client := &MockApiClient{
		GetPriceInfoFunc: func(ctx context.Context) ([]tibber.ViewerHome, error) {
			return nil, tibber.ErrRateLimit
		},
	}
	store := &MockStore{}
	c := newTestCoordinator(t, client, store, now)
	c.initialized = true
	c.cache.UserInfo = &model.UserInfo{UserID: "u1"}
	c.cache.Homes["home-a"] = model.Home{ID: "home-a"}
	c.cache.PriceInfo["home-a"] = &model.HomePriceInfo{Today: hourlyPoints(yesterdayStart, 24)}

	// Outdated data triggers a fetch; the rate limit aborts it as a soft
	// success and the cache keeps its previous contents.
	require.NoError(t, c.Refresh(context.Background()))

	assert.Equal(t, yesterdayStart, c.cache.PriceInfo["home-a"].Today[0].StartsAt)
	assert.Zero(t, store.SaveCalls)
}

func TestRefresh_FailedCycleLeavesCacheUntouched(t *testing.T) {
	now := time.Date(2024, 6, 15, 16, 0, 0, 0, time.UTC)
	client := &MockApiClient{
		GetPriceInfoFunc: func(ctx context.Context) ([]tibber.ViewerHome, error) {
			return nil, errors.New("boom")
		},
		GetUserInfoFunc: func(ctx context.Context) (*tibber.Viewer, error) {
			return &tibber.Viewer{UserID: "u1", Homes: viewerHomes(nil)}, nil
		},
	}
	c := newTestCoordinator(t, client, &MockStore{}, now)
	c.initialized = true

	err := c.Refresh(context.Background())

	assert.ErrorIs(t, err, ErrUpdateFailed)
	// The user info fetched mid-cycle is gone with the scratch copy.
	assert.Nil(t, c.cache.UserInfo)
}

func TestForceRefresh_BypassesIdle(t *testing.T) {
	now := time.Date(2024, 6, 15, 16, 5, 0, 0, time.UTC)
	todayStart := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	client := &MockApiClient{
		GetPriceInfoFunc: func(ctx context.Context) ([]tibber.ViewerHome, error) {
			return viewerHomes(&tibber.PriceInfoPayload{
				Today:    hourlyPoints(todayStart, 24),
				Tomorrow: hourlyPoints(todayStart.AddDate(0, 0, 1), 24),
			}), nil
		},
	}
	c := newTestCoordinator(t, client, &MockStore{}, now)
	c.initialized = true
	c.tomorrowDataAvailable = true
	c.lastFullUpdate = now.Add(-2 * time.Minute)
	c.cache.UserInfo = &model.UserInfo{UserID: "u1"}
	c.cache.Homes["home-a"] = model.Home{ID: "home-a"}
	c.cache.PriceInfo["home-a"] = &model.HomePriceInfo{
		Today:    hourlyPoints(todayStart, 24),
		Tomorrow: hourlyPoints(todayStart.AddDate(0, 0, 1), 24),
	}

	require.NoError(t, c.ForceRefresh(context.Background()))

	assert.Equal(t, 1, client.PriceInfoCalls)
	assert.False(t, c.refreshRequested)
}

func TestHandleMidnightTransition(t *testing.T) {
	now := time.Date(2024, 6, 16, 0, 5, 0, 0, time.UTC)
	oldToday := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	newToday := time.Date(2024, 6, 16, 0, 0, 0, 0, time.UTC)

	client := &MockApiClient{}
	store := &MockStore{}
	c := newTestCoordinator(t, client, store, now)
	c.initialized = true
	c.tomorrowDataAvailable = true
	c.cache.UserInfo = &model.UserInfo{UserID: "u1"}
	c.cache.Homes["home-a"] = model.Home{ID: "home-a"}
	c.cache.PriceInfo["home-a"] = &model.HomePriceInfo{
		Today:    hourlyPoints(oldToday, 24),
		Tomorrow: hourlyPoints(newToday, 24),
	}

	require.NoError(t, c.HandleMidnightTransition(context.Background()))

	info := c.cache.PriceInfo["home-a"]
	assert.Equal(t, newToday, info.Today[0].StartsAt)
	assert.Empty(t, info.Tomorrow)
	assert.False(t, c.tomorrowDataAvailable)
	assert.Equal(t, 1, store.SaveCalls)
	// Just after midnight the rotated data is current; no fetch needed.
	assert.Zero(t, client.totalCalls())
}

func TestShouldFetch_WaitingStateSlot(t *testing.T) {
	todayStart := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	c := newTestCoordinator(t, &MockApiClient{}, &MockStore{}, todayStart)
	c.initialized = true
	c.offsetIndex = 0 // slot minute 0
	c.cache.UserInfo = &model.UserInfo{UserID: "u1"}
	c.cache.Homes["home-a"] = model.Home{ID: "home-a"}
	c.cache.PriceInfo["home-a"] = &model.HomePriceInfo{Today: hourlyPoints(todayStart, 24)}

	// 14:00 is this installation's slot.
	assert.True(t, c.shouldFetchLocked(time.Date(2024, 6, 15, 14, 0, 0, 0, time.UTC)))
	// Off-slot minutes are skipped.
	assert.False(t, c.shouldFetchLocked(time.Date(2024, 6, 15, 14, 7, 0, 0, time.UTC)))
	// A recent tomorrow check suppresses the slot.
	c.lastTomorrowCheck = time.Date(2024, 6, 15, 13, 50, 0, 0, time.UTC)
	assert.False(t, c.shouldFetchLocked(time.Date(2024, 6, 15, 14, 0, 0, 0, time.UTC)))
}

func TestShouldFetch_SearchingStateInterval(t *testing.T) {
	todayStart := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	c := newTestCoordinator(t, &MockApiClient{}, &MockStore{}, todayStart)
	c.initialized = true
	c.cache.UserInfo = &model.UserInfo{UserID: "u1"}
	c.cache.Homes["home-a"] = model.Home{ID: "home-a"}
	c.cache.PriceInfo["home-a"] = &model.HomePriceInfo{Today: hourlyPoints(todayStart, 24)}

	now := time.Date(2024, 6, 15, 16, 0, 0, 0, time.UTC)
	assert.True(t, c.shouldFetchLocked(now))

	c.lastTomorrowCheck = now.Add(-2 * time.Minute)
	assert.False(t, c.shouldFetchLocked(now))

	c.lastTomorrowCheck = now.Add(-6 * time.Minute)
	assert.True(t, c.shouldFetchLocked(now))
}

func TestSnapshot(t *testing.T) {
	now := time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)
	c := newTestCoordinator(t, &MockApiClient{}, &MockStore{}, now)
	c.cache.UserInfo = &model.UserInfo{UserID: "u1"}

	blob, err := c.Snapshot()
	require.NoError(t, err)

	var decoded model.PriceCache
	require.NoError(t, json.Unmarshal(blob, &decoded))
	assert.Equal(t, "u1", decoded.UserInfo.UserID)
}

package tibber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/tibber-prices/internal/pkg/config"
	"github.com/anicoll/tibber-prices/internal/pkg/model"
)

const (
	DefaultEndpoint = "https://api.tibber.com/v1-beta/gql"

	defaultTimeout = 10 * time.Second
	maxRetries     = 3
	retryDelay     = time.Second
)

// Viewer is the account identity returned by the user info query.
type Viewer struct {
	UserID string       `json:"userId"`
	Name   string       `json:"name"`
	Login  string       `json:"login"`
	Homes  []ViewerHome `json:"homes"`
}

type ViewerHome struct {
	ID                  string         `json:"id"`
	Type                string         `json:"type"`
	AppNickname         string         `json:"appNickname"`
	Address             *model.Address `json:"address"`
	CurrentSubscription *Subscription  `json:"currentSubscription"`
}

type Subscription struct {
	PriceInfo   *PriceInfoPayload   `json:"priceInfo"`
	PriceRating *PriceRatingPayload `json:"priceRating"`
}

type PriceInfoPayload struct {
	Range    *RangeConnection   `json:"range"`
	Today    []model.PricePoint `json:"today"`
	Tomorrow []model.PricePoint `json:"tomorrow"`
}

type RangeConnection struct {
	Edges []RangeEdge `json:"edges"`
}

type RangeEdge struct {
	Node model.PricePoint `json:"node"`
}

type PriceRatingPayload struct {
	ThresholdPercentages *model.RatingThresholds `json:"thresholdPercentages"`
	Hourly               *model.RatingPeriod     `json:"hourly"`
	Daily                *model.RatingPeriod     `json:"daily"`
	Monthly              *model.RatingPeriod     `json:"monthly"`
}

type Client struct {
	httpClient *http.Client
	endpoint   string
	token      string
	logger     *zap.Logger
	retries    int
	retryDelay time.Duration
}

func New(cfg *config.TibberConfig) *Client {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   endpoint,
		token:      cfg.AccessToken,
		logger:     zap.L(),
		retries:    maxRetries,
		retryDelay: retryDelay,
	}
}

// GetUserInfo fetches the account identity and the list of homes.
func (c *Client) GetUserInfo(ctx context.Context) (*Viewer, error) {
	viewer, err := c.execute(ctx, userInfoQuery, "user info query")
	if err != nil {
		return nil, err
	}
	return viewer, nil
}

// GetPriceInfo fetches today/tomorrow/range prices for all homes.
func (c *Client) GetPriceInfo(ctx context.Context) ([]ViewerHome, error) {
	return c.queryHomes(ctx, priceInfoQuery, "price info query")
}

func (c *Client) GetDailyPriceRating(ctx context.Context) ([]ViewerHome, error) {
	return c.queryHomes(ctx, dailyPriceRatingQuery, "daily price rating query")
}

func (c *Client) GetHourlyPriceRating(ctx context.Context) ([]ViewerHome, error) {
	return c.queryHomes(ctx, hourlyPriceRatingQuery, "hourly price rating query")
}

func (c *Client) GetMonthlyPriceRating(ctx context.Context) ([]ViewerHome, error) {
	return c.queryHomes(ctx, monthlyPriceRatingQuery, "monthly price rating query")
}

func (c *Client) queryHomes(ctx context.Context, query, label string) ([]ViewerHome, error) {
	viewer, err := c.execute(ctx, query, label)
	if err != nil {
		return nil, err
	}
	return viewer.Homes, nil
}

// execute runs one GraphQL query with retries: exponential backoff on rate
// limits, linear on communication errors, none on authentication failures.
func (c *Client) execute(ctx context.Context, query, label string) (*Viewer, error) {
	c.logger.Debug("executing graphql query", zap.String("query", label))

	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		viewer, err := c.post(ctx, query)
		if err == nil {
			return viewer, nil
		}

		var wait time.Duration
		switch {
		case errors.Is(err, ErrAuthentication):
			return nil, err
		case errors.Is(err, ErrRateLimit):
			wait = c.retryDelay * (1 << attempt)
			c.logger.Warn("rate limit exceeded, backing off",
				zap.String("query", label),
				zap.Duration("wait", wait),
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", c.retries))
		case errors.Is(err, ErrCommunication):
			wait = c.retryDelay * time.Duration(attempt+1)
			c.logger.Warn("communication error, retrying",
				zap.String("query", label),
				zap.Duration("wait", wait),
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", c.retries),
				zap.Error(err))
		default:
			return nil, err
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	return nil, fmt.Errorf("tibber: %s failed after %d attempts: %w", label, c.retries, lastErr)
}

type graphqlRequest struct {
	Query string `json:"query"`
}

type graphqlResponse struct {
	Data struct {
		Viewer Viewer `json:"viewer"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Client) post(ctx context.Context, query string) (*Viewer, error) {
	body, err := json.Marshal(graphqlRequest{Query: query})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCommunication, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrAuthentication
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimit
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrCommunication, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("tibber: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCommunication, err)
	}

	response := graphqlResponse{}
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("tibber: malformed response: %w", err)
	}
	if len(response.Errors) > 0 {
		return nil, fmt.Errorf("tibber: graphql query error: %s", response.Errors[0].Message)
	}

	return &response.Data.Viewer, nil
}

package model

import (
	"encoding/json"
	"time"
)

// PriceCache is the persisted source of truth for one installation. It is
// owned by the coordinator; validators and the rotator receive it by
// reference and mutate it under the coordinator's lock.
type PriceCache struct {
	UserInfo    *UserInfo                   `json:"userInfo,omitempty"`
	Homes       map[string]Home             `json:"homes,omitempty"`
	PriceInfo   map[string]*HomePriceInfo   `json:"priceInfo,omitempty"`
	PriceRating map[string]*HomePriceRating `json:"priceRating,omitempty"`
}

func NewPriceCache() *PriceCache {
	return &PriceCache{
		Homes:       map[string]Home{},
		PriceInfo:   map[string]*HomePriceInfo{},
		PriceRating: map[string]*HomePriceRating{},
	}
}

func (c *PriceCache) Empty() bool {
	return c == nil || (c.UserInfo == nil && len(c.Homes) == 0 && len(c.PriceInfo) == 0 && len(c.PriceRating) == 0)
}

// Clone deep-copies the cache via a JSON round trip so a fetch cycle can
// work on a scratch copy and leave the live cache untouched on failure.
func (c *PriceCache) Clone() (*PriceCache, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	clone := &PriceCache{}
	if err := json.Unmarshal(data, clone); err != nil {
		return nil, err
	}
	if clone.Homes == nil {
		clone.Homes = map[string]Home{}
	}
	if clone.PriceInfo == nil {
		clone.PriceInfo = map[string]*HomePriceInfo{}
	}
	if clone.PriceRating == nil {
		clone.PriceRating = map[string]*HomePriceRating{}
	}
	return clone, nil
}

type UserInfo struct {
	UserID string `json:"userId,omitempty"`
	Name   string `json:"name,omitempty"`
	Login  string `json:"login,omitempty"`
}

type Home struct {
	ID          string   `json:"id"`
	Type        string   `json:"type,omitempty"`
	AppNickname string   `json:"appNickname,omitempty"`
	Address     *Address `json:"address,omitempty"`
}

type Address struct {
	Address1   string `json:"address1,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	City       string `json:"city,omitempty"`
	Country    string `json:"country,omitempty"`
}

// HomePriceInfo holds the hourly price series for one home. Today and
// Tomorrow are always slices; absent data is an empty slice, never an error.
type HomePriceInfo struct {
	Today       []PricePoint `json:"today"`
	Tomorrow    []PricePoint `json:"tomorrow"`
	RangePrices []PricePoint `json:"rangePrices,omitempty"`
}

type PricePoint struct {
	StartsAt time.Time  `json:"startsAt"`
	Total    Amount     `json:"total"`
	Energy   Amount     `json:"energy"`
	Tax      Amount     `json:"tax"`
	Level    PriceLevel `json:"level"`
}

type HomePriceRating struct {
	Thresholds *RatingThresholds `json:"thresholds,omitempty"`
	Hourly     *RatingPeriod     `json:"hourly,omitempty"`
	Daily      *RatingPeriod     `json:"daily,omitempty"`
	Monthly    *RatingPeriod     `json:"monthly,omitempty"`
}

type RatingThresholds struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

type RatingPeriod struct {
	Currency string        `json:"currency,omitempty"`
	Entries  []RatingEntry `json:"entries"`
}

type RatingEntry struct {
	Time       time.Time   `json:"time"`
	Total      Amount      `json:"total"`
	Energy     Amount      `json:"energy"`
	Tax        Amount      `json:"tax"`
	Difference Amount      `json:"difference"`
	Level      RatingLevel `json:"level"`
}

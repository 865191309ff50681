package model

import "encoding/json"

// ApiState describes the fetch strategy currently in effect.
type ApiState string

func (s ApiState) String() string {
	return string(s)
}

const (
	// StateIdle means no API calls are needed: either tomorrow's data is
	// already cached or it is too early in the day for it to exist.
	StateIdle ApiState = "idle"
	// StateWaiting covers 13:00-15:00 local time, when tomorrow's prices
	// are checked periodically at a distributed minute slot.
	StateWaiting ApiState = "waiting"
	// StateSearching covers 15:00-00:00, or any time basic data is missing.
	StateSearching ApiState = "searching"
)

type PriceLevel string

const (
	PriceLevelVeryCheap     PriceLevel = "VERY_CHEAP"
	PriceLevelCheap         PriceLevel = "CHEAP"
	PriceLevelNormal        PriceLevel = "NORMAL"
	PriceLevelExpensive     PriceLevel = "EXPENSIVE"
	PriceLevelVeryExpensive PriceLevel = "VERY_EXPENSIVE"
	PriceLevelUnknown       PriceLevel = "UNKNOWN"
)

func (l PriceLevel) String() string {
	return string(l)
}

// UnmarshalJSON maps unrecognised level strings onto PriceLevelUnknown
// instead of failing the whole cache or API response decode.
func (l *PriceLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*l = PriceLevelUnknown
		return nil
	}
	switch PriceLevel(s) {
	case PriceLevelVeryCheap, PriceLevelCheap, PriceLevelNormal, PriceLevelExpensive, PriceLevelVeryExpensive:
		*l = PriceLevel(s)
	default:
		*l = PriceLevelUnknown
	}
	return nil
}

type RatingLevel string

const (
	RatingLevelLow     RatingLevel = "LOW"
	RatingLevelNormal  RatingLevel = "NORMAL"
	RatingLevelHigh    RatingLevel = "HIGH"
	RatingLevelUnknown RatingLevel = "UNKNOWN"
)

func (l RatingLevel) String() string {
	return string(l)
}

func (l *RatingLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*l = RatingLevelUnknown
		return nil
	}
	switch RatingLevel(s) {
	case RatingLevelLow, RatingLevelNormal, RatingLevelHigh:
		*l = RatingLevel(s)
	default:
		*l = RatingLevelUnknown
	}
	return nil
}

package model

import (
	"bytes"

	"github.com/shopspring/decimal"
)

// Amount is a monetary figure as reported by the API. A value that cannot
// be parsed as a number decodes as invalid rather than aborting the decode,
// so validators can flag the corrupt entry and request a repair refresh.
type Amount struct {
	Decimal decimal.Decimal
	Valid   bool
}

func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d, Valid: true}
}

func AmountFromFloat(f float64) Amount {
	return NewAmount(decimal.NewFromFloat(f))
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.Valid {
		return []byte("null"), nil
	}
	return a.Decimal.MarshalJSON()
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		a.Valid = false
		return nil
	}
	if err := a.Decimal.UnmarshalJSON(data); err != nil {
		a.Valid = false
		return nil
	}
	a.Valid = true
	return nil
}

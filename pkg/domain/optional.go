package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Optional is a float that may be absent. Bound parameters are carried as
// Optional so that a missing entry means "no bound" rather than zero.
type Optional struct {
	Value float64
	Valid bool
}

// Some wraps a present value.
func Some(v float64) Optional { return Optional{Value: v, Valid: true} }

// None is the absent value.
func None() Optional { return Optional{} }

// Get returns the value and whether it is present.
func (o Optional) Get() (float64, bool) { return o.Value, o.Valid }

// Or returns the value when present and def otherwise.
func (o Optional) Or(def float64) float64 {
	if o.Valid {
		return o.Value
	}
	return def
}

// Finite reports whether the optional holds a finite number.
func (o Optional) Finite() bool {
	return o.Valid && !math.IsNaN(o.Value) && !math.IsInf(o.Value, 0)
}

func (o Optional) String() string {
	if !o.Valid {
		return "none"
	}
	return strconv.FormatFloat(o.Value, 'g', -1, 64)
}

// MarshalJSON encodes an absent value as null.
func (o Optional) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *Optional) UnmarshalJSON(raw []byte) error {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		*o = None()
		return nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// MarshalYAML encodes an absent value as null.
func (o Optional) MarshalYAML() (any, error) {
	if !o.Valid {
		return nil, nil
	}
	return o.Value, nil
}

package domain

import "sort"

// Variant describes one of the predefined structural case variants.
type Variant struct {
	ID          string
	MultiPeriod bool
	Inventory   bool
	Description string
}

var variants = map[string]Variant{
	"case1": {ID: "case1", Description: "single period, no inventory"},
	"case2": {ID: "case2", MultiPeriod: true, Inventory: true, Description: "multi-period with inventory and direction binaries"},
	"case3": {ID: "case3", MultiPeriod: true, Inventory: true, Description: "multi-period with inventory and direction binaries (full complex)"},
}

// LookupVariant resolves a case identifier. Unknown identifiers are
// configuration errors.
func LookupVariant(id string) (Variant, error) {
	v, ok := variants[id]
	if !ok {
		return Variant{}, ConfigError{Field: "case", Value: id, Reason: "unknown case identifier"}
	}
	return v, nil
}

// Variants lists the predefined variants ordered by identifier.
func Variants() []Variant {
	out := make([]Variant, 0, len(variants))
	for _, v := range variants {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

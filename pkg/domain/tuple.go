// Package domain defines the value types shared by every stage of the
// refinery planning model build: index tuples, optional bounds, case variants
// and the error taxonomy surfaced to callers.
package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// keySep separates tuple elements inside map keys. Benchmark identifiers never
// contain the ASCII unit separator.
const keySep = "\x1f"

// Tuple is an ordered index combination such as (unit, batch, stream).
type Tuple []string

// T builds a tuple from its elements.
func T(elems ...string) Tuple { return Tuple(elems) }

// Key returns a comparable encoding of the tuple suitable for map lookups.
func (t Tuple) Key() string { return strings.Join(t, keySep) }

// Arity reports the number of elements.
func (t Tuple) Arity() int { return len(t) }

// With returns a copy of t extended by the given elements.
func (t Tuple) With(elems ...string) Tuple {
	out := make(Tuple, 0, len(t)+len(elems))
	out = append(out, t...)
	return append(out, elems...)
}

// Equal reports element-wise equality.
func (t Tuple) Equal(o Tuple) bool {
	if len(t) != len(o) {
		return false
	}
	for i := range t {
		if t[i] != o[i] {
			return false
		}
	}
	return true
}

// String renders the tuple as a bracketed index, e.g. [u1,m1,s3].
func (t Tuple) String() string { return "[" + strings.Join(t, ",") + "]" }

// KeyTuple decodes a key produced by Tuple.Key.
func KeyTuple(key string) Tuple {
	if key == "" {
		return Tuple{}
	}
	return Tuple(strings.Split(key, keySep))
}

// UnmarshalJSON accepts either a scalar (string or number) for arity-one
// tuples or an array of scalars.
func (t *Tuple) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out, err := tupleFromAny(raw)
	if err != nil {
		return err
	}
	*t = out
	return nil
}

// UnmarshalYAML mirrors UnmarshalJSON for YAML case bundles.
func (t *Tuple) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*t = Tuple{node.Value}
		return nil
	case yaml.SequenceNode:
		out := make(Tuple, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("tuple element at line %d is not a scalar", item.Line)
			}
			out = append(out, item.Value)
		}
		*t = out
		return nil
	default:
		return fmt.Errorf("tuple at line %d must be a scalar or a sequence", node.Line)
	}
}

func tupleFromAny(raw any) (Tuple, error) {
	switch v := raw.(type) {
	case []any:
		out := make(Tuple, 0, len(v))
		for _, item := range v {
			s, err := scalarString(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	default:
		s, err := scalarString(v)
		if err != nil {
			return nil, err
		}
		return Tuple{s}, nil
	}
}

func scalarString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		return "", fmt.Errorf("unsupported tuple element %v (%T)", v, v)
	}
}

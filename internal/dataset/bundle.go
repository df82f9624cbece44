package dataset

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"refinerycore/pkg/domain"
)

// Entry is one parameter value keyed by an index tuple.
type Entry struct {
	Key   domain.Tuple `json:"key" yaml:"key"`
	Value float64      `json:"value" yaml:"value"`
}

// Bundle is the serialisable form of a case: set name to tuples and parameter
// name to keyed entries.
type Bundle struct {
	Case   string                    `json:"case" yaml:"case"`
	Sets   map[string][]domain.Tuple `json:"sets" yaml:"sets"`
	Params map[string][]Entry        `json:"params" yaml:"params"`
}

// NewBundle returns an empty bundle for caseID.
func NewBundle(caseID string) *Bundle {
	return &Bundle{
		Case:   caseID,
		Sets:   make(map[string][]domain.Tuple),
		Params: make(map[string][]Entry),
	}
}

// Members appends single-element tuples to a flat set, declaring it if needed.
func (b *Bundle) Members(set string, elems ...string) *Bundle {
	list, ok := b.Sets[set]
	if !ok {
		list = []domain.Tuple{}
	}
	for _, e := range elems {
		list = append(list, domain.Tuple{e})
	}
	b.Sets[set] = list
	return b
}

// Tuples appends tuples to a relational set, declaring it if needed.
func (b *Bundle) Tuples(set string, tuples ...domain.Tuple) *Bundle {
	list, ok := b.Sets[set]
	if !ok {
		list = []domain.Tuple{}
	}
	b.Sets[set] = append(list, tuples...)
	return b
}

// Param records a parameter value at key.
func (b *Bundle) Param(name string, value float64, key ...string) *Bundle {
	b.Params[name] = append(b.Params[name], Entry{Key: domain.Tuple(key), Value: value})
	return b
}

// Format names a bundle encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath infers the encoding from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("dataset: unsupported bundle extension %q", filepath.Ext(path))
	}
}

// Decode reads a bundle in the given format.
func Decode(r io.Reader, format Format) (Bundle, error) {
	var b Bundle
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&b); err != nil {
			return Bundle{}, fmt.Errorf("decode json bundle: %w", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&b); err != nil {
			return Bundle{}, fmt.Errorf("decode yaml bundle: %w", err)
		}
	default:
		return Bundle{}, fmt.Errorf("dataset: unknown format %q", format)
	}
	if b.Sets == nil {
		b.Sets = make(map[string][]domain.Tuple)
	}
	if b.Params == nil {
		b.Params = make(map[string][]Entry)
	}
	return b, nil
}

// Encode writes a bundle in the given format.
func Encode(w io.Writer, b Bundle, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(b)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(b); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("dataset: unknown format %q", format)
	}
}

package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"refinerycore/internal/blob"
	"refinerycore/internal/core"
	"refinerycore/internal/model"
	"refinerycore/internal/solver/pip"
	"refinerycore/pkg/domain"
)

// ModelPrefix is the key prefix of exported models.
const ModelPrefix = "models"

// Format is a model export encoding.
type Format string

const (
	FormatPIP  Format = "pip"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatPIP, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", domain.ConfigError{Field: "format", Value: s, Reason: "expected pip, json or yaml"}
	}
}

func (f Format) contentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatYAML:
		return "application/yaml"
	default:
		return "text/plain"
	}
}

// TermDoc is one monomial of an exported expression.
type TermDoc struct {
	Coef float64  `json:"coef" yaml:"coef"`
	Vars []string `json:"vars" yaml:"vars,flow"`
}

// VariableDoc is one exported variable.
type VariableDoc struct {
	Name   string          `json:"name" yaml:"name"`
	Domain string          `json:"domain" yaml:"domain"`
	Lower  domain.Optional `json:"lower" yaml:"lower"`
	Upper  domain.Optional `json:"upper" yaml:"upper"`
}

// RowDoc is one exported constraint row.
type RowDoc struct {
	Label  string          `json:"label" yaml:"label"`
	Family string          `json:"family" yaml:"family"`
	Lower  domain.Optional `json:"lower" yaml:"lower"`
	Upper  domain.Optional `json:"upper" yaml:"upper"`
	Terms  []TermDoc       `json:"terms" yaml:"terms"`
}

// ObjectiveDoc is the exported objective.
type ObjectiveDoc struct {
	Name     string    `json:"name" yaml:"name"`
	Sense    string    `json:"sense" yaml:"sense"`
	Constant float64   `json:"constant,omitempty" yaml:"constant,omitempty"`
	Terms    []TermDoc `json:"terms" yaml:"terms"`
}

// ModelDocument is a solver-neutral, human-readable rendering of a model with
// variables referenced by name.
type ModelDocument struct {
	Case        string        `json:"case" yaml:"case"`
	Objective   ObjectiveDoc  `json:"objective" yaml:"objective"`
	Variables   []VariableDoc `json:"variables" yaml:"variables"`
	Constraints []RowDoc      `json:"constraints" yaml:"constraints"`
}

// Document renders m with named variables.
func Document(m *model.Model) ModelDocument {
	names := make([]string, len(m.Variables))
	doc := ModelDocument{Case: m.Case, Variables: make([]VariableDoc, 0, len(m.Variables))}
	for _, v := range m.Variables {
		names[v.ID] = v.Name()
		doc.Variables = append(doc.Variables, VariableDoc{Name: v.Name(), Domain: v.Domain.String(), Lower: v.Lower, Upper: v.Upper})
	}
	terms := func(e model.Expr) []TermDoc {
		out := make([]TermDoc, 0, len(e.Terms))
		for _, t := range e.Terms {
			vars := []string{names[t.A]}
			if t.Bilinear() {
				vars = append(vars, names[t.B])
			}
			out = append(out, TermDoc{Coef: t.Coef, Vars: vars})
		}
		return out
	}
	obj := m.Objective
	doc.Objective = ObjectiveDoc{Name: obj.Name, Sense: obj.Sense.String(), Constant: obj.Expr.Constant, Terms: terms(obj.Expr)}
	doc.Constraints = make([]RowDoc, 0, len(m.Constraints))
	for _, c := range m.Constraints {
		doc.Constraints = append(doc.Constraints, RowDoc{Label: c.Label(), Family: c.Family, Lower: c.Lower, Upper: c.Upper, Terms: terms(c.Body)})
	}
	return doc
}

// Export writes m to w in the given format.
func Export(w io.Writer, m *model.Model, f Format) error {
	switch f {
	case FormatPIP:
		return pip.Write(w, m)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(Document(m))
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(Document(m)); err != nil {
			return err
		}
		return enc.Close()
	default:
		return domain.ConfigError{Field: "format", Value: string(f), Reason: "expected pip, json or yaml"}
	}
}

// ExportKey returns the artifact key of an exported model.
func ExportKey(caseID, id string, f Format) string {
	return blob.Key(ModelPrefix, caseID, id+"."+string(f))
}

// SaveModel exports the build's model into store under ExportKey.
func SaveModel(ctx context.Context, store blob.Store, b *core.Build, id string, f Format) (blob.Info, error) {
	var buf bytes.Buffer
	if err := Export(&buf, b.Model, f); err != nil {
		return blob.Info{}, fmt.Errorf("export %s: %w", b.Case, err)
	}
	return store.Put(ctx, ExportKey(b.Case, id, f), &buf, blob.PutOptions{
		ContentType: f.contentType(),
		Metadata:    map[string]string{"case": b.Case, "format": string(f)},
	})
}

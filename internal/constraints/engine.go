// Package constraints generates the algebraic rows of the planning model. Each
// constraint family is an independent Generator ranging only over the closure
// index; combinations absent from the closure produce no row.
package constraints

import (
	"fmt"
	"sync"

	"refinerycore/internal/closure"
	"refinerycore/internal/dataset"
	"refinerycore/internal/model"
)

// Family names, in generation order.
const (
	FamilyMaterialBalance = "material_balance"
	FamilyCDU             = "cdu"
	FamilyProcessUnit     = "process_unit"
	FamilyMixer           = "mixer"
	FamilySplitter        = "splitter"
	FamilyBlender         = "blender"
	FamilyCapacity        = "capacity"
	FamilyBounds          = "bounds"
	FamilyInventory       = "inventory"
)

// Context is the explicit build state passed to every generator.
type Context struct {
	Data  *dataset.Store
	Index *closure.Index
	Vars  *model.Registry
}

// Generator produces the rows of one constraint family.
type Generator interface {
	Family() string
	Generate(ctx *Context) ([]model.Constraint, error)
}

// Engine runs generators in registration order.
type Engine struct {
	mu         sync.RWMutex
	generators []Generator
}

// NewEngine returns an engine without generators.
func NewEngine() *Engine {
	return &Engine{}
}

// NewDefaultEngine returns an engine with the nine built-in families.
func NewDefaultEngine() *Engine {
	e := NewEngine()
	e.Register(NewMaterialBalance())
	e.Register(NewCDU())
	e.Register(NewProcessUnit())
	e.Register(NewMixer())
	e.Register(NewSplitter())
	e.Register(NewBlender())
	e.Register(NewCapacity())
	e.Register(NewBounds())
	e.Register(NewInventory())
	return e
}

// Register appends a generator.
func (e *Engine) Register(g Generator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.generators = append(e.generators, g)
}

// Families lists registered family names in order.
func (e *Engine) Families() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.generators))
	for _, g := range e.generators {
		out = append(out, g.Family())
	}
	return out
}

// Generate runs every generator once and concatenates their rows. The first
// failing family aborts the pass.
func (e *Engine) Generate(ctx *Context) ([]model.Constraint, error) {
	e.mu.RLock()
	gens := append([]Generator(nil), e.generators...)
	e.mu.RUnlock()
	var all []model.Constraint
	for _, g := range gens {
		rows, err := g.Generate(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s constraints: %w", g.Family(), err)
		}
		all = append(all, rows...)
	}
	return all, nil
}

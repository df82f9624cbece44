// Package pip writes assembled models in the polynomial LP format read by SCIP.
// Variables are written as x<id> and rows as c<n>, so the solution file can be
// mapped back to model.VarID without a side table.
package pip

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"refinerycore/internal/model"
	"refinerycore/pkg/domain"
)

const termsPerLine = 8

// VarName returns the file name of a variable.
func VarName(id model.VarID) string { return "x" + strconv.Itoa(int(id)) }

// ParseVarName reverses VarName.
func ParseVarName(name string) (model.VarID, bool) {
	if !strings.HasPrefix(name, "x") {
		return model.NoVar, false
	}
	n, err := strconv.Atoi(name[1:])
	if err != nil || n < 0 {
		return model.NoVar, false
	}
	return model.VarID(n), true
}

// RowNames returns the names the writer gives to row i: one name for
// equalities and one-sided rows, a _lo/_hi pair for ranged rows.
func RowNames(i int, c model.Constraint) []string {
	base := "c" + strconv.Itoa(i)
	if c.Lower.Valid && c.Upper.Valid && !c.Equality() {
		return []string{base + "_lo", base + "_hi"}
	}
	return []string{base}
}

// Write renders m to w.
func Write(w io.Writer, m *model.Model) error {
	bw := bufio.NewWriter(w)
	p := &printer{w: bw}

	p.printf("\\ case %s: %d variables, %d rows\n", m.Case, len(m.Variables), len(m.Constraints))
	if m.Objective.Sense == model.Minimize {
		p.printf("Minimize\n")
	} else {
		p.printf("Maximize\n")
	}
	p.printf(" obj: ")
	obj := m.Objective.Expr.Simplify()
	if len(obj.Terms) == 0 {
		p.printf("0 %s", VarName(0))
	} else {
		p.expr(obj)
	}
	if obj.Constant != 0 {
		p.printf(" %s %s", sign(obj.Constant), num(abs(obj.Constant)))
	}
	p.printf("\n")

	p.printf("Subject to\n")
	for i, c := range m.Constraints {
		names := RowNames(i, c)
		switch {
		case c.Equality():
			p.row(names[0], c.Body, "=", c.Lower.Value)
		case len(names) == 2:
			p.row(names[0], c.Body, ">=", c.Lower.Value)
			p.row(names[1], c.Body, "<=", c.Upper.Value)
		case c.Lower.Valid:
			p.row(names[0], c.Body, ">=", c.Lower.Value)
		case c.Upper.Valid:
			p.row(names[0], c.Body, "<=", c.Upper.Value)
		}
	}

	p.printf("Bounds\n")
	var binaries []string
	for _, v := range m.Variables {
		name := VarName(v.ID)
		if v.Domain == model.Binary {
			binaries = append(binaries, name)
			continue
		}
		p.printf(" %s\n", bound(name, v.Lower, v.Upper))
	}
	if len(binaries) > 0 {
		p.printf("Binaries\n")
		for i := 0; i < len(binaries); i += termsPerLine {
			end := min(i+termsPerLine, len(binaries))
			p.printf(" %s\n", strings.Join(binaries[i:end], " "))
		}
	}
	p.printf("End\n")
	if p.err != nil {
		return p.err
	}
	return bw.Flush()
}

type printer struct {
	w   *bufio.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) row(name string, body model.Expr, op string, rhs float64) {
	p.printf(" %s: ", name)
	if len(body.Terms) == 0 {
		p.printf("0 %s", VarName(0))
	} else {
		p.expr(body)
	}
	p.printf(" %s %s\n", op, num(rhs))
}

func (p *printer) expr(e model.Expr) {
	for i, t := range e.Terms {
		if i > 0 && i%termsPerLine == 0 {
			p.printf("\n  ")
		}
		switch {
		case i == 0 && t.Coef < 0:
			p.printf("- ")
		case i > 0:
			p.printf(" %s ", sign(t.Coef))
		}
		p.printf("%s %s", num(abs(t.Coef)), monomial(t))
	}
}

func monomial(t model.Term) string {
	switch {
	case !t.Bilinear():
		return VarName(t.A)
	case t.A == t.B:
		return VarName(t.A) + "^2"
	default:
		return VarName(t.A) + " " + VarName(t.B)
	}
}

func bound(name string, lo, hi domain.Optional) string {
	switch {
	case !lo.Valid && !hi.Valid:
		return name + " free"
	case !hi.Valid:
		return name + " >= " + num(lo.Value)
	case !lo.Valid:
		return "-inf <= " + name + " <= " + num(hi.Value)
	default:
		return num(lo.Value) + " <= " + name + " <= " + num(hi.Value)
	}
}

func sign(v float64) string {
	if v < 0 {
		return "-"
	}
	return "+"
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func num(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

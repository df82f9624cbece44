package baron

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"refinerycore/internal/model"
	"refinerycore/internal/solver/pip"
)

const namesPerLine = 10

// Option is one "Name: Value;" entry of the OPTIONS block. Values are
// written verbatim, so strings must carry their own quotes.
type Option struct {
	Name  string
	Value string
}

// Write renders m in the BARON input language. Variables and rows share the
// x<id>/c<n> names of the pip writer so solution tables map back to
// model.VarID the same way.
func Write(w io.Writer, m *model.Model, options []Option) error {
	bw := bufio.NewWriter(w)
	p := &printer{w: bw}

	p.printf("// case %s: %d variables, %d rows\n", m.Case, len(m.Variables), len(m.Constraints))
	if len(options) > 0 {
		p.printf("OPTIONS {\n")
		for _, o := range options {
			p.printf(" %s: %s;\n", o.Name, o.Value)
		}
		p.printf("}\n\n")
	}

	var binaries, continuous []string
	var lower, upper []string
	for _, v := range m.Variables {
		name := pip.VarName(v.ID)
		if v.Domain == model.Binary {
			binaries = append(binaries, name)
			continue
		}
		continuous = append(continuous, name)
		if v.Lower.Valid {
			lower = append(lower, name+": "+num(v.Lower.Value))
		}
		if v.Upper.Valid {
			upper = append(upper, name+": "+num(v.Upper.Value))
		}
	}
	p.names("BINARY_VARIABLES", binaries)
	p.names("VARIABLES", continuous)
	p.block("LOWER_BOUNDS", lower)
	p.block("UPPER_BOUNDS", upper)

	rows := make([]string, len(m.Constraints))
	for i := range m.Constraints {
		rows[i] = "c" + strconv.Itoa(i)
	}
	p.names("EQUATIONS", rows)
	for i, c := range m.Constraints {
		body := expr(c.Body)
		switch {
		case c.Equality():
			p.printf("%s: %s == %s;\n", rows[i], body, num(c.Lower.Value))
		case c.Lower.Valid && c.Upper.Valid:
			p.printf("%s: %s <= %s <= %s;\n", rows[i], num(c.Lower.Value), body, num(c.Upper.Value))
		case c.Lower.Valid:
			p.printf("%s: %s >= %s;\n", rows[i], body, num(c.Lower.Value))
		case c.Upper.Valid:
			p.printf("%s: %s <= %s;\n", rows[i], body, num(c.Upper.Value))
		}
	}
	if len(rows) > 0 {
		p.printf("\n")
	}

	sense := "maximize"
	if m.Objective.Sense == model.Minimize {
		sense = "minimize"
	}
	obj := m.Objective.Expr.Simplify()
	text := expr(obj)
	if obj.Constant != 0 {
		text += " " + signed(obj.Constant)
	}
	p.printf("OBJECTIVE %s: %s;\n", sense, text)
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

// names writes a declaration list such as "VARIABLES x0, x1;".
func (p *printer) names(keyword string, names []string) {
	if len(names) == 0 {
		return
	}
	p.printf("%s", keyword)
	for i, n := range names {
		switch {
		case i == 0:
			p.printf(" ")
		case i%namesPerLine == 0:
			p.printf(",\n ")
		default:
			p.printf(", ")
		}
		p.printf("%s", n)
	}
	p.printf(";\n\n")
}

func (p *printer) block(keyword string, entries []string) {
	if len(entries) == 0 {
		return
	}
	p.printf("%s {\n", keyword)
	for _, e := range entries {
		p.printf(" %s;\n", e)
	}
	p.printf("}\n\n")
}

func expr(e model.Expr) string {
	if len(e.Terms) == 0 {
		return "0*" + pip.VarName(0)
	}
	var sb strings.Builder
	for i, t := range e.Terms {
		coef := t.Coef
		switch {
		case i == 0 && coef < 0:
			sb.WriteString("-")
			coef = -coef
		case i > 0 && coef < 0:
			sb.WriteString(" - ")
			coef = -coef
		case i > 0:
			sb.WriteString(" + ")
		}
		if coef != 1 {
			sb.WriteString(num(coef))
			sb.WriteString("*")
		}
		sb.WriteString(monomial(t))
	}
	return sb.String()
}

func monomial(t model.Term) string {
	switch {
	case !t.Bilinear():
		return pip.VarName(t.A)
	case t.A == t.B:
		return pip.VarName(t.A) + "^2"
	default:
		return pip.VarName(t.A) + "*" + pip.VarName(t.B)
	}
}

func signed(v float64) string {
	if v < 0 {
		return "- " + num(-v)
	}
	return "+ " + num(v)
}

func num(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

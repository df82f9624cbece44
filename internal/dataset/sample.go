package dataset

import (
	"strconv"

	"refinerycore/pkg/domain"
)

// SampleBundle returns a small refinery exercising every unit category: a crude
// mixer feeding a swing-cut CDU, a naphtha splitter, a fixed-yield reformer, a
// delta-base FCC and a gasoline blender. Periods and inventory data follow the
// case variant (one period for case1, three for case2, four for case3).
func SampleBundle(caseID string) *Bundle {
	periods := 1
	switch caseID {
	case "case2":
		periods = 3
	case "case3":
		periods = 4
	}
	b := NewBundle(caseID)
	for t := 1; t <= periods; t++ {
		b.Members("T", strconv.Itoa(t))
	}
	b.Members("S",
		"crude1", "crude2", "crudemix",
		"naphtha", "kero", "diesel", "resid",
		"naph_ref", "naph_blend",
		"reformate", "lpg",
		"fcc_gasoline", "fcc_lco",
		"gasoline",
	)
	b.Members("U", "MIX1", "CDU1", "SPL1", "REF1", "FCC1", "BLD1")
	b.Members("M", "m1")
	b.Members("Q", "spg", "sul", "ron")
	b.Members("C", "cap_cdu", "cap_fcc")

	b.Members("UMIX", "MIX1")
	b.Members("UCDU", "CDU1")
	b.Members("USPL", "SPL1")
	b.Members("UPF", "REF1")
	b.Members("UPD", "FCC1")
	b.Members("UBLD", "BLD1")

	b.Members("S_M", "crude1", "crude2")
	b.Members("S_P", "kero", "diesel", "lpg", "fcc_lco", "gasoline")
	b.Members("SPG", "spg")
	b.Members("Qv", "spg", "ron")
	b.Members("Qw", "sul")

	units := []struct {
		unit    string
		inputs  []string
		outputs []string
	}{
		{"MIX1", []string{"crude1", "crude2"}, []string{"crudemix"}},
		{"CDU1", []string{"crudemix"}, []string{"naphtha", "kero", "diesel", "resid"}},
		{"SPL1", []string{"naphtha"}, []string{"naph_ref", "naph_blend"}},
		{"REF1", []string{"naph_ref"}, []string{"reformate", "lpg"}},
		{"FCC1", []string{"resid"}, []string{"fcc_gasoline", "fcc_lco"}},
		{"BLD1", []string{"naph_blend", "reformate", "fcc_gasoline"}, []string{"gasoline"}},
	}
	for _, u := range units {
		for _, s := range u.inputs {
			b.Tuples("IU", domain.T(u.unit, s))
			b.Tuples("IM", domain.T(u.unit, "m1", s))
		}
		for _, s := range u.outputs {
			b.Tuples("OU", domain.T(u.unit, s))
			b.Tuples("OM", domain.T(u.unit, "m1", s))
		}
	}

	props := map[string][]string{
		"crude1":       {"spg", "sul"},
		"crude2":       {"spg", "sul"},
		"crudemix":     {"spg", "sul"},
		"naphtha":      {"spg", "ron"},
		"resid":        {"spg", "sul"},
		"naph_ref":     {"spg", "ron"},
		"naph_blend":   {"spg", "ron"},
		"reformate":    {"spg", "ron"},
		"fcc_gasoline": {"spg", "ron"},
		"gasoline":     {"spg", "ron"},
	}
	for _, s := range []string{"crude1", "crude2", "crudemix", "naphtha", "resid", "naph_ref", "naph_blend", "reformate", "fcc_gasoline", "gasoline"} {
		for _, q := range props[s] {
			b.Tuples("SQ", domain.T(s, q))
		}
	}
	fixed := []struct {
		stream, prop string
		value        float64
	}{
		{"crude1", "spg", 0.85}, {"crude1", "sul", 1.2},
		{"crude2", "spg", 0.89}, {"crude2", "sul", 2.4},
		{"naphtha", "spg", 0.72}, {"naphtha", "ron", 68},
		{"resid", "spg", 0.95},
		{"reformate", "spg", 0.80}, {"reformate", "ron", 98},
		{"fcc_gasoline", "spg", 0.74}, {"fcc_gasoline", "ron", 91},
	}
	for _, f := range fixed {
		b.Tuples("FIX", domain.T(f.stream, f.prop))
		b.Param("FQ0", f.value, f.stream, f.prop)
	}
	b.Tuples("QT", domain.T("crudemix", "resid", "sul"))
	b.Param("alpha", 1.8, "crudemix", "resid", "sul")
	b.Param("FQMin", 0, "crudemix", "sul")
	b.Param("FQMax", 2.2, "crudemix", "sul")
	b.Param("FQVMax", 2.0, "MIX1", "m1", "sul")

	cuts := []struct {
		stream string
		yield  float64
	}{{"naphtha", 0.18}, {"kero", 0.15}, {"diesel", 0.27}, {"resid", 0.40}}
	for _, c := range cuts {
		b.Param("y", c.yield, "CDU1", "m1", "crudemix", c.stream)
	}
	b.Param("phi", 0.03, "CDU1", "m1", "crudemix", "naphtha")
	b.Param("phi", -0.03, "CDU1", "m1", "crudemix", "kero")
	b.Param("ZMin", 0.2, "CDU1", "m1", "naphtha")
	b.Param("ZMax", 0.8, "CDU1", "m1", "naphtha")

	b.Param("gamma", 0.85, "REF1", "m1", "reformate")
	b.Param("gamma", 0.15, "REF1", "m1", "lpg")

	b.Tuples("DBSQ", domain.T("FCC1", "m1", "resid", "sul"))
	b.Param("gamma", 0.55, "FCC1", "m1", "fcc_gasoline")
	b.Param("gamma", 0.45, "FCC1", "m1", "fcc_lco")
	b.Param("B", 2.5, "FCC1", "m1", "resid", "sul")
	b.Param("Del", 0.5, "FCC1", "m1", "resid", "sul")
	b.Param("delta", -0.02, "FCC1", "m1", "fcc_gasoline", "resid", "sul")
	b.Param("delta", 0.02, "FCC1", "m1", "fcc_lco", "resid", "sul")

	b.Param("FQBMin", 0.70, "BLD1", "spg")
	b.Param("FQBMax", 0.78, "BLD1", "spg")
	b.Param("FQBMin", 91, "BLD1", "ron")

	b.Members("CAPIN", "cap_cdu", "cap_fcc")
	b.Tuples("CAPS", domain.T("cap_cdu", "crudemix"), domain.T("cap_fcc", "resid"))

	prices := map[string]float64{"gasoline": 900, "kero": 800, "diesel": 780, "lpg": 500, "fcc_lco": 600}
	for _, s := range []string{"kero", "diesel", "lpg", "fcc_lco", "gasoline"} {
		b.Param("c_P", prices[s], s)
	}
	b.Param("c_M", 450, "crude1")
	b.Param("c_M", 420, "crude2")

	for t := 1; t <= periods; t++ {
		p := strconv.Itoa(t)
		b.Param("FVCMin", 200, "cap_cdu", p)
		b.Param("FVCMax", 1000, "cap_cdu", p)
		b.Param("FVCMax", 350, "cap_fcc", p)
		b.Param("FVMax", 600, "crude1", p)
		b.Param("FVMax", 700, "crude2", p)
		b.Param("FVMin", 50, "gasoline", p)
	}

	if periods > 1 {
		b.Members("SI", "crude1", "gasoline")
		b.Param("ci_P", 20, "gasoline")
		b.Param("ci_M", 5, "crude1")
		b.Param("L0", 100, "crude1")
		for t := 1; t <= periods; t++ {
			p := strconv.Itoa(t)
			b.Param("LMax", 400, "crude1", p)
			b.Param("LMax", 250, "gasoline", p)
			b.Param("LMin", 10, "crude1", p)
		}
	}
	return b
}

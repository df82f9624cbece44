package testutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingTB struct {
	testing.TB
	failed bool
	msg    string
}

func (r *recordingTB) Helper() {}

func (r *recordingTB) Fatalf(format string, args ...any) {
	r.failed = true
	r.msg = format
}

func writeSource(t *testing.T, dir, name, src string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600))
}

func TestPredicates(t *testing.T) {
	cases := []struct {
		pred ImportPredicate
		in   string
		want bool
	}{
		{InternalImportForbidden, "refinerycore/internal/model", true},
		{InternalImportForbidden, "refinerycore/pkg/domain", false},
		{InfraImportForbidden, "refinerycore/internal/infra/persistence/sqlite", true},
		{InfraImportForbidden, "refinerycore/internal/infrastructure", false},
		{DriverImportForbidden, "database/sql", true},
		{DriverImportForbidden, "database/sql/driver", true},
		{DriverImportForbidden, "github.com/jackc/pgx/v5/stdlib", true},
		{DriverImportForbidden, "github.com/aws/aws-sdk-go-v2/service/s3", true},
		{DriverImportForbidden, "os", false},
		{AnyOf(InfraImportForbidden, DriverImportForbidden), "modernc.org/sqlite", true},
		{AnyOf(), "anything", false},
	}
	for _, c := range cases {
		require.Equal(t, c.want, c.pred(c.in), c.in)
	}
}

func TestAssertNoDirectImportsIgnoresTestsAndSubdirs(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "a.go", "package tmp\nimport \"fmt\"\nfunc A() { fmt.Println() }\n")
	writeSource(t, dir, "a_test.go", "package tmp\nimport \"database/sql\"\nvar _ sql.DB\n")
	writeSource(t, dir, "notes.txt", "import \"database/sql\"")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o750))
	writeSource(t, filepath.Join(dir, "sub"), "b.go", "package sub\nimport \"database/sql\"\nvar _ sql.DB\n")

	rec := &recordingTB{TB: t}
	AssertNoDirectImports(rec, dir, DriverImportForbidden, "drivers")
	require.False(t, rec.failed)
}

func TestAssertNoDirectImportsReportsViolations(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "a.go", "package tmp\nimport (\n\t\"database/sql\"\n\t\"os/exec\"\n)\nvar _ sql.DB\nvar _ = exec.Command\n")
	rec := &recordingTB{TB: t}
	AssertNoDirectImports(rec, dir, DriverImportForbidden, "drivers")
	require.True(t, rec.failed)

	rec = &recordingTB{TB: t}
	AssertNoDirectImports(rec, filepath.Join(dir, "missing"), DriverImportForbidden, "drivers")
	require.True(t, rec.failed)

	writeSource(t, dir, "broken.go", "package tmp\nimport (")
	rec = &recordingTB{TB: t}
	AssertNoDirectImports(rec, dir, DriverImportForbidden, "drivers")
	require.True(t, rec.failed)
}

func TestAssertNoTransitiveDependencyUsesGoList(t *testing.T) {
	old := goListDeps
	defer func() { goListDeps = old }()

	goListDeps = func(string) ([]byte, error) {
		return []byte("fmt\nrefinerycore/internal/model\n\n"), nil
	}
	rec := &recordingTB{TB: t}
	AssertNoTransitiveDependency(rec, ".", DriverImportForbidden, "drivers")
	require.False(t, rec.failed)

	goListDeps = func(string) ([]byte, error) {
		return []byte("database/sql\n"), nil
	}
	rec = &recordingTB{TB: t}
	AssertNoTransitiveDependency(rec, ".", DriverImportForbidden, "drivers")
	require.True(t, rec.failed)

	goListDeps = func(string) ([]byte, error) { return []byte("boom"), errors.New("exit 1") }
	rec = &recordingTB{TB: t}
	AssertNoTransitiveDependency(rec, ".", DriverImportForbidden, "drivers")
	require.True(t, rec.failed)
}

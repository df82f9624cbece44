package constraints

import (
	"testing"

	"refinerycore/testutil"
)

// Generators run on in-memory data only; loading and solving live elsewhere.
func TestGeneratorsDoNotReachDrivers(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".",
		testutil.AnyOf(testutil.InfraImportForbidden, testutil.DriverImportForbidden),
		"constraint generators")
	testutil.AssertNoTransitiveDependency(t, ".", testutil.DriverImportForbidden, "constraint generators")
}

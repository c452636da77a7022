package plugins

import (
	"os"
	"testing"

	"crossfilter/testutil"
)

func TestPluginsStayInsideRegistryBoundary(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("cannot get working dir: %v", err)
	}
	testutil.AssertNoImportsUnder(t, wd, testutil.AdapterImportForbidden, "plugins register through internal/core only")
}

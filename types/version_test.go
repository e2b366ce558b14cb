package types

import (
	"strconv"
	"strings"
	"testing"
)

func TestVersion(t *testing.T) {
	core, _, _ := strings.Cut(Version, "-")
	parts := strings.Split(core, ".")
	if len(parts) != 3 {
		t.Fatalf("Version %q should be MAJOR.MINOR.PATCH", Version)
	}
	for _, p := range parts {
		if _, err := strconv.ParseUint(p, 10, 32); err != nil {
			t.Errorf("Version %q has non-numeric component %q", Version, p)
		}
	}
	if ContractVersion != Version {
		t.Errorf("ContractVersion = %q, want %q", ContractVersion, Version)
	}
}

package internaldefs

import (
	"strings"
	"testing"
)

func TestCounterNamesAreUniqueAndSuffixed(t *testing.T) {
	seen := map[string]bool{AuditDroppedName: true}
	ids := map[uint16]bool{}
	for _, def := range CounterDefs {
		if !strings.HasPrefix(def.Name, "gomfa_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("counter %q does not follow the naming scheme", def.Name)
		}
		if seen[def.Name] {
			t.Fatalf("duplicate counter name %q", def.Name)
		}
		seen[def.Name] = true
		if ids[uint16(def.ID)] {
			t.Fatalf("duplicate metric id %d", def.ID)
		}
		ids[uint16(def.ID)] = true
	}
}

func TestBucketTablesAgree(t *testing.T) {
	if len(HistogramBoundLabels) != len(HistogramUpperBounds)+1 {
		t.Fatalf("label count %d does not match %d bounds plus overflow", len(HistogramBoundLabels), len(HistogramUpperBounds))
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 0, 2, 0, 0, 0, 0, 3}))
	want := [8]uint64{1, 1, 3, 3, 3, 3, 3, 6}
	if got != want {
		t.Fatalf("CumulativeBuckets = %v, want %v", got, want)
	}
	if got := NormalizeBuckets(nil); got != ([8]uint64{}) {
		t.Fatalf("NormalizeBuckets(nil) = %v", got)
	}
}

package idgen

import (
	"strings"
	"testing"
)

func TestUUIDv7Unique(t *testing.T) {
	gen := UUIDv7()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := gen()
		if seen[id] {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestPrefixed(t *testing.T) {
	gen := Prefixed("doc_", UUIDv7())
	id := gen()
	if !strings.HasPrefix(id, "doc_") {
		t.Errorf("expected doc_ prefix, got %s", id)
	}
	if _, err := Parse(strings.TrimPrefix(id, "doc_")); err != nil {
		t.Errorf("suffix is not a valid UUID: %v", err)
	}
}

func TestTimestamped(t *testing.T) {
	gen := Timestamped(UUIDv7())
	id := gen()
	parts := strings.SplitN(id, "_", 2)
	if len(parts) != 2 {
		t.Fatalf("expected timestamp_suffix format, got %s", id)
	}
	if len(parts[0]) != len("20060102T150405Z") {
		t.Errorf("unexpected timestamp segment: %s", parts[0])
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse("not-a-uuid"); err == nil {
		t.Error("expected error for invalid UUID")
	}
}

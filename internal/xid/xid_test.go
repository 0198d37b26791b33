package xid

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewCarriesPrefixAndUUID(t *testing.T) {
	id := New("shift")
	if !strings.HasPrefix(id, "shift-") {
		t.Fatalf("expected shift- prefix, got %q", id)
	}
	if _, err := uuid.Parse(strings.TrimPrefix(id, "shift-")); err != nil {
		t.Fatalf("expected uuid suffix, got %q: %v", id, err)
	}
	if New("shift") == id {
		t.Fatalf("expected unique ids")
	}
}

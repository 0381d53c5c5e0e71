package ids

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewHasPrefixAndUUID(t *testing.T) {
	id := NewTemplateID()

	rest, ok := strings.CutPrefix(id, "tpl_")
	if !ok {
		t.Fatalf("expected tpl_ prefix, got %s", id)
	}
	if _, err := uuid.Parse(rest); err != nil {
		t.Errorf("expected uuid suffix, got %s: %v", rest, err)
	}
}

func TestNewIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewVersionID()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

package attrs

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

type status string

func (s status) String() string { return string(s) }

func TestString(t *testing.T) {
	list := []any{
		"document_id", "d-1",
		slog.String("kind", "purchase_requisition"),
		"count", 3,
		"status", status("approved"),
		"reason",
	}

	assert.Equal(t, "d-1", String(list, "document_id"))
	assert.Equal(t, "purchase_requisition", String(list, "kind"))
	assert.Equal(t, "approved", String(list, "status"))
	assert.Empty(t, String(list, "count"), "non-text values are skipped")
	assert.Empty(t, String(list, "reason"), "dangling key has no value")
	assert.Empty(t, String(list, "missing"))
}

func TestString_ValueEqualToKeyIsNotAKey(t *testing.T) {
	list := []any{"note", "reason", "reason", "budget exceeded"}
	assert.Equal(t, "budget exceeded", String(list, "reason"))
}

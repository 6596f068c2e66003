package builtins

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllTemplatesAreComplete(t *testing.T) {
	all := All()
	assert.Len(t, all, 7)
	seen := map[string]bool{}
	for _, p := range all {
		assert.NotEmpty(t, p.Name)
		assert.NotEmpty(t, p.Event)
		assert.NotEmpty(t, p.Description)
		assert.Contains(t, p.Code, "def run(message, context):", p.Name)
		assert.False(t, seen[p.Name], "duplicate template name %s", p.Name)
		seen[p.Name] = true
	}
}

func TestTemplatesEndWithNewline(t *testing.T) {
	for _, p := range All() {
		assert.True(t, strings.HasSuffix(p.Code, "\n"), p.Name)
	}
}

package migration

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStepsAreIdempotentStatements(t *testing.T) {
	r := NewRunner()
	assert.Equal(t, "1.0.0", r.Version())

	steps := r.Steps()
	assert.NotEmpty(t, steps)
	for _, s := range steps {
		sql := strings.ToUpper(s.SQL)
		idempotent := strings.Contains(sql, "IF NOT EXISTS")
		assert.True(t, idempotent, "step %q must be safe to rerun", s.Name)
	}
	assert.Contains(t, steps[0].SQL, "limit_results")
}

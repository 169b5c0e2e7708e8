package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverityLevel(t *testing.T) {
	assert.Equal(t, 0, SeverityD0.Level())
	assert.Equal(t, 4, SeverityD4.Level())
	assert.Equal(t, -1, SeverityDefault.Level())
	assert.Equal(t, -1, Severity("D9").Level())
}

func TestSeverityIsSubmittable(t *testing.T) {
	for _, severity := range []Severity{SeverityD0, SeverityD1, SeverityD2, SeverityD3, SeverityD4} {
		assert.True(t, severity.IsSubmittable(), string(severity))
	}
	assert.False(t, SeverityDefault.IsSubmittable())
	assert.False(t, Severity("").IsSubmittable())
}

func TestSeverityFromLevel(t *testing.T) {
	assert.Equal(t, SeverityD2, SeverityFromLevel(2))
	assert.Equal(t, SeverityDefault, SeverityFromLevel(-1))
	assert.Equal(t, SeverityDefault, SeverityFromLevel(5))
}

func TestPolicyKey(t *testing.T) {
	assert.Equal(t, "2026:north:farm-1", PolicyKey(2026, "north", "farm-1"))
}

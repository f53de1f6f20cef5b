package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusHealthyWithNoHistory(t *testing.T) {
	tr := New()
	assert.Equal(t, StatusHealthy, tr.Status("openai"))
}

func TestStatusDownAfterFiveConsecutiveFailures(t *testing.T) {
	tr := New()
	for i := 0; i < 5; i++ {
		tr.RecordFailure("openai")
	}
	assert.Equal(t, StatusDown, tr.Status("openai"))
}

func TestStatusNotDownAfterFourFailuresAndASuccess(t *testing.T) {
	tr := New()
	for i := 0; i < 4; i++ {
		tr.RecordFailure("openai")
	}
	tr.RecordSuccess("openai")
	assert.NotEqual(t, StatusDown, tr.Status("openai"))
}

func TestStatusDegradedOnHighFailureRate(t *testing.T) {
	tr := New()
	for i := 0; i < 3; i++ {
		tr.RecordSuccess("openai")
	}
	for i := 0; i < 3; i++ {
		tr.RecordFailure("openai")
	}
	assert.Equal(t, StatusDegraded, tr.Status("openai"))
}

func TestProvidersTrackedIndependently(t *testing.T) {
	tr := New()
	for i := 0; i < 5; i++ {
		tr.RecordFailure("openai")
	}
	assert.Equal(t, StatusDown, tr.Status("openai"))
	assert.Equal(t, StatusHealthy, tr.Status("anthropic"))
}

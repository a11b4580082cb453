package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIntervalCadence(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	i := NewInterval(30 * time.Second)
	i.SetNowFunc(func() time.Time { return now })

	assert.True(t, i.Due(), "zero last-fire time is immediately due")

	assert.True(t, i.DueAndMark())
	assert.False(t, i.Due(), "just marked")

	now = now.Add(29 * time.Second)
	assert.False(t, i.DueAndMark())

	now = now.Add(time.Second)
	assert.True(t, i.DueAndMark())
	assert.False(t, i.Due())
}

func TestIntervalDisabled(t *testing.T) {
	i := NewInterval(0)
	assert.False(t, i.Due(), "non-positive interval never fires")
	assert.False(t, i.DueAndMark())
}

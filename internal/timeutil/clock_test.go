package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMockClock(t *testing.T) {
	start := time.Date(2024, 8, 10, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	assert.True(t, c.Now().Equal(start))

	c.Advance(90 * time.Minute)
	assert.True(t, c.Now().Equal(start.Add(90*time.Minute)))
	assert.Equal(t, 90*time.Minute, c.Since(start))

	c.Set(start)
	assert.True(t, c.Now().Equal(start))
}

func TestRealClockAdvances(t *testing.T) {
	c := RealClock{}
	before := c.Now()
	assert.GreaterOrEqual(t, c.Since(before), time.Duration(0))
}

func TestClockInterface(t *testing.T) {
	var _ Clock = RealClock{}
	var _ Clock = NewMockClock(time.Now())
}

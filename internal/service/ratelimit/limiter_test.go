package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestAllowBurstThenRefill(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	l := PerMinute(2, WithClock(c.now))

	ok, _ := l.Allow("a")
	assert.True(t, ok)
	ok, _ = l.Allow("a")
	assert.True(t, ok)

	ok, wait := l.Allow("a")
	assert.False(t, ok)
	assert.Equal(t, 30*time.Second, wait)

	ok, _ = l.Allow("b")
	assert.True(t, ok, "keys are independent")

	c.advance(30 * time.Second)
	ok, _ = l.Allow("a")
	assert.True(t, ok)
	ok, _ = l.Allow("a")
	assert.False(t, ok)
}

func TestAllowDisabled(t *testing.T) {
	l := New(0, 0)
	for i := 0; i < 100; i++ {
		ok, _ := l.Allow("a")
		assert.True(t, ok)
	}
	assert.Equal(t, 0, l.Len())
}

func TestPrune(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	l := PerMinute(60, WithClock(c.now))

	l.Allow("a")
	l.Allow("b")
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, 0, l.Prune())

	c.advance(2 * time.Second)
	assert.Equal(t, 2, l.Prune())
	assert.Equal(t, 0, l.Len())
}

package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRegister(t *testing.T) {
	s := NewScheduler(&fakeRefresher{}, []string{"BTC"}, nil)
	assert.NoError(t, s.Register("@every 1m"))
	assert.NoError(t, s.Register("*/5 * * * *"))
	assert.NoError(t, s.Register("0 */5 * * * *"))
	assert.Error(t, s.Register("not a cron"))
}

func TestSchedulerRunNowRefreshesEverySymbol(t *testing.T) {
	r := &fakeRefresher{}
	symbols := []string{"BTC", "ETH"}
	s := NewScheduler(r, symbols, nil)
	symbols[0] = "mutated"
	s.RunNow()
	assert.Equal(t, []string{"BTC", "ETH"}, r.symbols)
}

func TestSchedulerFires(t *testing.T) {
	r := &fakeRefresher{}
	s := NewScheduler(r, []string{"BTC"}, nil)
	require.NoError(t, s.Register("@every 1s"))
	s.Start()
	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.symbols) > 0
	}, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}

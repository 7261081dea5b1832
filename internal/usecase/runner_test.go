package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketState/internal/domain/models"
)

func TestRunnerLatestWins(t *testing.T) {
	m := &countingMetrics{}
	r := NewRunner(m)

	started := make(chan struct{})
	var firstErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = r.Submit(context.Background(), "BTC", func(ctx context.Context) (*models.Report, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		})
	}()
	<-started

	rep, err := r.Submit(context.Background(), "BTC", func(ctx context.Context) (*models.Report, error) {
		return &models.Report{Symbol: "BTC", RunID: "second"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "second", rep.RunID)

	wg.Wait()
	assert.ErrorIs(t, firstErr, ErrSuperseded)
	assert.Equal(t, int32(1), m.superseded.Load())

	latest, ok := r.Latest("BTC")
	require.True(t, ok)
	assert.Equal(t, "second", latest.RunID)
	assert.Equal(t, 0, r.InFlight())
}

func TestRunnerSupersededResultIsDropped(t *testing.T) {
	r := NewRunner(nil)

	release := make(chan struct{})
	started := make(chan struct{})
	var firstErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// ignores cancellation and still produces a report
		_, firstErr = r.Submit(context.Background(), "k", func(ctx context.Context) (*models.Report, error) {
			close(started)
			<-release
			return &models.Report{RunID: "stale"}, nil
		})
	}()
	<-started

	secondStarted := make(chan struct{})
	var secondRep *models.Report
	wg.Add(1)
	go func() {
		defer wg.Done()
		secondRep, _ = r.Submit(context.Background(), "k", func(ctx context.Context) (*models.Report, error) {
			close(secondStarted)
			<-release
			return &models.Report{RunID: "fresh"}, nil
		})
	}()
	<-secondStarted
	close(release)
	wg.Wait()

	assert.ErrorIs(t, firstErr, ErrSuperseded)
	require.NotNil(t, secondRep)
	assert.Equal(t, "fresh", secondRep.RunID)
	latest, _ := r.Latest("k")
	assert.Equal(t, "fresh", latest.RunID)
}

func TestRunnerKeysAreIndependent(t *testing.T) {
	r := NewRunner(nil)
	a, err := r.Submit(context.Background(), "a", func(context.Context) (*models.Report, error) {
		return &models.Report{Symbol: "a"}, nil
	})
	require.NoError(t, err)
	b, err := r.Submit(context.Background(), "b", func(context.Context) (*models.Report, error) {
		return &models.Report{Symbol: "b"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "a", a.Symbol)
	assert.Equal(t, "b", b.Symbol)
}

func TestRunnerWinnerErrorIsReturned(t *testing.T) {
	r := NewRunner(nil)
	_, err := r.Submit(context.Background(), "k", func(context.Context) (*models.Report, error) {
		return nil, errBoom
	})
	assert.True(t, errors.Is(err, errBoom))
	_, ok := r.Latest("k")
	assert.False(t, ok)
}

func TestRunnerCancelAll(t *testing.T) {
	r := NewRunner(nil)
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := r.Submit(context.Background(), "k", func(ctx context.Context) (*models.Report, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		})
		done <- err
	}()
	<-started
	r.CancelAll()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestSymbolOf(t *testing.T) {
	assert.Equal(t, "BTC", symbolOf("BTC"))
	assert.Equal(t, "BTC", symbolOf("BTC|1m|600|rule|250|false|false|true"))
	assert.Equal(t, "ETH", symbolOf(adhocPrefix+"ETH|1m|0|hmm|250|false|false|false"))
}

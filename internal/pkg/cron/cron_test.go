package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunNowRecordsStatus(t *testing.T) {
	s := New(nil)
	var calls atomic.Int32
	s.Register(Job{Name: "ok", Interval: time.Hour, Fn: func(context.Context) error {
		calls.Add(1)
		return nil
	}})
	s.Register(Job{Name: "bad", Interval: time.Hour, Fn: func(context.Context) error {
		return errors.New("boom")
	}})

	require.NoError(t, s.RunNow(context.Background(), "ok"))
	require.NoError(t, s.RunNow(context.Background(), "bad"))
	assert.Error(t, s.RunNow(context.Background(), "missing"))

	items := s.List()
	require.Len(t, items, 2)
	assert.Equal(t, "bad", items[0].Name)
	assert.Equal(t, StatusReject, items[0].Status)
	assert.Equal(t, "boom", items[0].Message)
	assert.Equal(t, StatusFulfill, items[1].Status)
	assert.NotNil(t, items[1].LastRunAt)
	assert.Equal(t, int32(1), calls.Load())
}

func TestStartRunsOnInterval(t *testing.T) {
	s := New(nil)
	ran := make(chan struct{}, 1)
	s.Register(Job{Name: "tick", Interval: 10 * time.Millisecond, Fn: func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}
}

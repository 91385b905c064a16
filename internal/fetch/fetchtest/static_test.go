package fetchtest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/directory-crawler/internal/fetch"
)

func TestStatic_ScriptedSequence(t *testing.T) {
	s := NewStatic().
		AddError("u", &fetch.Error{Kind: fetch.Transient, URL: "u"}).
		AddPage("u", "<ok/>")

	_, err := s.Fetch(context.Background(), fetch.Request{URL: "u"})
	require.Error(t, err)

	for range 2 {
		p, err := s.Fetch(context.Background(), fetch.Request{URL: "u"})
		require.NoError(t, err)
		assert.Equal(t, "<ok/>", p.HTML)
	}
	assert.Equal(t, 3, s.Calls("u"))
	assert.Len(t, s.Requests(), 3)
}

func TestStatic_UnknownURL(t *testing.T) {
	_, err := NewStatic().Fetch(context.Background(), fetch.Request{URL: "missing"})

	var ferr *fetch.Error
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, fetch.Permanent, ferr.Kind)
	assert.Equal(t, 404, ferr.StatusCode)
}

func TestStatic_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewStatic().AddPage("u", "x").Fetch(ctx, fetch.Request{URL: "u"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStatic_DelayHonorsContext(t *testing.T) {
	s := NewStatic().AddPage("u", "x").Delay("u", time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := s.Fetch(ctx, fetch.Request{URL: "u"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "u", <-s.Started())
}

func TestStatic_PeakInFlight(t *testing.T) {
	s := NewStatic().AddPage("u", "x").Delay("u", 30*time.Millisecond)

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Fetch(context.Background(), fetch.Request{URL: "u"})
		}()
	}
	wg.Wait()
	assert.Equal(t, 3, s.PeakInFlight())
}

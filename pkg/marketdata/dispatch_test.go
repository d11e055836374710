package marketdata

import (
	"context"
	"errors"
	"testing"

	"marketconformance/config"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func queued(evs ...Event) <-chan Event {
	ch := make(chan Event, len(evs))
	for _, ev := range evs {
		ch <- ev
	}
	close(ch)
	return ch
}

// go test -v --run TestDispatchAbandonedAttempt
func TestDispatchAbandonedAttempt(t *testing.T) {
	c := NewWSClient(config.WSConfig{URL: "ws://127.0.0.1:1/market"}, zaptest.NewLogger(t))
	// a newer attempt already owns the client
	c.state = StateConnected

	var seen []EventKind
	c.SetEventHook(func(ev Event) { seen = append(seen, ev.Kind) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.dispatch(ctx, queued(
		Event{Kind: EventError, Err: errors.New("late read error")},
		Event{Kind: EventClose, CloseCode: websocket.CloseAbnormalClosure},
	), make(chan error, 1))

	assert.Equal(t, StateConnected, c.State())
	assert.NoError(t, c.LastError())
	assert.Equal(t, []EventKind{EventError, EventClose}, seen)
}

// go test -v --run TestDispatchLiveAttempt
func TestDispatchLiveAttempt(t *testing.T) {
	c := NewWSClient(config.WSConfig{URL: "ws://127.0.0.1:1/market"}, zaptest.NewLogger(t))
	c.state = StateConnected

	readErr := errors.New("read error")
	c.dispatch(context.Background(), queued(
		Event{Kind: EventError, Err: readErr},
		Event{Kind: EventClose, CloseCode: websocket.CloseAbnormalClosure},
	), make(chan error, 1))

	assert.Equal(t, StateDisconnected, c.State())
	assert.ErrorIs(t, c.LastError(), readErr)
}

// go test -v --run TestDispatchReleasesConnect
func TestDispatchReleasesConnect(t *testing.T) {
	c := NewWSClient(config.WSConfig{URL: "ws://127.0.0.1:1/market"}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opened := make(chan error, 1)
	c.dispatch(ctx, queued(), opened)

	select {
	case err := <-opened:
		assert.ErrorIs(t, err, ErrClientClosed)
	default:
		require.Fail(t, "loop ended without releasing Connect")
	}
}

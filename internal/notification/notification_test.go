package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type flakySender struct {
	mu       sync.Mutex
	failures int
	err      error
	calls    int
	sent     []Message
}

func (s *flakySender) Send(ctx context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func fastOptions() Options {
	return Options{Workers: 1, QueueSize: 4, MaxTries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestDispatcherRetriesTransientFailures(t *testing.T) {
	sender := &flakySender{failures: 2, err: errors.New("connection reset")}
	d := NewDispatcher(sender, zap.NewNop(), fastOptions())
	d.Start(context.Background())

	d.Notify(context.Background(), Message{To: "tenant@example.com", Kind: BookingConfirmed})
	d.Close()

	assert.Equal(t, 3, sender.calls)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, BookingConfirmed, sender.sent[0].Kind)
}

func TestDispatcherGivesUpAndLogs(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	sender := &flakySender{failures: 10, err: errors.New("smtp down")}
	d := NewDispatcher(sender, zap.New(core), fastOptions())
	d.Start(context.Background())

	d.Notify(context.Background(), Message{To: "tenant@example.com", Kind: BookingCancelled})
	d.Close()

	assert.Equal(t, 3, sender.calls)
	assert.Empty(t, sender.sent)
	assert.Equal(t, 1, logs.FilterMessage("notification delivery failed").Len())
}

func TestDispatcherDoesNotRetryPermanentErrors(t *testing.T) {
	sender := &flakySender{failures: 10, err: backoff.Permanent(errors.New("bad address"))}
	d := NewDispatcher(sender, zap.NewNop(), fastOptions())
	d.Start(context.Background())

	d.Notify(context.Background(), Message{To: "nobody", Kind: BookingUpdated})
	d.Close()

	assert.Equal(t, 1, sender.calls)
}

func TestDispatcherDropsWhenFullOrClosed(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	sender := &flakySender{}
	opts := fastOptions()
	opts.QueueSize = 1
	d := NewDispatcher(sender, zap.New(core), opts)

	// Not started: the single slot fills and the rest are dropped.
	d.Notify(context.Background(),
		Message{To: "a@example.com", Kind: BookingConfirmation},
		Message{To: "b@example.com", Kind: BookingConfirmation},
		Message{To: "", Kind: BookingConfirmation},
	)
	assert.Equal(t, 1, logs.FilterField(zap.String("reason", "queue full")).Len())

	d.Start(context.Background())
	d.Close()
	d.Notify(context.Background(), Message{To: "c@example.com", Kind: BookingConfirmation})

	assert.Len(t, sender.sent, 1)
	assert.Equal(t, 1, logs.FilterField(zap.String("reason", "dispatcher closed")).Len())
}

func TestDispatcherBreakerOpens(t *testing.T) {
	sender := &flakySender{failures: 100, err: errors.New("relay down")}
	opts := fastOptions()
	opts.MaxTries = 1
	opts.BreakerFailures = 2
	opts.BreakerTimeout = time.Hour
	d := NewDispatcher(sender, zap.NewNop(), opts)
	d.Start(context.Background())

	for i := 0; i < 4; i++ {
		d.Notify(context.Background(), Message{To: "x@example.com", Kind: MoveInReminder})
	}
	d.Close()

	assert.Equal(t, 2, sender.calls, "open breaker short-circuits later sends")
}

func TestRelaySender(t *testing.T) {
	var got map[string]interface{}
	status := http.StatusAccepted
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(status)
	}))
	defer srv.Close()

	s := NewRelaySender(srv.URL)
	msg := Message{To: "owner@example.com", Kind: NewBookingNotification, Payload: map[string]interface{}{"rooms": 2}}
	require.NoError(t, s.Send(context.Background(), msg))
	assert.Equal(t, "owner@example.com", got["to"])
	assert.Equal(t, "NEW_BOOKING_NOTIFICATION", got["kind"])
	assert.Equal(t, "New booking request for your property", got["subject"])

	status = http.StatusUnprocessableEntity
	err := s.Send(context.Background(), msg)
	var perm *backoff.PermanentError
	assert.True(t, errors.As(err, &perm))

	status = http.StatusBadGateway
	err = s.Send(context.Background(), msg)
	require.Error(t, err)
	assert.False(t, errors.As(err, &perm))
}

func TestMessageBody(t *testing.T) {
	msg := Message{Kind: ContractReady, Payload: map[string]interface{}{"property": "Sunny flat", "booking_id": "b1"}}
	assert.Equal(t, "Your rental contract is ready\n\nbooking_id: b1\nproperty: Sunny flat\n", msg.Body())
	assert.Equal(t, "Rentify notification", Message{Kind: "OTHER"}.Subject())
	assert.Equal(t, "a@b.c", envelopeAddress("Rentify <a@b.c>"))
}

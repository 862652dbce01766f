// README: Dispatcher and sink tests.
package notify

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plow/internal/types"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Send(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestDispatcherDeliversToEverySinkDespiteFailures(t *testing.T) {
	failing := &recordingSink{err: errors.New("down")}
	ok := &recordingSink{}
	d := NewDispatcher(quietLogger(), 8, time.Second, failing, ok)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	d.Notify(Event{Kind: KindJobCreated, JobID: "j1"})
	d.Notify(Event{Kind: KindPayment, JobID: "j1"})

	require.Eventually(t, func() bool { return ok.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, failing.count())
	cancel()
	<-done
}

func TestDispatcherNeverBlocksWhenFull(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(quietLogger(), 2, time.Second, sink)

	finished := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Notify(Event{Kind: KindJobStatusChange, JobID: "j1"})
		}
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked with no consumer running")
	}

	d.Close()
	d.Run(context.Background())
	assert.Equal(t, 2, sink.count())
}

type stubMessenger struct {
	mu   sync.Mutex
	sent []*messaging.Message
}

func (m *stubMessenger) Send(_ context.Context, msg *messaging.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return "msg-id", nil
}

type tokenMap map[types.ID]string

func (m tokenMap) DeviceToken(_ context.Context, id types.ID) (string, error) {
	return m[id], nil
}

func TestPushSinkSkipsUsersWithoutDevice(t *testing.T) {
	m := &stubMessenger{}
	op := types.ID("op-1")
	sink := NewPushSink(m, tokenMap{"client-1": "tok-client"})

	err := sink.Send(context.Background(), Event{
		Kind: KindJobStatusChange, JobID: "j1", ClientID: "client-1", OperatorID: &op, Status: "en-route",
	})
	require.NoError(t, err)
	require.Len(t, m.sent, 1)
	assert.Equal(t, "tok-client", m.sent[0].Token)
	assert.Equal(t, "en-route", m.sent[0].Data["status"])
	assert.Equal(t, "Job is now en-route", m.sent[0].Notification.Body)
}

func TestRecipients(t *testing.T) {
	self := types.ID("client-1")
	e := Event{ClientID: "client-1", OperatorID: &self}
	assert.Equal(t, []types.ID{"client-1"}, e.Recipients())
}

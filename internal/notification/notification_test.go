package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cedar-wallet/cedar_wallet/internal/logging"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recordingNotifier) Send(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestDispatcherDeliversToAllNotifiers(t *testing.T) {
	d := NewDispatcher(8, logging.Discard())
	ok := &recordingNotifier{}
	failing := &recordingNotifier{err: errors.New("down")}
	d.Register("ok", ok)
	d.Register("failing", failing)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()

	d.Publish(Event{Type: TypeTransactionCreated, TransactionID: "t1"})
	d.Publish(Event{Type: TypeTransactionConfirmed, TransactionID: "t1"})

	require.Eventually(t, func() bool { return ok.count() == 2 && failing.count() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.NotEmpty(t, ok.events[0].ID)
	assert.False(t, ok.events[0].OccurredAt.IsZero())
}

func TestDispatcherDropsWhenFullAndDrainsOnStop(t *testing.T) {
	d := NewDispatcher(1, logging.Discard())
	rec := &recordingNotifier{}
	d.Register("rec", rec)

	d.Publish(Event{TransactionID: "kept"})
	d.Publish(Event{TransactionID: "dropped"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, d.Run(ctx))

	require.Equal(t, 1, rec.count())
	assert.Equal(t, "kept", rec.events[0].TransactionID)
}

func TestHubRoutesToRecipients(t *testing.T) {
	hub := NewHub(logging.Discard())
	alice := hub.register("alice", nil)
	bob := hub.register("bob", nil)

	err := hub.Send(context.Background(), Event{Type: TypeTransactionConfirmed, TransactionID: "t1", Recipients: []string{"alice"}})
	require.NoError(t, err)

	require.Len(t, alice.send, 2)
	assert.Len(t, bob.send, 0)

	var msg struct {
		Event string `json:"event"`
		Data  Event  `json:"data"`
	}
	require.NoError(t, json.Unmarshal(<-alice.send, &msg))
	assert.Equal(t, "transaction-updated", msg.Event)
	assert.Equal(t, "t1", msg.Data.TransactionID)

	hub.unregister(alice)
	assert.Equal(t, 0, hub.Connected("alice"))
	assert.Equal(t, 1, hub.Connected("bob"))
}

func TestHubDisconnectsSlowClients(t *testing.T) {
	hub := NewHub(logging.Discard())
	client := hub.register("alice", nil)
	for i := 0; i < clientSendBuffer; i++ {
		client.send <- []byte("x")
	}

	require.NoError(t, hub.Send(context.Background(), Event{Type: TypeTransactionConfirmation, Recipients: []string{"alice"}}))
	assert.Equal(t, 0, hub.Connected("alice"))
}

// fakeConn blocks reads until release is closed and counts every call made
// after Close.
type fakeConn struct {
	mu         sync.Mutex
	release    chan struct{}
	writes     [][]byte
	closed     bool
	afterClose int
}

func newFakeConn() *fakeConn { return &fakeConn{release: make(chan struct{})} }

func (c *fakeConn) touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		c.afterClose++
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	time.Sleep(5 * time.Millisecond)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		c.afterClose++
	}
	c.writes = append(c.writes, data)
	return nil
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	<-c.release
	c.touch()
	return 0, nil, errors.New("connection reset")
}

func (c *fakeConn) SetReadDeadline(time.Time) error   { c.touch(); return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error  { c.touch(); return nil }
func (c *fakeConn) SetPongHandler(func(string) error) { c.touch() }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) snapshot() (writes int, closed bool, afterClose int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes), c.closed, c.afterClose
}

func TestHubServeReturnsAfterWriterStops(t *testing.T) {
	hub := NewHub(logging.Discard())
	conn := newFakeConn()

	served := make(chan struct{})
	go func() {
		hub.Serve(conn, "alice")
		close(served)
	}()

	require.Eventually(t, func() bool { return hub.Connected("alice") == 1 }, time.Second, time.Millisecond)
	require.NoError(t, hub.Send(context.Background(), Event{Type: TypeTransactionConfirmed, TransactionID: "t1", Recipients: []string{"alice"}}))
	close(conn.release)

	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after the read side failed")
	}

	writes, closed, afterClose := conn.snapshot()
	assert.True(t, closed, "conn must be closed before Serve returns")
	assert.Zero(t, afterClose)
	assert.Equal(t, 0, hub.Connected("alice"))

	// Nothing touches the connection once Serve has handed it back.
	time.Sleep(30 * time.Millisecond)
	laterWrites, _, laterAfterClose := conn.snapshot()
	assert.Equal(t, writes, laterWrites)
	assert.Zero(t, laterAfterClose)
}

func TestRedisNotifierPublishes(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx := context.Background()
	sub := rdb.Subscribe(ctx, TransactionEventsChannel)
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, NewRedisNotifier(rdb).Send(ctx, Event{Type: TypeTransactionFailed, TransactionID: "t9"}))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var got Event
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, "t9", got.TransactionID)
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func TestKafkaNotifierKeysByTransaction(t *testing.T) {
	w := &fakeWriter{}
	n := &KafkaNotifier{writer: w}
	require.NoError(t, n.Send(context.Background(), Event{Type: TypeTransactionCreated, TransactionID: "t2"}))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "t2", string(w.msgs[0].Key))
	assert.Equal(t, TypeTransactionCreated, string(w.msgs[0].Headers[0].Value))
}

package forwarder

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/podcastindex/podping-gateway/internal/codec"
	"github.com/podcastindex/podping-gateway/internal/podping"
	"github.com/podcastindex/podping-gateway/internal/store"
	"github.com/podcastindex/podping-gateway/internal/transport"
)

// fakeConn is an in-memory Conn: Send appends to a shared buffer a test can
// inspect, and replies are queued onto a channel for Recv to drain.
type fakeConn struct {
	mu      sync.Mutex
	sent    [][]byte
	replies chan []byte
	closed  bool
	failNextSend bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{replies: make(chan []byte, 16)}
}

func (c *fakeConn) Send(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNextSend {
		c.failNextSend = false
		return errSendFailed
	}
	cp := append([]byte(nil), b...)
	c.sent = append(c.sent, cp)
	return nil
}

func (c *fakeConn) Recv(timeout time.Duration) ([]byte, error) {
	select {
	case b := <-c.replies:
		return b, nil
	case <-time.After(timeout):
		return nil, transport.ErrRecvTimeout
	}
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type errString string

func (e errString) Error() string { return string(e) }

const errSendFailed = errString("fake send failure")

type fakeDialer struct {
	mu      sync.Mutex
	dials   int
	conns   []*fakeConn
	nextErr error
}

func (d *fakeDialer) Dial(ctx context.Context, addr string) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.nextErr != nil {
		err := d.nextErr
		d.nextErr = nil
		return nil, err
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func newTestQueueForForwarder(t *testing.T) *store.QueueStore {
	t.Helper()
	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	s, err := store.NewQueueStore(db, store.Options{
		Clock:          func() time.Time { return time.Unix(100_000, 0) },
		DebounceWindow: 0,
	})
	if err != nil {
		t.Fatalf("new queue store: %v", err)
	}
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return s
}

// recentEpoch is a createdon 20s before the fixed test clock: past the 15s
// debounce window but inside the 180s stale-inflight window, so a row marked
// inflight by one iterate is not reset by the next.
const recentEpoch = 100_000 - 20

func TestForwarderSendsAndMarksInflight(t *testing.T) {
	ctx := context.Background()
	q := newTestQueueForForwarder(t)
	if _, err := q.Insert(ctx, podping.Notification{URL: "https://a.example/rss", EpochSecs: 1, Reason: podping.ReasonUpdate, Medium: podping.MediumPodcast}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	dialer := &fakeDialer{}
	f := New(q, dialer, nil, Options{Addr: "fake:1", RecvTimeout: time.Millisecond})

	sent := f.iterate(ctx)
	if sent != 1 {
		t.Fatalf("expected 1 sent, got %d", sent)
	}
	if dialer.dials != 1 {
		t.Fatalf("expected exactly 1 dial, got %d", dialer.dials)
	}

	rows, err := q.SelectBatch(ctx, true)
	if err != nil {
		t.Fatalf("select batch: %v", err)
	}
	if len(rows) != 1 || !rows[0].Inflight {
		t.Fatalf("expected row marked inflight, got %+v", rows)
	}
}

func TestForwarderDeletesOnWriteError(t *testing.T) {
	ctx := context.Background()
	q := newTestQueueForForwarder(t)
	if _, err := q.Insert(ctx, podping.Notification{URL: "https://a.example/rss", EpochSecs: recentEpoch, Reason: podping.ReasonUpdate, Medium: podping.MediumPodcast}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	dialer := &fakeDialer{}
	f := New(q, dialer, nil, Options{Addr: "fake:1", RecvTimeout: time.Millisecond})

	// The reply is queued on the dialer's first conn after the first iterate
	// has dialed, sent, and marked the row inflight.
	f.iterate(ctx) // dials + sends + marks inflight

	wire := codec.EncodeWriteErrorEnvelope(codec.WriteError{
		HasRequest: true,
		Request:    codec.WriteRequest{IRI: "https://a.example/rss", Reason: podping.ReasonUpdate, Medium: podping.MediumPodcast},
		ErrorMessage: "rejected",
	})
	dialer.conns[0].replies <- wire

	f.iterate(ctx) // should receive_pending() the queued error and delete the row

	rows, err := q.SelectBatch(ctx, true)
	if err != nil {
		t.Fatalf("select batch: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected row deleted after write error, got %+v", rows)
	}
}

func TestForwarderDeletesOnHiveTransactionConfirmation(t *testing.T) {
	ctx := context.Background()
	q := newTestQueueForForwarder(t)
	if _, err := q.Insert(ctx, podping.Notification{URL: "https://a.example/rss", EpochSecs: recentEpoch, Reason: podping.ReasonUpdate, Medium: podping.MediumPodcast}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	dialer := &fakeDialer{}
	f := New(q, dialer, nil, Options{Addr: "fake:1", RecvTimeout: time.Millisecond})
	f.iterate(ctx)

	wire := codec.EncodeHiveTransactionEnvelope(codec.HiveTransaction{
		HiveTxID:     "tx1",
		HiveBlockNum: 5,
		Podpings: []codec.PodpingWritten{
			{IRIs: []string{"https://a.example/rss"}, Medium: "podcast", Reason: "update"},
		},
	})
	dialer.conns[0].replies <- wire

	f.iterate(ctx)

	rows, err := q.SelectBatch(ctx, true)
	if err != nil {
		t.Fatalf("select batch: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected row deleted after confirmation, got %+v", rows)
	}
}

func TestForwarderIgnoresPendingHiveTransaction(t *testing.T) {
	ctx := context.Background()
	q := newTestQueueForForwarder(t)
	if _, err := q.Insert(ctx, podping.Notification{URL: "https://a.example/rss", EpochSecs: recentEpoch, Reason: podping.ReasonUpdate, Medium: podping.MediumPodcast}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	dialer := &fakeDialer{}
	f := New(q, dialer, nil, Options{Addr: "fake:1", RecvTimeout: time.Millisecond})
	f.iterate(ctx)

	wire := codec.EncodeHiveTransactionEnvelope(codec.HiveTransaction{HiveTxID: "pending", HiveBlockNum: 0})
	dialer.conns[0].replies <- wire
	f.iterate(ctx)

	rows, err := q.SelectBatch(ctx, true)
	if err != nil {
		t.Fatalf("select batch: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected row to remain while block num is 0, got %+v", rows)
	}
}

func TestForwarderReconnectsOnSendFailure(t *testing.T) {
	ctx := context.Background()
	q := newTestQueueForForwarder(t)
	if _, err := q.Insert(ctx, podping.Notification{URL: "https://a.example/rss", EpochSecs: 1, Reason: podping.ReasonUpdate, Medium: podping.MediumPodcast}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := q.Insert(ctx, podping.Notification{URL: "https://b.example/rss", EpochSecs: 1, Reason: podping.ReasonUpdate, Medium: podping.MediumPodcast}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	dialer := &fakeDialer{}
	f := New(q, dialer, nil, Options{Addr: "fake:1", RecvTimeout: time.Millisecond})

	// Dial the first connection, then force its next send to fail so the
	// forwarder reconnects mid-batch.
	if !f.ensureConn(ctx) {
		t.Fatal("expected initial dial to succeed")
	}
	dialer.conns[0].failNextSend = true

	sent := f.iterate(ctx)
	if sent != 0 {
		t.Fatalf("expected 0 sent when the first send in the batch fails, got %d", sent)
	}
	if f.conn != nil {
		t.Fatal("expected connection to be cleared after send failure")
	}

	sent = f.iterate(ctx)
	if sent == 0 {
		t.Fatal("expected the retried batch to succeed on the reconnected connection")
	}
	if dialer.dials < 2 {
		t.Fatalf("expected at least 2 dials across the reconnect, got %d", dialer.dials)
	}
}

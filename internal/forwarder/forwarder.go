// Package forwarder runs the periodic worker loop that drains the queue
// store over a persistent framed socket to the remote hive-writer,
// interleaving sends and receives, tracking in-flight items, and
// reconciling acknowledgements. Its reconnect-on-failure and
// sleep-when-idle pacing is grounded on services/crypto-stream's runWS/
// outer-loop shape (main.go), generalized from a read-only market feed to
// this codebase's send-then-interleave-receive write path.
package forwarder

import (
	"context"
	"time"

	"github.com/podcastindex/podping-gateway/internal/apperrors"
	"github.com/podcastindex/podping-gateway/internal/codec"
	"github.com/podcastindex/podping-gateway/internal/store"
	"github.com/podcastindex/podping-gateway/internal/telemetry"
	"github.com/podcastindex/podping-gateway/internal/transport"
)

// Options configures a Forwarder's pacing and socket behavior.
type Options struct {
	Addr           string
	RecvTimeout    time.Duration // per receive_pending call
	IdleSleep      time.Duration // sleep between iterations when sent < BusyThreshold
	BusyThreshold  int           // sent count below which the idle sleep applies
	ReconnectDelay time.Duration
	// OnProgress, when set, is called after any iteration that sent or
	// deleted at least one row, letting the /healthz surface report
	// forwarder staleness without the forwarder depending on intake.
	OnProgress func(time.Time)
}

func (o *Options) setDefaults() {
	if o.RecvTimeout <= 0 {
		o.RecvTimeout = 10 * time.Millisecond
	}
	if o.IdleSleep <= 0 {
		o.IdleSleep = 500 * time.Millisecond
	}
	if o.BusyThreshold <= 0 {
		o.BusyThreshold = 5
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = time.Second
	}
}

// Forwarder is the queue-to-writer worker described in SPEC_FULL.md §4.E.
type Forwarder struct {
	queue  *store.QueueStore
	dialer transport.Dialer
	log    *telemetry.Logger
	opts   Options

	conn       transport.Conn
	progressed bool
}

// New builds a Forwarder. dialer is pluggable so tests can substitute a
// fake Transport.
func New(queue *store.QueueStore, dialer transport.Dialer, log *telemetry.Logger, opts Options) *Forwarder {
	opts.setDefaults()
	if log == nil {
		log = telemetry.Nop
	}
	return &Forwarder{queue: queue, dialer: dialer, log: log, opts: opts}
}

// Run loops until ctx is cancelled. Callers are expected to wrap Run in a
// recover-then-exit guard (the process shell does this per SPEC_FULL.md
// §4.E: a panic here has no useful degraded mode).
func (f *Forwarder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			f.closeConn()
			return
		default:
		}

		sent := f.iterate(ctx)

		select {
		case <-ctx.Done():
			f.closeConn()
			return
		default:
		}

		if sent < f.opts.BusyThreshold {
			time.Sleep(f.opts.IdleSleep)
		}
	}
}

func (f *Forwarder) closeConn() {
	if f.conn != nil {
		_ = f.conn.Close()
		f.conn = nil
	}
}

// iterate runs one loop body and returns how many items it sent.
func (f *Forwarder) iterate(ctx context.Context) int {
	f.progressed = false

	if err := f.queue.ResetStaleInflight(ctx); err != nil {
		f.log.Warn("reset stale inflight failed", map[string]any{"error": err})
	}

	f.receivePending(ctx)

	batch, err := f.queue.SelectBatch(ctx, false)
	if err != nil {
		f.log.Warn("select batch failed", map[string]any{"error": err})
		if f.progressed && f.opts.OnProgress != nil {
			f.opts.OnProgress(time.Now())
		}
		return 0
	}

	sent := 0
	for _, row := range batch {
		if !f.ensureConn(ctx) {
			break
		}

		wire := codec.EncodeWriteRequestEnvelope(codec.WriteRequest{
			IRI:    row.URL,
			Reason: row.Reason,
			Medium: row.Medium,
		})

		if err := f.conn.Send(wire); err != nil {
			f.log.Warn("send failed, reconnecting", map[string]any{"code": apperrors.TransportFailure, "error": err, "url": row.URL})
			f.closeConn()
			break
		}

		if err := f.queue.MarkInflight(ctx, row.URL); err != nil {
			f.log.Warn("mark inflight failed", map[string]any{"error": err, "url": row.URL})
		}
		sent++
		f.progressed = true

		f.receivePending(ctx)
	}

	if f.progressed && f.opts.OnProgress != nil {
		f.opts.OnProgress(time.Now())
	}

	return sent
}

func (f *Forwarder) ensureConn(ctx context.Context) bool {
	if f.conn != nil {
		return true
	}
	conn, err := f.dialer.Dial(ctx, f.opts.Addr)
	if err != nil {
		f.log.Warn("dial writer failed", map[string]any{"error": err, "addr": f.opts.Addr})
		time.Sleep(f.opts.ReconnectDelay)
		return false
	}
	f.conn = conn
	return true
}

// receivePending performs a single non-blocking receive and dispatches the
// reply, if any, per SPEC_FULL.md §4.E.
func (f *Forwarder) receivePending(ctx context.Context) {
	if f.conn == nil {
		return
	}
	raw, err := f.conn.Recv(f.opts.RecvTimeout)
	if err != nil {
		if err == transport.ErrRecvTimeout {
			return
		}
		f.log.Warn("recv failed, reconnecting", map[string]any{"code": apperrors.TransportFailure, "error": err})
		f.closeConn()
		return
	}

	env, err := codec.UnmarshalEnvelope(raw)
	if err != nil {
		f.log.Warn("malformed envelope dropped", map[string]any{"code": apperrors.MalformedFrame, "error": err})
		return
	}

	switch env.TypeName {
	case codec.TypeWriteError:
		f.handleWriteError(ctx, env.Payload)
	case codec.TypeHiveTransaction:
		f.handleHiveTransaction(ctx, env.Payload)
	default:
		// Unknown type: ignore, forward-compatible.
	}
}

func (f *Forwarder) handleWriteError(ctx context.Context, payload []byte) {
	werr, err := codec.UnmarshalWriteError(payload)
	if err != nil {
		f.log.Warn("malformed write error dropped", map[string]any{"code": apperrors.MalformedFrame, "error": err})
		return
	}
	if !werr.HasRequest {
		f.log.Warn("writer reported error with no request", map[string]any{"code": apperrors.MalformedFrame, "message": werr.ErrorMessage})
		return
	}
	if err := f.queue.Delete(ctx, werr.Request.IRI); err != nil {
		f.log.Warn("delete after writer error failed", map[string]any{"error": err, "url": werr.Request.IRI})
	} else {
		f.progressed = true
	}
	f.log.Info("writer rejected item", map[string]any{"code": apperrors.WriterRejectedItem, "url": werr.Request.IRI, "message": werr.ErrorMessage})
}

func (f *Forwarder) handleHiveTransaction(ctx context.Context, payload []byte) {
	tx, err := codec.UnmarshalHiveTransaction(payload)
	if err != nil {
		f.log.Warn("malformed hive transaction dropped", map[string]any{"code": apperrors.MalformedFrame, "error": err})
		return
	}
	if tx.HiveBlockNum == 0 {
		f.log.Debug("hive transaction pending, no block yet", map[string]any{"code": apperrors.WriterPending, "hive_tx_id": tx.HiveTxID})
		return
	}
	for _, p := range tx.Podpings {
		for _, iri := range p.IRIs {
			if err := f.queue.Delete(ctx, iri); err != nil {
				f.log.Warn("delete after confirmation failed", map[string]any{"error": err, "url": iri})
			} else {
				f.progressed = true
			}
		}
	}
	f.log.Info("hive transaction confirmed", map[string]any{"hive_tx_id": tx.HiveTxID, "block": tx.HiveBlockNum})
}

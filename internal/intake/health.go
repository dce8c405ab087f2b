package intake

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/podcastindex/podping-gateway/internal/apperrors"
	"github.com/podcastindex/podping-gateway/internal/store"
)

// HealthReporter assembles the /healthz snapshot: store reachability plus
// the forwarder's last successful iteration time, grounded on this
// codebase's health-handler pattern (services/gateway/api/handlers.Health).
type HealthReporter struct {
	queue *store.QueueStore
	auth  *store.AuthStore

	lastForwarderSuccess atomic.Value // time.Time
}

// NewHealthReporter builds a reporter over the gateway's two stores.
func NewHealthReporter(queue *store.QueueStore, auth *store.AuthStore) *HealthReporter {
	return &HealthReporter{queue: queue, auth: auth}
}

// RecordForwarderSuccess is called by the forwarder after a send/receive
// iteration that made progress, so /healthz can report staleness.
func (h *HealthReporter) RecordForwarderSuccess(t time.Time) {
	h.lastForwarderSuccess.Store(t)
}

// Report is the JSON-serializable readiness snapshot.
type Report struct {
	Healthy              bool   `json:"healthy"`
	QueueOK              bool   `json:"queue_ok"`
	QueueRows            int64  `json:"queue_rows"`
	QueueInflight        int64  `json:"queue_inflight"`
	AuthOK               bool   `json:"auth_ok"`
	ForwarderLastSuccess string `json:"forwarder_last_success,omitempty"`
	DegradedKind         string `json:"degraded_kind,omitempty"`
	DegradedReason       string `json:"degraded_reason,omitempty"`
}

func (h *HealthReporter) Snapshot(ctx context.Context) Report {
	var rep Report

	if st, err := h.queue.Stats(ctx); err == nil {
		rep.QueueOK = true
		rep.QueueRows = st.Rows
		rep.QueueInflight = st.Inflight
	}

	if _, err := h.auth.ListNames(ctx); err == nil {
		rep.AuthOK = true
	}

	if v := h.lastForwarderSuccess.Load(); v != nil {
		rep.ForwarderLastSuccess = v.(time.Time).UTC().Format(time.RFC3339)
	}

	rep.Healthy = rep.QueueOK && rep.AuthOK
	if !rep.Healthy {
		if m, ok := apperrors.MetaOf(apperrors.StoreFailure); ok {
			rep.DegradedKind = m.Kind
			rep.DegradedReason = m.Description
		}
	}
	return rep
}

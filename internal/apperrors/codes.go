// Package apperrors is the gateway's stable error-code registry: a small set
// of named kinds mapped to an HTTP status, a retryability hint, and a
// human description, in the shape this codebase's services use for internal
// bookkeeping and for the /healthz report. Client-facing bodies stay
// plain-text per the wire contract (see WriteHTTP); the registry exists so
// every caller reasons about failures by a stable Code rather than an error
// string.
package apperrors

import (
	"net/http"
	"sort"
)

// Code is a stable error kind shared across the gateway's components.
type Code string

const (
	Unauthorised       Code = "unauthorised"
	BadRequest         Code = "bad_request"
	DuplicateRejected  Code = "duplicate_rejected"
	StoreFailure       Code = "store_failure"
	TransportFailure   Code = "transport_failure"
	MalformedFrame     Code = "malformed_frame"
	WriterRejectedItem Code = "writer_rejected_item"
	WriterPending      Code = "writer_pending"
)

// Meta carries bookkeeping about a Code.
type Meta struct {
	HTTPStatus  int    `json:"http_status"`
	Retryable   bool   `json:"retryable"`
	Kind        string `json:"kind"` // client|server|security|dependency|internal
	Description string `json:"description"`
}

var registry = map[Code]Meta{
	Unauthorised:       {HTTPStatus: http.StatusUnauthorized, Retryable: false, Kind: "security", Description: "caller failed authorization"},
	BadRequest:         {HTTPStatus: http.StatusBadRequest, Retryable: false, Kind: "client", Description: "request missing or malformed a required field"},
	DuplicateRejected:  {HTTPStatus: http.StatusOK, Retryable: false, Kind: "internal", Description: "queue already holds this url; not user-visible"},
	StoreFailure:       {HTTPStatus: http.StatusInternalServerError, Retryable: true, Kind: "dependency", Description: "queue or auth store operation failed"},
	TransportFailure:   {HTTPStatus: 0, Retryable: true, Kind: "dependency", Description: "writer socket send/receive failed; recovered by reconnect"},
	MalformedFrame:     {HTTPStatus: 0, Retryable: false, Kind: "dependency", Description: "writer sent an undecodable frame; dropped"},
	WriterRejectedItem: {HTTPStatus: 0, Retryable: false, Kind: "dependency", Description: "writer gave up on an item; row deleted"},
	WriterPending:      {HTTPStatus: 0, Retryable: true, Kind: "dependency", Description: "writer ack not yet in a block; no-op"},
}

// MetaOf returns the metadata for a code, and whether it is known.
func MetaOf(code Code) (Meta, bool) {
	m, ok := registry[code]
	return m, ok
}

// Known reports whether code is registered.
func Known(code Code) bool {
	_, ok := registry[code]
	return ok
}

// All returns every registered code, sorted for deterministic iteration.
func All() []Code {
	out := make([]Code, 0, len(registry))
	for c := range registry {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// WriteHTTP writes a plain-text response for the given status and body, the
// wire shape documented in SPEC_FULL.md §6 (the gateway's client-facing
// bodies are plain text, never a JSON error envelope).
func WriteHTTP(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// WriteCode writes body at the HTTP status registered for code, so callers
// classify a response by its stable Code rather than repeating the status
// constant at every call site.
func WriteCode(w http.ResponseWriter, code Code, body string) {
	status := http.StatusInternalServerError
	if m, ok := MetaOf(code); ok && m.HTTPStatus != 0 {
		status = m.HTTPStatus
	}
	WriteHTTP(w, status, body)
}

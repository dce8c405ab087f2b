package apperrors

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
)

func TestMetaOfKnownCode(t *testing.T) {
	m, ok := MetaOf(Unauthorised)
	if !ok {
		t.Fatalf("expected Unauthorised to be known")
	}
	if m.HTTPStatus != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, m.HTTPStatus)
	}
}

func TestMetaOfUnknownCode(t *testing.T) {
	if _, ok := MetaOf(Code("not_a_real_code")); ok {
		t.Fatalf("expected unknown code to report not-ok")
	}
}

func TestKnown(t *testing.T) {
	if !Known(BadRequest) {
		t.Fatalf("expected BadRequest to be known")
	}
	if Known(Code("bogus")) {
		t.Fatalf("expected bogus code to be unknown")
	}
}

func TestAllIsSortedAndComplete(t *testing.T) {
	all := All()
	want := []Code{
		Unauthorised, BadRequest, DuplicateRejected, StoreFailure,
		TransportFailure, MalformedFrame, WriterRejectedItem, WriterPending,
	}
	if len(all) != len(want) {
		t.Fatalf("expected %d codes, got %d", len(want), len(all))
	}
	if !sort.SliceIsSorted(all, func(i, j int) bool { return all[i] < all[j] }) {
		t.Fatalf("expected All() to return sorted codes, got %v", all)
	}
	for _, c := range want {
		if !Known(c) {
			t.Fatalf("expected %q to be registered", c)
		}
	}
}

func TestWriteCodeUsesRegisteredStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteCode(rec, Unauthorised, "nope")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected %d, got %d", http.StatusUnauthorized, rec.Code)
	}
	if rec.Body.String() != "nope" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestWriteCodeFallsBackOnZeroStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteCode(rec, TransportFailure, "internal only")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected %d for a status-less code, got %d", http.StatusInternalServerError, rec.Code)
	}
}

func TestWriteHTTPWritesPlainText(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteHTTP(rec, http.StatusOK, "Success!")
	if rec.Code != http.StatusOK || rec.Body.String() != "Success!" {
		t.Fatalf("unexpected response: status=%d body=%q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
		t.Fatalf("unexpected content-type %q", ct)
	}
}

package intake

import (
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/podcastindex/podping-gateway/internal/apperrors"
	"github.com/podcastindex/podping-gateway/internal/podping"
)

//go:embed landing.tmpl
var landingFS embed.FS

var landingTmpl = template.Must(template.ParseFS(landingFS, "landing.tmpl"))

type handlers struct {
	deps Deps
}

// clientIP prefers cf-connecting-ip over the raw remote address for
// request logging, a carried-over enrichment from the original handler's ip
// preference — logging only, never a security control.
func clientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("cf-connecting-ip")); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

func (h *handlers) root(w http.ResponseWriter, r *http.Request) {
	if len(r.URL.Query()) == 0 {
		w.Header().Set("content-type", "text/html; charset=utf-8")
		_ = landingTmpl.Execute(w, map[string]string{"Service": "podping-gateway"})
		return
	}
	h.ingest(w, r)
}

// ingest implements the validation order of SPEC_FULL.md §4.D: first
// failure wins.
func (h *handlers) ingest(w http.ResponseWriter, r *http.Request) {
	log := h.deps.Log
	ip := clientIP(r)

	authHeader := strings.TrimSpace(r.Header.Get("authorization"))
	if authHeader == "" {
		apperrors.WriteCode(w, apperrors.Unauthorised, "Invalid Authorization header")
		return
	}

	ok, err := h.deps.Auth.Authorized(r.Context(), authHeader)
	if err != nil {
		log.Warn("auth lookup failed", map[string]any{"error": err, "ip": ip})
		apperrors.WriteCode(w, apperrors.Unauthorised, "Bad Authorization header check")
		return
	}
	if !ok {
		apperrors.WriteCode(w, apperrors.Unauthorised, "Bad Authorization header check")
		return
	}

	if strings.TrimSpace(r.Header.Get("user-agent")) == "" {
		apperrors.WriteCode(w, apperrors.Unauthorised, "User-Agent header is required")
		return
	}

	url := r.URL.Query().Get("url")
	if strings.TrimSpace(url) == "" {
		apperrors.WriteCode(w, apperrors.BadRequest, "usage: GET /?url=<feed-url>&reason=<reason>&medium=<medium>")
		return
	}

	if !strings.HasPrefix(strings.ToLower(url), "http") {
		apperrors.WriteCode(w, apperrors.BadRequest, "url must be an http(s) url")
		return
	}

	reason := podping.ParseReason(r.URL.Query().Get("reason"))
	medium := podping.ParseMedium(r.URL.Query().Get("medium"))

	n := podping.Notification{URL: url, EpochSecs: time.Now().Unix(), Reason: reason, Medium: medium}
	outcome, err := h.deps.Queue.Insert(r.Context(), n)
	if err != nil {
		// Store failures are never surfaced to the client: log and fall
		// through to Success! regardless of outcome.
		log.Warn("queue insert failed", map[string]any{"code": apperrors.StoreFailure, "error": err, "ip": ip, "url": url})
	} else {
		fields := map[string]any{"ip": ip, "url": url, "reason": reason.String(), "outcome": outcome.String()}
		if outcome == podping.DuplicateRejected {
			fields["code"] = apperrors.DuplicateRejected
		}
		log.Info("notification accepted", fields)
	}
	apperrors.WriteHTTP(w, http.StatusOK, "Success!")
}

func (h *handlers) publishers(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(r.Header.Get("user-agent")) == "" {
		apperrors.WriteCode(w, apperrors.Unauthorised, "User-Agent header is required")
		return
	}
	names, err := h.deps.Auth.ListNames(r.Context())
	if err != nil {
		h.deps.Log.Warn("publisher listing failed", map[string]any{"error": err})
		w.WriteHeader(http.StatusNoContent)
		return
	}
	apperrors.WriteHTTP(w, http.StatusOK, strings.Join(names, "\n"))
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	rep := h.deps.Health.Snapshot(r.Context())
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(rep)
}

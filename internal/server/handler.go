package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	airlock "github.com/reodash/airlock/internal"
	"github.com/reodash/airlock/internal/origin"
	"github.com/reodash/airlock/internal/strategy"
)

// Disposition headers use the canonical MIME form so direct map access skips
// textproto canonicalization (see middleware.go:requestIDHeader).
const (
	airlockHeader = "X-Airlock"
	exposeHeader  = "Access-Control-Expose-Headers"
)

// Pre-allocated header value slices, one per disposition, plus the CORS
// expose list that lets browser scripts read the disposition.
var (
	hitVal      = []string{"hit"}
	missVal     = []string{"miss"}
	fallbackVal = []string{"fallback"}
	offlineVal  = []string{"offline"}
	bypassVal   = []string{"bypass"}
	exposeVal   = []string{airlockHeader}
)

func dispositionValue(d strategy.Disposition) []string {
	switch d {
	case strategy.DispositionHit:
		return hitVal
	case strategy.DispositionMiss:
		return missVal
	case strategy.DispositionFallback:
		return fallbackVal
	case strategy.DispositionOffline:
		return offlineVal
	case strategy.DispositionBypass:
		return bypassVal
	}
	return []string{string(d)}
}

// handleIntercept is the single entry point for origin traffic. Requests are
// classified and dispatched to a response strategy; before activation
// everything streams straight through so clients never wait on an installing
// gateway.
func (s *server) handleIntercept(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Lifecycle.IsActive() {
		s.passthrough(w, r)
		return
	}

	class := airlock.Classify(r.Method, r.URL.Path, airlock.IsNavigation(r))
	if class == airlock.ClassIgnore {
		s.passthrough(w, r)
		return
	}

	requestURI := r.URL.RequestURI()

	var (
		res strategy.Result
		err error
	)
	switch class {
	case airlock.ClassAPI:
		res, err = s.deps.Strategy.ServeAPI(r.Context(), r.Method, requestURI, r.Header)
	case airlock.ClassNavigation:
		res, err = s.deps.Strategy.ServeNavigation(r.Context(), requestURI, r.Header)
	default:
		res, err = s.deps.Strategy.ServeAsset(r.Context(), requestURI)
	}
	if err != nil {
		s.writeUnavailable(w, r, err)
		return
	}

	if res.Live != nil {
		writeLive(w, r, res)
		return
	}
	writeStored(w, res)
}

// passthrough streams a request the gateway does not manage. The disposition
// header is set before Forward writes anything so it is present on both the
// proxied answer and Forward's own 502.
func (s *server) passthrough(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h[airlockHeader] = bypassVal
	h[exposeHeader] = exposeVal
	if err := s.deps.Origin.Forward(w, r); err != nil {
		slog.LogAttrs(r.Context(), slog.LevelWarn, "passthrough failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}

// writeUnavailable answers for a request with neither a reachable origin nor
// a cached fallback.
func (s *server) writeUnavailable(w http.ResponseWriter, r *http.Request, err error) {
	slog.LogAttrs(r.Context(), slog.LevelWarn, "request unavailable",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	w.Header()[airlockHeader] = offlineVal
	w.Header()[exposeHeader] = exposeVal
	writeJSON(w, http.StatusBadGateway, errorBody{Error: "offline", Detail: err.Error()})
}

// writeLive streams a live origin response to the client. WriteResponse
// strips hop-by-hop headers; the body is closed here.
func writeLive(w http.ResponseWriter, r *http.Request, res strategy.Result) {
	defer res.Live.Body.Close()
	h := w.Header()
	h[airlockHeader] = dispositionValue(res.Disposition)
	h[exposeHeader] = exposeVal
	if err := origin.WriteResponse(w, res.Live); err != nil {
		slog.LogAttrs(r.Context(), slog.LevelWarn, "live stream interrupted",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}

// writeStored replays a cached snapshot. Stored headers were stripped of
// hop-by-hop fields at snapshot time; framing is recomputed from the body.
// The disposition is stamped after the stored headers so a snapshot can
// never carry its own.
func writeStored(w http.ResponseWriter, res strategy.Result) {
	h := w.Header()
	for key, vals := range res.Stored.Header {
		h[key] = vals
	}
	h["Content-Length"] = []string{strconv.Itoa(len(res.Stored.Body))}
	h[airlockHeader] = dispositionValue(res.Disposition)
	h[exposeHeader] = exposeVal
	w.WriteHeader(res.Stored.Status)
	w.Write(res.Stored.Body)
}

// errorBody is the JSON error shape shared with the offline answer the
// strategy engine synthesizes.
type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// jsonCT is a pre-allocated header value slice. Direct map assignment
// (w.Header()["Content-Type"] = jsonCT) avoids the []string{v} alloc
// that Header.Set creates on every call. Saves 1 alloc/req.
var jsonCT = []string{"application/json"}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

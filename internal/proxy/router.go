package proxy

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/coreguard/coreguard/internal/observability"
	"github.com/coreguard/coreguard/internal/observability/logging"
	"github.com/coreguard/coreguard/internal/observability/metrics"
)

// RequestIDHeader carries the op id of every response.
const RequestIDHeader = "X-Request-Id"

type router struct {
	forwarder *Forwarder
	metrics   *metrics.Metrics
}

// NewRouter builds the HTTP surface. m may be nil, in which case /metrics is not served.
func NewRouter(fwd *Forwarder, m *metrics.Metrics) http.Handler {
	rt := &router{forwarder: fwd, metrics: m}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(withOpID)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	r.Post("/", rt.serveRPC)
	r.Post("/*", rt.serveRPC)

	return otelhttp.NewHandler(r, "coreguard",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "coreguard." + r.Method
		}))
}

// withOpID assigns the request its op id. A caller-supplied X-Request-Id is kept
// when it is a UUID.
func withOpID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := observability.WithGivenOpID(r.Context(), r.Header.Get(RequestIDHeader))
		w.Header().Set(RequestIDHeader, observability.OpID(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (rt *router) serveRPC(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	path := chi.URLParam(r, "*")

	req := ReadRequest(r.Body)
	rt.metrics.ObserveRequest(req.Kind.String())

	if req.Invalid != nil {
		rt.metrics.ObserveCall(metrics.UnsupportedMethodLabel, string(req.Invalid.Kind))
		logging.From(ctx).Event(ctx, "request.rejected", map[string]any{
			"kind":   string(req.Invalid.Kind),
			"reason": req.Invalid.Error.Message,
		})
		writeJSON(w, r, req.Invalid)
		return
	}

	if req.Kind == KindSingle {
		writeJSON(w, r, rt.forwarder.Forward(ctx, req.Calls[0], path, -1))
		return
	}

	// Sequential on purpose: the node sees batch items in order.
	envs := make([]Envelope, len(req.Calls))
	for i, call := range req.Calls {
		envs[i] = rt.forwarder.Forward(ctx, call, path, i)
	}
	writeJSON(w, r, envs)
}

// writeJSON always answers 200; errors travel inside envelopes.
func writeJSON(w http.ResponseWriter, r *http.Request, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		logging.From(r.Context()).Error("router", "failed to marshal response", "error", err)
		data, _ = json.Marshal(errorEnvelope(KindUpstream, "malformed upstream response"))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

package proxy

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/cloudfleet/fleetctl/pkg/selection"
)

func readAndClose(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}

// Handler serves /load by delegating to a Forwarder.
type Handler struct {
	forwarder *Forwarder
	log       *zap.SugaredLogger
}

// NewHandler builds the /load http.Handler.
func NewHandler(forwarder *Forwarder, log *zap.SugaredLogger) *Handler {
	return &Handler{forwarder: forwarder, log: log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > maxBodyBytes {
		http.Error(w, "Request too large", http.StatusRequestEntityTooLarge)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if len(body) > maxBodyBytes {
		http.Error(w, "Request too large", http.StatusRequestEntityTooLarge)
		return
	}

	result, err := h.forwarder.Forward(r.Context(), r.Method, "/load", body, r.Header, r.URL.RawQuery)
	switch {
	case err == nil:
		for key, values := range result.Header {
			for _, v := range values {
				w.Header().Add(key, v)
			}
		}
		w.WriteHeader(result.StatusCode)
		_, _ = w.Write(result.Body)
	case errors.Is(err, ErrNoHealthyWorker):
		http.Error(w, "No healthy servers", http.StatusServiceUnavailable)
	case errors.Is(err, ErrUpstreamExhausted):
		http.Error(w, "All backend servers unavailable", http.StatusBadGateway)
	case errors.Is(err, selection.ErrPolicyUnimplemented):
		h.log.Errorw("proxy: selection policy unimplemented", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
	default:
		h.log.Errorw("proxy: unexpected forwarding error", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

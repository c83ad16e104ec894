package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opencensus.io/trace"
	"go.uber.org/zap"

	"github.com/cloudfleet/fleetctl/pkg/discovery"
)

const (
	attemptTimeout     = 3 * time.Second
	perWorkerAttempts  = 3
	perWorkerRetryWait = 100 * time.Millisecond
	crossWorkerPicks   = 5
)

// Picker selects the next worker to forward a request to. A
// *selection.Selector satisfies this.
type Picker interface {
	Choose() (discovery.Worker, bool, error)
}

// Forwarder implements the retry loops of spec.md §4.F over a chosen
// worker's /load endpoint.
type Forwarder struct {
	picker Picker
	client *http.Client
	log    *zap.SugaredLogger
}

// NewForwarder builds a Forwarder. The underlying client never follows
// redirects and applies a fixed per-attempt timeout, matching the
// source's requests.request(..., timeout=3, allow_redirects=False).
func NewForwarder(picker Picker, log *zap.SugaredLogger) *Forwarder {
	return &Forwarder{
		picker: picker,
		client: &http.Client{
			Timeout: attemptTimeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		log: log,
	}
}

// Result is a successfully forwarded upstream response.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Forward implements the cross-worker retry loop: up to crossWorkerPicks
// worker selections, each exhausting its own perWorkerAttempts before
// moving on.
func (f *Forwarder) Forward(ctx context.Context, method, path string, body []byte, header http.Header, rawQuery string) (Result, error) {
	for pick := 0; pick < crossWorkerPicks; pick++ {
		w, ok, err := f.picker.Choose()
		if err != nil {
			return Result{}, fmt.Errorf("selection: %w", err)
		}
		if !ok {
			if pick == 0 {
				return Result{}, ErrNoHealthyWorker
			}
			break
		}

		res, err := f.forwardToWorker(ctx, w, method, path, body, header, rawQuery)
		if err == nil {
			return res, nil
		}
		f.log.Warnw("proxy: worker exhausted its attempts, retrying with another worker",
			"worker", w.ContainerName, "error", err)
	}
	return Result{}, ErrUpstreamExhausted
}

// forwardToWorker implements the per-worker retry loop: up to
// perWorkerAttempts, perWorkerRetryWait apart.
func (f *Forwarder) forwardToWorker(ctx context.Context, w discovery.Worker, method, path string, body []byte, header http.Header, rawQuery string) (Result, error) {
	ctx, span := trace.StartSpan(ctx, "proxy.ForwardToWorker")
	defer span.End()
	span.AddAttributes(trace.StringAttribute("worker.endpoint", w.EndpointURL))

	url := w.EndpointURL + path
	if rawQuery != "" {
		url += "?" + rawQuery
	}

	var lastErr error
	for attempt := 0; attempt < perWorkerAttempts; attempt++ {
		span.AddAttributes(trace.Int64Attribute("attempt", int64(attempt+1)))
		if attempt > 0 {
			time.Sleep(perWorkerRetryWait)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return Result{}, err
		}
		copyFilteredHeaders(req.Header, header)

		resp, err := f.client.Do(req)
		if err != nil {
			lastErr = err
			f.log.Warnw("proxy: attempt failed", "worker", w.ContainerName, "attempt", attempt+1, "error", err)
			continue
		}

		respBody, err := readAndClose(resp)
		if err != nil {
			lastErr = err
			continue
		}

		out := Result{StatusCode: resp.StatusCode, Header: make(http.Header), Body: respBody}
		copyFilteredHeaders(out.Header, resp.Header)
		return out, nil
	}
	if lastErr == nil {
		lastErr = errors.New("exhausted attempts")
	}
	return Result{}, lastErr
}

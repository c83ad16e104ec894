// Package e2e wires the real discovery, selection, proxy, and
// autoscaler components together end to end, against fakes for the
// container runtime and the metrics source, exercising spec.md §8's
// scenario table without a live Docker daemon or Prometheus server.
package e2e

import (
	"fmt"
	"net"
	"net/http"
	"testing"

	"go.uber.org/zap"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// workerServer is one fake fleet member: it answers /health on its own
// listener, attached to a distinct loopback IP so several can share one
// WorkerPort, exactly as distinct containers on the same overlay
// network port would.
type workerServer struct {
	ip   string
	port int
	ln   net.Listener
	srv  *http.Server
}

func (w *workerServer) close() { _ = w.srv.Close() }

// startWorkerCluster binds len(handlers) listeners across 127.0.0.1,
// 127.0.0.2, ... all on the same port (the first listener picks a free
// one; the rest reuse it), since discovery.Config.WorkerPort is a
// single value shared by every container's constructed endpoint.
func startWorkerCluster(t *testing.T, handlers []http.Handler) ([]*workerServer, func()) {
	t.Helper()
	var workers []*workerServer
	port := 0
	for i, h := range handlers {
		ip := fmt.Sprintf("127.0.0.%d", i+1)
		ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", ip, port))
		if err != nil {
			t.Fatalf("listen on %s:%d: %v", ip, port, err)
		}
		if port == 0 {
			port = ln.Addr().(*net.TCPAddr).Port
		}
		srv := &http.Server{Handler: h}
		go srv.Serve(ln)
		workers = append(workers, &workerServer{ip: ip, port: port, ln: ln, srv: srv})
	}
	return workers, func() {
		for _, w := range workers {
			w.close()
		}
	}
}

// healthOnly answers /health with 200 and everything else with 200 too,
// echoing which worker served the request.
func healthOnly(name string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Worker", name)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(name))
	})
	return mux
}

// healthyThenDead answers /health with 200 until dead() returns true,
// after which /health drops the connection; every other path keeps
// answering 200 with the worker's name.
func healthyThenDead(name string, dead func() bool) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if dead() {
			hijackAndClose(w)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Worker", name)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(name))
	})
	return mux
}

// deadOnLoad answers /health normally but hijacks and drops the
// connection on every other path, standing in for a worker whose
// forward path never completes. Dropping the connection fails the
// client immediately instead of waiting out the real per-attempt
// timeout, keeping the test fast while still exercising the retry
// loop the same way a hung connection would.
func deadOnLoad(name string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		hijackAndClose(w)
	})
	return mux
}

func hijackAndClose(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		return
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		return
	}
	_ = conn.Close()
}

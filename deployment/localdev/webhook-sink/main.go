// Command webhook-sink is a local stand-in for an alerting endpoint. It
// records notifier deliveries and serves upstream targets for the
// network-retry correction strategy.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

type delivery struct {
	Kind   string    `json:"kind"`
	SentAt time.Time `json:"sentAt"`
	Batch  *struct {
		Records  []json.RawMessage `json:"records"`
		Patterns []json.RawMessage `json:"patterns"`
	} `json:"batch,omitempty"`
	Alert *struct {
		Record struct {
			ID       string `json:"id"`
			Severity string `json:"severity"`
			Message  string `json:"message"`
		} `json:"record"`
		RelatedRecords []json.RawMessage `json:"relatedRecords"`
	} `json:"alert,omitempty"`
}

type sink struct {
	logger *log.Logger
	token  string

	mu     sync.Mutex
	counts map[string]int
	last   *delivery

	flakyCalls atomic.Int64
}

func newSink(logger *log.Logger, token string) *sink {
	return &sink{logger: logger, token: token, counts: make(map[string]int)}
}

func (s *sink) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/hooks", s.handleHook)
	mux.HandleFunc("/hooks/stats", s.handleStats)
	// Alternates 503 and 200 so a retried request eventually succeeds.
	mux.HandleFunc("/upstream/flaky", func(w http.ResponseWriter, _ *http.Request) {
		if s.flakyCalls.Add(1)%2 == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/upstream/down", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	return logRequests(s.logger, mux)
}

func (s *sink) handleHook(w http.ResponseWriter, r *http.Request) {
	if !enforcePost(w, r) {
		return
	}
	if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	var d delivery
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.counts[d.Kind]++
	s.last = &d
	s.mu.Unlock()

	switch {
	case d.Alert != nil:
		s.logger.Printf("ALERT %s [%s] %s (+%d related)", d.Alert.Record.ID, d.Alert.Record.Severity, d.Alert.Record.Message, len(d.Alert.RelatedRecords))
	case d.Batch != nil:
		s.logger.Printf("batch: %d records, %d patterns", len(d.Batch.Records), len(d.Batch.Patterns))
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *sink) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	counts := make(map[string]int, len(s.counts))
	for k, v := range s.counts {
		counts[k] = v
	}
	s.mu.Unlock()
	writeJSON(w, map[string]any{"deliveries": counts})
}

func main() {
	addr := flag.String("addr", ":8090", "listen address")
	token := flag.String("token", "", "expected bearer token (optional)")
	flag.Parse()

	logger := log.New(log.Writer(), "webhook-sink ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:              *addr,
		Handler:           newSink(logger, *token).routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

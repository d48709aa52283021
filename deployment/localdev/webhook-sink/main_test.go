package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/miradorstack/mirador-heal/internal/models"
	"github.com/miradorstack/mirador-heal/internal/notify"
)

func TestSinkReceivesNotifierDeliveries(t *testing.T) {
	s := newSink(log.New(io.Discard, "", 0), "secret")
	srv := httptest.NewServer(s.routes())
	defer srv.Close()

	notifier := notify.NewWebhookNotifier(srv.URL+"/hooks", "secret", time.Second)
	rec := models.ErrorRecord{ID: "r-1", Severity: models.SeverityCritical, Message: "database down"}
	if err := notifier.SendAlert(context.Background(), notify.Alert{Record: rec}); err != nil {
		t.Fatalf("send alert: %v", err)
	}
	if err := notifier.SendBatch(context.Background(), notify.Batch{Records: []models.ErrorRecord{rec}}); err != nil {
		t.Fatalf("send batch: %v", err)
	}

	resp, err := http.Get(srv.URL + "/hooks/stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Deliveries map[string]int `json:"deliveries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Deliveries["alert"] != 1 || body.Deliveries["batch"] != 1 {
		t.Fatalf("unexpected deliveries: %v", body.Deliveries)
	}
	if s.last == nil || s.last.Kind != "batch" {
		t.Fatalf("expected last delivery to be the batch, got %+v", s.last)
	}
}

func TestSinkRejectsWrongToken(t *testing.T) {
	srv := httptest.NewServer(newSink(log.New(io.Discard, "", 0), "secret").routes())
	defer srv.Close()

	notifier := notify.NewWebhookNotifier(srv.URL+"/hooks", "wrong", time.Second)
	if err := notifier.SendAlert(context.Background(), notify.Alert{}); err == nil {
		t.Fatalf("expected unauthorized delivery to fail")
	}
}

func TestFlakyUpstreamAlternates(t *testing.T) {
	srv := httptest.NewServer(newSink(log.New(io.Discard, "", 0), "").routes())
	defer srv.Close()

	var codes []int
	for i := 0; i < 3; i++ {
		resp, err := http.Head(srv.URL + "/upstream/flaky")
		if err != nil {
			t.Fatalf("head flaky upstream: %v", err)
		}
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	if codes[0] != http.StatusServiceUnavailable || codes[1] != http.StatusOK || codes[2] != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status sequence: %v", codes)
	}
}

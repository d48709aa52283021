package correction

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/miradorstack/mirador-heal/internal/models"
)

// Pinger is satisfied by *sql.DB and similar connection pools.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type builtins struct {
	client *http.Client

	mu        sync.Mutex
	pingers   map[string]Pinger
	throttles map[string]time.Time
	now       func() time.Time
}

func newBuiltins(client *http.Client, now func() time.Time) *builtins {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &builtins{
		client:    client,
		pingers:   make(map[string]Pinger),
		throttles: make(map[string]time.Time),
		now:       now,
	}
}

func (b *builtins) strategies() []Strategy {
	return []Strategy{
		{
			Name:              "network-retry",
			ApplicableTypes:   []models.ErrorType{models.ErrorTypeNetwork},
			Confidence:        0.8,
			EstimatedDuration: 2 * time.Second,
			CanHandle: func(r models.ErrorRecord) bool {
				return r.MetadataString("url") != ""
			},
			Execute: b.checkEndpoint,
		},
		{
			Name:              "database-reconnect",
			ApplicableTypes:   []models.ErrorType{models.ErrorTypeDatabase},
			Confidence:        0.7,
			EstimatedDuration: time.Second,
			CanHandle: func(r models.ErrorRecord) bool {
				_, ok := b.pinger(ResourceKey(r))
				return ok
			},
			Execute: b.reconnect,
		},
		{
			Name:              "performance-throttle",
			ApplicableTypes:   []models.ErrorType{models.ErrorTypePerformance},
			Confidence:        0.6,
			EstimatedDuration: 10 * time.Millisecond,
			Execute:           b.throttle,
		},
		{
			Name:              "validation-sanitize",
			ApplicableTypes:   []models.ErrorType{models.ErrorTypeValidation},
			Confidence:        0.5,
			EstimatedDuration: 10 * time.Millisecond,
			CanHandle: func(r models.ErrorRecord) bool {
				_, ok := r.Metadata["sanitizedInput"]
				return ok
			},
			Execute: func(_ context.Context, r models.ErrorRecord) (models.CorrectionResult, error) {
				return models.CorrectionResult{
					Success: true,
					Method:  "sanitize",
					Message: "input re-validated with the sanitized payload",
				}, nil
			},
		},
	}
}

func (b *builtins) checkEndpoint(ctx context.Context, r models.ErrorRecord) (models.CorrectionResult, error) {
	url := r.MetadataString("url")
	if url == "" {
		return models.CorrectionResult{}, fmt.Errorf("no url to retry for %s", ResourceKey(r))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return models.CorrectionResult{}, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return models.CorrectionResult{}, err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return models.CorrectionResult{}, fmt.Errorf("HEAD %s returned %d", url, resp.StatusCode)
	}
	return models.CorrectionResult{
		Success: true,
		Method:  "retry",
		Message: fmt.Sprintf("endpoint reachable again (%d)", resp.StatusCode),
	}, nil
}

func (b *builtins) reconnect(ctx context.Context, r models.ErrorRecord) (models.CorrectionResult, error) {
	key := ResourceKey(r)
	p, ok := b.pinger(key)
	if !ok {
		return models.CorrectionResult{}, fmt.Errorf("no connection registered for %s", key)
	}
	if err := p.PingContext(ctx); err != nil {
		return models.CorrectionResult{}, fmt.Errorf("ping %s: %w", key, err)
	}
	return models.CorrectionResult{Success: true, Method: "reconnect", Message: "connection re-established for " + key}, nil
}

const throttleWindow = 30 * time.Second

func (b *builtins) throttle(_ context.Context, r models.ErrorRecord) (models.CorrectionResult, error) {
	key := ResourceKey(r)
	b.mu.Lock()
	b.throttles[key] = b.now().Add(throttleWindow)
	b.mu.Unlock()
	return models.CorrectionResult{
		Success: true,
		Method:  "throttle",
		Message: fmt.Sprintf("%s throttled for %s", key, throttleWindow),
	}, nil
}

func (b *builtins) pinger(key string) (Pinger, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pingers[key]
	return p, ok
}

func (b *builtins) throttled(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	until, ok := b.throttles[key]
	if !ok {
		return false
	}
	if !b.now().Before(until) {
		delete(b.throttles, key)
		return false
	}
	return true
}

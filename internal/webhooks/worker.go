package webhooks

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"wavepick/internal/metrics"
	"wavepick/internal/store"
)

type Worker struct {
	Store       store.Store
	HTTP        *http.Client
	Stop        chan struct{}
	MaxAttempts int
	Interval    time.Duration
	now         func() time.Time
}

func NewWorker(s store.Store, maxAttempts int) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &Worker{
		Store:       s,
		HTTP:        &http.Client{Timeout: 5 * time.Second},
		Stop:        make(chan struct{}),
		MaxAttempts: maxAttempts,
		Interval:    time.Second,
		now:         time.Now,
	}
}

func (w *Worker) Start() {
	go func() {
		ticker := time.NewTicker(w.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-w.Stop:
				return
			case <-ticker.C:
				w.processOnce()
			}
		}
	}()
}

func (w *Worker) clock() time.Time {
	if w.now == nil {
		return time.Now()
	}
	return w.now()
}

func (w *Worker) processOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	items, err := w.Store.FetchDueCallbacks(ctx, 50)
	if err != nil {
		log.WithError(err).Warn("fetch due callbacks")
		return
	}
	for _, cb := range items {
		w.deliver(ctx, cb.ID, cb.URL, cb.EventType, cb.Secret, cb.Payload, cb.Attempts)
	}
}

func (w *Worker) deliver(ctx context.Context, id, url, eventType, secret string, payload []byte, attempts int) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		_ = w.Store.FailCallback(ctx, id, err.Error(), 0)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, eventType)
	if secret != "" {
		ts := w.clock()
		req.Header.Set(HeaderTimestamp, formatUnix(ts))
		req.Header.Set(HeaderSignature, Sign(secret, ts, payload))
	}
	start := time.Now()
	resp, err := w.HTTP.Do(req)
	code := 0
	success := false
	if err == nil {
		code = resp.StatusCode
		_ = resp.Body.Close()
		success = code >= 200 && code < 300
	}
	status := "delivered"
	if !success {
		status = "error"
	}
	metrics.CallbackDeliveries.WithLabelValues(eventType, status).Inc()
	metrics.CallbackLatency.WithLabelValues(eventType, status).Observe(float64(time.Since(start).Milliseconds()))

	lastErr := ""
	if err != nil {
		lastErr = err.Error()
	} else if !success {
		lastErr = http.StatusText(code)
	}
	if !success && attempts+1 >= w.MaxAttempts {
		log.WithField("callback", id).WithField("attempts", attempts+1).Warn("callback dead after max attempts")
		_ = w.Store.FailCallback(ctx, id, lastErr, code)
		return
	}
	_ = w.Store.MarkCallback(ctx, id, success, w.clock().Add(nextBackoff(attempts)), lastErr, code)
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}

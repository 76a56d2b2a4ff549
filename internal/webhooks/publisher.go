package webhooks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"wavepick/internal/model"
	"wavepick/internal/store"
)

var log = logrus.WithField("prefix", "webhooks")

type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// RunCompleted enqueues a callback for a finished run when the request
// named a callback URL. Delivery happens on the Worker.
func (p *Publisher) RunCompleted(ctx context.Context, run model.Run, secret string) {
	if run.CallbackURL == "" {
		return
	}
	payload := map[string]any{
		"type":     model.EventRunCompleted,
		"tenantId": run.TenantID,
		"ts":       time.Now().UTC().Format(time.RFC3339),
		"data":     run,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		log.WithError(err).WithField("run", run.ID).Error("encode callback payload")
		return
	}
	_, err = p.Store.EnqueueCallback(ctx, model.Callback{
		TenantID:  run.TenantID,
		RunID:     run.ID,
		EventType: model.EventRunCompleted,
		URL:       run.CallbackURL,
		Secret:    secret,
		Payload:   body,
	})
	if err != nil {
		log.WithError(err).WithField("run", run.ID).Warn("enqueue callback")
	}
}

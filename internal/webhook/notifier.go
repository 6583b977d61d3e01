// Package webhook delivers fraud alerts to the configured callback URLs.
//
// Deliveries run in goroutines so they never block scoring. Failures are
// logged and not retried.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"cardshield/fraud-api/internal/domain"
)

// EventFraudAlert is the event name sent in every payload and header.
const EventFraudAlert = "fraud_alert"

// Notifier sends webhook payloads to every configured endpoint.
type Notifier struct {
	urls      []string
	threshold float64
	client    *http.Client
	logger    *zap.Logger
	wg        sync.WaitGroup
}

// New creates a Notifier. Only fraud verdicts are delivered; a positive
// threshold additionally requires the total to reach it.
func New(urls []string, threshold float64, logger *zap.Logger) *Notifier {
	if threshold < 0 {
		threshold = 0
	}
	return &Notifier{
		urls:      urls,
		threshold: threshold,
		logger:    logger,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// NotifyAsync fires webhook calls in the background for a fraud verdict whose
// total risk reaches the threshold.
func (n *Notifier) NotifyAsync(st *domain.ScoredTransaction) {
	if n == nil || len(n.urls) == 0 || !st.Analysis.IsFraud || st.Analysis.TotalRisk < n.threshold {
		return
	}
	payload := domain.WebhookPayload{
		Event:       EventFraudAlert,
		TriggeredAt: time.Now().UTC(),
		Transaction: *st,
	}
	for _, url := range n.urls {
		n.wg.Add(1)
		go func(url string) {
			defer n.wg.Done()
			n.send(url, &payload)
		}(url)
	}
}

// Wait blocks until every in-flight delivery has finished.
func (n *Notifier) Wait() {
	if n != nil {
		n.wg.Wait()
	}
}

// send delivers a single webhook call and logs the outcome.
func (n *Notifier) send(url string, payload *domain.WebhookPayload) {
	txID := payload.Transaction.Transaction.ID

	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("webhook: failed to marshal payload", zap.String("url", url), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		n.logger.Error("webhook: failed to build request", zap.String("url", url), zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CardShield-Event", EventFraudAlert)

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("webhook: delivery failed", zap.String("url", url), zap.String("transaction_id", txID), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	n.logger.Info("webhook: delivered",
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.String("transaction_id", txID),
		zap.Float64("risk_score", payload.Transaction.Analysis.TotalRisk),
	)
}

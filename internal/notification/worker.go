package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"skytrace-backend/internal/model"
)

// queueDepth is the number of alerts buffered per worker.
const queueDepth = 64

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Payload is the JSON body delivered to the browser.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	model.EmergencyAlert
}

// NewPayload renders an alert for display.
func NewPayload(alert model.EmergencyAlert) Payload {
	label := alert.Hex
	if alert.Flight != "" {
		label = fmt.Sprintf("%s (%s)", alert.Flight, alert.Hex)
	}
	body := fmt.Sprintf("Aircraft %s declared a %s emergency", label, alert.Emergency)
	if alert.Squawk != "" {
		body += fmt.Sprintf(", squawking %s", alert.Squawk)
	}
	return Payload{
		Title:          "Aircraft emergency",
		Body:           body,
		EmergencyAlert: alert,
	}
}

// WorkerPool manages a pool of workers for sending emergency alerts.
type WorkerPool struct {
	size    int
	jobs    chan model.EmergencyAlert
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	if size < 1 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan model.EmergencyAlert, size*queueDepth),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines. They exit when ctx is done.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	slog.Debug("notification worker started", "worker", id)
	for {
		select {
		case alert := <-wp.jobs:
			wp.sendAlert(ctx, alert)
		case <-ctx.Done():
			slog.Debug("notification worker shutting down", "worker", id)
			return
		}
	}
}

// Dispatch queues an alert. It never blocks the caller: when the queue is full the alert is dropped.
func (wp *WorkerPool) Dispatch(alert model.EmergencyAlert) {
	select {
	case wp.jobs <- alert:
	default:
		slog.Warn("notification queue full, dropping alert", "tenant_id", alert.TenantID, "hex", alert.Hex)
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan model.EmergencyAlert {
	return wp.jobs
}

// sendAlert delivers an alert to every subscription of the alert's tenant.
func (wp *WorkerPool) sendAlert(ctx context.Context, alert model.EmergencyAlert) {
	var subscriptions []model.PushSubscription
	if err := wp.db.WithContext(ctx).Where("tenant_id = ?", alert.TenantID).Find(&subscriptions).Error; err != nil {
		slog.Error("failed to load subscriptions", "tenant_id", alert.TenantID, "error", err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(NewPayload(alert))
	if err != nil {
		slog.Error("failed to encode alert", "hex", alert.Hex, "error", err)
		return
	}

	slog.Info("sending emergency alerts", "tenant_id", alert.TenantID, "hex", alert.Hex, "emergency", alert.Emergency, "subscriptions", len(subscriptions))
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

// sendNotification sends a single web push notification and forgets expired subscriptions.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		slog.Error("failed to send notification", "endpoint", sub.Endpoint, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		slog.Info("subscription expired, deleting", "endpoint", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			slog.Error("failed to delete expired subscription", "endpoint", sub.Endpoint, "error", err)
		}
	}
}

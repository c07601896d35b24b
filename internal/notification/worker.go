package notification

import (
	"context"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"mes-backend/internal/model"
)

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

// SubscriptionStore is the part of the store the workers read from.
type SubscriptionStore interface {
	SubscriptionsForMachine(ctx context.Context, machineID int64) ([]model.PushSubscription, error)
	GetMachine(ctx context.Context, id int64) (*model.Machine, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
}

// Alert announces a new maintenance log.
type Alert struct {
	MachineID int64
	Notes     string
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan Alert
	store   SubscriptionStore
	webpush *webpush.Options
	sender  NotificationSender
	log     *zap.Logger
}

// NewWorkerPool creates a new worker pool with room for queueSize pending alerts.
func NewWorkerPool(size, queueSize int, s SubscriptionStore, webpushOptions *webpush.Options, log *zap.Logger) *WorkerPool {
	if size < 1 {
		size = 1
	}
	if queueSize < 1 {
		queueSize = size
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Alert, queueSize),
		store:   s,
		webpush: webpushOptions,
		sender:  &WebPushSender{}, // Use the real sender by default
		log:     log,
	}
}

// Start launches the worker goroutines. They exit when ctx is cancelled.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log := wp.log.With(zap.Int("worker", id))
	log.Debug("notification worker started")
	for {
		select {
		case alert := <-wp.jobs:
			log.Debug("processing maintenance alert", zap.Int64("machine_id", alert.MachineID))
			wp.sendNotificationsForMachine(ctx, alert)
		case <-ctx.Done():
			log.Debug("notification worker shutting down")
			return
		}
	}
}

// Dispatch queues an alert without blocking. It reports false when the queue
// is full and the alert was dropped.
func (wp *WorkerPool) Dispatch(alert Alert) bool {
	select {
	case wp.jobs <- alert:
		return true
	default:
		wp.log.Warn("notification queue full, dropping alert", zap.Int64("machine_id", alert.MachineID))
		return false
	}
}

// Message renders the notification text for an alert on machine.
func Message(machine string, notes string) string {
	return fmt.Sprintf("Maintenance logged on %s: %s", machine, notes)
}

// sendNotificationsForMachine fetches subscriptions and sends notifications for a given machine.
func (wp *WorkerPool) sendNotificationsForMachine(ctx context.Context, alert Alert) {
	subscriptions, err := wp.store.SubscriptionsForMachine(ctx, alert.MachineID)
	if err != nil {
		wp.log.Error("failed to load subscriptions", zap.Int64("machine_id", alert.MachineID), zap.Error(err))
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	wp.log.Info("sending maintenance notifications",
		zap.Int("count", len(subscriptions)), zap.Int64("machine_id", alert.MachineID))

	machineLabel := fmt.Sprintf("machine %d", alert.MachineID)
	if machine, err := wp.store.GetMachine(ctx, alert.MachineID); err != nil {
		wp.log.Warn("failed to load machine name", zap.Int64("machine_id", alert.MachineID), zap.Error(err))
	} else if machine.Name != "" {
		machineLabel = machine.Name
	}

	payload := []byte(Message(machineLabel, alert.Notes))
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	// Manually construct the webpush.Subscription object
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.log.Warn("failed to send notification", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		wp.log.Info("subscription expired, deleting", zap.String("endpoint", sub.Endpoint))
		if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			wp.log.Error("failed to delete expired subscription", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		}
	}
}

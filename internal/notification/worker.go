package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"waitboard/internal/metrics"
	"waitboard/internal/model"
)

// Announcement is one "speak call" request produced by a staff call action.
type Announcement struct {
	StoreID   string
	Item      model.WaitingItem
	ClassName string
	CalledAt  time.Time
}

// Message renders the text read out or pushed to the customer.
func (a Announcement) Message() string {
	name := a.Item.DisplayName
	if name == "" {
		name = "guest"
	}
	msg := fmt.Sprintf("Now calling number %d, %s", a.Item.WaitingNumber, name)
	if a.ClassName != "" {
		msg += " (" + a.ClassName + ")"
	}
	if a.Item.CallCount > 1 {
		msg += fmt.Sprintf(", call %d", a.Item.CallCount)
	}
	return msg
}

type pushPayload struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	WaitingID int64  `json:"waiting_id"`
	CallCount int    `json:"call_count"`
}

// Speaker is a local announcement sink such as a display or audio device.
type Speaker interface {
	Speak(ctx context.Context, a Announcement) error
}

// LogSpeaker writes announcements to the log.
type LogSpeaker struct {
	Log *zap.Logger
}

// Speak logs the announcement.
func (s LogSpeaker) Speak(_ context.Context, a Announcement) error {
	s.Log.Info("announcing call",
		zap.Int64("waiting_id", a.Item.ID),
		zap.Int("waiting_number", a.Item.WaitingNumber),
		zap.Int("call_count", a.Item.CallCount),
		zap.String("message", a.Message()))
	return nil
}

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

// WorkerPool delivers announcements to the speakers and to web push
// subscriptions of the store.
type WorkerPool struct {
	size     int
	jobs     chan Announcement
	db       *gorm.DB
	webpush  *webpush.Options
	sender   NotificationSender
	speakers []Speaker
	log      *zap.Logger
}

// NewWorkerPool creates a new worker pool. Push delivery is skipped when db or
// webpushOptions is nil.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options, logger *zap.Logger, speakers ...Speaker) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkerPool{
		size:     size,
		jobs:     make(chan Announcement, size*4),
		db:       db,
		webpush:  webpushOptions,
		sender:   &WebPushSender{},
		speakers: speakers,
		log:      logger.Named("announce"),
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.log.Debug("worker started", zap.Int("worker", id))
	for {
		select {
		case a := <-wp.jobs:
			wp.deliver(ctx, a)
		case <-ctx.Done():
			wp.log.Debug("worker shutting down", zap.Int("worker", id))
			return
		}
	}
}

// Dispatch queues one announcement without blocking. When the queue is full
// the announcement is dropped and counted.
func (wp *WorkerPool) Dispatch(a Announcement) {
	select {
	case wp.jobs <- a:
	default:
		metrics.Announcements.WithLabelValues("queue", metrics.ResultDropped).Inc()
		wp.log.Warn("announcement queue full, dropping call",
			zap.Int64("waiting_id", a.Item.ID),
			zap.Int("queued", len(wp.jobs)))
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Announcement {
	return wp.jobs
}

func (wp *WorkerPool) deliver(ctx context.Context, a Announcement) {
	for _, sp := range wp.speakers {
		err := sp.Speak(ctx, a)
		metrics.Announcements.WithLabelValues("speaker", metrics.Outcome(err)).Inc()
		if err != nil {
			wp.log.Warn("speaker failed", zap.Int64("waiting_id", a.Item.ID), zap.Error(err))
		}
	}
	if wp.db != nil && wp.webpush != nil {
		wp.sendPushForCall(ctx, a)
	}
}

// sendPushForCall fetches the store's subscriptions that want this call and
// notifies each of them.
func (wp *WorkerPool) sendPushForCall(ctx context.Context, a Announcement) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Where("store_id = ? AND (waiting_id = 0 OR waiting_id = ?)", a.StoreID, a.Item.ID).
		Find(&subscriptions).Error
	if err != nil {
		wp.log.Error("failed to fetch push subscriptions", zap.String("store_id", a.StoreID), zap.Error(err))
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(pushPayload{
		Title:     "Your turn",
		Body:      a.Message(),
		WaitingID: a.Item.ID,
		CallCount: a.Item.CallCount,
	})
	if err != nil {
		wp.log.Error("failed to encode push payload", zap.Error(err))
		return
	}

	wp.log.Debug("sending call push", zap.Int("subscriptions", len(subscriptions)), zap.Int64("waiting_id", a.Item.ID))
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

// sendNotification sends a single web push notification.
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
		metrics.Announcements.WithLabelValues("webpush", metrics.ResultError).Inc()
		wp.log.Warn("failed to send push", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	// Gone and not-found mean the browser dropped the subscription.
	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		metrics.Announcements.WithLabelValues("webpush", metrics.ResultError).Inc()
		wp.log.Info("push subscription expired, deleting", zap.String("endpoint", sub.Endpoint))
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			wp.log.Warn("failed to delete expired subscription", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		}
		return
	}
	metrics.Announcements.WithLabelValues("webpush", metrics.ResultOK).Inc()
}

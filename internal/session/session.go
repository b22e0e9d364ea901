// Package session wires one screen session: the queue store, its stream and
// polling feeds, the block gate, and the action controller.
package session

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"waitboard/config"
	"waitboard/internal/backend"
	"waitboard/internal/called"
	"waitboard/internal/event"
	"waitboard/internal/gate"
	"waitboard/internal/model"
	"waitboard/internal/notification"
	"waitboard/internal/ordering"
	"waitboard/internal/poller"
	"waitboard/internal/store"
	"waitboard/internal/stream"
)

// Options configures a Session.
type Options struct {
	Config *config.Config
	// DB enables the warm-start cache and web push; nil disables both.
	DB       *gorm.DB
	Logger   *zap.Logger
	Speakers []notification.Speaker
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Session is one active screen session.
type Session struct {
	ID string

	Backend    *backend.Client
	Store      *store.Store
	Stream     *stream.Client
	Poller     *poller.Service
	Gate       *gate.Gate
	Controller *ordering.Controller
	Announcer  *notification.WorkerPool

	cfg  *config.Config
	push *webpush.Options
	log  *zap.Logger

	cancel     context.CancelFunc
	ctx        context.Context
	wg         sync.WaitGroup
	refreshing atomic.Bool
	closeOnce  sync.Once
}

// New builds a session without starting any I/O.
func New(opts Options) *Session {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	logger = logger.With(zap.String("session_id", id), zap.String("store_id", cfg.Backend.StoreID))

	transport := opts.Transport
	if transport == nil {
		transport = backend.NewTransport(cfg.Backend.HTTPProxy, logger)
	}
	api := backend.New(cfg.Backend, transport, logger)

	var snapshots store.SnapshotCache
	if opts.DB != nil {
		snapshots = store.NewGormCache(opts.DB)
	}
	st := store.New(store.Options{
		SessionID: id,
		StoreID:   cfg.Backend.StoreID,
		Loader:    api,
		Cache:     snapshots,
		Logger:    logger,
	})

	var pushOptions *webpush.Options
	if cfg.Push.Enabled && opts.DB != nil {
		pushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	}
	speakers := opts.Speakers
	if len(speakers) == 0 {
		speakers = []notification.Speaker{notification.LogSpeaker{Log: logger.Named("speaker")}}
	}
	pool := notification.NewWorkerPool(cfg.WorkerPool.Size, opts.DB, pushOptions, logger, speakers...)

	g := gate.New(st)
	s := &Session{
		ID:        id,
		Backend:   api,
		Store:     st,
		Gate:      g,
		Announcer: pool,
		Poller:    poller.New(st, st, cfg.Polling.Interval, logger),
		Controller: ordering.New(ordering.Options{
			Store:     st,
			API:       api,
			Gate:      g,
			Announcer: pool,
			Logger:    logger,
		}),
		cfg:  cfg,
		push: pushOptions,
		log:  logger.Named("session"),
	}
	s.Stream = stream.New(stream.Options{
		BaseURL:         cfg.Backend.BaseURL,
		SessionID:       id,
		Role:            cfg.Stream.Role,
		HTTPClient:      &http.Client{Transport: transport},
		Decorate:        api.Decorate,
		ReconnectDelay:  cfg.Stream.ReconnectDelay,
		ReconnectJitter: cfg.Stream.ReconnectJitter,
		Health:          resyncSink{s},
		Handler:         s.handleEvent,
		Logger:          logger,
	})
	return s
}

// Start shows any cached snapshot, performs the first load, and starts the
// stream, the polling fallback and the announcement workers. A failed first
// load is not fatal; the poller keeps retrying until data arrives.
func (s *Session) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.Announcer.Start(s.ctx)

	if err := s.Store.LoadCached(s.ctx); err != nil {
		s.log.Warn("failed to load cached snapshot", zap.Error(err))
	}
	if err := s.Store.Refresh(s.ctx); err != nil {
		s.log.Warn("initial load failed", zap.Error(err))
	}

	s.Stream.Connect(s.cfg.Stream.Channel)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Poller.Run(s.ctx)
	}()
	s.log.Info("session started", zap.String("channel", s.cfg.Stream.Channel))
}

// resyncSink forwards stream health to the store and re-fetches a snapshot
// every time the stream comes up, covering events missed while it was down.
type resyncSink struct {
	s *Session
}

func (r resyncSink) SetConnected(connected bool) {
	r.s.Store.SetConnected(connected)
	if connected {
		r.s.refreshAsync()
	}
}

// handleEvent runs on the stream goroutine in arrival order.
func (s *Session) handleEvent(ev event.Event) {
	if _, ok := ev.(event.Refresh); ok {
		s.refreshAsync()
		return
	}
	if s.Store.ApplyEvent(ev) {
		if err := s.Store.CheckConsistency(); err != nil {
			s.log.Debug("state drift after event", zap.String("type", string(ev.Type())), zap.Error(err))
		}
	}
}

// refreshAsync fetches a snapshot off the stream goroutine. Overlapping
// requests collapse into the running one.
func (s *Session) refreshAsync() {
	if s.ctx == nil || !s.refreshing.CompareAndSwap(false, true) {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.refreshing.Store(false)
		if err := s.Store.Refresh(s.ctx); err != nil && s.ctx.Err() == nil {
			s.log.Warn("server-requested refresh failed", zap.Error(err))
		}
	}()
}

// SwitchStore points a running session at another store. The working set is
// dropped, later requests carry the new store id, and the stream reconnects
// on channel, which fetches a fresh snapshot.
func (s *Session) SwitchStore(storeID, channel string) {
	if storeID == s.Store.Runtime().StoreID {
		return
	}
	s.Store.SetStoreID(storeID)
	s.log.Info("switched store", zap.String("store_id", storeID), zap.String("channel", channel))
	if s.ctx != nil && s.ctx.Err() == nil {
		s.Stream.Connect(channel)
	}
}

// Config returns the configuration the session was built with.
func (s *Session) Config() *config.Config {
	return s.cfg
}

// PushOptions returns the web push settings, or nil when push is disabled.
func (s *Session) PushOptions() *webpush.Options {
	return s.push
}

// CalledWindow returns the evaluator bound to the current store setting.
func (s *Session) CalledWindow() called.Window {
	return called.Window{
		DisplaySeconds: s.Store.Runtime().Settings.DisplaySeconds(),
		Location:       s.cfg.Display.Location,
	}
}

// IsCalled reports whether item is highlighted at now.
func (s *Session) IsCalled(item model.WaitingItem, now time.Time) bool {
	return s.CalledWindow().IsCalled(item, now)
}

// Close tears the session down: no further actions are applied, the stream
// is closed and background loops exit.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.Controller.Close()
		s.Stream.Disconnect()
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
		s.log.Info("session closed")
	})
}

package store

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"waitboard/internal/model"
)

const subscriberBuffer = 32

// Options configures a Store.
type Options struct {
	SessionID string
	StoreID   string
	Loader    Loader
	Cache     SnapshotCache
	Logger    *zap.Logger
	// Now is used for optimistic timestamps; time.Now when nil.
	Now func() time.Time
}

// Store is the single in-memory projection of queue state for one screen
// session. Only the methods below mutate it.
type Store struct {
	mu sync.RWMutex

	loader Loader
	cache  SnapshotCache
	log    *zap.Logger
	now    func() time.Time

	items   map[int64]*entry
	order   map[int64][]int64
	classes []model.ClassSession
	runtime Runtime

	statusLoaded  bool
	classesLoaded bool
	inflight      int

	revision    uint64
	nextTempID  int64
	connChanged chan struct{}
	blocked     chan struct{}
	subs        map[chan Change]struct{}
}

type entry struct {
	item      model.WaitingItem
	tentative bool
}

// New creates an empty store.
func New(opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Store{
		loader: opts.Loader,
		cache:  opts.Cache,
		log:    opts.Logger.Named("store"),
		now:    opts.Now,
		subs:   make(map[chan Change]struct{}),
	}
	s.resetLocked()
	s.runtime.SessionID = opts.SessionID
	s.runtime.StoreID = opts.StoreID
	return s
}

// Reset drops all state, including the block latch, as a full reload would.
// The session id and store id survive; subscribers stay registered.
func (s *Store) Reset() {
	s.mu.Lock()
	sessionID, storeID := s.runtime.SessionID, s.runtime.StoreID
	close(s.connChanged)
	s.resetLocked()
	s.runtime.SessionID, s.runtime.StoreID = sessionID, storeID
	s.publishLocked(Change{Kind: ChangeSnapshot})
	s.mu.Unlock()
}

func (s *Store) resetLocked() {
	s.items = make(map[int64]*entry)
	s.order = make(map[int64][]int64)
	s.classes = nil
	s.runtime = Runtime{}
	s.statusLoaded, s.classesLoaded = false, false
	s.nextTempID = -1
	s.connChanged = make(chan struct{})
	s.blocked = make(chan struct{})
}

// SessionID identifies this screen session to the server.
func (s *Store) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runtime.SessionID
}

// Runtime returns a copy of the session runtime state.
func (s *Store) Runtime() Runtime {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rt := s.runtime
	if rt.Block != nil {
		b := *rt.Block
		rt.Block = &b
	}
	return rt
}

// Revision increases on every change.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// SetConnected records stream health. Waiters on Connectivity are released on
// every transition.
func (s *Store) SetConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runtime.Connected == connected {
		return
	}
	s.runtime.Connected = connected
	close(s.connChanged)
	s.connChanged = make(chan struct{})
	s.publishLocked(Change{Kind: ChangeConnectivity})
}

// Connectivity returns the current flag and a channel closed on the next
// transition.
func (s *Store) Connectivity() (bool, <-chan struct{}) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runtime.Connected, s.connChanged
}

// Block returns the latched block state, or nil.
func (s *Store) Block() *BlockState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.runtime.Block == nil {
		return nil
	}
	b := *s.runtime.Block
	return &b
}

// Blocked returns a channel closed once the session is blocked.
func (s *Store) Blocked() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blocked
}

func (s *Store) latchBlockLocked(state BlockState) bool {
	if s.runtime.Block != nil {
		return false
	}
	s.runtime.Block = &state
	close(s.blocked)
	return true
}

// Loading reports whether the first load is still in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inflight > 0 && !(s.statusLoaded && s.classesLoaded)
}

// Subscribe registers for change notifications. Slow subscribers miss
// changes rather than blocking the store.
func (s *Store) Subscribe() chan Change {
	ch := make(chan Change, subscriberBuffer)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscription.
func (s *Store) Unsubscribe(ch chan Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(ch)
	}
}

// PostNotice publishes a transient user-visible message.
func (s *Store) PostNotice(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishLocked(Change{Kind: ChangeNotice, Notice: msg})
}

func (s *Store) publishLocked(c Change) {
	s.revision++
	c.Revision = s.revision
	for ch := range s.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

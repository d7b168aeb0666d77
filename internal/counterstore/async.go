package counterstore

import (
	"sync"
	"time"

	"codeberg.org/mutker/healthd/internal/errors"
	"codeberg.org/mutker/healthd/internal/logger"
)

// AsyncStore moves writes off the caller's path. Store records the latest
// value per key and returns immediately; a background flusher writes
// pending values to the wrapped store. Only the newest value per key is
// kept, so a slow medium never queues stale counters.
type AsyncStore struct {
	inner  Store
	logger logger.Logger

	mu      sync.Mutex
	pending map[string][]byte
	lastErr error
	closed  bool

	flushTicker   *time.Ticker
	kick          chan struct{}
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
}

// NewAsyncStore starts a flusher that runs every interval and whenever a
// new value is stored.
func NewAsyncStore(inner Store, interval time.Duration, log logger.Logger) *AsyncStore {
	if interval <= 0 {
		interval = time.Second
	}
	if log == nil {
		log = logger.Nop()
	}

	s := &AsyncStore{
		inner:         inner,
		logger:        log.With("counterstore"),
		pending:       make(map[string][]byte),
		flushTicker:   time.NewTicker(interval),
		kick:          make(chan struct{}, 1),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}
	go s.flusher()

	return s
}

// Load returns a pending value if one has not been flushed yet.
func (s *AsyncStore) Load(key string) ([]byte, bool, error) {
	s.mu.Lock()
	if v, ok := s.pending[key]; ok {
		s.mu.Unlock()
		return append([]byte(nil), v...), true, nil
	}
	s.mu.Unlock()

	return s.inner.Load(key)
}

func (s *AsyncStore) Store(key string, value []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New().WithData(ErrStoreClosed, key)
	}
	s.pending[key] = append([]byte(nil), value...)
	s.mu.Unlock()

	select {
	case s.kick <- struct{}{}:
	default:
	}

	return nil
}

// LastError returns the error of the most recent flush attempt, or nil if
// it succeeded.
func (s *AsyncStore) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Pending returns the number of keys waiting to be written.
func (s *AsyncStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush writes every pending value now.
func (s *AsyncStore) Flush() error {
	s.mu.Lock()
	batch := s.pending
	s.pending = make(map[string][]byte, len(batch))
	s.mu.Unlock()

	var firstErr error
	failed := make(map[string][]byte)
	for key, value := range batch {
		if err := s.inner.Store(key, value); err != nil {
			s.logger.Warn().Code(err).Err(err).Str("key", key).Msg("Deferred counter write failed")
			failed[key] = value
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	s.mu.Lock()
	for key, value := range failed {
		// a newer value stored meanwhile wins
		if _, ok := s.pending[key]; !ok {
			s.pending[key] = value
		}
	}
	if len(batch) > 0 {
		s.lastErr = firstErr
	}
	s.mu.Unlock()

	if len(batch) > 0 && firstErr == nil {
		s.logger.Debug().Int("keys", len(batch)).Msg("Flushed counters")
	}

	return firstErr
}

func (s *AsyncStore) flusher() {
	defer close(s.flushDoneChan)

	for {
		select {
		case <-s.flushTicker.C:
			_ = s.Flush()
		case <-s.kick:
			_ = s.Flush()
		case <-s.shutdownChan:
			_ = s.Flush()
			return
		}
	}
}

// Close stops the flusher after a final flush and closes the wrapped store.
func (s *AsyncStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdownChan)
	s.flushTicker.Stop()
	<-s.flushDoneChan

	flushErr := s.LastError()
	if s.Pending() > 0 {
		s.logger.Error().Int("keys", s.Pending()).Msg("Counters not persisted before shutdown")
	}

	if err := s.inner.Close(); err != nil {
		return err
	}

	return flushErr
}

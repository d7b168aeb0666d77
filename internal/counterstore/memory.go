package counterstore

import "sync"

// MemoryStore keeps counters in process memory. It counts writes so
// callers can observe how much I/O a real medium would have seen.
type MemoryStore struct {
	mu      sync.Mutex
	values  map[string][]byte
	writes  int
	failErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (s *MemoryStore) Load(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failErr != nil {
		return nil, false, s.failErr
	}
	v, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}

	return append([]byte(nil), v...), true, nil
}

func (s *MemoryStore) Store(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failErr != nil {
		return s.failErr
	}
	s.values[key] = append([]byte(nil), value...)
	s.writes++

	return nil
}

func (*MemoryStore) Close() error {
	return nil
}

// Writes returns the number of successful Store calls.
func (s *MemoryStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// FailWith makes every subsequent call return err; nil restores normal
// operation.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

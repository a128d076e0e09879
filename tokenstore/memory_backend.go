package tokenstore

import "sync"

var _ Backend = (*MemoryBackend)(nil)

// MemoryBackend keeps the snapshot in process memory. It backs tests and the
// degraded non-persistent mode.
type MemoryBackend struct {
	mu   sync.Mutex
	snap *Snapshot
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (mb *MemoryBackend) Load() (*Snapshot, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.snap == nil {
		return nil, nil
	}
	snap := *mb.snap
	return &snap, nil
}

func (mb *MemoryBackend) Save(snap *Snapshot) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	copied := *snap
	mb.snap = &copied
	return nil
}

func (mb *MemoryBackend) Clear() error {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.snap = nil
	return nil
}

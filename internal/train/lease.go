package train

import "sync"

// Lease grants exclusive use of branch names to one run at a time.
type Lease struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLease creates an empty Lease.
func NewLease() *Lease {
	return &Lease{held: make(map[string]bool)}
}

// Acquire claims name without waiting. It returns ErrRunInProgress when the
// name is already held. The returned release func may be called more than once.
func (l *Lease) Acquire(name string) (release func(), err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[name] {
		return nil, ErrRunInProgress
	}
	l.held[name] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, name)
			l.mu.Unlock()
		})
	}, nil
}

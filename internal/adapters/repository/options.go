package repository

import "time"

// Option applies a configuration option to the FileStore.
type Option func(*FileStore)

// WithStaleLockAfter lets Lock break a lock file older than d, left behind by
// a crashed run. Zero disables breaking.
func WithStaleLockAfter(d time.Duration) Option {
	return func(s *FileStore) {
		if d >= 0 {
			s.staleAfter = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *FileStore) {
		if now != nil {
			s.now = now
		}
	}
}

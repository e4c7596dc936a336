package store

import "sync"

var (
	sharedOnce  sync.Once
	sharedStore *GormStore
	sharedErr   error
)

// Shared returns the process-wide GormStore, opening it on first use. The
// first caller's DSN wins; concurrent callers block on the same
// initialization and observe its result. Web handlers reuse this handle
// instead of opening one connection per request.
func Shared(dsn string) (*GormStore, error) {
	sharedOnce.Do(func() {
		sharedStore, sharedErr = NewGormStore(dsn)
	})
	return sharedStore, sharedErr
}

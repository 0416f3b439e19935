package apply

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"time"
)

// LockTimeoutError reports a failure to obtain the migration lock
// within the allowed time. The database has not been modified.
type LockTimeoutError struct {
	Name    string
	Timeout time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("could not acquire advisory lock %q within %s; another migration may be running", e.Name, e.Timeout)
}

// lockRetryInterval is how often acquisition is retried while waiting.
const lockRetryInterval = 250 * time.Millisecond

// LockKey maps a lock name to the signed 64-bit key PostgreSQL
// advisory locks use. Equal names always map to equal keys.
func LockKey(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int64(h.Sum64())
}

// Lock is a held session-level advisory lock. It owns a dedicated
// connection for the lock's lifetime: advisory locks belong to the
// session that took them, and pooled queries may land on any backend.
type Lock struct {
	conn *sql.Conn
	name string
	key  int64
}

// AcquireLock reserves one connection from the pool and polls
// pg_try_advisory_lock on it until it succeeds, the timeout lapses, or
// ctx is cancelled. The lock is session-level: it survives transactions
// and must be released through Release.
func AcquireLock(ctx context.Context, db *sql.DB, name string, timeout time.Duration) (*Lock, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve lock connection: %w", err)
	}
	key := LockKey(name)
	deadline := time.Now().Add(timeout)

	for {
		var acquired bool
		if err := conn.QueryRowContext(ctx,
			`SELECT pg_try_advisory_lock($1)`, key).Scan(&acquired); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to acquire advisory lock: %w", err)
		}
		if acquired {
			return &Lock{conn: conn, name: name, key: key}, nil
		}
		if time.Now().After(deadline) {
			conn.Close()
			return nil, &LockTimeoutError{Name: name, Timeout: timeout}
		}
		select {
		case <-ctx.Done():
			conn.Close()
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

// Release unlocks on the owning connection and returns it to the pool.
// Callers defer it so the lock is dropped on every exit path; a closed
// connection releases it anyway.
func (l *Lock) Release(ctx context.Context) error {
	defer l.conn.Close()
	var released bool
	if err := l.conn.QueryRowContext(ctx,
		`SELECT pg_advisory_unlock($1)`, l.key).Scan(&released); err != nil {
		return fmt.Errorf("failed to release advisory lock %q: %w", l.name, err)
	}
	if !released {
		return fmt.Errorf("advisory lock %q was not held", l.name)
	}
	return nil
}

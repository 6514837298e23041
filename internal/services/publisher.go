package services

import (
	"context"
	"sync"
	"time"

	"smartbudget/internal/core"
)

// Publisher is the messaging side of the services. *amqp.Client satisfies
// it; a nil Publisher disables messaging.
type Publisher interface {
	PublishEvaluationRequest(ctx context.Context, userID, reason string) error
	PublishAlertCreated(ctx context.Context, a core.AlertRecord) error
}

// userLocks serialises work per user while letting different users run in
// parallel. An entry lives only while some caller holds or waits on it.
type userLocks struct {
	mu sync.Mutex
	m  map[string]*userLock
}

type userLock struct {
	sync.Mutex
	refs int
}

func (l *userLocks) lock(userID string) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*userLock)
	}
	ul, ok := l.m[userID]
	if !ok {
		ul = &userLock{}
		l.m[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.Lock()
	return func() {
		ul.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.m, userID)
		}
		l.mu.Unlock()
	}
}

func (l *userLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

// withStoreTimeout bounds a store call. A zero timeout leaves ctx untouched.
func withStoreTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// storeErr classifies a failed store call as DataUnavailable unless it is a
// validation or not-found error. A call that returned nil succeeded, even if
// ctx expired right after.
func storeErr(op string, err error) error {
	return core.Unavailable(op, err)
}

func requireUser(userID string) error {
	if userID == "" {
		return core.NewValidationError("user_id", "must not be empty")
	}
	return nil
}

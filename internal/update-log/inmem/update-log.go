package inmem

import (
	"context"
	"sync"

	lr "github.com/authorizer-tech/link-registry/internal"
)

type inmemUpdateLog struct {
	rwmu    sync.RWMutex
	updates map[string][]lr.CertificateUpdate
}

// NewUpdateLog returns an UpdateLog which keeps the update history in memory.
// The history is lost when the process exits.
func NewUpdateLog() lr.UpdateLog {
	return &inmemUpdateLog{
		updates: map[string][]lr.CertificateUpdate{},
	}
}

func (u *inmemUpdateLog) Append(ctx context.Context, update lr.CertificateUpdate) error {

	if err := ctx.Err(); err != nil {
		return err
	}

	u.rwmu.Lock()
	defer u.rwmu.Unlock()

	u.updates[update.Server] = append(u.updates[update.Server], update)

	return nil
}

func (u *inmemUpdateLog) List(ctx context.Context, server string, limit int) ([]lr.CertificateUpdate, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	u.rwmu.RLock()
	defer u.rwmu.RUnlock()

	history := u.updates[server]

	n := len(history)
	if limit >= 0 && limit < n {
		n = limit
	}

	updates := make([]lr.CertificateUpdate, 0, n)
	for i := len(history) - 1; i >= 0 && len(updates) < n; i-- {
		updates = append(updates, history[i])
	}

	return updates, nil
}

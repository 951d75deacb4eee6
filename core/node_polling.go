package core

import (
	"context"
	"time"
)

// GetPolledResponse acquires tr's semaphore (released once the delivery
// pipeline has a durable outcome), then repeatedly queries the store with
// a capped retry count and a ×1.10 exponential back-off between attempts,
// per §4.H. A recorded error re-raises as a rejected-transaction error; a
// recorded response is returned; exhausting the polling budget raises a
// timeout.
func (n *Node) GetPolledResponse(ctx context.Context, tr TransactionReference) (Response, error) {
	if msg, ok := n.rejectCache.Get(tr); ok {
		return nil, NewRejected(msg)
	}

	if err := n.waitSemaphore(ctx, tr); err != nil {
		return nil, err
	}
	if msg, ok := n.rejectCache.Get(tr); ok {
		return nil, NewRejected(msg)
	}

	delay := float64(n.cfg.PollingDelayMS)
	for attempt := 0; attempt < n.cfg.MaxPollingAttempts; attempt++ {
		snap := n.store.Snapshot()
		if resp, ok, err := snap.GetResponse(tr); err != nil {
			return nil, WrapStoreException(err)
		} else if ok {
			return resp, nil
		}
		if msg, ok, err := snap.GetError(tr); err != nil {
			return nil, WrapStoreException(err)
		} else if ok {
			return nil, NewRejected(msg)
		}

		select {
		case <-ctx.Done():
			return nil, &InterruptedError{Reference: tr}
		case <-time.After(time.Duration(delay * float64(time.Millisecond))):
		}
		delay *= 1.10
	}
	return nil, &PollingTimeoutError{Reference: tr}
}

// GetState walks get_history(object) newest-first, coalescing updates by
// their (class-tag-or-field) key so the first (i.e. newest) update per key
// wins, per §4.H.
func (n *Node) GetState(object StorageReference) ([]Update, error) {
	snap := n.store.Snapshot()
	hist, err := snap.GetHistory(object)
	if err != nil {
		return nil, WrapStoreException(err)
	}

	type stateKey struct {
		isClassTag bool
		field      FieldSignature
	}
	seen := make(map[stateKey]bool)
	var coalesced []Update

	for i := len(hist) - 1; i >= 0; i-- {
		resp, ok, err := snap.GetResponse(hist[i])
		if err != nil {
			return nil, WrapStoreException(err)
		}
		if !ok {
			continue
		}
		wu, ok := resp.(WithUpdates)
		if !ok {
			continue
		}
		for _, u := range wu.GetUpdates() {
			if u.Object() != object {
				continue
			}
			isTag, field := updateKey(u)
			key := stateKey{isClassTag: isTag, field: field}
			if seen[key] {
				continue
			}
			seen[key] = true
			coalesced = append(coalesced, u)
		}
	}

	SortUpdates(coalesced)
	return coalesced, nil
}

// updateKey exposes Update's package-private sortKey for GetState's
// coalescing, since the underlying field comparison is identical.
func updateKey(u Update) (bool, FieldSignature) {
	switch v := u.(type) {
	case ClassTagUpdate:
		return true, FieldSignature{}
	case FieldUpdate:
		return false, v.Field
	default:
		return false, FieldSignature{}
	}
}

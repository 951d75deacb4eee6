package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

// Node is the outward face of the engine, §4.H. It owns the committed
// Store, the response-builder collaborators, the per-TR semaphore map
// pollers wait on, and the bounded "recently rejected" cache check_request
// populates. Exactly one StoreTransaction is open at a time — delivery is
// serialized the same way the teacher's applyBlock serializes ledger
// mutation behind a single writer lock (core/ledger.go).
type Node struct {
	store *Store
	deps  BuilderDeps
	cfg   Config

	blockMu sync.Mutex
	current *StoreTransaction
	pending []TransactionReference

	semMu sync.Mutex
	sems  map[TransactionReference]chan struct{}

	rejectCache *lru.Cache[TransactionReference, string]

	events *eventRegistry
}

// NewNode constructs a Node over store using deps as its builder
// collaborators and cfg for its polling/cache/gas-cap parameters.
func NewNode(store *Store, deps BuilderDeps, cfg Config) (*Node, error) {
	cache, err := lru.New[TransactionReference, string](cfg.RequestCacheSize)
	if err != nil {
		return nil, fmt.Errorf("new node: rejection cache: %w", err)
	}
	return &Node{
		store:       store,
		deps:        deps,
		cfg:         cfg,
		sems:        make(map[TransactionReference]chan struct{}),
		rejectCache: cache,
		events:      newEventRegistry(),
	}, nil
}

// AddRequest hashes req to its TR, registers a semaphore for it, posts it to
// mempool, and returns the TR immediately without waiting for delivery —
// §4.H's "hashes each submitted request... returns TR immediately."
func (n *Node) AddRequest(ctx context.Context, mempool Mempool, req Request) (TransactionReference, error) {
	tr, err := TRHash(req)
	if err != nil {
		return TransactionReference{}, WrapNodeException(fmt.Errorf("hash request: %w", err))
	}
	n.createSemaphore(tr)
	go func() {
		if err := mempool.Post(context.Background(), req); err != nil {
			logrus.WithError(err).WithField("tr", tr).Warn("node: mempool post failed")
			n.recordNodeFailure(tr, err)
		}
	}()
	return tr, nil
}

// CheckRequest runs a dry-run of the signature/nonce/gas-price prelude
// against an aborted staging transaction, caching any rejection message in
// the bounded LRU so pollers observe a deterministic rejection without
// waiting, per §4.H.
func (n *Node) CheckRequest(req Request) error {
	tr, err := TRHash(req)
	if err != nil {
		return WrapNodeException(err)
	}
	tx := n.store.BeginTransaction(time.Now().Unix())
	defer tx.Abort()

	if dup, err := tx.HasResponseOrError(tr); err != nil {
		return WrapStoreException(err)
	} else if dup {
		msg := "repeated transaction reference"
		n.rejectCache.Add(tr, msg)
		return NewRejected(msg)
	}

	nr, ok := req.(NonInitialRequest)
	if !ok {
		return nil
	}
	if _, _, err := preludeCheck(n.deps, tx, nr); err != nil {
		var rej *RejectedError
		if errors.As(err, &rej) {
			n.rejectCache.Add(tr, rej.Error())
		}
		return err
	}
	return nil
}

// DeliverRequest stages req's response inside the node's current block
// transaction (lazily opened on first use), per delivery protocol steps
// 1-6. Only genuine node/store-boundary failures are returned as errors;
// rejections and ordinary failures are recorded in the staging transaction
// and released to pollers at the next CommitBlock.
func (n *Node) DeliverRequest(ctx context.Context, req Request) (TransactionReference, error) {
	n.blockMu.Lock()
	defer n.blockMu.Unlock()

	if n.current == nil {
		n.current = n.store.BeginTransaction(time.Now().Unix())
	}
	tx := n.current

	tr, err := TRHash(req)
	if err != nil {
		return TransactionReference{}, WrapNodeException(err)
	}

	if dup, err := tx.HasResponseOrError(tr); err != nil {
		return tr, WrapStoreException(err)
	} else if dup {
		tx.SetError(tr, "repeated transaction reference")
		n.pending = append(n.pending, tr)
		return tr, nil
	}
	tx.SetRequest(tr, req)

	resp, buildErr := BuildResponse(ctx, n.deps, tx, tr, req)
	if buildErr != nil {
		var rej *RejectedError
		switch {
		case errors.As(buildErr, &rej):
			tx.SetError(tr, rej.Error())
			n.pending = append(n.pending, tr)
			return tr, nil
		default:
			tx.SetError(tr, buildErr.Error())
			n.pending = append(n.pending, tr)
			logrus.WithError(buildErr).WithField("tr", tr).Warn("node: delivery raised a node/store exception")
			return tr, nil
		}
	}

	tx.SetResponse(tr, resp)
	if wu, ok := resp.(WithUpdates); ok {
		n.publishResponseEvents(resp, wu)
	}
	n.pending = append(n.pending, tr)
	return tr, nil
}

// CommitBlock folds the current staging transaction into the store and
// releases every TR's semaphore now that its outcome is durably queryable.
func (n *Node) CommitBlock(ctx context.Context) error {
	n.blockMu.Lock()
	tx := n.current
	pending := n.pending
	n.current = nil
	n.pending = nil
	n.blockMu.Unlock()

	if tx == nil {
		return nil
	}
	if _, err := tx.Commit(); err != nil {
		return WrapStoreException(err)
	}
	for _, tr := range pending {
		n.signalSemaphore(tr)
	}
	return nil
}

func (n *Node) recordNodeFailure(tr TransactionReference, err error) {
	n.rejectCache.Add(tr, err.Error())
	n.signalSemaphore(tr)
}

func (n *Node) createSemaphore(tr TransactionReference) {
	n.semMu.Lock()
	defer n.semMu.Unlock()
	if _, ok := n.sems[tr]; !ok {
		n.sems[tr] = make(chan struct{})
	}
}

func (n *Node) signalSemaphore(tr TransactionReference) {
	n.semMu.Lock()
	defer n.semMu.Unlock()
	if ch, ok := n.sems[tr]; ok {
		close(ch)
		delete(n.sems, tr)
	}
}

// waitSemaphore blocks until tr's result is available or ctx is done. If no
// semaphore is registered (already signalled and removed), it returns
// immediately.
func (n *Node) waitSemaphore(ctx context.Context, tr TransactionReference) error {
	n.semMu.Lock()
	ch, ok := n.sems[tr]
	n.semMu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return &InterruptedError{Reference: tr}
	}
}

// GetResponse returns the stored response for tr, per §7's "get_response
// returns the stored response; if the store has a recorded error for that
// TR it raises rejection; otherwise raises unknown-reference."
func (n *Node) GetResponse(tr TransactionReference) (Response, error) {
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
	return nil, &UnknownReferenceError{Reference: tr}
}

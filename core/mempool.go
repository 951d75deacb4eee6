package core

import (
	"context"
	"fmt"
)

// Mempool is the external collaborator named in §6: the node posts
// requests to it and the mempool calls back into the node with check,
// deliver, and commit_block once consensus admits a block of requests.
type Mempool interface {
	Post(ctx context.Context, req Request) error
}

// NodeCallback is the narrow surface the mempool drives the node through,
// matching §6's "calls back into node with check(request) then
// deliver(request) then commit_block()."
type NodeCallback interface {
	CheckRequest(req Request) error
	DeliverRequest(ctx context.Context, req Request) (TransactionReference, error)
	CommitBlock(ctx context.Context) error
}

// InlineMempool is a single-process mempool: Post runs check immediately
// and, if accepted, delivers the request and commits a one-request block
// right away. It exists to make the engine runnable standalone without a
// real consensus collaborator, the same role the teacher's in-memory
// relayer plays for its own networking layer in testnet mode.
type InlineMempool struct {
	node NodeCallback
}

// NewInlineMempool wraps node in a single-process Mempool.
func NewInlineMempool(node NodeCallback) *InlineMempool {
	return &InlineMempool{node: node}
}

func (m *InlineMempool) Post(ctx context.Context, req Request) error {
	if err := m.node.CheckRequest(req); err != nil {
		return err
	}
	if _, err := m.node.DeliverRequest(ctx, req); err != nil {
		return fmt.Errorf("inline mempool: deliver: %w", err)
	}
	return m.node.CommitBlock(ctx)
}

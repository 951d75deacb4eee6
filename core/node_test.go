package core

import (
	"context"
	"testing"
	"time"
)

func newTestNode(t *testing.T) (*Node, *InlineMempool) {
	t.Helper()
	store, err := NewStore(NewMemKVStore(), -1)
	if err != nil {
		t.Fatal(err)
	}
	deps := testBuilderDeps(NewTestSandbox())
	cfg := DefaultConfig()
	cfg.MaxPollingAttempts = 50
	cfg.PollingDelayMS = 1
	cfg.RequestCacheSize = 100
	node, err := NewNode(store, deps, cfg)
	if err != nil {
		t.Fatal(err)
	}
	return node, NewInlineMempool(node)
}

func TestNodeSubmitAndPollRoundTrip(t *testing.T) {
	node, mempool := newTestNode(t)
	ctx := context.Background()

	req := &JarStoreInitialRequest{Jar: []byte("jar bytes")}
	tr, err := node.AddRequest(ctx, mempool, req)
	if err != nil {
		t.Fatalf("add request: %v", err)
	}

	resp, err := node.GetPolledResponse(ctx, tr)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	jsr, ok := resp.(*JarStoreInitialResponse)
	if !ok {
		t.Fatalf("unexpected response type %T", resp)
	}
	if string(jsr.InstrumentedJar) != "jar bytes" {
		t.Fatalf("got %q", jsr.InstrumentedJar)
	}
}

func TestNodeDuplicateTransactionReferenceIsRejectedOnSecondSubmit(t *testing.T) {
	node, mempool := newTestNode(t)
	ctx := context.Background()

	req := &JarStoreInitialRequest{Jar: []byte("same bytes")}
	tr1, err := node.AddRequest(ctx, mempool, req)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := node.GetPolledResponse(ctx, tr1); err != nil {
		t.Fatalf("first submission should succeed: %v", err)
	}

	tr2, err := node.AddRequest(ctx, mempool, req)
	if err != nil {
		t.Fatal(err)
	}
	if tr1 != tr2 {
		t.Fatalf("expected identical TRs for identical requests, got %s and %s", tr1, tr2)
	}
	if _, err := node.GetPolledResponse(ctx, tr2); err == nil {
		t.Fatal("expected the repeated transaction reference to be rejected")
	}
}

func TestNodeCheckRequestCachesPreludeRejection(t *testing.T) {
	node, _ := newTestNode(t)

	tx := node.store.BeginTransaction(0)
	_, gamete := bootstrapNode(t, node.deps, tx, 1000)
	if _, err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	badReq := &ConstructorCallRequest{
		nonInitialCommon: nonInitialCommon{
			Caller:   gamete,
			Nonce:    999,
			ChainID:  "test-chain",
			GasLimit: 1000,
			GasPrice: 1,
		},
		Classpath:   TransactionReference{1},
		Constructor: CodeSignature{DefiningClass: ClassStorageType("C"), IsConstructor: true},
	}
	if err := node.CheckRequest(badReq); err == nil {
		t.Fatal("expected check_request to reject a bad nonce")
	}

	tr, _ := TRHash(badReq)
	if msg, ok := node.rejectCache.Get(tr); !ok || msg == "" {
		t.Fatalf("expected the rejection to be cached, ok=%v msg=%q", ok, msg)
	}
}

func TestNodeGetPolledResponseTimesOutWithoutDelivery(t *testing.T) {
	node, _ := newTestNode(t)
	node.cfg.MaxPollingAttempts = 3
	node.cfg.PollingDelayMS = 1

	req := &JarStoreInitialRequest{Jar: []byte("never delivered")}
	tr, err := TRHash(req)
	if err != nil {
		t.Fatal(err)
	}
	node.createSemaphore(tr)
	node.signalSemaphore(tr) // pretend delivery happened with no stored outcome

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = node.GetPolledResponse(ctx, tr)
	if _, ok := err.(*PollingTimeoutError); !ok {
		t.Fatalf("expected *PollingTimeoutError, got %T: %v", err, err)
	}
}

func TestEventRegistryDeliversWildcardThenCreatorSpecificHandlers(t *testing.T) {
	reg := newEventRegistry()
	creator := StorageReference{Transaction: TransactionReference{1}, Progressive: 0}
	event := StorageReference{Transaction: TransactionReference{2}, Progressive: 0}

	var order []string
	reg.Subscribe(nil, func(e StorageReference) { order = append(order, "wildcard") })
	reg.Subscribe(&creator, func(e StorageReference) { order = append(order, "specific") })

	reg.Publish(creator, event)

	if len(order) != 2 || order[0] != "wildcard" || order[1] != "specific" {
		t.Fatalf("expected wildcard then specific, got %v", order)
	}
}

func TestEventRegistryHandlerPanicDoesNotStopOtherHandlers(t *testing.T) {
	reg := newEventRegistry()
	creator := StorageReference{Transaction: TransactionReference{3}, Progressive: 0}

	var secondCalled bool
	reg.Subscribe(&creator, func(e StorageReference) { panic("boom") })
	reg.Subscribe(&creator, func(e StorageReference) { secondCalled = true })

	reg.Publish(creator, StorageReference{})

	if !secondCalled {
		t.Fatal("expected the second handler to still run after the first panicked")
	}
}

func TestNodeGetStateCoalescesNewestUpdateWins(t *testing.T) {
	node, _ := newTestNode(t)
	obj := StorageReference{Transaction: TransactionReference{10}, Progressive: 0}
	field := FieldSignature{Name: "counter", Type: BasicStorageType(BasicInt)}

	updaterOld := TransactionReference{11}
	updaterNew := TransactionReference{12}

	tx1 := node.store.BeginTransaction(0)
	tx1.SetResponse(updaterOld, &MethodCallSuccessfulResponse{
		Updates: []Update{FieldUpdate{Obj: obj, Field: field, Value: IntValue(1)}},
		Result:  IntValue(1),
	})
	tx1.SetHistory(obj, []TransactionReference{updaterOld})
	if _, err := tx1.Commit(); err != nil {
		t.Fatal(err)
	}

	tx2 := node.store.BeginTransaction(0)
	tx2.SetResponse(updaterNew, &MethodCallSuccessfulResponse{
		Updates: []Update{FieldUpdate{Obj: obj, Field: field, Value: IntValue(2)}},
		Result:  IntValue(2),
	})
	tx2.SetHistory(obj, []TransactionReference{updaterOld, updaterNew})
	if _, err := tx2.Commit(); err != nil {
		t.Fatal(err)
	}

	state, err := node.GetState(obj)
	if err != nil {
		t.Fatal(err)
	}
	if len(state) != 1 {
		t.Fatalf("expected exactly one coalesced update, got %d: %+v", len(state), state)
	}
	fu := state[0].(FieldUpdate)
	if !fu.Value.Equal(IntValue(2)) {
		t.Fatalf("expected the newest value 2 to win, got %+v", fu.Value)
	}
}

package core

import (
	"context"
	"math/big"
	"testing"
)

func testBuilderDeps(sb Sandbox) BuilderDeps {
	return BuilderDeps{
		Sandbox:    sb,
		SigAlgo:    EmptyAlgorithm{},
		ChainID:    "test-chain",
		GasPrice:   1,
		MaxGas:     1_000_000,
		MaxViewGas: 1_000_000,
	}
}

// bootstrapNode runs the three-request bootstrap sequence (jar-store-initial,
// gamete-creation, initialization) against a fresh store and sandbox, then
// hands back the caller account's SR for use by later non-initial requests.
func bootstrapNode(t *testing.T, deps BuilderDeps, tx *StoreTransaction, green int64) (jarTR TransactionReference, gamete StorageReference) {
	t.Helper()
	ctx := context.Background()

	jarReq := &JarStoreInitialRequest{Jar: []byte("base jar bytes")}
	jarTR, err := TRHash(jarReq)
	if err != nil {
		t.Fatal(err)
	}
	jarResp, err := BuildResponse(ctx, deps, tx, jarTR, jarReq)
	if err != nil {
		t.Fatalf("jar-store-initial: %v", err)
	}
	tx.SetResponse(jarTR, jarResp)

	gameteReq := &GameteCreationRequest{
		Classpath:    jarTR,
		InitialGreen: big.NewInt(green),
		InitialRed:   big.NewInt(0),
		PublicKey:    []byte("test-pubkey"),
	}
	gameteTR, err := TRHash(gameteReq)
	if err != nil {
		t.Fatal(err)
	}
	gameteResp, err := BuildResponse(ctx, deps, tx, gameteTR, gameteReq)
	if err != nil {
		t.Fatalf("gamete-creation: %v", err)
	}
	tx.SetResponse(gameteTR, gameteResp)
	gamete = gameteResp.(*GameteCreationResponse).NewGamete

	manifest := StorageReference{Transaction: gameteTR, Progressive: 1}
	initReq := &InitializationRequest{Classpath: jarTR, Manifest: manifest}
	initTR, err := TRHash(initReq)
	if err != nil {
		t.Fatal(err)
	}
	initResp, err := BuildResponse(ctx, deps, tx, initTR, initReq)
	if err != nil {
		t.Fatalf("initialization: %v", err)
	}
	tx.SetResponse(initTR, initResp)

	return jarTR, gamete
}

func TestBootstrapSequenceInitializesNode(t *testing.T) {
	store, err := NewStore(NewMemKVStore(), -1)
	if err != nil {
		t.Fatal(err)
	}
	sb := NewTestSandbox()
	deps := testBuilderDeps(sb)
	tx := store.BeginTransaction(0)

	_, gamete := bootstrapNode(t, deps, tx, 1_000_000)
	if gamete.IsZero() {
		t.Fatal("expected a non-zero gamete reference")
	}

	if _, err := tx.Commit(); err != nil {
		t.Fatalf("commit bootstrap: %v", err)
	}
	manifest, ok := store.Snapshot().GetManifest()
	if !ok {
		t.Fatal("expected manifest to be set after bootstrap")
	}
	if manifest.IsZero() {
		t.Fatal("expected a non-zero manifest reference")
	}
}

func TestSecondInitializationRequestIsRejected(t *testing.T) {
	store, err := NewStore(NewMemKVStore(), -1)
	if err != nil {
		t.Fatal(err)
	}
	sb := NewTestSandbox()
	deps := testBuilderDeps(sb)
	tx := store.BeginTransaction(0)
	jarTR, gamete := bootstrapNode(t, deps, tx, 1000)

	secondInit := &InitializationRequest{Classpath: jarTR, Manifest: gamete}
	tr2, _ := TRHash(secondInit)
	_, err = BuildResponse(context.Background(), deps, tx, tr2, secondInit)
	if err == nil {
		t.Fatal("expected the second initialization request to be rejected")
	}
	if _, ok := err.(*RejectedError); !ok {
		t.Fatalf("expected *RejectedError, got %T: %v", err, err)
	}
}

func TestConstructorCallSuccessChargesGasAndExtractsUpdates(t *testing.T) {
	store, err := NewStore(NewMemKVStore(), -1)
	if err != nil {
		t.Fatal(err)
	}
	sb := NewTestSandbox()
	deps := testBuilderDeps(sb)
	tx := store.BeginTransaction(0)
	_, gamete := bootstrapNode(t, deps, tx, 1_000_000)

	req := &ConstructorCallRequest{
		nonInitialCommon: nonInitialCommon{
			Caller:   gamete,
			Nonce:    0,
			ChainID:  "test-chain",
			GasLimit: 100_000,
			GasPrice: 1,
		},
		Classpath:   TransactionReference{1},
		Constructor: CodeSignature{DefiningClass: ClassStorageType("io.takamaka.code.lang.Contract"), IsConstructor: true},
		Actuals:     []StorageValue{IntValue(42)},
	}
	tr, err := TRHash(req)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := BuildResponse(context.Background(), deps, tx, tr, req)
	if err != nil {
		t.Fatalf("constructor call: %v", err)
	}
	success, ok := resp.(*ConstructorCallSuccessfulResponse)
	if !ok {
		t.Fatalf("expected a successful response, got %T", resp)
	}
	if success.SelfCharged {
		t.Fatal("expected SelfCharged to always be false")
	}
	if success.NewObject.IsZero() {
		t.Fatal("expected a non-zero new object reference")
	}
	if success.Gas.CPU == 0 {
		t.Fatal("expected nonzero CPU gas charged for the constructor call")
	}

	var sawGreenUpdate, sawNonceUpdate bool
	for _, u := range success.Updates {
		fu, ok := u.(FieldUpdate)
		if !ok {
			continue
		}
		if fu.Obj == gamete && fu.Field.Name == "balanceGreen" {
			sawGreenUpdate = true
		}
		if fu.Obj == gamete && fu.Field.Name == "nonce" {
			sawNonceUpdate = true
			if fu.Value.Long != 1 {
				t.Fatalf("expected nonce to advance to 1, got %d", fu.Value.Long)
			}
		}
	}
	if !sawGreenUpdate || !sawNonceUpdate {
		t.Fatalf("expected the caller's balance and nonce to be staged, updates=%+v", success.Updates)
	}
}

func TestConstructorCallRejectsNonceMismatch(t *testing.T) {
	store, err := NewStore(NewMemKVStore(), -1)
	if err != nil {
		t.Fatal(err)
	}
	sb := NewTestSandbox()
	deps := testBuilderDeps(sb)
	tx := store.BeginTransaction(0)
	_, gamete := bootstrapNode(t, deps, tx, 1_000_000)

	req := &ConstructorCallRequest{
		nonInitialCommon: nonInitialCommon{
			Caller:   gamete,
			Nonce:    7, // account nonce is still 0
			ChainID:  "test-chain",
			GasLimit: 100_000,
			GasPrice: 1,
		},
		Classpath:   TransactionReference{1},
		Constructor: CodeSignature{DefiningClass: ClassStorageType("C"), IsConstructor: true},
	}
	tr, _ := TRHash(req)
	_, err = BuildResponse(context.Background(), deps, tx, tr, req)
	rej, ok := err.(*RejectedError)
	if !ok {
		t.Fatalf("expected *RejectedError for nonce mismatch, got %T: %v", err, err)
	}
	if rej == nil {
		t.Fatal("expected non-nil rejection")
	}
}

func TestConstructorCallRejectsWrongChainID(t *testing.T) {
	store, err := NewStore(NewMemKVStore(), -1)
	if err != nil {
		t.Fatal(err)
	}
	sb := NewTestSandbox()
	deps := testBuilderDeps(sb)
	tx := store.BeginTransaction(0)
	_, gamete := bootstrapNode(t, deps, tx, 1_000_000)

	req := &ConstructorCallRequest{
		nonInitialCommon: nonInitialCommon{
			Caller:   gamete,
			Nonce:    0,
			ChainID:  "wrong-chain",
			GasLimit: 100_000,
			GasPrice: 1,
		},
		Classpath:   TransactionReference{1},
		Constructor: CodeSignature{DefiningClass: ClassStorageType("C"), IsConstructor: true},
	}
	tr, _ := TRHash(req)
	if _, err := BuildResponse(context.Background(), deps, tx, tr, req); err == nil {
		t.Fatal("expected a rejection for the wrong chain-id")
	}
}

func TestConstructorCallRejectsInsufficientBalance(t *testing.T) {
	store, err := NewStore(NewMemKVStore(), -1)
	if err != nil {
		t.Fatal(err)
	}
	sb := NewTestSandbox()
	deps := testBuilderDeps(sb)
	tx := store.BeginTransaction(0)
	_, gamete := bootstrapNode(t, deps, tx, 10) // tiny balance

	req := &ConstructorCallRequest{
		nonInitialCommon: nonInitialCommon{
			Caller:   gamete,
			Nonce:    0,
			ChainID:  "test-chain",
			GasLimit: 100_000, // gas_limit*gas_price=100000 > balance=10
			GasPrice: 1,
		},
		Classpath:   TransactionReference{1},
		Constructor: CodeSignature{DefiningClass: ClassStorageType("C"), IsConstructor: true},
	}
	tr, _ := TRHash(req)
	_, err = BuildResponse(context.Background(), deps, tx, tr, req)
	if _, ok := err.(*RejectedError); !ok {
		t.Fatalf("expected *RejectedError for insufficient balance, got %T: %v", err, err)
	}
}

func TestInstanceMethodCallVoidReturnsNoResult(t *testing.T) {
	store, err := NewStore(NewMemKVStore(), -1)
	if err != nil {
		t.Fatal(err)
	}
	sb := NewTestSandbox()
	deps := testBuilderDeps(sb)
	tx := store.BeginTransaction(0)
	_, gamete := bootstrapNode(t, deps, tx, 1_000_000)

	req := &InstanceMethodCallRequest{
		nonInitialCommon: nonInitialCommon{
			Caller:   gamete,
			Nonce:    0,
			ChainID:  "test-chain",
			GasLimit: 100_000,
			GasPrice: 1,
		},
		Classpath: TransactionReference{1},
		Receiver:  gamete,
		Method:    CodeSignature{DefiningClass: ClassStorageType("io.takamaka.code.lang.ExternallyOwnedAccount"), MethodName: "deposit"},
	}
	tr, _ := TRHash(req)
	resp, err := BuildResponse(context.Background(), deps, tx, tr, req)
	if err != nil {
		t.Fatalf("instance method call: %v", err)
	}
	if _, ok := resp.(*VoidMethodCallSuccessfulResponse); !ok {
		t.Fatalf("expected a void successful response, got %T", resp)
	}
}

func TestStaticMethodCallReturnsZeroValueForDeclaredType(t *testing.T) {
	store, err := NewStore(NewMemKVStore(), -1)
	if err != nil {
		t.Fatal(err)
	}
	sb := NewTestSandbox()
	deps := testBuilderDeps(sb)
	tx := store.BeginTransaction(0)
	_, gamete := bootstrapNode(t, deps, tx, 1_000_000)

	retType := BasicStorageType(BasicInt)
	req := &StaticMethodCallRequest{
		nonInitialCommon: nonInitialCommon{
			Caller:   gamete,
			Nonce:    0,
			ChainID:  "test-chain",
			GasLimit: 100_000,
			GasPrice: 1,
		},
		Classpath: TransactionReference{1},
		Method:    CodeSignature{DefiningClass: ClassStorageType("C"), MethodName: "compute", ReturnType: &retType},
	}
	tr, _ := TRHash(req)
	resp, err := BuildResponse(context.Background(), deps, tx, tr, req)
	if err != nil {
		t.Fatalf("static method call: %v", err)
	}
	success, ok := resp.(*MethodCallSuccessfulResponse)
	if !ok {
		t.Fatalf("expected a successful response, got %T", resp)
	}
	if !success.Result.Equal(IntValue(0)) {
		t.Fatalf("expected the zero int value, got %+v", success.Result)
	}
}

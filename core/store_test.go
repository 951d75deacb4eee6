package core

import (
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(NewMemKVStore(), -1)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestStoreCommitPersistsResponseAndAdvancesCounter(t *testing.T) {
	s := newTestStore(t)
	tr := TransactionReference{1}
	tx := s.BeginTransaction(100)
	tx.SetRequest(tr, &JarStoreInitialRequest{Jar: []byte("hi")})
	tx.SetResponse(tr, &JarStoreInitialResponse{InstrumentedJar: []byte("hi")})
	if _, err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if got := s.GetCommitCount(); got != 1 {
		t.Fatalf("commit count: got %d want 1", got)
	}

	snap := s.Snapshot()
	resp, ok, err := snap.GetResponse(tr)
	if err != nil || !ok {
		t.Fatalf("get response: ok=%v err=%v", ok, err)
	}
	jsr, ok := resp.(*JarStoreInitialResponse)
	if !ok {
		t.Fatalf("unexpected response type %T", resp)
	}
	if string(jsr.InstrumentedJar) != "hi" {
		t.Fatalf("jar bytes: got %q", jsr.InstrumentedJar)
	}
}

func TestStoreAbortDiscardsStagedWrites(t *testing.T) {
	s := newTestStore(t)
	tr := TransactionReference{2}
	tx := s.BeginTransaction(0)
	tx.SetResponse(tr, &InitializationResponse{})
	tx.Abort()

	snap := s.Snapshot()
	if _, ok, err := snap.GetResponse(tr); err != nil || ok {
		t.Fatalf("expected aborted response to be absent, ok=%v err=%v", ok, err)
	}
	if got := s.GetCommitCount(); got != 0 {
		t.Fatalf("commit count should be unaffected by abort, got %d", got)
	}
}

func TestStoreHasResponseOrErrorCatchesBothKinds(t *testing.T) {
	s := newTestStore(t)
	respTR := TransactionReference{3}
	errTR := TransactionReference{4}

	tx := s.BeginTransaction(0)
	tx.SetResponse(respTR, &InitializationResponse{})
	tx.SetError(errTR, "rejected: bad nonce")
	if _, err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	snap := s.Snapshot()
	for _, tr := range []TransactionReference{respTR, errTR} {
		if dup, err := snap.HasResponseOrError(tr); err != nil || !dup {
			t.Fatalf("tr %s: expected duplicate, dup=%v err=%v", tr, dup, err)
		}
	}
	msg, ok, err := snap.GetError(errTR)
	if err != nil || !ok || msg != "rejected: bad nonce" {
		t.Fatalf("get error: msg=%q ok=%v err=%v", msg, ok, err)
	}
}

func TestStoreManifestLifecycle(t *testing.T) {
	s := newTestStore(t)
	if _, ok := s.Snapshot().GetManifest(); ok {
		t.Fatal("expected no manifest on a fresh store")
	}

	manifest := StorageReference{Transaction: TransactionReference{9}, Progressive: 0}
	tx := s.BeginTransaction(0)
	tx.SetManifest(manifest)
	if _, err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	got, ok := s.Snapshot().GetManifest()
	if !ok || got != manifest {
		t.Fatalf("got %+v, %v want %+v", got, ok, manifest)
	}
}

func TestStoreJarBytesDeduplicateAcrossTransactions(t *testing.T) {
	s := newTestStore(t)
	jar := []byte("same jar bytes")

	tr1 := TransactionReference{5}
	tx1 := s.BeginTransaction(0)
	tx1.SetResponse(tr1, &JarStoreInitialResponse{InstrumentedJar: jar})
	if _, err := tx1.Commit(); err != nil {
		t.Fatal(err)
	}
	rootAfterFirst := s.jarsRoot

	tr2 := TransactionReference{6}
	tx2 := s.BeginTransaction(0)
	tx2.SetResponse(tr2, &JarStoreInitialResponse{InstrumentedJar: jar})
	if _, err := tx2.Commit(); err != nil {
		t.Fatal(err)
	}

	if s.jarsRoot != rootAfterFirst {
		t.Fatalf("expected identical jar bytes to not grow the jars trie root: %x != %x", s.jarsRoot, rootAfterFirst)
	}

	snap := s.Snapshot()
	for _, tr := range []TransactionReference{tr1, tr2} {
		resp, ok, err := snap.GetResponse(tr)
		if err != nil || !ok {
			t.Fatalf("get response %s: ok=%v err=%v", tr, ok, err)
		}
		if string(resp.(*JarStoreInitialResponse).InstrumentedJar) != string(jar) {
			t.Fatalf("jar mismatch for %s", tr)
		}
	}
}

func TestStoreGetHistoryAppendsCreatingTransaction(t *testing.T) {
	s := newTestStore(t)
	obj := StorageReference{Transaction: TransactionReference{7}, Progressive: 0}
	updater := TransactionReference{8}

	tx := s.BeginTransaction(0)
	tx.SetHistory(obj, []TransactionReference{updater})
	if _, err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	hist, err := s.Snapshot().GetHistory(obj)
	if err != nil {
		t.Fatal(err)
	}
	want := []TransactionReference{updater, obj.Transaction}
	if len(hist) != len(want) {
		t.Fatalf("history length: got %d want %d", len(hist), len(want))
	}
	for i := range want {
		if hist[i] != want[i] {
			t.Fatalf("history[%d]: got %s want %s", i, hist[i], want[i])
		}
	}
}

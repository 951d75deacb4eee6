package core

import (
	"testing"

	"github.com/veridian-chain/veridian/internal/testutil"
)

func TestBoltKVStorePutGetRoundTrip(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatal(err)
	}
	defer sb.Cleanup()

	kv, err := OpenBoltKVStore(sb.Path("veridian.bolt"))
	if err != nil {
		t.Fatalf("open bolt store: %v", err)
	}
	defer kv.(*boltKVStore).Close()

	if err := kv.Put([]byte("k1"), []byte("v1")); err != nil {
		t.Fatal(err)
	}
	got, ok, err := kv.Get([]byte("k1"))
	if err != nil || !ok || string(got) != "v1" {
		t.Fatalf("get: got %q, ok=%v, err=%v", got, ok, err)
	}
	if _, ok, err := kv.Get([]byte("missing")); err != nil || ok {
		t.Fatalf("expected missing key to miss, ok=%v err=%v", ok, err)
	}
}

func TestBoltKVStorePersistsAcrossReopen(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatal(err)
	}
	defer sb.Cleanup()
	path := sb.Path("veridian.bolt")

	kv, err := OpenBoltKVStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := kv.Put([]byte("durable"), []byte("yes")); err != nil {
		t.Fatal(err)
	}
	if err := kv.(*boltKVStore).Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenBoltKVStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.(*boltKVStore).Close()
	got, ok, err := reopened.Get([]byte("durable"))
	if err != nil || !ok || string(got) != "yes" {
		t.Fatalf("get after reopen: got %q, ok=%v, err=%v", got, ok, err)
	}
}

func TestBoltKVStoreBatchCommitsAllOps(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatal(err)
	}
	defer sb.Cleanup()

	kv, err := OpenBoltKVStore(sb.Path("veridian.bolt"))
	if err != nil {
		t.Fatal(err)
	}
	defer kv.(*boltKVStore).Close()

	if err := kv.Put([]byte("stale"), []byte("x")); err != nil {
		t.Fatal(err)
	}

	batch := kv.NewBatch()
	batch.Put([]byte("a"), []byte("1"))
	batch.Put([]byte("b"), []byte("2"))
	batch.Delete([]byte("stale"))
	if err := batch.Commit(); err != nil {
		t.Fatalf("batch commit: %v", err)
	}

	for k, want := range map[string]string{"a": "1", "b": "2"} {
		got, ok, err := kv.Get([]byte(k))
		if err != nil || !ok || string(got) != want {
			t.Fatalf("get %s: got %q, ok=%v, err=%v", k, got, ok, err)
		}
	}
	if _, ok, err := kv.Get([]byte("stale")); err != nil || ok {
		t.Fatalf("expected deleted key to miss, ok=%v err=%v", ok, err)
	}
}

func TestBoltKVStoreSnapshotIteratesByPrefix(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatal(err)
	}
	defer sb.Cleanup()

	kv, err := OpenBoltKVStore(sb.Path("veridian.bolt"))
	if err != nil {
		t.Fatal(err)
	}
	defer kv.(*boltKVStore).Close()

	for _, kv2 := range [][2]string{{"p:1", "one"}, {"p:2", "two"}, {"q:1", "skip"}} {
		if err := kv.Put([]byte(kv2[0]), []byte(kv2[1])); err != nil {
			t.Fatal(err)
		}
	}

	snap := kv.Snapshot()
	defer snap.Release()
	it := snap.Iterate([]byte("p:"))
	var seen []string
	for it.Next() {
		seen = append(seen, string(it.Key()))
	}
	if err := it.Error(); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || seen[0] != "p:1" || seen[1] != "p:2" {
		t.Fatalf("expected prefix-scoped iteration over p:1, p:2, got %v", seen)
	}
}

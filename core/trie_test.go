package core

import (
	"bytes"
	"testing"
)

func TestTrieGetMissingOnEmptyRoot(t *testing.T) {
	tr := NewTrie(NewMemKVStore(), "t:", nil)
	v, ok, err := tr.Get(ZeroRoot, []byte("missing"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok || v != nil {
		t.Fatalf("expected absent value on empty trie, got %v, %v", v, ok)
	}
}

func TestTriePutGetRoundTrip(t *testing.T) {
	tr := NewTrie(NewMemKVStore(), "t:", nil)
	root := ZeroRoot
	var err error
	entries := map[string]string{
		"alpha":   "one",
		"beta":    "two",
		"gamma":   "three",
		"delta12": "four",
		"delta34": "five",
	}
	for k, v := range entries {
		root, err = tr.Put(root, []byte(k), []byte(v), 1)
		if err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	for k, v := range entries {
		got, ok, err := tr.Get(root, []byte(k))
		if err != nil {
			t.Fatalf("get %s: %v", k, err)
		}
		if !ok || string(got) != v {
			t.Fatalf("get %s: got %q, %v want %q", k, got, ok, v)
		}
	}
	if _, ok, err := tr.Get(root, []byte("absent")); err != nil || ok {
		t.Fatalf("expected absent key to miss, got ok=%v err=%v", ok, err)
	}
}

func TestTriePutOverwritesExistingKey(t *testing.T) {
	tr := NewTrie(NewMemKVStore(), "t:", nil)
	root, err := tr.Put(ZeroRoot, []byte("k"), []byte("v1"), 1)
	if err != nil {
		t.Fatal(err)
	}
	root, err = tr.Put(root, []byte("k"), []byte("v2"), 2)
	if err != nil {
		t.Fatal(err)
	}
	got, ok, err := tr.Get(root, []byte("k"))
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(got, []byte("v2")) {
		t.Fatalf("got %q want v2", got)
	}
}

func TestTrieDeterministicRootAcrossInsertionOrder(t *testing.T) {
	entries := [][2]string{{"a", "1"}, {"b", "2"}, {"ab", "3"}, {"abc", "4"}}

	build := func(order []int) [32]byte {
		tr := NewTrie(NewMemKVStore(), "t:", nil)
		root := ZeroRoot
		var err error
		for _, i := range order {
			root, err = tr.Put(root, []byte(entries[i][0]), []byte(entries[i][1]), 1)
			if err != nil {
				t.Fatalf("put: %v", err)
			}
		}
		return root
	}

	rootA := build([]int{0, 1, 2, 3})
	rootB := build([]int{3, 2, 1, 0})
	if rootA != rootB {
		t.Fatalf("expected insertion-order-independent root, got %x != %x", rootA, rootB)
	}
}

func TestTrieGarbageCollectRetainsReachableNodes(t *testing.T) {
	kv := NewMemKVStore()
	tr := NewTrie(kv, "t:", nil)

	root1, err := tr.Put(ZeroRoot, []byte("k1"), []byte("v1"), 1)
	if err != nil {
		t.Fatal(err)
	}
	root2, err := tr.Put(root1, []byte("k2"), []byte("v2"), 2)
	if err != nil {
		t.Fatal(err)
	}

	if err := tr.GarbageCollect(1, [][32]byte{root2}); err != nil {
		t.Fatalf("gc: %v", err)
	}

	if _, ok, err := tr.Get(root2, []byte("k1")); err != nil || !ok {
		t.Fatalf("expected k1 to survive gc via root2, ok=%v err=%v", ok, err)
	}
	if _, ok, err := tr.Get(root2, []byte("k2")); err != nil || !ok {
		t.Fatalf("expected k2 present in root2, ok=%v err=%v", ok, err)
	}
}

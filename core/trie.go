package core

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// ZeroRoot is the all-zero 32-byte hash denoting the empty trie.
var ZeroRoot = [32]byte{}

// KeyHasher computes the 32-byte trie key for a logical key. Conflicting
// logical keys that hash to the same 32 bytes are treated as one entry,
// per §4.C.
type KeyHasher func(logicalKey []byte) [32]byte

// Sha256KeyHasher is the default hasher used throughout core: SHA-256 of the
// logical key bytes.
func Sha256KeyHasher(logicalKey []byte) [32]byte {
	return sha256.Sum256(logicalKey)
}

// Trie is a generic Merkle-Patricia trie over a 32-byte hashed key space,
// backed by a KVStore. Every touched node records the commit number that
// last wrote it (nodeTouch below) so GarbageCollect can free orphaned nodes
// deterministically once their owning root is no longer retained.
type Trie struct {
	kv     KVStore
	hasher KeyHasher
	prefix []byte // namespaces this trie's nodes within a shared KVStore
}

// NewTrie constructs a trie over kv, namespacing its node keys with prefix
// so that several tries (responses, info, history) can share one KVStore.
func NewTrie(kv KVStore, prefix string, hasher KeyHasher) *Trie {
	if hasher == nil {
		hasher = Sha256KeyHasher
	}
	return &Trie{kv: kv, hasher: hasher, prefix: []byte(prefix)}
}

func (t *Trie) nodeKey(hash [32]byte) []byte {
	return append(append([]byte{}, t.prefix...), hash[:]...)
}

func (t *Trie) touchKey(hash [32]byte) []byte {
	k := append([]byte{}, t.prefix...)
	k = append(k, 't', 'o', 'u', 'c', 'h', ':')
	return append(k, hash[:]...)
}

// trieNodeKind tags the on-disk node variant. Node encoding is internal
// plumbing, not one of the wire-codec beans in §4.A/§6, so it uses its own
// small binary format rather than the Encoder/Decoder pair.
type trieNodeKind byte

const (
	nodeLeaf      trieNodeKind = 1
	nodeExtension trieNodeKind = 2
	nodeBranch    trieNodeKind = 3
)

type trieNode struct {
	kind     trieNodeKind
	nibbles  []byte     // leaf/extension: the shared/remaining nibble path
	value    []byte     // leaf: the stored value; branch: optional value at this node
	child    [32]byte   // extension: hash of the single child
	children [16][32]byte // branch: per-nibble child hashes (zero = absent)
	hasValue bool       // branch: whether value is meaningful
}

func encodeTrieNode(n *trieNode) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(n.kind))
	switch n.kind {
	case nodeLeaf:
		writeLenPrefixed(&buf, n.nibbles)
		writeLenPrefixed(&buf, n.value)
	case nodeExtension:
		writeLenPrefixed(&buf, n.nibbles)
		buf.Write(n.child[:])
	case nodeBranch:
		for _, c := range n.children {
			buf.Write(c[:])
		}
		if n.hasValue {
			buf.WriteByte(1)
			writeLenPrefixed(&buf, n.value)
		} else {
			buf.WriteByte(0)
		}
	}
	return buf.Bytes()
}

func writeLenPrefixed(buf *bytes.Buffer, b []byte) {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(b)))
	buf.Write(l[:])
	buf.Write(b)
}

func decodeTrieNode(b []byte) (*trieNode, error) {
	if len(b) < 1 {
		return nil, fmt.Errorf("trie: empty node encoding")
	}
	n := &trieNode{kind: trieNodeKind(b[0])}
	r := b[1:]
	readLenPrefixed := func() ([]byte, error) {
		if len(r) < 4 {
			return nil, fmt.Errorf("trie: truncated node")
		}
		l := binary.BigEndian.Uint32(r[:4])
		r = r[4:]
		if uint32(len(r)) < l {
			return nil, fmt.Errorf("trie: truncated node body")
		}
		out := r[:l]
		r = r[l:]
		return out, nil
	}
	switch n.kind {
	case nodeLeaf:
		nib, err := readLenPrefixed()
		if err != nil {
			return nil, err
		}
		val, err := readLenPrefixed()
		if err != nil {
			return nil, err
		}
		n.nibbles, n.value = nib, val
	case nodeExtension:
		nib, err := readLenPrefixed()
		if err != nil {
			return nil, err
		}
		if len(r) < 32 {
			return nil, fmt.Errorf("trie: truncated extension child")
		}
		copy(n.child[:], r[:32])
		n.nibbles = nib
	case nodeBranch:
		if len(r) < 16*32+1 {
			return nil, fmt.Errorf("trie: truncated branch")
		}
		for i := 0; i < 16; i++ {
			copy(n.children[i][:], r[i*32:i*32+32])
		}
		r = r[16*32:]
		n.hasValue = r[0] == 1
		r = r[1:]
		if n.hasValue {
			val, err := readLenPrefixed()
			if err != nil {
				return nil, err
			}
			n.value = val
		}
	default:
		return nil, fmt.Errorf("trie: unknown node kind %d", n.kind)
	}
	return n, nil
}

func hashNode(n *trieNode) [32]byte {
	return sha256.Sum256(encodeTrieNode(n))
}

func toNibbles(key [32]byte) []byte {
	nib := make([]byte, 64)
	for i, b := range key {
		nib[2*i] = b >> 4
		nib[2*i+1] = b & 0x0f
	}
	return nib
}

func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// Get looks up the value stored at logicalKey in the trie rooted at root.
func (t *Trie) Get(root [32]byte, logicalKey []byte) ([]byte, bool, error) {
	if root == ZeroRoot {
		return nil, false, nil
	}
	return t.getAt(root, toNibbles(t.hasher(logicalKey)))
}

func (t *Trie) getAt(hash [32]byte, nibbles []byte) ([]byte, bool, error) {
	raw, ok, err := t.kv.Get(t.nodeKey(hash))
	if err != nil {
		return nil, false, fmt.Errorf("trie get: %w", err)
	}
	if !ok {
		return nil, false, fmt.Errorf("trie get: missing node %x", hash)
	}
	n, err := decodeTrieNode(raw)
	if err != nil {
		return nil, false, fmt.Errorf("trie get: %w", err)
	}
	switch n.kind {
	case nodeLeaf:
		if bytes.Equal(n.nibbles, nibbles) {
			return n.value, true, nil
		}
		return nil, false, nil
	case nodeExtension:
		if len(nibbles) < len(n.nibbles) || !bytes.Equal(nibbles[:len(n.nibbles)], n.nibbles) {
			return nil, false, nil
		}
		return t.getAt(n.child, nibbles[len(n.nibbles):])
	case nodeBranch:
		if len(nibbles) == 0 {
			if n.hasValue {
				return n.value, true, nil
			}
			return nil, false, nil
		}
		child := n.children[nibbles[0]]
		if child == ZeroRoot {
			return nil, false, nil
		}
		return t.getAt(child, nibbles[1:])
	default:
		return nil, false, fmt.Errorf("trie get: unknown node kind")
	}
}

// Put writes value under logicalKey into the trie rooted at root, returning
// the new root. commitNum is recorded against every freshly written node so
// GarbageCollect can reclaim it once orphaned.
func (t *Trie) Put(root [32]byte, logicalKey, value []byte, commitNum uint64) ([32]byte, error) {
	nibbles := toNibbles(t.hasher(logicalKey))
	if root == ZeroRoot {
		return t.putLeaf(nibbles, value, commitNum)
	}
	return t.putAt(root, nibbles, value, commitNum)
}

func (t *Trie) putLeaf(nibbles, value []byte, commitNum uint64) ([32]byte, error) {
	n := &trieNode{kind: nodeLeaf, nibbles: append([]byte{}, nibbles...), value: value}
	return t.writeNode(n, commitNum)
}

func (t *Trie) writeNode(n *trieNode, commitNum uint64) ([32]byte, error) {
	hash := hashNode(n)
	if err := t.kv.Put(t.nodeKey(hash), encodeTrieNode(n)); err != nil {
		return ZeroRoot, fmt.Errorf("trie put: %w", err)
	}
	var cn [8]byte
	binary.BigEndian.PutUint64(cn[:], commitNum)
	if err := t.kv.Put(t.touchKey(hash), cn[:]); err != nil {
		return ZeroRoot, fmt.Errorf("trie put: %w", err)
	}
	return hash, nil
}

func (t *Trie) readNode(hash [32]byte) (*trieNode, error) {
	raw, ok, err := t.kv.Get(t.nodeKey(hash))
	if err != nil {
		return nil, fmt.Errorf("trie read: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("trie read: missing node %x", hash)
	}
	return decodeTrieNode(raw)
}

func (t *Trie) putAt(hash [32]byte, nibbles, value []byte, commitNum uint64) ([32]byte, error) {
	n, err := t.readNode(hash)
	if err != nil {
		return ZeroRoot, err
	}
	switch n.kind {
	case nodeLeaf:
		cp := commonPrefixLen(n.nibbles, nibbles)
		if cp == len(n.nibbles) && cp == len(nibbles) {
			// same key: replace value
			return t.putLeaf(nibbles, value, commitNum)
		}
		return t.splitLeaf(n, nibbles, value, cp, commitNum)
	case nodeExtension:
		cp := commonPrefixLen(n.nibbles, nibbles)
		if cp == len(n.nibbles) {
			newChild, err := t.putAt(n.child, nibbles[cp:], value, commitNum)
			if err != nil {
				return ZeroRoot, err
			}
			return t.writeNode(&trieNode{kind: nodeExtension, nibbles: n.nibbles, child: newChild}, commitNum)
		}
		return t.splitExtension(n, nibbles, value, cp, commitNum)
	case nodeBranch:
		branch := *n
		if len(nibbles) == 0 {
			branch.hasValue = true
			branch.value = value
			return t.writeNode(&branch, commitNum)
		}
		idx := nibbles[0]
		var newChild [32]byte
		if branch.children[idx] == ZeroRoot {
			newChild, err = t.putLeaf(nibbles[1:], value, commitNum)
		} else {
			newChild, err = t.putAt(branch.children[idx], nibbles[1:], value, commitNum)
		}
		if err != nil {
			return ZeroRoot, err
		}
		branch.children[idx] = newChild
		return t.writeNode(&branch, commitNum)
	default:
		return ZeroRoot, fmt.Errorf("trie put: unknown node kind")
	}
}

// splitLeaf handles inserting a new key that diverges from an existing leaf
// after cp shared nibbles, building whatever extension/branch structure is
// needed to hold both the old and new values.
func (t *Trie) splitLeaf(old *trieNode, nibbles, value []byte, cp int, commitNum uint64) ([32]byte, error) {
	branch := &trieNode{kind: nodeBranch}
	oldRest := old.nibbles[cp:]
	newRest := nibbles[cp:]
	if len(oldRest) == 0 {
		branch.hasValue = true
		branch.value = old.value
	} else {
		leaf, err := t.putLeaf(oldRest[1:], old.value, commitNum)
		if err != nil {
			return ZeroRoot, err
		}
		branch.children[oldRest[0]] = leaf
	}
	if len(newRest) == 0 {
		branch.hasValue = true
		branch.value = value
	} else {
		leaf, err := t.putLeaf(newRest[1:], value, commitNum)
		if err != nil {
			return ZeroRoot, err
		}
		branch.children[newRest[0]] = leaf
	}
	branchHash, err := t.writeNode(branch, commitNum)
	if err != nil {
		return ZeroRoot, err
	}
	if cp == 0 {
		return branchHash, nil
	}
	return t.writeNode(&trieNode{kind: nodeExtension, nibbles: old.nibbles[:cp], child: branchHash}, commitNum)
}

// splitExtension handles inserting a key that diverges from an existing
// extension's shared prefix after cp nibbles.
func (t *Trie) splitExtension(old *trieNode, nibbles, value []byte, cp int, commitNum uint64) ([32]byte, error) {
	branch := &trieNode{kind: nodeBranch}
	oldRest := old.nibbles[cp:]
	if len(oldRest) == 1 {
		branch.children[oldRest[0]] = old.child
	} else {
		ext, err := t.writeNode(&trieNode{kind: nodeExtension, nibbles: oldRest[1:], child: old.child}, commitNum)
		if err != nil {
			return ZeroRoot, err
		}
		branch.children[oldRest[0]] = ext
	}
	newRest := nibbles[cp:]
	if len(newRest) == 0 {
		branch.hasValue = true
		branch.value = value
	} else {
		leaf, err := t.putLeaf(newRest[1:], value, commitNum)
		if err != nil {
			return ZeroRoot, err
		}
		branch.children[newRest[0]] = leaf
	}
	branchHash, err := t.writeNode(branch, commitNum)
	if err != nil {
		return ZeroRoot, err
	}
	if cp == 0 {
		return branchHash, nil
	}
	return t.writeNode(&trieNode{kind: nodeExtension, nibbles: old.nibbles[:cp], child: branchHash}, commitNum)
}

// CheckoutAt returns a read-only view of the trie at the given root. Since
// every Trie method already takes an explicit root, checking out a view is
// just remembering the root to read against.
func (t *Trie) CheckoutAt(root [32]byte) *TrieView {
	return &TrieView{trie: t, root: root}
}

// TrieView is an immutable, lock-free snapshot view over one root.
type TrieView struct {
	trie *Trie
	root [32]byte
}

func (v *TrieView) Get(logicalKey []byte) ([]byte, bool, error) {
	return v.trie.Get(v.root, logicalKey)
}

func (v *TrieView) Root() [32]byte { return v.root }

// GarbageCollect removes nodes last touched at commitNum that are not
// reachable from any root in retain. Per §4.C/§9, the store decides which
// commit number is a GC candidate (commit n-k-1 under retention depth k);
// this method performs the actual removal once that decision is made.
func (t *Trie) GarbageCollect(commitNum uint64, retain [][32]byte) error {
	reachable := make(map[[32]byte]bool)
	for _, r := range retain {
		if r == ZeroRoot {
			continue
		}
		if err := t.markReachable(r, reachable); err != nil {
			return fmt.Errorf("trie gc: %w", err)
		}
	}
	snap := t.kv.Snapshot()
	defer snap.Release()
	prefix := append(append([]byte{}, t.prefix...), 't', 'o', 'u', 'c', 'h', ':')
	it := snap.Iterate(prefix)
	var toDelete [][32]byte
	for it.Next() {
		k := it.Key()
		v := it.Value()
		if len(v) != 8 || len(k) < len(prefix)+32 {
			continue
		}
		cn := binary.BigEndian.Uint64(v)
		if cn != commitNum {
			continue
		}
		var hash [32]byte
		copy(hash[:], k[len(prefix):])
		if !reachable[hash] {
			toDelete = append(toDelete, hash)
		}
	}
	if err := it.Error(); err != nil {
		return fmt.Errorf("trie gc: %w", err)
	}
	batch := t.kv.NewBatch()
	for _, hash := range toDelete {
		batch.Delete(t.nodeKey(hash))
		batch.Delete(t.touchKey(hash))
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("trie gc: %w", err)
	}
	return nil
}

func (t *Trie) markReachable(hash [32]byte, seen map[[32]byte]bool) error {
	if hash == ZeroRoot || seen[hash] {
		return nil
	}
	seen[hash] = true
	n, err := t.readNode(hash)
	if err != nil {
		return err
	}
	switch n.kind {
	case nodeExtension:
		return t.markReachable(n.child, seen)
	case nodeBranch:
		for _, c := range n.children {
			if err := t.markReachable(c, seen); err != nil {
				return err
			}
		}
	}
	return nil
}

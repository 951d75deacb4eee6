package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// StoreHash is the store's observable hash: the concatenation of its four
// constituent trie roots (responses, info, history, errors), each 32 bytes.
// Per §4.D/§9 the concatenation itself *is* the hash — Checkout slices it
// back into roots directly, with no further hashing to invert.
type StoreHash [4 * 32]byte

func (h StoreHash) String() string { return hex.EncodeToString(h[:]) }

func (h StoreHash) responsesRoot() (r [32]byte) { copy(r[:], h[0:32]); return }
func (h StoreHash) infoRoot() (r [32]byte)       { copy(r[:], h[32:64]); return }
func (h StoreHash) historyRoot() (r [32]byte)    { copy(r[:], h[64:96]); return }
func (h StoreHash) errorsRoot() (r [32]byte)     { copy(r[:], h[96:128]); return }

func buildStoreHash(responses, info, history, errs [32]byte) StoreHash {
	var h StoreHash
	copy(h[0:32], responses[:])
	copy(h[32:64], info[:])
	copy(h[64:96], history[:])
	copy(h[96:128], errs[:])
	return h
}

const (
	controlKey      = "control"
	infoManifestKey = "manifest"
	infoCommitKey   = "commit-counter"
)

// Store persists the committed outputs of all transactions delivered on
// this node: a responses trie, an info trie (manifest + commit counter), a
// history trie, an error cache trie, and a content-addressed jar side
// table. Its constructor/control-record lifecycle is adapted from the
// teacher's NewLedger/OpenLedger pairing in core/ledger.go: rather than
// replaying a WAL of blocks (the KV backend is itself durable), Store
// persists one small control record recording the five trie roots (jars
// included), the commit counter and the manifest, the way the teacher persists ledger.snap as a compact
// recovery point alongside its append-only log.
type Store struct {
	mu sync.RWMutex

	kv             KVStore
	checkableDepth int

	responses *Trie
	info      *Trie
	history   *Trie
	errs      *Trie
	jars      *Trie

	responsesRoot [32]byte
	infoRoot      [32]byte
	historyRoot   [32]byte
	errsRoot      [32]byte
	jarsRoot      [32]byte

	commitCounter uint64
	manifest      StorageReference
	manifestSet   bool

	retained []retainedRoots
}

type retainedRoots struct {
	commit                                          uint64
	responses, info, history, errs, jarsUnused [32]byte
}

// bytesKeyHasher treats the logical key as already being the trie key
// material (e.g. a 32-byte TR or SR encoding); hashing it again with
// SHA-256 still satisfies §4.C's "32-byte hash of the logical key" contract
// and keeps every trie in Store on one uniform hasher.
func bytesKeyHasher(b []byte) [32]byte { return Sha256KeyHasher(b) }

// NewStore opens or creates a store backed by kv. If kv already holds a
// control record (a prior OpenLedger-style recovery point) its roots and
// commit counter are restored; otherwise the store starts empty, matching
// NewLedger's "create if absent" behavior in the teacher.
func NewStore(kv KVStore, checkableDepth int) (*Store, error) {
	s := &Store{
		kv:             kv,
		checkableDepth: checkableDepth,
		responses:      NewTrie(kv, "resp:", bytesKeyHasher),
		info:           NewTrie(kv, "info:", bytesKeyHasher),
		history:        NewTrie(kv, "hist:", bytesKeyHasher),
		errs:           NewTrie(kv, "err:", bytesKeyHasher),
		jars:           NewTrie(kv, "jar:", bytesKeyHasher),
	}
	raw, ok, err := kv.Get([]byte(controlKey))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if !ok {
		logrus.Info("store: no control record found, starting empty")
		return s, nil
	}
	if err := s.loadControl(raw); err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	logrus.WithFields(logrus.Fields{"commit_counter": s.commitCounter}).Info("store: restored control record")
	return s, nil
}

func (s *Store) loadControl(raw []byte) error {
	const want = 128 + 32 + 8 + 1 + 32 + 8
	if len(raw) != want {
		return fmt.Errorf("malformed control record: %d bytes", len(raw))
	}
	copy(s.responsesRoot[:], raw[0:32])
	copy(s.infoRoot[:], raw[32:64])
	copy(s.historyRoot[:], raw[64:96])
	copy(s.errsRoot[:], raw[96:128])
	copy(s.jarsRoot[:], raw[128:160])
	s.commitCounter = binary.BigEndian.Uint64(raw[160:168])
	s.manifestSet = raw[168] == 1
	copy(s.manifest.Transaction[:], raw[169:201])
	s.manifest.Progressive = binary.BigEndian.Uint64(raw[201:209])
	return nil
}

func (s *Store) encodeControl() []byte {
	buf := make([]byte, 128+32+8+1+32+8)
	copy(buf[0:32], s.responsesRoot[:])
	copy(buf[32:64], s.infoRoot[:])
	copy(buf[64:96], s.historyRoot[:])
	copy(buf[96:128], s.errsRoot[:])
	copy(buf[128:160], s.jarsRoot[:])
	binary.BigEndian.PutUint64(buf[160:168], s.commitCounter)
	if s.manifestSet {
		buf[168] = 1
	}
	copy(buf[169:201], s.manifest.Transaction[:])
	binary.BigEndian.PutUint64(buf[201:209], s.manifest.Progressive)
	return buf
}

// Hash returns the store's current observable hash.
func (s *Store) Hash() StoreHash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return buildStoreHash(s.responsesRoot, s.infoRoot, s.historyRoot, s.errsRoot)
}

// Checkout returns a read-only snapshot rooted at h, lock-free with respect
// to the writer (it opens each trie at the root sliced out of h).
func (s *Store) Checkout(h StoreHash) *StoreSnapshot {
	return &StoreSnapshot{
		store:     s,
		responses: h.responsesRoot(),
		info:      h.infoRoot(),
		history:   h.historyRoot(),
		errs:      h.errorsRoot(),
	}
}

// Snapshot returns a lock-free reader view at the last committed roots.
func (s *Store) Snapshot() *StoreSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &StoreSnapshot{
		store:     s,
		responses: s.responsesRoot,
		info:      s.infoRoot,
		history:   s.historyRoot,
		errs:      s.errsRoot,
	}
}

// StoreSnapshot is an immutable view over one set of committed roots. It
// never blocks on the writer: every trie read opens its own view at a
// captured root.
type StoreSnapshot struct {
	store     *Store
	responses [32]byte
	info      [32]byte
	history   [32]byte
	errs      [32]byte
}

func responseTrieKey(tr TransactionReference) []byte { return tr[:] }

// jarExtractionMarker prefixes a trie-stored response whose instrumented
// jar bytes were extracted into the content-addressed jars side table and
// replaced by their hash, per §4.D's dedup optimization.
const jarExtractionMarker = 0xFE

// extractJar writes jar into the content-addressed side table, keyed by its
// own SHA-256 hash, deduplicating across transactions that install the same
// bytes. Caller holds s.mu (called only from commit()). The jars trie root
// is persisted in the control record but tracked outside the four-root
// StoreHash concatenation: jar bodies are immutable and content-addressed,
// so the side table does not participate in checkpoint/rollback the way the
// responses/info/history/errors tries do.
func (s *Store) extractJar(jar []byte, commitNum uint64) ([32]byte, error) {
	hash := sha256.Sum256(jar)
	if _, found, err := s.jars.Get(s.jarsRoot, hash[:]); err != nil {
		return hash, err
	} else if found {
		return hash, nil
	}
	newRoot, err := s.jars.Put(s.jarsRoot, hash[:], jar, commitNum)
	if err != nil {
		return hash, err
	}
	s.jarsRoot = newRoot
	return hash, nil
}

func (s *Store) resolveJar(hash [32]byte) ([]byte, error) {
	s.mu.RLock()
	root := s.jarsRoot
	s.mu.RUnlock()
	v, ok, err := s.jars.Get(root, hash[:])
	if err != nil {
		return nil, fmt.Errorf("resolve jar: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("resolve jar: unknown jar hash %x", hash)
	}
	return v, nil
}

// GetResponse on the committed snapshot.
func (v *StoreSnapshot) GetResponse(tr TransactionReference) (Response, bool, error) {
	view := v.store.responses.CheckoutAt(v.responses)
	raw, ok, err := view.Get(responseTrieKey(tr))
	if err != nil {
		return nil, false, fmt.Errorf("get response: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return v.store.decodeStoredResponse(raw)
}

func (s *Store) decodeStoredResponse(raw []byte) (Response, bool, error) {
	if len(raw) > 0 && raw[0] == jarExtractionMarker {
		var hash [32]byte
		copy(hash[:], raw[1:33])
		jar, err := s.resolveJar(hash)
		if err != nil {
			return nil, false, err
		}
		r, err := DecodeResponse(raw[33:])
		if err != nil {
			return nil, false, fmt.Errorf("decode stored response: %w", err)
		}
		switch resp := r.(type) {
		case *JarStoreInitialResponse:
			resp.InstrumentedJar = jar
		case *JarStoreSuccessfulResponse:
			resp.InstrumentedJar = jar
		}
		return r, true, nil
	}
	r, err := DecodeResponse(raw)
	if err != nil {
		return nil, false, fmt.Errorf("decode stored response: %w", err)
	}
	return r, true, nil
}

// encodeStoredResponse extracts instrumented-jar bytes (if any) into the
// content-addressed side table and returns the bytes to store in the
// responses trie in their place.
func (s *Store) encodeStoredResponse(r Response, commitNum uint64) ([]byte, error) {
	var jar []byte
	switch resp := r.(type) {
	case *JarStoreInitialResponse:
		jar = resp.InstrumentedJar
	case *JarStoreSuccessfulResponse:
		jar = resp.InstrumentedJar
	}
	if jar == nil {
		return EncodeResponse(r)
	}
	hash, err := s.extractJar(jar, commitNum)
	if err != nil {
		return nil, fmt.Errorf("extract jar: %w", err)
	}
	stripped := r
	switch resp := r.(type) {
	case *JarStoreInitialResponse:
		cp := *resp
		cp.InstrumentedJar = nil
		stripped = &cp
	case *JarStoreSuccessfulResponse:
		cp := *resp
		cp.InstrumentedJar = nil
		stripped = &cp
	}
	body, err := EncodeResponse(stripped)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 1+32+len(body))
	out = append(out, jarExtractionMarker)
	out = append(out, hash[:]...)
	out = append(out, body...)
	return out, nil
}

// GetManifest returns the node's manifest object, if the initialization
// request has been delivered.
func (v *StoreSnapshot) GetManifest() (StorageReference, bool) {
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	return v.store.manifest, v.store.manifestSet
}

// GetCommitCount returns the monotonic commit counter at this snapshot's
// committed-tip value. Per §4.D the counter lives in the info trie, but it
// is cheap enough to mirror on the Store struct directly; this accessor
// always reads the struct's current value (readers only ever see the last
// committed counter, matching the reader/writer contract in §4.D).
func (s *Store) GetCommitCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commitCounter
}

func historyTrieKey(sr StorageReference) []byte {
	b := make([]byte, 40)
	copy(b[:32], sr.Transaction[:])
	binary.BigEndian.PutUint64(b[32:], sr.Progressive)
	return b
}

func encodeTRList(trs []TransactionReference) []byte {
	buf := make([]byte, 4+32*len(trs))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(trs)))
	for i, tr := range trs {
		copy(buf[4+32*i:4+32*(i+1)], tr[:])
	}
	return buf
}

func decodeTRList(b []byte) ([]TransactionReference, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("decode history: truncated")
	}
	n := binary.BigEndian.Uint32(b[:4])
	if uint32(len(b)) != 4+32*n {
		return nil, fmt.Errorf("decode history: length mismatch")
	}
	out := make([]TransactionReference, n)
	for i := range out {
		copy(out[i][:], b[4+32*i:4+32*(i+1)])
	}
	return out, nil
}

// GetHistory returns the full ordered history of o, with o.Transaction
// appended as the final, unstored entry (§4.D).
func (v *StoreSnapshot) GetHistory(o StorageReference) ([]TransactionReference, error) {
	view := v.store.history.CheckoutAt(v.history)
	raw, ok, err := view.Get(historyTrieKey(o))
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	var stored []TransactionReference
	if ok {
		stored, err = decodeTRList(raw)
		if err != nil {
			return nil, fmt.Errorf("get history: %w", err)
		}
	}
	return append(append([]TransactionReference{}, stored...), o.Transaction), nil
}

// GetError returns the cached rejection/failure message for tr, if any.
func (v *StoreSnapshot) GetError(tr TransactionReference) (string, bool, error) {
	view := v.store.errs.CheckoutAt(v.errs)
	raw, ok, err := view.Get(tr[:])
	if err != nil {
		return "", false, fmt.Errorf("get error: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return string(raw), true, nil
}

// HasResponseOrError reports whether tr already has an outcome recorded in
// the committed store (used by the delivery protocol's repeated-TR check).
func (v *StoreSnapshot) HasResponseOrError(tr TransactionReference) (bool, error) {
	if _, ok, err := v.GetResponse(tr); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}
	if _, ok, err := v.GetError(tr); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}
	return false, nil
}

// BeginTransaction opens a staging area over the store's current committed
// roots. now is the timestamp exposed to user code during delivery.
func (s *Store) BeginTransaction(now int64) *StoreTransaction {
	s.mu.RLock()
	snap := &StoreSnapshot{
		store:     s,
		responses: s.responsesRoot,
		info:      s.infoRoot,
		history:   s.historyRoot,
		errs:      s.errsRoot,
	}
	s.mu.RUnlock()
	return newStoreTransaction(s, snap, now)
}

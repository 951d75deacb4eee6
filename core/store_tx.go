package core

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// StoreTransaction is the staging area opened by Store.BeginTransaction: it
// overlays uncommitted request/response/history/error/manifest writes on
// top of a captured parent snapshot, the way the teacher's applyBlock
// stages UTXO/state/contract/token writes in ordinary maps before folding
// them into the ledger (core/ledger.go). commit()/abort() mirror that
// function's all-or-nothing folding step.
type StoreTransaction struct {
	store  *Store
	parent *StoreSnapshot
	now    int64

	requests  map[TransactionReference]Request
	responses map[TransactionReference]Response
	histories map[StorageReference][]TransactionReference
	errs      map[TransactionReference]string

	manifest    StorageReference
	manifestSet bool

	done bool
}

func newStoreTransaction(s *Store, parent *StoreSnapshot, now int64) *StoreTransaction {
	return &StoreTransaction{
		store:     s,
		parent:    parent,
		now:       now,
		requests:  make(map[TransactionReference]Request),
		responses: make(map[TransactionReference]Response),
		histories: make(map[StorageReference][]TransactionReference),
		errs:      make(map[TransactionReference]string),
	}
}

// Now returns the timestamp exposed to user code for this delivery.
func (tx *StoreTransaction) Now() int64 { return tx.now }

// GetResponse resolves tr, checking staged writes first so a query for a TR
// written earlier within the same transaction returns the staged value
// without touching the store's tries.
func (tx *StoreTransaction) GetResponse(tr TransactionReference) (Response, bool, error) {
	if r, ok := tx.responses[tr]; ok {
		return r, true, nil
	}
	return tx.parent.GetResponse(tr)
}

// GetRequest resolves a staged request by TR (committed requests are not
// separately retained once their response is stored — only the staging
// overlay tracks them, to support the repeated-TR check in step 2 of the
// delivery protocol).
func (tx *StoreTransaction) GetRequest(tr TransactionReference) (Request, bool) {
	r, ok := tx.requests[tr]
	return r, ok
}

func (tx *StoreTransaction) GetHistory(o StorageReference) ([]TransactionReference, error) {
	if h, ok := tx.histories[o]; ok {
		return append(append([]TransactionReference{}, h...), o.Transaction), nil
	}
	return tx.parent.GetHistory(o)
}

func (tx *StoreTransaction) GetError(tr TransactionReference) (string, bool, error) {
	if msg, ok := tx.errs[tr]; ok {
		return msg, true, nil
	}
	return tx.parent.GetError(tr)
}

func (tx *StoreTransaction) GetManifest() (StorageReference, bool) {
	if tx.manifestSet {
		return tx.manifest, true
	}
	return tx.parent.GetManifest()
}

// HasResponseOrError implements the delivery protocol's repeated-TR check
// (step 2), consulting both the staged overlay and the committed store.
func (tx *StoreTransaction) HasResponseOrError(tr TransactionReference) (bool, error) {
	if _, ok := tx.requests[tr]; ok {
		return true, nil
	}
	if _, ok := tx.responses[tr]; ok {
		return true, nil
	}
	if _, ok := tx.errs[tr]; ok {
		return true, nil
	}
	return tx.parent.HasResponseOrError(tr)
}

// SetRequest stages tr's request, marking it claimed for the repeated-TR
// check even before a response is produced.
func (tx *StoreTransaction) SetRequest(tr TransactionReference, r Request) {
	tx.requests[tr] = r
}

// SetResponse stages the response for tr.
func (tx *StoreTransaction) SetResponse(tr TransactionReference, r Response) {
	tx.responses[tr] = r
}

// SetError stages a cached rejection/failure message for tr.
func (tx *StoreTransaction) SetError(tr TransactionReference, message string) {
	tx.errs[tr] = message
}

// SetHistory stages the (not-including-creating-TR) history sequence for
// object o.
func (tx *StoreTransaction) SetHistory(o StorageReference, sequence []TransactionReference) {
	tx.histories[o] = sequence
}

// SetManifest stages the manifest SR. Per §3's lifecycle rule this should
// only ever be called once per node lifetime, by the initialization
// request's response builder; StoreTransaction itself does not enforce
// that — the caller (the initialization response builder) does, since it
// alone knows whether a manifest already exists.
func (tx *StoreTransaction) SetManifest(o StorageReference) {
	tx.manifest = o
	tx.manifestSet = true
}

// commitTargetCommitNumber is the commit number this transaction's writes,
// if committed, will be recorded under.
func (tx *StoreTransaction) commitTargetCommitNumber() uint64 {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	return tx.store.commitCounter + 1
}

// Commit atomically folds every staged write into a fresh store snapshot
// and returns the new observable hash. Per §8's idempotence note, an empty
// transaction (no staged writes at all) still increments the commit
// counter; implementations may special-case that to skip a no-op commit,
// but this one always advances the counter so GC retention windows stay in
// lockstep with the polling/rejection cache's notion of "how many commits
// have happened."
func (tx *StoreTransaction) Commit() (StoreHash, error) {
	if tx.done {
		return StoreHash{}, fmt.Errorf("store transaction: commit called twice")
	}
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	commitNum := s.commitCounter + 1

	responsesRoot := s.responsesRoot
	for tr, resp := range tx.responses {
		body, err := s.encodeStoredResponse(resp, commitNum)
		if err != nil {
			return StoreHash{}, fmt.Errorf("store commit: %w", err)
		}
		responsesRoot, err = s.responses.Put(responsesRoot, responseTrieKey(tr), body, commitNum)
		if err != nil {
			return StoreHash{}, fmt.Errorf("store commit: %w", err)
		}
	}

	errsRoot := s.errsRoot
	for tr, msg := range tx.errs {
		var err error
		errsRoot, err = s.errs.Put(errsRoot, tr[:], []byte(msg), commitNum)
		if err != nil {
			return StoreHash{}, fmt.Errorf("store commit: %w", err)
		}
	}

	historyRoot := s.historyRoot
	for obj, seq := range tx.histories {
		var err error
		historyRoot, err = s.history.Put(historyRoot, historyTrieKey(obj), encodeTRList(seq), commitNum)
		if err != nil {
			return StoreHash{}, fmt.Errorf("store commit: %w", err)
		}
	}

	infoRoot := s.infoRoot
	if tx.manifestSet {
		var err error
		infoRoot, err = s.info.Put(infoRoot, []byte(infoManifestKey), historyTrieKey(tx.manifest), commitNum)
		if err != nil {
			return StoreHash{}, fmt.Errorf("store commit: %w", err)
		}
	}
	var cnBuf [8]byte
	putUint64(cnBuf[:], commitNum)
	var err error
	infoRoot, err = s.info.Put(infoRoot, []byte(infoCommitKey), cnBuf[:], commitNum)
	if err != nil {
		return StoreHash{}, fmt.Errorf("store commit: %w", err)
	}

	s.responsesRoot = responsesRoot
	s.errsRoot = errsRoot
	s.historyRoot = historyRoot
	s.infoRoot = infoRoot
	s.commitCounter = commitNum
	if tx.manifestSet {
		s.manifest = tx.manifest
		s.manifestSet = true
	}

	s.retained = append(s.retained, retainedRoots{
		commit:    commitNum,
		responses: responsesRoot,
		info:      infoRoot,
		history:   historyRoot,
		errs:      errsRoot,
	})

	if err := s.kv.Put([]byte(controlKey), s.encodeControl()); err != nil {
		return StoreHash{}, fmt.Errorf("store commit: persist control: %w", err)
	}

	tx.done = true

	if err := s.collectGarbageLocked(commitNum); err != nil {
		logrus.WithError(err).Warn("store: garbage collection failed after commit")
	}

	return buildStoreHash(responsesRoot, infoRoot, historyRoot, errsRoot), nil
}

func putUint64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

// collectGarbageLocked applies the checkable_depth retention policy from
// §4.C/§9: -1 disables GC, 0 collects immediately behind the tip, k>0
// retains the last k committed root-sets. Caller holds s.mu.
func (s *Store) collectGarbageLocked(commitNum uint64) error {
	if s.checkableDepth < 0 {
		return nil
	}
	k := uint64(s.checkableDepth)
	if commitNum <= k+1 {
		return nil
	}
	target := commitNum - k - 1

	// Each trie is given only its own retained roots: its nodes live under
	// its own key prefix, so another trie's root cannot be resolved in it.
	var keepResponses, keepInfo, keepHistory, keepErrs [][32]byte
	kept := s.retained[:0]
	for _, rr := range s.retained {
		if rr.commit > commitNum-k {
			kept = append(kept, rr)
		}
		keepResponses = append(keepResponses, rr.responses)
		keepInfo = append(keepInfo, rr.info)
		keepHistory = append(keepHistory, rr.history)
		keepErrs = append(keepErrs, rr.errs)
	}
	s.retained = kept

	if err := s.responses.GarbageCollect(target, keepResponses); err != nil {
		return fmt.Errorf("gc responses: %w", err)
	}
	if err := s.info.GarbageCollect(target, keepInfo); err != nil {
		return fmt.Errorf("gc info: %w", err)
	}
	if err := s.history.GarbageCollect(target, keepHistory); err != nil {
		return fmt.Errorf("gc history: %w", err)
	}
	if err := s.errs.GarbageCollect(target, keepErrs); err != nil {
		return fmt.Errorf("gc errors: %w", err)
	}
	return nil
}

// Abort discards every staged write; the parent snapshot is untouched.
func (tx *StoreTransaction) Abort() {
	tx.done = true
	tx.requests = nil
	tx.responses = nil
	tx.histories = nil
	tx.errs = nil
}

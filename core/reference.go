package core

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// TransactionReference is the 32-byte content hash of a request's canonical
// encoding (signature field erased for signed variants). It carries no
// progressive index: see StorageReference for the (TR, progressive) pair
// that names a storage object.
type TransactionReference [32]byte

// ZeroTransactionReference is never a legal TR (SHA-256 never produces it in
// practice) but is useful as an explicit "absent" sentinel in collaborator
// APIs such as the gamete-creation request's classpath-less bootstrap path.
var ZeroTransactionReference = TransactionReference{}

// Compare orders TRs lexicographically by their byte string, as required by
// the total order over storage references and histories.
func (t TransactionReference) Compare(o TransactionReference) int {
	return bytes.Compare(t[:], o[:])
}

func (t TransactionReference) String() string {
	return hex.EncodeToString(t[:])
}

// ParseTransactionReference decodes a hex string produced by String.
func ParseTransactionReference(s string) (TransactionReference, error) {
	var tr TransactionReference
	b, err := hex.DecodeString(s)
	if err != nil {
		return tr, fmt.Errorf("parse transaction reference: %w", err)
	}
	if len(b) != len(tr) {
		return tr, fmt.Errorf("parse transaction reference: expected %d bytes, got %d", len(tr), len(b))
	}
	copy(tr[:], b)
	return tr, nil
}

// StorageReference is the pair (TR, progressive) naming a storage object.
// progressive == 0 is the canonical first object created by a transaction.
// SRs are totally ordered lexicographically by (Transaction, Progressive).
type StorageReference struct {
	Transaction TransactionReference
	Progressive uint64
}

func (r StorageReference) Compare(o StorageReference) int {
	if c := r.Transaction.Compare(o.Transaction); c != 0 {
		return c
	}
	switch {
	case r.Progressive < o.Progressive:
		return -1
	case r.Progressive > o.Progressive:
		return 1
	default:
		return 0
	}
}

func (r StorageReference) String() string {
	return fmt.Sprintf("%s#%d", r.Transaction.String(), r.Progressive)
}

// IsZero reports whether r is the unset StorageReference, used by callers
// that model "no object" (e.g. a void return's Result) as the zero value.
func (r StorageReference) IsZero() bool {
	return r.Transaction == ZeroTransactionReference && r.Progressive == 0
}

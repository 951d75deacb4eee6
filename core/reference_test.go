package core

import "testing"

func TestTransactionReferenceRoundTrip(t *testing.T) {
	var tr TransactionReference
	for i := range tr {
		tr[i] = byte(i)
	}
	s := tr.String()
	got, err := ParseTransactionReference(s)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != tr {
		t.Fatalf("round trip mismatch: got %s want %s", got, tr)
	}
}

func TestParseTransactionReferenceRejectsWrongLength(t *testing.T) {
	if _, err := ParseTransactionReference("abcd"); err == nil {
		t.Fatal("expected error for short hex string")
	}
	if _, err := ParseTransactionReference("not-hex"); err == nil {
		t.Fatal("expected error for non-hex string")
	}
}

func TestTransactionReferenceCompareOrdersLexicographically(t *testing.T) {
	var a, b TransactionReference
	a[31] = 1
	b[31] = 2
	if a.Compare(b) >= 0 {
		t.Fatal("expected a < b")
	}
	if b.Compare(a) <= 0 {
		t.Fatal("expected b > a")
	}
	if a.Compare(a) != 0 {
		t.Fatal("expected a == a")
	}
}

func TestStorageReferenceCompareByTransactionThenProgressive(t *testing.T) {
	var tr1, tr2 TransactionReference
	tr2[0] = 1

	low := StorageReference{Transaction: tr1, Progressive: 5}
	high := StorageReference{Transaction: tr1, Progressive: 6}
	if low.Compare(high) >= 0 {
		t.Fatal("expected lower progressive to sort first within the same TR")
	}

	otherTR := StorageReference{Transaction: tr2, Progressive: 0}
	if low.Compare(otherTR) >= 0 {
		t.Fatal("expected TR ordering to dominate progressive")
	}
}

func TestStorageReferenceIsZero(t *testing.T) {
	if !(StorageReference{}).IsZero() {
		t.Fatal("expected zero-value StorageReference to report IsZero")
	}
	nonZero := StorageReference{Transaction: TransactionReference{1}, Progressive: 0}
	if nonZero.IsZero() {
		t.Fatal("expected a non-zero transaction reference to not report IsZero")
	}
}

func TestStorageReferenceString(t *testing.T) {
	sr := StorageReference{Transaction: TransactionReference{0xab}, Progressive: 3}
	want := sr.Transaction.String() + "#3"
	if got := sr.String(); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

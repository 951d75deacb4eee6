package core

import (
	"bytes"
	"math/big"
	"testing"
)

func TestEncodeIntValueIsBitExact(t *testing.T) {
	e := NewEncoder()
	if err := e.writeStorageValue(IntValue(14)); err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []byte{selInt, 0x00, 0x00, 0x00, 0x0E}
	if !bytes.Equal(e.Bytes(), want) {
		t.Fatalf("got %x want %x", e.Bytes(), want)
	}
}

func TestEncodeDecodeStorageValueRoundTrip(t *testing.T) {
	values := []StorageValue{
		NullValue(),
		BoolValue(true),
		BoolValue(false),
		ByteValue(200),
		CharValue('x'),
		ShortValue(-7),
		IntValue(-14),
		LongValue(1 << 40),
		FloatValue(3.5),
		DoubleValue(-2.25),
		StringValue(""),
		StringValue("hello"),
		EnumValue("io.takamaka.code.lang.Takamaka", "YES"),
		ReferenceValue(StorageReference{Transaction: TransactionReference{1, 2, 3}, Progressive: 9}),
	}
	for _, v := range values {
		e := NewEncoder()
		if err := e.writeStorageValue(v); err != nil {
			t.Fatalf("encode %+v: %v", v, err)
		}
		d := NewDecoder(e.Bytes())
		got, err := d.readStorageValue()
		if err != nil {
			t.Fatalf("decode %+v: %v", v, err)
		}
		if got != v {
			t.Fatalf("round trip mismatch: got %+v want %+v", got, v)
		}
		if d.Len() != 0 {
			t.Fatalf("decoder left %d unread bytes for %+v", d.Len(), v)
		}
	}
}

func TestEncodeBigIntegerRoundTrip(t *testing.T) {
	for _, s := range []string{"0", "1", "-1", "255", "-255", "123456789012345678901234567890", "-123456789012345678901234567890"} {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			t.Fatalf("bad test fixture %q", s)
		}
		e := NewEncoder()
		if err := e.writeStorageValue(BigIntegerValue(v)); err != nil {
			t.Fatalf("encode %s: %v", s, err)
		}
		d := NewDecoder(e.Bytes())
		got, err := d.readStorageValue()
		if err != nil {
			t.Fatalf("decode %s: %v", s, err)
		}
		if got.BigInt.Cmp(v) != 0 {
			t.Fatalf("big integer round trip mismatch for %s: got %s", s, got.BigInt)
		}
	}
}

func TestSharedStringTableEmitsBackReferences(t *testing.T) {
	e := NewEncoder()
	e.writeSharedString("io.takamaka.code.lang.Contract")
	firstLen := e.buf.Len()
	e.writeSharedString("io.takamaka.code.lang.Contract")
	secondLen := e.buf.Len() - firstLen

	// A back-reference (a single control byte) must be far shorter than the
	// first-occurrence body (control byte + 4-byte length + payload).
	if secondLen >= firstLen {
		t.Fatalf("expected back-reference encoding shorter than first occurrence: first=%d second=%d", firstLen, secondLen)
	}

	d := NewDecoder(e.Bytes())
	a, err := d.readSharedString()
	if err != nil {
		t.Fatalf("read first: %v", err)
	}
	b, err := d.readSharedString()
	if err != nil {
		t.Fatalf("read second: %v", err)
	}
	if a != b || a != "io.takamaka.code.lang.Contract" {
		t.Fatalf("got %q, %q", a, b)
	}
}

func TestStorageTypeRoundTrip(t *testing.T) {
	types := []StorageType{
		BasicStorageType(BasicInt),
		BasicStorageType(BasicBoolean),
		ClassStorageType("io.takamaka.code.lang.ExternallyOwnedAccount"),
	}
	for _, ty := range types {
		e := NewEncoder()
		e.writeStorageType(ty)
		d := NewDecoder(e.Bytes())
		got, err := d.readStorageType()
		if err != nil {
			t.Fatalf("decode %+v: %v", ty, err)
		}
		if got != ty {
			t.Fatalf("got %+v want %+v", got, ty)
		}
	}
}

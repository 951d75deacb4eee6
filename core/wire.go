package core

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/big"
)

// Encoder implements the wire codec's selector-first, back-reference-shared
// binary encoding described in §4.A. One Encoder is used per top-level
// marshalling scope (a single request, response, or bean); its shared
// tables are never reused across scopes, which is what makes the canonical
// encoding deterministic.
type Encoder struct {
	buf bytes.Buffer

	trIndex map[TransactionReference]int
	srIndex map[StorageReference]int
	fsIndex map[FieldSignature]int
	strIndex map[string]int
}

func NewEncoder() *Encoder {
	return &Encoder{
		trIndex:  make(map[TransactionReference]int),
		srIndex:  make(map[StorageReference]int),
		fsIndex:  make(map[FieldSignature]int),
		strIndex: make(map[string]int),
	}
}

func (e *Encoder) Bytes() []byte { return e.buf.Bytes() }

func (e *Encoder) writeByte(b byte) { e.buf.WriteByte(b) }

func (e *Encoder) writeBytes(b []byte) { e.buf.Write(b) }

func (e *Encoder) writeUint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	e.buf.Write(b[:])
}

func (e *Encoder) writeUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

func (e *Encoder) writeUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

func (e *Encoder) writeInt32(v int32) { e.writeUint32(uint32(v)) }
func (e *Encoder) writeInt64(v int64) { e.writeUint64(uint64(v)) }
func (e *Encoder) writeFloat32(v float32) { e.writeUint32(math.Float32bits(v)) }
func (e *Encoder) writeFloat64(v float64) { e.writeUint64(math.Float64bits(v)) }

// writeRawString writes a length-prefixed UTF-8 string with no interning.
// This serves both writeUTF (standalone strings) and writeStringUnshared
// (strings nested inside the first-occurrence body of a shared structure);
// the two are given distinct call sites below even though the framing is
// identical, per §4.A's primitive-framing note.
func (e *Encoder) writeRawString(s string) {
	e.writeUint32(uint32(len(s)))
	e.buf.WriteString(s)
}

func (e *Encoder) writeUTF(s string)            { e.writeRawString(s) }
func (e *Encoder) writeStringUnshared(s string) { e.writeRawString(s) }

// writeBigInt writes a length-prefixed two's-complement big integer.
func (e *Encoder) writeBigInt(v *big.Int) {
	b := twosComplementBytes(v)
	e.writeUint32(uint32(len(b)))
	e.buf.Write(b)
}

func twosComplementBytes(v *big.Int) []byte {
	if v.Sign() == 0 {
		return []byte{0}
	}
	if v.Sign() > 0 {
		b := v.Bytes()
		if b[0]&0x80 != 0 {
			return append([]byte{0}, b...)
		}
		return b
	}
	bitLen := v.BitLen()
	nBytes := bitLen/8 + 1
	mod := new(big.Int).Lsh(big.NewInt(1), uint(nBytes*8))
	tc := new(big.Int).Add(mod, v)
	b := tc.Bytes()
	for len(b) < nBytes {
		b = append([]byte{0}, b...)
	}
	return b
}

func fromTwosComplementBytes(b []byte) *big.Int {
	if len(b) == 0 {
		return big.NewInt(0)
	}
	v := new(big.Int).SetBytes(b)
	if b[0]&0x80 != 0 {
		mod := new(big.Int).Lsh(big.NewInt(1), uint(len(b)*8))
		v.Sub(v, mod)
	}
	return v
}

// writeShared is the generic back-reference interning primitive shared by
// TR/SR/FieldSignature/string tables: it looks the key up in index, emits
// either a direct byte, a 254+32-bit index, or a 255+first-occurrence body,
// and registers a fresh entry on first occurrence.
func writeShared[K comparable](e *Encoder, index map[K]int, key K, writeBody func()) {
	if i, ok := index[key]; ok {
		if i < 254 {
			e.writeByte(byte(i))
		} else {
			e.writeByte(selSharedIndex32)
			e.writeUint32(uint32(i))
		}
		return
	}
	e.writeByte(selSharedFirst)
	writeBody()
	index[key] = len(index)
}

func (e *Encoder) writeTR(tr TransactionReference) {
	writeShared(e, e.trIndex, tr, func() { e.writeBytes(tr[:]) })
}

func (e *Encoder) writeSR(sr StorageReference) {
	writeShared(e, e.srIndex, sr, func() {
		e.writeTR(sr.Transaction)
		e.writeUint64(sr.Progressive)
	})
}

func (e *Encoder) writeFieldSignature(fs FieldSignature) {
	writeShared(e, e.fsIndex, fs, func() {
		e.writeStorageType(fs.DefiningClass)
		e.writeStringUnshared(fs.Name)
		e.writeStorageType(fs.Type)
	})
}

func (e *Encoder) writeSharedString(s string) {
	writeShared(e, e.strIndex, s, func() { e.writeRawString(s) })
}

// Decoder mirrors Encoder: its shared tables grow in the same insertion
// order as the producer's, so table index i always resolves to the same
// value on both sides for a given byte stream.
type Decoder struct {
	buf *bytes.Reader

	trTable  []TransactionReference
	srTable  []StorageReference
	fsTable  []FieldSignature
	strTable []string
}

func NewDecoder(b []byte) *Decoder {
	return &Decoder{buf: bytes.NewReader(b)}
}

func (d *Decoder) Len() int { return d.buf.Len() }

func (d *Decoder) readByte() (byte, error) {
	b, err := d.buf.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("decode: unexpected end of stream: %w", err)
	}
	return b, nil
}

func (d *Decoder) readBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("decode: negative length %d", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(d.buf, b); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return b, nil
}

func (d *Decoder) readUint16() (uint16, error) {
	b, err := d.readBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (d *Decoder) readUint32() (uint32, error) {
	b, err := d.readBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (d *Decoder) readUint64() (uint64, error) {
	b, err := d.readBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (d *Decoder) readInt32() (int32, error) {
	v, err := d.readUint32()
	return int32(v), err
}

func (d *Decoder) readInt64() (int64, error) {
	v, err := d.readUint64()
	return int64(v), err
}

func (d *Decoder) readFloat32() (float32, error) {
	v, err := d.readUint32()
	return math.Float32frombits(v), err
}

func (d *Decoder) readFloat64() (float64, error) {
	v, err := d.readUint64()
	return math.Float64frombits(v), err
}

func (d *Decoder) readRawString() (string, error) {
	n, err := d.readUint32()
	if err != nil {
		return "", err
	}
	b, err := d.readBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *Decoder) readUTF() (string, error)            { return d.readRawString() }
func (d *Decoder) readStringUnshared() (string, error) { return d.readRawString() }

func (d *Decoder) readBigInt() (*big.Int, error) {
	n, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	b, err := d.readBytes(int(n))
	if err != nil {
		return nil, err
	}
	return fromTwosComplementBytes(b), nil
}

// readSharedIndex resolves a control byte into a table index: a direct
// byte 0..253, or selSharedIndex32 followed by a 32-bit index. It does not
// handle selSharedFirst (the caller does, since only the caller knows how
// to decode that variant's first-occurrence body).
func (d *Decoder) readSharedIndex(sel byte) (int, error) {
	if sel == selSharedIndex32 {
		i, err := d.readUint32()
		if err != nil {
			return 0, err
		}
		return int(i), nil
	}
	return int(sel), nil
}

func (d *Decoder) readTR() (TransactionReference, error) {
	sel, err := d.readByte()
	if err != nil {
		return TransactionReference{}, err
	}
	if sel == selSharedFirst {
		b, err := d.readBytes(32)
		if err != nil {
			return TransactionReference{}, err
		}
		var tr TransactionReference
		copy(tr[:], b)
		d.trTable = append(d.trTable, tr)
		return tr, nil
	}
	idx, err := d.readSharedIndex(sel)
	if err != nil {
		return TransactionReference{}, err
	}
	if idx < 0 || idx >= len(d.trTable) {
		return TransactionReference{}, fmt.Errorf("decode: transaction reference back-reference %d out of range", idx)
	}
	return d.trTable[idx], nil
}

func (d *Decoder) readSR() (StorageReference, error) {
	sel, err := d.readByte()
	if err != nil {
		return StorageReference{}, err
	}
	if sel == selSharedFirst {
		tr, err := d.readTR()
		if err != nil {
			return StorageReference{}, err
		}
		p, err := d.readUint64()
		if err != nil {
			return StorageReference{}, err
		}
		sr := StorageReference{Transaction: tr, Progressive: p}
		d.srTable = append(d.srTable, sr)
		return sr, nil
	}
	idx, err := d.readSharedIndex(sel)
	if err != nil {
		return StorageReference{}, err
	}
	if idx < 0 || idx >= len(d.srTable) {
		return StorageReference{}, fmt.Errorf("decode: storage reference back-reference %d out of range", idx)
	}
	return d.srTable[idx], nil
}

func (d *Decoder) readFieldSignature() (FieldSignature, error) {
	sel, err := d.readByte()
	if err != nil {
		return FieldSignature{}, err
	}
	if sel == selSharedFirst {
		dc, err := d.readStorageType()
		if err != nil {
			return FieldSignature{}, err
		}
		name, err := d.readStringUnshared()
		if err != nil {
			return FieldSignature{}, err
		}
		ty, err := d.readStorageType()
		if err != nil {
			return FieldSignature{}, err
		}
		fs := FieldSignature{DefiningClass: dc, Name: name, Type: ty}
		d.fsTable = append(d.fsTable, fs)
		return fs, nil
	}
	idx, err := d.readSharedIndex(sel)
	if err != nil {
		return FieldSignature{}, err
	}
	if idx < 0 || idx >= len(d.fsTable) {
		return FieldSignature{}, fmt.Errorf("decode: field signature back-reference %d out of range", idx)
	}
	return d.fsTable[idx], nil
}

func (d *Decoder) readSharedString() (string, error) {
	sel, err := d.readByte()
	if err != nil {
		return "", err
	}
	if sel == selSharedFirst {
		s, err := d.readRawString()
		if err != nil {
			return "", err
		}
		d.strTable = append(d.strTable, s)
		return s, nil
	}
	idx, err := d.readSharedIndex(sel)
	if err != nil {
		return "", err
	}
	if idx < 0 || idx >= len(d.strTable) {
		return "", fmt.Errorf("decode: string back-reference %d out of range", idx)
	}
	return d.strTable[idx], nil
}

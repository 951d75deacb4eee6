package core

import (
	"fmt"
	"math/big"
)

// StorageValueKind tags the variant carried by a StorageValue. Numeric values
// here are internal dispatch tags only; the bit-exact wire selectors live in
// selectors.go and are assigned by the codec, not by this type.
type StorageValueKind byte

const (
	SVNull StorageValueKind = iota
	SVBoolean
	SVByte
	SVChar
	SVShort
	SVInt
	SVLong
	SVFloat
	SVDouble
	SVBigInteger
	SVString
	SVEnum
	SVStorageReference
)

// StorageValue is an immutable tagged variant: null, a primitive, a
// big-integer, a string, an enum (class+literal name) or a storage
// reference. Exactly one set of fields is meaningful, selected by Kind.
type StorageValue struct {
	Kind StorageValueKind

	Bool   bool
	Byte   byte
	Char   rune
	Short  int16
	Int    int32
	Long   int64
	Float  float32
	Double float64

	BigInt *big.Int

	Str string

	EnumClass   string
	EnumLiteral string

	Ref StorageReference
}

func NullValue() StorageValue                { return StorageValue{Kind: SVNull} }
func BoolValue(v bool) StorageValue          { return StorageValue{Kind: SVBoolean, Bool: v} }
func ByteValue(v byte) StorageValue          { return StorageValue{Kind: SVByte, Byte: v} }
func CharValue(v rune) StorageValue          { return StorageValue{Kind: SVChar, Char: v} }
func ShortValue(v int16) StorageValue        { return StorageValue{Kind: SVShort, Short: v} }
func IntValue(v int32) StorageValue          { return StorageValue{Kind: SVInt, Int: v} }
func LongValue(v int64) StorageValue         { return StorageValue{Kind: SVLong, Long: v} }
func FloatValue(v float32) StorageValue      { return StorageValue{Kind: SVFloat, Float: v} }
func DoubleValue(v float64) StorageValue     { return StorageValue{Kind: SVDouble, Double: v} }
func BigIntegerValue(v *big.Int) StorageValue {
	return StorageValue{Kind: SVBigInteger, BigInt: v}
}

// StringValue normalizes nil/absent semantics at ingestion: callers must
// never construct a StorageValue with Kind == SVString and an "absent"
// meaning. Use NullValue for that; the empty string has its own selector
// (13) but is otherwise an ordinary string value.
func StringValue(v string) StorageValue { return StorageValue{Kind: SVString, Str: v} }

func EnumValue(className, literal string) StorageValue {
	return StorageValue{Kind: SVEnum, EnumClass: className, EnumLiteral: literal}
}

func ReferenceValue(r StorageReference) StorageValue {
	return StorageValue{Kind: SVStorageReference, Ref: r}
}

// classOrder gives the total order over value *kinds* used as the final
// tie-break when comparing updates touching the same (object, field): spec
// requires ordering "then by value class" once object and field signature
// compare equal (which cannot happen for two distinct updates by the
// no-duplicate-field invariant, but the comparator must still be total).
func (k StorageValueKind) classOrder() int { return int(k) }

// Equal reports structural equality, matching the bean immutability/
// structural-equality rule in §4.B.
func (v StorageValue) Equal(o StorageValue) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case SVNull:
		return true
	case SVBoolean:
		return v.Bool == o.Bool
	case SVByte:
		return v.Byte == o.Byte
	case SVChar:
		return v.Char == o.Char
	case SVShort:
		return v.Short == o.Short
	case SVInt:
		return v.Int == o.Int
	case SVLong:
		return v.Long == o.Long
	case SVFloat:
		return v.Float == o.Float
	case SVDouble:
		return v.Double == o.Double
	case SVBigInteger:
		if v.BigInt == nil || o.BigInt == nil {
			return v.BigInt == o.BigInt
		}
		return v.BigInt.Cmp(o.BigInt) == 0
	case SVString:
		return v.Str == o.Str
	case SVEnum:
		return v.EnumClass == o.EnumClass && v.EnumLiteral == o.EnumLiteral
	case SVStorageReference:
		return v.Ref == o.Ref
	default:
		return false
	}
}

func (v StorageValue) String() string {
	switch v.Kind {
	case SVNull:
		return "null"
	case SVBoolean:
		return fmt.Sprintf("%t", v.Bool)
	case SVByte:
		return fmt.Sprintf("%d", v.Byte)
	case SVChar:
		return fmt.Sprintf("%c", v.Char)
	case SVShort:
		return fmt.Sprintf("%d", v.Short)
	case SVInt:
		return fmt.Sprintf("%d", v.Int)
	case SVLong:
		return fmt.Sprintf("%d", v.Long)
	case SVFloat:
		return fmt.Sprintf("%g", v.Float)
	case SVDouble:
		return fmt.Sprintf("%g", v.Double)
	case SVBigInteger:
		return v.BigInt.String()
	case SVString:
		return v.Str
	case SVEnum:
		return v.EnumClass + "." + v.EnumLiteral
	case SVStorageReference:
		return v.Ref.String()
	default:
		return "?"
	}
}

package core

import "fmt"

// writeStorageType writes a StorageType. Class names flow through the
// shared string table (they recur heavily across field signatures and
// formal-parameter lists within one scope); basic types are a single byte.
func (e *Encoder) writeStorageType(t StorageType) {
	if t.IsClass {
		e.writeByte(1)
		e.writeSharedString(t.ClassName)
		return
	}
	e.writeByte(0)
	e.writeByte(byte(t.Basic))
}

func (d *Decoder) readStorageType() (StorageType, error) {
	tag, err := d.readByte()
	if err != nil {
		return StorageType{}, err
	}
	if tag == 1 {
		name, err := d.readSharedString()
		if err != nil {
			return StorageType{}, err
		}
		return ClassStorageType(name), nil
	}
	b, err := d.readByte()
	if err != nil {
		return StorageType{}, err
	}
	if b > byte(BasicObject) {
		return StorageType{}, fmt.Errorf("decode: unknown basic type %d", b)
	}
	return BasicStorageType(BasicType(b)), nil
}

// writeStorageValue writes a StorageValue using the bit-exact selectors
// from §6.
func (e *Encoder) writeStorageValue(v StorageValue) error {
	switch v.Kind {
	case SVNull:
		e.writeByte(selNull)
	case SVBoolean:
		if v.Bool {
			e.writeByte(selBooleanTrue)
		} else {
			e.writeByte(selBooleanFalse)
		}
	case SVByte:
		e.writeByte(selByte)
		e.writeByte(v.Byte)
	case SVChar:
		e.writeByte(selChar)
		e.writeUint16(uint16(v.Char))
	case SVShort:
		e.writeByte(selShort)
		e.writeUint16(uint16(v.Short))
	case SVInt:
		e.writeByte(selInt)
		e.writeInt32(v.Int)
	case SVLong:
		e.writeByte(selLong)
		e.writeInt64(v.Long)
	case SVFloat:
		e.writeByte(selFloat)
		e.writeFloat32(v.Float)
	case SVDouble:
		e.writeByte(selDouble)
		e.writeFloat64(v.Double)
	case SVBigInteger:
		e.writeByte(selBigInteger)
		if v.BigInt == nil {
			return fmt.Errorf("encode: nil big-integer in non-null storage value")
		}
		e.writeBigInt(v.BigInt)
	case SVString:
		if v.Str == "" {
			e.writeByte(selEmptyString)
			return nil
		}
		e.writeByte(selString)
		e.writeSharedString(v.Str)
	case SVEnum:
		e.writeByte(selEnum)
		e.writeSharedString(v.EnumClass)
		e.writeSharedString(v.EnumLiteral)
	case SVStorageReference:
		e.writeByte(selStorageRef)
		e.writeSR(v.Ref)
	default:
		return fmt.Errorf("encode: unknown storage value kind %d", v.Kind)
	}
	return nil
}

func (d *Decoder) readStorageValue() (StorageValue, error) {
	sel, err := d.readByte()
	if err != nil {
		return StorageValue{}, err
	}
	switch sel {
	case selNull:
		return NullValue(), nil
	case selBooleanFalse:
		return BoolValue(false), nil
	case selBooleanTrue:
		return BoolValue(true), nil
	case selByte:
		b, err := d.readByte()
		return ByteValue(b), err
	case selChar:
		v, err := d.readUint16()
		return CharValue(rune(v)), err
	case selShort:
		v, err := d.readUint16()
		return ShortValue(int16(v)), err
	case selInt:
		v, err := d.readInt32()
		return IntValue(v), err
	case selLong:
		v, err := d.readInt64()
		return LongValue(v), err
	case selFloat:
		v, err := d.readFloat32()
		return FloatValue(v), err
	case selDouble:
		v, err := d.readFloat64()
		return DoubleValue(v), err
	case selBigInteger:
		v, err := d.readBigInt()
		if err != nil {
			return StorageValue{}, err
		}
		return BigIntegerValue(v), nil
	case selEmptyString:
		return StringValue(""), nil
	case selString:
		s, err := d.readSharedString()
		if err != nil {
			return StorageValue{}, err
		}
		return StringValue(s), nil
	case selEnum:
		cls, err := d.readSharedString()
		if err != nil {
			return StorageValue{}, err
		}
		lit, err := d.readSharedString()
		if err != nil {
			return StorageValue{}, err
		}
		return EnumValue(cls, lit), nil
	case selStorageRef:
		r, err := d.readSR()
		if err != nil {
			return StorageValue{}, err
		}
		return ReferenceValue(r), nil
	default:
		return StorageValue{}, fmt.Errorf("decode: unknown storage value selector %d", sel)
	}
}

// writeCodeSignature writes a CodeSignature (constructor or method).
func (e *Encoder) writeCodeSignature(c CodeSignature) {
	e.writeStorageType(c.DefiningClass)
	if c.IsConstructor {
		e.writeByte(1)
	} else {
		e.writeByte(0)
		e.writeUTF(c.MethodName)
	}
	e.writeUint32(uint32(len(c.Formals)))
	for _, f := range c.Formals {
		e.writeStorageType(f)
	}
	if c.ReturnType != nil {
		e.writeByte(1)
		e.writeStorageType(*c.ReturnType)
	} else {
		e.writeByte(0)
	}
}

func (d *Decoder) readCodeSignature() (CodeSignature, error) {
	dc, err := d.readStorageType()
	if err != nil {
		return CodeSignature{}, err
	}
	isCtor, err := d.readByte()
	if err != nil {
		return CodeSignature{}, err
	}
	var name string
	if isCtor == 0 {
		name, err = d.readUTF()
		if err != nil {
			return CodeSignature{}, err
		}
	}
	n, err := d.readUint32()
	if err != nil {
		return CodeSignature{}, err
	}
	formals := make([]StorageType, n)
	for i := range formals {
		formals[i], err = d.readStorageType()
		if err != nil {
			return CodeSignature{}, err
		}
	}
	hasReturn, err := d.readByte()
	if err != nil {
		return CodeSignature{}, err
	}
	var ret *StorageType
	if hasReturn == 1 {
		t, err := d.readStorageType()
		if err != nil {
			return CodeSignature{}, err
		}
		ret = &t
	}
	return CodeSignature{
		DefiningClass: dc,
		MethodName:    name,
		IsConstructor: isCtor == 1,
		Formals:       formals,
		ReturnType:    ret,
	}, nil
}

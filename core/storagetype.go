package core

import "strings"

// BasicType enumerates the eight primitives plus "object", the ninth basic
// storage type per §3. Basic types sort before class types and, among
// themselves, in this declaration order (the source spec leaves the order
// among basics unstated; see DESIGN.md for this resolution).
type BasicType byte

const (
	BasicBoolean BasicType = iota
	BasicByte
	BasicChar
	BasicShort
	BasicInt
	BasicLong
	BasicFloat
	BasicDouble
	BasicObject
)

// StorageType is either a basic type or a class type (fully-qualified name).
// Class-type names are interned by the wire codec's shared string table
// during a single marshalling scope; StorageType itself just holds the name.
type StorageType struct {
	IsClass   bool
	Basic     BasicType
	ClassName string
}

func BasicStorageType(b BasicType) StorageType { return StorageType{IsClass: false, Basic: b} }
func ClassStorageType(name string) StorageType { return StorageType{IsClass: true, ClassName: name} }

// Compare implements the total order from §3: basics before class types;
// among class types, by name; among basics, by declaration order above.
func (t StorageType) Compare(o StorageType) int {
	if t.IsClass != o.IsClass {
		if !t.IsClass {
			return -1
		}
		return 1
	}
	if !t.IsClass {
		switch {
		case t.Basic < o.Basic:
			return -1
		case t.Basic > o.Basic:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(t.ClassName, o.ClassName)
}

func (t StorageType) Equal(o StorageType) bool { return t.Compare(o) == 0 }

func (t StorageType) String() string {
	if t.IsClass {
		return t.ClassName
	}
	switch t.Basic {
	case BasicBoolean:
		return "boolean"
	case BasicByte:
		return "byte"
	case BasicChar:
		return "char"
	case BasicShort:
		return "short"
	case BasicInt:
		return "int"
	case BasicLong:
		return "long"
	case BasicFloat:
		return "float"
	case BasicDouble:
		return "double"
	case BasicObject:
		return "object"
	default:
		return "?"
	}
}

// FieldSignature identifies one instance field: the class that declares it,
// its name, and its static storage type. Hashed and compared structurally;
// interned during a single marshalling scope by the wire codec.
type FieldSignature struct {
	DefiningClass StorageType
	Name          string
	Type          StorageType
}

// Compare implements the "lexicographic over its triple" order from §3.
func (f FieldSignature) Compare(o FieldSignature) int {
	if c := f.DefiningClass.Compare(o.DefiningClass); c != 0 {
		return c
	}
	if c := strings.Compare(f.Name, o.Name); c != 0 {
		return c
	}
	return f.Type.Compare(o.Type)
}

func (f FieldSignature) Equal(o FieldSignature) bool { return f.Compare(o) == 0 }

func (f FieldSignature) String() string {
	return f.DefiningClass.String() + "." + f.Name + ":" + f.Type.String()
}

// CodeSignature identifies a constructor or a method: the class that
// declares it, an optional method name (empty for constructors), the
// ordered formal parameter types, and an optional return type (nil for
// constructors and void methods).
type CodeSignature struct {
	DefiningClass StorageType
	MethodName    string
	IsConstructor bool
	Formals       []StorageType
	ReturnType    *StorageType
}

func (c CodeSignature) IsVoid() bool { return !c.IsConstructor && c.ReturnType == nil }

func (c CodeSignature) String() string {
	name := c.MethodName
	if c.IsConstructor {
		name = "<init>"
	}
	parts := make([]string, len(c.Formals))
	for i, f := range c.Formals {
		parts[i] = f.String()
	}
	return c.DefiningClass.String() + "." + name + "(" + strings.Join(parts, ",") + ")"
}

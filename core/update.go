package core

// Update is the sealed union of the two update variants from §3: a
// class-tag binding an object to its defining class and creating jar, and a
// typed field update. Each committed transaction emits a strictly-sorted
// slice of Update with no two updates touching the same (object, field).
type Update interface {
	// Object is the storage reference the update applies to.
	Object() StorageReference
	// sortKey returns the field signature used to order updates touching the
	// same object; class-tag updates sort before every field update of that
	// object (an explicit resolution of an ordering §3 leaves implicit: see
	// DESIGN.md).
	sortKey() (isClassTag bool, field FieldSignature)
}

// ClassTagUpdate binds a newly-created object to its defining class and the
// TR of the jar that defines it. Every object created by a response with
// updates must appear as exactly one ClassTagUpdate in that response.
type ClassTagUpdate struct {
	Obj       StorageReference
	ClassName string
	Jar       TransactionReference
}

func (u ClassTagUpdate) Object() StorageReference { return u.Obj }
func (u ClassTagUpdate) sortKey() (bool, FieldSignature) { return true, FieldSignature{} }

// FieldUpdate records the new value of one instance, non-transient field of
// an object. A null value for a reference-typed field (big-integer, string,
// enum, storage-reference) is represented by Value.Kind == SVNull; the
// field's static type (carried in Field.Type) disambiguates which
// "null-of-type" wire selector to use.
type FieldUpdate struct {
	Obj   StorageReference
	Field FieldSignature
	Value StorageValue
}

func (u FieldUpdate) Object() StorageReference { return u.Obj }
func (u FieldUpdate) sortKey() (bool, FieldSignature) { return false, u.Field }

// CompareUpdates implements the total order from §3: first by the updated
// object's SR, then by the field signature (class-tag updates sorting
// first for a given object), then by the value's class as a final
// deterministic tie-break (unreachable in practice since no two updates may
// touch the same (object, field), but required for a total comparator).
func CompareUpdates(a, b Update) int {
	if c := a.Object().Compare(b.Object()); c != 0 {
		return c
	}
	aIsTag, aField := a.sortKey()
	bIsTag, bField := b.sortKey()
	if aIsTag != bIsTag {
		if aIsTag {
			return -1
		}
		return 1
	}
	if aIsTag {
		return 0
	}
	if c := aField.Compare(bField); c != 0 {
		return c
	}
	af, aok := a.(FieldUpdate)
	bf, bok := b.(FieldUpdate)
	if aok && bok {
		return af.Value.Kind.classOrder() - bf.Value.Kind.classOrder()
	}
	return 0
}

// SortUpdates sorts updates in place per CompareUpdates, using an
// insertion sort since update sets per transaction are small; callers
// needing a general-purpose sort over large slices should use sort.Slice
// directly with CompareUpdates.
func SortUpdates(us []Update) {
	for i := 1; i < len(us); i++ {
		for j := i; j > 0 && CompareUpdates(us[j-1], us[j]) > 0; j-- {
			us[j-1], us[j] = us[j], us[j-1]
		}
	}
}

package core

import "fmt"

// LiveObject is the in-memory shape the sandbox hands back after running
// user code: an object's class, the jar that defines it, whether it was
// already in store before this call, and its current field values keyed by
// signature alongside the value captured when the object was loaded.
// PreExisting, not the shadow, marks an object as new; the shadow is
// consulted only for pre-existing objects, and a field missing from it is
// always emitted.
type LiveObject struct {
	Ref          StorageReference
	ClassName    string
	DefiningJar  TransactionReference
	PreExisting  bool
	Fields       map[FieldSignature]StorageValue
	ShadowFields map[FieldSignature]StorageValue
	// References enumerates the SRs reachable directly from this object's
	// fields, used to seed the BFS frontier without re-walking Fields.
	References []StorageReference
}

// ExtractUpdates implements §4.F: a BFS over objects reachable from roots,
// each visited once by SR, emitting a class-tag update for objects not
// already in store and a field update for every field whose value differs
// from its load-time shadow (or every field, for newly created objects).
// The result is sorted per §3's total order over updates.
func ExtractUpdates(roots []LiveObject, byRef map[StorageReference]LiveObject) ([]Update, error) {
	visited := make(map[StorageReference]bool)
	queue := make([]StorageReference, 0, len(roots))
	for _, r := range roots {
		byRef[r.Ref] = r
		queue = append(queue, r.Ref)
	}

	var updates []Update
	for len(queue) > 0 {
		ref := queue[0]
		queue = queue[1:]
		if visited[ref] {
			continue
		}
		visited[ref] = true

		obj, ok := byRef[ref]
		if !ok {
			return nil, fmt.Errorf("update extractor: unreachable object %s referenced but not supplied", ref)
		}

		if !obj.PreExisting {
			updates = append(updates, ClassTagUpdate{Obj: obj.Ref, ClassName: obj.ClassName, Jar: obj.DefiningJar})
		}

		for field, val := range obj.Fields {
			if err := checkUpdatableField(field, val); err != nil {
				return nil, err
			}
			old, hadShadow := obj.ShadowFields[field]
			if obj.PreExisting && hadShadow && old.Equal(val) {
				continue
			}
			updates = append(updates, FieldUpdate{Obj: obj.Ref, Field: field, Value: val})
		}

		for _, next := range obj.References {
			if !visited[next] {
				queue = append(queue, next)
			}
		}
	}

	SortUpdates(updates)
	return updates, nil
}

// checkUpdatableField checks that an object-typed field holds one of the
// storable value kinds. It does not check whether an enum class declares
// instance fields; no enum-related error is raised during extraction.
func checkUpdatableField(field FieldSignature, val StorageValue) error {
	if !field.Type.IsClass && field.Type.Basic == BasicObject {
		switch val.Kind {
		case SVNull, SVBoolean, SVByte, SVChar, SVShort, SVInt, SVLong, SVFloat, SVDouble,
			SVBigInteger, SVString, SVEnum, SVStorageReference:
			return nil
		default:
			return fmt.Errorf("update extractor: field %s has non-storable runtime value kind %d", field, val.Kind)
		}
	}
	return nil
}

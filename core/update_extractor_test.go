package core

import "testing"

func fieldSig(name string) FieldSignature {
	return FieldSignature{DefiningClass: ClassStorageType("io.takamaka.code.lang.Contract"), Name: name, Type: BasicStorageType(BasicInt)}
}

func TestExtractUpdatesNewObjectEmitsClassTagAndAllFields(t *testing.T) {
	ref := StorageReference{Transaction: TransactionReference{1}, Progressive: 0}
	obj := LiveObject{
		Ref:         ref,
		ClassName:   "io.takamaka.code.lang.Contract",
		DefiningJar: TransactionReference{9},
		PreExisting: false,
		Fields: map[FieldSignature]StorageValue{
			fieldSig("x"): IntValue(1),
		},
	}
	updates, err := ExtractUpdates([]LiveObject{obj}, map[StorageReference]LiveObject{})
	if err != nil {
		t.Fatal(err)
	}
	if len(updates) != 2 {
		t.Fatalf("expected a class-tag update plus one field update, got %d", len(updates))
	}
	if _, ok := updates[0].(ClassTagUpdate); !ok {
		t.Fatalf("expected class-tag update to sort first, got %T", updates[0])
	}
	fu, ok := updates[1].(FieldUpdate)
	if !ok || !fu.Value.Equal(IntValue(1)) {
		t.Fatalf("expected field update with value 1, got %+v", updates[1])
	}
}

func TestExtractUpdatesPreExistingObjectSkipsUnchangedFields(t *testing.T) {
	ref := StorageReference{Transaction: TransactionReference{2}, Progressive: 0}
	field := fieldSig("balance")
	obj := LiveObject{
		Ref:          ref,
		ClassName:    "io.takamaka.code.lang.Contract",
		PreExisting:  true,
		Fields:       map[FieldSignature]StorageValue{field: IntValue(5)},
		ShadowFields: map[FieldSignature]StorageValue{field: IntValue(5)},
	}
	updates, err := ExtractUpdates([]LiveObject{obj}, map[StorageReference]LiveObject{})
	if err != nil {
		t.Fatal(err)
	}
	if len(updates) != 0 {
		t.Fatalf("expected no updates for an unchanged pre-existing object, got %d", len(updates))
	}
}

func TestExtractUpdatesPreExistingObjectEmitsOnlyChangedFields(t *testing.T) {
	ref := StorageReference{Transaction: TransactionReference{3}, Progressive: 0}
	unchanged := fieldSig("a")
	changed := fieldSig("b")
	obj := LiveObject{
		Ref:         ref,
		ClassName:   "io.takamaka.code.lang.Contract",
		PreExisting: true,
		Fields: map[FieldSignature]StorageValue{
			unchanged: IntValue(1),
			changed:   IntValue(99),
		},
		ShadowFields: map[FieldSignature]StorageValue{
			unchanged: IntValue(1),
			changed:   IntValue(2),
		},
	}
	updates, err := ExtractUpdates([]LiveObject{obj}, map[StorageReference]LiveObject{})
	if err != nil {
		t.Fatal(err)
	}
	if len(updates) != 1 {
		t.Fatalf("expected exactly one changed-field update, got %d", len(updates))
	}
	fu := updates[0].(FieldUpdate)
	if fu.Field != changed || !fu.Value.Equal(IntValue(99)) {
		t.Fatalf("got %+v", fu)
	}
}

func TestExtractUpdatesWalksReachableGraph(t *testing.T) {
	rootRef := StorageReference{Transaction: TransactionReference{4}, Progressive: 0}
	childRef := StorageReference{Transaction: TransactionReference{4}, Progressive: 1}

	root := LiveObject{
		Ref:         rootRef,
		ClassName:   "io.takamaka.code.lang.Contract",
		PreExisting: false,
		Fields:      map[FieldSignature]StorageValue{fieldSig("next"): ReferenceValue(childRef)},
		References:  []StorageReference{childRef},
	}
	child := LiveObject{
		Ref:         childRef,
		ClassName:   "io.takamaka.code.lang.Contract",
		PreExisting: false,
		Fields:      map[FieldSignature]StorageValue{fieldSig("v"): IntValue(7)},
	}
	byRef := map[StorageReference]LiveObject{childRef: child}

	updates, err := ExtractUpdates([]LiveObject{root}, byRef)
	if err != nil {
		t.Fatal(err)
	}

	var sawRootTag, sawChildTag bool
	for _, u := range updates {
		if ct, ok := u.(ClassTagUpdate); ok {
			if ct.Obj == rootRef {
				sawRootTag = true
			}
			if ct.Obj == childRef {
				sawChildTag = true
			}
		}
	}
	if !sawRootTag || !sawChildTag {
		t.Fatalf("expected class-tag updates for both root and reachable child, got %+v", updates)
	}
}

func TestExtractUpdatesMissingReferencedObjectErrors(t *testing.T) {
	rootRef := StorageReference{Transaction: TransactionReference{5}, Progressive: 0}
	missingRef := StorageReference{Transaction: TransactionReference{5}, Progressive: 1}
	root := LiveObject{
		Ref:         rootRef,
		ClassName:   "io.takamaka.code.lang.Contract",
		PreExisting: false,
		Fields:      map[FieldSignature]StorageValue{fieldSig("next"): ReferenceValue(missingRef)},
		References:  []StorageReference{missingRef},
	}
	if _, err := ExtractUpdates([]LiveObject{root}, map[StorageReference]LiveObject{}); err == nil {
		t.Fatal("expected an error for a reachable object missing from byRef")
	}
}

func TestSortUpdatesOrdersByObjectThenClassTagThenField(t *testing.T) {
	refA := StorageReference{Transaction: TransactionReference{1}, Progressive: 0}
	refB := StorageReference{Transaction: TransactionReference{2}, Progressive: 0}
	fieldLate := FieldSignature{DefiningClass: ClassStorageType("C"), Name: "z", Type: BasicStorageType(BasicInt)}
	fieldEarly := FieldSignature{DefiningClass: ClassStorageType("C"), Name: "a", Type: BasicStorageType(BasicInt)}

	updates := []Update{
		FieldUpdate{Obj: refB, Field: fieldEarly, Value: IntValue(1)},
		FieldUpdate{Obj: refA, Field: fieldLate, Value: IntValue(2)},
		ClassTagUpdate{Obj: refA, ClassName: "C"},
		FieldUpdate{Obj: refA, Field: fieldEarly, Value: IntValue(3)},
	}
	SortUpdates(updates)

	if updates[0].Object() != refA || updates[1].Object() != refA || updates[2].Object() != refA {
		t.Fatalf("expected refA's updates to sort first: %+v", updates)
	}
	if _, ok := updates[0].(ClassTagUpdate); !ok {
		t.Fatalf("expected refA's class-tag update to sort before its field updates, got %T", updates[0])
	}
	if updates[3].Object() != refB {
		t.Fatalf("expected refB's update last, got %+v", updates[3])
	}
}

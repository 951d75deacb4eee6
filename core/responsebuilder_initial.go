package core

import (
	"context"
	"fmt"
)

// Initial-request builders skip signature/nonce/gas-price checks entirely
// (there is no caller account yet) and produce responses that carry no gas
// data, per §4.G. Once the node is initialized, BuildResponse rejects every
// further initial request before any of these builders runs.

func buildJarStoreInitial(ctx context.Context, deps BuilderDeps, tx *StoreTransaction, tr TransactionReference, r *JarStoreInitialRequest) (Response, error) {
	if err := deps.Sandbox.LoadClass(tr, ""); err != nil {
		return nil, WrapNodeException(fmt.Errorf("jar-store-initial: sandbox refused classpath: %w", err))
	}
	return &JarStoreInitialResponse{
		InstrumentedJar: r.Jar,
		Dependencies:    r.Dependencies,
	}, nil
}

func buildGameteCreation(ctx context.Context, deps BuilderDeps, tx *StoreTransaction, tr TransactionReference, r *GameteCreationRequest) (Response, error) {
	gamete := StorageReference{Transaction: tr, Progressive: 0}

	obj := &LiveObject{
		Ref:          gamete,
		ClassName:    "io.takamaka.code.lang.ExternallyOwnedAccount",
		DefiningJar:  r.Classpath,
		PreExisting:  false,
		Fields:       make(map[FieldSignature]StorageValue),
		ShadowFields: make(map[FieldSignature]StorageValue),
	}
	greenField := FieldSignature{Name: "balanceGreen", Type: bigIntegerFieldType}
	redField := FieldSignature{Name: "balanceRed", Type: bigIntegerFieldType}
	nonceField := FieldSignature{Name: "nonce", Type: nonceFieldType}
	pubKeyField := FieldSignature{Name: "publicKey", Type: ClassStorageType("java.lang.String")}

	obj.Fields[greenField] = BigIntegerValue(r.InitialGreen)
	obj.Fields[redField] = BigIntegerValue(r.InitialRed)
	obj.Fields[nonceField] = LongValue(0)
	obj.Fields[pubKeyField] = StringValue(string(r.PublicKey))

	if _, err := deps.Sandbox.Serialize(obj); err != nil {
		return nil, WrapNodeException(fmt.Errorf("gamete-creation: serialize: %w", err))
	}

	updates, err := ExtractUpdates(
		[]LiveObject{*obj},
		map[StorageReference]LiveObject{gamete: *obj},
	)
	if err != nil {
		return nil, WrapStoreException(fmt.Errorf("gamete-creation: extract updates: %w", err))
	}

	tx.SetHistory(gamete, nil)

	return &GameteCreationResponse{
		Updates:   updates,
		NewGamete: gamete,
	}, nil
}

// buildInitialization installs the manifest. §3's lifecycle rule says this
// may only ever happen once per node, so it rejects the request when
// tx.GetManifest() reports a manifest already set.
func buildInitialization(tx *StoreTransaction, tr TransactionReference, r *InitializationRequest) (Response, error) {
	if _, alreadySet := tx.GetManifest(); alreadySet {
		return nil, NewRejected("node is already initialized")
	}
	tx.SetManifest(r.Manifest)
	return &InitializationResponse{}, nil
}

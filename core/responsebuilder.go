package core

import (
	"context"
	"fmt"
	"math/big"
)

// bigIntegerFieldType and nonceFieldType name the account object's two
// bookkeeping fields' static types for the updates the prelude stages.
var bigIntegerFieldType = ClassStorageType("java.math.BigInteger")
var nonceFieldType = BasicStorageType(BasicLong)

// Builder produces a Response for one request, staging its effects into a
// StoreTransaction. Selection between the initial and non-initial builder
// families is a plain factory switch over Request.Kind — spec.md §4.G names
// no polymorphic collaborator here, just "a factory chooses the builder by
// request variant."
type Builder interface {
	Build(ctx context.Context, tx *StoreTransaction, tr TransactionReference, req Request) (Response, error)
}

// BuildResponse is the factory named in §4.G: it dispatches to the initial
// or non-initial builder family by request kind. Once a manifest is set
// (committed or staged), every initial request is rejected.
func BuildResponse(ctx context.Context, deps BuilderDeps, tx *StoreTransaction, tr TransactionReference, req Request) (Response, error) {
	if req.Kind().IsInitial() {
		if _, initialized := tx.GetManifest(); initialized {
			return nil, NewRejected("node is already initialized")
		}
	}
	switch r := req.(type) {
	case *JarStoreInitialRequest:
		return buildJarStoreInitial(ctx, deps, tx, tr, r)
	case *GameteCreationRequest:
		return buildGameteCreation(ctx, deps, tx, tr, r)
	case *InitializationRequest:
		return buildInitialization(tx, tr, r)
	case *JarStoreRequest:
		return buildJarStore(ctx, deps, tx, tr, r)
	case *ConstructorCallRequest:
		return buildConstructorCall(ctx, deps, tx, tr, r)
	case *InstanceMethodCallRequest:
		return buildInstanceMethodCall(ctx, deps, tx, tr, r)
	case *StaticMethodCallRequest:
		return buildStaticMethodCall(ctx, deps, tx, tr, r)
	default:
		return nil, WrapNodeException(fmt.Errorf("response builder: unknown request kind %T", req))
	}
}

// BuilderDeps bundles the external collaborators every builder needs:
// the Sandbox named in §6, the account-balance accessor (a SR-keyed
// big-integer pair kept in the account's own fields, reached through the
// sandbox's object model), and the node's signature algorithm / chain-id,
// kept here rather than threaded through every function signature.
type BuilderDeps struct {
	Sandbox    Sandbox
	SigAlgo    SignatureAlgorithm
	ChainID    string
	GasPrice   uint64 // current node-enforced minimum gas price
	MaxGas     uint64 // per-transaction gas_limit cap
	MaxViewGas uint64 // max_gas_per_view_transaction
}

// accountBookkeeping is the minimal view the response builder needs of a
// caller's account: its balance fields and nonce, both ordinary instance
// fields on the account object per §3's "accounts are ordinary objects."
type accountBookkeeping struct {
	Green *StorageValue // big-integer
	Red   *StorageValue
	Nonce uint64
}

// loadAccount deserializes the caller's account object through the sandbox
// and extracts the fields the delivery protocol's prelude checks need.
func loadAccount(sb Sandbox, caller StorageReference) (*LiveObject, accountBookkeeping, error) {
	obj, err := sb.DeserializeObject(caller)
	if err != nil {
		return nil, accountBookkeeping{}, fmt.Errorf("load account: %w", err)
	}
	var book accountBookkeeping
	for sig, val := range obj.Fields {
		v := val
		switch sig.Name {
		case "balanceGreen":
			book.Green = &v
		case "balanceRed":
			book.Red = &v
		case "nonce":
			if v.Kind == SVLong {
				book.Nonce = uint64(v.Long)
			}
		}
	}
	return obj, book, nil
}

// chargeUpFront debits gas_limit*gas_price from the caller's green balance
// and increments its nonce, staging the resulting field updates — delivery
// protocol step 4.
func chargeUpFront(obj *LiveObject, book accountBookkeeping, gasLimit, gasPrice uint64) ([]Update, error) {
	if book.Green == nil {
		return nil, NewRejected("caller account missing balanceGreen field")
	}
	cost := new(big.Int).Mul(big.NewInt(0).SetUint64(gasLimit), big.NewInt(0).SetUint64(gasPrice))
	bal := book.Green.BigInt
	if bal == nil || bal.Cmp(cost) < 0 {
		return nil, NewRejected("insufficient balance to prepay gas_limit*gas_price")
	}
	newBal := new(big.Int).Sub(bal, cost)
	updates := []Update{
		FieldUpdate{Obj: obj.Ref, Field: FieldSignature{Name: "balanceGreen", Type: bigIntegerFieldType}, Value: BigIntegerValue(newBal)},
		FieldUpdate{Obj: obj.Ref, Field: FieldSignature{Name: "nonce", Type: nonceFieldType}, Value: LongValue(int64(book.Nonce + 1))},
	}
	return updates, nil
}

// refundUnused credits back gas charged but not consumed when the outcome
// is not a penalized failure: updates Green with remaining*gas_price.
func refundUnused(updates []Update, obj *LiveObject, gasLimit, gasPrice, remaining uint64) []Update {
	if remaining == 0 {
		return updates
	}
	refund := new(big.Int).Mul(big.NewInt(0).SetUint64(remaining), big.NewInt(0).SetUint64(gasPrice))
	for i, u := range updates {
		fu, ok := u.(FieldUpdate)
		if !ok || fu.Obj != obj.Ref || fu.Field.Name != "balanceGreen" {
			continue
		}
		bal := fu.Value.BigInt
		updates[i] = FieldUpdate{Obj: obj.Ref, Field: fu.Field, Value: BigIntegerValue(new(big.Int).Add(bal, refund))}
	}
	return updates
}

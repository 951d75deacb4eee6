package core

import (
	"context"
	"fmt"
)

// preludeCheck runs the signature/nonce/gas prelude shared by every
// non-initial request, delivery protocol step 3. A failed check returns a
// *RejectedError: no response is stored and the caller is never charged.
// A failure to load the caller's account or to run signature verification
// returns a NodeException instead.
// check_request (§4.H) reuses this exact function to dry-run the prelude
// against an aborted staging transaction.
func preludeCheck(deps BuilderDeps, tx *StoreTransaction, r NonInitialRequest) (*LiveObject, accountBookkeeping, error) {
	if r.GetChainID() != deps.ChainID {
		return nil, accountBookkeeping{}, NewRejected("wrong chain-id: got %q want %q", r.GetChainID(), deps.ChainID)
	}
	if r.GetGasPrice() < deps.GasPrice {
		return nil, accountBookkeeping{}, NewRejected("gas_price %d below current minimum %d", r.GetGasPrice(), deps.GasPrice)
	}
	limitCap := deps.MaxGas
	if limitCap == 0 {
		limitCap = deps.MaxViewGas
	}
	if r.GetGasLimit() > limitCap {
		return nil, accountBookkeeping{}, NewRejected("gas_limit %d exceeds cap %d", r.GetGasLimit(), limitCap)
	}

	obj, book, err := loadAccount(deps.Sandbox, r.GetCaller())
	if err != nil {
		return nil, accountBookkeeping{}, WrapNodeException(err)
	}
	if r.GetNonce() != book.Nonce {
		return nil, accountBookkeeping{}, NewRejected("nonce mismatch: request has %d, account is at %d", r.GetNonce(), book.Nonce)
	}

	ok, err := VerifyRequestSignature(deps.SigAlgo, r, r.GetSigner())
	if err != nil {
		return nil, accountBookkeeping{}, WrapNodeException(fmt.Errorf("signature verification: %w", err))
	}
	if !ok {
		return nil, accountBookkeeping{}, NewRejected("bad signature")
	}

	if book.Green == nil {
		return nil, accountBookkeeping{}, NewRejected("insufficient balance to prepay gas_limit*gas_price")
	}

	return obj, book, nil
}

// invocationResult carries the side effects an invocation body produces:
// the (possibly new) objects reachable from the call's outcome and any
// events raised, in notification order.
type invocationResult struct {
	NewRoots []LiveObject
	ByRef    map[StorageReference]LiveObject
	Events   []StorageReference
}

// invocation is the request-specific body run inside the cancellable
// sandbox task. It charges gas dimensions as it goes via chargeGas, records
// any touched/created objects and events into out, and returns either a
// normal result, a declared Cause (the "exception" outcome), or an error
// (the "failed" outcome — out-of-gas, verification failure, etc).
type invocation func(meter *GasMeter, chargeGas func(GasDimension, uint64) error, out *invocationResult) (StorageValue, *Cause, error)

// nonInitialOutcome is the common shape every non-initial builder reduces
// to before wrapping it in its specific Response type.
type nonInitialOutcome struct {
	Failed  bool
	Updates []Update
	Events  []StorageReference
	Gas     GasConsumed
	Cause   Cause
	Result  StorageValue
}

// deliverNonInitial runs delivery protocol steps 3-6 around invoke: prelude
// validation, up-front balance/nonce charge, a cancellable sandbox
// invocation metered by a fresh GasMeter, then either a refunded
// successful/exception outcome or a fully-billed failed outcome retaining
// only the prelude's balance/nonce updates.
func deliverNonInitial(ctx context.Context, deps BuilderDeps, tx *StoreTransaction, tr TransactionReference, r NonInitialRequest, contract StorageReference, invoke invocation) (*nonInitialOutcome, error) {
	obj, book, err := preludeCheck(deps, tx, r)
	if err != nil {
		return nil, err
	}

	prelude, err := chargeUpFront(obj, book, r.GetGasLimit(), r.GetGasPrice())
	if err != nil {
		return nil, err
	}

	meter := NewGasMeter(r.GetGasLimit())
	callCtx := StartCall(ctx, tr, contract, r.GetGasLimit(), r.GetGasLimit())
	defer FinishCall(tr)
	chargeGas := deps.Sandbox.ChargeGasCallback(meter)

	out := &invocationResult{ByRef: make(map[StorageReference]LiveObject)}
	result, cause, invokeErr := deps.Sandbox.RunCode(callCtx, func() (StorageValue, *Cause, error) {
		return invoke(meter, chargeGas, out)
	})

	if invokeErr != nil {
		gas := meter.Consumed()
		gas.Penalty = meter.Remaining()
		return &nonInitialOutcome{
			Failed:  true,
			Updates: prelude,
			Gas:     gas,
			Cause:   Cause{ClassOfCause: "java.lang.Exception", MessageOfCause: invokeErr.Error()},
		}, nil
	}

	refunded := refundUnused(prelude, obj, r.GetGasLimit(), r.GetGasPrice(), meter.Remaining())
	derived, err := ExtractUpdates(out.NewRoots, out.ByRef)
	if err != nil {
		return nil, WrapStoreException(fmt.Errorf("extract updates: %w", err))
	}
	all := append(append([]Update{}, refunded...), derived...)
	SortUpdates(all)

	outcome := &nonInitialOutcome{
		Updates: all,
		Events:  out.Events,
		Gas:     meter.Consumed(),
		Result:  result,
	}
	if cause != nil {
		outcome.Cause = *cause
	}
	return outcome, nil
}

func buildJarStore(ctx context.Context, deps BuilderDeps, tx *StoreTransaction, tr TransactionReference, r *JarStoreRequest) (Response, error) {
	outcome, err := deliverNonInitial(ctx, deps, tx, tr, r, r.Caller, func(meter *GasMeter, chargeGas func(GasDimension, uint64) error, out *invocationResult) (StorageValue, *Cause, error) {
		if err := chargeGas(GasBaseCall, 1); err != nil {
			return StorageValue{}, nil, err
		}
		if err := deps.Sandbox.LoadClass(tr, ""); err != nil {
			return StorageValue{}, nil, fmt.Errorf("jar verification failed: %w", err)
		}
		if err := chargeGas(GasStorageByte, uint64(len(r.Jar))); err != nil {
			return StorageValue{}, nil, err
		}
		return StorageValue{}, nil, nil
	})
	if err != nil {
		return nil, err
	}
	if outcome.Failed {
		return &JarStoreFailedResponse{Updates: outcome.Updates, Gas: outcome.Gas, Cause: outcome.Cause}, nil
	}
	return &JarStoreSuccessfulResponse{Updates: outcome.Updates, Gas: outcome.Gas, InstrumentedJar: r.Jar}, nil
}

// newObjectFromActuals builds a minimal LiveObject standing in for the
// object a real constructor/bytecode interpreter would produce: one field
// per actual argument, named positionally. Object (de)serialization and
// bytecode execution are explicit non-goals (§6's Sandbox collaborator), so
// this is the engine's own stand-in for "user code ran and produced an
// object," not a claim about real class semantics.
func newObjectFromActuals(ref StorageReference, className string, jar TransactionReference, actuals []StorageValue) LiveObject {
	obj := LiveObject{
		Ref:          ref,
		ClassName:    className,
		DefiningJar:  jar,
		PreExisting:  false,
		Fields:       make(map[FieldSignature]StorageValue),
		ShadowFields: make(map[FieldSignature]StorageValue),
	}
	for i, a := range actuals {
		obj.Fields[FieldSignature{Name: fmt.Sprintf("arg%d", i), Type: BasicStorageType(BasicObject)}] = a
	}
	return obj
}

func buildConstructorCall(ctx context.Context, deps BuilderDeps, tx *StoreTransaction, tr TransactionReference, r *ConstructorCallRequest) (Response, error) {
	newRef := StorageReference{Transaction: tr, Progressive: 0}
	outcome, err := deliverNonInitial(ctx, deps, tx, tr, r, newRef, func(meter *GasMeter, chargeGas func(GasDimension, uint64) error, out *invocationResult) (StorageValue, *Cause, error) {
		if err := chargeGas(GasBaseConstructor, 1); err != nil {
			return StorageValue{}, nil, err
		}
		ok, err := deps.Sandbox.ResolveMethodOrConstructor(r.Constructor)
		if err != nil {
			return StorageValue{}, nil, fmt.Errorf("resolve constructor: %w", err)
		}
		if !ok {
			return StorageValue{}, nil, fmt.Errorf("constructor %s not found", r.Constructor)
		}
		for range r.Actuals {
			if err := chargeGas(GasCPUFieldRead, 1); err != nil {
				return StorageValue{}, nil, err
			}
		}
		obj := newObjectFromActuals(newRef, r.Constructor.DefiningClass.String(), r.Classpath, r.Actuals)
		if _, err := deps.Sandbox.Serialize(&obj); err != nil {
			return StorageValue{}, nil, fmt.Errorf("serialize new object: %w", err)
		}
		if err := chargeGas(GasRAMUpdate, uint64(len(obj.Fields))); err != nil {
			return StorageValue{}, nil, err
		}
		out.NewRoots = append(out.NewRoots, obj)
		out.ByRef[obj.Ref] = obj
		return ReferenceValue(obj.Ref), nil, nil
	})
	if err != nil {
		return nil, err
	}
	if outcome.Failed {
		return &ConstructorCallFailedResponse{Updates: outcome.Updates, Gas: outcome.Gas, Cause: outcome.Cause}, nil
	}
	if outcome.Cause.MessageOfCause != "" {
		return &ConstructorCallExceptionResponse{Updates: outcome.Updates, Events: outcome.Events, Gas: outcome.Gas, Cause: outcome.Cause}, nil
	}
	return &ConstructorCallSuccessfulResponse{Updates: outcome.Updates, Events: outcome.Events, Gas: outcome.Gas, NewObject: newRef, SelfCharged: false}, nil
}

func buildInstanceMethodCall(ctx context.Context, deps BuilderDeps, tx *StoreTransaction, tr TransactionReference, r *InstanceMethodCallRequest) (Response, error) {
	outcome, err := deliverNonInitial(ctx, deps, tx, tr, r, r.Receiver, func(meter *GasMeter, chargeGas func(GasDimension, uint64) error, out *invocationResult) (StorageValue, *Cause, error) {
		if err := chargeGas(GasBaseCall, 1); err != nil {
			return StorageValue{}, nil, err
		}
		ok, err := deps.Sandbox.ResolveMethodOrConstructor(r.Method)
		if err != nil {
			return StorageValue{}, nil, fmt.Errorf("resolve method: %w", err)
		}
		if !ok {
			return StorageValue{}, nil, fmt.Errorf("method %s not found", r.Method)
		}
		receiver, err := deps.Sandbox.DeserializeObject(r.Receiver)
		if err != nil {
			return StorageValue{}, nil, fmt.Errorf("deserialize receiver: %w", err)
		}
		for range r.Actuals {
			if err := chargeGas(GasCPUFieldRead, 1); err != nil {
				return StorageValue{}, nil, err
			}
		}
		out.NewRoots = append(out.NewRoots, *receiver)
		out.ByRef[receiver.Ref] = *receiver
		if r.Method.IsVoid() {
			return StorageValue{}, nil, nil
		}
		return zeroValueFor(*r.Method.ReturnType), nil, nil
	})
	if err != nil {
		return nil, err
	}
	if outcome.Failed {
		return &MethodCallFailedResponse{Updates: outcome.Updates, Gas: outcome.Gas, Cause: outcome.Cause}, nil
	}
	if outcome.Cause.MessageOfCause != "" {
		return &MethodCallExceptionResponse{Updates: outcome.Updates, Events: outcome.Events, Gas: outcome.Gas, Cause: outcome.Cause}, nil
	}
	if r.Method.IsVoid() {
		return &VoidMethodCallSuccessfulResponse{Updates: outcome.Updates, Events: outcome.Events, Gas: outcome.Gas, SelfCharged: false}, nil
	}
	return &MethodCallSuccessfulResponse{Updates: outcome.Updates, Events: outcome.Events, Gas: outcome.Gas, Result: outcome.Result, SelfCharged: false}, nil
}

func buildStaticMethodCall(ctx context.Context, deps BuilderDeps, tx *StoreTransaction, tr TransactionReference, r *StaticMethodCallRequest) (Response, error) {
	outcome, err := deliverNonInitial(ctx, deps, tx, tr, r, r.Caller, func(meter *GasMeter, chargeGas func(GasDimension, uint64) error, out *invocationResult) (StorageValue, *Cause, error) {
		if err := chargeGas(GasBaseCall, 1); err != nil {
			return StorageValue{}, nil, err
		}
		ok, err := deps.Sandbox.ResolveMethodOrConstructor(r.Method)
		if err != nil {
			return StorageValue{}, nil, fmt.Errorf("resolve method: %w", err)
		}
		if !ok {
			return StorageValue{}, nil, fmt.Errorf("static method %s not found", r.Method)
		}
		for range r.Actuals {
			if err := chargeGas(GasCPUFieldRead, 1); err != nil {
				return StorageValue{}, nil, err
			}
		}
		if r.Method.IsVoid() {
			return StorageValue{}, nil, nil
		}
		return zeroValueFor(*r.Method.ReturnType), nil, nil
	})
	if err != nil {
		return nil, err
	}
	if outcome.Failed {
		return &MethodCallFailedResponse{Updates: outcome.Updates, Gas: outcome.Gas, Cause: outcome.Cause}, nil
	}
	if outcome.Cause.MessageOfCause != "" {
		return &MethodCallExceptionResponse{Updates: outcome.Updates, Events: outcome.Events, Gas: outcome.Gas, Cause: outcome.Cause}, nil
	}
	if r.Method.IsVoid() {
		return &VoidMethodCallSuccessfulResponse{Updates: outcome.Updates, Events: outcome.Events, Gas: outcome.Gas, SelfCharged: false}, nil
	}
	return &MethodCallSuccessfulResponse{Updates: outcome.Updates, Events: outcome.Events, Gas: outcome.Gas, Result: outcome.Result, SelfCharged: false}, nil
}

// zeroValueFor returns the default StorageValue for a declared return type,
// used by the method-call invocations' minimal stand-in for a real return
// value when no user bytecode actually ran.
func zeroValueFor(t StorageType) StorageValue {
	if t.IsClass {
		return NullValue()
	}
	switch t.Basic {
	case BasicBoolean:
		return BoolValue(false)
	case BasicByte:
		return ByteValue(0)
	case BasicChar:
		return CharValue(0)
	case BasicShort:
		return ShortValue(0)
	case BasicInt:
		return IntValue(0)
	case BasicLong:
		return LongValue(0)
	case BasicFloat:
		return FloatValue(0)
	case BasicDouble:
		return DoubleValue(0)
	default:
		return NullValue()
	}
}

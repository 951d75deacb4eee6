package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Sandbox is the user-code execution collaborator named in spec.md §6: the
// class loader, bytecode instrumenter, and interpreter/JIT live entirely
// outside this engine's tested surface. The response builder only ever
// drives it through this interface.
type Sandbox interface {
	LoadClass(classpath TransactionReference, className string) error
	ResolveMethodOrConstructor(sig CodeSignature) (bool, error)
	DeserializeObject(ref StorageReference) (*LiveObject, error)
	Serialize(obj *LiveObject) (StorageReference, error)
	// RunCode executes callable, returning either its result or a recorded
	// Cause for a declared-thrown exception. ChargeGasCallback is invoked by
	// the sandbox during execution to debit the in-flight GasMeter.
	RunCode(ctx context.Context, callable func() (StorageValue, *Cause, error)) (StorageValue, *Cause, error)
	ChargeGasCallback(meter *GasMeter) func(dimension GasDimension, units uint64) error
}

// runningCall tracks one in-flight sandbox invocation: the contract it is
// executing against, its gas budget, and a cancellation handle. Adapted
// from the teacher's vm_sandbox_management.go SandboxInfo/sandboxes
// registry — that file tracked per-contract memory/CPU limits for an
// always-on VM sandbox; here the same shape (a mutex-guarded map keyed by
// the unit of work, recording limits and a liveness flag) tracks one
// cancellable task per in-flight transaction so an exhausted gas budget or
// an external shutdown can cancel the sandbox call cleanly.
type runningCall struct {
	Contract  StorageReference
	CPULimit  uint64
	RAMLimit  uint64
	Started   time.Time
	Active    bool
	cancel    context.CancelFunc
}

var (
	runningCallsMu sync.RWMutex
	runningCalls   = make(map[TransactionReference]*runningCall)
)

// StartCall registers tr as in-flight against contract, with the given
// resource limits, and returns a context that RunCode should observe for
// cancellation.
func StartCall(parent context.Context, tr TransactionReference, contract StorageReference, cpuLimit, ramLimit uint64) context.Context {
	ctx, cancel := context.WithCancel(parent)
	runningCallsMu.Lock()
	defer runningCallsMu.Unlock()
	runningCalls[tr] = &runningCall{
		Contract: contract,
		CPULimit: cpuLimit,
		RAMLimit: ramLimit,
		Started:  time.Now(),
		Active:   true,
		cancel:   cancel,
	}
	return ctx
}

// CancelCall cancels tr's in-flight sandbox invocation, if any. Nothing in
// this module calls it.
func CancelCall(tr TransactionReference) {
	runningCallsMu.RLock()
	rc, ok := runningCalls[tr]
	runningCallsMu.RUnlock()
	if !ok {
		return
	}
	rc.cancel()
}

// FinishCall marks tr's call complete and removes it from the registry.
func FinishCall(tr TransactionReference) {
	runningCallsMu.Lock()
	defer runningCallsMu.Unlock()
	if rc, ok := runningCalls[tr]; ok {
		rc.Active = false
	}
	delete(runningCalls, tr)
}

// CallStatus reports the bookkeeping for an in-flight call, for
// diagnostics/metrics surfaces.
func CallStatus(tr TransactionReference) (runningCall, bool) {
	runningCallsMu.RLock()
	defer runningCallsMu.RUnlock()
	rc, ok := runningCalls[tr]
	if !ok {
		return runningCall{}, false
	}
	return *rc, true
}

// ListRunningCalls lists every call currently tracked, for diagnostics.
func ListRunningCalls() []runningCall {
	runningCallsMu.RLock()
	defer runningCallsMu.RUnlock()
	out := make([]runningCall, 0, len(runningCalls))
	for _, rc := range runningCalls {
		out = append(out, *rc)
	}
	return out
}

// testSandbox is a minimal in-memory Sandbox used by the tests and by the
// veridian-node CLI: it has no real class loader or interpreter, just
// enough bookkeeping to exercise the response builder's contract with a
// Sandbox.
type testSandbox struct {
	mu      sync.Mutex
	objects map[StorageReference]*LiveObject
	classes map[TransactionReference]map[string]bool
}

func NewTestSandbox() Sandbox {
	return &testSandbox{
		objects: make(map[StorageReference]*LiveObject),
		classes: make(map[TransactionReference]map[string]bool),
	}
}

func (s *testSandbox) LoadClass(classpath TransactionReference, className string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.classes[classpath] == nil {
		s.classes[classpath] = make(map[string]bool)
	}
	s.classes[classpath][className] = true
	return nil
}

func (s *testSandbox) ResolveMethodOrConstructor(sig CodeSignature) (bool, error) {
	return true, nil
}

func (s *testSandbox) DeserializeObject(ref StorageReference) (*LiveObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[ref]
	if !ok {
		return nil, fmt.Errorf("test sandbox: unknown object %s", ref)
	}
	return obj, nil
}

func (s *testSandbox) Serialize(obj *LiveObject) (StorageReference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[obj.Ref] = obj
	return obj.Ref, nil
}

func (s *testSandbox) RunCode(ctx context.Context, callable func() (StorageValue, *Cause, error)) (StorageValue, *Cause, error) {
	select {
	case <-ctx.Done():
		return StorageValue{}, nil, ctx.Err()
	default:
	}
	return callable()
}

func (s *testSandbox) ChargeGasCallback(meter *GasMeter) func(GasDimension, uint64) error {
	return func(dim GasDimension, units uint64) error {
		cost := GasCost(dim) * units
		switch dim {
		case GasCPUFieldRead, GasBaseCall, GasBaseConstructor:
			return meter.ChargeGasForCPU(cost)
		case GasRAMUpdate:
			return meter.ChargeGasForRAM(cost)
		case GasStorageByte:
			return meter.ChargeGasForStorage(cost)
		default:
			return meter.ChargeGasForCPU(cost)
		}
	}
}

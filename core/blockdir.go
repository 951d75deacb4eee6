package core

import (
	"fmt"
	"os"
	"path/filepath"
)

// BlockDir writes the no-DB per-block persisted layout from §6:
// dir/b<N>/<P>-<TR-hex>/{request,response,request.txt,response.txt}. It is
// an optional mirror alongside the KV-backend store — nothing reads it
// back; it exists purely for operability, matching the teacher's habit of
// pairing binary/WAL persistence with a human-readable JSON snapshot
// (core/ledger.go's ledger.snap).
type BlockDir struct {
	root string
}

// NewBlockDir roots the per-block directory layout at root (normally
// Config.Dir).
func NewBlockDir(root string) *BlockDir {
	return &BlockDir{root: root}
}

// WriteEntry persists one (request, response) pair at its block number and
// intra-block progressive index, with both the binary wire encoding and a
// human-readable text mirror.
func (b *BlockDir) WriteEntry(blockNum uint64, progressive int, tr TransactionReference, req Request, resp Response) error {
	dir := filepath.Join(b.root, fmt.Sprintf("b%d", blockNum), fmt.Sprintf("%d-%s", progressive, tr.String()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("block dir: mkdir %s: %w", dir, err)
	}

	reqBytes, err := EncodeRequest(req)
	if err != nil {
		return fmt.Errorf("block dir: encode request: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "request"), reqBytes, 0o644); err != nil {
		return fmt.Errorf("block dir: write request: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "request.txt"), []byte(describeRequest(req)), 0o644); err != nil {
		return fmt.Errorf("block dir: write request.txt: %w", err)
	}

	if resp != nil {
		respBytes, err := EncodeResponse(resp)
		if err != nil {
			return fmt.Errorf("block dir: encode response: %w", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "response"), respBytes, 0o644); err != nil {
			return fmt.Errorf("block dir: write response: %w", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "response.txt"), []byte(describeResponse(resp)), 0o644); err != nil {
			return fmt.Errorf("block dir: write response.txt: %w", err)
		}
	}
	return nil
}

// describeRequest renders a human-readable summary of req, the stand-in
// for "each bean's String()" since Request implementations carry no
// String() method of their own (they are plain data beans, per the
// teacher's convention of keeping wire beans free of display logic).
func describeRequest(req Request) string {
	switch r := req.(type) {
	case *JarStoreInitialRequest:
		return fmt.Sprintf("JarStoreInitialRequest{jar=%d bytes, deps=%d}", len(r.Jar), len(r.Dependencies))
	case *GameteCreationRequest:
		return fmt.Sprintf("GameteCreationRequest{classpath=%s, green=%s, red=%s}", r.Classpath, r.InitialGreen, r.InitialRed)
	case *InitializationRequest:
		return fmt.Sprintf("InitializationRequest{classpath=%s, manifest=%s}", r.Classpath, r.Manifest)
	case *JarStoreRequest:
		return fmt.Sprintf("JarStoreRequest{caller=%s, nonce=%d, jar=%d bytes}", r.Caller, r.Nonce, len(r.Jar))
	case *ConstructorCallRequest:
		return fmt.Sprintf("ConstructorCallRequest{caller=%s, nonce=%d, ctor=%s}", r.Caller, r.Nonce, r.Constructor)
	case *InstanceMethodCallRequest:
		return fmt.Sprintf("InstanceMethodCallRequest{caller=%s, nonce=%d, receiver=%s, method=%s}", r.Caller, r.Nonce, r.Receiver, r.Method)
	case *StaticMethodCallRequest:
		return fmt.Sprintf("StaticMethodCallRequest{caller=%s, nonce=%d, method=%s}", r.Caller, r.Nonce, r.Method)
	default:
		return fmt.Sprintf("%T", req)
	}
}

// describeResponse renders a human-readable summary of resp.
func describeResponse(resp Response) string {
	switch r := resp.(type) {
	case *GameteCreationResponse:
		return fmt.Sprintf("GameteCreationResponse{gamete=%s, updates=%d}", r.NewGamete, len(r.Updates))
	case *JarStoreInitialResponse:
		return fmt.Sprintf("JarStoreInitialResponse{jar=%d bytes, deps=%d}", len(r.InstrumentedJar), len(r.Dependencies))
	case *InitializationResponse:
		return "InitializationResponse{}"
	case *JarStoreSuccessfulResponse:
		return fmt.Sprintf("JarStoreSuccessfulResponse{updates=%d, gas=%+v}", len(r.Updates), r.Gas)
	case *JarStoreFailedResponse:
		return fmt.Sprintf("JarStoreFailedResponse{cause=%s: %s}", r.Cause.ClassOfCause, r.Cause.MessageOfCause)
	case *ConstructorCallSuccessfulResponse:
		return fmt.Sprintf("ConstructorCallSuccessfulResponse{new=%s, events=%d, gas=%+v}", r.NewObject, len(r.Events), r.Gas)
	case *ConstructorCallExceptionResponse:
		return fmt.Sprintf("ConstructorCallExceptionResponse{cause=%s: %s}", r.Cause.ClassOfCause, r.Cause.MessageOfCause)
	case *ConstructorCallFailedResponse:
		return fmt.Sprintf("ConstructorCallFailedResponse{cause=%s: %s}", r.Cause.ClassOfCause, r.Cause.MessageOfCause)
	case *MethodCallSuccessfulResponse:
		return fmt.Sprintf("MethodCallSuccessfulResponse{result=%s, events=%d, gas=%+v}", r.Result, len(r.Events), r.Gas)
	case *VoidMethodCallSuccessfulResponse:
		return fmt.Sprintf("VoidMethodCallSuccessfulResponse{events=%d, gas=%+v}", len(r.Events), r.Gas)
	case *MethodCallExceptionResponse:
		return fmt.Sprintf("MethodCallExceptionResponse{cause=%s: %s}", r.Cause.ClassOfCause, r.Cause.MessageOfCause)
	case *MethodCallFailedResponse:
		return fmt.Sprintf("MethodCallFailedResponse{cause=%s: %s}", r.Cause.ClassOfCause, r.Cause.MessageOfCause)
	default:
		return fmt.Sprintf("%T", resp)
	}
}

package core

import "math/big"

// RequestKind tags the variant of a Request; see §3.
type RequestKind byte

const (
	RequestJarStoreInitial RequestKind = iota
	RequestGameteCreation
	RequestInitialization
	RequestJarStore
	RequestConstructorCall
	RequestInstanceMethodCall
	RequestStaticMethodCall
)

// Request is the sealed union of the seven request variants. Only the
// concrete types below implement it.
type Request interface {
	Kind() RequestKind
}

// NonInitialRequest is implemented by every signed, gas-metered request
// variant (everything but the three bootstrap requests). The response
// builder and store transaction delivery protocol (§4.E step 3) operate
// against this narrower interface.
type NonInitialRequest interface {
	Request
	GetCaller() StorageReference
	GetNonce() uint64
	GetChainID() string
	GetGasLimit() uint64
	GetGasPrice() uint64
	GetSignature() []byte
	// GetSigner returns the caller's declared public key.
	GetSigner() []byte
	// WithoutSignature returns a shallow copy with Signature cleared, used to
	// build the canonical encoding that the TR hash and signature
	// verification are computed over (§6).
	WithoutSignature() NonInitialRequest
}

// JarStoreInitialRequest installs the base code jar during bootstrap.
type JarStoreInitialRequest struct {
	Jar          []byte
	Dependencies []TransactionReference
}

func (r *JarStoreInitialRequest) Kind() RequestKind { return RequestJarStoreInitial }

// GameteCreationRequest creates the initial funded account during bootstrap.
type GameteCreationRequest struct {
	Classpath    TransactionReference
	InitialGreen *big.Int
	InitialRed   *big.Int
	PublicKey    []byte
}

func (r *GameteCreationRequest) Kind() RequestKind { return RequestGameteCreation }

// InitializationRequest marks the node initialized by installing the
// manifest object. Exactly one may ever be delivered per node lifetime.
type InitializationRequest struct {
	Classpath TransactionReference
	Manifest  StorageReference
}

func (r *InitializationRequest) Kind() RequestKind { return RequestInitialization }

// nonInitialCommon is embedded by the four signed request variants to avoid
// repeating the caller/nonce/chain-id/gas/signature plumbing four times.
type nonInitialCommon struct {
	Caller    StorageReference
	Nonce     uint64
	ChainID   string
	GasLimit  uint64
	GasPrice  uint64
	Signature []byte
	Signer    []byte // the caller's declared public key
}

func (c nonInitialCommon) GetCaller() StorageReference { return c.Caller }
func (c nonInitialCommon) GetNonce() uint64             { return c.Nonce }
func (c nonInitialCommon) GetChainID() string           { return c.ChainID }
func (c nonInitialCommon) GetGasLimit() uint64           { return c.GasLimit }
func (c nonInitialCommon) GetGasPrice() uint64           { return c.GasPrice }
func (c nonInitialCommon) GetSignature() []byte          { return c.Signature }
func (c nonInitialCommon) GetSigner() []byte             { return c.Signer }

// JarStoreRequest installs a user jar against an already-initialized node.
type JarStoreRequest struct {
	nonInitialCommon
	Jar          []byte
	Dependencies []TransactionReference
	Classpath    TransactionReference
}

func (r *JarStoreRequest) Kind() RequestKind { return RequestJarStore }
func (r *JarStoreRequest) WithoutSignature() NonInitialRequest {
	cp := *r
	cp.Signature = nil
	return &cp
}

// ConstructorCallRequest invokes a constructor against a classpath.
type ConstructorCallRequest struct {
	nonInitialCommon
	Classpath   TransactionReference
	Constructor CodeSignature
	Actuals     []StorageValue
}

func (r *ConstructorCallRequest) Kind() RequestKind { return RequestConstructorCall }
func (r *ConstructorCallRequest) WithoutSignature() NonInitialRequest {
	cp := *r
	cp.Signature = nil
	return &cp
}

// InstanceMethodCallRequest invokes an instance method on a live object.
type InstanceMethodCallRequest struct {
	nonInitialCommon
	Classpath TransactionReference
	Receiver  StorageReference
	Method    CodeSignature
	Actuals   []StorageValue
}

func (r *InstanceMethodCallRequest) Kind() RequestKind { return RequestInstanceMethodCall }
func (r *InstanceMethodCallRequest) WithoutSignature() NonInitialRequest {
	cp := *r
	cp.Signature = nil
	return &cp
}

// StaticMethodCallRequest invokes a static method.
type StaticMethodCallRequest struct {
	nonInitialCommon
	Classpath TransactionReference
	Method    CodeSignature
	Actuals   []StorageValue
}

func (r *StaticMethodCallRequest) Kind() RequestKind { return RequestStaticMethodCall }
func (r *StaticMethodCallRequest) WithoutSignature() NonInitialRequest {
	cp := *r
	cp.Signature = nil
	return &cp
}

// IsInitial reports whether k names one of the three bootstrap variants.
func (k RequestKind) IsInitial() bool {
	return k == RequestJarStoreInitial || k == RequestGameteCreation || k == RequestInitialization
}

package core

// ResponseKind tags the logical variant of a Response. It is distinct from
// the wire selector byte: a handful of successful constructor/method/void
// responses share one logical kind but encode to one of several compact
// selectors depending on event count and self-charging (see selectors.go
// and wire_responses.go).
type ResponseKind byte

const (
	ResponseGameteCreation ResponseKind = iota
	ResponseJarStoreInitial
	ResponseJarStoreSuccessful
	ResponseJarStoreFailed
	ResponseConstructorCallSuccessful
	ResponseConstructorCallException
	ResponseConstructorCallFailed
	ResponseMethodCallSuccessful
	ResponseVoidMethodCallSuccessful
	ResponseMethodCallException
	ResponseMethodCallFailed
	ResponseInitialization
)

// Response is the sealed union of response variants.
type Response interface {
	Kind() ResponseKind
}

// WithUpdates is implemented by every response that carries field updates
// (i.e. every non-initial response).
type WithUpdates interface {
	Response
	GetUpdates() []Update
}

// Cause describes a recorded failure or declared exception: the class of
// the thrower, its message, and a "where" locator (e.g. a stack trace head).
type Cause struct {
	ClassOfCause   string
	MessageOfCause string
	Where          string
}

// GasConsumed tracks the three running totals charged against a gas_limit.
type GasConsumed struct {
	CPU     uint64
	RAM     uint64
	Storage uint64
	Penalty uint64 // only meaningful for failed responses
}

// GameteCreationResponse is produced by bootstrapping the funded gamete.
type GameteCreationResponse struct {
	Updates   []Update
	NewGamete StorageReference
}

func (r *GameteCreationResponse) Kind() ResponseKind  { return ResponseGameteCreation }
func (r *GameteCreationResponse) GetUpdates() []Update { return r.Updates }

// JarStoreInitialResponse is produced by installing the bootstrap jar.
type JarStoreInitialResponse struct {
	InstrumentedJar []byte
	Dependencies    []TransactionReference
}

func (r *JarStoreInitialResponse) Kind() ResponseKind { return ResponseJarStoreInitial }

// InitializationResponse is a marker produced by the one-time init request.
type InitializationResponse struct{}

func (r *InitializationResponse) Kind() ResponseKind { return ResponseInitialization }

// JarStoreSuccessfulResponse is produced by a successful user-jar install.
type JarStoreSuccessfulResponse struct {
	Updates         []Update
	Gas             GasConsumed
	InstrumentedJar []byte
}

func (r *JarStoreSuccessfulResponse) Kind() ResponseKind  { return ResponseJarStoreSuccessful }
func (r *JarStoreSuccessfulResponse) GetUpdates() []Update { return r.Updates }

// JarStoreFailedResponse is produced when jar verification/reverification
// fails; the caller is billed the full gas_limit.
type JarStoreFailedResponse struct {
	Updates []Update
	Gas     GasConsumed
	Cause   Cause
}

func (r *JarStoreFailedResponse) Kind() ResponseKind  { return ResponseJarStoreFailed }
func (r *JarStoreFailedResponse) GetUpdates() []Update { return r.Updates }

// ConstructorCallSuccessfulResponse is produced by a constructor call that
// returned normally. SelfCharged controls whether the wire codec is allowed
// to use one of the compact selectors for zero/one-event encodings.
type ConstructorCallSuccessfulResponse struct {
	Updates     []Update
	Events      []StorageReference
	Gas         GasConsumed
	NewObject   StorageReference
	SelfCharged bool
}

func (r *ConstructorCallSuccessfulResponse) Kind() ResponseKind { return ResponseConstructorCallSuccessful }
func (r *ConstructorCallSuccessfulResponse) GetUpdates() []Update { return r.Updates }

// ConstructorCallExceptionResponse is produced when the constructor's user
// code threw an exception declared as "expected." The caller is charged
// only for resources actually consumed, not a penalty.
type ConstructorCallExceptionResponse struct {
	Updates []Update
	Events  []StorageReference
	Gas     GasConsumed
	Cause   Cause
}

func (r *ConstructorCallExceptionResponse) Kind() ResponseKind  { return ResponseConstructorCallException }
func (r *ConstructorCallExceptionResponse) GetUpdates() []Update { return r.Updates }

// ConstructorCallFailedResponse is produced on an undeclared failure (e.g.
// out-of-gas); the caller is billed the full gas_limit.
type ConstructorCallFailedResponse struct {
	Updates []Update
	Gas     GasConsumed
	Cause   Cause
}

func (r *ConstructorCallFailedResponse) Kind() ResponseKind  { return ResponseConstructorCallFailed }
func (r *ConstructorCallFailedResponse) GetUpdates() []Update { return r.Updates }

// MethodCallSuccessfulResponse is produced by a non-void method call that
// returned normally.
type MethodCallSuccessfulResponse struct {
	Updates     []Update
	Events      []StorageReference
	Gas         GasConsumed
	Result      StorageValue
	SelfCharged bool
}

func (r *MethodCallSuccessfulResponse) Kind() ResponseKind  { return ResponseMethodCallSuccessful }
func (r *MethodCallSuccessfulResponse) GetUpdates() []Update { return r.Updates }

// VoidMethodCallSuccessfulResponse is produced by a void method call that
// returned normally.
type VoidMethodCallSuccessfulResponse struct {
	Updates     []Update
	Events      []StorageReference
	Gas         GasConsumed
	SelfCharged bool
}

func (r *VoidMethodCallSuccessfulResponse) Kind() ResponseKind  { return ResponseVoidMethodCallSuccessful }
func (r *VoidMethodCallSuccessfulResponse) GetUpdates() []Update { return r.Updates }

// MethodCallExceptionResponse is produced when a method call threw a
// declared exception.
type MethodCallExceptionResponse struct {
	Updates []Update
	Events  []StorageReference
	Gas     GasConsumed
	Cause   Cause
}

func (r *MethodCallExceptionResponse) Kind() ResponseKind  { return ResponseMethodCallException }
func (r *MethodCallExceptionResponse) GetUpdates() []Update { return r.Updates }

// MethodCallFailedResponse is produced on an undeclared method failure.
type MethodCallFailedResponse struct {
	Updates []Update
	Gas     GasConsumed
	Cause   Cause
}

func (r *MethodCallFailedResponse) Kind() ResponseKind  { return ResponseMethodCallFailed }
func (r *MethodCallFailedResponse) GetUpdates() []Update { return r.Updates }

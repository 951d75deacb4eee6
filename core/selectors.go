package core

// Selector bytes are bit-exact per §6 and must never be renumbered: they are
// part of the node's content-addressing contract (two nodes must compute
// the same TR for the same request, and old persisted responses must
// remain decodable).

// Storage value selectors.
const (
	selBooleanFalse    byte = 0
	selBooleanTrue     byte = 1
	selByte            byte = 2
	selChar            byte = 3
	selDouble          byte = 4
	selFloat           byte = 5
	selLong            byte = 7
	selNull            byte = 8
	selShort           byte = 9
	selString          byte = 10
	selStorageRef      byte = 11
	selEnum            byte = 12
	selEmptyString     byte = 13
	selInt             byte = 14
	selBigInteger      byte = 15 // not bit-exact-mandated by spec.md; big-integer has no
	// reserved numeral in §6's list, so it is assigned the next free value
	// outside the mandated set.
)

// Shared-table control bytes, used by every interned (TR/SR/field-signature/
// string) back-reference slot across the whole codec.
const (
	selSharedIndex32 byte = 254 // next 32-bit big-endian index follows
	selSharedFirst   byte = 255 // first occurrence: full encoding follows
)

// Response variant selectors.
const (
	selRespGameteCreation                            byte = 0
	selRespJarStoreInitial                           byte = 1
	selRespJarStoreSuccessful                        byte = 2
	selRespJarStoreFailed                             byte = 3
	selRespConstructorCallFailed                      byte = 4
	selRespConstructorCallException                   byte = 5
	selRespConstructorCallSuccessful                  byte = 6
	selRespVoidMethodCallSuccessful                    byte = 7
	selRespMethodCallFailed                            byte = 8
	selRespMethodCallSuccessful                        byte = 9
	selRespMethodCallSuccessfulNoEventsNoSelfCharged   byte = 10
	selRespMethodCallSuccessfulOneEventNoSelfCharged   byte = 11
	selRespVoidMethodCallSuccessfulNoEventsNoSelfCharged byte = 12
	selRespConstructorCallSuccessfulNoEvents           byte = 13
	selRespInitialization                              byte = 14
	selRespMethodCallException                         byte = 15
)

// Update variant selectors. Not bit-exact-mandated by spec.md (only the
// value/response/shared-table/constructor-signature bytes are listed in
// §6); assigned here in declaration order and held stable within this
// module.
const (
	selUpdateClassTag byte = 0
	selUpdateField    byte = 1
)

// Request variant selectors, held stable within this module for the same
// reason as update selectors.
const (
	selReqJarStoreInitial      byte = 0
	selReqGameteCreation       byte = 1
	selReqInitialization       byte = 2
	selReqJarStore             byte = 3
	selReqConstructorCall      byte = 4
	selReqInstanceMethodCall   byte = 5
	selReqStaticMethodCall     byte = 6
)

// Constructor signature selectors.
const (
	selCtorGeneric byte = 0
	selCtorEOA     byte = 3 // canonical externally-owned-account constructor
)

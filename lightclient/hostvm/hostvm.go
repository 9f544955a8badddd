// Package hostvm declares the boundary between this light client and
// the host WebAssembly runtime executor. Spec §1 treats "the
// host-virtual-machine executor" as an abstract dependency; this
// package is that abstraction, shared by the warp-sync state machine
// and the runtime tracking/call components so they agree on one
// contract instead of each inventing their own.
package hostvm

// ExecHint selects how the runtime VM should execute: interpreted
// (fast to start, slow to run) or compiled ahead-of-time (slow to
// start, fast to run).
type ExecHint int

const (
	ExecHintInterpreted ExecHint = iota
	ExecHintCompiled
)

// Prototype is a compiled runtime VM, ready to start calls. Spec §3
// calls this value ownable: exactly one component holds it at a time,
// "taken" to start a call and restored on return.
type Prototype interface {
	StartCall(method string, params []byte) (CallInProgress, error)
}

// CallInProgress drives one runtime call forward one suspension point
// at a time.
type CallInProgress interface {
	// Resume advances execution given the value requested by the
	// previous CallStep (nil on the very first call).
	Resume(value []byte) (CallStep, error)
}

// CallStepKind tags what a CallStep is asking the driver for.
type CallStepKind int

const (
	CallStepStorageGet CallStepKind = iota
	CallStepNextKey
	CallStepStorageRoot
	CallStepDone
)

// CallStep is one pause point or the final outcome of a runtime call.
type CallStep struct {
	Kind   CallStepKind
	Key    []byte // meaningful for StorageGet / NextKey
	Output []byte // meaningful for Done
}

// Instantiator builds a Prototype from the raw `:code` and
// `:heappages` bytes read at some block's state root. heapPages is
// already SCALE-decoded; zero means "use the embedder's default".
type Instantiator func(code []byte, heapPages uint64, hint ExecHint) (Prototype, error)

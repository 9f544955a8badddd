package warpsync

import "github.com/substrate-lite/lightnode/lightclient/hostvm"

// The warp-sync machine drives runtime execution purely in terms of
// the shared hostvm contract; these aliases keep call sites in this
// package readable without a hostvm. prefix on every use.
type (
	VirtualMachine  = hostvm.Prototype
	CallInProgress  = hostvm.CallInProgress
	CallStep        = hostvm.CallStep
	CallStepKind    = hostvm.CallStepKind
	ExecHint        = hostvm.ExecHint
	VMInstantiator  = hostvm.Instantiator
)

const (
	CallStepStorageGet  = hostvm.CallStepStorageGet
	CallStepNextKey     = hostvm.CallStepNextKey
	CallStepStorageRoot = hostvm.CallStepStorageRoot
	CallStepDone        = hostvm.CallStepDone

	ExecHintInterpreted = hostvm.ExecHintInterpreted
	ExecHintCompiled    = hostvm.ExecHintCompiled
)

// SignatureVerifier checks a fragment's authority-set transition
// signatures against the previous authority set. Real signature
// verification (sr25519/ed25519) is a cryptographic primitive this
// package treats as an abstract collaborator, the same way spec §1
// abstracts "low-level SCALE codec primitives" — swapping in a real
// verifier is the embedder's job, not this state machine's.
type SignatureVerifier interface {
	VerifyFragment(fragment Fragment, previousAuthorities AuthoritySet) error
}

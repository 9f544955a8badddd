package runtimecall

// ProofVerifier answers a single storage-key lookup against a Merkle
// call proof and a trusted state-root. Real trie/Merkle verification
// is a cryptographic primitive this package treats as an abstract
// collaborator, the same way warpsync treats signature verification —
// swapping in a real trie implementation is the embedder's job.
type ProofVerifier interface {
	// Get returns the value at key if proof demonstrates it (nil,
	// false, nil if the proof demonstrates the key is absent), or an
	// error if the proof doesn't cover the key or doesn't verify
	// against stateRoot.
	Get(proof [][]byte, stateRoot [32]byte, key []byte) (value []byte, found bool, err error)
}

// Package syncservice declares the boundary to the sync service:
// best-block notifications, block/storage/call-proof queries, and the
// near-head-of-chain heuristic. Spec §1 lists the sync service among
// the external collaborators this core trusts rather than implements;
// this package is that contract. An in-memory fake good enough to
// drive runtimeservice and runtimecall tests without a real network
// lives in the syncservicetest subpackage.
package syncservice

import (
	"context"

	"github.com/pkg/errors"
)

// ErrTrieRootNotFound is returned by StorageQuery/CallProofQuery when
// the requested state-root is no longer available on the network —
// most often because the remote pruned the block. Callers use this to
// distinguish a likely-transient network problem from other failures
// (spec §7's "network problem" classification).
var ErrTrieRootNotFound = errors.New("syncservice: trie root not found")

// BlockFields selects which parts of a block a BlockQuery should
// return; the sync service is not required to fetch what isn't asked
// for.
type BlockFields struct {
	Header       bool
	Body         bool
	Justification bool
}

// Block is the result of a BlockQuery, populated per the requested
// BlockFields.
type Block struct {
	HeaderBytes       []byte
	BodyBytes         [][]byte
	JustificationBytes []byte
}

// StorageQuery asks for a batch of storage values at a known
// state-root, returned in the same order as keys. A nil entry at
// index i means key i is absent from the trie.
type StorageQuery func(ctx context.Context, blockHash [32]byte, stateRoot [32]byte, keys [][]byte) ([][]byte, error)

// CallProofQuery asks for a Merkle proof sufficient to answer every
// storage read a runtime call would perform.
type CallProofQuery func(ctx context.Context, blockHeight uint64, blockHash [32]byte, method string, params []byte) ([][]byte, error)

// BlockQuery fetches the requested fields of one block by hash.
type BlockQuery func(ctx context.Context, hash [32]byte, fields BlockFields) (Block, error)

// Service is the sync-service interface consumed by the runtime
// tracking loop and the runtime-call executor (spec §6).
type Service interface {
	// SubscribeBest returns the current best header and a stream of
	// subsequent ones. The stream is closed when the service shuts
	// down.
	SubscribeBest(ctx context.Context) (initialHeader []byte, stream <-chan []byte, err error)

	BlockQuery(ctx context.Context, hash [32]byte, fields BlockFields) (Block, error)

	StorageQuery(ctx context.Context, blockHash [32]byte, stateRoot [32]byte, keys [][]byte) ([][]byte, error)

	CallProofQuery(ctx context.Context, blockHeight uint64, blockHash [32]byte, method string, params []byte) ([][]byte, error)

	// IsNearHeadOfChain reports the service's current best guess at
	// whether local best-block tracking has caught up to the network
	// tip.
	IsNearHeadOfChain() bool
}

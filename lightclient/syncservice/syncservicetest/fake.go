// Package syncservicetest provides an in-memory fake of
// syncservice.Service for exercising runtimeservice and runtimecall
// without a real network.
package syncservicetest

import (
	"context"
	"sync"

	"github.com/substrate-lite/lightnode/lightclient/syncservice"
)

// Fake is a scriptable syncservice.Service. All fields are safe to
// populate before the fake is handed to code under test; afterwards,
// use SetStorage, which takes the fake's internal lock, to simulate
// the chain's storage changing mid-test.
type Fake struct {
	mu sync.Mutex

	initialHeader []byte
	stream        chan []byte

	// StorageAt maps a state-root to that root's storage, keyed by the
	// storage key as a string; StorageQuery reads it.
	StorageAt map[[32]byte]map[string][]byte

	// CallProofAt maps a block hash to the proof bytes CallProofQuery
	// should return for any call against that block.
	CallProofAt map[[32]byte][][]byte

	Blocks map[[32]byte]syncservice.Block

	NearHeadOfChain bool

	StorageErr   error
	CallProofErr error
}

// New builds a Fake whose best-block stream starts with initialHeader.
// PushHeader delivers subsequent headers.
func New(initialHeader []byte) *Fake {
	return &Fake{
		initialHeader: initialHeader,
		stream:        make(chan []byte, 16),
		StorageAt:     make(map[[32]byte]map[string][]byte),
		CallProofAt:   make(map[[32]byte][][]byte),
		Blocks:        make(map[[32]byte]syncservice.Block),
	}
}

// PushHeader enqueues a new best header onto the stream.
func (f *Fake) PushHeader(header []byte) {
	f.stream <- header
}

// Close terminates the best-block stream as the real service would on
// shutdown.
func (f *Fake) Close() { close(f.stream) }

func (f *Fake) SubscribeBest(ctx context.Context) ([]byte, <-chan []byte, error) {
	return f.initialHeader, f.stream, nil
}

func (f *Fake) BlockQuery(ctx context.Context, hash [32]byte, fields syncservice.BlockFields) (syncservice.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Blocks[hash], nil
}

func (f *Fake) StorageQuery(ctx context.Context, blockHash, stateRoot [32]byte, keys [][]byte) ([][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StorageErr != nil {
		return nil, f.StorageErr
	}
	values := make([][]byte, len(keys))
	byKey := f.StorageAt[stateRoot]
	for i, k := range keys {
		values[i] = byKey[string(k)]
	}
	return values, nil
}

func (f *Fake) CallProofQuery(ctx context.Context, blockHeight uint64, blockHash [32]byte, method string, params []byte) ([][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CallProofErr != nil {
		return nil, f.CallProofErr
	}
	return f.CallProofAt[blockHash], nil
}

func (f *Fake) IsNearHeadOfChain() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.NearHeadOfChain
}

// SetStorage installs a key/value pair for a given state-root, taking
// the lock so it's safe to call while runtimeservice might be polling.
func (f *Fake) SetStorage(stateRoot [32]byte, key, value []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StorageAt[stateRoot] == nil {
		f.StorageAt[stateRoot] = make(map[string][]byte)
	}
	f.StorageAt[stateRoot][string(key)] = value
}

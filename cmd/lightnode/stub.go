package main

import (
	"context"

	"github.com/substrate-lite/lightnode/lightclient/hostvm"
	"github.com/substrate-lite/lightnode/lightclient/syncservice"
)

// stubSyncService is a placeholder syncservice.Service: enough to let
// the tracking loop and call executor start up and idle against a
// genesis block. A real embedder replaces this with a networked
// implementation; see syncservice.Service's doc comment for the
// contract it must honor.
type stubSyncService struct {
	genesisHeader []byte
}

func (s *stubSyncService) SubscribeBest(ctx context.Context) ([]byte, <-chan []byte, error) {
	ch := make(chan []byte)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return s.genesisHeader, ch, nil
}

func (s *stubSyncService) BlockQuery(ctx context.Context, hash [32]byte, fields syncservice.BlockFields) (syncservice.Block, error) {
	return syncservice.Block{}, nil
}

func (s *stubSyncService) StorageQuery(ctx context.Context, blockHash, stateRoot [32]byte, keys [][]byte) ([][]byte, error) {
	return make([][]byte, len(keys)), nil
}

func (s *stubSyncService) CallProofQuery(ctx context.Context, blockHeight uint64, blockHash [32]byte, method string, params []byte) ([][]byte, error) {
	return nil, nil
}

func (s *stubSyncService) IsNearHeadOfChain() bool { return false }

// stubInstantiator builds a VM that answers Core_version with a fixed
// placeholder version. A real embedder wires in an actual WebAssembly
// executor here.
func stubInstantiator(code []byte, heapPages uint64, hint hostvm.ExecHint) (hostvm.Prototype, error) {
	return stubVM{}, nil
}

type stubVM struct{}

func (stubVM) StartCall(method string, params []byte) (hostvm.CallInProgress, error) {
	return &stubCall{}, nil
}

type stubCall struct{}

func (c *stubCall) Resume(value []byte) (hostvm.CallStep, error) {
	// A SCALE-encoded RuntimeVersion for spec_name="", impl_name="",
	// authoring_version=0, spec_version=0, impl_version=0, no APIs,
	// transaction_version=0: two empty-string length prefixes, three
	// zero u32s, a zero-length api vec, and a final zero u32.
	output := make([]byte, 0, 19)
	output = append(output, 0x00, 0x00)          // spec_name, impl_name (empty)
	output = append(output, 0, 0, 0, 0)          // authoring_version
	output = append(output, 0, 0, 0, 0)          // spec_version
	output = append(output, 0, 0, 0, 0)          // impl_version
	output = append(output, 0x00)                // apis (empty)
	output = append(output, 0, 0, 0, 0)          // transaction_version
	return hostvm.CallStep{Kind: hostvm.CallStepDone, Output: output}, nil
}

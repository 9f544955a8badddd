// Package runtimecall implements the runtime-call executor (spec
// §4.6): it runs a read-only call against the tracked runtime using
// call-proof-resolved storage, retrying if a runtime upgrade races
// with the in-flight call.
package runtimecall

import (
	"context"

	"github.com/pkg/errors"
	"github.com/substrate-lite/lightnode/lightclient/header"
	"github.com/substrate-lite/lightnode/lightclient/hostvm"
	"github.com/substrate-lite/lightnode/lightclient/runtimecache"
	"github.com/substrate-lite/lightnode/lightclient/scale"
	"github.com/substrate-lite/lightnode/lightclient/syncservice"
)

const metadataMethod = "Metadata_metadata"

// Executor runs runtime calls against a shared runtimecache.Cache.
type Executor struct {
	cache       *runtimecache.Cache
	sync        syncservice.Service
	proof       ProofVerifier
	instantiate hostvm.Instantiator
	execHint    hostvm.ExecHint
}

// New builds an Executor sharing cache with a runtimeservice.Service.
func New(cache *runtimecache.Cache, sync syncservice.Service, proof ProofVerifier, instantiate hostvm.Instantiator, execHint hostvm.ExecHint) *Executor {
	return &Executor{cache: cache, sync: sync, proof: proof, instantiate: instantiate, execHint: execHint}
}

// BestBlockRuntime returns the currently cached runtime version.
func (e *Executor) BestBlockRuntime() (runtimecache.RuntimeVersion, error) {
	e.cache.Lock()
	defer e.cache.Unlock()
	return e.cache.CurrentVersion()
}

type snapshot struct {
	specVersion    uint32
	haveVersion    bool
	blockHash      [32]byte
	blockHeight    uint64
	blockStateRoot [32]byte
}

func (e *Executor) snapshotLocked() snapshot {
	hash, height, root := e.cache.BlockInfo()
	s := snapshot{blockHash: hash, blockHeight: height, blockStateRoot: root}
	if v, err := e.cache.CurrentVersion(); err == nil {
		s.specVersion = v.SpecVersion
		s.haveVersion = true
	}
	return s
}

// RecentBestBlockRuntimeCall executes method against the tracked
// runtime, retrying from scratch whenever the cached spec version
// changes between the proof fetch and taking the VM (spec §4.6 steps
// 1-5).
func (e *Executor) RecentBestBlockRuntimeCall(ctx context.Context, method string, params []byte) ([]byte, error) {
	for {
		e.cache.Lock()
		snap := e.snapshotLocked()
		e.cache.Unlock()

		proof, err := e.sync.CallProofQuery(ctx, snap.blockHeight, snap.blockHash, method, params)
		if err != nil {
			// An empty proof still lets individual StorageGet calls
			// fail out rather than aborting the whole call up front.
			proof = nil
		}

		e.cache.Lock()
		current := e.snapshotLocked()
		if current.specVersion != snap.specVersion || current.haveVersion != snap.haveVersion {
			e.cache.Unlock()
			retryCount.Inc()
			continue
		}

		result, callErr := e.runWithProof(method, params, proof, current.blockStateRoot)
		e.cache.Unlock()
		if callErr != nil {
			return nil, callErr
		}
		return result, nil
	}
}

// runWithProof must be called with the cache lock held; it takes the
// VM, drives the call, and restores the VM before returning on every
// path.
func (e *Executor) runWithProof(method string, params []byte, proof [][]byte, stateRoot [32]byte) ([]byte, error) {
	vm, runtime, err := e.takeVMLocked()
	if err != nil {
		return nil, newError(KindInvalidRuntime, err)
	}

	call, err := vm.StartCall(method, params)
	if err != nil {
		e.cache.RestoreVM(runtime, vm)
		return nil, newError(KindStartError, err)
	}

	var resumeValue []byte
	for {
		step, err := call.Resume(resumeValue)
		if err != nil {
			e.cache.RestoreVM(runtime, vm)
			return nil, newError(KindCallError, err)
		}
		switch step.Kind {
		case hostvm.CallStepDone:
			e.cache.RestoreVM(runtime, vm)
			return step.Output, nil
		case hostvm.CallStepStorageRoot:
			resumeValue = stateRoot[:]
		case hostvm.CallStepStorageGet:
			value, found, err := e.proof.Get(proof, stateRoot, step.Key)
			if err != nil {
				e.cache.RestoreVM(runtime, vm)
				return nil, newError(KindStorageRetrieval, err)
			}
			if !found {
				resumeValue = nil
			} else {
				resumeValue = value
			}
		case hostvm.CallStepNextKey:
			// Unimplemented in the original design (spec §9 open
			// question); surfaced explicitly rather than silently
			// misbehaving.
			e.cache.RestoreVM(runtime, vm)
			return nil, newError(KindStorageRetrieval, errNextKeyUnsupported)
		}
	}
}

func (e *Executor) takeVMLocked() (hostvm.Prototype, *runtimecache.SuccessfulRuntime, error) {
	vm, err := e.cache.TakeVM()
	if err != nil {
		return nil, nil, err
	}
	// The runtime record the VM belongs to is needed to restore it to
	// the right slot later; it is read back from the cache under the
	// same lock as the take, so it is the record TakeVM checked the VM
	// out of. runtimecache.Cache.RestoreVM no-ops if the record has
	// since been replaced.
	return vm, e.currentRuntimeLocked(), nil
}

func (e *Executor) currentRuntimeLocked() *runtimecache.SuccessfulRuntime {
	return e.cache.CurrentRuntimeRecord()
}

var errNextKeyUnsupported = errors.New("runtimecall: NextKey is unimplemented")

// Metadata returns the chain's metadata blob, using the cached copy
// if present and otherwise calling Metadata_metadata and stripping its
// SCALE-compact length prefix.
func (e *Executor) Metadata(ctx context.Context) ([]byte, error) {
	e.cache.Lock()
	if cached, ok := e.cache.Metadata(); ok {
		e.cache.Unlock()
		return cached, nil
	}
	e.cache.Unlock()

	raw, err := e.RecentBestBlockRuntimeCall(ctx, metadataMethod, nil)
	if err != nil {
		return nil, errors.Wrap(err, "runtimecall: fetching metadata")
	}

	length, n, err := scale.DecodeCompact(raw)
	if err != nil {
		return nil, errors.Wrap(err, "runtimecall: decoding metadata length prefix")
	}
	body := raw[n:]
	if uint64(len(body)) != length {
		return nil, errors.New("runtimecall: metadata length prefix does not match remaining bytes")
	}

	e.cache.Lock()
	e.cache.SetMetadata(e.currentRuntimeLocked(), body)
	e.cache.Unlock()

	return body, nil
}

// RuntimeVersionOfBlock returns the runtime version in effect at an
// arbitrary recent block, without touching the cache.
func (e *Executor) RuntimeVersionOfBlock(ctx context.Context, hash [32]byte) (runtimecache.RuntimeVersion, error) {
	e.cache.Lock()
	cachedHash, _, _ := e.cache.BlockInfo()
	if cachedHash == hash {
		v, err := e.cache.CurrentVersion()
		e.cache.Unlock()
		return v, err
	}
	e.cache.Unlock()

	block, err := e.sync.BlockQuery(ctx, hash, syncservice.BlockFields{Header: true})
	if err != nil {
		return runtimecache.RuntimeVersion{}, errors.Wrap(err, "runtimecall: fetching block header")
	}
	decoded, err := header.Decode(block.HeaderBytes)
	if err != nil {
		return runtimecache.RuntimeVersion{}, errors.Wrap(err, "runtimecall: decoding block header")
	}

	results, err := e.sync.StorageQuery(ctx, hash, decoded.StateRoot, [][]byte{[]byte(":code"), []byte(":heappages")})
	if err != nil {
		return runtimecache.RuntimeVersion{}, errors.Wrap(err, "runtimecall: fetching :code/:heappages")
	}
	code, heapPagesRaw := results[0], results[1]

	heapPages, err := scale.DecodeHeapPages(heapPagesRaw)
	if err != nil {
		return runtimecache.RuntimeVersion{}, errors.Wrap(err, "runtimecall: decoding :heappages")
	}

	runtime, err := runtimecache.BuildRuntime(e.instantiate, code, heapPages, e.execHint)
	if err != nil {
		return runtimecache.RuntimeVersion{}, errors.Wrap(err, "runtimecall: building throwaway runtime")
	}
	return runtime.Version, nil
}

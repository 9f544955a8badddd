// Package runtimecache holds the one cached runtime record the light
// client tracks at a time: the latest known `:code`/`:heappages` pair,
// the compiled VM (or the error that replaced it), and the subscriber
// lists that get told about new best headers and runtime-version
// changes. Spec §3/§4.4 call this the "Runtime Cache Record" and
// require all access to it be serialized through one lock held across
// whole multi-step update cycles, not just per-field.
package runtimecache

import (
	"bytes"
	"sync"

	"github.com/substrate-lite/lightnode/lightclient/hostvm"
)

// SuccessfulRuntime is a compiled runtime the cache currently
// considers good: it passed instantiation and a Core_version call.
// VM is nil while a call has it checked out (see TakeVM/RestoreVM);
// exactly one caller holds it at a time, same discipline as the
// warp-sync machine's use of hostvm.Prototype.
type SuccessfulRuntime struct {
	VM       hostvm.Prototype
	Version  RuntimeVersion
	metadata []byte // cached Metadata_metadata output (length prefix stripped), nil until first fetched
}

// Cache is the runtime cache record. Zero value is not usable; build
// one with New.
type Cache struct {
	mu sync.Mutex

	runtime    *SuccessfulRuntime
	runtimeErr error // the build error given to New/ReplaceRuntime, when runtime == nil

	code      []byte
	heapPages []byte

	blockHash      [32]byte
	blockHeight    uint64
	blockStateRoot [32]byte

	nearHeadOfChain bool

	headerSubs  []*HeaderSubscription
	versionSubs []*VersionSubscription
}

// New builds a cache from the genesis (or restart) block's code and
// heap pages and the already-built runtime for it, or the error that
// resulted from trying to build one.
func New(blockHash [32]byte, blockHeight uint64, blockStateRoot [32]byte, code, heapPages []byte, runtime *SuccessfulRuntime, buildErr error) *Cache {
	c := &Cache{
		code:           code,
		heapPages:      heapPages,
		blockHash:      blockHash,
		blockHeight:    blockHeight,
		blockStateRoot: blockStateRoot,
	}
	if buildErr != nil {
		c.runtimeErr = buildErr
	} else {
		c.runtime = runtime
	}
	return c
}

// Lock and Unlock expose the cache's mutex directly: several
// operations in the tracking loop (spec §4.5 steps 6-9) must hold
// exclusive access across several of this type's methods, not just
// one call.
func (c *Cache) Lock()   { c.mu.Lock() }
func (c *Cache) Unlock() { c.mu.Unlock() }

// CodeMatches reports whether code/heapPages are byte-identical to
// what's currently cached — the tracking loop's cheap path to decide
// a rebuild is unnecessary. Caller must hold the lock.
func (c *Cache) CodeMatches(code, heapPages []byte) bool {
	return bytes.Equal(c.code, code) && bytes.Equal(c.heapPages, heapPages)
}

// BlockInfo returns the block the cached record currently pins to.
// Caller must hold the lock.
func (c *Cache) BlockInfo() (hash [32]byte, height uint64, stateRoot [32]byte) {
	return c.blockHash, c.blockHeight, c.blockStateRoot
}

// UpdateBlockInfo unconditionally repoints the cache at a new block,
// independent of whether the runtime itself changed — so runtime
// calls execute against a recent state-root even on ticks where
// `:code`/`:heappages` didn't move (spec §4.5 step 10). Caller must
// hold the lock.
func (c *Cache) UpdateBlockInfo(hash [32]byte, height uint64, stateRoot [32]byte) {
	c.blockHash = hash
	c.blockHeight = height
	c.blockStateRoot = stateRoot
}

// NearHeadOfChain reports the last value reported by the embedder's
// is_near_head_of_chain heuristic (spec §4.5 step 4). Caller must
// hold the lock.
func (c *Cache) NearHeadOfChain() bool { return c.nearHeadOfChain }

// SetNearHeadOfChain updates the heuristic flag. Caller must hold the
// lock.
func (c *Cache) SetNearHeadOfChain(v bool) { c.nearHeadOfChain = v }

// CurrentVersion returns the cached runtime's version, or, if the
// latest known code failed to produce a runtime, the build error that
// New or ReplaceRuntime recorded for it. Caller must hold the lock.
func (c *Cache) CurrentVersion() (RuntimeVersion, error) {
	if c.runtime == nil {
		return RuntimeVersion{}, c.runtimeErr
	}
	return c.runtime.Version, nil
}

// TakeVM checks the VM prototype out of the cached runtime for the
// duration of one runtime call. The cache record stays in place;
// only the VM pointer is taken. Caller must hold the lock for the
// take and must hold it again when calling RestoreVM (the lock may be
// kept across the call, as runtimecall.Executor does) — this mirrors
// how a single hostvm.Prototype is only ever owned by one component
// at a time (see hostvm package docs).
func (c *Cache) TakeVM() (hostvm.Prototype, error) {
	if c.runtime == nil {
		return nil, c.runtimeErr
	}
	vm := c.runtime.VM
	if vm == nil {
		return nil, errVMAlreadyCheckedOut
	}
	c.runtime.VM = nil
	return vm, nil
}

// RestoreVM returns a VM taken by TakeVM. If the runtime record has
// since been replaced (a rebuild completed while the call was in
// flight), the returned VM is simply dropped. Caller must hold the
// lock.
func (c *Cache) RestoreVM(runtime *SuccessfulRuntime, vm hostvm.Prototype) {
	if c.runtime == runtime {
		c.runtime.VM = vm
	}
}

// CurrentRuntimeRecord returns the runtime record currently installed
// (nil if the cache holds only a sentinel error). Used by callers that
// need to pass the exact record back to RestoreVM/SetMetadata after
// releasing and re-acquiring the lock around a runtime call. Caller
// must hold the lock.
func (c *Cache) CurrentRuntimeRecord() *SuccessfulRuntime {
	return c.runtime
}

// Metadata returns the cached Metadata_metadata output for the
// current runtime, if any has been fetched yet. Caller must hold the
// lock.
func (c *Cache) Metadata() ([]byte, bool) {
	if c.runtime == nil || c.runtime.metadata == nil {
		return nil, false
	}
	return c.runtime.metadata, true
}

// SetMetadata caches Metadata_metadata output against the runtime
// that was current when the call started; a stale runtime's result is
// dropped rather than attached to a newer one. Caller must hold the
// lock.
func (c *Cache) SetMetadata(runtime *SuccessfulRuntime, metadata []byte) {
	if c.runtime == runtime {
		c.runtime.metadata = metadata
	}
}

// ReplaceRuntime swaps in a freshly rebuilt runtime (or the error from
// trying), updates the pinned block, and notifies every version
// subscriber. The caller (runtimeservice) only invokes this once
// `:code`/`:heappages` bytes have actually changed (spec §8's
// "No-change no-notify" keys on that byte equality, checked before
// this is ever called) — once here, the notification always goes out
// unconditionally, matching spec §4.5 step 12 ("notify every
// runtime-version subscriber with the new spec or an error") even
// when the rebuilt runtime reports the same spec_version as before
// (e.g. a recompile or an impl_version/transaction_version/apis-only
// change). Caller must hold the lock.
func (c *Cache) ReplaceRuntime(blockHash [32]byte, blockHeight uint64, blockStateRoot [32]byte, code, heapPages []byte, runtime *SuccessfulRuntime, buildErr error) {
	c.code = code
	c.heapPages = heapPages
	c.blockHash = blockHash
	c.blockHeight = blockHeight
	c.blockStateRoot = blockStateRoot

	if buildErr != nil {
		c.runtime = nil
		c.runtimeErr = buildErr
		rebuildCount.WithLabelValues("failure").Inc()
		log.WithError(buildErr).Warn("failed to rebuild runtime from new :code/:heappages")
		c.notifyVersion(VersionUpdate{Err: buildErr})
		return
	}

	c.runtime = runtime
	c.runtimeErr = nil
	rebuildCount.WithLabelValues("success").Inc()
	log.WithField("spec_version", runtime.Version.SpecVersion).Debug("rebuilt runtime from new :code/:heappages")

	v := runtime.Version
	c.notifyVersion(VersionUpdate{Version: &v})
}

// SubscribeVersion registers a new runtime-version subscriber. Per
// SPEC_FULL's supplemented feature 5, it immediately receives the
// current cached value (or error) so a subscriber never misses the
// state that existed before it subscribed. Caller must hold the lock.
func (c *Cache) SubscribeVersion() *VersionSubscription {
	sub := newVersionSubscription()
	if c.runtime != nil {
		v := c.runtime.Version
		sub.send(VersionUpdate{Version: &v})
	} else {
		sub.send(VersionUpdate{Err: c.runtimeErr})
	}
	c.versionSubs = append(c.versionSubs, sub)
	versionSubscriberGauge.Set(float64(len(c.versionSubs)))
	return sub
}

// SubscribeHeader registers a new best-header subscriber. Unlike
// SubscribeVersion it does not deliver a current value on
// subscription — original_source leaves this asymmetric (its
// subscribe_best draws the initial value from the sync service, not
// from this cache), a detail the spec notes without resolving, so it
// is preserved rather than "fixed" (see DESIGN.md). Caller must hold
// the lock.
func (c *Cache) SubscribeHeader() *HeaderSubscription {
	sub := newHeaderSubscription()
	c.headerSubs = append(c.headerSubs, sub)
	headerSubscriberGauge.Set(float64(len(c.headerSubs)))
	return sub
}

// NotifyHeader delivers a new best header to every live subscriber,
// pruning any that have unsubscribed. Caller must hold the lock.
func (c *Cache) NotifyHeader(headerBytes []byte) {
	update := HeaderUpdate{HeaderBytes: headerBytes}
	live := c.headerSubs[:0]
	for _, sub := range c.headerSubs {
		if sub.send(update) {
			live = append(live, sub)
		}
	}
	// Reallocate at exact capacity rather than keep reusing the
	// original backing array: a subscriber list that grows to a peak
	// and then drains to a handful of survivors must not keep pinning
	// the peak-sized array in memory.
	shrunk := make([]*HeaderSubscription, len(live))
	copy(shrunk, live)
	c.headerSubs = shrunk
	headerSubscriberGauge.Set(float64(len(c.headerSubs)))
}

func (c *Cache) notifyVersion(update VersionUpdate) {
	live := c.versionSubs[:0]
	for _, sub := range c.versionSubs {
		if sub.send(update) {
			live = append(live, sub)
		}
	}
	shrunk := make([]*VersionSubscription, len(live))
	copy(shrunk, live)
	c.versionSubs = shrunk
	versionSubscriberGauge.Set(float64(len(c.versionSubs)))
}

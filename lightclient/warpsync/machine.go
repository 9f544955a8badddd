// Package warpsync implements the GRANDPA warp-sync bootstrap state
// machine described in spec §4.3: a single-owner value that a caller
// drives forward by matching on its current pause point and feeding
// back the result of whatever I/O that pause point asked for.
package warpsync

import "github.com/substrate-lite/lightnode/lightclient/scale"

// State is the closed set of pause points the machine can be in. The
// caller type-switches on the value returned by Machine.State to
// decide what external work to perform next.
type State interface {
	isWarpSyncState()
}

// WaitingForSources means no untried source is available; the caller
// must call AddSource.
type WaitingForSources struct{}

// WarpSyncRequest means the machine has picked a source; the caller
// must fetch a WarpSyncResponse from it and call HandleResponse.
type WarpSyncRequest struct {
	SourceID SourceID
	UserData any
}

// Verifier means fragments are queued for verification; the caller
// must call VerifyNext (possibly in a tight loop) until the state
// changes.
type Verifier struct{}

// VirtualMachineParamsGet means fragment verification is complete and
// the caller must supply `:code`/`:heappages` storage for
// TargetHeader via SetVirtualMachineParams.
type VirtualMachineParamsGet struct {
	TargetHeader Header
}

// StorageGet means a runtime call in progress needs one storage
// value; the caller must supply it via InjectStorageValue.
type StorageGet struct {
	Key []byte
}

// NextKey means a runtime call in progress needs the
// lexicographically next trie key; the caller must supply it via
// InjectNextKey.
type NextKey struct {
	Key []byte
}

// Success is the payload of a Finished state.
type Success struct {
	ChainInformation ValidChainInformation
	Runtime          VirtualMachine
	Sources          []any
}

// Finished is the terminal state.
type Finished struct {
	Success Success
}

func (WaitingForSources) isWarpSyncState()        {}
func (WarpSyncRequest) isWarpSyncState()          {}
func (Verifier) isWarpSyncState()                 {}
func (VirtualMachineParamsGet) isWarpSyncState()  {}
func (StorageGet) isWarpSyncState()               {}
func (NextKey) isWarpSyncState()                  {}
func (Finished) isWarpSyncState()                 {}

// acceptedProgress is the (header, finality) pair accepted so far,
// either from the trust anchor or from a fully-verified batch.
type acceptedProgress struct {
	header   Header
	finality Finality
}

// Machine is the warp-sync state machine. The zero value is not
// usable; construct with NewMachine.
type Machine struct {
	sigVerifier    SignatureVerifier
	vmInstantiator VMInstantiator
	execHint       ExecHint

	sources *SourceSet[any]

	anchor ValidChainInformation

	current State

	// Set once the current source has a request in flight or has
	// delivered the batch that put the machine into post-verification.
	currentSourceID  SourceID
	hasCurrentSource bool

	// Non-nil between batches, pre-verification.
	lastAccepted *acceptedProgress

	verifier *fragmentVerifier

	postVerification bool
	finalHeader      Header
	finalFinality    Finality

	vm    VirtualMachine
	epoch *epochExtraction
}

// NewMachine constructs a machine trusting startChainInformation as
// its bootstrap anchor. No sources are registered yet, so the
// initial state is WaitingForSources.
func NewMachine(startChainInformation ValidChainInformation, sigVerifier SignatureVerifier, vmInstantiator VMInstantiator, hint ExecHint) *Machine {
	return &Machine{
		sigVerifier:    sigVerifier,
		vmInstantiator: vmInstantiator,
		execHint:       hint,
		sources:        NewSourceSet[any](),
		anchor:         startChainInformation,
		current:        WaitingForSources{},
	}
}

// State returns the machine's current pause point.
func (m *Machine) State() State {
	return m.current
}

// startSourceSelection scans for an untried source and transitions to
// WarpSyncRequest targeting it, or to WaitingForSources if none
// exists. It is the single place that implements spec §4.3's "source
// selection" policy.
func (m *Machine) startSourceSelection() {
	id, ok := m.sources.SelectUntried()
	if !ok {
		m.hasCurrentSource = false
		m.current = WaitingForSources{}
		return
	}
	m.currentSourceID = id
	m.hasCurrentSource = true
	userData, _ := m.sources.UserData(id)
	m.current = WarpSyncRequest{SourceID: id, UserData: userData}
}

// AddSource registers a new source. If the machine was parked in
// WaitingForSources, it transitions directly to WarpSyncRequest
// targeting the new source.
func (m *Machine) AddSource(userData any) SourceID {
	id := m.sources.Add(userData)
	if _, waiting := m.current.(WaitingForSources); waiting {
		m.startSourceSelection()
	}
	return id
}

// RemoveSource removes a source. Removing the source attached to the
// in-flight request/verification/post-verification work discards that
// work and restarts source selection, per spec §4.3's source-removal
// policy. Removing any other source id is a plain removal.
func (m *Machine) RemoveSource(id SourceID) {
	isCurrent := m.hasCurrentSource && m.currentSourceID == id
	m.sources.Remove(id)

	if !isCurrent {
		return
	}

	if m.postVerification {
		// Post-verification progress is tied to the source that
		// delivered the final batch; losing it means starting over.
		m.postVerification = false
		m.lastAccepted = nil
		m.vm = nil
		m.epoch = nil
	} else {
		m.verifier = nil
		// lastAccepted (pre-verification progress) is preserved.
	}
	m.hasCurrentSource = false
	m.startSourceSelection()
}

// SourceIDs returns every live source id, in insertion order.
func (m *Machine) SourceIDs() []SourceID {
	return m.sources.IDs()
}

// HandleResponse feeds back the result of the fetch requested by a
// WarpSyncRequest state. nil means the caller's I/O failed.
func (m *Machine) HandleResponse(resp *WarpSyncResponse) {
	if _, ok := m.current.(WarpSyncRequest); !ok {
		panic("warpsync: HandleResponse called outside WarpSyncRequest state")
	}
	m.sources.MarkTried(m.currentSourceID)

	if resp == nil {
		m.hasCurrentSource = false
		m.startSourceSelection()
		return
	}

	seedHeader, seedFinality := m.anchor.Inner().FinalizedBlockHeader, m.anchor.Inner().Finality
	if m.lastAccepted != nil {
		seedHeader, seedFinality = m.lastAccepted.header, m.lastAccepted.finality
	}
	m.verifier = newFragmentVerifier(m.sigVerifier, seedHeader, seedFinality, resp.Fragments, resp.IsFinished)
	m.current = Verifier{}
}

// VerifyNext consumes exactly one queued fragment, or reports the
// result of the batch if the queue was already exhausted. It returns
// a non-nil error only on verification failure; the batch is then
// discarded and source selection restarts, but prior accepted
// progress is preserved (spec §8 "Warp-sync progress preservation").
func (m *Machine) VerifyNext() error {
	if _, ok := m.current.(Verifier); !ok {
		panic("warpsync: VerifyNext called outside Verifier state")
	}

	finishedBatch := m.verifier.isFinished
	outcome := m.verifier.next()

	switch outcome.kind {
	case verifierOutcomeInProgress:
		return nil

	case verifierOutcomeFailed:
		m.verifier = nil
		m.hasCurrentSource = false
		m.startSourceSelection()
		return outcome.err

	case verifierOutcomeBatchComplete:
		m.verifier = nil
		if finishedBatch {
			m.finalHeader = outcome.header
			m.finalFinality = outcome.finality
			m.postVerification = true
			m.current = VirtualMachineParamsGet{TargetHeader: outcome.header}
			return nil
		}
		m.lastAccepted = &acceptedProgress{header: outcome.header, finality: outcome.finality}
		userData, _ := m.sources.UserData(m.currentSourceID)
		m.current = WarpSyncRequest{SourceID: m.currentSourceID, UserData: userData}
		return nil
	}
	return nil
}

// decodeHeapPages decodes the `:heappages` SCALE-compact u64, falling
// back to scale.DefaultHeapPages when the key was absent (nil raw).
func decodeHeapPages(raw []byte) (uint64, error) {
	return scale.DecodeHeapPages(raw)
}

// SetVirtualMachineParams supplies the `:code`/`:heappages` storage
// read at VirtualMachineParamsGet.TargetHeader and instantiates the
// runtime. A missing code or malformed heap-pages value is reported
// and restarts source selection rather than failing the machine.
func (m *Machine) SetVirtualMachineParams(code []byte, heapPagesRaw []byte) error {
	if _, ok := m.current.(VirtualMachineParamsGet); !ok {
		panic("warpsync: SetVirtualMachineParams called outside VirtualMachineParamsGet state")
	}

	if code == nil {
		return m.failPostVerification(newError(ErrorMissingCode, nil))
	}
	heapPages, err := decodeHeapPages(heapPagesRaw)
	if err != nil {
		return m.failPostVerification(newError(ErrorInvalidHeapPages, err))
	}
	vm, err := m.vmInstantiator(code, heapPages, m.execHint)
	if err != nil {
		return m.failPostVerification(newError(ErrorNewRuntime, err))
	}

	m.vm = vm
	m.epoch = &epochExtraction{}
	step, err := m.epoch.begin(vm, epochStageCurrent)
	if err != nil {
		return m.failPostVerification(newError(ErrorBabeFetchEpoch, err))
	}
	return m.applyCallStep(step)
}

// InjectStorageValue resumes a runtime call paused at StorageGet.
func (m *Machine) InjectStorageValue(value []byte) error {
	if _, ok := m.current.(StorageGet); !ok {
		panic("warpsync: InjectStorageValue called outside StorageGet state")
	}
	step, err := m.epoch.resume(value)
	if err != nil {
		return m.failPostVerification(newError(ErrorBabeFetchEpoch, err))
	}
	return m.applyCallStep(step)
}

// InjectNextKey resumes a runtime call paused at NextKey.
func (m *Machine) InjectNextKey(key []byte) error {
	if _, ok := m.current.(NextKey); !ok {
		panic("warpsync: InjectNextKey called outside NextKey state")
	}
	step, err := m.epoch.resume(key)
	if err != nil {
		return m.failPostVerification(newError(ErrorBabeFetchEpoch, err))
	}
	return m.applyCallStep(step)
}

// applyCallStep dispatches a CallStep from the in-progress BABE epoch
// runtime call to the next exposed state, or — on CallStepDone —
// either advances to the next epoch query or assembles and validates
// the final ChainInformation. CallStepStorageRoot is resolved
// in-machine rather than exposed as a pause point, the same way
// runtimecall.Executor answers it directly from the block's known
// state root instead of asking the caller.
func (m *Machine) applyCallStep(step CallStep) error {
	switch step.Kind {
	case CallStepStorageGet:
		m.current = StorageGet{Key: step.Key}
		return nil
	case CallStepNextKey:
		m.current = NextKey{Key: step.Key}
		return nil
	case CallStepStorageRoot:
		root := m.finalHeader.StateRoot
		nextStep, err := m.epoch.resume(root[:])
		if err != nil {
			return m.failPostVerification(newError(ErrorBabeFetchEpoch, err))
		}
		return m.applyCallStep(nextStep)
	case CallStepDone:
		return m.handleEpochDone(step.Output)
	}
	return nil
}

func (m *Machine) handleEpochDone(output []byte) error {
	epoch, err := decodeBabeEpoch(output)
	if err != nil {
		return m.failPostVerification(newError(ErrorBabeFetchEpoch, err))
	}

	if m.epoch.stage == epochStageCurrent {
		m.epoch.currentEpoch = epoch
		step, err := m.epoch.begin(m.vm, epochStageNext)
		if err != nil {
			return m.failPostVerification(newError(ErrorBabeFetchEpoch, err))
		}
		return m.applyCallStep(step)
	}

	// Both epochs resolved; assemble and validate.
	ci := ChainInformation{
		FinalizedBlockHeader: m.finalHeader,
		Finality:             m.finalFinality,
		Consensus: BabeConsensus{
			SlotsPerEpoch: m.anchor.Inner().Consensus.SlotsPerEpoch,
			CurrentEpoch:  m.epoch.currentEpoch,
			NextEpoch:     epoch,
		},
	}
	valid, err := ValidateChainInformation(ci)
	if err != nil {
		return m.failPostVerification(newError(ErrorInvalidChain, err))
	}

	m.current = Finished{Success: Success{
		ChainInformation: valid,
		Runtime:          m.vm,
		Sources:          m.sources.AllUserData(),
	}}
	return nil
}

// failPostVerification resets all post-verification progress and
// restarts source selection from scratch, returning err unchanged so
// callers can both observe the failure and keep driving the machine
// (spec §7).
func (m *Machine) failPostVerification(err error) error {
	m.postVerification = false
	m.lastAccepted = nil
	m.vm = nil
	m.epoch = nil
	m.hasCurrentSource = false
	m.startSourceSelection()
	return err
}

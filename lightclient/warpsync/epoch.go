package warpsync

import (
	"github.com/pkg/errors"

	"github.com/substrate-lite/lightnode/lightclient/scale"
)

// epochStage tracks which of the two runtime calls the machine is
// currently driving: BABE requires both the current and the next
// epoch before a ChainInformation can be assembled.
type epochStage int

const (
	epochStageCurrent epochStage = iota
	epochStageNext
)

// epochExtraction drives the two sequential BabeApi_* runtime calls
// needed to complete a warp-synced ChainInformation.
type epochExtraction struct {
	stage        epochStage
	call         CallInProgress
	currentEpoch BabeEpoch
}

func (e *epochExtraction) begin(vm VirtualMachine, stage epochStage) (CallStep, error) {
	method := "BabeApi_current_epoch"
	if stage == epochStageNext {
		method = "BabeApi_next_epoch"
	}
	call, err := vm.StartCall(method, nil)
	if err != nil {
		return CallStep{}, errors.Wrapf(err, "starting %s", method)
	}
	e.call = call
	e.stage = stage
	return call.Resume(nil)
}

func (e *epochExtraction) resume(value []byte) (CallStep, error) {
	return e.call.Resume(value)
}

// decodeBabeEpoch decodes the subset of a BabeApi_{current,next}_epoch
// result this light client acts on: the epoch index and start slot
// (both SCALE compact integers, §4.1), followed by a 32-byte
// randomness value. The full authority list is opaque to this
// package — ValidateChainInformation only inspects index/start-slot
// continuity, so it is not decoded further.
func decodeBabeEpoch(b []byte) (BabeEpoch, error) {
	epochIndex, n1, err := scale.DecodeCompact(b)
	if err != nil {
		return BabeEpoch{}, errors.Wrap(err, "decoding epoch index")
	}
	rest := b[n1:]
	startSlot, n2, err := scale.DecodeCompact(rest)
	if err != nil {
		return BabeEpoch{}, errors.Wrap(err, "decoding epoch start slot")
	}
	rest = rest[n2:]

	var randomness [32]byte
	if len(rest) >= 32 {
		copy(randomness[:], rest[:32])
	}

	return BabeEpoch{
		EpochIndex: epochIndex,
		StartSlot:  startSlot,
		Randomness: randomness,
	}, nil
}

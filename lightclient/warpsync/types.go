package warpsync

import "github.com/pkg/errors"

// Header is the minimal block header the warp-sync machine needs:
// enough to identify a block and locate its storage trie. The
// runtime-tracking components decode headers with the header package
// instead.
type Header struct {
	ParentHash [32]byte
	Number     uint64
	StateRoot  [32]byte
	Hash       [32]byte
}

// Authority is one GRANDPA voter: its public key and voting weight.
type Authority struct {
	PublicKey [32]byte
	Weight    uint64
}

// AuthoritySet describes the GRANDPA voters active after a given set
// id. It does not record the block at which the set became active.
type AuthoritySet struct {
	SetID      uint64
	Authorities []Authority
}

// Finality is the finality-related half of a ChainInformation: the
// current GRANDPA authority set.
type Finality struct {
	AfterFinalizedBlockAuthoritiesSetID uint64
	Authorities                         []Authority
}

// BabeEpoch carries the consensus parameters the runtime call
// `BabeApi_current_epoch` / `BabeApi_next_epoch` returns.
type BabeEpoch struct {
	EpochIndex     uint64
	StartSlot      uint64
	Authorities    []Authority
	Randomness     [32]byte
	C1, C2         uint64 // BABE constant ratio numerator/denominator
}

// BabeConsensus is the consensus half of a ChainInformation.
type BabeConsensus struct {
	SlotsPerEpoch uint64
	CurrentEpoch  BabeEpoch
	NextEpoch     BabeEpoch
}

// ChainInformation is the unvalidated description of a chain's
// finalized head produced by warp sync. It must be passed through
// ValidateChainInformation before being trusted.
type ChainInformation struct {
	FinalizedBlockHeader Header
	Finality             Finality
	Consensus            BabeConsensus
}

// ValidChainInformation wraps a ChainInformation that has passed
// ValidateChainInformation. The zero value is not valid; always
// construct through that function.
type ValidChainInformation struct {
	inner ChainInformation
}

// Inner returns the wrapped, validated chain information.
func (v ValidChainInformation) Inner() ChainInformation {
	return v.inner
}

// ErrMismatchedEpochs is returned when the current and next BABE
// epochs form an inconsistent sequence (next epoch does not
// immediately follow current, or slots-per-epoch disagree).
var ErrMismatchedEpochs = errors.New("warpsync: mismatched BABE epoch sequence")

// ValidateChainInformation is the only constructor of
// ValidChainInformation. It rejects a ChainInformation whose BABE
// epochs are inconsistent, per the invariant in spec §3.
func ValidateChainInformation(ci ChainInformation) (ValidChainInformation, error) {
	cur := ci.Consensus.CurrentEpoch
	next := ci.Consensus.NextEpoch
	if next.EpochIndex != cur.EpochIndex+1 {
		return ValidChainInformation{}, errors.Wrapf(ErrMismatchedEpochs,
			"next epoch index %d does not follow current epoch index %d", next.EpochIndex, cur.EpochIndex)
	}
	if ci.Consensus.SlotsPerEpoch == 0 {
		return ValidChainInformation{}, errors.Wrap(ErrMismatchedEpochs, "slots-per-epoch is zero")
	}
	if next.StartSlot != cur.StartSlot+ci.Consensus.SlotsPerEpoch {
		return ValidChainInformation{}, errors.Wrapf(ErrMismatchedEpochs,
			"next epoch start slot %d does not follow current epoch start slot %d by %d slots",
			next.StartSlot, cur.StartSlot, ci.Consensus.SlotsPerEpoch)
	}
	return ValidChainInformation{inner: ci}, nil
}

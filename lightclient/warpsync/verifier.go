package warpsync

import "github.com/pkg/errors"

// ErrFragmentVerification is wrapped around every rejection a
// fragmentVerifier produces. The batch is always discarded on this
// error; it is never fatal to the machine (spec §4.3, §7).
var ErrFragmentVerification = errors.New("warpsync: fragment verification failed")

// fragmentVerifier consumes one Fragment at a time, carrying the
// header/finality pair accepted so far within the current batch. It
// is seeded either from the trust anchor (first batch ever) or from
// the previously-accepted header/finality (subsequent batches).
type fragmentVerifier struct {
	sigVerifier SignatureVerifier

	queue []Fragment

	header   Header
	finality Finality

	isFinished bool
}

func newFragmentVerifier(sigVerifier SignatureVerifier, seedHeader Header, seedFinality Finality, fragments []Fragment, isFinished bool) *fragmentVerifier {
	return &fragmentVerifier{
		sigVerifier: sigVerifier,
		queue:       fragments,
		header:      seedHeader,
		finality:    seedFinality,
		isFinished:  isFinished,
	}
}

// verifierOutcomeKind tags what next() produced.
type verifierOutcomeKind int

const (
	verifierOutcomeInProgress verifierOutcomeKind = iota
	verifierOutcomeBatchComplete
	verifierOutcomeFailed
)

type verifierOutcome struct {
	kind     verifierOutcomeKind
	header   Header
	finality Finality
	err      error
}

// next consumes exactly one fragment from the queue (or reports the
// batch complete if the queue is already empty).
func (v *fragmentVerifier) next() verifierOutcome {
	if len(v.queue) == 0 {
		return verifierOutcome{kind: verifierOutcomeBatchComplete, header: v.header, finality: v.finality}
	}

	f := v.queue[0]

	previousAuthorities := AuthoritySet{
		SetID:       v.finality.AfterFinalizedBlockAuthoritiesSetID,
		Authorities: v.finality.Authorities,
	}
	if f.AuthoritySetChange.SetID != previousAuthorities.SetID+1 {
		return verifierOutcome{
			kind: verifierOutcomeFailed,
			err:  errors.Wrapf(ErrFragmentVerification, "fragment authority set id %d does not follow %d", f.AuthoritySetChange.SetID, previousAuthorities.SetID),
		}
	}
	if err := v.sigVerifier.VerifyFragment(f, previousAuthorities); err != nil {
		return verifierOutcome{kind: verifierOutcomeFailed, err: errors.Wrap(ErrFragmentVerification, err.Error())}
	}

	v.queue = v.queue[1:]
	v.header = f.Header
	v.finality = Finality{
		AfterFinalizedBlockAuthoritiesSetID: f.AuthoritySetChange.SetID,
		Authorities:                         f.AuthoritySetChange.Authorities,
	}

	if len(v.queue) == 0 {
		return verifierOutcome{kind: verifierOutcomeBatchComplete, header: v.header, finality: v.finality}
	}
	return verifierOutcome{kind: verifierOutcomeInProgress}
}

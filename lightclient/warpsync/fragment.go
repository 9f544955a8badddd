package warpsync

// Fragment is one GRANDPA warp-sync fragment: a finalized header, the
// authority-set change it carries, and the signatures of the
// previous authority set justifying that change.
type Fragment struct {
	Header                   Header
	AuthoritySetChange       AuthoritySet
	PreviousSetSignatures    [][]byte
}

// WarpSyncResponse is one batch of fragments pulled from a source,
// together with whether this batch is the last one needed to reach
// the warp-sync target.
type WarpSyncResponse struct {
	Fragments  []Fragment
	IsFinished bool
}

package runtimecache

// RuntimeVersion is the decoded result of a `Core_version` runtime
// call — the self-description every runtime exposes. SpecVersion is
// what the call executor uses for upgrade-race detection (spec
// glossary, SPEC_FULL supplemented feature 1).
type RuntimeVersion struct {
	SpecName           string
	ImplName           string
	AuthoringVersion   uint32
	SpecVersion        uint32
	ImplVersion        uint32
	TransactionVersion uint32
	APIs               []APIEntry
}

// APIEntry is one entry of a runtime version's advertised API list.
type APIEntry struct {
	Name    [8]byte
	Version uint32
}

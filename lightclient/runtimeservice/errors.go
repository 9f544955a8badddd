package runtimeservice

import (
	"errors"

	baseerrors "github.com/pkg/errors"
	"github.com/substrate-lite/lightnode/lightclient/syncservice"
)

// errMissingCode is stored as the cache's sentinel error when a block
// has no `:code` at all — absence of `:code` is always a failure
// condition (spec §6).
var errMissingCode = baseerrors.New("runtimeservice: block has no :code")

// isNetworkProblem classifies a storage-query failure the way spec §7
// does for call errors: a missing trie root most likely means the
// remote pruned the block, which is logged at debug rather than warn.
func isNetworkProblem(err error) bool {
	return errors.Is(err, syncservice.ErrTrieRootNotFound)
}

package runtimecache

import "github.com/pkg/errors"

// ErrNoSuccessfulRuntime is a generic build error a caller may hand
// to New or ReplaceRuntime: the latest known `:code`/`:heappages`
// pair failed to instantiate or its Core_version call failed, so
// there is currently no usable runtime. The cache returns whatever
// error it was given, so the tracking loop's own build errors are
// not wrapped in this one.
// The cache still remembers the failing code/heap-pages so it can
// recognize when the chain moves past the bad block without redoing
// the failed build on every poll.
var ErrNoSuccessfulRuntime = errors.New("runtimecache: no successful runtime for latest known code")

// errVMAlreadyCheckedOut guards against a double TakeVM, which would
// otherwise hand the same Prototype to two concurrent calls.
var errVMAlreadyCheckedOut = errors.New("runtimecache: VM already checked out by another call")

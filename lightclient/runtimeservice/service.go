// Package runtimeservice implements the runtime tracking loop (spec
// §4.5): it follows the sync service's best-block stream, debounces
// bursts of new heads, re-downloads `:code`/`:heappages` when they
// change, rebuilds the runtime, and keeps the shared cache's
// block/subscriber state current.
package runtimeservice

import (
	"context"
	"time"

	"github.com/paulbellamy/ratecounter"
	"github.com/pkg/errors"
	"github.com/substrate-lite/lightnode/lightclient/header"
	"github.com/substrate-lite/lightnode/lightclient/hostvm"
	"github.com/substrate-lite/lightnode/lightclient/runtimecache"
	"github.com/substrate-lite/lightnode/lightclient/scale"
	"github.com/substrate-lite/lightnode/lightclient/syncservice"
)

const (
	betweenDownloadsDelay = 3 * time.Second
	debounceDelay         = 500 * time.Millisecond
)

var codeKey = []byte(":code")
var heapPagesKey = []byte(":heappages")

// Service runs the tracking loop against a sync service, updating a
// shared runtimecache.Cache.
type Service struct {
	sync        syncservice.Service
	cache       *runtimecache.Cache
	instantiate hostvm.Instantiator
	execHint    hostvm.ExecHint

	// ingestionRate logs how many best blocks arrive per minute, for a
	// debug line only — it has no effect on control flow.
	ingestionRate *ratecounter.RateCounter

	// expectedMatches tracks whether the previous tick's :code/
	// :heappages matched the cache, so the first-ever mismatch (which
	// just reflects genesis priming, not a real upgrade) doesn't log
	// a spurious "new runtime" message.
	expectedMatches bool
}

// New builds a Service. cache must already hold the genesis runtime
// record (see runtimecache.New); Run drives it forward from there.
func New(sync syncservice.Service, cache *runtimecache.Cache, instantiate hostvm.Instantiator, execHint hostvm.ExecHint) *Service {
	return &Service{
		sync:          sync,
		cache:         cache,
		instantiate:   instantiate,
		execHint:      execHint,
		ingestionRate: ratecounter.NewRateCounter(time.Minute),
	}
}

// Run drives the tracking loop until ctx is cancelled or the
// best-block stream closes. It never returns an error for anything
// the loop itself considers non-fatal (spec §7: "errors inside the
// tracking loop are never fatal").
func (s *Service) Run(ctx context.Context) error {
	_, stream, err := s.sync.SubscribeBest(ctx)
	if err != nil {
		return errors.Wrap(err, "runtimeservice: subscribing to best blocks")
	}

	for {
		if err := sleep(ctx, betweenDownloadsDelay); err != nil {
			return err
		}

		headerBytes, ok, err := nextHeader(ctx, stream)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		if err := sleep(ctx, debounceDelay); err != nil {
			return err
		}
		headerBytes = drainLatest(stream, headerBytes)

		s.ingestionRate.Incr(1)
		log.WithField("blocks_per_minute", s.ingestionRate.Rate()).Debug("processing new best block")
		s.processHeader(headerBytes)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func nextHeader(ctx context.Context, stream <-chan []byte) ([]byte, bool, error) {
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case h, ok := <-stream:
		return h, ok, nil
	}
}

// drainLatest opportunistically pops every value already sitting on
// stream without waiting, keeping only the most recent — the
// "coalesce fork flapping" step. It is not a timer: it stops the
// instant stream has nothing ready.
func drainLatest(stream <-chan []byte, current []byte) []byte {
	for {
		select {
		case h, ok := <-stream:
			if !ok {
				return current
			}
			current = h
		default:
			return current
		}
	}
}

func (s *Service) processHeader(headerBytes []byte) {
	decoded, err := header.Decode(headerBytes)
	if err != nil {
		log.WithError(err).Warn("received an undecodable best block header")
		return
	}
	blockHash := header.HashFromSCALEEncoded(headerBytes)

	storageResults, storageErr := s.sync.StorageQuery(
		context.Background(), blockHash, decoded.StateRoot, [][]byte{codeKey, heapPagesKey},
	)

	nearHeadOfChain := s.sync.IsNearHeadOfChain()

	s.cache.Lock()
	defer s.cache.Unlock()

	s.cache.NotifyHeader(headerBytes)
	s.cache.SetNearHeadOfChain(nearHeadOfChain)

	if storageErr != nil {
		if isNetworkProblem(storageErr) {
			log.WithError(storageErr).Debug("failed to download :code/:heappages, likely a network problem")
		} else {
			log.WithError(storageErr).Warn("failed to download :code/:heappages")
		}
		return
	}

	code, heapPagesRaw := storageResults[0], storageResults[1]

	blockHeight := decoded.Number
	blockStateRoot := decoded.StateRoot

	s.cache.UpdateBlockInfo(blockHash, blockHeight, blockStateRoot)

	if s.cache.CodeMatches(code, heapPagesRaw) {
		s.expectedMatches = true
		return
	}

	if s.expectedMatches {
		log.Info("new runtime code detected, rebuilding")
	}
	s.expectedMatches = true

	if code == nil {
		s.cache.ReplaceRuntime(blockHash, blockHeight, blockStateRoot, code, heapPagesRaw, nil, errMissingCode)
		return
	}

	heapPages, err := scale.DecodeHeapPages(heapPagesRaw)
	if err != nil {
		s.cache.ReplaceRuntime(blockHash, blockHeight, blockStateRoot, code, heapPagesRaw, nil, errors.Wrap(err, "runtimeservice: decoding :heappages"))
		return
	}

	runtime, buildErr := runtimecache.BuildRuntime(s.instantiate, code, heapPages, s.execHint)
	s.cache.ReplaceRuntime(blockHash, blockHeight, blockStateRoot, code, heapPagesRaw, runtime, buildErr)
}

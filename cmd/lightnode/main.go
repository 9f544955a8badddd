// Package main launches a standalone light-client runtime coordinator:
// it tracks the runtime of a chain whose sync service is supplied by
// an embedder, and exposes a single manual runtime call on startup as
// a smoke test of the wiring.
package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/sirupsen/logrus"
	"github.com/substrate-lite/lightnode/lightclient/ffi"
	"github.com/substrate-lite/lightnode/lightclient/hostvm"
	"github.com/substrate-lite/lightnode/lightclient/runtimecache"
	"github.com/substrate-lite/lightnode/lightclient/runtimecall"
	"github.com/substrate-lite/lightnode/lightclient/runtimeservice"
	"github.com/urfave/cli/v2"
)

var log = logrus.WithField("prefix", "main")

var logLevelFlag = &cli.StringFlag{
	Name:  "log-level",
	Usage: "verbosity: trace, debug, info, warn, error",
	Value: "info",
}

var logFormatFlag = &cli.StringFlag{
	Name:  "log-format",
	Usage: "log output format: text, json",
	Value: "text",
}

var callMethodFlag = &cli.StringFlag{
	Name:  "smoke-test-method",
	Usage: "runtime entry point to call once at startup, as a wiring smoke test",
	Value: "Core_version",
}

func main() {
	app := &cli.App{
		Name:  "lightnode",
		Usage: "tracks a Substrate-style chain's runtime and answers runtime calls without full node state",
		Flags: []cli.Flag{logLevelFlag, logFormatFlag, callMethodFlag},
		Before: func(ctx *cli.Context) error {
			return configureLogging(ctx.String(logFormatFlag.Name), ctx.String(logLevelFlag.Name))
		},
		Action: run,
	}

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("panic: %v\n%s", r, string(debug.Stack()))
			panic(r)
		}
	}()

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Error("lightnode exited with an error")
		os.Exit(1)
	}
}

func configureLogging(format, level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logrus.SetLevel(lvl)

	switch format {
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}

func run(cliCtx *cli.Context) error {
	ctx, cancel := context.WithCancel(cliCtx.Context)
	defer cancel()

	genesisCode := []byte{}
	genesisHeapPages := []byte(nil)

	genesisRuntime, err := runtimecache.BuildRuntime(stubInstantiator, genesisCode, 0, hostvm.ExecHintInterpreted)
	if err != nil {
		return fmt.Errorf("building genesis runtime: %w", err)
	}

	var genesisHash, genesisStateRoot [32]byte
	cache := runtimecache.New(genesisHash, 0, genesisStateRoot, genesisCode, genesisHeapPages, genesisRuntime, nil)

	sync := &stubSyncService{genesisHeader: make([]byte, 97)}

	trackingService := runtimeservice.New(sync, cache, stubInstantiator, hostvm.ExecHintInterpreted)
	executor := runtimecall.New(cache, sync, noopProofVerifier{}, stubInstantiator, hostvm.ExecHintInterpreted)

	if err := ffi.Init(noopHost{}, nil); err != nil {
		return fmt.Errorf("initializing FFI boundary: %w", err)
	}

	trackingErrCh := make(chan error, 1)
	go func() { trackingErrCh <- trackingService.Run(ctx) }()

	method := cliCtx.String(callMethodFlag.Name)
	result, err := executor.RecentBestBlockRuntimeCall(ctx, method, nil)
	if err != nil {
		log.WithError(err).Warnf("smoke-test call to %s failed", method)
	} else {
		log.Infof("smoke-test call to %s returned %d bytes", method, len(result))
	}

	cancel()
	return <-trackingErrCh
}

type noopProofVerifier struct{}

func (noopProofVerifier) Get(proof [][]byte, stateRoot [32]byte, key []byte) ([]byte, bool, error) {
	return nil, false, nil
}

type noopHost struct{}

func (noopHost) Throw(message string)                            { log.Fatal(message) }
func (noopHost) JSONRPCRespond(response []byte, chainIndex, userData uint32) {}
func (noopHost) Log(level ffi.LogLevel, target, message string)   { log.Debug(message) }
func (noopHost) UnixTimeMs() float64                              { return 0 }
func (noopHost) MonotonicClockMs() float64                        { return 0 }
func (noopHost) StartTimer(id uint32, ms float64)                 {}
func (noopHost) ConnectionNew(id uint32, multiaddr string) error  { return nil }
func (noopHost) ConnectionClose(id uint32)                        {}
func (noopHost) ConnectionSend(id uint32, data []byte)            {}

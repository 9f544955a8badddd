package runtimeservice

import (
	"bytes"
	"context"
	"encoding/binary"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/substrate-lite/lightnode/lightclient/hostvm"
	"github.com/substrate-lite/lightnode/lightclient/runtimecache"
	"github.com/substrate-lite/lightnode/lightclient/syncservice/syncservicetest"
)

func encodeCompactSmall(v uint64) []byte {
	return []byte{byte(v << 2)}
}

func encodeSCALEStringSmall(s string) []byte {
	return append([]byte{byte(len(s) << 2)}, []byte(s)...)
}

func testHeader(parentHash, stateRoot [32]byte, number uint64) []byte {
	buf := append([]byte{}, parentHash[:]...)
	buf = append(buf, encodeCompactSmall(number)...)
	buf = append(buf, stateRoot[:]...)
	buf = append(buf, [32]byte{}[:]...) // extrinsics root
	return buf
}

func encodeVersion(specVersion uint32) []byte {
	buf := encodeSCALEStringSmall("westend")
	buf = append(buf, encodeSCALEStringSmall("x")...)
	u32 := make([]byte, 4)
	buf = append(buf, u32...) // authoring version
	binary.LittleEndian.PutUint32(u32, specVersion)
	buf = append(buf, u32...)
	buf = append(buf, make([]byte, 4)...) // impl version
	buf = append(buf, 0)                  // zero apis
	buf = append(buf, make([]byte, 4)...) // transaction version
	return buf
}

type fakeCall struct{ output []byte }

func (f *fakeCall) Resume([]byte) (hostvm.CallStep, error) {
	return hostvm.CallStep{Kind: hostvm.CallStepDone, Output: f.output}, nil
}

type fakeVM struct{ specVersion uint32 }

func (f fakeVM) StartCall(method string, params []byte) (hostvm.CallInProgress, error) {
	return &fakeCall{output: encodeVersion(f.specVersion)}, nil
}

func instantiatorFor(specVersion uint32) hostvm.Instantiator {
	return func(code []byte, heapPages uint64, hint hostvm.ExecHint) (hostvm.Prototype, error) {
		return fakeVM{specVersion: specVersion}, nil
	}
}

func TestTrackingLoopNoChangeNoNotify(t *testing.T) {
	stateRoot := [32]byte{1}
	genesisHeader := testHeader([32]byte{}, stateRoot, 0)

	sync := syncservicetest.New(genesisHeader)
	sync.SetStorage(stateRoot, codeKey, []byte("code-v9"))
	sync.SetStorage(stateRoot, heapPagesKey, nil)

	cache := runtimecache.New([32]byte{}, 0, stateRoot, []byte("code-v9"), nil, &runtimecache.SuccessfulRuntime{
		Version: runtimecache.RuntimeVersion{SpecVersion: 9},
	}, nil)

	svc := New(sync, cache, instantiatorFor(9), hostvm.ExecHintInterpreted)

	cache.Lock()
	versionSub := cache.SubscribeVersion()
	<-versionSub.C() // drain initial delivery
	headerSub := cache.SubscribeHeader()
	cache.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	sameBlockHeader := testHeader([32]byte(genesisHeader[:32]), stateRoot, 1)
	time.AfterFunc(10*time.Millisecond, func() { sync.PushHeader(sameBlockHeader) })

	select {
	case update := <-headerSub.C():
		assert.Equal(t, sameBlockHeader, update.HeaderBytes)
	case <-time.After(6 * time.Second):
		t.Fatal("timed out waiting for header notification")
	}

	select {
	case <-versionSub.C():
		t.Fatal("expected no version notification when code/heappages are unchanged")
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestTrackingLoopUpgradeDetection(t *testing.T) {
	stateRootV9 := [32]byte{1}
	stateRootV10 := [32]byte{2}
	genesisHeader := testHeader([32]byte{}, stateRootV9, 0)

	sync := syncservicetest.New(genesisHeader)
	sync.SetStorage(stateRootV9, codeKey, []byte("code-v9"))
	sync.SetStorage(stateRootV10, codeKey, []byte("code-v10"))

	cache := runtimecache.New([32]byte{}, 0, stateRootV9, []byte("code-v9"), nil, &runtimecache.SuccessfulRuntime{
		Version: runtimecache.RuntimeVersion{SpecVersion: 9},
	}, nil)

	svc := New(sync, cache, instantiatorFor(10), hostvm.ExecHintInterpreted)

	cache.Lock()
	versionSub := cache.SubscribeVersion()
	<-versionSub.C()
	cache.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	upgradeHeader := testHeader([32]byte(genesisHeader[:32]), stateRootV10, 1)
	time.AfterFunc(10*time.Millisecond, func() { sync.PushHeader(upgradeHeader) })

	select {
	case update := <-versionSub.C():
		require.NotNil(t, update.Version)
		assert.Equal(t, uint32(10), update.Version.SpecVersion)
	case <-time.After(6 * time.Second):
		t.Fatal("timed out waiting for version notification")
	}
}

// TestTrackingLoopConsecutiveUpgradesBothLog drives two real upgrades
// back-to-back (v9 -> v10 -> v11, after an initial same-block tick
// that establishes expectedMatches). Both transitions must log "new
// runtime code detected" and leave expectedMatches true: a version
// that resets the flag to false after the first upgrade would
// silently suppress the second transition's log.
func TestTrackingLoopConsecutiveUpgradesBothLog(t *testing.T) {
	stateRootV9 := [32]byte{1}
	stateRootV10 := [32]byte{2}
	stateRootV11 := [32]byte{3}
	genesisHeader := testHeader([32]byte{}, stateRootV9, 0)

	sync := syncservicetest.New(genesisHeader)
	sync.SetStorage(stateRootV9, codeKey, []byte("code-v9"))
	sync.SetStorage(stateRootV10, codeKey, []byte("code-v10"))
	sync.SetStorage(stateRootV11, codeKey, []byte("code-v11"))

	cache := runtimecache.New([32]byte{}, 0, stateRootV9, []byte("code-v9"), nil, &runtimecache.SuccessfulRuntime{
		Version: runtimecache.RuntimeVersion{SpecVersion: 9},
	}, nil)

	instantiate := func(code []byte, heapPages uint64, hint hostvm.ExecHint) (hostvm.Prototype, error) {
		switch string(code) {
		case "code-v10":
			return fakeVM{specVersion: 10}, nil
		case "code-v11":
			return fakeVM{specVersion: 11}, nil
		default:
			return fakeVM{specVersion: 9}, nil
		}
	}

	svc := New(sync, cache, instantiate, hostvm.ExecHintInterpreted)

	var logBuf bytes.Buffer
	previousOutput := logrus.StandardLogger().Out
	previousLevel := logrus.GetLevel()
	logrus.SetOutput(&logBuf)
	logrus.SetLevel(logrus.InfoLevel)
	defer func() {
		logrus.SetOutput(previousOutput)
		logrus.SetLevel(previousLevel)
	}()

	cache.Lock()
	versionSub := cache.SubscribeVersion()
	<-versionSub.C()
	cache.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	// Same-block tick: primes expectedMatches to true without logging.
	sameBlockHeader := testHeader([32]byte{}, stateRootV9, 1)
	time.AfterFunc(10*time.Millisecond, func() { sync.PushHeader(sameBlockHeader) })

	select {
	case <-versionSub.C():
		t.Fatal("expected no version notification from the priming tick")
	case <-time.After(4 * time.Second):
	}

	upgradeToV10 := testHeader([32]byte{}, stateRootV10, 2)
	time.AfterFunc(10*time.Millisecond, func() { sync.PushHeader(upgradeToV10) })

	select {
	case update := <-versionSub.C():
		require.NotNil(t, update.Version)
		assert.Equal(t, uint32(10), update.Version.SpecVersion)
	case <-time.After(6 * time.Second):
		t.Fatal("timed out waiting for v9 -> v10 version notification")
	}

	upgradeToV11 := testHeader([32]byte{}, stateRootV11, 3)
	time.AfterFunc(10*time.Millisecond, func() { sync.PushHeader(upgradeToV11) })

	select {
	case update := <-versionSub.C():
		require.NotNil(t, update.Version)
		assert.Equal(t, uint32(11), update.Version.SpecVersion)
	case <-time.After(6 * time.Second):
		t.Fatal("timed out waiting for v10 -> v11 version notification")
	}

	assert.Equal(t, 2, strings.Count(logBuf.String(), "new runtime code detected"),
		"both consecutive upgrades must log \"new runtime code detected\"")
}

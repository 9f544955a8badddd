package runtimecache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/substrate-lite/lightnode/lightclient/hostvm"
)

type fakeVM struct{}

func (fakeVM) StartCall(method string, params []byte) (hostvm.CallInProgress, error) {
	panic("unused in these tests")
}

func newTestRuntime(specVersion uint32) *SuccessfulRuntime {
	return &SuccessfulRuntime{
		Version: RuntimeVersion{SpecName: "westend", SpecVersion: specVersion},
	}
}

func TestCacheCurrentVersionSuccess(t *testing.T) {
	c := New([32]byte{1}, 1, [32]byte{2}, []byte("code"), []byte{0x00}, newTestRuntime(9), nil)
	c.Lock()
	defer c.Unlock()

	v, err := c.CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, uint32(9), v.SpecVersion)
}

func TestCacheCurrentVersionFailure(t *testing.T) {
	c := New([32]byte{1}, 1, [32]byte{2}, []byte("bad code"), nil, nil, ErrNoSuccessfulRuntime)
	c.Lock()
	defer c.Unlock()

	_, err := c.CurrentVersion()
	assert.ErrorIs(t, err, ErrNoSuccessfulRuntime)
}

func TestCacheCodeMatches(t *testing.T) {
	c := New([32]byte{1}, 1, [32]byte{2}, []byte("code"), []byte{0x00}, newTestRuntime(9), nil)
	c.Lock()
	defer c.Unlock()

	assert.True(t, c.CodeMatches([]byte("code"), []byte{0x00}))
	assert.False(t, c.CodeMatches([]byte("other"), []byte{0x00}))
}

func TestCacheReplaceRuntimeNotifiesOnVersionChange(t *testing.T) {
	c := New([32]byte{1}, 1, [32]byte{2}, []byte("code-v9"), nil, newTestRuntime(9), nil)
	c.Lock()
	sub := c.SubscribeVersion()
	// draining the immediate current-value delivery from subscribe.
	<-sub.C()
	c.Unlock()

	c.Lock()
	c.ReplaceRuntime([32]byte{3}, 2, [32]byte{4}, []byte("code-v10"), nil, newTestRuntime(10), nil)
	c.Unlock()

	update := <-sub.C()
	require.NotNil(t, update.Version)
	assert.Equal(t, uint32(10), update.Version.SpecVersion)
}

func TestCacheReplaceRuntimeNotifiesEvenWhenVersionUnchanged(t *testing.T) {
	c := New([32]byte{1}, 1, [32]byte{2}, []byte("code-v9"), nil, newTestRuntime(9), nil)
	c.Lock()
	sub := c.SubscribeVersion()
	<-sub.C() // drain initial delivery
	c.ReplaceRuntime([32]byte{3}, 2, [32]byte{4}, []byte("code-v9-again"), nil, newTestRuntime(9), nil)
	c.Unlock()

	update := <-sub.C()
	require.NotNil(t, update.Version)
	assert.Equal(t, uint32(9), update.Version.SpecVersion)
}

func TestCacheReplaceRuntimeFailureNotifiesError(t *testing.T) {
	c := New([32]byte{1}, 1, [32]byte{2}, []byte("code-v9"), nil, newTestRuntime(9), nil)
	c.Lock()
	sub := c.SubscribeVersion()
	<-sub.C()
	c.ReplaceRuntime([32]byte{3}, 2, [32]byte{4}, []byte("bad"), nil, nil, ErrNoSuccessfulRuntime)
	c.Unlock()

	update := <-sub.C()
	assert.Nil(t, update.Version)
	assert.ErrorIs(t, update.Err, ErrNoSuccessfulRuntime)

	_, err := c.CurrentVersion()
	assert.ErrorIs(t, err, ErrNoSuccessfulRuntime)
}

func TestCacheUnsubscribeDropsOnNextNotify(t *testing.T) {
	c := New([32]byte{1}, 1, [32]byte{2}, []byte("code"), nil, newTestRuntime(9), nil)
	c.Lock()
	sub := c.SubscribeHeader()
	assert.Len(t, c.headerSubs, 1)
	c.Unlock()

	sub.Unsubscribe()

	c.Lock()
	c.NotifyHeader([]byte("header"))
	assert.Len(t, c.headerSubs, 0)
	c.Unlock()
}

func TestCacheTakeAndRestoreVM(t *testing.T) {
	runtime := newTestRuntime(9)
	runtime.VM = fakeVM{}
	c := New([32]byte{1}, 1, [32]byte{2}, []byte("code"), nil, runtime, nil)
	c.Lock()

	vm, err := c.TakeVM()
	require.NoError(t, err)
	require.NotNil(t, vm)

	_, err = c.TakeVM()
	assert.ErrorIs(t, err, errVMAlreadyCheckedOut)

	c.RestoreVM(runtime, vm)
	c.Unlock()

	c.Lock()
	defer c.Unlock()
	vm2, err := c.TakeVM()
	require.NoError(t, err)
	assert.NotNil(t, vm2)
}

package runtimecache

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/substrate-lite/lightnode/lightclient/hostvm"
)

func encodeSCALEStringForTest(s string) []byte {
	if len(s) >= 64 {
		panic("test helper only supports short strings")
	}
	return append([]byte{byte(len(s) << 2)}, []byte(s)...)
}

func encodeRuntimeVersionForTest(v RuntimeVersion) []byte {
	buf := encodeSCALEStringForTest(v.SpecName)
	buf = append(buf, encodeSCALEStringForTest(v.ImplName)...)
	u32 := make([]byte, 4)
	binary.LittleEndian.PutUint32(u32, v.AuthoringVersion)
	buf = append(buf, u32...)
	binary.LittleEndian.PutUint32(u32, v.SpecVersion)
	buf = append(buf, u32...)
	binary.LittleEndian.PutUint32(u32, v.ImplVersion)
	buf = append(buf, u32...)

	buf = append(buf, byte(len(v.APIs)<<2))
	for _, e := range v.APIs {
		buf = append(buf, e.Name[:]...)
		binary.LittleEndian.PutUint32(u32, e.Version)
		buf = append(buf, u32...)
	}

	binary.LittleEndian.PutUint32(u32, v.TransactionVersion)
	buf = append(buf, u32...)
	return buf
}

func TestDecodeRuntimeVersionRoundTrip(t *testing.T) {
	want := RuntimeVersion{
		SpecName:           "westend",
		ImplName:           "parity-westend",
		AuthoringVersion:   1,
		SpecVersion:        9280,
		ImplVersion:        0,
		TransactionVersion: 12,
		APIs: []APIEntry{
			{Name: [8]byte{'c', 'o', 'r', 'e', '_', 'v', 'e', 'r'}, Version: 4},
		},
	}

	got, err := decodeRuntimeVersion(encodeRuntimeVersionForTest(want))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

type fakeCallInProgress struct {
	output []byte
}

func (f *fakeCallInProgress) Resume(value []byte) (hostvm.CallStep, error) {
	return hostvm.CallStep{Kind: hostvm.CallStepDone, Output: f.output}, nil
}

type fakeInstantiatedVM struct {
	output []byte
}

func (f fakeInstantiatedVM) StartCall(method string, params []byte) (hostvm.CallInProgress, error) {
	return &fakeCallInProgress{output: f.output}, nil
}

func TestBuildRuntimeDecodesVersionFromCoreVersionCall(t *testing.T) {
	want := RuntimeVersion{SpecName: "westend", ImplName: "x", SpecVersion: 5}
	encoded := encodeRuntimeVersionForTest(want)

	instantiate := func(code []byte, heapPages uint64, hint hostvm.ExecHint) (hostvm.Prototype, error) {
		return fakeInstantiatedVM{output: encoded}, nil
	}

	runtime, err := BuildRuntime(instantiate, []byte("code"), 0, hostvm.ExecHintInterpreted)
	require.NoError(t, err)
	assert.Equal(t, want, runtime.Version)
	assert.NotNil(t, runtime.VM)
}

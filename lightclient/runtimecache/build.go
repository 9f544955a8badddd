package runtimecache

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/substrate-lite/lightnode/lightclient/hostvm"
	"github.com/substrate-lite/lightnode/lightclient/scale"
)

// ErrUnsupportedCallStep is returned when Core_version (or another
// call driven through BuildRuntime) asks for trie storage. The
// version call is self-contained; if a runtime ever needs storage to
// answer it, this simple driver can't help and the caller should
// treat the build as failed.
var ErrUnsupportedCallStep = errors.New("runtimecache: call requested trie storage it shouldn't need")

// BuildRuntime instantiates a VM from code/heapPages and calls
// Core_version to populate a SuccessfulRuntime. Matches spec §4.5
// step 12's "rebuild via SuccessfulRuntime::from_params" and §3's
// description of a SuccessfulRuntime as VM + decoded version.
func BuildRuntime(instantiate hostvm.Instantiator, code []byte, heapPages uint64, hint hostvm.ExecHint) (*SuccessfulRuntime, error) {
	vm, err := instantiate(code, heapPages, hint)
	if err != nil {
		return nil, errors.Wrap(err, "runtimecache: instantiating VM")
	}

	call, err := vm.StartCall("Core_version", nil)
	if err != nil {
		return nil, errors.Wrap(err, "runtimecache: starting Core_version call")
	}

	var output []byte
	var resumeValue []byte
	for {
		step, err := call.Resume(resumeValue)
		if err != nil {
			return nil, errors.Wrap(err, "runtimecache: Core_version call")
		}
		switch step.Kind {
		case hostvm.CallStepDone:
			output = step.Output
		case hostvm.CallStepStorageGet, hostvm.CallStepNextKey, hostvm.CallStepStorageRoot:
			return nil, ErrUnsupportedCallStep
		}
		if step.Kind == hostvm.CallStepDone {
			break
		}
	}

	version, err := decodeRuntimeVersion(output)
	if err != nil {
		return nil, errors.Wrap(err, "runtimecache: decoding Core_version result")
	}

	return &SuccessfulRuntime{VM: vm, Version: version}, nil
}

func decodeSCALEString(b []byte) (string, int, error) {
	length, n, err := scale.DecodeCompact(b)
	if err != nil {
		return "", 0, errors.Wrap(err, "decoding string length")
	}
	b = b[n:]
	if uint64(len(b)) < length {
		return "", 0, errors.New("decoding string: truncated")
	}
	return string(b[:length]), n + int(length), nil
}

func decodeRuntimeVersion(b []byte) (RuntimeVersion, error) {
	var v RuntimeVersion

	specName, n, err := decodeSCALEString(b)
	if err != nil {
		return v, errors.Wrap(err, "spec_name")
	}
	v.SpecName = specName
	b = b[n:]

	implName, n, err := decodeSCALEString(b)
	if err != nil {
		return v, errors.Wrap(err, "impl_name")
	}
	v.ImplName = implName
	b = b[n:]

	if len(b) < 12 {
		return v, errors.New("decoding runtime version: truncated authoring/spec/impl version")
	}
	v.AuthoringVersion = binary.LittleEndian.Uint32(b[0:4])
	v.SpecVersion = binary.LittleEndian.Uint32(b[4:8])
	v.ImplVersion = binary.LittleEndian.Uint32(b[8:12])
	b = b[12:]

	apiCount, n, err := scale.DecodeCompact(b)
	if err != nil {
		return v, errors.Wrap(err, "apis length")
	}
	b = b[n:]

	v.APIs = make([]APIEntry, 0, apiCount)
	for i := uint64(0); i < apiCount; i++ {
		if len(b) < 12 {
			return v, errors.New("decoding runtime version: truncated api entry")
		}
		var entry APIEntry
		copy(entry.Name[:], b[:8])
		entry.Version = binary.LittleEndian.Uint32(b[8:12])
		v.APIs = append(v.APIs, entry)
		b = b[12:]
	}

	if len(b) < 4 {
		return v, errors.New("decoding runtime version: truncated transaction_version")
	}
	v.TransactionVersion = binary.LittleEndian.Uint32(b[0:4])

	return v, nil
}

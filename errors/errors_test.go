package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			assert.Equal(t, test.expected, test.class.String())
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection timeout", ErrConnectionTimeout, true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"timeout in message", fmt.Errorf("operation timeout occurred"), true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, false},
		{"io helper", IO(fmt.Errorf("disk"), "Handler", "Get", "read"), true},
		{"deserialization helper", Deserialization(fmt.Errorf("bad"), "Codec", "Decode", "parse"), false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, IsTransient(test.err))
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorInvalid, Classify(UnsupportedReference("FileHandler", "GetFile", "s3://x")))
	assert.Equal(t, ErrorFatal, Classify(TransformFailure(fmt.Errorf("exit 1"), "Worker", "Transform", "run")))
	assert.Equal(t, ErrorTransient, Classify(Messaging(fmt.Errorf("no responders"), "Component", "publish", "send")))
	assert.Equal(t, ErrorInvalid, Classify(ErrDeserialization))
	assert.Equal(t, ErrorFatal, Classify(ErrMissingConfig))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "c", "m", "a"))
	assert.Nil(t, WrapTransient(nil, "c", "m", "a"))
	assert.Nil(t, IO(nil, "c", "m", "a"))

	cause := fmt.Errorf("boom")
	err := Wrap(cause, "FileHandler", "PutFile", "copy")
	assert.Equal(t, "FileHandler.PutFile: copy failed: boom", err.Error())
	assert.True(t, errors.Is(err, cause))
}

func TestKind(t *testing.T) {
	cause := fmt.Errorf("permission denied")

	tests := []struct {
		name string
		err  error
		kind string
	}{
		{"nil", nil, ""},
		{"unsupported", UnsupportedReference("FileHandler", "GetFile", "objectstore://b/k"), KindUnsupportedReference},
		{"io", IO(cause, "FileHandler", "Delete", "remove"), KindIO},
		{"deserialization", Deserialization(cause, "Codec", "Decode", "parse"), KindDeserialization},
		{"algorithm", AlgorithmUnsupported("DigestWorker", "GenerateHashes", "CRC7"), KindAlgorithmUnsupported},
		{"transform", TransformFailure(cause, "FFmpegWorker", "Transform", "run ffmpeg"), KindTransformFailure},
		{"messaging", Messaging(cause, "Component", "publish", "send reply"), KindMessaging},
		{"plain", cause, KindUnknown},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.kind, Kind(test.err))
		})
	}
}

func TestWithKind_PreservesCause(t *testing.T) {
	cause := fmt.Errorf("no space left")
	err := WithKind(ErrIO, cause)

	require.True(t, errors.Is(err, ErrIO))
	require.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "no space left")

	// Re-marking with the same kind does not nest.
	assert.Same(t, err, WithKind(ErrIO, err))
}

func TestSentinel(t *testing.T) {
	for _, kind := range []string{KindIO, KindMessaging, KindTransformFailure} {
		sentinel := Sentinel(kind)
		require.NotNil(t, sentinel, kind)
		assert.Equal(t, kind, Kind(sentinel))
	}
	assert.Nil(t, Sentinel(KindUnknown))
	assert.Nil(t, Sentinel("Nope"))
}

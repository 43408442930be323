package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(42).String())
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
		invalid   bool
		fatal     bool
	}{
		{name: "nil"},
		{name: "shutting down", err: ErrShuttingDown, transient: true},
		{name: "failed to schedule", err: ErrTaskFailedToSchedule, transient: true},
		{name: "read failed", err: fmt.Errorf("%w: %w", ErrReadFailed, io.ErrUnexpectedEOF), transient: true},
		{name: "context canceled", err: context.Canceled, transient: true},
		{name: "deadline", err: context.DeadlineExceeded, transient: true},
		{name: "busy in message", err: errors.New("device busy"), transient: true},
		{name: "no reader", err: ErrNoReader, invalid: true},
		{name: "nil processor", err: ErrNilProcessor, invalid: true},
		{name: "pump busy sentinel", err: ErrPumpBusy, invalid: true},
		{name: "site mismatch", err: ErrSiteMismatch, invalid: true},
		{name: "invalid format", err: ErrInvalidFormat, invalid: true},
		{name: "consistency fault", err: &ConsistencyFault{Component: "capability", Operation: "Query"}, fatal: true},
		{name: "wrapped consistency fault", err: fmt.Errorf("outer: %w", &ConsistencyFault{}), fatal: true},
		{name: "data corrupted", err: ErrDataCorrupted, fatal: true},
		{name: "plain", err: errors.New("something odd")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.fatal, IsFatal(tt.err), "fatal")
			assert.Equal(t, tt.invalid, IsInvalid(tt.err), "invalid")
			if !tt.fatal && !tt.invalid {
				assert.Equal(t, tt.transient, IsTransient(tt.err), "transient")
			}
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorTransient, Classify(nil))
	assert.Equal(t, ErrorTransient, Classify(ErrShuttingDown))
	assert.Equal(t, ErrorInvalid, Classify(WrapInvalid(ErrNoReader, "AudioPump", "Start", "reader check")))
	assert.Equal(t, ErrorFatal, Classify(&ConsistencyFault{}))

	// An explicit class wins over the sentinel it wraps.
	assert.Equal(t, ErrorTransient, Classify(WrapTransient(ErrPumpBusy, "Session", "Start", "retry later")))
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap(nil, "AudioPump", "Start", "reader check"))

	err := Wrap(ErrNoReader, "AudioPump", "Start", "reader check")
	assert.EqualError(t, err, "AudioPump.Start: reader check failed: no audio reader attached")
	assert.ErrorIs(t, err, ErrNoReader)
}

func TestWrapClassified(t *testing.T) {
	tests := []struct {
		wrap  func(error, string, string, string) error
		class ErrorClass
	}{
		{WrapTransient, ErrorTransient},
		{WrapInvalid, ErrorInvalid},
		{WrapFatal, ErrorFatal},
	}

	for _, tt := range tests {
		t.Run(tt.class.String(), func(t *testing.T) {
			assert.NoError(t, tt.wrap(nil, "c", "m", "a"))

			err := tt.wrap(ErrReadFailed, "AudioPump", "slice", "read audio")
			var ce *ClassifiedError
			require.True(t, As(err, &ce))
			assert.Equal(t, tt.class, ce.Class)
			assert.Equal(t, "AudioPump", ce.Component)
			assert.Equal(t, "slice", ce.Operation)
			assert.Equal(t, "AudioPump.slice: read audio failed: audio read failed", err.Error())
			assert.True(t, Is(err, ErrReadFailed))
		})
	}
}

func TestClassifiedError_NoMessage(t *testing.T) {
	ce := newClassified(ErrorTransient, ErrShuttingDown, "ThreadService", "Stop", "")
	assert.Equal(t, ErrShuttingDown.Error(), ce.Error())
	assert.ErrorIs(t, ce, ErrShuttingDown)
}

func TestFail(t *testing.T) {
	defer func() {
		cf, ok := recover().(*ConsistencyFault)
		require.True(t, ok)
		assert.Equal(t, "capability.Query: consistency fault: paths disagree for x", cf.Error())
		assert.True(t, IsFatal(cf))
	}()
	Fail("capability", "Query", "paths disagree for %s", "x")
}

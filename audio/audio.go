package audio

import (
	"fmt"
	"time"

	"github.com/c360/speechcore/capability"
)

// Source produces audio. Read returning 0 bytes with a nil error, or io.EOF,
// signals end of stream.
type Source interface {
	Format() Format
	Read(buf []byte) (int, error)
	Close() error
}

// Processor consumes audio. SetFormat(nil) signals end of input.
type Processor interface {
	SetFormat(format *Format)
	ProcessAudio(chunk Chunk)
}

// RealTimeInit is implemented by sources that can pace reads to play time.
type RealTimeInit interface {
	SetRealTimePercentage(percentage uint8)
}

var (
	SourceName       = capability.Define[Source]("AudioStreamReader")
	ProcessorName    = capability.Define[Processor]("AudioProcessor")
	RealTimeInitName = capability.Define[RealTimeInit]("AudioStreamInitRealTime")
)

// Chunk is one block of audio handed to a processor. Data is owned by the
// receiver.
type Chunk struct {
	Data     []byte
	Received time.Time
}

// CancellationReason says why processing ended.
type CancellationReason int

const (
	ReasonNone CancellationReason = iota
	ReasonError
	ReasonEndOfStream
	ReasonCancelledByUser
)

func (r CancellationReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonError:
		return "error"
	case ReasonEndOfStream:
		return "end_of_stream"
	case ReasonCancelledByUser:
		return "cancelled_by_user"
	default:
		return "unknown"
	}
}

// ErrorCode classifies an error reported through a site.
type ErrorCode int

const (
	CodeNoError ErrorCode = iota
	CodeAuthenticationFailure
	CodeBadRequest
	CodeTooManyRequests
	CodeForbidden
	CodeConnectionFailure
	CodeServiceTimeout
	CodeServiceError
	CodeServiceUnavailable
	CodeRuntimeError
)

var codeNames = [...]string{
	"no_error", "authentication_failure", "bad_request", "too_many_requests", "forbidden",
	"connection_failure", "service_timeout", "service_error", "service_unavailable", "runtime_error",
}

func (c ErrorCode) String() string {
	if c < 0 || int(c) >= len(codeNames) {
		return "unknown"
	}
	return codeNames[c]
}

// ErrorInfo is the payload of a site error report.
type ErrorInfo struct {
	IsTransportError bool               `json:"is_transport_error"`
	Reason           CancellationReason `json:"reason"`
	Code             ErrorCode          `json:"code"`
	Detail           string             `json:"detail"`
}

// Error implements the error interface.
func (e ErrorInfo) Error() string {
	kind := "logic"
	if e.IsTransportError {
		kind = "transport"
	}
	return fmt.Sprintf("%s error (%s, %s): %s", kind, e.Reason, e.Code, e.Detail)
}

// RuntimeError builds the ErrorInfo for a runtime fault during streaming.
func RuntimeError(err error) ErrorInfo {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	return ErrorInfo{
		IsTransportError: false,
		Reason:           ReasonError,
		Code:             CodeRuntimeError,
		Detail:           detail,
	}
}

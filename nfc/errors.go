package nfc

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a specific type of NFC error for programmatic handling.
type ErrorCode int

const (
	// Tag operation errors (100-199)
	ErrCodeNotSupported ErrorCode = iota + 100
	ErrCodeTagRemoved
	ErrCodeAuthFailed
	ErrCodeReadFailed
	ErrCodeInvalidData
)

const (
	// Device errors (200-299)
	ErrCodeNoDevice ErrorCode = iota + 200
	ErrCodeDeviceOpen
	ErrCodeDeviceIO
)

// NFCError provides structured error information for programmatic handling.
type NFCError struct {
	Code    ErrorCode
	Op      string // Operation that failed (e.g., "ReadNDEF", "OpenDevice")
	TagUID  string // Optional: UID of tag involved
	Message string // Human-readable message
	Cause   error  // Underlying error
}

func (e *NFCError) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	if e.TagUID != "" {
		sb.WriteString(" (tag ")
		sb.WriteString(e.TagUID)
		sb.WriteString(")")
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *NFCError) Unwrap() error {
	return e.Cause
}

func (e *NFCError) Is(target error) bool {
	if t, ok := target.(*NFCError); ok {
		return e.Code == t.Code
	}
	return false
}

// NewNotSupportedError creates an error for unsupported operations.
func NewNotSupportedError(op string) *NFCError {
	return &NFCError{
		Code:    ErrCodeNotSupported,
		Op:      op,
		Message: "operation not supported",
	}
}

// NewTagRemovedError creates an error for when a tag leaves the field mid-operation.
func NewTagRemovedError(op string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeTagRemoved,
		Op:      op,
		Message: "tag removed during operation",
		Cause:   cause,
	}
}

// NewAuthError creates an error for authentication failures.
func NewAuthError(op, tagUID string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeAuthFailed,
		Op:      op,
		TagUID:  tagUID,
		Message: "authentication failed",
		Cause:   cause,
	}
}

// NewReadError creates an error for read failures.
func NewReadError(op, tagUID string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeReadFailed,
		Op:      op,
		TagUID:  tagUID,
		Message: "read failed",
		Cause:   cause,
	}
}

// NewInvalidDataError creates an error for malformed tag content.
func NewInvalidDataError(op, format string, args ...any) *NFCError {
	return &NFCError{
		Code:    ErrCodeInvalidData,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewNoDeviceError creates an error for when no reader is attached.
func NewNoDeviceError(op string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeNoDevice,
		Op:      op,
		Message: "no NFC device found",
		Cause:   cause,
	}
}

// NewDeviceOpenError creates an error for readers that cannot be opened or initialised.
func NewDeviceOpenError(op, device string, cause error) *NFCError {
	msg := "failed to open device"
	if device != "" {
		msg += " " + device
	}
	return &NFCError{
		Code:    ErrCodeDeviceOpen,
		Op:      op,
		Message: msg,
		Cause:   cause,
	}
}

// NewDeviceIOError creates an error for communication failures with a reader.
func NewDeviceIOError(op string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeDeviceIO,
		Op:      op,
		Message: "device I/O error",
		Cause:   cause,
	}
}

// GetErrorCode extracts the ErrorCode from an error if it's an NFCError.
// Returns 0 if the error is not an NFCError.
func GetErrorCode(err error) ErrorCode {
	var nfcErr *NFCError
	if errors.As(err, &nfcErr) {
		return nfcErr.Code
	}
	return 0
}

// IsNotSupportedError checks if an error indicates an unsupported operation.
func IsNotSupportedError(err error) bool {
	return GetErrorCode(err) == ErrCodeNotSupported
}

// IsTagRemovedError checks if an error indicates the tag was removed.
func IsTagRemovedError(err error) bool {
	if err == nil {
		return false
	}
	if GetErrorCode(err) == ErrCodeTagRemoved {
		return true
	}
	// libnfc reports removal through its own error strings
	errStr := err.Error()
	return strings.Contains(errStr, "tag removed") ||
		strings.Contains(errStr, "Target was removed") ||
		strings.Contains(errStr, "RF Transmission Error")
}

// IsDeviceError reports whether err means the reader itself is unusable
// and must be reopened.
func IsDeviceError(err error) bool {
	if err == nil {
		return false
	}
	switch GetErrorCode(err) {
	case ErrCodeNoDevice, ErrCodeDeviceOpen, ErrCodeDeviceIO:
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "input / output error") ||
		strings.Contains(errStr, "input/output error") ||
		strings.Contains(errStr, "device not configured") ||
		strings.Contains(errStr, "unable to write to usb") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "device closed")
}

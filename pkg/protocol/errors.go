package protocol

import (
	"errors"
	"fmt"
)

// ErrMalformedRecord matches every decode failure caused by the content of a frame.
var ErrMalformedRecord = errors.New("malformed record")

// MalformedRecordError describes why a frame was rejected.
// The frame is dropped and decoding resumes at the next newline.
type MalformedRecordError struct {
	Tag    string
	Reason string
	Err    error
}

func (e *MalformedRecordError) Error() string {
	msg := "malformed record"
	if e.Tag != "" {
		msg += " " + e.Tag
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is ErrMalformedRecord.
func (e *MalformedRecordError) Is(target error) bool {
	return target == ErrMalformedRecord
}

func (e *MalformedRecordError) Unwrap() error {
	return e.Err
}

func malformed(tag, format string, args ...any) *MalformedRecordError {
	return &MalformedRecordError{Tag: tag, Reason: fmt.Sprintf(format, args...)}
}

func malformedErr(tag, reason string, err error) *MalformedRecordError {
	return &MalformedRecordError{Tag: tag, Reason: reason, Err: err}
}

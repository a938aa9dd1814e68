package experiment

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why an iteration failed.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindCapture
	KindDecode
	KindPosition
	KindStorage // size measurement, artifact removal, durable log write
)

var kindNames = map[ErrorKind]string{
	KindUnknown:  "unknown",
	KindCapture:  "capture",
	KindDecode:   "decode",
	KindPosition: "position",
	KindStorage:  "storage",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// IterationError is a recoverable failure of one iteration.
type IterationError struct {
	Kind ErrorKind
	Seq  int // sequence index the iteration was working on
	Err  error
}

func (e *IterationError) Error() string {
	return fmt.Sprintf("iteration for %d: %s error: %v", e.Seq, e.Kind, e.Err)
}

func (e *IterationError) Unwrap() error { return e.Err }

func iterationError(kind ErrorKind, seq int, err error) *IterationError {
	return &IterationError{Kind: kind, Seq: seq, Err: err}
}

// KindOf returns the kind carried by err, or KindUnknown.
func KindOf(err error) ErrorKind {
	var ie *IterationError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return KindUnknown
}

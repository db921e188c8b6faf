package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type ErrorKind string

const (
	KindNetwork           ErrorKind = "network"
	KindAuth              ErrorKind = "auth"
	KindNotFound          ErrorKind = "not_found"
	KindValidation        ErrorKind = "validation"
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindServer            ErrorKind = "server"
	KindTimeout           ErrorKind = "timeout"
)

// Error is the single error type crossing component boundaries. Compare with
// errors.Is against the Err* sentinels, which match on Kind alone.
type Error struct {
	Kind    ErrorKind
	Op      string
	Status  int
	Message string
	Err     error
}

var (
	ErrNetwork           = &Error{Kind: KindNetwork}
	ErrAuth              = &Error{Kind: KindAuth}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrServer            = &Error{Kind: KindServer}
	ErrTimeout           = &Error{Kind: KindTimeout}
)

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(strings.ReplaceAll(string(e.Kind), "_", " "))
	b.WriteString(" error")
	if e.Status > 0 {
		b.WriteString(" (")
		b.WriteString(strconv.Itoa(e.Status))
		b.WriteString(")")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func Errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there
// is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsAuth(err error) bool {
	return errors.Is(err, ErrAuth)
}

package domain

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
)

// Kind 错误分类，传输层据此映射状态码
type Kind uint8

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	case KindValidation:
		return "VALIDATION_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

// Error carries the offending id so callers can report it.
type Error struct {
	Kind Kind
	ID   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func NotFound(id, format string, args ...any) error {
	return &Error{Kind: KindNotFound, ID: id, Msg: fmt.Sprintf(format, args...)}
}

func Conflict(id, format string, args ...any) error {
	return &Error{Kind: KindConflict, ID: id, Msg: fmt.Sprintf(format, args...)}
}

func Validation(id, format string, args ...any) error {
	return &Error{Kind: KindValidation, ID: id, Msg: fmt.Sprintf(format, args...)}
}

// StoreError wraps a backend I/O failure; op is carried by the eris wrap only.
func StoreError(err error, op string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindInternal, Msg: "store", Err: eris.Wrap(err, op)}
}

// KindOf unknown errors are Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func IsNotFound(err error) bool { return err != nil && KindOf(err) == KindNotFound }
func IsConflict(err error) bool { return err != nil && KindOf(err) == KindConflict }

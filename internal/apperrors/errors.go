package apperrors

import (
	"errors"
	"fmt"
)

// Kind groups error codes by the component that raised them
type Kind string

const (
	KindAuth      Kind = "AUTH"
	KindCredit    Kind = "CREDIT"
	KindLedger    Kind = "LEDGER"
	KindCodec     Kind = "CODEC"
	KindTransform Kind = "TRANSFORM"
	KindRequest   Kind = "REQUEST"
	KindInternal  Kind = "INTERNAL"
)

// Code is a stable, caller-visible failure reason
type Code string

const (
	// Token verification
	MissingOrMalformed Code = "MISSING_OR_MALFORMED"
	TokenExpired       Code = "TOKEN_EXPIRED"
	TokenInvalid       Code = "TOKEN_INVALID"
	MissingClaim       Code = "MISSING_CLAIM"

	// Credit coordination
	InsufficientCredits Code = "INSUFFICIENT_CREDITS"
	CreditUpdateFailed  Code = "CREDIT_UPDATE_FAILED"
	CreditLookupFailed  Code = "CREDIT_LOOKUP_FAILED"

	// Ledger transport
	LedgerUnreachable Code = "LEDGER_UNREACHABLE"
	AccountNotFound   Code = "ACCOUNT_NOT_FOUND"
	LedgerConflict    Code = "LEDGER_CONFLICT"

	// Image codec
	BadBase64         Code = "BAD_BASE64"
	UnsupportedFormat Code = "UNSUPPORTED_FORMAT"
	ImageTooLarge     Code = "IMAGE_TOO_LARGE"
	EncodeFailed      Code = "ENCODE_FAILED"

	// Transform engine
	EngineUnavailable Code = "ENGINE_UNAVAILABLE"
	EngineFailed      Code = "ENGINE_FAILED"

	InvalidRequest Code = "INVALID_REQUEST"
	Internal       Code = "INTERNAL_ERROR"
)

var codeKinds = map[Code]Kind{
	MissingOrMalformed:  KindAuth,
	TokenExpired:        KindAuth,
	TokenInvalid:        KindAuth,
	MissingClaim:        KindAuth,
	InsufficientCredits: KindCredit,
	CreditUpdateFailed:  KindCredit,
	CreditLookupFailed:  KindCredit,
	LedgerUnreachable:   KindLedger,
	AccountNotFound:     KindLedger,
	LedgerConflict:      KindLedger,
	BadBase64:           KindCodec,
	UnsupportedFormat:   KindCodec,
	ImageTooLarge:       KindCodec,
	EncodeFailed:        KindCodec,
	EngineUnavailable:   KindTransform,
	EngineFailed:        KindTransform,
	InvalidRequest:      KindRequest,
	Internal:            KindInternal,
}

// KindFor returns the kind a code belongs to
func KindFor(code Code) Kind {
	if k, ok := codeKinds[code]; ok {
		return k
	}
	return KindInternal
}

// Error is the single error type surfaced by the request pipeline
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Cause   error
}

// New creates an Error, deriving Kind from code
func New(code Code, message string, cause error) *Error {
	return &Error{
		Kind:    KindFor(code),
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Newf is New with a formatted message and no cause
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...), nil)
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error with the same code, so sentinel-style
// comparisons like errors.Is(err, apperrors.New(apperrors.TokenExpired, "", nil)) work.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// HasCode reports whether any *Error in err's chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// CodeOf returns the code of the outermost *Error in err's chain, or Internal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Internal
}

// KindOf returns the kind of the outermost *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

package lending

import "errors"

// Kind classifies an engine error for callers deciding how to react.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindPolicyViolation
	KindInvalidInput
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindPolicyViolation:
		return "policy_violation"
	case KindInvalidInput:
		return "invalid_input"
	case KindPersistence:
		return "persistence_failure"
	default:
		return "unknown"
	}
}

// Code is a machine-readable error code.
type Code string

const (
	CodeItemNotFound        Code = "ITEM_NOT_FOUND"
	CodeBorrowerNotFound    Code = "BORROWER_NOT_FOUND"
	CodeStaffNotFound       Code = "STAFF_NOT_FOUND"
	CodeItemUnavailable     Code = "ITEM_UNAVAILABLE"
	CodeBorrowLimitExceeded Code = "BORROW_LIMIT_EXCEEDED"
	CodeNotBorrowedByUser   Code = "NOT_BORROWED_BY_USER"
	CodeDuplicateID         Code = "DUPLICATE_ID"
	CodeItemOnLoan          Code = "ITEM_ON_LOAN"
	CodeInvalidInput        Code = "INVALID_INPUT"
	CodePersistenceFailure  Code = "PERSISTENCE_FAILURE"
	CodeReturnIndeterminate Code = "RETURN_INDETERMINATE"
)

// Error is returned by every Engine operation that does not succeed.
// Two Errors match under errors.Is when their codes are equal.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrItemNotFound        = &Error{Kind: KindNotFound, Code: CodeItemNotFound, Message: "item not found"}
	ErrBorrowerNotFound    = &Error{Kind: KindNotFound, Code: CodeBorrowerNotFound, Message: "borrower not found"}
	ErrStaffNotFound       = &Error{Kind: KindNotFound, Code: CodeStaffNotFound, Message: "staff member not found"}
	ErrItemUnavailable     = &Error{Kind: KindPolicyViolation, Code: CodeItemUnavailable, Message: "item is already checked out"}
	ErrBorrowLimitExceeded = &Error{Kind: KindPolicyViolation, Code: CodeBorrowLimitExceeded, Message: "borrow limit reached"}
	ErrNotBorrowedByUser   = &Error{Kind: KindPolicyViolation, Code: CodeNotBorrowedByUser, Message: "you did not borrow this item"}
	ErrDuplicateID         = &Error{Kind: KindConflict, Code: CodeDuplicateID, Message: "id already exists"}
	ErrItemOnLoan          = &Error{Kind: KindConflict, Code: CodeItemOnLoan, Message: "item is on loan"}
	ErrInvalidInput        = &Error{Kind: KindInvalidInput, Code: CodeInvalidInput, Message: "invalid input"}
	ErrPersistence         = &Error{Kind: KindPersistence, Code: CodePersistenceFailure, Message: "storage failure"}
	ErrReturnIndeterminate = &Error{Kind: KindPersistence, Code: CodeReturnIndeterminate, Message: "return outcome unknown, refresh the account"}
)

// KindOf returns the Kind of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the Code of err, or "" for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func persistence(op string, err error) error {
	return &Error{Kind: KindPersistence, Code: CodePersistenceFailure, Message: op, Err: err}
}

func invalid(msg string) error {
	return &Error{Kind: KindInvalidInput, Code: CodeInvalidInput, Message: msg}
}

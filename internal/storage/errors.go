package storage

import "fmt"

// ErrorKind classifies a storage-layer failure per the error surface
// the core exposes to callers.
type ErrorKind int

const (
	ErrUnknown ErrorKind = iota
	ErrInvalidFileFormat
	ErrUnsupportedFeature
	ErrCorruptPage
	ErrReadOnly
	ErrTransactionAlreadyActive
	ErrTransactionCompleted
	ErrSchemaNotFound
	ErrOverflowLimit
	ErrEncryption
	ErrIO
)

func (k ErrorKind) String() string {
	switch k {
	case ErrInvalidFileFormat:
		return "InvalidFileFormat"
	case ErrUnsupportedFeature:
		return "UnsupportedFeature"
	case ErrCorruptPage:
		return "CorruptPage"
	case ErrReadOnly:
		return "ReadOnly"
	case ErrTransactionAlreadyActive:
		return "TransactionAlreadyActive"
	case ErrTransactionCompleted:
		return "TransactionCompleted"
	case ErrSchemaNotFound:
		return "SchemaNotFound"
	case ErrOverflowLimit:
		return "OverflowLimit"
	case ErrEncryption:
		return "EncryptionError"
	case ErrIO:
		return "IoError"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned by the storage layer. It
// carries a Kind so callers can branch with errors.As without parsing
// message text.
type Error struct {
	Kind    ErrorKind
	Message string
	Name    string // populated for ErrSchemaNotFound
	Offset  int    // populated for parse-adjacent errors
	Err     error
}

func (e *Error) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Name)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func SchemaNotFound(name string) *Error {
	return &Error{Kind: ErrSchemaNotFound, Message: "schema object not found", Name: name}
}

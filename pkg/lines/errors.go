package lines

import (
	"errors"
	"fmt"
)

// ErrorCode типизированные коды ошибок многолинейного менеджера
type ErrorCode int

const (
	ErrorCodeInvalidLineNumber ErrorCode = iota + 4000
	ErrorCodeLineNotAvailable
	ErrorCodeNoAvailableLines
	ErrorCodeNoIncomingCall
	ErrorCodeMaxConcurrentCallsReached
	ErrorCodeNotImplemented
)

func (code ErrorCode) String() string {
	switch code {
	case ErrorCodeInvalidLineNumber:
		return "InvalidLineNumber"
	case ErrorCodeLineNotAvailable:
		return "LineNotAvailable"
	case ErrorCodeNoAvailableLines:
		return "NoAvailableLines"
	case ErrorCodeNoIncomingCall:
		return "NoIncomingCall"
	case ErrorCodeMaxConcurrentCallsReached:
		return "MaxConcurrentCallsReached"
	case ErrorCodeNotImplemented:
		return "NotImplemented"
	default:
		return fmt.Sprintf("Unknown(%d)", int(code))
	}
}

// Error ошибка уровня управления линиями
type Error struct {
	Code       ErrorCode
	Message    string
	LineNumber int
}

func (e *Error) Error() string {
	if e.LineNumber > 0 {
		return fmt.Sprintf("%s [line=%d]: %s", e.Code, e.LineNumber, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is сравнивает ошибки по коду
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// Сентинелы для errors.Is
var (
	ErrInvalidLineNumber         = &Error{Code: ErrorCodeInvalidLineNumber, Message: "некорректный номер линии"}
	ErrLineNotAvailable          = &Error{Code: ErrorCodeLineNotAvailable, Message: "линия недоступна"}
	ErrNoAvailableLines          = &Error{Code: ErrorCodeNoAvailableLines, Message: "нет свободных линий"}
	ErrNoIncomingCall            = &Error{Code: ErrorCodeNoIncomingCall, Message: "на линии нет входящего вызова"}
	ErrMaxConcurrentCallsReached = &Error{Code: ErrorCodeMaxConcurrentCallsReached, Message: "достигнут предел одновременных вызовов"}
	ErrNotImplemented            = &Error{Code: ErrorCodeNotImplemented, Message: "операция не реализована"}
)

func newLineError(code ErrorCode, message string, lineNumber int) *Error {
	return &Error{Code: code, Message: message, LineNumber: lineNumber}
}

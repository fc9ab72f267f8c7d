package call

import (
	"errors"
	"fmt"
)

// ErrorCode определяет типизированные коды ошибок управления вызовом.
// Позволяет классифицировать ошибки и обрабатывать их по категориям,
// не разбирая текст сообщения.
type ErrorCode int

const (
	// Ошибки предусловий (проверяются до любых побочных эффектов)
	ErrorCodeClientNotInitialized ErrorCode = iota + 2000
	ErrorCodeNoActiveSession
	ErrorCodeEmptyTarget
	ErrorCodeInvalidTarget
	ErrorCodeInvalidState

	// Ошибки конкурентного доступа
	ErrorCodeOperationInProgress

	// Ошибки hold/resume протокола
	ErrorCodeAlreadyOnHold
	ErrorCodeNotOnHold
	ErrorCodeHoldTimeout
	ErrorCodeResumeTimeout

	// Отмена и внешние сбои
	ErrorCodeAborted
	ErrorCodeTransportFailed
	ErrorCodeMediaFailed
)

// String возвращает строковое представление кода ошибки
func (code ErrorCode) String() string {
	switch code {
	case ErrorCodeClientNotInitialized:
		return "ClientNotInitialized"
	case ErrorCodeNoActiveSession:
		return "NoActiveSession"
	case ErrorCodeEmptyTarget:
		return "EmptyTarget"
	case ErrorCodeInvalidTarget:
		return "InvalidTarget"
	case ErrorCodeInvalidState:
		return "InvalidState"
	case ErrorCodeOperationInProgress:
		return "OperationInProgress"
	case ErrorCodeAlreadyOnHold:
		return "AlreadyOnHold"
	case ErrorCodeNotOnHold:
		return "NotOnHold"
	case ErrorCodeHoldTimeout:
		return "HoldTimeout"
	case ErrorCodeResumeTimeout:
		return "ResumeTimeout"
	case ErrorCodeAborted:
		return "Aborted"
	case ErrorCodeTransportFailed:
		return "TransportFailed"
	case ErrorCodeMediaFailed:
		return "MediaFailed"
	default:
		return fmt.Sprintf("Unknown(%d)", int(code))
	}
}

// Error представляет ошибку уровня управления вызовом.
// Содержит типизированный код, человекочитаемое сообщение,
// идентификатор сессии для сопоставления с логами и опционально
// обернутую низкоуровневую ошибку (транспорт, медиа).
type Error struct {
	Code      ErrorCode
	Message   string
	SessionID string
	Wrapped   error
}

func (e *Error) Error() string {
	if e.SessionID != "" {
		if e.Wrapped != nil {
			return fmt.Sprintf("%s [session=%s]: %s: %v", e.Code, e.SessionID, e.Message, e.Wrapped)
		}
		return fmt.Sprintf("%s [session=%s]: %s", e.Code, e.SessionID, e.Message)
	}
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap возвращает обернутую ошибку для errors.Is/errors.As
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is сравнивает ошибки по коду, а не по указателю.
// Благодаря этому errors.Is(err, ErrHoldTimeout) работает для любой
// ошибки с кодом ErrorCodeHoldTimeout независимо от сообщения.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// NewError создает новую ошибку управления вызовом
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorWithSession создает ошибку, привязанную к сессии
func NewErrorWithSession(code ErrorCode, message, sessionID string) *Error {
	return &Error{Code: code, Message: message, SessionID: sessionID}
}

// WrapError оборачивает низкоуровневую ошибку в типизированную.
// Сообщение исходной ошибки сохраняется дословно через Wrapped.
func WrapError(code ErrorCode, message string, wrapped error) *Error {
	return &Error{Code: code, Message: message, Wrapped: wrapped}
}

// Сентинелы для errors.Is. Сообщение у реальных ошибок может отличаться,
// сравнение идет только по коду.
var (
	ErrClientNotInitialized = NewError(ErrorCodeClientNotInitialized, "transport client не инициализирован")
	ErrNoActiveSession      = NewError(ErrorCodeNoActiveSession, "нет активной сессии")
	ErrEmptyTarget          = NewError(ErrorCodeEmptyTarget, "пустой target вызова")
	ErrInvalidTarget        = NewError(ErrorCodeInvalidTarget, "некорректный target вызова")
	ErrOperationInProgress  = NewError(ErrorCodeOperationInProgress, "операция уже выполняется")
	ErrAlreadyOnHold        = NewError(ErrorCodeAlreadyOnHold, "вызов уже на удержании")
	ErrNotOnHold            = NewError(ErrorCodeNotOnHold, "вызов не на удержании")
	ErrHoldTimeout          = NewError(ErrorCodeHoldTimeout, "timeout ожидания подтверждения hold")
	ErrResumeTimeout        = NewError(ErrorCodeResumeTimeout, "timeout ожидания подтверждения unhold")
	ErrAborted              = NewError(ErrorCodeAborted, "операция отменена")
)

// coerceError приводит произвольное значение паники/ошибки к error.
// Транспортные реализации иногда возвращают не-error значения,
// для них фиксируется стабильное generic сообщение.
func coerceError(v interface{}) error {
	switch err := v.(type) {
	case error:
		return err
	case string:
		return errors.New(err)
	default:
		return errors.New("неизвестная ошибка транспорта")
	}
}

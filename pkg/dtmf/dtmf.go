// Package dtmf реализует валидацию DTMF сигналов, отправку одиночных
// тонов и тайм-управляемых последовательностей с отменой, а также
// ограниченную очередь отложенных тонов.
//
// Алфавит: 0-9, *, #, A-D. Буквы только заглавные: пакет обслуживает
// wire API, где 'a' и 'A' — разные символы. Недопустимый тон
// отклоняется до любого обращения к транспорту.
package dtmf

import (
	"fmt"
	"time"
)

// Допустимые DTMF символы
const Alphabet = "0123456789*#ABCD"

const (
	// MaxQueuedTones емкость очереди отложенных тонов.
	// Переполнение отбрасывается молча, без ошибки.
	MaxQueuedTones = 32

	// maxResultHistory глубина истории результатов отправки
	maxResultHistory = 64

	// DefaultToneDuration стандартная длительность тона
	DefaultToneDuration = 100 * time.Millisecond

	// DefaultInterToneGap пауза между тонами последовательности
	DefaultInterToneGap = 50 * time.Millisecond
)

// ErrorCode типизированные коды ошибок DTMF слоя
type ErrorCode int

const (
	ErrorCodeInvalidTone ErrorCode = iota + 3000
	ErrorCodeNoSender
	ErrorCodeAlreadySending
	ErrorCodeSendFailed
	ErrorCodeStopped
)

func (code ErrorCode) String() string {
	switch code {
	case ErrorCodeInvalidTone:
		return "InvalidTone"
	case ErrorCodeNoSender:
		return "NoSender"
	case ErrorCodeAlreadySending:
		return "AlreadySending"
	case ErrorCodeSendFailed:
		return "SendFailed"
	case ErrorCodeStopped:
		return "Stopped"
	default:
		return fmt.Sprintf("Unknown(%d)", int(code))
	}
}

// Error ошибка DTMF слоя с типизированным кодом
type Error struct {
	Code    ErrorCode
	Message string
	Tone    string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is сравнивает ошибки по коду
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

// ErrInvalidTone сентинел для errors.Is
var ErrInvalidTone = &Error{Code: ErrorCodeInvalidTone, Message: "недопустимый DTMF символ"}

// IsValidTone проверяет один символ алфавита
func IsValidTone(tone string) bool {
	if len(tone) != 1 {
		return false
	}
	r := tone[0]
	switch {
	case r >= '0' && r <= '9':
		return true
	case r == '*' || r == '#':
		return true
	case r >= 'A' && r <= 'D':
		return true
	default:
		return false
	}
}

// ValidateTone возвращает InvalidTone для символа вне алфавита
func ValidateTone(tone string) error {
	if !IsValidTone(tone) {
		return &Error{
			Code:    ErrorCodeInvalidTone,
			Message: fmt.Sprintf("недопустимый DTMF символ: %q", tone),
			Tone:    tone,
		}
	}
	return nil
}

// ValidateSequence проверяет всю строку; первый недопустимый символ
// делает недействительной всю последовательность
func ValidateSequence(tones string) error {
	if tones == "" {
		return &Error{Code: ErrorCodeInvalidTone, Message: "пустая последовательность DTMF"}
	}
	for i := 0; i < len(tones); i++ {
		if !IsValidTone(string(tones[i])) {
			return &Error{
				Code:    ErrorCodeInvalidTone,
				Message: fmt.Sprintf("недопустимый DTMF символ %q в позиции %d", tones[i], i),
				Tone:    string(tones[i]),
			}
		}
	}
	return nil
}

package call

import (
	"context"
	"time"
)

// NotificationType тип нотификации транспортной сессии
type NotificationType string

const (
	NotificationHold         NotificationType = "hold"
	NotificationUnhold       NotificationType = "unhold"
	NotificationHoldFailed   NotificationType = "hold_failed"
	NotificationUnholdFailed NotificationType = "unhold_failed"
)

// Originator указывает, кто инициировал подтверждаемое изменение состояния
type Originator string

const (
	OriginatorLocal  Originator = "local"
	OriginatorRemote Originator = "remote"
)

// Notification асинхронное уведомление транспортной сессии.
// Истинное состояние hold/unhold определяется только этими событиями,
// а не результатом вызова Hold()/Unhold() (см. протокол подтверждения).
type Notification struct {
	Type       NotificationType
	Originator Originator
	Timestamp  time.Time
	// Message текст ошибки для hold_failed/unhold_failed
	Message string
}

// CallOptions параметры исходящего вызова
type CallOptions struct {
	Audio bool
	Video bool
	// ExtraHeaders дополнительные заголовки для транспорта
	ExtraHeaders map[string]string
}

// AnswerOptions параметры ответа на входящий вызов
type AnswerOptions struct {
	Audio bool
	Video bool
}

// Stats статистика транспортной сессии (содержимое определяет транспорт)
type Stats map[string]interface{}

// TransportClient абстракция сигнального клиента.
// Реализуется внешним транспортным слоем (SIP стек и т.п.);
// ядро управления вызовом не знает о деталях wire-протокола.
type TransportClient interface {
	// Call устанавливает исходящий вызов и блокируется до ответа
	// удаленной стороны либо ошибки. Отмена через ctx.
	Call(ctx context.Context, target string, opts CallOptions) (TransportSession, error)
}

// TransportSession одна сигнальная сессия (один вызов) на транспорте
type TransportSession interface {
	// ID уникальный идентификатор сессии у транспорта.
	// Может быть пустым, тогда ядро генерирует локальный.
	ID() string

	Answer(ctx context.Context, opts AnswerOptions) error
	Reject(code int) error
	Hangup() error

	// Hold/Unhold только отправляют запрос. Фактический переход состояния
	// происходит по Notification с соответствующим типом.
	Hold() error
	Unhold() error

	// Refer запрашивает у удаленной стороны перевод вызова на target
	Refer(target string) error

	SendDTMF(tone string, duration time.Duration) error
	GetStats() (Stats, error)

	// OnNotification подписывает обработчик на события указанного типа.
	// Возвращает функцию отписки; обработчики вызываются последовательно.
	OnNotification(t NotificationType, h func(Notification)) (unsubscribe func())
}

// MediaTrack локальный медиа трек (аудио или видео)
type MediaTrack interface {
	Kind() string
	// Stop освобождает устройство. Повторный вызов должен быть безопасен,
	// но ядро гарантирует ровно один вызов на трек.
	Stop()
}

// MediaStream набор локальных медиа треков
type MediaStream interface {
	GetTracks() []MediaTrack
}

// MediaConstraints запрашиваемые медиа возможности
type MediaConstraints struct {
	Audio bool
	Video bool
}

// MediaProvider абстракция доступа к локальным медиа устройствам.
// Опционален: при nil провайдере вызовы идут без локального медиа.
type MediaProvider interface {
	GetUserMedia(ctx context.Context, c MediaConstraints) (MediaStream, error)
	GetLocalStream() MediaStream
}

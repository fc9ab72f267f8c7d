package lines

import (
	"github.com/arzzra/call_control/pkg/call"
)

// LineStatus агрегированный статус линии, производный от состояния
// ее сессии вызова. Линия без сессии всегда idle.
type LineStatus int

const (
	LineIdle LineStatus = iota
	LineRinging
	LineActive
	LineHeld
)

func (s LineStatus) String() string {
	switch s {
	case LineIdle:
		return "idle"
	case LineRinging:
		return "ringing"
	case LineActive:
		return "active"
	case LineHeld:
		return "held"
	default:
		return "unknown"
	}
}

// LineConfig настройки одной линии, изменяемые в любой момент
// через Manager.ConfigureLine
type LineConfig struct {
	Label string

	// AutoAnswer автоматически отвечать на входящий вызов этой линии
	AutoAnswer bool

	// DefaultVideo запрашивать видео по умолчанию
	DefaultVideo bool

	// Enabled отключенная линия не участвует в подборе свободной
	// линии и не принимает вызовы
	Enabled bool
}

// DefaultLineConfig конфигурация линии по умолчанию
func DefaultLineConfig() LineConfig {
	return LineConfig{Enabled: true}
}

// line слот линии. Все поля защищены мьютексом менеджера.
type line struct {
	number  int
	cfg     LineConfig
	session *call.Session
}

// statusLocked производит статус линии из состояния сессии.
// Вызывающая сторона держит мьютекс менеджера.
func (l *line) statusLocked() LineStatus {
	if l.session == nil {
		return LineIdle
	}
	return statusFromState(l.session.State())
}

// statusFromState отображает состояние сессии на статус линии
func statusFromState(s call.State) LineStatus {
	switch s {
	case call.StateRinging:
		return LineRinging
	case call.StateConnecting, call.StateActive, call.StateHolding, call.StateResuming:
		return LineActive
	case call.StateHeld, call.StateRemoteHeld:
		return LineHeld
	default:
		// Idle, Ended, Failed
		return LineIdle
	}
}

// callIDLocked возвращает идентификатор вызова линии или пустую строку
func (l *line) callIDLocked() string {
	if l.session == nil {
		return ""
	}
	return l.session.ID()
}

// availableLocked линия свободна для нового вызова
func (l *line) availableLocked() bool {
	return l.cfg.Enabled && l.session == nil
}

// LineInfo снимок состояния линии для внешних наблюдателей
type LineInfo struct {
	Number int
	Status LineStatus
	CallID string
	Config LineConfig
}

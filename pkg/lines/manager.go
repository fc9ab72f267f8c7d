package lines

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/arzzra/call_control/pkg/call"
)

const (
	// MinLines и MaxLines границы количества линий
	MinLines = 1
	MaxLines = 8

	// DefaultLines количество линий по умолчанию
	DefaultLines = 2
)

// ActiveCallRegistry внешний реестр активных вызовов.
// Внедряется зависимостью: менеджер только вызывает add/remove/get
// и не владеет реестром монопольно.
type ActiveCallRegistry interface {
	AddActiveCall(s *call.Session)
	RemoveActiveCall(id string)
	GetCall(id string) (*call.Session, bool)
}

// LineEventType тип события линии
type LineEventType string

const (
	LineEventStateChange LineEventType = "line_state_change"
	LineEventConfigured  LineEventType = "line_configured"
)

// LineEvent структурированное событие изменения линии
type LineEvent struct {
	Type       LineEventType
	LineNumber int
	Status     LineStatus
	CallID     string
	Timestamp  time.Time
}

// LineEventHandler обработчик событий линий. Может вызываться из
// обработчиков нотификаций транспорта; не должен синхронно вызывать
// методы менеджера.
type LineEventHandler func(LineEvent)

// SelectionChangeHandler обработчик смены выбранной линии
type SelectionChangeHandler func(old, new int)

// ManagerConfig конфигурация многолинейного менеджера
type ManagerConfig struct {
	// LineCount количество линий, ограничивается [MinLines, MaxLines]
	LineCount int

	// MaxConcurrentCalls потолок одновременных вызовов,
	// 0 — без ограничения
	MaxConcurrentCalls int

	// AutoHoldOnNewCall ставить активную линию на удержание
	// перед набором нового вызова на другой линии
	AutoHoldOnNewCall bool

	// LineConfigs позиционные переопределения настроек линий
	LineConfigs []LineConfig

	Client   call.TransportClient
	Media    call.MediaProvider
	Registry ActiveCallRegistry

	// HoldTimeout передается сессиям вызовов
	HoldTimeout time.Duration

	Logger *slog.Logger
}

// DefaultManagerConfig конфигурация по умолчанию: две линии,
// авто-hold выключен
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		LineCount:   DefaultLines,
		HoldTimeout: 5 * time.Second,
		Logger:      slog.Default(),
	}
}

// MakeCallOptions параметры исходящего вызова через менеджер
type MakeCallOptions struct {
	// LineNumber явная линия; 0 — автоматический подбор свободной
	LineNumber int

	// Video запросить видео (аудио запрашивается всегда)
	Video bool
}

// TransferOptions параметры перевода вызова
type TransferOptions struct {
	FromLine int
	Target   string

	// Attended сопровождаемый перевод; пока не реализован
	Attended bool
}

// Manager владеет упорядоченным набором линий, курсором выбора и
// межлинейными политиками (предел одновременных вызовов,
// auto-hold-on-new-call). Операции разных линий выполняются
// независимо; связывают их только явные политики.
type Manager struct {
	cfg     ManagerConfig
	logger  *slog.Logger
	metrics *metricsCollector

	mu       sync.Mutex
	lines    []*line
	selected int

	// cbMu отдельный мьютекс для обработчиков: события эмитятся и из
	// обработчиков состояний сессий, где mu брать нельзя
	cbMu        sync.RWMutex
	onLineState LineEventHandler
	onSelection SelectionChangeHandler
}

// NewManager создает менеджер с N idle линиями, нумерованными с 1.
// Запрошенное количество линий ограничивается диапазоном [1, 8];
// позиционные переопределения из cfg.LineConfigs применяются к
// соответствующим линиям.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.LineCount < MinLines {
		if cfg.LineCount == 0 {
			cfg.LineCount = DefaultLines
		} else {
			cfg.LineCount = MinLines
		}
	}
	if cfg.LineCount > MaxLines {
		cfg.LineCount = MaxLines
	}
	if cfg.MaxConcurrentCalls > cfg.LineCount {
		cfg.MaxConcurrentCalls = cfg.LineCount
	}
	if cfg.HoldTimeout <= 0 {
		cfg.HoldTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	m := &Manager{
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "lines.manager"),
		metrics:  newMetricsCollector(),
		selected: 1,
	}

	m.lines = make([]*line, cfg.LineCount)
	for i := range m.lines {
		lc := DefaultLineConfig()
		if i < len(cfg.LineConfigs) {
			lc = cfg.LineConfigs[i]
		}
		m.lines[i] = &line{number: i + 1, cfg: lc}
	}
	return m
}

// OnLineStateChange устанавливает обработчик событий линий
func (m *Manager) OnLineStateChange(h LineEventHandler) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.onLineState = h
}

// OnSelectionChange устанавливает обработчик смены выбранной линии
func (m *Manager) OnSelectionChange(h SelectionChangeHandler) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.onSelection = h
}

// --- Основные операции ---

// MakeCall устанавливает исходящий вызов. Явная линия должна быть
// свободна и включена; без явной линии выполняется тот же подбор,
// что и в SelectNextAvailable. Политики проверяются до набора:
// предел одновременных вызовов и auto-hold активной линии.
// Возвращает номер использованной линии.
func (m *Manager) MakeCall(ctx context.Context, target string, opts MakeCallOptions) (int, error) {
	if err := call.ValidateTarget(target); err != nil {
		return 0, err
	}

	m.mu.Lock()
	ln, err := m.resolveLineLocked(opts.LineNumber)
	if err != nil {
		m.mu.Unlock()
		return 0, err
	}

	if m.cfg.MaxConcurrentCalls > 0 && m.reservedCountLocked() >= m.cfg.MaxConcurrentCalls {
		m.mu.Unlock()
		return 0, newLineError(ErrorCodeMaxConcurrentCallsReached,
			fmt.Sprintf("достигнут предел одновременных вызовов (%d)", m.cfg.MaxConcurrentCalls),
			ln.number)
	}

	// Линия, которую нужно поставить на удержание до набора
	var holdTarget *call.Session
	if m.cfg.AutoHoldOnNewCall {
		for _, other := range m.lines {
			if other == ln || other.session == nil {
				continue
			}
			// Удерживать можно только установившийся вызов: Connecting
			// и переходные hold-состояния пропускаются
			if other.session.State() == call.StateActive && !other.session.IsOnHold() {
				holdTarget = other.session
				break
			}
		}
	}

	session := m.newSessionLocked(ln)
	ln.session = session
	m.mu.Unlock()

	if holdTarget != nil {
		if holdErr := holdTarget.Hold(); holdErr != nil {
			// Новый вызов важнее: продолжаем набор, фиксируя проблему
			m.logger.Warn("auto-hold активной линии не удался", "error", holdErr)
		}
	}

	video := opts.Video
	m.mu.Lock()
	if !video && ln.cfg.DefaultVideo {
		video = true
	}
	m.mu.Unlock()

	// Аудио запрашивается всегда, видео по opts или настройке линии
	dialErr := session.Dial(ctx, target, call.CallOptions{Audio: true, Video: video})
	if dialErr != nil {
		m.mu.Lock()
		ln.session = nil
		m.mu.Unlock()
		session.Close()
		m.metrics.CallFailed()
		return 0, dialErr
	}

	m.mu.Lock()
	m.selectLocked(ln.number)
	m.mu.Unlock()

	if m.cfg.Registry != nil {
		m.cfg.Registry.AddActiveCall(session)
	}
	m.metrics.CallStarted()
	m.updateActiveLinesMetric()
	m.emitLineState(ln.number, LineActive, session.ID())

	m.logger.Debug("lines.MakeCall established",
		"line", ln.number, "call_id", session.ID(), "target", target)
	return ln.number, nil
}

// HandleIncomingCall размещает входящую транспортную сессию на первой
// свободной включенной линии. При включенном AutoAnswer линия
// отвечает немедленно.
func (m *Manager) HandleIncomingCall(ctx context.Context, ts call.TransportSession) (int, error) {
	m.mu.Lock()
	ln, err := m.resolveLineLocked(0)
	if err != nil {
		m.mu.Unlock()
		return 0, err
	}

	session := m.newSessionLocked(ln)
	ln.session = session
	autoAnswer := ln.cfg.AutoAnswer
	video := ln.cfg.DefaultVideo
	m.mu.Unlock()

	if attachErr := session.AttachIncoming(ts); attachErr != nil {
		m.mu.Lock()
		ln.session = nil
		m.mu.Unlock()
		session.Close()
		return 0, attachErr
	}

	m.emitLineState(ln.number, LineRinging, session.ID())

	if autoAnswer {
		if answerErr := session.Answer(ctx, call.AnswerOptions{Audio: true, Video: video}); answerErr != nil {
			return ln.number, answerErr
		}
		if m.cfg.Registry != nil {
			m.cfg.Registry.AddActiveCall(session)
		}
		m.metrics.CallStarted()
		m.updateActiveLinesMetric()
		m.mu.Lock()
		m.selectLocked(ln.number)
		m.mu.Unlock()
		m.emitLineState(ln.number, LineActive, session.ID())
	}
	return ln.number, nil
}

// AnswerCall отвечает на входящий вызов линии.
// Линия обязана быть в статусе ringing, иначе NoIncomingCall.
func (m *Manager) AnswerCall(ctx context.Context, lineNumber int) error {
	m.mu.Lock()
	ln, err := m.lineLocked(lineNumber)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if ln.statusLocked() != LineRinging {
		m.mu.Unlock()
		return newLineError(ErrorCodeNoIncomingCall,
			"на линии нет входящего вызова", lineNumber)
	}
	session := ln.session
	video := ln.cfg.DefaultVideo
	m.mu.Unlock()

	if answerErr := session.Answer(ctx, call.AnswerOptions{Audio: true, Video: video}); answerErr != nil {
		return answerErr
	}

	m.mu.Lock()
	m.selectLocked(lineNumber)
	m.mu.Unlock()

	if m.cfg.Registry != nil {
		m.cfg.Registry.AddActiveCall(session)
	}
	m.metrics.CallStarted()
	m.updateActiveLinesMetric()
	m.emitLineState(lineNumber, LineActive, session.ID())
	return nil
}

// RejectCall отклоняет входящий вызов линии
func (m *Manager) RejectCall(lineNumber int) error {
	m.mu.Lock()
	ln, err := m.lineLocked(lineNumber)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if ln.statusLocked() != LineRinging {
		m.mu.Unlock()
		return newLineError(ErrorCodeNoIncomingCall,
			"на линии нет входящего вызова", lineNumber)
	}
	session := ln.session
	m.mu.Unlock()

	rejectErr := session.Reject(486)

	m.mu.Lock()
	ln.session = nil
	m.mu.Unlock()
	session.Close()

	m.emitLineState(lineNumber, LineIdle, "")
	return rejectErr
}

// HangupCall завершает вызов линии. Для idle линии это no-op, не
// ошибка. Линия сбрасывается и реестр уведомляется даже при ошибке
// транспорта: сессия в любом случае уничтожается целиком.
func (m *Manager) HangupCall(lineNumber int) error {
	m.mu.Lock()
	ln, err := m.lineLocked(lineNumber)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	session := ln.session
	m.mu.Unlock()

	if session == nil {
		return nil
	}

	hangupErr := session.Hangup()
	if errors.Is(hangupErr, call.ErrNoActiveSession) {
		hangupErr = nil
	}

	id := session.ID()
	m.mu.Lock()
	ln.session = nil
	m.mu.Unlock()
	session.Close()

	if m.cfg.Registry != nil && id != "" {
		m.cfg.Registry.RemoveActiveCall(id)
	}
	m.metrics.CallEnded()
	m.updateActiveLinesMetric()
	m.emitLineState(lineNumber, LineIdle, "")
	return hangupErr
}

// HangupAll завершает вызовы на всех непустых линиях
func (m *Manager) HangupAll() error {
	m.mu.Lock()
	numbers := make([]int, 0, len(m.lines))
	for _, ln := range m.lines {
		if ln.session != nil {
			numbers = append(numbers, ln.number)
		}
	}
	m.mu.Unlock()

	var errs []error
	for _, n := range numbers {
		if err := m.HangupCall(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// --- Hold операции ---

// HoldLine ставит вызов линии на удержание.
// Для не-активной линии это no-op, не ошибка.
func (m *Manager) HoldLine(lineNumber int) error {
	m.mu.Lock()
	ln, err := m.lineLocked(lineNumber)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if ln.statusLocked() != LineActive {
		m.mu.Unlock()
		return nil
	}
	session := ln.session
	m.mu.Unlock()

	holdErr := session.Hold()
	if errors.Is(holdErr, call.ErrHoldTimeout) {
		m.metrics.HoldTimeout()
	}
	if holdErr == nil {
		m.emitLineState(lineNumber, LineHeld, session.ID())
	}
	return holdErr
}

// UnholdLine снимает удержание вызова линии.
// Для линии не в статусе held это no-op.
func (m *Manager) UnholdLine(lineNumber int) error {
	m.mu.Lock()
	ln, err := m.lineLocked(lineNumber)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if ln.statusLocked() != LineHeld {
		m.mu.Unlock()
		return nil
	}
	session := ln.session
	m.mu.Unlock()

	unholdErr := session.Unhold()
	if errors.Is(unholdErr, call.ErrResumeTimeout) {
		m.metrics.HoldTimeout()
	}
	if unholdErr == nil {
		m.emitLineState(lineNumber, LineActive, session.ID())
	}
	return unholdErr
}

// ToggleHoldLine переключает удержание линии
func (m *Manager) ToggleHoldLine(lineNumber int) error {
	m.mu.Lock()
	ln, err := m.lineLocked(lineNumber)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	session := ln.session
	m.mu.Unlock()

	if session == nil {
		return nil
	}
	if session.IsOnHold() {
		return m.UnholdLine(lineNumber)
	}
	return m.HoldLine(lineNumber)
}

// SwapLines меняет роли двух линий: удерживаемая становится активной
// и наоборот. Активная линия ставится на hold первой, затем снимается
// удержание второй; выбор переходит на теперь активную линию.
func (m *Manager) SwapLines(a, b int) error {
	m.mu.Lock()
	lnA, err := m.lineLocked(a)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	lnB, err := m.lineLocked(b)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	statusA, statusB := lnA.statusLocked(), lnB.statusLocked()
	var active, held *line
	switch {
	case statusA == LineActive && statusB == LineHeld:
		active, held = lnA, lnB
	case statusA == LineHeld && statusB == LineActive:
		active, held = lnB, lnA
	default:
		m.mu.Unlock()
		return newLineError(ErrorCodeLineNotAvailable,
			fmt.Sprintf("линии %d (%s) и %d (%s) нельзя поменять ролями",
				a, statusA, b, statusB), 0)
	}
	m.mu.Unlock()

	if err := m.HoldLine(active.number); err != nil {
		return err
	}
	if err := m.UnholdLine(held.number); err != nil {
		return err
	}

	m.mu.Lock()
	m.selectLocked(held.number)
	m.mu.Unlock()
	return nil
}

// TransferCall переводит вызов линии на target. Для unattended
// перевода завершением считается освобождение исходной линии сразу
// после отправки запроса перевода.
func (m *Manager) TransferCall(opts TransferOptions) error {
	if opts.Attended {
		return newLineError(ErrorCodeNotImplemented,
			"attended transfer не реализован", opts.FromLine)
	}
	if err := call.ValidateTarget(opts.Target); err != nil {
		return err
	}

	m.mu.Lock()
	ln, err := m.lineLocked(opts.FromLine)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	status := ln.statusLocked()
	if status != LineActive && status != LineHeld {
		m.mu.Unlock()
		return call.ErrNoActiveSession
	}
	session := ln.session
	m.mu.Unlock()

	if referErr := session.Refer(opts.Target); referErr != nil {
		return referErr
	}

	// Перевод отправлен: исходная линия освобождается
	id := session.ID()
	_ = session.Hangup()
	m.mu.Lock()
	ln.session = nil
	m.mu.Unlock()
	session.Close()

	if m.cfg.Registry != nil && id != "" {
		m.cfg.Registry.RemoveActiveCall(id)
	}
	m.metrics.CallEnded()
	m.updateActiveLinesMetric()
	m.emitLineState(opts.FromLine, LineIdle, "")
	return nil
}

// MergeLines объединение линий в конференцию не реализовано
func (m *Manager) MergeLines(a, b int) error {
	return newLineError(ErrorCodeNotImplemented, "merge линий не реализован", 0)
}

// ParkCall парковка вызова не реализована
func (m *Manager) ParkCall(lineNumber int) error {
	return newLineError(ErrorCodeNotImplemented, "парковка вызова не реализована", lineNumber)
}

// ConfigureLine изменяет настройки линии
func (m *Manager) ConfigureLine(lineNumber int, cfg LineConfig) error {
	m.mu.Lock()
	ln, err := m.lineLocked(lineNumber)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	ln.cfg = cfg
	status := ln.statusLocked()
	callID := ln.callIDLocked()
	m.mu.Unlock()

	m.emitEvent(LineEvent{
		Type:       LineEventConfigured,
		LineNumber: lineNumber,
		Status:     status,
		CallID:     callID,
		Timestamp:  time.Now(),
	})
	return nil
}

// --- Выбор линии ---

// SelectedLine номер текущей выбранной линии
func (m *Manager) SelectedLine() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selected
}

// SelectLine меняет выбранную линию. Номер вне диапазона молча
// игнорируется (не ошибка); событие смены выбора эмитится только
// при фактическом изменении.
func (m *Manager) SelectLine(lineNumber int) {
	m.mu.Lock()
	if lineNumber < 1 || lineNumber > len(m.lines) {
		m.mu.Unlock()
		return
	}
	m.selectLocked(lineNumber)
	m.mu.Unlock()
}

// SelectNextAvailable выбирает первую свободную включенную линию по
// возрастанию номера. Возвращает (0, false) без побочных эффектов,
// если подходящей линии нет.
func (m *Manager) SelectNextAvailable() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ln := range m.lines {
		if ln.availableLocked() {
			m.selectLocked(ln.number)
			return ln.number, true
		}
	}
	return 0, false
}

// SelectRingingLine выбирает первую линию со входящим вызовом
func (m *Manager) SelectRingingLine() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ln := range m.lines {
		if ln.statusLocked() == LineRinging {
			m.selectLocked(ln.number)
			return ln.number, true
		}
	}
	return 0, false
}

// --- Агрегированные представления ---
// Все представления пересчитываются на каждый вызов, без кеширования.

// ActiveCallCount количество линий с активным или удерживаемым вызовом
func (m *Manager) ActiveCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busyCountLocked()
}

// RingingCount количество линий со входящим вызовом
func (m *Manager) RingingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, ln := range m.lines {
		if ln.statusLocked() == LineRinging {
			count++
		}
	}
	return count
}

// AllLinesBusy true когда каждая включенная линия занята
func (m *Manager) AllLinesBusy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	enabled := 0
	for _, ln := range m.lines {
		if !ln.cfg.Enabled {
			continue
		}
		enabled++
		if ln.statusLocked() == LineIdle {
			return false
		}
	}
	return enabled > 0
}

// AvailableLines номера свободных включенных линий
func (m *Manager) AvailableLines() []int {
	return m.collectLines(func(ln *line) bool { return ln.availableLocked() })
}

// ActiveLines номера линий с активным вызовом
func (m *Manager) ActiveLines() []int {
	return m.collectLines(func(ln *line) bool { return ln.statusLocked() == LineActive })
}

// RingingLines номера линий со входящим вызовом
func (m *Manager) RingingLines() []int {
	return m.collectLines(func(ln *line) bool { return ln.statusLocked() == LineRinging })
}

// HeldLines номера линий с удерживаемым вызовом
func (m *Manager) HeldLines() []int {
	return m.collectLines(func(ln *line) bool { return ln.statusLocked() == LineHeld })
}

// collectLines возвращает номера линий, прошедших предикат
func (m *Manager) collectLines(pred func(*line) bool) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []int
	for _, ln := range m.lines {
		if pred(ln) {
			out = append(out, ln.number)
		}
	}
	return out
}

// Lines снимок состояния всех линий
func (m *Manager) Lines() []LineInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]LineInfo, len(m.lines))
	for i, ln := range m.lines {
		out[i] = LineInfo{
			Number: ln.number,
			Status: ln.statusLocked(),
			CallID: ln.callIDLocked(),
			Config: ln.cfg,
		}
	}
	return out
}

// Line снимок одной линии
func (m *Manager) Line(lineNumber int) (LineInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ln, err := m.lineLocked(lineNumber)
	if err != nil {
		return LineInfo{}, err
	}
	return LineInfo{
		Number: ln.number,
		Status: ln.statusLocked(),
		CallID: ln.callIDLocked(),
		Config: ln.cfg,
	}, nil
}

// LineCount количество линий менеджера
func (m *Manager) LineCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lines)
}

// Session возвращает сессию вызова линии (nil для idle линии)
func (m *Manager) Session(lineNumber int) (*call.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ln, err := m.lineLocked(lineNumber)
	if err != nil {
		return nil, err
	}
	return ln.session, nil
}

// --- Внутреннее ---

// lineLocked возвращает линию по номеру, InvalidLineNumber вне
// диапазона. Вызывающая сторона держит m.mu.
func (m *Manager) lineLocked(lineNumber int) (*line, error) {
	if lineNumber < 1 || lineNumber > len(m.lines) {
		return nil, newLineError(ErrorCodeInvalidLineNumber,
			fmt.Sprintf("номер линии %d вне диапазона 1..%d", lineNumber, len(m.lines)),
			lineNumber)
	}
	return m.lines[lineNumber-1], nil
}

// resolveLineLocked подбирает линию для нового вызова: явная линия
// должна быть свободна и включена, иначе LineNotAvailable; без явной
// линии — первая свободная включенная, иначе NoAvailableLines.
func (m *Manager) resolveLineLocked(explicit int) (*line, error) {
	if explicit != 0 {
		ln, err := m.lineLocked(explicit)
		if err != nil {
			return nil, err
		}
		if !ln.availableLocked() {
			return nil, newLineError(ErrorCodeLineNotAvailable,
				fmt.Sprintf("линия %d занята или отключена", explicit), explicit)
		}
		return ln, nil
	}
	for _, ln := range m.lines {
		if ln.availableLocked() {
			return ln, nil
		}
	}
	return nil, ErrNoAvailableLines
}

// reservedCountLocked количество линий с закрепленной сессией, включая
// еще не установившиеся вызовы. Используется для предела одновременных
// вызовов: линия резервируется под m.mu до набора, поэтому чередующийся
// MakeCall видит резерв даже пока первый вызов еще захватывает медиа.
func (m *Manager) reservedCountLocked() int {
	count := 0
	for _, ln := range m.lines {
		if ln.session != nil {
			count++
		}
	}
	return count
}

// busyCountLocked количество линий с непустой неидл сессией
func (m *Manager) busyCountLocked() int {
	count := 0
	for _, ln := range m.lines {
		switch ln.statusLocked() {
		case LineActive, LineHeld:
			count++
		}
	}
	return count
}

// newSessionLocked создает сессию вызова для линии и подключает
// трансляцию ее переходов состояния в события линии
func (m *Manager) newSessionLocked(ln *line) *call.Session {
	session := call.NewSession(call.Config{
		Client:      m.cfg.Client,
		Media:       m.cfg.Media,
		HoldTimeout: m.cfg.HoldTimeout,
		Logger:      m.cfg.Logger,
	})

	num := ln.number
	session.OnStateChange(func(old, new call.State) {
		// Вызывается под мьютексом сессии: здесь нельзя брать m.mu
		// и нельзя вызывать методы сессии
		m.emitEvent(LineEvent{
			Type:       LineEventStateChange,
			LineNumber: num,
			Status:     statusFromState(new),
			Timestamp:  time.Now(),
		})
	})
	return session
}

// selectLocked меняет выбор и эмитит событие при фактической смене
func (m *Manager) selectLocked(lineNumber int) {
	if m.selected == lineNumber {
		return
	}
	old := m.selected
	m.selected = lineNumber

	m.cbMu.RLock()
	h := m.onSelection
	m.cbMu.RUnlock()
	if h != nil {
		h(old, lineNumber)
	}
}

// emitLineState эмитит событие изменения статуса линии
func (m *Manager) emitLineState(lineNumber int, status LineStatus, callID string) {
	m.emitEvent(LineEvent{
		Type:       LineEventStateChange,
		LineNumber: lineNumber,
		Status:     status,
		CallID:     callID,
		Timestamp:  time.Now(),
	})
}

func (m *Manager) emitEvent(ev LineEvent) {
	m.cbMu.RLock()
	h := m.onLineState
	m.cbMu.RUnlock()
	if h != nil {
		h(ev)
	}
}

// updateActiveLinesMetric обновляет gauge занятых линий
func (m *Manager) updateActiveLinesMetric() {
	m.metrics.SetActiveLines(m.ActiveCallCount())
}

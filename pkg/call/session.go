package call

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"github.com/arzzra/call_control/pkg/dtmf"
)

// State представляет текущее состояние сессии вызова.
// Сессия проходит состояния от набора номера до завершения;
// Ended и Failed терминальные, мутирующие операции в них не принимаются.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateRinging
	StateActive
	// StateHolding оптимистичное переходное состояние: hold запрошен,
	// подтверждение от транспорта еще не получено
	StateHolding
	StateHeld
	// StateResuming переходное состояние для unhold
	StateResuming
	StateRemoteHeld
	StateEnded
	StateFailed
)

// Строковые имена состояний для FSM
const (
	stIdle       = "idle"
	stConnecting = "connecting"
	stRinging    = "ringing"
	stActive     = "active"
	stHolding    = "holding"
	stHeld       = "held"
	stResuming   = "resuming"
	stRemoteHeld = "remote_held"
	stEnded      = "ended"
	stFailed     = "failed"
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return stIdle
	case StateConnecting:
		return stConnecting
	case StateRinging:
		return stRinging
	case StateActive:
		return stActive
	case StateHolding:
		return stHolding
	case StateHeld:
		return stHeld
	case StateResuming:
		return stResuming
	case StateRemoteHeld:
		return stRemoteHeld
	case StateEnded:
		return stEnded
	case StateFailed:
		return stFailed
	default:
		return "unknown"
	}
}

func stateFromString(state string) State {
	switch state {
	case stIdle:
		return StateIdle
	case stConnecting:
		return StateConnecting
	case stRinging:
		return StateRinging
	case stActive:
		return StateActive
	case stHolding:
		return StateHolding
	case stHeld:
		return StateHeld
	case stResuming:
		return StateResuming
	case stRemoteHeld:
		return StateRemoteHeld
	case stEnded:
		return StateEnded
	case stFailed:
		return StateFailed
	default:
		return StateIdle
	}
}

// IsTerminal возвращает true для терминальных состояний
func (s State) IsTerminal() bool {
	return s == StateEnded || s == StateFailed
}

// Direction направление вызова, задается при создании и неизменно
type Direction int

const (
	DirectionNone Direction = iota
	DirectionOutgoing
	DirectionIncoming
)

func (d Direction) String() string {
	switch d {
	case DirectionOutgoing:
		return "outgoing"
	case DirectionIncoming:
		return "incoming"
	default:
		return "none"
	}
}

// StateChangeHandler вызывается при каждом переходе состояния.
// Вызывается синхронно под внутренней блокировкой сессии:
// обработчик не должен вызывать методы сессии.
type StateChangeHandler func(old, new State)

// Config конфигурация сессии вызова
type Config struct {
	// Client сигнальный клиент. Обязателен для исходящих вызовов.
	Client TransportClient

	// Media провайдер локальных медиа устройств, опционален
	Media MediaProvider

	// HoldTimeout время ожидания подтверждения hold/unhold
	HoldTimeout time.Duration

	// TickInterval период пересчета длительности вызова
	TickInterval time.Duration

	Logger *slog.Logger
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		HoldTimeout:  5 * time.Second,
		TickInterval: time.Second,
		Logger:       slog.Default(),
	}
}

// holdResult результат ожидания подтверждения hold/unhold
type holdResult struct {
	ok      bool
	message string
}

// Session представляет одну сессию вызова: конечный автомат жизненного
// цикла, защиту от конкурирующих операций и протокол подтверждения
// hold/resume. Мутирующие операции сериализуются per-session guard'ом:
// вторая операция, начатая до завершения первой, немедленно завершается
// ошибкой OperationInProgress без побочных эффектов.
type Session struct {
	cfg    Config
	logger *slog.Logger

	mu sync.Mutex
	sm *fsm.FSM

	id        string
	direction Direction
	transport TransportSession

	// pendingOp имя выполняемой мутирующей операции, guard конкурентности.
	// Инвариант: не более одного непустого значения одновременно.
	pendingOp string

	isOnHold    bool
	isLocalHold bool
	isMuted     bool
	holdError   string

	terminationCause string

	answeredAt  time.Time
	durationSec atomic.Int64
	tickerStop  chan struct{}

	holdWait   chan holdResult
	resumeWait chan holdResult

	// tones секвенсор DTMF, привязан к транспортной сессии
	tones *dtmf.Sequencer

	unsubscribe []func()

	stateHandler StateChangeHandler
}

// NewSession создает новую сессию в состоянии Idle
func NewSession(cfg Config) *Session {
	if cfg.HoldTimeout <= 0 {
		cfg.HoldTimeout = 5 * time.Second
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Session{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "call.session"),
	}
	s.initStateMachine()
	return s
}

// initStateMachine инициализирует конечный автомат состояний.
// Переходы hold_confirm/resume_confirm/remote_hold/remote_resume
// выполняются только обработчиками нотификаций транспорта —
// результат вызова Hold()/Unhold() состояние не меняет.
func (s *Session) initStateMachine() {
	s.sm = fsm.NewFSM(
		stIdle,
		fsm.Events{
			{Name: "dial", Src: []string{stIdle}, Dst: stConnecting},
			{Name: "incoming", Src: []string{stIdle}, Dst: stRinging},
			{Name: "ring", Src: []string{stConnecting}, Dst: stRinging},
			{Name: "establish", Src: []string{stConnecting, stRinging}, Dst: stActive},

			{Name: "hold_request", Src: []string{stActive}, Dst: stHolding},
			{Name: "hold_confirm", Src: []string{stHolding}, Dst: stHeld},
			{Name: "hold_revert", Src: []string{stHolding}, Dst: stActive},
			{Name: "resume_request", Src: []string{stHeld}, Dst: stResuming},
			{Name: "resume_confirm", Src: []string{stResuming}, Dst: stActive},
			{Name: "resume_revert", Src: []string{stResuming}, Dst: stHeld},
			{Name: "remote_hold", Src: []string{stActive}, Dst: stRemoteHeld},
			{Name: "remote_resume", Src: []string{stRemoteHeld}, Dst: stActive},

			{Name: "end", Src: []string{stConnecting, stRinging, stActive, stHolding, stHeld, stResuming, stRemoteHeld}, Dst: stEnded},
			{Name: "fail", Src: []string{stConnecting, stRinging, stActive, stHolding, stHeld, stResuming, stRemoteHeld}, Dst: stFailed},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				s.handleStateChange(e)
			},
		},
	)
}

// handleStateChange вызывается FSM после каждого перехода (под s.mu)
func (s *Session) handleStateChange(e *fsm.Event) {
	old := stateFromString(e.Src)
	next := stateFromString(e.Dst)

	s.logger.Debug("call.stateChange",
		"session_id", s.id,
		"from", old.String(),
		"to", next.String(),
	)

	switch {
	case next == StateActive && !s.answeredAt.IsZero() && s.tickerStop == nil:
		s.startDurationTickerLocked()
	case next.IsTerminal():
		s.stopDurationTickerLocked()
	}

	if s.stateHandler != nil {
		s.stateHandler(old, next)
	}
}

// fire выполняет переход FSM, вызывающая сторона держит s.mu
func (s *Session) fire(event string) error {
	return s.sm.Event(context.Background(), event)
}

// currentLocked текущее состояние, вызывающая сторона держит s.mu
func (s *Session) currentLocked() State {
	return stateFromString(s.sm.Current())
}

// --- Guard конкурентности ---

// beginOp захватывает guard мутирующих операций.
// При занятом guard'е возвращает OperationInProgress не выполняя
// никаких побочных эффектов.
func (s *Session) beginOp(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingOp != "" {
		return NewErrorWithSession(ErrorCodeOperationInProgress,
			fmt.Sprintf("операция %q уже выполняется", s.pendingOp), s.id)
	}
	s.pendingOp = name
	return nil
}

// endOp освобождает guard. Вызывается через defer на всех путях,
// включая synchronous panic транспорта.
func (s *Session) endOp() {
	s.mu.Lock()
	s.pendingOp = ""
	s.mu.Unlock()
}

// --- Валидация target ---

var (
	// permissiveTargetPattern либеральный фильтр идентификаторов:
	// печатный ASCII без пробелов и кавычек
	permissiveTargetPattern = regexp.MustCompile(`^[A-Za-z0-9+*#._\-@:;=%?&]+$`)

	// dialStringPattern простые номеронабираемые строки,
	// которые не являются корректными SIP URI (например "+74951234567#")
	dialStringPattern = regexp.MustCompile(`^[0-9A-Da-d+*#._\-]+$`)
)

// ValidateTarget проверяет target вызова: непустая строка и либо
// номеронабираемая строка, либо разбираемый SIP URI. Проверка
// намеренно либеральная: окончательную валидацию делает транспорт.
func ValidateTarget(target string) error {
	trimmed := strings.TrimSpace(target)
	if trimmed == "" {
		return ErrEmptyTarget
	}
	if permissiveTargetPattern.MatchString(trimmed) {
		if dialStringPattern.MatchString(trimmed) {
			return nil
		}
		uriStr := trimmed
		if !strings.Contains(uriStr, ":") {
			uriStr = "sip:" + uriStr
		}
		var uri sip.Uri
		if err := sip.ParseUri(uriStr, &uri); err == nil && uri.Host != "" {
			return nil
		}
	}
	return NewError(ErrorCodeInvalidTarget,
		fmt.Sprintf("некорректный target вызова: %q", trimmed))
}

// --- Операции жизненного цикла ---

// Dial устанавливает исходящий вызов. Блокируется до ответа удаленной
// стороны. Отмена через ctx: если ctx отменен до обращения к транспорту,
// транспорт не вызывается; если во время — после завершения вызова
// возвращается ошибка Aborted, сессия при этом корректно разбирается.
// Локальные медиа треки, захваченные до неудачного вызова,
// освобождаются ровно один раз до возврата ошибки.
func (s *Session) Dial(ctx context.Context, target string, opts CallOptions) error {
	if err := s.beginOp("dial"); err != nil {
		return err
	}
	defer s.endOp()

	if s.cfg.Client == nil {
		return ErrClientNotInitialized
	}
	if err := ValidateTarget(target); err != nil {
		return err
	}

	s.mu.Lock()
	if cur := s.currentLocked(); cur != StateIdle {
		s.mu.Unlock()
		return NewErrorWithSession(ErrorCodeInvalidState,
			fmt.Sprintf("dial невозможен в состоянии %s", cur), s.id)
	}
	s.mu.Unlock()

	// Отмена до обращения к транспорту: медиа еще не захвачено
	if ctx.Err() != nil {
		return NewError(ErrorCodeAborted, "вызов отменен до отправки")
	}

	stream, err := s.acquireMedia(ctx, MediaConstraints{Audio: opts.Audio, Video: opts.Video})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.direction = DirectionOutgoing
	_ = s.fire("dial")
	s.mu.Unlock()

	var ts TransportSession
	callErr := safeTransportCall(func() error {
		var err error
		ts, err = s.cfg.Client.Call(ctx, target, opts)
		return err
	})

	if ctx.Err() != nil {
		// Отмена во время ожидания ответа транспорта
		if ts != nil {
			_ = ts.Hangup()
		}
		releaseTracks(stream)
		s.fail("aborted")
		return NewErrorWithSession(ErrorCodeAborted, "вызов отменен", s.id)
	}
	if callErr != nil {
		releaseTracks(stream)
		s.fail("transport_error")
		return WrapError(ErrorCodeTransportFailed, "ошибка установления вызова", callErr)
	}

	s.mu.Lock()
	s.attachTransportLocked(ts)
	s.answeredAt = time.Now()
	s.durationSec.Store(0)
	_ = s.fire("establish")
	s.mu.Unlock()

	s.logger.Debug("call.Dial established", "session_id", s.ID(), "target", target)
	return nil
}

// AttachIncoming привязывает входящую транспортную сессию.
// Сессия переходит в состояние Ringing и ждет Answer/Reject.
func (s *Session) AttachIncoming(ts TransportSession) error {
	if err := s.beginOp("attach"); err != nil {
		return err
	}
	defer s.endOp()

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur := s.currentLocked(); cur != StateIdle {
		return NewErrorWithSession(ErrorCodeInvalidState,
			fmt.Sprintf("входящий вызов невозможен в состоянии %s", cur), s.id)
	}
	s.direction = DirectionIncoming
	s.attachTransportLocked(ts)
	return s.fire("incoming")
}

// Answer отвечает на входящий вызов. Как и Dial, при неудаче
// освобождает захваченные медиа треки до возврата ошибки.
func (s *Session) Answer(ctx context.Context, opts AnswerOptions) error {
	if err := s.beginOp("answer"); err != nil {
		return err
	}
	defer s.endOp()

	s.mu.Lock()
	ts := s.transport
	cur := s.currentLocked()
	s.mu.Unlock()

	if ts == nil {
		return ErrNoActiveSession
	}
	if cur != StateRinging {
		return NewErrorWithSession(ErrorCodeInvalidState,
			fmt.Sprintf("answer невозможен в состоянии %s", cur), s.id)
	}

	stream, err := s.acquireMedia(ctx, MediaConstraints{Audio: opts.Audio, Video: opts.Video})
	if err != nil {
		return err
	}

	answerErr := safeTransportCall(func() error {
		return ts.Answer(ctx, opts)
	})
	if answerErr != nil {
		releaseTracks(stream)
		// Состояние остается Ringing: вызов можно отклонить или
		// попробовать ответить еще раз
		return WrapError(ErrorCodeTransportFailed, "ошибка ответа на вызов", answerErr)
	}

	s.mu.Lock()
	s.answeredAt = time.Now()
	s.durationSec.Store(0)
	_ = s.fire("establish")
	s.mu.Unlock()
	return nil
}

// Reject отклоняет входящий вызов с указанным кодом
func (s *Session) Reject(code int) error {
	if err := s.beginOp("reject"); err != nil {
		return err
	}
	defer s.endOp()

	s.mu.Lock()
	ts := s.transport
	cur := s.currentLocked()
	s.mu.Unlock()

	if ts == nil {
		return ErrNoActiveSession
	}
	if cur != StateRinging {
		return NewErrorWithSession(ErrorCodeInvalidState,
			fmt.Sprintf("reject невозможен в состоянии %s", cur), s.id)
	}

	rejectErr := ts.Reject(code)

	s.mu.Lock()
	s.terminationCause = "rejected"
	_ = s.fire("end")
	s.detachLocked()
	s.mu.Unlock()

	if rejectErr != nil {
		return WrapError(ErrorCodeTransportFailed, "ошибка отклонения вызова", rejectErr)
	}
	return nil
}

// Hangup завершает вызов. Локальное состояние переводится в Ended
// даже если транспорт вернул ошибку: сессия в любом случае разбирается.
func (s *Session) Hangup() error {
	if err := s.beginOp("hangup"); err != nil {
		return err
	}
	defer s.endOp()

	s.mu.Lock()
	ts := s.transport
	s.mu.Unlock()

	if ts == nil {
		return ErrNoActiveSession
	}

	hangupErr := ts.Hangup()

	s.mu.Lock()
	s.terminationCause = "local_hangup"
	_ = s.fire("end")
	s.detachLocked()
	s.mu.Unlock()

	if hangupErr != nil {
		return WrapError(ErrorCodeTransportFailed, "ошибка завершения вызова", hangupErr)
	}
	return nil
}

// Refer запрашивает перевод вызова на target (unattended transfer)
func (s *Session) Refer(target string) error {
	if err := s.beginOp("refer"); err != nil {
		return err
	}
	defer s.endOp()

	s.mu.Lock()
	ts := s.transport
	s.mu.Unlock()

	if ts == nil {
		return ErrNoActiveSession
	}
	if err := ValidateTarget(target); err != nil {
		return err
	}
	if err := ts.Refer(target); err != nil {
		return WrapError(ErrorCodeTransportFailed, "ошибка перевода вызова", err)
	}
	return nil
}

// SendDTMF отправляет один DTMF сигнал. Тон валидируется до обращения
// к транспорту; недопустимый символ никогда не доходит до сети.
func (s *Session) SendDTMF(tone string, duration time.Duration) error {
	if err := s.beginOp("dtmf"); err != nil {
		return err
	}
	defer s.endOp()

	s.mu.Lock()
	tones := s.tones
	s.mu.Unlock()

	if tones == nil {
		return ErrNoActiveSession
	}
	return tones.SendTone(tone, dtmf.SendOptions{Duration: duration})
}

// Tones возвращает DTMF секвенсор сессии для последовательностей
// и очередей тонов; nil до привязки транспорта
func (s *Session) Tones() *dtmf.Sequencer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tones
}

// GetStats возвращает статистику транспортной сессии.
// Немутирующая операция, guard не захватывает.
func (s *Session) GetStats() (Stats, error) {
	s.mu.Lock()
	ts := s.transport
	s.mu.Unlock()
	if ts == nil {
		return nil, ErrNoActiveSession
	}
	return ts.GetStats()
}

// Close разбирает сессию: останавливает таймеры, отписывается от
// нотификаций транспорта и сбрасывает состояние hold, чтобы
// уничтоженная сессия не подтвердила устаревший pending hold.
// Идемпотентен.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detachLocked()
	s.stopDurationTickerLocked()
	s.isOnHold = false
	s.isLocalHold = false
	s.holdWait = nil
	s.resumeWait = nil
}

// --- Аксессоры ---

// ID идентификатор сессии (от транспорта, либо локально сгенерированный)
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// State текущее состояние сессии
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked()
}

// Direction направление вызова
func (s *Session) Direction() Direction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.direction
}

// IsOnHold true если вызов на удержании (локальном или удаленном)
func (s *Session) IsOnHold() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isOnHold
}

// IsLocalHold true только для локально инициированного удержания
func (s *Session) IsLocalHold() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isLocalHold
}

// IsMuted текущее состояние mute
func (s *Session) IsMuted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isMuted
}

// SetMuted переключает локальный mute
func (s *Session) SetMuted(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isMuted = muted
}

// HoldError текст последней ошибки hold/unhold (out-of-band)
func (s *Session) HoldError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holdError
}

// TerminationCause причина завершения, заполняется в Ended/Failed
func (s *Session) TerminationCause() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminationCause
}

// AnsweredAt момент ответа на вызов (нулевое время до ответа)
func (s *Session) AnsweredAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answeredAt
}

// DurationSeconds длительность вызова в секундах.
// Пересчитывается тикером от момента ответа, а не инкрементом,
// поэтому остается корректной при пропущенных тиках.
func (s *Session) DurationSeconds() int64 {
	return s.durationSec.Load()
}

// OnStateChange устанавливает обработчик переходов состояния
func (s *Session) OnStateChange(h StateChangeHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateHandler = h
}

// --- Внутреннее ---

// acquireMedia захватывает локальные медиа устройства.
// При nil провайдере возвращает nil поток без ошибки.
func (s *Session) acquireMedia(ctx context.Context, c MediaConstraints) (MediaStream, error) {
	if s.cfg.Media == nil {
		return nil, nil
	}
	stream, err := s.cfg.Media.GetUserMedia(ctx, c)
	if err != nil {
		return nil, WrapError(ErrorCodeMediaFailed, "ошибка захвата локального медиа", err)
	}
	return stream, nil
}

// safeTransportCall выполняет вызов транспорта, преобразуя synchronous
// panic в обычную ошибку. Значения не-error приводятся к стабильному
// generic сообщению. Гарантирует, что guard и захваченные медиа
// освобождаются даже при аварийном транспорте.
func safeTransportCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = coerceError(r)
		}
	}()
	return fn()
}

// releaseTracks освобождает все треки потока, ровно один раз каждый
func releaseTracks(stream MediaStream) {
	if stream == nil {
		return
	}
	for _, track := range stream.GetTracks() {
		track.Stop()
	}
}

// attachTransportLocked привязывает транспортную сессию и подписывается
// на ее нотификации. Вызывающая сторона держит s.mu.
func (s *Session) attachTransportLocked(ts TransportSession) {
	s.transport = ts
	s.id = ts.ID()
	if s.id == "" {
		s.id = uuid.NewString()
	}
	s.tones = dtmf.NewSequencer(ts, s.cfg.Logger)
	s.unsubscribe = []func(){
		ts.OnNotification(NotificationHold, s.onHoldNotification),
		ts.OnNotification(NotificationUnhold, s.onUnholdNotification),
		ts.OnNotification(NotificationHoldFailed, s.onHoldFailedNotification),
		ts.OnNotification(NotificationUnholdFailed, s.onUnholdFailedNotification),
	}
}

// detachLocked отписывается от всех нотификаций транспорта.
// Вызывающая сторона держит s.mu.
func (s *Session) detachLocked() {
	for _, unsub := range s.unsubscribe {
		unsub()
	}
	s.unsubscribe = nil
}

// fail переводит сессию в Failed с указанной причиной
func (s *Session) fail(cause string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminationCause = cause
	_ = s.fire("fail")
}

func (s *Session) startDurationTickerLocked() {
	if s.tickerStop != nil {
		return
	}
	stop := make(chan struct{})
	s.tickerStop = stop
	answeredAt := s.answeredAt
	go s.runDurationTicker(answeredAt, stop)
}

func (s *Session) stopDurationTickerLocked() {
	if s.tickerStop != nil {
		close(s.tickerStop)
		s.tickerStop = nil
	}
}

func (s *Session) runDurationTicker(answeredAt time.Time, stop chan struct{}) {
	s.logger.Debug("call.durationTicker Started", "session_id", s.id)
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			s.logger.Debug("call.durationTicker Stopped", "session_id", s.id)
			return
		case <-ticker.C:
			s.durationSec.Store(int64(time.Since(answeredAt).Seconds()))
		}
	}
}

package call

import (
	"fmt"
	"time"
)

// Протокол подтверждения hold/resume.
//
// Hold и Unhold двухфазные: вызов транспортного примитива лишь запускает
// операцию, истинный переход состояния происходит только по нотификации
// hold/unhold на канале событий самой сессии. Если подтверждение не
// пришло за cfg.HoldTimeout, состояние откатывается и возвращается
// HoldTimeout/ResumeTimeout; повторная отправка не выполняется.
//
// Нотификации с originator=remote принимаются и без локального запроса:
// Active ⇄ RemoteHeld. Этот путь не трогает isLocalHold и не участвует
// в локальном таймауте.

// Hold запрашивает удержание вызова и ждет подтверждения транспорта
func (s *Session) Hold() error {
	if err := s.beginOp("hold"); err != nil {
		return err
	}
	defer s.endOp()

	s.mu.Lock()
	if s.transport == nil {
		s.mu.Unlock()
		return ErrNoActiveSession
	}
	cur := s.currentLocked()
	if s.isOnHold || cur == StateHeld || cur == StateRemoteHeld {
		s.mu.Unlock()
		return NewErrorWithSession(ErrorCodeAlreadyOnHold, "вызов уже на удержании", s.id)
	}
	if cur != StateActive {
		s.mu.Unlock()
		return NewErrorWithSession(ErrorCodeInvalidState,
			fmt.Sprintf("hold невозможен в состоянии %s", cur), s.id)
	}

	wait := make(chan holdResult, 1)
	s.holdWait = wait
	_ = s.fire("hold_request")
	ts := s.transport
	s.mu.Unlock()

	if err := safeTransportCall(ts.Hold); err != nil {
		s.revertHold("")
		return WrapError(ErrorCodeTransportFailed, "ошибка запроса hold", err)
	}

	timer := time.NewTimer(s.cfg.HoldTimeout)
	defer timer.Stop()

	select {
	case res := <-wait:
		// Переход в Held уже выполнил обработчик нотификации
		if !res.ok {
			return WrapError(ErrorCodeTransportFailed, "hold отклонен транспортом", coerceError(res.message))
		}
		return nil
	case <-timer.C:
		s.revertHold(fmt.Sprintf("timeout ожидания подтверждения hold (%s)", s.cfg.HoldTimeout))
		return NewErrorWithSession(ErrorCodeHoldTimeout,
			fmt.Sprintf("timeout ожидания подтверждения hold (%s)", s.cfg.HoldTimeout), s.id)
	}
}

// Unhold снимает локальное удержание и ждет подтверждения транспорта
func (s *Session) Unhold() error {
	if err := s.beginOp("unhold"); err != nil {
		return err
	}
	defer s.endOp()

	s.mu.Lock()
	if s.transport == nil {
		s.mu.Unlock()
		return ErrNoActiveSession
	}
	cur := s.currentLocked()
	if !s.isOnHold {
		s.mu.Unlock()
		return NewErrorWithSession(ErrorCodeNotOnHold, "вызов не на удержании", s.id)
	}
	if !s.isLocalHold || cur != StateHeld {
		s.mu.Unlock()
		return NewErrorWithSession(ErrorCodeInvalidState,
			"снять можно только локальное удержание", s.id)
	}

	wait := make(chan holdResult, 1)
	s.resumeWait = wait
	_ = s.fire("resume_request")
	ts := s.transport
	s.mu.Unlock()

	if err := safeTransportCall(ts.Unhold); err != nil {
		s.revertResume("")
		return WrapError(ErrorCodeTransportFailed, "ошибка запроса unhold", err)
	}

	timer := time.NewTimer(s.cfg.HoldTimeout)
	defer timer.Stop()

	select {
	case res := <-wait:
		if !res.ok {
			return WrapError(ErrorCodeTransportFailed, "unhold отклонен транспортом", coerceError(res.message))
		}
		return nil
	case <-timer.C:
		s.revertResume(fmt.Sprintf("timeout ожидания подтверждения unhold (%s)", s.cfg.HoldTimeout))
		return NewErrorWithSession(ErrorCodeResumeTimeout,
			fmt.Sprintf("timeout ожидания подтверждения unhold (%s)", s.cfg.HoldTimeout), s.id)
	}
}

// ToggleHold вызывает Hold или Unhold в зависимости от текущего состояния
func (s *Session) ToggleHold() error {
	if s.IsOnHold() {
		return s.Unhold()
	}
	return s.Hold()
}

// revertHold откатывает незавершенный hold в Active.
// Непустое msg записывается в holdError.
func (s *Session) revertHold(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdWait = nil
	if msg != "" {
		s.holdError = msg
	}
	if s.currentLocked() == StateHolding {
		_ = s.fire("hold_revert")
	}
}

// revertResume откатывает незавершенный unhold в Held
func (s *Session) revertResume(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumeWait = nil
	if msg != "" {
		s.holdError = msg
	}
	if s.currentLocked() == StateResuming {
		_ = s.fire("resume_revert")
	}
}

// --- Обработчики нотификаций транспорта ---

// onHoldNotification подтверждение hold. Единственный путь в Held
// для локального удержания; remote-путь переводит Active → RemoteHeld.
func (s *Session) onHoldNotification(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch n.Originator {
	case OriginatorRemote:
		if s.currentLocked() == StateActive {
			_ = s.fire("remote_hold")
			s.isOnHold = true
			// isLocalHold для remote-удержания никогда не выставляется
		}
	case OriginatorLocal:
		if s.currentLocked() == StateHolding {
			_ = s.fire("hold_confirm")
			s.isOnHold = true
			s.isLocalHold = true
			s.holdError = ""
			if s.holdWait != nil {
				s.holdWait <- holdResult{ok: true}
				s.holdWait = nil
			}
		}
	}
}

// onUnholdNotification подтверждение unhold
func (s *Session) onUnholdNotification(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch n.Originator {
	case OriginatorRemote:
		if s.currentLocked() == StateRemoteHeld {
			_ = s.fire("remote_resume")
			s.isOnHold = false
		}
	case OriginatorLocal:
		if s.currentLocked() == StateResuming {
			_ = s.fire("resume_confirm")
			s.isOnHold = false
			s.isLocalHold = false
			s.holdError = ""
			if s.resumeWait != nil {
				s.resumeWait <- holdResult{ok: true}
				s.resumeWait = nil
			}
		}
	}
}

// onHoldFailedNotification приходит out-of-band: состояние откатывается,
// текст ошибки записывается, наружу ничего не выбрасывается. Если
// вызывающая сторона еще ждет подтверждения, она получает результат
// через канал ожидания.
func (s *Session) onHoldFailedNotification(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.holdError = n.Message
	if s.currentLocked() == StateHolding {
		_ = s.fire("hold_revert")
	}
	if s.holdWait != nil {
		s.holdWait <- holdResult{ok: false, message: n.Message}
		s.holdWait = nil
	}
}

// onUnholdFailedNotification симметрично hold_failed
func (s *Session) onUnholdFailedNotification(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.holdError = n.Message
	if s.currentLocked() == StateResuming {
		_ = s.fire("resume_revert")
	}
	if s.resumeWait != nil {
		s.resumeWait <- holdResult{ok: false, message: n.Message}
		s.resumeWait = nil
	}
}

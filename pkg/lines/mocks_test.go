package lines_test

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arzzra/call_control/pkg/call"
)

// fakeSession транспортная сессия, подтверждающая hold/unhold
// немедленной локальной нотификацией
type fakeSession struct {
	mu sync.Mutex

	id string

	answerCalls int
	rejectCalls int
	hangupCalls int
	holdCalls   int
	unholdCalls int
	referCalls  int
	referTarget string

	// confirmHold=false имитирует сервер, игнорирующий re-INVITE:
	// hold завершится по таймауту
	confirmHold   bool
	confirmUnhold bool

	handlers map[call.NotificationType]map[int]func(call.Notification)
	nextSub  int
}

func newFakeSession(id string) *fakeSession {
	return &fakeSession{
		id:            id,
		confirmHold:   true,
		confirmUnhold: true,
		handlers:      make(map[call.NotificationType]map[int]func(call.Notification)),
	}
}

func (f *fakeSession) ID() string { return f.id }

func (f *fakeSession) Answer(ctx context.Context, opts call.AnswerOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answerCalls++
	return nil
}

func (f *fakeSession) Reject(code int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectCalls++
	return nil
}

func (f *fakeSession) Hangup() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hangupCalls++
	return nil
}

func (f *fakeSession) Hold() error {
	f.mu.Lock()
	f.holdCalls++
	confirm := f.confirmHold
	f.mu.Unlock()
	if confirm {
		go f.emit(call.NotificationHold, call.Notification{
			Type:       call.NotificationHold,
			Originator: call.OriginatorLocal,
			Timestamp:  time.Now(),
		})
	}
	return nil
}

func (f *fakeSession) Unhold() error {
	f.mu.Lock()
	f.unholdCalls++
	confirm := f.confirmUnhold
	f.mu.Unlock()
	if confirm {
		go f.emit(call.NotificationUnhold, call.Notification{
			Type:       call.NotificationUnhold,
			Originator: call.OriginatorLocal,
			Timestamp:  time.Now(),
		})
	}
	return nil
}

func (f *fakeSession) Refer(target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.referCalls++
	f.referTarget = target
	return nil
}

func (f *fakeSession) SendDTMF(tone string, duration time.Duration) error {
	return nil
}

func (f *fakeSession) GetStats() (call.Stats, error) {
	return call.Stats{}, nil
}

func (f *fakeSession) OnNotification(t call.NotificationType, h func(call.Notification)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers[t] == nil {
		f.handlers[t] = make(map[int]func(call.Notification))
	}
	id := f.nextSub
	f.nextSub++
	f.handlers[t][id] = h
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers[t], id)
	}
}

func (f *fakeSession) emit(t call.NotificationType, n call.Notification) {
	f.mu.Lock()
	hs := make([]func(call.Notification), 0, len(f.handlers[t]))
	for _, h := range f.handlers[t] {
		hs = append(hs, h)
	}
	f.mu.Unlock()
	for _, h := range hs {
		h(n)
	}
}

func (f *fakeSession) holdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.holdCalls
}

// fakeClient выдает новую fakeSession на каждый вызов
type fakeClient struct {
	mu sync.Mutex

	callErr  error
	sessions []*fakeSession
	targets  []string

	// delay имитация долгого установления вызова
	delay time.Duration

	// onCall вызывается внутри Call до возврата: точка наблюдения
	// за порядком политик (auto-hold до набора)
	onCall func()
}

func (c *fakeClient) Call(ctx context.Context, target string, opts call.CallOptions) (call.TransportSession, error) {
	c.mu.Lock()
	c.targets = append(c.targets, target)
	n := len(c.sessions) + 1
	hook := c.onCall
	delay := c.delay
	c.mu.Unlock()

	if hook != nil {
		hook()
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if c.callErr != nil {
		return nil, c.callErr
	}

	s := newFakeSession(fmt.Sprintf("sess-%d", n))
	c.mu.Lock()
	c.sessions = append(c.sessions, s)
	c.mu.Unlock()
	return s, nil
}

func (c *fakeClient) session(i int) *fakeSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[i]
}

// slowMedia провайдер с задержкой захвата, имитация медленных устройств
type slowMedia struct {
	delay time.Duration
}

func (m *slowMedia) GetUserMedia(ctx context.Context, c call.MediaConstraints) (call.MediaStream, error) {
	time.Sleep(m.delay)
	return &fakeMediaStream{}, nil
}

func (m *slowMedia) GetLocalStream() call.MediaStream {
	return &fakeMediaStream{}
}

// syncBuffer потокобезопасный буфер для захвата логов в тестах
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// fakeMedia провайдер медиа без реальных устройств
type fakeMedia struct{}

type fakeMediaTrack struct{ kind string }

func (t *fakeMediaTrack) Kind() string { return t.kind }
func (t *fakeMediaTrack) Stop()        {}

type fakeMediaStream struct{}

func (s *fakeMediaStream) GetTracks() []call.MediaTrack {
	return []call.MediaTrack{&fakeMediaTrack{kind: "audio"}}
}

func (m *fakeMedia) GetUserMedia(ctx context.Context, c call.MediaConstraints) (call.MediaStream, error) {
	return &fakeMediaStream{}, nil
}

func (m *fakeMedia) GetLocalStream() call.MediaStream {
	return &fakeMediaStream{}
}

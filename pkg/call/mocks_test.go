package call_test

import (
	"context"
	"sync"
	"time"

	"github.com/arzzra/call_control/pkg/call"
)

// mockTransportSession транспортная сессия с инъекцией ошибок и
// ручной эмиссией нотификаций
type mockTransportSession struct {
	mu sync.Mutex

	id string

	answerCalls int
	rejectCalls int
	hangupCalls int
	holdCalls   int
	unholdCalls int
	referCalls  int
	dtmfSent    []string

	answerErr error
	holdErr   error
	unholdErr error

	// confirmHold/confirmUnhold эмитить локальное подтверждение
	// сразу после вызова примитива (имитация сговорчивого сервера)
	confirmHold   bool
	confirmUnhold bool

	handlers map[call.NotificationType]map[int]func(call.Notification)
	nextSub  int
}

func newMockTransportSession(id string) *mockTransportSession {
	return &mockTransportSession{
		id:       id,
		handlers: make(map[call.NotificationType]map[int]func(call.Notification)),
	}
}

func (m *mockTransportSession) ID() string { return m.id }

func (m *mockTransportSession) Answer(ctx context.Context, opts call.AnswerOptions) error {
	m.mu.Lock()
	m.answerCalls++
	err := m.answerErr
	m.mu.Unlock()
	return err
}

func (m *mockTransportSession) Reject(code int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejectCalls++
	return nil
}

func (m *mockTransportSession) Hangup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hangupCalls++
	return nil
}

func (m *mockTransportSession) Hold() error {
	m.mu.Lock()
	m.holdCalls++
	err := m.holdErr
	confirm := m.confirmHold
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if confirm {
		go m.emit(call.NotificationHold, call.Notification{
			Type:       call.NotificationHold,
			Originator: call.OriginatorLocal,
			Timestamp:  time.Now(),
		})
	}
	return nil
}

func (m *mockTransportSession) Unhold() error {
	m.mu.Lock()
	m.unholdCalls++
	err := m.unholdErr
	confirm := m.confirmUnhold
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if confirm {
		go m.emit(call.NotificationUnhold, call.Notification{
			Type:       call.NotificationUnhold,
			Originator: call.OriginatorLocal,
			Timestamp:  time.Now(),
		})
	}
	return nil
}

func (m *mockTransportSession) Refer(target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.referCalls++
	return nil
}

func (m *mockTransportSession) SendDTMF(tone string, duration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dtmfSent = append(m.dtmfSent, tone)
	return nil
}

func (m *mockTransportSession) GetStats() (call.Stats, error) {
	return call.Stats{"mock": true}, nil
}

func (m *mockTransportSession) OnNotification(t call.NotificationType, h func(call.Notification)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handlers[t] == nil {
		m.handlers[t] = make(map[int]func(call.Notification))
	}
	id := m.nextSub
	m.nextSub++
	m.handlers[t][id] = h
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.handlers[t], id)
	}
}

// emit доставляет нотификацию всем подписчикам типа
func (m *mockTransportSession) emit(t call.NotificationType, n call.Notification) {
	m.mu.Lock()
	hs := make([]func(call.Notification), 0, len(m.handlers[t]))
	for _, h := range m.handlers[t] {
		hs = append(hs, h)
	}
	m.mu.Unlock()
	for _, h := range hs {
		h(n)
	}
}

func (m *mockTransportSession) subscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, hs := range m.handlers {
		total += len(hs)
	}
	return total
}

// mockTransportClient клиент, выдающий заранее настроенную сессию
type mockTransportClient struct {
	mu sync.Mutex

	session *mockTransportSession
	callErr error

	// delay имитация долгого установления вызова
	delay time.Duration
	// panicOnCall имитация аварийного транспорта
	panicOnCall bool

	calls   int
	targets []string
}

func (m *mockTransportClient) Call(ctx context.Context, target string, opts call.CallOptions) (call.TransportSession, error) {
	m.mu.Lock()
	m.calls++
	m.targets = append(m.targets, target)
	delay := m.delay
	m.mu.Unlock()

	if m.panicOnCall {
		panic("transport exploded")
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			// Транспорт успел создать сессию к моменту отмены
			return m.session, nil
		}
	}
	if m.callErr != nil {
		return nil, m.callErr
	}
	return m.session, nil
}

func (m *mockTransportClient) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockTrack медиа трек со счетчиком освобождений
type mockTrack struct {
	kind  string
	mu    sync.Mutex
	stops int
}

func (t *mockTrack) Kind() string { return t.kind }

func (t *mockTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stops++
}

func (t *mockTrack) stopCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

// mockStream набор треков
type mockStream struct {
	tracks []*mockTrack
}

func (s *mockStream) GetTracks() []call.MediaTrack {
	out := make([]call.MediaTrack, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t
	}
	return out
}

// mockMediaProvider провайдер с инъекцией ошибки захвата
type mockMediaProvider struct {
	mu sync.Mutex

	stream     *mockStream
	acquireErr error
	acquires   int
}

func newMockMediaProvider() *mockMediaProvider {
	return &mockMediaProvider{
		stream: &mockStream{tracks: []*mockTrack{
			{kind: "audio"},
			{kind: "video"},
		}},
	}
}

func (p *mockMediaProvider) GetUserMedia(ctx context.Context, c call.MediaConstraints) (call.MediaStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acquires++
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	return p.stream, nil
}

func (p *mockMediaProvider) GetLocalStream() call.MediaStream {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stream
}

package call_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/call_control/pkg/call"
)

func newTestConfig(client call.TransportClient, media call.MediaProvider) call.Config {
	cfg := call.DefaultConfig()
	cfg.Client = client
	cfg.Media = media
	cfg.HoldTimeout = 200 * time.Millisecond
	cfg.TickInterval = 20 * time.Millisecond
	return cfg
}

// TestDialSuccess проверяет успешное установление исходящего вызова
func TestDialSuccess(t *testing.T) {
	ts := newMockTransportSession("call-1")
	client := &mockTransportClient{session: ts}

	s := call.NewSession(newTestConfig(client, nil))
	defer s.Close()

	err := s.Dial(context.Background(), "sip:bob@example.com", call.CallOptions{Audio: true})
	require.NoError(t, err, "Dial should succeed")

	assert.Equal(t, call.StateActive, s.State(), "State should be Active")
	assert.Equal(t, "call-1", s.ID())
	assert.Equal(t, call.DirectionOutgoing, s.Direction())
	assert.Equal(t, int64(0), s.DurationSeconds(), "Duration resets to zero on a new call")
	assert.Equal(t, 1, client.callCount())
}

// TestDialValidation проверяет предусловия до любых побочных эффектов
func TestDialValidation(t *testing.T) {
	t.Run("Нет транспортного клиента", func(t *testing.T) {
		s := call.NewSession(call.DefaultConfig())
		err := s.Dial(context.Background(), "sip:bob@example.com", call.CallOptions{})
		require.Error(t, err)
		assert.ErrorIs(t, err, call.ErrClientNotInitialized)
	})

	t.Run("Пустой target", func(t *testing.T) {
		client := &mockTransportClient{session: newMockTransportSession("x")}
		s := call.NewSession(newTestConfig(client, nil))
		err := s.Dial(context.Background(), "   ", call.CallOptions{})
		assert.ErrorIs(t, err, call.ErrEmptyTarget)
		assert.Equal(t, 0, client.callCount(), "Transport must not be invoked")
	})

	t.Run("Некорректный target", func(t *testing.T) {
		client := &mockTransportClient{session: newMockTransportSession("x")}
		s := call.NewSession(newTestConfig(client, nil))
		err := s.Dial(context.Background(), "не номер и не uri!!", call.CallOptions{})
		assert.ErrorIs(t, err, call.ErrInvalidTarget)
		assert.Equal(t, 0, client.callCount())
	})
}

// TestValidateTarget проверяет либеральный разбор target
func TestValidateTarget(t *testing.T) {
	valid := []string{
		"sip:bob@example.com",
		"bob@example.com",
		"+74951234567",
		"1000",
		"*97#",
	}
	for _, target := range valid {
		assert.NoError(t, call.ValidateTarget(target), "target %q should be valid", target)
	}

	invalid := []string{"", "  ", "кириллица", "a b c"}
	for _, target := range invalid {
		assert.Error(t, call.ValidateTarget(target), "target %q should be invalid", target)
	}
}

// TestConcurrencyGuard проверяет сериализацию мутирующих операций:
// вторая операция немедленно завершается OperationInProgress,
// первая доводится до конца, после чего guard свободен
func TestConcurrencyGuard(t *testing.T) {
	ts := newMockTransportSession("guarded")
	client := &mockTransportClient{session: ts, delay: 150 * time.Millisecond}

	s := call.NewSession(newTestConfig(client, nil))
	defer s.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	firstErr := make(chan error, 1)
	go func() {
		defer wg.Done()
		firstErr <- s.Dial(context.Background(), "sip:slow@example.com", call.CallOptions{})
	}()

	// Даем первой операции захватить guard
	time.Sleep(30 * time.Millisecond)

	err := s.Hangup()
	require.Error(t, err, "Second concurrent operation must fail")
	assert.ErrorIs(t, err, call.ErrOperationInProgress)

	wg.Wait()
	require.NoError(t, <-firstErr, "First operation must complete")

	// Guard свободен: третья операция проходит
	require.NoError(t, s.Hangup())
	assert.Equal(t, call.StateEnded, s.State())
}

// TestGuardReleasedOnFailure проверяет освобождение guard при ошибке
// транспорта, включая synchronous panic
func TestGuardReleasedOnFailure(t *testing.T) {
	t.Run("Ошибка транспорта", func(t *testing.T) {
		client := &mockTransportClient{callErr: errors.New("network unreachable")}
		s := call.NewSession(newTestConfig(client, nil))

		err := s.Dial(context.Background(), "sip:bob@example.com", call.CallOptions{})
		require.Error(t, err)
		assert.Equal(t, call.StateFailed, s.State())

		// Guard освобожден: следующая операция получает осмысленную
		// ошибку предусловия, а не OperationInProgress
		err = s.Hold()
		assert.NotErrorIs(t, err, call.ErrOperationInProgress)
	})

	t.Run("Panic транспорта", func(t *testing.T) {
		client := &mockTransportClient{panicOnCall: true}
		s := call.NewSession(newTestConfig(client, nil))

		err := s.Dial(context.Background(), "sip:bob@example.com", call.CallOptions{})
		require.Error(t, err, "panic must surface as error")
		assert.Equal(t, call.StateFailed, s.State())

		err = s.Hold()
		assert.NotErrorIs(t, err, call.ErrOperationInProgress)
	})
}

// TestMediaCleanupOnDialFailure проверяет жесткий инвариант:
// каждый захваченный трек освобождается ровно один раз
func TestMediaCleanupOnDialFailure(t *testing.T) {
	media := newMockMediaProvider()
	client := &mockTransportClient{callErr: errors.New("503 service unavailable")}

	s := call.NewSession(newTestConfig(client, media))

	err := s.Dial(context.Background(), "sip:bob@example.com", call.CallOptions{Audio: true, Video: true})
	require.Error(t, err)

	for _, track := range media.stream.tracks {
		assert.Equal(t, 1, track.stopCount(),
			"track %s must be released exactly once", track.kind)
	}
}

// TestMediaCleanupOnAnswerFailure то же для ответа на входящий вызов
func TestMediaCleanupOnAnswerFailure(t *testing.T) {
	ts := newMockTransportSession("incoming-1")
	ts.answerErr = errors.New("488 not acceptable")
	media := newMockMediaProvider()

	s := call.NewSession(newTestConfig(nil, media))
	require.NoError(t, s.AttachIncoming(ts))
	assert.Equal(t, call.StateRinging, s.State())

	err := s.Answer(context.Background(), call.AnswerOptions{Audio: true})
	require.Error(t, err)

	for _, track := range media.stream.tracks {
		assert.Equal(t, 1, track.stopCount())
	}
	// Неудачный ответ не разрушает сессию: вызов все еще звонит
	assert.Equal(t, call.StateRinging, s.State())
}

// TestDialAborted проверяет семантику отмены установления вызова
func TestDialAborted(t *testing.T) {
	t.Run("Отмена до обращения к транспорту", func(t *testing.T) {
		client := &mockTransportClient{session: newMockTransportSession("x")}
		s := call.NewSession(newTestConfig(client, nil))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := s.Dial(ctx, "sip:bob@example.com", call.CallOptions{})
		require.Error(t, err)
		assert.ErrorIs(t, err, call.ErrAborted, "distinguished Aborted kind expected")
		assert.Equal(t, 0, client.callCount(), "Transport must never be invoked")
	})

	t.Run("Отмена во время установления", func(t *testing.T) {
		ts := newMockTransportSession("cancelled-midflight")
		client := &mockTransportClient{session: ts, delay: 300 * time.Millisecond}
		media := newMockMediaProvider()
		s := call.NewSession(newTestConfig(client, media))

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
		}()

		err := s.Dial(ctx, "sip:bob@example.com", call.CallOptions{Audio: true})
		require.Error(t, err)
		assert.ErrorIs(t, err, call.ErrAborted)

		// Медиа освобождено несмотря на отмену
		for _, track := range media.stream.tracks {
			assert.Equal(t, 1, track.stopCount())
		}
	})
}

// TestAnswerRejectLifecycle входящий вызов: ответ и отклонение
func TestAnswerRejectLifecycle(t *testing.T) {
	t.Run("Answer", func(t *testing.T) {
		ts := newMockTransportSession("inc-answer")
		s := call.NewSession(newTestConfig(nil, nil))
		require.NoError(t, s.AttachIncoming(ts))
		assert.Equal(t, call.DirectionIncoming, s.Direction())

		require.NoError(t, s.Answer(context.Background(), call.AnswerOptions{Audio: true}))
		assert.Equal(t, call.StateActive, s.State())
		assert.Equal(t, 1, ts.answerCalls)
	})

	t.Run("Reject", func(t *testing.T) {
		ts := newMockTransportSession("inc-reject")
		s := call.NewSession(newTestConfig(nil, nil))
		require.NoError(t, s.AttachIncoming(ts))

		require.NoError(t, s.Reject(486))
		assert.Equal(t, call.StateEnded, s.State())
		assert.Equal(t, "rejected", s.TerminationCause())
		assert.Equal(t, 1, ts.rejectCalls)
	})

	t.Run("Answer без сессии", func(t *testing.T) {
		s := call.NewSession(newTestConfig(nil, nil))
		err := s.Answer(context.Background(), call.AnswerOptions{})
		assert.ErrorIs(t, err, call.ErrNoActiveSession)
	})
}

// TestTerminalStatesRejectOperations терминальная сессия не принимает
// мутирующих операций
func TestTerminalStatesRejectOperations(t *testing.T) {
	ts := newMockTransportSession("ended")
	client := &mockTransportClient{session: ts}
	s := call.NewSession(newTestConfig(client, nil))

	require.NoError(t, s.Dial(context.Background(), "1000", call.CallOptions{}))
	require.NoError(t, s.Hangup())
	require.Equal(t, call.StateEnded, s.State())

	assert.Error(t, s.Hold())
	err := s.Dial(context.Background(), "2000", call.CallOptions{})
	require.Error(t, err, "dial after termination must fail")
}

// TestDurationTracking длительность пересчитывается от момента ответа
func TestDurationTracking(t *testing.T) {
	ts := newMockTransportSession("timed")
	client := &mockTransportClient{session: ts}
	cfg := newTestConfig(client, nil)

	s := call.NewSession(cfg)
	defer s.Close()

	require.NoError(t, s.Dial(context.Background(), "1000", call.CallOptions{}))
	require.False(t, s.AnsweredAt().IsZero())

	// Два интервала тикера: длительность должна пересчитаться
	time.Sleep(1100 * time.Millisecond)
	assert.GreaterOrEqual(t, s.DurationSeconds(), int64(1),
		"duration must be recomputed from the answer timestamp")
}

// TestSendDTMFThroughSession отправка тона через сессию
func TestSendDTMFThroughSession(t *testing.T) {
	ts := newMockTransportSession("dtmf")
	client := &mockTransportClient{session: ts}
	s := call.NewSession(newTestConfig(client, nil))
	defer s.Close()

	require.NoError(t, s.Dial(context.Background(), "1000", call.CallOptions{}))

	require.NoError(t, s.SendDTMF("5", 0))
	assert.Equal(t, []string{"5"}, ts.dtmfSent)

	err := s.SendDTMF("x", 0)
	require.Error(t, err, "lowercase tone must be rejected")
	assert.Equal(t, 1, len(ts.dtmfSent), "invalid tone must not reach transport")
}

// TestDefaultConfig значения по умолчанию
func TestDefaultConfig(t *testing.T) {
	cfg := call.DefaultConfig()
	assert.Equal(t, 5*time.Second, cfg.HoldTimeout)
	assert.Equal(t, time.Second, cfg.TickInterval)
}

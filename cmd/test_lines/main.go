// Ручная проверка многолинейного менеджера вызовов на loopback
// транспорте: сценарии hold/resume, auto-hold, swap и DTMF без
// реального SIP сервера.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/arzzra/call_control/pkg/call"
	"github.com/arzzra/call_control/pkg/dtmf"
	"github.com/arzzra/call_control/pkg/lines"
)

func main() {
	var (
		mode     = flag.String("mode", "scenario", "Mode: scenario, dtmf, codec")
		lineNum  = flag.Int("lines", 3, "Количество линий (1-8)")
		debug    = flag.Bool("debug", false, "Подробное логирование")
		autoHold = flag.Bool("autohold", true, "Auto-hold активной линии при новом вызове")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	switch *mode {
	case "scenario":
		runScenario(logger, *lineNum, *autoHold)
	case "dtmf":
		runDTMF(logger)
	case "codec":
		runCodec()
	default:
		fmt.Printf("Неизвестный режим: %s\n", *mode)
		fmt.Println("Доступные режимы: scenario, dtmf, codec")
		os.Exit(1)
	}
}

// runScenario прогоняет полный многолинейный сценарий
func runScenario(logger *slog.Logger, lineCount int, autoHold bool) {
	log.Printf("=== Сценарий: %d линий, auto-hold=%v ===", lineCount, autoHold)

	registry := lines.NewMemoryRegistry()
	mgr := lines.NewManager(lines.ManagerConfig{
		LineCount:         lineCount,
		AutoHoldOnNewCall: autoHold,
		Client:            newLoopbackClient(logger),
		Media:             &nullMedia{},
		Registry:          registry,
		HoldTimeout:       2 * time.Second,
		Logger:            logger,
	})

	mgr.OnLineStateChange(func(ev lines.LineEvent) {
		log.Printf("  [линия %d] %s call_id=%s", ev.LineNumber, ev.Status, ev.CallID)
	})
	mgr.OnSelectionChange(func(old, new int) {
		log.Printf("  [выбор] линия %d -> %d", old, new)
	})

	ctx := context.Background()

	// Первый вызов
	n1, err := mgr.MakeCall(ctx, "sip:alice@example.com", lines.MakeCallOptions{})
	if err != nil {
		log.Fatalf("MakeCall: %v", err)
	}
	log.Printf("Вызов 1 установлен на линии %d", n1)

	// Второй вызов: при auto-hold первая линия уйдет на удержание
	n2, err := mgr.MakeCall(ctx, "sip:bob@example.com", lines.MakeCallOptions{})
	if err != nil {
		log.Fatalf("MakeCall: %v", err)
	}
	log.Printf("Вызов 2 установлен на линии %d", n2)
	log.Printf("Активные: %v, удерживаемые: %v", mgr.ActiveLines(), mgr.HeldLines())

	if !autoHold {
		if err := mgr.HoldLine(n1); err != nil {
			log.Fatalf("HoldLine: %v", err)
		}
	}

	// Swap: удерживаемая линия становится активной
	if err := mgr.SwapLines(n1, n2); err != nil {
		log.Fatalf("SwapLines: %v", err)
	}
	log.Printf("После swap — активные: %v, удерживаемые: %v, выбрана: %d",
		mgr.ActiveLines(), mgr.HeldLines(), mgr.SelectedLine())

	// DTMF на выбранной линии
	session, err := mgr.Session(mgr.SelectedLine())
	if err != nil {
		log.Fatalf("Session: %v", err)
	}
	if err := session.Tones().SendToneSequence("1234#", dtmf.SendOptions{}, dtmf.SequenceCallbacks{
		OnTone: func(tone string, index int) {
			log.Printf("  DTMF отправлен: %s", tone)
		},
	}); err != nil {
		log.Fatalf("SendToneSequence: %v", err)
	}

	// Слепой перевод активной линии
	if err := mgr.TransferCall(lines.TransferOptions{
		FromLine: mgr.SelectedLine(),
		Target:   "sip:carol@example.com",
	}); err != nil {
		log.Fatalf("TransferCall: %v", err)
	}
	log.Printf("Перевод выполнен, занято вызовов: %d", mgr.ActiveCallCount())

	if err := mgr.HangupAll(); err != nil {
		log.Fatalf("HangupAll: %v", err)
	}

	snap := mgr.Metrics()
	log.Printf("=== Метрики: started=%d failed=%d ended=%d hold_timeouts=%d ===",
		snap.CallsStarted, snap.CallsFailed, snap.CallsEnded, snap.HoldTimeouts)
}

// runDTMF демонстрация очереди и остановки секвенсора
func runDTMF(logger *slog.Logger) {
	log.Printf("=== DTMF секвенсор ===")

	seq := dtmf.NewSequencer(&printSender{}, logger)
	if _, err := seq.QueueToneSequence("18005551234"); err != nil {
		log.Fatalf("QueueToneSequence: %v", err)
	}
	log.Printf("В очереди %d тонов", seq.QueueLen())

	if err := seq.ProcessQueue(dtmf.SendOptions{InterToneGap: 80 * time.Millisecond},
		dtmf.SequenceCallbacks{
			OnComplete: func(sent int) { log.Printf("Отправлено %d тонов", sent) },
		}); err != nil {
		log.Fatalf("ProcessQueue: %v", err)
	}
	log.Printf("Всего отправлено: %d, последний: %s", seq.TonesSentCount(), seq.LastSentTone())
}

// runCodec печатает RTP пакеты telephone-event для одного тона
func runCodec() {
	log.Printf("=== RFC 4733 кодек ===")

	enc := dtmf.NewEncoder(dtmf.DefaultPayloadType)
	enc.SetSSRC(uuid.New().ID())

	packets, err := enc.EncodeTone("5", 160*time.Millisecond, -10, 8000)
	if err != nil {
		log.Fatalf("EncodeTone: %v", err)
	}
	for i, p := range packets {
		payload, _ := dtmf.DecodePayload(p.Payload)
		log.Printf("  пакет %d: seq=%d marker=%v event=%d end=%v duration=%d",
			i, p.SequenceNumber, p.Marker, payload.Event, payload.End, payload.Duration)
	}
}

// --- loopback транспорт ---

// nullMedia провайдер без реальных устройств: вызовы идут без
// локального медиа
type nullMedia struct{}

var _ call.MediaProvider = (*nullMedia)(nil)

func (m *nullMedia) GetUserMedia(ctx context.Context, c call.MediaConstraints) (call.MediaStream, error) {
	return nil, nil
}

func (m *nullMedia) GetLocalStream() call.MediaStream { return nil }

// loopbackClient создает сессии, подтверждающие hold/unhold немедленно
type loopbackClient struct {
	logger *slog.Logger
}

func newLoopbackClient(logger *slog.Logger) *loopbackClient {
	return &loopbackClient{logger: logger}
}

func (c *loopbackClient) Call(ctx context.Context, target string, opts call.CallOptions) (call.TransportSession, error) {
	c.logger.Debug("loopback call", "target", target, "video", opts.Video)
	return newLoopbackSession(c.logger), nil
}

type loopbackSession struct {
	id       string
	logger   *slog.Logger
	handlers map[call.NotificationType][]func(call.Notification)
}

func newLoopbackSession(logger *slog.Logger) *loopbackSession {
	return &loopbackSession{
		id:       uuid.NewString(),
		logger:   logger,
		handlers: make(map[call.NotificationType][]func(call.Notification)),
	}
}

func (s *loopbackSession) ID() string { return s.id }

func (s *loopbackSession) Answer(ctx context.Context, opts call.AnswerOptions) error { return nil }
func (s *loopbackSession) Reject(code int) error                                     { return nil }
func (s *loopbackSession) Hangup() error                                             { return nil }

func (s *loopbackSession) Hold() error {
	// Сговорчивый удаленный конец: подтверждение приходит сразу
	go s.emit(call.NotificationHold, call.Notification{
		Type:       call.NotificationHold,
		Originator: call.OriginatorLocal,
		Timestamp:  time.Now(),
	})
	return nil
}

func (s *loopbackSession) Unhold() error {
	go s.emit(call.NotificationUnhold, call.Notification{
		Type:       call.NotificationUnhold,
		Originator: call.OriginatorLocal,
		Timestamp:  time.Now(),
	})
	return nil
}

func (s *loopbackSession) Refer(target string) error {
	s.logger.Debug("loopback refer", "target", target)
	return nil
}

func (s *loopbackSession) SendDTMF(tone string, duration time.Duration) error {
	s.logger.Debug("loopback dtmf", "tone", tone, "duration", duration)
	return nil
}

func (s *loopbackSession) GetStats() (call.Stats, error) {
	return call.Stats{"transport": "loopback"}, nil
}

func (s *loopbackSession) OnNotification(t call.NotificationType, h func(call.Notification)) func() {
	s.handlers[t] = append(s.handlers[t], h)
	return func() {}
}

func (s *loopbackSession) emit(t call.NotificationType, n call.Notification) {
	for _, h := range s.handlers[t] {
		h(n)
	}
}

// printSender печатает тоны вместо отправки
type printSender struct{}

func (p *printSender) SendDTMF(tone string, duration time.Duration) error {
	log.Printf("  тон %s (%s)", tone, duration)
	return nil
}

package dtmf

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Sender отправляет один DTMF сигнал на транспорт.
// Интерфейсу удовлетворяет транспортная сессия пакета call.
type Sender interface {
	SendDTMF(tone string, duration time.Duration) error
}

// SendOptions параметры отправки тонов
type SendOptions struct {
	// Duration длительность одного тона
	Duration time.Duration

	// InterToneGap пауза между тонами последовательности.
	// Вставляется между тонами, после последнего паузы нет.
	InterToneGap time.Duration
}

func (o SendOptions) withDefaults() SendOptions {
	if o.Duration <= 0 {
		o.Duration = DefaultToneDuration
	}
	if o.InterToneGap <= 0 {
		o.InterToneGap = DefaultInterToneGap
	}
	return o
}

// Result запись о результате отправки одного тона
type Result struct {
	Success   bool
	Tone      string
	Timestamp time.Time
	Error     string
}

// SequenceCallbacks необязательные обратные вызовы последовательности
type SequenceCallbacks struct {
	// OnTone вызывается после отправки каждого тона
	OnTone func(tone string, index int)

	// OnComplete вызывается после успешной отправки всей последовательности
	OnComplete func(sent int)

	// OnError вызывается при ошибке отправки; остаток последовательности
	// не отправляется
	OnError func(tone string, err error)
}

// Sequencer управляет отправкой DTMF тонов: одиночные отправки,
// последовательности с межтоновой паузой и ограниченная FIFO очередь.
//
// Отмена кооперативная: StopSending прерывает только межтоновую паузу,
// уже переданный транспорту тон не отзывается.
type Sequencer struct {
	sender Sender
	logger *slog.Logger

	mu           sync.Mutex
	queue        []string
	sending      bool
	stopCh       chan struct{}
	lastSentTone string
	tonesSent    uint64
	results      []Result
}

// NewSequencer создает Sequencer поверх указанного отправителя
func NewSequencer(sender Sender, logger *slog.Logger) *Sequencer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{
		sender: sender,
		logger: logger.With("component", "dtmf.sequencer"),
	}
}

// SendTone отправляет ровно один тон. Недопустимый символ отклоняется
// до обращения к транспорту; для отправленного тона результат
// записывается в историю независимо от исхода.
func (q *Sequencer) SendTone(tone string, opts SendOptions) error {
	if q.sender == nil {
		return &Error{Code: ErrorCodeNoSender, Message: "транспорт для DTMF не задан"}
	}
	if err := ValidateTone(tone); err != nil {
		return err
	}
	opts = opts.withDefaults()

	sendErr := q.sender.SendDTMF(tone, opts.Duration)
	q.recordResult(tone, sendErr)

	if sendErr != nil {
		return &Error{
			Code:    ErrorCodeSendFailed,
			Message: fmt.Sprintf("ошибка отправки тона %q", tone),
			Tone:    tone,
			Wrapped: sendErr,
		}
	}
	return nil
}

// SendToneSequence отправляет строку тонов по порядку, вставляя
// InterToneGap между тонами. Вся строка валидируется заранее:
// один недопустимый символ — и ни один тон не отправляется.
// Ошибка отправки прерывает остаток последовательности.
func (q *Sequencer) SendToneSequence(tones string, opts SendOptions, cb SequenceCallbacks) error {
	if q.sender == nil {
		return &Error{Code: ErrorCodeNoSender, Message: "транспорт для DTMF не задан"}
	}
	if err := ValidateSequence(tones); err != nil {
		return err
	}
	opts = opts.withDefaults()

	stop, err := q.beginSending()
	if err != nil {
		return err
	}
	defer q.finishSending()

	for i := 0; i < len(tones); i++ {
		tone := string(tones[i])

		if err := q.SendTone(tone, opts); err != nil {
			if cb.OnError != nil {
				cb.OnError(tone, err)
			}
			return err
		}
		if cb.OnTone != nil {
			cb.OnTone(tone, i)
		}

		// Пауза только между тонами, не после последнего
		if i < len(tones)-1 {
			if !q.waitGap(opts.InterToneGap, stop) {
				return &Error{Code: ErrorCodeStopped, Message: "отправка остановлена"}
			}
		}
	}

	if cb.OnComplete != nil {
		cb.OnComplete(len(tones))
	}
	return nil
}

// QueueTone добавляет тон в очередь. При заполненной очереди тон
// молча отбрасывается (без ошибки); возвращается текущая длина
// очереди, по которой вызывающая сторона может заметить переполнение.
func (q *Sequencer) QueueTone(tone string) (int, error) {
	if err := ValidateTone(tone); err != nil {
		return q.QueueLen(), err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.queue) < MaxQueuedTones {
		q.queue = append(q.queue, tone)
	}
	return len(q.queue), nil
}

// QueueToneSequence добавляет строку тонов в очередь.
// Валидация всей строки выполняется до первого добавления;
// тоны сверх емкости отбрасываются.
func (q *Sequencer) QueueToneSequence(tones string) (int, error) {
	if err := ValidateSequence(tones); err != nil {
		return q.QueueLen(), err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := 0; i < len(tones) && len(q.queue) < MaxQueuedTones; i++ {
		q.queue = append(q.queue, string(tones[i]))
	}
	return len(q.queue), nil
}

// ProcessQueue отправляет всю очередь с теми же механиками, что и
// SendToneSequence. Очередь очищается по мере отправки: ClearQueue
// или StopSending во время паузы останавливают дальнейшие отправки,
// уже извлеченный но не отправленный тон не отправляется.
func (q *Sequencer) ProcessQueue(opts SendOptions, cb SequenceCallbacks) error {
	if q.sender == nil {
		return &Error{Code: ErrorCodeNoSender, Message: "транспорт для DTMF не задан"}
	}
	opts = opts.withDefaults()

	stop, err := q.beginSending()
	if err != nil {
		return err
	}
	defer q.finishSending()

	sent := 0
	for {
		tone, ok := q.dequeue()
		if !ok {
			break
		}
		if sent > 0 {
			// Пауза перед каждым тоном кроме первого
			if !q.waitGap(opts.InterToneGap, stop) {
				return &Error{Code: ErrorCodeStopped, Message: "отправка остановлена"}
			}
			// Остановка могла случиться между паузой и проверкой
			if q.stopped() {
				return &Error{Code: ErrorCodeStopped, Message: "отправка остановлена"}
			}
		}

		if err := q.SendTone(tone, opts); err != nil {
			if cb.OnError != nil {
				cb.OnError(tone, err)
			}
			return err
		}
		sent++
		if cb.OnTone != nil {
			cb.OnTone(tone, sent-1)
		}
	}

	if cb.OnComplete != nil {
		cb.OnComplete(sent)
	}
	return nil
}

// ClearQueue очищает очередь отложенных тонов
func (q *Sequencer) ClearQueue() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queue = nil
}

// StopSending синхронная точка отмены: очищает очередь и снимает
// флаг отправки. Прерывается только межтоновая пауза.
func (q *Sequencer) StopSending() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queue = nil
	if q.sending {
		q.sending = false
		close(q.stopCh)
		q.stopCh = nil
	}
}

// QueuedTones возвращает копию очереди
func (q *Sequencer) QueuedTones() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.queue))
	copy(out, q.queue)
	return out
}

// QueueLen текущая длина очереди
func (q *Sequencer) QueueLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// IsSending true во время отправки последовательности или очереди
func (q *Sequencer) IsSending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sending
}

// LastSentTone последний успешно отправленный тон
func (q *Sequencer) LastSentTone() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastSentTone
}

// TonesSentCount монотонный счетчик успешно отправленных тонов
func (q *Sequencer) TonesSentCount() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tonesSent
}

// Results возвращает копию истории результатов отправки
func (q *Sequencer) Results() []Result {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Result, len(q.results))
	copy(out, q.results)
	return out
}

// --- внутреннее ---

func (q *Sequencer) beginSending() (chan struct{}, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.sending {
		return nil, &Error{Code: ErrorCodeAlreadySending, Message: "отправка уже выполняется"}
	}
	q.sending = true
	q.stopCh = make(chan struct{})
	return q.stopCh, nil
}

func (q *Sequencer) finishSending() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.sending {
		q.sending = false
		close(q.stopCh)
		q.stopCh = nil
	}
}

func (q *Sequencer) stopped() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.sending
}

// dequeue извлекает тон из головы очереди. После StopSending
// возвращает ok=false даже при непустой очереди.
func (q *Sequencer) dequeue() (tone string, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.sending || len(q.queue) == 0 {
		return "", false
	}
	tone = q.queue[0]
	q.queue = q.queue[1:]
	return tone, true
}

// waitGap ждет межтоновую паузу; false при остановке
func (q *Sequencer) waitGap(gap time.Duration, stop chan struct{}) bool {
	timer := time.NewTimer(gap)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-stop:
		return false
	}
}

// recordResult фиксирует результат отправки в ограниченной истории
func (q *Sequencer) recordResult(tone string, sendErr error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	res := Result{
		Success:   sendErr == nil,
		Tone:      tone,
		Timestamp: time.Now(),
	}
	if sendErr != nil {
		res.Error = sendErr.Error()
	} else {
		q.lastSentTone = tone
		q.tonesSent++
	}

	q.results = append(q.results, res)
	if len(q.results) > maxResultHistory {
		q.results = q.results[len(q.results)-maxResultHistory:]
	}
}

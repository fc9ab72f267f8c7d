package dtmf

import (
	"fmt"
	"time"

	"github.com/pion/rtp"
)

// Кодек RFC 4733 для транспортов, передающих DTMF in-band в RTP потоке
// вместо сигнального канала.

// Digit код DTMF события согласно RFC 4733 (0-15)
type Digit uint8

const (
	// Количество повторов начального и конечного пакета события.
	// RFC 4733 рекомендует избыточность для потерянных пакетов.
	eventPacketRedundancy = 3

	// sampleRate частота дискретизации телефонного аудио
	sampleRate = 8000

	// maxVolume максимальный уровень в -dBm
	maxVolume = 63

	// DefaultPayloadType стандартный payload type для telephone-event
	DefaultPayloadType = 101
)

// digitFromTone преобразует символ алфавита в код события
func digitFromTone(tone string) (Digit, error) {
	if err := ValidateTone(tone); err != nil {
		return 0, err
	}
	c := tone[0]
	switch {
	case c >= '0' && c <= '9':
		return Digit(c - '0'), nil
	case c == '*':
		return 10, nil
	case c == '#':
		return 11, nil
	default: // A-D
		return Digit(12 + c - 'A'), nil
	}
}

// Tone возвращает символ алфавита для кода события
func (d Digit) Tone() string {
	switch {
	case d <= 9:
		return string(rune('0' + d))
	case d == 10:
		return "*"
	case d == 11:
		return "#"
	case d <= 15:
		return string(rune('A' + d - 12))
	default:
		return "?"
	}
}

// Payload содержимое telephone-event пакета
type Payload struct {
	Event    uint8  // код события (0-15)
	End      bool   // флаг окончания события
	Volume   uint8  // уровень 0-63, представляет -dBm
	Duration uint16 // длительность в timestamp units
}

// Encoder генерирует RTP пакеты telephone-event для одного тона
type Encoder struct {
	payloadType uint8
	ssrc        uint32
	seqNum      uint16
}

// NewEncoder создает Encoder с указанным payload type
func NewEncoder(payloadType uint8) *Encoder {
	return &Encoder{payloadType: payloadType}
}

// SetSSRC устанавливает SSRC исходящих пакетов
func (e *Encoder) SetSSRC(ssrc uint32) {
	e.ssrc = ssrc
}

// EncodeTone генерирует пакеты события: начальные пакеты с маркером
// на первом и конечные с флагом End, каждые с тройной избыточностью.
func (e *Encoder) EncodeTone(tone string, duration time.Duration, volume int8, timestamp uint32) ([]*rtp.Packet, error) {
	digit, err := digitFromTone(tone)
	if err != nil {
		return nil, err
	}
	if duration <= 0 {
		return nil, fmt.Errorf("длительность DTMF должна быть положительной")
	}

	vol := uint8(0)
	if volume < 0 {
		vol = uint8(-volume)
		if vol > maxVolume {
			vol = maxVolume
		}
	}

	payload := Payload{
		Event:    uint8(digit),
		Volume:   vol,
		Duration: uint16(duration.Seconds() * sampleRate),
	}

	var packets []*rtp.Packet
	appendPackets := func(p Payload, marker bool) {
		body := encodePayload(p)
		for i := 0; i < eventPacketRedundancy; i++ {
			packets = append(packets, &rtp.Packet{
				Header: rtp.Header{
					Version:        2,
					Marker:         marker && i == 0,
					PayloadType:    e.payloadType,
					SequenceNumber: e.seqNum,
					Timestamp:      timestamp,
					SSRC:           e.ssrc,
				},
				Payload: body,
			})
			e.seqNum++
		}
	}

	appendPackets(payload, true)
	payload.End = true
	appendPackets(payload, false)

	return packets, nil
}

// encodePayload сериализует payload в 4 байта согласно RFC 4733
func encodePayload(p Payload) []byte {
	data := make([]byte, 4)
	data[0] = p.Event & 0x0F
	if p.End {
		data[1] |= 0x80
	}
	data[1] |= p.Volume & 0x3F
	data[2] = byte(p.Duration >> 8)
	data[3] = byte(p.Duration & 0xFF)
	return data
}

// DecodePayload разбирает telephone-event payload
func DecodePayload(data []byte) (Payload, error) {
	if len(data) < 4 {
		return Payload{}, fmt.Errorf("некорректный размер DTMF payload: %d", len(data))
	}
	return Payload{
		Event:    data[0] & 0x0F,
		End:      (data[1] & 0x80) != 0,
		Volume:   data[1] & 0x3F,
		Duration: uint16(data[2])<<8 | uint16(data[3]),
	}, nil
}

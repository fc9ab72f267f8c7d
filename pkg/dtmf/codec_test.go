package dtmf_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/call_control/pkg/dtmf"
)

// TestEncodeTone пакеты telephone-event: начальные с маркером на первом,
// конечные с флагом End, тройная избыточность каждой группы
func TestEncodeTone(t *testing.T) {
	enc := dtmf.NewEncoder(dtmf.DefaultPayloadType)
	enc.SetSSRC(0xDEADBEEF)

	packets, err := enc.EncodeTone("5", 100*time.Millisecond, -10, 16000)
	require.NoError(t, err)
	require.Len(t, packets, 6, "3 start + 3 end packets")

	assert.True(t, packets[0].Marker, "first packet carries the marker")
	for _, p := range packets[1:] {
		assert.False(t, p.Marker)
	}

	for i, p := range packets {
		assert.Equal(t, uint8(dtmf.DefaultPayloadType), p.PayloadType)
		assert.Equal(t, uint32(0xDEADBEEF), p.SSRC)
		assert.Equal(t, uint32(16000), p.Timestamp)

		payload, err := dtmf.DecodePayload(p.Payload)
		require.NoError(t, err)
		assert.Equal(t, uint8(5), payload.Event)
		assert.Equal(t, uint8(10), payload.Volume)
		assert.Equal(t, i >= 3, payload.End, "packet %d End flag", i)
	}

	// Номера последовательности монотонно растут
	for i := 1; i < len(packets); i++ {
		assert.Equal(t, packets[i-1].SequenceNumber+1, packets[i].SequenceNumber)
	}
}

// TestEncodeToneValidation недопустимый тон и длительность отклоняются
func TestEncodeToneValidation(t *testing.T) {
	enc := dtmf.NewEncoder(dtmf.DefaultPayloadType)

	_, err := enc.EncodeTone("x", 100*time.Millisecond, 0, 0)
	assert.ErrorIs(t, err, dtmf.ErrInvalidTone)

	_, err = enc.EncodeTone("1", 0, 0, 0)
	assert.Error(t, err)
}

// TestPayloadRoundTrip кодирование и разбор payload согласованы
func TestPayloadRoundTrip(t *testing.T) {
	enc := dtmf.NewEncoder(dtmf.DefaultPayloadType)

	// Тон "#" = событие 11, 160ms при 8kHz = 1280 timestamp units
	packets, err := enc.EncodeTone("#", 160*time.Millisecond, -63, 0)
	require.NoError(t, err)

	payload, err := dtmf.DecodePayload(packets[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, uint8(11), payload.Event)
	assert.Equal(t, uint8(63), payload.Volume)
	assert.Equal(t, uint16(1280), payload.Duration)
}

// TestDecodePayloadShort обрезанный payload отклоняется
func TestDecodePayloadShort(t *testing.T) {
	_, err := dtmf.DecodePayload([]byte{0x05, 0x0A})
	assert.Error(t, err)
}

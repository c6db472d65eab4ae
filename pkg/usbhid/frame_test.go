package usbhid

import (
	"bytes"
	"testing"

	"github.com/go-ctap/fido2/pkg/fidoerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frameQueue replays pre-built reports to the framing layer. Frames
// come from encodeFrames, so the report ID prefix is stripped the way
// the HID layer does on the read path.
type frameQueue struct {
	frames [][]byte
}

func (q *frameQueue) push(frames ...[]byte) {
	q.frames = append(q.frames, frames...)
}

func (q *frameQueue) readReport(buf []byte) (int, error) {
	if len(q.frames) == 0 {
		return 0, fidoerr.Communication("no more frames", nil)
	}
	frame := q.frames[0]
	q.frames = q.frames[1:]
	return copy(buf, frame[1:]), nil
}

var testChannel = channelID{0x01, 0x02, 0x03, 0x04}

func TestEncodeFramesSinglePacket(t *testing.T) {
	data := bytes.Repeat([]byte{0xAA}, 40)
	frames := encodeFrames(testChannel, hidCBOR, data)

	require.Len(t, frames, 1)
	assert.Len(t, frames[0], 1+reportSize)
	// Report ID, channel, command with the init bit, big-endian length.
	assert.Equal(t, byte(0x00), frames[0][0])
	assert.Equal(t, testChannel[:], frames[0][1:5])
	assert.Equal(t, byte(hidCBOR)|initPacketBit, frames[0][5])
	assert.Equal(t, []byte{0x00, 40}, frames[0][6:8])
}

func TestEncodeFramesContinuations(t *testing.T) {
	data := bytes.Repeat([]byte{0xBB}, initPayload+2*contPayload+5)
	frames := encodeFrames(testChannel, hidCBOR, data)

	require.Len(t, frames, 4)
	for seq, frame := range frames[1:] {
		assert.Equal(t, testChannel[:], frame[1:5])
		assert.Equal(t, byte(seq), frame[5])
	}
}

func TestFrameRoundtrip(t *testing.T) {
	for _, size := range []int{0, 1, initPayload, initPayload + 1, 1024} {
		data := bytes.Repeat([]byte{0xCD}, size)

		q := &frameQueue{}
		q.push(encodeFrames(testChannel, hidCBOR, data)...)

		cmd, got, err := readMessage(q, testChannel)
		require.NoError(t, err, "size %d", size)
		assert.Equal(t, hidCBOR, cmd)
		assert.Equal(t, data, got)
	}
}

func TestReadMessageSkipsKeepalives(t *testing.T) {
	q := &frameQueue{}
	q.push(encodeFrames(testChannel, hidKeepalive, []byte{0x01})...)
	q.push(encodeFrames(testChannel, hidKeepalive, []byte{0x01})...)
	q.push(encodeFrames(testChannel, hidCBOR, []byte{0x00, 0xA0})...)

	cmd, data, err := readMessage(q, testChannel)
	require.NoError(t, err)
	assert.Equal(t, hidCBOR, cmd)
	assert.Equal(t, []byte{0x00, 0xA0}, data)
}

func TestReadMessageErrorFrame(t *testing.T) {
	q := &frameQueue{}
	q.push(encodeFrames(testChannel, hidError, []byte{0x06})...)

	_, _, err := readMessage(q, testChannel)
	var commErr *fidoerr.CommunicationError
	require.ErrorAs(t, err, &commErr)
	assert.Contains(t, err.Error(), "0x06")
}

func TestReadMessageWrongChannel(t *testing.T) {
	q := &frameQueue{}
	q.push(encodeFrames(channelID{0xDE, 0xAD, 0xBE, 0xEF}, hidCBOR, []byte{0x00})...)

	_, _, err := readMessage(q, testChannel)
	require.Error(t, err)
}

func TestReadMessageOutOfSequence(t *testing.T) {
	data := bytes.Repeat([]byte{0xEE}, initPayload+contPayload)
	frames := encodeFrames(testChannel, hidCBOR, data)
	require.Len(t, frames, 2)

	// Corrupt the continuation sequence number.
	frames[1][5] = 7

	q := &frameQueue{}
	q.push(frames...)

	_, _, err := readMessage(q, testChannel)
	require.Error(t, err)
}

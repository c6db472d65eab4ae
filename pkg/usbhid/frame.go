package usbhid

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-ctap/fido2/pkg/fidoerr"

	"github.com/samber/lo"
)

// hidCommand is a CTAPHID transport command byte.
type hidCommand byte

const (
	hidPing      hidCommand = 0x01
	hidInit      hidCommand = 0x06
	hidCBOR      hidCommand = 0x10
	hidCancel    hidCommand = 0x11
	hidKeepalive hidCommand = 0x3b
	hidError     hidCommand = 0x3f

	initPacketBit byte = 0x80

	// HID report size; every exchange is a sequence of these.
	reportSize = 64
	// Init packets carry reportSize-7 payload bytes, continuations
	// reportSize-5.
	initPayload = reportSize - 7
	contPayload = reportSize - 5
)

// channelID identifies a logical CTAPHID channel. Channels are
// allocated by the device in response to an init on the broadcast
// channel.
type channelID [4]byte

var broadcastChannel = channelID{0xff, 0xff, 0xff, 0xff}

// encodeFrames splits a message into HID reports. Each report is
// prefixed with the zero report ID the way the HID layer expects it.
func encodeFrames(cid channelID, cmd hidCommand, data []byte) [][]byte {
	frames := make([][]byte, 0, 1+len(data)/contPayload)

	first := make([]byte, 1+reportSize)
	copy(first[1:], cid[:])
	first[5] = byte(cmd) | initPacketBit
	binary.BigEndian.PutUint16(first[6:8], uint16(len(data)))
	copy(first[8:], lo.Slice(data, 0, initPayload))
	frames = append(frames, first)

	if len(data) > initPayload {
		for seq, chunk := range lo.Chunk(data[initPayload:], contPayload) {
			cont := make([]byte, 1+reportSize)
			copy(cont[1:], cid[:])
			cont[5] = byte(seq)
			copy(cont[6:], chunk)
			frames = append(frames, cont)
		}
	}

	return frames
}

// hidReader reads one HID report at a time.
type hidReader interface {
	readReport(buf []byte) (int, error)
}

// readMessage reassembles one CTAPHID message, following continuation
// packets until the byte count announced by the init packet is
// satisfied. Keepalive messages are skipped transparently; error
// messages become errors.
func readMessage(r hidReader, cid channelID) (hidCommand, []byte, error) {
	for {
		cmd, data, err := readOneMessage(r, cid)
		if err != nil {
			return 0, nil, err
		}

		switch cmd {
		case hidKeepalive:
			continue
		case hidError:
			code := byte(0)
			if len(data) > 0 {
				code = data[0]
			}
			return 0, nil, fidoerr.Communication(fmt.Sprintf("transport error %#04x", code), nil)
		default:
			return cmd, data, nil
		}
	}
}

func readOneMessage(r hidReader, cid channelID) (hidCommand, []byte, error) {
	buf := make([]byte, reportSize)

	// Init packet. Reports for other channels are not ours to consume;
	// treat them as a transport fault.
	n, err := r.readReport(buf)
	if err != nil {
		return 0, nil, err
	}
	if n < 7 {
		return 0, nil, io.ErrUnexpectedEOF
	}
	if channelID(buf[0:4]) != cid {
		return 0, nil, fidoerr.Communication("response on unexpected channel", nil)
	}
	if buf[4]&initPacketBit == 0 {
		return 0, nil, fidoerr.Communication("continuation packet without init packet", nil)
	}

	cmd := hidCommand(buf[4] &^ initPacketBit)
	total := int(binary.BigEndian.Uint16(buf[5:7]))

	data := make([]byte, 0, total)
	data = append(data, lo.Slice(buf[7:n], 0, total)...)

	for seq := byte(0); len(data) < total; seq++ {
		n, err := r.readReport(buf)
		if err != nil {
			return 0, nil, err
		}
		if n < 5 {
			return 0, nil, io.ErrUnexpectedEOF
		}
		if channelID(buf[0:4]) != cid {
			return 0, nil, fidoerr.Communication("response on unexpected channel", nil)
		}
		if buf[4] != seq {
			return 0, nil, fidoerr.Communication("continuation packet out of sequence", nil)
		}

		data = append(data, lo.Slice(buf[5:n], 0, total-len(data))...)
	}

	return cmd, data, nil
}

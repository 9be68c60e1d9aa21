package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// LengthPrefixSize is the width of the frame length prefix in bytes.
const LengthPrefixSize = 4

// DefaultMaxFrameBytes is the reference maximum single-frame size from
// the wire protocol: 4 MiB.
const DefaultMaxFrameBytes = 4 * 1024 * 1024

// ErrFrameTooLarge is returned by Decode when a declared frame length
// exceeds maxFrameBytes.
type ErrFrameTooLarge struct {
	Declared int
	Max      int
}

func (e *ErrFrameTooLarge) Error() string {
	return fmt.Sprintf("wire: frame of %d bytes exceeds max %d", e.Declared, e.Max)
}

// Encode serializes msg as JSON and writes it into out prefixed with a
// 4-byte big-endian length, matching the encoder role described in
// internal/tcpsess: it appends a complete frame to a caller-supplied
// buffer rather than returning a new one, so callers can reuse out
// across sends.
func Encode(msg Message, out []byte) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return out, fmt.Errorf("wire: encode: %w", err)
	}

	var prefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(body)))

	out = append(out, prefix[:]...)
	out = append(out, body...)
	return out, nil
}

// EncodeBody serializes msg as JSON with no length prefix, for
// transports that already frame individual messages themselves (a
// WebSocket binary frame carries exactly one Message).
func EncodeBody(msg Message) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("wire: encode: %w", err)
	}
	return body, nil
}

// DecodeBody parses one complete Message with no length prefix, the
// counterpart to EncodeBody.
func DecodeBody(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("wire: decode: %w", err)
	}
	return msg, nil
}

// Decode implements the decoder role from internal/tcpsess: given
// whatever bytes have been read so far, it reports whether a complete
// frame is present. If so it returns the decoded Message and the number
// of bytes consumed; the caller must discard that many bytes from its
// carry buffer. If not, consumed is 0 and complete is false, meaning
// "wait for more bytes". maxFrameBytes bounds the declared frame length
// a decoder will accept.
func Decode(buf []byte, maxFrameBytes int) (msg Message, consumed int, complete bool, err error) {
	if len(buf) < LengthPrefixSize {
		return Message{}, 0, false, nil
	}

	length := int(binary.BigEndian.Uint32(buf[:LengthPrefixSize]))
	if maxFrameBytes > 0 && length > maxFrameBytes {
		return Message{}, 0, false, &ErrFrameTooLarge{Declared: length, Max: maxFrameBytes}
	}

	total := LengthPrefixSize + length
	if len(buf) < total {
		return Message{}, 0, false, nil
	}

	if err := json.Unmarshal(buf[LengthPrefixSize:total], &msg); err != nil {
		return Message{}, 0, false, fmt.Errorf("wire: decode: %w", err)
	}

	return msg, total, true, nil
}

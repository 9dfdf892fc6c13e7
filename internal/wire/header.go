// Package wire implements the MongoDB wire protocol framing: message
// headers, OP_MSG section encode/decode, and the legacy OP_QUERY/OP_REPLY
// handshake used by older drivers to say hello.
package wire

import (
	"encoding/binary"
	"fmt"
)

// OpCode identifies a wire protocol message type.
type OpCode int32

const (
	OpReply      OpCode = 1
	OpQuery      OpCode = 2004
	OpCompressed OpCode = 2012
	OpMsg        OpCode = 2013
)

func (c OpCode) String() string {
	switch c {
	case OpReply:
		return "OP_REPLY"
	case OpQuery:
		return "OP_QUERY"
	case OpCompressed:
		return "OP_COMPRESSED"
	case OpMsg:
		return "OP_MSG"
	default:
		return fmt.Sprintf("OP_UNKNOWN(%d)", int32(c))
	}
}

const headerLen = 16

// DefaultMaxMessageSize is the frame-size cap enforced by ReadMessage; a
// larger declared length is rejected as TooLarge before any attempt to
// buffer it.
const DefaultMaxMessageSize = 48 * 1024 * 1024

// Header is the 16-byte prefix common to every wire protocol message.
type Header struct {
	MessageLength int32
	RequestID     int32
	ResponseTo    int32
	OpCode        OpCode
}

// IncompleteError reports that fewer bytes are available than the frame
// declares; Needed is the total frame length once fully buffered (or
// headerLen if even the header hasn't arrived yet).
type IncompleteError struct {
	Needed int
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("incomplete message: need %d bytes", e.Needed)
}

// MalformedError reports a structurally invalid message: a bad header, an
// unknown section type, or a truncated document within an otherwise
// fully-buffered frame.
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string { return "malformed wire message: " + e.Reason }

// TooLargeError reports a declared message length beyond the configured
// cap.
type TooLargeError struct {
	Declared int32
	Max      int32
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("message length %d exceeds maximum %d", e.Declared, e.Max)
}

// ParseHeader reads the 16-byte header from the front of buf. It does not
// validate OpCode; callers dispatch on it and treat unknown values as an
// error themselves, matching the permissive decode-then-dispatch shape of
// the reference mongo proxy's Decode function.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < headerLen {
		return Header{}, &IncompleteError{Needed: headerLen}
	}
	h := Header{
		MessageLength: int32(binary.LittleEndian.Uint32(buf[0:4])),
		RequestID:     int32(binary.LittleEndian.Uint32(buf[4:8])),
		ResponseTo:    int32(binary.LittleEndian.Uint32(buf[8:12])),
		OpCode:        OpCode(binary.LittleEndian.Uint32(buf[12:16])),
	}
	if h.MessageLength < headerLen {
		return Header{}, &MalformedError{Reason: "declared length shorter than header"}
	}
	return h, nil
}

// ReadMessage extracts one complete wire message from the front of buf,
// given a maximum allowed frame size. It returns the header, the message
// body (everything past the 16-byte header, up to MessageLength), and the
// number of bytes consumed from buf. Callers own framing: buf may contain
// more than one message, or less than one, and ReadMessage reports which
// case applies via IncompleteError/TooLargeError.
func ReadMessage(buf []byte, maxSize int32) (Header, []byte, int, error) {
	h, err := ParseHeader(buf)
	if err != nil {
		return Header{}, nil, 0, err
	}
	if h.MessageLength > maxSize {
		return Header{}, nil, 0, &TooLargeError{Declared: h.MessageLength, Max: maxSize}
	}
	if int(h.MessageLength) > len(buf) {
		return Header{}, nil, 0, &IncompleteError{Needed: int(h.MessageLength)}
	}
	body := buf[headerLen:h.MessageLength]
	return h, body, int(h.MessageLength), nil
}

// PutHeader writes h's fields as a 16-byte little-endian prefix into dst,
// which must be at least 16 bytes.
func PutHeader(dst []byte, h Header) {
	binary.LittleEndian.PutUint32(dst[0:4], uint32(h.MessageLength))
	binary.LittleEndian.PutUint32(dst[4:8], uint32(h.RequestID))
	binary.LittleEndian.PutUint32(dst[8:12], uint32(h.ResponseTo))
	binary.LittleEndian.PutUint32(dst[12:16], uint32(h.OpCode))
}

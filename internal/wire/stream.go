package wire

import "io"

// ReadFrame blocks until one complete wire message has arrived on r,
// returning its header and body (the bytes past the 16-byte header). It
// performs its own two-phase read (header, then the declared remainder)
// rather than relying on a caller-supplied buffer, which is the framing
// contract net.Conn-backed sessions need: a single TCP read rarely lines
// up with message boundaries.
func ReadFrame(r io.Reader, maxSize int32) (Header, []byte, error) {
	hdr := make([]byte, headerLen)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return Header{}, nil, err
	}
	h, err := ParseHeader(hdr)
	if err != nil {
		return Header{}, nil, err
	}
	if h.MessageLength > maxSize {
		return Header{}, nil, &TooLargeError{Declared: h.MessageLength, Max: maxSize}
	}
	bodyLen := int(h.MessageLength) - headerLen
	if bodyLen < 0 {
		return Header{}, nil, &MalformedError{Reason: "declared length shorter than header"}
	}
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return Header{}, nil, err
	}
	return h, body, nil
}

// WriteFrame writes a complete wire message (header + body) to w in one
// call, computing MessageLength from len(body).
func WriteFrame(w io.Writer, requestID, responseTo int32, opCode OpCode, body []byte) error {
	h := Header{
		MessageLength: int32(headerLen + len(body)),
		RequestID:     requestID,
		ResponseTo:    responseTo,
		OpCode:        opCode,
	}
	buf := make([]byte, headerLen, headerLen+len(body))
	PutHeader(buf, h)
	buf = append(buf, body...)
	_, err := w.Write(buf)
	return err
}

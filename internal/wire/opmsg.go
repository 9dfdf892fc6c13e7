package wire

import (
	"encoding/binary"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/fcoury/oxidedb-sub001/internal/value"
)

// Flag bits within OP_MSG's flagBits field.
const (
	FlagChecksumPresent uint32 = 1 << 0
	FlagMoreToCome      uint32 = 1 << 1
	FlagExhaustAllowed  uint32 = 1 << 16
)

const (
	sectionKindSingle   byte = 0
	sectionKindSequence byte = 1
)

// DocumentSequence is an OP_MSG section kind 1: a named run of documents
// that belongs in the array field `Identifier` of the section-0 body.
type DocumentSequence struct {
	Identifier string
	Documents  []bson.Raw
}

// OpMsg is a decoded OP_MSG message: the mandatory section-0 document plus
// zero or more section-1 document sequences.
type OpMsg struct {
	FlagBits  uint32
	Body      bson.Raw
	Sequences []DocumentSequence
	Checksum  uint32
}

// MoreToCome reports the moreToCome flag, meaning no reply is expected.
func (m *OpMsg) MoreToCome() bool { return m.FlagBits&FlagMoreToCome != 0 }

// Merged folds every section-1 sequence into the section-0 body, producing
// the single logical command document a handler operates on. Each
// sequence's Identifier becomes (or replaces) an array field on the
// returned Document, matching the wire-level meaning of splitting a large
// array (e.g. `documents` for insert, `updates` for update) out of the
// main section to avoid re-encoding it inline.
func (m *OpMsg) Merged() (*value.Document, error) {
	var body bson.D
	if err := bson.Unmarshal(m.Body, &body); err != nil {
		return nil, &MalformedError{Reason: "section 0 body: " + err.Error()}
	}
	doc := value.FromBSON(body)
	for _, seq := range m.Sequences {
		arr := make([]value.Value, len(seq.Documents))
		for i, raw := range seq.Documents {
			var d bson.D
			if err := bson.Unmarshal(raw, &d); err != nil {
				return nil, &MalformedError{Reason: fmt.Sprintf("section 1 sequence %q[%d]: %v", seq.Identifier, i, err)}
			}
			arr[i] = value.FromDocument(value.FromBSON(d))
		}
		doc.Set(seq.Identifier, value.FromArray(arr))
	}
	return doc, nil
}

// DecodeOpMsg parses an OP_MSG message body (the bytes following the
// 16-byte header) into its flag bits and sections.
func DecodeOpMsg(body []byte) (*OpMsg, error) {
	if len(body) < 4 {
		return nil, &MalformedError{Reason: "OP_MSG missing flagBits"}
	}
	m := &OpMsg{FlagBits: binary.LittleEndian.Uint32(body[0:4])}
	rest := body[4:]
	checksumPresent := m.FlagBits&FlagChecksumPresent != 0

	for len(rest) > 0 {
		if checksumPresent && len(rest) == 4 {
			m.Checksum = binary.LittleEndian.Uint32(rest)
			rest = nil
			break
		}
		kind := rest[0]
		rest = rest[1:]
		switch kind {
		case sectionKindSingle:
			raw, tail, err := readRawDocument(rest)
			if err != nil {
				return nil, err
			}
			if m.Body != nil {
				return nil, &MalformedError{Reason: "OP_MSG carries more than one section kind 0"}
			}
			m.Body = raw
			rest = tail
		case sectionKindSequence:
			if len(rest) < 4 {
				return nil, &MalformedError{Reason: "section 1 missing size"}
			}
			size := int32(binary.LittleEndian.Uint32(rest[0:4]))
			if int(size) > len(rest) || size < 5 {
				return nil, &MalformedError{Reason: "section 1 size out of range"}
			}
			section := rest[4:size]
			rest = rest[size:]

			ident, tail, err := readCString(section)
			if err != nil {
				return nil, err
			}
			seq := DocumentSequence{Identifier: ident}
			for len(tail) > 0 {
				var raw bson.Raw
				raw, tail, err = readRawDocument(tail)
				if err != nil {
					return nil, err
				}
				seq.Documents = append(seq.Documents, raw)
			}
			m.Sequences = append(m.Sequences, seq)
		default:
			return nil, &MalformedError{Reason: fmt.Sprintf("unknown OP_MSG section kind %d", kind)}
		}
	}
	if m.Body == nil {
		return nil, &MalformedError{Reason: "OP_MSG missing section kind 0"}
	}
	return m, nil
}

// EncodeOpMsg serializes flagBits plus a single section-0 document into an
// OP_MSG message body. The server never needs to emit section-1 sequences
// in a reply, so only the single-section shape is supported here.
func EncodeOpMsg(flagBits uint32, doc *value.Document) ([]byte, error) {
	raw, err := value.MarshalDocument(doc)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 4, 4+1+len(raw))
	binary.LittleEndian.PutUint32(out, flagBits&^FlagChecksumPresent)
	out = append(out, sectionKindSingle)
	out = append(out, raw...)
	return out, nil
}

func readRawDocument(b []byte) (bson.Raw, []byte, error) {
	if len(b) < 4 {
		return nil, nil, &MalformedError{Reason: "document missing length prefix"}
	}
	size := int32(binary.LittleEndian.Uint32(b[0:4]))
	if size < 5 || int(size) > len(b) {
		return nil, nil, &MalformedError{Reason: "document length out of range"}
	}
	if b[size-1] != 0x00 {
		return nil, nil, &MalformedError{Reason: "document missing trailing null byte"}
	}
	return bson.Raw(b[:size]), b[size:], nil
}

func readCString(b []byte) (string, []byte, error) {
	for i, c := range b {
		if c == 0x00 {
			return string(b[:i]), b[i+1:], nil
		}
	}
	return "", nil, &MalformedError{Reason: "unterminated cstring"}
}

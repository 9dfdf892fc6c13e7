package wire

import (
	"encoding/binary"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/fcoury/oxidedb-sub001/internal/value"
)

// OpQuery is a legacy OP_QUERY message. Only the fields needed to answer
// the pre-OP_MSG `{isMaster:1}`/`{hello:1}` handshake some drivers still
// open with are decoded; full legacy CRUD (query/getMore of non-$cmd
// namespaces) is out of scope.
type OpQuery struct {
	Flags                int32
	FullCollectionName   string
	NumberToSkip         int32
	NumberToReturn       int32
	Query                bson.Raw
	ReturnFieldsSelector bson.Raw
}

// DecodeOpQuery parses an OP_QUERY message body.
func DecodeOpQuery(body []byte) (*OpQuery, error) {
	if len(body) < 4 {
		return nil, &MalformedError{Reason: "OP_QUERY missing flags"}
	}
	q := &OpQuery{Flags: int32(binary.LittleEndian.Uint32(body[0:4]))}
	rest := body[4:]

	name, rest, err := readCString(rest)
	if err != nil {
		return nil, err
	}
	q.FullCollectionName = name

	if len(rest) < 8 {
		return nil, &MalformedError{Reason: "OP_QUERY missing skip/return counts"}
	}
	q.NumberToSkip = int32(binary.LittleEndian.Uint32(rest[0:4]))
	q.NumberToReturn = int32(binary.LittleEndian.Uint32(rest[4:8]))
	rest = rest[8:]

	query, rest, err := readRawDocument(rest)
	if err != nil {
		return nil, err
	}
	q.Query = query

	if len(rest) > 0 {
		selector, _, err := readRawDocument(rest)
		if err != nil {
			return nil, err
		}
		q.ReturnFieldsSelector = selector
	}
	return q, nil
}

// QueryDocument decodes the query document into the common value model.
func (q *OpQuery) QueryDocument() (*value.Document, error) {
	var d bson.D
	if err := bson.Unmarshal(q.Query, &d); err != nil {
		return nil, &MalformedError{Reason: "OP_QUERY body: " + err.Error()}
	}
	return value.FromBSON(d), nil
}

// OpReply response flag bits.
const (
	ReplyFlagCursorNotFound int32 = 1 << 0
	ReplyFlagQueryFailure   int32 = 1 << 1
	ReplyFlagAwaitCapable   int32 = 1 << 3
)

// EncodeOpReply builds an OP_REPLY message body carrying a single document,
// the shape used to answer a legacy `{isMaster:1}` sent over OP_QUERY
// before a driver has negotiated OP_MSG.
func EncodeOpReply(flags int32, cursorID int64, startingFrom int32, doc *value.Document) ([]byte, error) {
	raw, err := value.MarshalDocument(doc)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 20, 20+len(raw))
	binary.LittleEndian.PutUint32(out[0:4], uint32(flags))
	binary.LittleEndian.PutUint64(out[4:12], uint64(cursorID))
	binary.LittleEndian.PutUint32(out[12:16], uint32(startingFrom))
	binary.LittleEndian.PutUint32(out[16:20], 1) // numberReturned
	out = append(out, raw...)
	return out, nil
}

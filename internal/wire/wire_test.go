package wire

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fcoury/oxidedb-sub001/internal/value"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{MessageLength: 42, RequestID: 7, ResponseTo: 3, OpCode: OpMsg}
	buf := make([]byte, headerLen)
	PutHeader(buf, h)

	got, err := ParseHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestParseHeaderIncomplete(t *testing.T) {
	_, err := ParseHeader([]byte{1, 2, 3})
	var incomplete *IncompleteError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, headerLen, incomplete.Needed)
}

func TestReadFrameTooLarge(t *testing.T) {
	h := Header{MessageLength: 100, RequestID: 1, OpCode: OpMsg}
	buf := make([]byte, headerLen)
	PutHeader(buf, h)

	_, _, err := ReadFrame(bytes.NewReader(buf), 50)
	var tooLarge *TooLargeError
	require.ErrorAs(t, err, &tooLarge)
}

func TestOpMsgEncodeDecodeRoundTrip(t *testing.T) {
	doc := value.NewDocument()
	doc.Set("ping", value.Int32(1))

	body, err := EncodeOpMsg(0, doc)
	require.NoError(t, err)

	decoded, err := DecodeOpMsg(body)
	require.NoError(t, err)
	assert.Empty(t, decoded.Sequences)

	merged, err := decoded.Merged()
	require.NoError(t, err)
	assert.Equal(t, int32(1), merged.Get("ping").I32)
}

func TestOpMsgDocumentSequenceMergesIntoBody(t *testing.T) {
	body := value.NewDocument()
	body.Set("insert", value.String("widgets"))
	raw, err := value.MarshalDocument(body)
	require.NoError(t, err)

	doc1 := value.NewDocument()
	doc1.Set("_id", value.Int32(1))
	rawDoc1, err := value.MarshalDocument(doc1)
	require.NoError(t, err)

	buf := make([]byte, 4)
	buf = append(buf, sectionKindSingle)
	buf = append(buf, raw...)
	buf = append(buf, sectionKindSequence)

	seqBody := append([]byte("documents\x00"), rawDoc1...)
	seqHeader := make([]byte, 4)
	binary.LittleEndian.PutUint32(seqHeader, uint32(4+len(seqBody)))
	buf = append(buf, seqHeader...)
	buf = append(buf, seqBody...)

	decoded, err := DecodeOpMsg(buf)
	require.NoError(t, err)
	require.Len(t, decoded.Sequences, 1)
	assert.Equal(t, "documents", decoded.Sequences[0].Identifier)

	merged, err := decoded.Merged()
	require.NoError(t, err)
	got := merged.Get("documents")
	require.Equal(t, value.KindArray, got.Kind)
	assert.Equal(t, int32(1), got.Arr[0].Doc.Get("_id").I32)
}

func TestRequestIDAllocatorMonotonic(t *testing.T) {
	a := NewRequestIDAllocator()
	first := a.Next()
	second := a.Next()
	assert.Equal(t, first+1, second)
}

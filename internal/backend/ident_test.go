package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteIdentDoublesEmbeddedQuotes(t *testing.T) {
	assert.Equal(t, `"widgets"`, QuoteIdent("widgets"))
	assert.Equal(t, `"wid""gets"`, QuoteIdent(`wid"gets`))
}

func TestValidateIdentRejectsEmptyAndOversized(t *testing.T) {
	require.Error(t, ValidateIdent("collection", ""))

	long := make([]byte, maxIdentBytes+1)
	for i := range long {
		long[i] = 'a'
	}
	require.Error(t, ValidateIdent("collection", string(long)))

	require.NoError(t, ValidateIdent("collection", "widgets"))
}

func TestDefaultIndexName(t *testing.T) {
	name := DefaultIndexName([]IndexKey{{Path: "age", Direction: 1}, {Path: "name", Direction: -1}})
	assert.Equal(t, "age_1_name_-1", name)
}

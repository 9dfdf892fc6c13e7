package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fcoury/oxidedb-sub001/internal/value"
)

func TestSplitNamespaceSplitsOnFirstDot(t *testing.T) {
	db, coll, err := splitNamespace("mydb.my.coll")
	require.NoError(t, err)
	assert.Equal(t, "mydb", db)
	assert.Equal(t, "my.coll", coll)
}

func TestSplitNamespaceRejectsMissingDot(t *testing.T) {
	_, _, err := splitNamespace("nodothere")
	assert.Error(t, err)
}

func TestIndexSpecFromDocRequiresKey(t *testing.T) {
	doc := value.NewDocument()
	doc.Set("name", value.String("age_1"))
	_, err := indexSpecFromDoc(doc)
	assert.Error(t, err)
}

func TestIndexSpecFromDocParsesCompoundDescendingKey(t *testing.T) {
	doc := value.NewDocument()
	key := value.NewDocument()
	key.Set("age", value.Int32(-1))
	key.Set("name", value.Int32(1))
	doc.Set("key", value.FromDocument(key))
	doc.Set("name", value.String("age_-1_name_1"))
	doc.Set("unique", value.Bool(true))

	spec, err := indexSpecFromDoc(doc)
	require.NoError(t, err)
	assert.Equal(t, "age_-1_name_1", spec.Name)
	assert.True(t, spec.Unique)
	require.Len(t, spec.Keys, 2)
	assert.Equal(t, "age", spec.Keys[0].Path)
	assert.Equal(t, -1, spec.Keys[0].Direction)
	assert.Equal(t, "name", spec.Keys[1].Path)
	assert.Equal(t, 1, spec.Keys[1].Direction)
}

func TestIndexNamesFromValueSingleString(t *testing.T) {
	names, err := indexNamesFromValue(value.String("age_1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"age_1"}, names)
}

func TestIndexNamesFromValueArrayOfStrings(t *testing.T) {
	names, err := indexNamesFromValue(value.FromArray([]value.Value{value.String("a"), value.String("b")}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestIndexNamesFromValueRejectsOtherTypes(t *testing.T) {
	_, err := indexNamesFromValue(value.Int32(1))
	assert.Error(t, err)
}

func TestIndexNamesFromValueArrayRejectsNonStringEntries(t *testing.T) {
	_, err := indexNamesFromValue(value.FromArray([]value.Value{value.Int32(1)}))
	assert.Error(t, err)
}

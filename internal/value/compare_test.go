package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareCrossType(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want int
	}{
		{"minkey below null", MinKey(), Null(), -1},
		{"null below numeric", Null(), Int32(0), -1},
		{"int below string", Int32(1), String("1"), -1},
		{"string below document", String("z"), FromDocument(NewDocument()), -1},
		{"boolean below datetime", Bool(true), DateTime(0), -1},
		{"undefined below maxkey", Undefined(), MaxKey(), -1},
		{"maxkey above everything", MaxKey(), Int64(1 << 40), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sign(Compare(tt.a, tt.b)))
			assert.Equal(t, -tt.want, sign(Compare(tt.b, tt.a)))
		})
	}
}

func TestCompareNumericCoercion(t *testing.T) {
	assert.Equal(t, 0, Compare(Int32(3), Double(3.0)))
	assert.Equal(t, -1, sign(Compare(Int32(3), Int64(10))))
	assert.Equal(t, 1, sign(Compare(Double(10.5), Int32(10))))
}

func TestCompareNaN(t *testing.T) {
	nan := Double(math.NaN())
	assert.True(t, Equal(nan, Double(math.NaN())))
	assert.Equal(t, -1, sign(Compare(nan, Int32(-1000000))))
	assert.Equal(t, 1, sign(Compare(Int32(-1000000), nan)))
}

func TestCompareStrings(t *testing.T) {
	assert.True(t, Compare(String("apple"), String("banana")) < 0)
	assert.Equal(t, 0, Compare(String("same"), String("same")))
}

func TestCompareArraysLexicographic(t *testing.T) {
	a := FromArray([]Value{Int32(1), Int32(2)})
	b := FromArray([]Value{Int32(1), Int32(3)})
	assert.True(t, Compare(a, b) < 0)

	short := FromArray([]Value{Int32(1)})
	assert.True(t, Compare(short, a) < 0)
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

package hashkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuilderCanonical(t *testing.T) {
	var a, b Builder
	a.U32(1).String("ab").Bool(true).F32(0.5)
	b.U32(1).String("ab").Bool(true).F32(0.5)
	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, a.Sum(), b.Sum())
	assert.Equal(t, a.Sum(), Sum(a.Key()))
}

func TestBuilderStringsDoNotAlias(t *testing.T) {
	var a, b Builder
	a.String("ab").String("c")
	b.String("a").String("bc")
	assert.NotEqual(t, a.Key(), b.Key())
}

func TestBuilderReset(t *testing.T) {
	var a Builder
	a.U64(42)
	first := a.Key()
	a.Reset()
	assert.Empty(t, a.Key())
	a.U64(42)
	assert.Equal(t, first, a.Key())
}

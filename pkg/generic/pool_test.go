package generic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferPool_Get(t *testing.T) {
	p := NewBufferPool(16, 64)

	buf := p.Get(8)
	assert.Len(t, buf.B, 8)

	big := p.Get(128)
	assert.Len(t, big.B, 128)

	p.Put(buf)
	p.Put(big)
	p.Put(nil)

	again := p.Get(4)
	assert.Len(t, again.B, 4)
	assert.LessOrEqual(t, cap(again.B), 64)
}

package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReleaseScopeIsLastInFirstOut(t *testing.T) {
	var released []string
	scope := newReleaseScope("test")
	for _, label := range []string{"image", "memory", "view"} {
		scope.own(label, func() { released = append(released, label) })
	}
	assert.Equal(t, 3, scope.size())

	scope.release(idleToken{})

	assert.Equal(t, []string{"view", "memory", "image"}, released)
	assert.Zero(t, scope.size())
}

func TestReleaseScopeReuse(t *testing.T) {
	count := 0
	scope := newReleaseScope("chain")
	scope.own("first", func() { count++ })
	scope.release(idleToken{})
	scope.release(idleToken{})
	assert.Equal(t, 1, count)

	scope.own("second", func() { count += 10 })
	scope.release(idleToken{})
	assert.Equal(t, 11, count)
}

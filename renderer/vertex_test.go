package renderer

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/core1_0"
)

func TestVertexLayout(t *testing.T) {
	bindings := getVertexBindingDescription()
	require.Len(t, bindings, 1)
	assert.Equal(t, 32, bindings[0].Stride)

	attributes := getVertexAttributeDescriptions()
	require.Len(t, attributes, 3)
	assert.Equal(t, []int{0, 12, 24}, []int{attributes[0].Offset, attributes[1].Offset, attributes[2].Offset})
	assert.Equal(t, core1_0.FormatR32G32SignedFloat, attributes[2].Format)
}

func TestUniformBufferObjectSize(t *testing.T) {
	assert.Equal(t, uintptr(3*16*4), unsafe.Sizeof(UniformBufferObject{}))
}

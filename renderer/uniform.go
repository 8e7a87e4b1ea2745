package renderer

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3/core1_0"
)

const (
	rotationPeriodSeconds = 4.0
	fieldOfView           = math.Pi / 4.0
	nearPlane             = 0.1
	farPlane              = 10.0
)

// computeUniforms turns the model a quarter turn per second around Z and
// projects into Vulkan clip space, whose Y axis points down.
func computeUniforms(elapsedSeconds float64, extent core1_0.Extent2D) UniformBufferObject {
	timePeriod := math.Mod(elapsedSeconds, rotationPeriodSeconds)

	ubo := UniformBufferObject{}
	ubo.Model = mgl32.HomogRotate3DZ(float32(timePeriod * math.Pi / 2.0))
	ubo.View = mgl32.LookAtV(
		mgl32.Vec3{2, 2, 2},
		mgl32.Vec3{0, 0, 0},
		mgl32.Vec3{0, 0, 1},
	)

	aspectRatio := float32(extent.Width) / float32(extent.Height)
	ubo.Proj = mgl32.Perspective(fieldOfView, aspectRatio, nearPlane, farPlane)
	ubo.Proj[5] *= -1

	return ubo
}

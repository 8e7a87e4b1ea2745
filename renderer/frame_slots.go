package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// frameSlot is one set of per-frame synchronization objects. inFlight is
// created signaled so the first wait on a fresh slot returns immediately.
type frameSlot struct {
	imageAvailable core1_0.Semaphore
	renderFinished core1_0.Semaphore
	inFlight       core1_0.Fence
}

func (d *deviceContext) createFrameSlots(count int, scope *releaseScope) ([]frameSlot, error) {
	slots := make([]frameSlot, count)
	for i := range slots {
		slot := &slots[i]
		var err error

		slot.imageAvailable, _, err = d.deviceDriver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			return nil, errors.Wrap(err, "create image-available semaphore")
		}
		scope.own("image-available semaphore", func() { d.deviceDriver.DestroySemaphore(slot.imageAvailable, nil) })

		slot.renderFinished, _, err = d.deviceDriver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			return nil, errors.Wrap(err, "create render-finished semaphore")
		}
		scope.own("render-finished semaphore", func() { d.deviceDriver.DestroySemaphore(slot.renderFinished, nil) })

		slot.inFlight, _, err = d.deviceDriver.CreateFence(nil, core1_0.FenceCreateInfo{
			Flags: core1_0.FenceCreateSignaled,
		})
		if err != nil {
			return nil, errors.Wrap(err, "create in-flight fence")
		}
		scope.own("in-flight fence", func() { d.deviceDriver.DestroyFence(slot.inFlight, nil) })
	}

	return slots, nil
}

// drainImageAvailable consumes a pending image-available signal that no draw
// will wait on, using an empty submission that only waits on it. Destroying
// the semaphore instead is not safe: the presentation engine may still signal
// it, and device idleness does not cover the presentation engine.
func (d *deviceContext) drainImageAvailable(slot *frameSlot) error {
	_, err := d.deviceDriver.QueueSubmit(d.graphicsQueue, nil,
		core1_0.SubmitInfo{
			WaitSemaphores:   []core1_0.Semaphore{slot.imageAvailable},
			WaitDstStageMask: []core1_0.PipelineStageFlags{core1_0.PipelineStageBottomOfPipe},
		},
	)
	if err != nil {
		return errors.Wrap(err, "drain image-available semaphore")
	}

	_, err = d.deviceDriver.QueueWaitIdle(d.graphicsQueue)
	return errors.Wrap(err, "wait for image-available drain")
}

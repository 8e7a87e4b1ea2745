package renderer

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

type FrameOutcome int

const (
	// FramePresented means the frame was submitted and queued for presentation.
	FramePresented FrameOutcome = iota + 1
	// FrameAbandoned means the chain was stale; nothing was submitted and the
	// chain was rebuilt.
	FrameAbandoned
)

func (o FrameOutcome) String() string {
	switch o {
	case FramePresented:
		return "presented"
	case FrameAbandoned:
		return "abandoned"
	}
	return fmt.Sprintf("FrameOutcome(%d)", int(o))
}

type FrameStats struct {
	Presented uint64
	Abandoned uint64
	Rebuilds  uint64
}

// frameBackend is the GPU side of a frame cycle. Slots are identified by
// index; the backend owns the semaphores and fences behind them.
type frameBackend interface {
	// waitSlot blocks until the slot's in-flight fence is signaled.
	waitSlot(slot int) error
	// acquireImage requests the next presentable image, signaling the slot's
	// image-available semaphore. stale reports out-of-date or suboptimal.
	acquireImage(slot int) (imageIndex int, stale bool, err error)
	// prepareImage writes the per-image uniform data for this frame.
	prepareImage(imageIndex int) error
	resetSlot(slot int) error
	// submit queues the image's command buffer, waiting on image-available at
	// color attachment output and signaling render-finished and the fence.
	submit(slot, imageIndex int) error
	// present queues the image for display behind render-finished.
	present(slot, imageIndex int) (stale bool, err error)
	// rebuildChain waits for the device to idle and rebuilds the chain and
	// everything sized by it.
	rebuildChain() error
	// drainImageSignal consumes the slot's image-available signal after an
	// acquisition that succeeded but was abandoned.
	drainImageSignal(slot int) error
	imageCount() int
}

type frameState int

const (
	stateWaitPrevious frameState = iota
	stateAcquire
	stateGuardImage
	stateSubmit
	statePresent
	stateAdvance
	stateRecreateChain
	stateDone
)

var frameStateNames = [...]string{
	stateWaitPrevious:  "wait-previous",
	stateAcquire:       "acquire",
	stateGuardImage:    "guard-image",
	stateSubmit:        "submit",
	statePresent:       "present",
	stateAdvance:       "advance",
	stateRecreateChain: "recreate-chain",
	stateDone:          "done",
}

func (s frameState) String() string {
	if int(s) < len(frameStateNames) {
		return frameStateNames[s]
	}
	return fmt.Sprintf("frameState(%d)", int(s))
}

// frameCycle is the scratch state of one pass through the state machine.
type frameCycle struct {
	slot          int
	imageIndex    int
	imageAcquired bool
	outcome       FrameOutcome
}

const noOwner = -1

// frameOrchestrator drives wait → acquire → guard → submit → present →
// advance, with recreate-chain as the exit for a stale chain. It is the only
// user of the frame slots.
type frameOrchestrator struct {
	backend   frameBackend
	slotCount int

	// frameCounter selects the slot; it only moves on a presented frame.
	frameCounter  uint64
	resizePending bool
	closed        bool

	// imageOwner[i] is the slot whose last submission rendered image i.
	imageOwner []int

	stats FrameStats
}

func newFrameOrchestrator(backend frameBackend, slotCount int) *frameOrchestrator {
	f := &frameOrchestrator{
		backend:   backend,
		slotCount: slotCount,
	}
	f.resetImageOwners()
	return f
}

func (f *frameOrchestrator) resetImageOwners() {
	f.imageOwner = make([]int, f.backend.imageCount())
	for i := range f.imageOwner {
		f.imageOwner[i] = noOwner
	}
}

func (f *frameOrchestrator) currentSlot() int {
	return int(f.frameCounter % uint64(f.slotCount))
}

func (f *frameOrchestrator) notifyResized() {
	f.resizePending = true
}

func (f *frameOrchestrator) close() {
	f.closed = true
}

// drawFrame runs one full frame cycle. Any error is fatal to the frame loop.
func (f *frameOrchestrator) drawFrame() (FrameOutcome, error) {
	if f.closed {
		return 0, ErrRendererClosed
	}

	cycle := &frameCycle{slot: f.currentSlot()}
	state := stateWaitPrevious
	for state != stateDone {
		next, err := f.step(state, cycle)
		if err != nil {
			return 0, errors.Wrapf(err, "frame %d: %s", f.frameCounter, state)
		}
		state = next
	}

	return cycle.outcome, nil
}

func (f *frameOrchestrator) step(state frameState, cycle *frameCycle) (frameState, error) {
	switch state {
	case stateWaitPrevious:
		return stateAcquire, f.backend.waitSlot(cycle.slot)

	case stateAcquire:
		if f.resizePending {
			return stateRecreateChain, nil
		}

		imageIndex, stale, err := f.backend.acquireImage(cycle.slot)
		if err != nil {
			return stateDone, err
		}
		if stale {
			// Suboptimal still signals the semaphore; out-of-date reports -1.
			cycle.imageAcquired = imageIndex >= 0
			return stateRecreateChain, nil
		}

		cycle.imageIndex = imageIndex
		cycle.imageAcquired = true
		return stateGuardImage, nil

	case stateGuardImage:
		if cycle.imageIndex < 0 || cycle.imageIndex >= len(f.imageOwner) {
			panic(errors.AssertionFailedf("acquired image %d outside chain of %d images", cycle.imageIndex, len(f.imageOwner)))
		}

		owner := f.imageOwner[cycle.imageIndex]
		if owner != noOwner && owner != cycle.slot {
			if err := f.backend.waitSlot(owner); err != nil {
				return stateDone, err
			}
		}
		f.imageOwner[cycle.imageIndex] = cycle.slot
		return stateSubmit, nil

	case stateSubmit:
		if err := f.backend.prepareImage(cycle.imageIndex); err != nil {
			return stateDone, err
		}
		if err := f.backend.resetSlot(cycle.slot); err != nil {
			return stateDone, err
		}
		return statePresent, f.backend.submit(cycle.slot, cycle.imageIndex)

	case statePresent:
		stale, err := f.backend.present(cycle.slot, cycle.imageIndex)
		if err != nil {
			return stateDone, err
		}
		if stale {
			Logger().Warn("present reported a stale chain", "frame", f.frameCounter)
			f.resizePending = true
		}
		return stateAdvance, nil

	case stateAdvance:
		f.frameCounter++
		f.stats.Presented++
		cycle.outcome = FramePresented
		return stateDone, nil

	case stateRecreateChain:
		// The signal belongs to the old chain's image, so it is consumed
		// before that chain goes away.
		if cycle.imageAcquired {
			if err := f.backend.drainImageSignal(cycle.slot); err != nil {
				return stateDone, err
			}
		}
		if err := f.backend.rebuildChain(); err != nil {
			return stateDone, err
		}

		f.resizePending = false
		f.resetImageOwners()
		f.stats.Abandoned++
		f.stats.Rebuilds++
		cycle.outcome = FrameAbandoned
		return stateDone, nil
	}

	panic(errors.AssertionFailedf("unknown frame state %d", int(state)))
}

package renderer

import (
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type acquireResult struct {
	imageIndex int
	stale      bool
	err        error
}

// fakeBackend models each slot's fence as signaled or pending. A wait on a
// pending fence counts as a block and completes the submission.
type fakeBackend struct {
	t *testing.T

	images    int
	signaled  []bool
	acquires  []acquireResult
	nextImage int

	presentStale map[int]bool
	presents     int
	rebuildErr   error

	calls    []string
	blocks   int
	submits  int
	rebuilds int
	drains   []int
}

func newFakeBackend(t *testing.T, slots, images int) *fakeBackend {
	signaled := make([]bool, slots)
	for i := range signaled {
		signaled[i] = true
	}
	return &fakeBackend{
		t:            t,
		images:       images,
		signaled:     signaled,
		presentStale: map[int]bool{},
	}
}

func (b *fakeBackend) record(format string, args ...any) {
	b.calls = append(b.calls, fmt.Sprintf(format, args...))
}

func (b *fakeBackend) waitSlot(slot int) error {
	b.record("wait %d", slot)
	if !b.signaled[slot] {
		b.blocks++
		b.signaled[slot] = true
	}
	return nil
}

func (b *fakeBackend) acquireImage(slot int) (int, bool, error) {
	b.record("acquire %d", slot)
	if len(b.acquires) > 0 {
		next := b.acquires[0]
		b.acquires = b.acquires[1:]
		return next.imageIndex, next.stale, next.err
	}

	imageIndex := b.nextImage % b.images
	b.nextImage++
	return imageIndex, false, nil
}

func (b *fakeBackend) prepareImage(imageIndex int) error {
	b.record("prepare %d", imageIndex)
	return nil
}

func (b *fakeBackend) resetSlot(slot int) error {
	b.record("reset %d", slot)
	require.True(b.t, b.signaled[slot], "slot %d reset while its previous submission is outstanding", slot)
	b.signaled[slot] = false
	return nil
}

func (b *fakeBackend) submit(slot, imageIndex int) error {
	b.record("submit %d %d", slot, imageIndex)
	b.submits++
	return nil
}

func (b *fakeBackend) present(slot, imageIndex int) (bool, error) {
	b.record("present %d %d", slot, imageIndex)
	b.presents++
	return b.presentStale[b.presents], nil
}

func (b *fakeBackend) rebuildChain() error {
	b.record("rebuild")
	if b.rebuildErr != nil {
		return b.rebuildErr
	}
	// The rebuild waits for the device to go idle.
	for i := range b.signaled {
		b.signaled[i] = true
	}
	b.rebuilds++
	b.nextImage = 0
	return nil
}

func (b *fakeBackend) drainImageSignal(slot int) error {
	b.record("drain %d", slot)
	b.drains = append(b.drains, slot)
	return nil
}

func (b *fakeBackend) imageCount() int {
	return b.images
}

func drawN(t *testing.T, f *frameOrchestrator, n int) {
	for i := 0; i < n; i++ {
		outcome, err := f.drawFrame()
		require.NoError(t, err)
		require.Equal(t, FramePresented, outcome, "frame %d", i)
	}
}

func TestDrawFrameOrder(t *testing.T) {
	backend := newFakeBackend(t, 2, 3)
	f := newFrameOrchestrator(backend, 2)

	outcome, err := f.drawFrame()
	require.NoError(t, err)
	assert.Equal(t, FramePresented, outcome)
	assert.Equal(t, []string{
		"wait 0",
		"acquire 0",
		"prepare 0",
		"reset 0",
		"submit 0 0",
		"present 0 0",
	}, backend.calls)
	assert.Equal(t, uint64(1), f.frameCounter)
}

func TestSlotsRotate(t *testing.T) {
	backend := newFakeBackend(t, 2, 3)
	f := newFrameOrchestrator(backend, 2)

	drawN(t, f, 3)

	// Slot 0 is reused on the third frame while its first submission is
	// still outstanding, so exactly one wait blocks.
	assert.Equal(t, 1, backend.blocks)
	assert.Equal(t, 3, backend.submits)
	assert.Equal(t, uint64(3), f.frameCounter)
}

func TestSteadyStateNeverResetsABusySlot(t *testing.T) {
	for _, slots := range []int{1, 2, 3} {
		t.Run(fmt.Sprintf("%d slots", slots), func(t *testing.T) {
			backend := newFakeBackend(t, slots, 3)
			f := newFrameOrchestrator(backend, slots)

			drawN(t, f, 50)
			assert.Equal(t, 50, backend.submits)
			assert.Equal(t, FrameStats{Presented: 50}, f.stats)
		})
	}
}

func TestOutOfDateAcquireAbandonsFrame(t *testing.T) {
	backend := newFakeBackend(t, 2, 3)
	f := newFrameOrchestrator(backend, 2)

	drawN(t, f, 9)
	require.Equal(t, uint64(9), f.frameCounter)
	submits := backend.submits

	backend.acquires = []acquireResult{{imageIndex: -1, stale: true}}
	outcome, err := f.drawFrame()
	require.NoError(t, err)

	assert.Equal(t, FrameAbandoned, outcome)
	assert.Equal(t, uint64(9), f.frameCounter)
	assert.Equal(t, submits, backend.submits)
	assert.Equal(t, 1, backend.rebuilds)
	assert.Empty(t, backend.drains)

	drawN(t, f, 1)
	assert.Equal(t, uint64(10), f.frameCounter)
	assert.Equal(t, FrameStats{Presented: 10, Abandoned: 1, Rebuilds: 1}, f.stats)
}

func TestSuboptimalAcquireDrainsImageSignal(t *testing.T) {
	backend := newFakeBackend(t, 2, 3)
	f := newFrameOrchestrator(backend, 2)
	drawN(t, f, 1)

	backend.acquires = []acquireResult{{imageIndex: 1, stale: true}}
	outcome, err := f.drawFrame()
	require.NoError(t, err)

	assert.Equal(t, FrameAbandoned, outcome)
	assert.Equal(t, []int{1}, backend.drains)
	assert.Equal(t, []string{"wait 1", "acquire 1", "drain 1", "rebuild"}, backend.calls[len(backend.calls)-4:])
}

func TestResizeNotificationRebuildsBeforeAcquire(t *testing.T) {
	backend := newFakeBackend(t, 2, 3)
	f := newFrameOrchestrator(backend, 2)
	drawN(t, f, 2)
	backend.calls = nil

	f.notifyResized()
	f.notifyResized()
	outcome, err := f.drawFrame()
	require.NoError(t, err)

	assert.Equal(t, FrameAbandoned, outcome)
	assert.Equal(t, []string{"wait 0", "rebuild"}, backend.calls)
	assert.False(t, f.resizePending)

	drawN(t, f, 1)
	assert.Equal(t, 1, backend.rebuilds)
}

func TestStalePresentSchedulesRebuild(t *testing.T) {
	backend := newFakeBackend(t, 2, 3)
	backend.presentStale[1] = true
	f := newFrameOrchestrator(backend, 2)

	drawN(t, f, 1)
	assert.Equal(t, uint64(1), f.frameCounter)
	assert.True(t, f.resizePending)

	outcome, err := f.drawFrame()
	require.NoError(t, err)
	assert.Equal(t, FrameAbandoned, outcome)
	assert.Equal(t, 1, backend.rebuilds)
	assert.Equal(t, uint64(1), f.frameCounter)
}

func TestImageOwnedByOtherSlotIsWaitedOn(t *testing.T) {
	backend := newFakeBackend(t, 2, 3)
	backend.acquires = []acquireResult{{imageIndex: 0}, {imageIndex: 0}}
	f := newFrameOrchestrator(backend, 2)

	drawN(t, f, 2)

	assert.Equal(t, []string{
		"wait 0", "acquire 0", "prepare 0", "reset 0", "submit 0 0", "present 0 0",
		"wait 1", "acquire 1", "wait 0", "prepare 0", "reset 1", "submit 1 0", "present 1 0",
	}, backend.calls)
	assert.Equal(t, 1, backend.blocks)
}

func TestImageOwnersResetOnRebuild(t *testing.T) {
	backend := newFakeBackend(t, 2, 3)
	f := newFrameOrchestrator(backend, 2)
	drawN(t, f, 2)

	backend.images = 4
	f.notifyResized()
	_, err := f.drawFrame()
	require.NoError(t, err)

	require.Len(t, f.imageOwner, 4)
	for _, owner := range f.imageOwner {
		assert.Equal(t, noOwner, owner)
	}

	backend.acquires = []acquireResult{{imageIndex: 3}}
	drawN(t, f, 1)
}

func TestAcquireFailureIsFatal(t *testing.T) {
	backend := newFakeBackend(t, 2, 3)
	f := newFrameOrchestrator(backend, 2)

	deviceLost := errors.New("device lost")
	backend.acquires = []acquireResult{{imageIndex: -1, err: deviceLost}}
	_, err := f.drawFrame()

	require.ErrorIs(t, err, deviceLost)
	assert.Zero(t, backend.submits)
	assert.Zero(t, backend.rebuilds)
	assert.Equal(t, uint64(0), f.frameCounter)
}

func TestRebuildFailureIsFatal(t *testing.T) {
	backend := newFakeBackend(t, 2, 3)
	backend.rebuildErr = ErrWindowClosed
	f := newFrameOrchestrator(backend, 2)

	f.notifyResized()
	_, err := f.drawFrame()
	require.ErrorIs(t, err, ErrWindowClosed)
	assert.Equal(t, FrameStats{}, f.stats)
}

func TestAcquiredIndexOutsideChainPanics(t *testing.T) {
	backend := newFakeBackend(t, 2, 3)
	backend.acquires = []acquireResult{{imageIndex: 5}}
	f := newFrameOrchestrator(backend, 2)

	assert.Panics(t, func() {
		_, _ = f.drawFrame()
	})
}

func TestDrawFrameAfterClose(t *testing.T) {
	backend := newFakeBackend(t, 2, 3)
	f := newFrameOrchestrator(backend, 2)
	drawN(t, f, 1)
	backend.calls = nil

	f.close()
	_, err := f.drawFrame()
	require.ErrorIs(t, err, ErrRendererClosed)
	assert.Empty(t, backend.calls)
}

func TestFrameOutcomeString(t *testing.T) {
	assert.Equal(t, "presented", FramePresented.String())
	assert.Equal(t, "abandoned", FrameAbandoned.String())
	assert.Equal(t, "FrameOutcome(9)", FrameOutcome(9).String())
	assert.Equal(t, "recreate-chain", stateRecreateChain.String())
}

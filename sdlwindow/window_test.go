package sdlwindow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/veandco/go-sdl2/sdl"
)

// eventQueue feeds scripted events to a Window without an SDL video driver.
type eventQueue struct {
	events []sdl.Event
}

func (q *eventQueue) next() sdl.Event {
	if len(q.events) == 0 {
		return nil
	}
	event := q.events[0]
	q.events = q.events[1:]
	return event
}

func scriptedWindow(events ...sdl.Event) (*Window, *eventQueue) {
	queue := &eventQueue{events: events}
	return &Window{waitEvent: queue.next, pollEvent: queue.next}, queue
}

func windowEvent(kind uint8) *sdl.WindowEvent {
	return &sdl.WindowEvent{Type: sdl.WINDOWEVENT, Event: kind}
}

func TestPollEventsReportsResize(t *testing.T) {
	window, _ := scriptedWindow(windowEvent(sdl.WINDOWEVENT_RESIZED), windowEvent(sdl.WINDOWEVENT_SIZE_CHANGED))

	resizes := 0
	assert.True(t, window.PollEvents(func() { resizes++ }))
	assert.Equal(t, 1, resizes)

	assert.True(t, window.PollEvents(func() { resizes++ }))
	assert.Equal(t, 1, resizes)
}

func TestWaitEventsConsumesResize(t *testing.T) {
	window, queue := scriptedWindow(windowEvent(sdl.WINDOWEVENT_MINIMIZED), windowEvent(sdl.WINDOWEVENT_RESTORED))

	assert.True(t, window.WaitEvents())
	assert.Empty(t, queue.events)

	resizes := 0
	assert.True(t, window.PollEvents(func() { resizes++ }))
	assert.Zero(t, resizes)
}

func TestQuitEndsLoop(t *testing.T) {
	window, _ := scriptedWindow(&sdl.QuitEvent{Type: sdl.QUIT})
	assert.False(t, window.WaitEvents())

	window, _ = scriptedWindow(windowEvent(sdl.WINDOWEVENT_CLOSE))
	assert.False(t, window.PollEvents(nil))
}

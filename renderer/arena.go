package renderer

// idleToken is only handed out by deviceContext.waitIdle, so holding one
// means no queue had outstanding work when it was issued.
type idleToken struct{}

type releaseEntry struct {
	label   string
	release func()
}

// releaseScope owns a group of GPU handles with a shared lifetime. Handles are
// registered as they are created and released in reverse creation order, so a
// view always goes before its image and an image before the device.
type releaseScope struct {
	name    string
	entries []releaseEntry
}

func newReleaseScope(name string) *releaseScope {
	return &releaseScope{name: name}
}

func (s *releaseScope) own(label string, release func()) {
	s.entries = append(s.entries, releaseEntry{label: label, release: release})
}

func (s *releaseScope) size() int {
	return len(s.entries)
}

func (s *releaseScope) release(_ idleToken) {
	for i := len(s.entries) - 1; i >= 0; i-- {
		entry := s.entries[i]
		Logger().Debug("release", "scope", s.name, "resource", entry.label)
		entry.release()
	}
	s.entries = s.entries[:0]
}

package syncer

import (
	"time"

	"github.com/google/uuid"

	"weftlabs/weft/pkg/command"
)

// session tracks one exchange with one peer. Sessions exist so stalled
// exchanges can be detected and abandoned instead of blocking the peer slot
// forever; a fresh round simply opens a new session.
type session struct {
	id        uuid.UUID
	peer      string
	initiated bool
	startedAt time.Time
	lastSeen  time.Time

	// requested holds identifiers already asked for on this session, so
	// follow-up requests never re-ask and an exchange cannot loop.
	requested map[command.ID]bool
}

func newSession(id uuid.UUID, peer string, initiated bool, now time.Time) *session {
	return &session{
		id:        id,
		peer:      peer,
		initiated: initiated,
		startedAt: now,
		lastSeen:  now,
		requested: make(map[command.ID]bool),
	}
}

func (s *session) touch(now time.Time) {
	s.lastSeen = now
}

// claim filters out identifiers this session already requested and marks the
// rest as requested.
func (s *session) claim(want []command.ID) []command.ID {
	out := want[:0]
	for _, id := range want {
		if s.requested[id] {
			continue
		}
		s.requested[id] = true
		out = append(out, id)
	}
	return out
}

func (s *session) stalled(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.lastSeen) > timeout
}

package agent

import (
	"github.com/google/uuid"

	"github.com/getlavanda/incidentroom/internal/incident"
)

// Session is the per-room-session state every callback reads and mutates.
// The host runs callbacks one at a time, so it carries no lock.
type Session struct {
	ID string

	status      incident.Status
	alertActive bool // sound and layer are currently applied

	infoPopup     Popup
	incidentPopup Popup
	sound         Sound
}

func newSession() *Session {
	return &Session{
		ID:     uuid.NewString(),
		status: incident.StatusClear,
	}
}

// Status is the logical incident state, which may be ALERTED without the
// alert effect when it came from the initial snapshot.
func (s *Session) Status() incident.Status { return s.status }

// AlertActive reports whether the alert sound/layer effect is applied.
func (s *Session) AlertActive() bool { return s.alertActive }

func (s *Session) IncidentPopupOpen() bool { return s.incidentPopup != nil }

func (s *Session) InfoPopupOpen() bool { return s.infoPopup != nil }

func (s *Session) closeInfoPopup() {
	if s.infoPopup != nil {
		s.infoPopup.Close()
		s.infoPopup = nil
	}
}

func (s *Session) closeIncidentPopup() {
	if s.incidentPopup != nil {
		s.incidentPopup.Close()
		s.incidentPopup = nil
	}
}

// closePopup closes p and drops the incident reference only if p is still the
// current incident popup; a newer popup may already have replaced it.
func (s *Session) closePopup(p Popup) {
	p.Close()
	if s.incidentPopup == p {
		s.incidentPopup = nil
	}
}

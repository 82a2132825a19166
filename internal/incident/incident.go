package incident

// VariableName is the room-scoped shared variable holding the incident flag.
const VariableName = "incidentTriggered"

const (
	EventTriggered = "incident-triggered"
	EventResolved  = "incident-resolved"
)

const (
	ResolvedMessage  = "Incident has been resolved"
	NoURLPlaceholder = "No URL provided"
)

// Status is the room agent's view of the incident flag.
type Status string

const (
	StatusClear   Status = "CLEAR"
	StatusAlerted Status = "ALERTED"
)

// StatusFromValue maps a raw shared-variable value to a Status. Only a
// boolean true counts as alerted; absent, false or malformed values are clear.
func StatusFromValue(value any) Status {
	if b, ok := value.(bool); ok && b {
		return StatusAlerted
	}
	return StatusClear
}

// TriggeredPayload is the data of an incident-triggered broadcast.
type TriggeredPayload struct {
	IncidentURL string `json:"incidentUrl"`
}

// Data returns the payload in the generic shape the room API transports.
func (p TriggeredPayload) Data() map[string]any {
	return map[string]any{"incidentUrl": p.IncidentURL}
}

// ResolvedPayload is the data of an incident-resolved broadcast.
type ResolvedPayload struct {
	Message string `json:"message"`
}

func (p ResolvedPayload) Data() map[string]any {
	return map[string]any{"message": p.Message}
}

// DecodeTriggered extracts the incident URL from broadcast data, falling back
// to NoURLPlaceholder when it is missing or not a string.
func DecodeTriggered(data any) TriggeredPayload {
	if s := stringField(data, "incidentUrl"); s != "" {
		return TriggeredPayload{IncidentURL: s}
	}
	return TriggeredPayload{IncidentURL: NoURLPlaceholder}
}

// DecodeResolved extracts the resolution message, falling back to ResolvedMessage.
func DecodeResolved(data any) ResolvedPayload {
	if s := stringField(data, "message"); s != "" {
		return ResolvedPayload{Message: s}
	}
	return ResolvedPayload{Message: ResolvedMessage}
}

func stringField(data any, key string) string {
	switch m := data.(type) {
	case map[string]any:
		s, _ := m[key].(string)
		return s
	case map[string]string:
		return m[key]
	case TriggeredPayload:
		if key == "incidentUrl" {
			return m.IncidentURL
		}
	case ResolvedPayload:
		if key == "message" {
			return m.Message
		}
	}
	return ""
}

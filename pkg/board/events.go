package board

import (
	"encoding/json"
	"fmt"
)

// Outbound event names delivered to clients.
const (
	EventBoardData              = "board-data"
	EventParticipantCount       = "participant-count"
	EventGlobalParticipantCount = "global-participant-count"
	EventUserJoined             = "user-joined"
	EventUserLeft               = "user-left"
	EventFeatureCreated         = "feature-created"
	EventFeatureUpdated         = "feature-updated"
	EventFeatureDeleted         = "feature-deleted"
	EventFeatureMoved           = "feature-moved"
	EventDependenciesUpdated    = "dependencies-updated"
	EventTeamAdded              = "team-added"
	EventTeamRemoved            = "team-removed"
	EventSprintAdded            = "sprint-added"
	EventSprintRemoved          = "sprint-removed"
	EventError                  = "error"
)

// Event is a named payload travelling over the real-time channel.
// On the wire it is {"event": <name>, "data": <payload>}.
type Event struct {
	Name string
	Data any
}

// NewEvent builds an event.
func NewEvent(name string, data any) Event {
	return Event{Name: name, Data: data}
}

// Envelope is the wire form of an event. Data is kept raw so inbound messages
// can be decoded by the handler that owns their kind.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// MarshalJSON encodes the event as an envelope.
func (e Event) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", e.Name, err)
	}
	return json.Marshal(Envelope{Event: e.Name, Data: data})
}

// UserRef identifies a connection in join/leave announcements.
type UserRef struct {
	UserID string `json:"userId"`
}

// FeatureRef identifies a deleted feature.
type FeatureRef struct {
	ID int `json:"id"`
}

// ErrorPayload is sent to the submitter of a rejected request.
type ErrorPayload struct {
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

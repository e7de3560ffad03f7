package mutation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Kind names an inbound real-time request.
type Kind string

// Inbound request kinds.
const (
	KindJoinSession        Kind = "join-session"
	KindLeaveSession       Kind = "leave-session"
	KindDisconnect         Kind = "disconnect"
	KindUpdateFeature      Kind = "update-feature"
	KindCreateFeature      Kind = "create-feature"
	KindDeleteFeature      Kind = "delete-feature"
	KindMoveFeature        Kind = "move-feature"
	KindUpdateDependencies Kind = "update-dependencies"
	KindAddDependency      Kind = "add-dependency"
	KindRemoveDependency   Kind = "remove-dependency"
	KindAddTeam            Kind = "add-team"
	KindRemoveTeam         Kind = "remove-team"
	KindAddSprint          Kind = "add-sprint"
	KindRemoveSprint       Kind = "remove-sprint"
)

// Request is one inbound message from a connection.
type Request struct {
	ConnID  string
	Kind    Kind
	Payload json.RawMessage
}

// PayloadError reports a request whose payload could not be decoded.
type PayloadError struct {
	Kind Kind
	Err  error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("malformed %s payload: %v", e.Kind, e.Err)
}

func (e *PayloadError) Unwrap() error {
	return e.Err
}

// IsPayload reports whether err is a *PayloadError.
func IsPayload(err error) bool {
	var pe *PayloadError
	return errors.As(err, &pe)
}

// absent reports a payload that is empty or JSON null.
func absent(payload json.RawMessage) bool {
	trimmed := bytes.TrimSpace(payload)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// decode unmarshals a JSON payload. A null payload is rejected rather than
// leaving v at its zero value.
func decode(kind Kind, payload json.RawMessage, v any) error {
	if absent(payload) {
		return &PayloadError{Kind: kind, Err: errors.New("payload is required")}
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return &PayloadError{Kind: kind, Err: err}
	}
	return nil
}

// decodeID accepts either a bare id or an object carrying it under field, so
// both `4` and `{"id": 4}` are valid for a sprint id.
func decodeID[T string | int](kind Kind, payload json.RawMessage, field string) (T, error) {
	var id T
	if absent(payload) {
		return id, &PayloadError{Kind: kind, Err: errors.New("payload is required")}
	}
	if err := json.Unmarshal(payload, &id); err == nil {
		return id, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil {
		return id, &PayloadError{Kind: kind, Err: fmt.Errorf("expected an id or an object with %q", field)}
	}
	raw, ok := obj[field]
	if !ok {
		return id, &PayloadError{Kind: kind, Err: fmt.Errorf("missing %q", field)}
	}
	if err := json.Unmarshal(raw, &id); err != nil {
		return id, &PayloadError{Kind: kind, Err: fmt.Errorf("invalid %q: %w", field, err)}
	}
	return id, nil
}

// pair identifies a dependency by its endpoints.
type pair struct {
	FromFeatureID int `json:"fromFeatureId"`
	ToFeatureID   int `json:"toFeatureId"`
}

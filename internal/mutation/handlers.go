package mutation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ayodineji/Agile-Board/internal/logging"
	"github.com/ayodineji/Agile-Board/internal/metrics"
	"github.com/ayodineji/Agile-Board/internal/session"
	"github.com/ayodineji/Agile-Board/pkg/board"
)

// errNotJoined marks a board mutation from a connection outside any session.
var errNotJoined = errors.New("connection has not joined a session")

// delivery is one event produced by an accepted mutation. except names the
// connection to leave out, empty for the whole session.
type delivery struct {
	event  board.Event
	except string
}

// applyFunc decodes req and applies it to b. It must leave b untouched when it
// returns an error.
type applyFunc func(req Request, b *board.State) ([]delivery, error)

func (e *Engine) dispatchTable() map[Kind]handlerFunc {
	return map[Kind]handlerFunc{
		KindJoinSession:        e.join,
		KindLeaveSession:       e.leave,
		KindDisconnect:         e.disconnect,
		KindCreateFeature:      e.boardMutation(createFeature),
		KindUpdateFeature:      e.boardMutation(updateFeature),
		KindDeleteFeature:      e.boardMutation(deleteFeature),
		KindMoveFeature:        e.boardMutation(moveFeature),
		KindUpdateDependencies: e.boardMutation(updateDependencies),
		KindAddDependency:      e.boardMutation(addDependency),
		KindRemoveDependency:   e.boardMutation(removeDependency),
		KindAddTeam:            e.boardMutation(addTeam),
		KindRemoveTeam:         e.boardMutation(removeTeam),
		KindAddSprint:          e.boardMutation(addSprint),
		KindRemoveSprint:       e.boardMutation(removeSprint),
	}
}

// boardMutation runs apply against the board of the submitter's session,
// persists, then broadcasts what apply produced.
func (e *Engine) boardMutation(apply applyFunc) handlerFunc {
	return func(ctx context.Context, req Request) (string, error) {
		sessionID, ok := e.tracker.SessionOf(req.ConnID)
		if !ok {
			return metrics.OutcomeIgnored, errNotJoined
		}
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("agileboard.session_id", sessionID))

		var out []delivery
		err := e.store.Update(ctx, sessionID, func(b *board.State) error {
			d, err := apply(req, b)
			out = d
			return err
		})
		if err != nil && !session.IsPersistence(err) {
			return "", err
		}
		if err != nil {
			// The change stands in memory; clients still need to see it
			e.logger.Warn("Broadcasting unsaved mutation",
				zap.String(logging.FieldSessionID, sessionID),
				zap.String(logging.FieldKind, string(req.Kind)))
		}

		for _, d := range out {
			e.hub.ToSession(ctx, sessionID, d.event, d.except)
		}
		return metrics.OutcomeApplied, nil
	}
}

func toSession(ev board.Event) delivery {
	return delivery{event: ev}
}

// cascaded adds a dependencies-updated delivery when a removal took
// dependencies with it.
func cascaded(out []delivery, c board.Cascade, b *board.State) []delivery {
	if c.RemovedDependencies == 0 {
		return out
	}
	deps := append([]board.Dependency{}, b.Dependencies...)
	return append(out, toSession(board.NewEvent(board.EventDependenciesUpdated, deps)))
}

func createFeature(req Request, b *board.State) ([]delivery, error) {
	var in board.FeatureInput
	if err := decode(req.Kind, req.Payload, &in); err != nil {
		return nil, err
	}
	f, err := b.CreateFeature(in)
	if err != nil {
		return nil, err
	}
	return []delivery{toSession(board.NewEvent(board.EventFeatureCreated, f))}, nil
}

func updateFeature(req Request, b *board.State) ([]delivery, error) {
	var patch board.FeaturePatch
	if err := decode(req.Kind, req.Payload, &patch); err != nil {
		return nil, err
	}
	if patch.Deleted {
		return removeFeature(patch.ID, b)
	}
	f, err := b.UpdateFeature(patch.ID, patch)
	if err != nil {
		return nil, err
	}
	return []delivery{toSession(board.NewEvent(board.EventFeatureUpdated, f))}, nil
}

func deleteFeature(req Request, b *board.State) ([]delivery, error) {
	id, err := decodeID[int](req.Kind, req.Payload, "id")
	if err != nil {
		return nil, err
	}
	return removeFeature(id, b)
}

func removeFeature(id int, b *board.State) ([]delivery, error) {
	c, err := b.DeleteFeature(id)
	if err != nil {
		return nil, err
	}
	out := []delivery{toSession(board.NewEvent(board.EventFeatureDeleted, board.FeatureRef{ID: id}))}
	return cascaded(out, c, b), nil
}

func moveFeature(req Request, b *board.State) ([]delivery, error) {
	var m board.Move
	if err := decode(req.Kind, req.Payload, &m); err != nil {
		return nil, err
	}
	f, err := b.MoveFeature(m.FeatureID, m.TeamID, m.SprintID)
	if err != nil {
		return nil, err
	}
	moved := board.Move{FeatureID: f.ID, TeamID: f.TeamID, SprintID: f.SprintID}
	return []delivery{toSession(board.NewEvent(board.EventFeatureMoved, moved))}, nil
}

func updateDependencies(req Request, b *board.State) ([]delivery, error) {
	var list []board.Dependency
	if err := decodeDependencyList(req.Kind, req.Payload, &list); err != nil {
		return nil, err
	}
	canonical, changed := b.ReplaceDependencies(list)

	// The submitter already shows its own list unless the server altered it
	except := req.ConnID
	if changed {
		except = ""
	}
	return []delivery{{event: board.NewEvent(board.EventDependenciesUpdated, canonical), except: except}}, nil
}

// decodeDependencyList accepts the list itself or {"dependencies": [...]}.
func decodeDependencyList(kind Kind, payload json.RawMessage, list *[]board.Dependency) error {
	if err := decode(kind, payload, list); err == nil {
		return nil
	}
	var wrapped struct {
		Dependencies *[]board.Dependency `json:"dependencies"`
	}
	if err := decode(kind, payload, &wrapped); err != nil {
		return err
	}
	if wrapped.Dependencies == nil {
		return &PayloadError{Kind: kind, Err: errors.New(`expected a dependency list or {"dependencies": [...]}`)}
	}
	*list = *wrapped.Dependencies
	return nil
}

func addDependency(req Request, b *board.State) ([]delivery, error) {
	var d board.Dependency
	if err := decode(req.Kind, req.Payload, &d); err != nil {
		return nil, err
	}
	if _, err := b.AddDependency(d); err != nil {
		return nil, err
	}
	deps := append([]board.Dependency{}, b.Dependencies...)
	return []delivery{toSession(board.NewEvent(board.EventDependenciesUpdated, deps))}, nil
}

func removeDependency(req Request, b *board.State) ([]delivery, error) {
	var p pair
	if err := decode(req.Kind, req.Payload, &p); err != nil {
		return nil, err
	}
	if err := b.RemoveDependency(p.FromFeatureID, p.ToFeatureID); err != nil {
		return nil, err
	}
	deps := append([]board.Dependency{}, b.Dependencies...)
	return []delivery{toSession(board.NewEvent(board.EventDependenciesUpdated, deps))}, nil
}

func addTeam(req Request, b *board.State) ([]delivery, error) {
	var t board.Team
	if err := decode(req.Kind, req.Payload, &t); err != nil {
		return nil, err
	}
	added, err := b.AddTeam(t)
	if err != nil {
		return nil, err
	}
	return []delivery{toSession(board.NewEvent(board.EventTeamAdded, added))}, nil
}

func removeTeam(req Request, b *board.State) ([]delivery, error) {
	id, err := decodeID[string](req.Kind, req.Payload, "id")
	if err != nil {
		return nil, err
	}
	c, err := b.RemoveTeam(id)
	if err != nil {
		return nil, err
	}
	out := []delivery{toSession(board.NewEvent(board.EventTeamRemoved, id))}
	return cascaded(out, c, b), nil
}

func addSprint(req Request, b *board.State) ([]delivery, error) {
	var sp board.Sprint
	if err := decode(req.Kind, req.Payload, &sp); err != nil {
		return nil, err
	}
	added, err := b.AddSprint(sp)
	if err != nil {
		return nil, err
	}
	return []delivery{toSession(board.NewEvent(board.EventSprintAdded, added))}, nil
}

func removeSprint(req Request, b *board.State) ([]delivery, error) {
	id, err := decodeID[int](req.Kind, req.Payload, "id")
	if err != nil {
		return nil, err
	}
	c, err := b.RemoveSprint(id)
	if err != nil {
		return nil, err
	}
	out := []delivery{toSession(board.NewEvent(board.EventSprintRemoved, id))}
	return cascaded(out, c, b), nil
}

// join admits the connection to a session and sends it the board.
func (e *Engine) join(ctx context.Context, req Request) (string, error) {
	sessionID, err := decodeID[string](req.Kind, req.Payload, "sessionId")
	if err != nil {
		return "", err
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("agileboard.session_id", sessionID))

	res, err := e.tracker.Join(sessionID, req.ConnID)
	if err != nil {
		return "", err
	}
	b, err := e.store.Board(sessionID)
	if err != nil {
		// Removed between Join and Board; undo the admission
		e.tracker.Leave(req.ConnID)
		return "", fmt.Errorf("session %s: %w", sessionID, session.ErrSessionNotFound)
	}

	e.hub.Assign(req.ConnID, sessionID)
	if res.Previous != nil {
		e.announceDeparture(ctx, req.ConnID, *res.Previous)
	}

	e.hub.Emit(req.ConnID, board.NewEvent(board.EventBoardData, b))
	e.hub.Emit(req.ConnID, board.NewEvent(board.EventParticipantCount, res.Counts.Session))
	if res.Rejoined {
		// Membership did not change; only the joiner is refreshed
		return metrics.OutcomeApplied, nil
	}
	e.hub.ToSession(ctx, sessionID, board.NewEvent(board.EventUserJoined, board.UserRef{UserID: req.ConnID}), req.ConnID)
	e.hub.ToSession(ctx, sessionID, board.NewEvent(board.EventParticipantCount, res.Counts.Session), req.ConnID)
	e.hub.Global(board.NewEvent(board.EventGlobalParticipantCount, res.Counts.Global))

	e.logger.Info("Connection joined session",
		zap.String(logging.FieldConnID, req.ConnID),
		zap.String(logging.FieldSessionID, sessionID),
		zap.Int("participants", res.Counts.Session))
	return metrics.OutcomeApplied, nil
}

func (e *Engine) leave(ctx context.Context, req Request) (string, error) {
	dep, ok := e.tracker.Leave(req.ConnID)
	e.hub.Leave(req.ConnID)
	if !ok {
		return metrics.OutcomeIgnored, nil
	}
	e.announceDeparture(ctx, req.ConnID, dep)
	e.hub.Global(board.NewEvent(board.EventGlobalParticipantCount, dep.Counts.Global))
	return metrics.OutcomeApplied, nil
}

// disconnect is submitted by the transport when a connection closes.
func (e *Engine) disconnect(ctx context.Context, req Request) (string, error) {
	dep, ok := e.tracker.Leave(req.ConnID)
	e.hub.Unregister(req.ConnID)
	if !ok {
		return metrics.OutcomeApplied, nil
	}
	e.announceDeparture(ctx, req.ConnID, dep)
	e.hub.Global(board.NewEvent(board.EventGlobalParticipantCount, dep.Counts.Global))
	return metrics.OutcomeApplied, nil
}

func (e *Engine) announceDeparture(ctx context.Context, connID string, dep session.Departure) {
	e.hub.ToSession(ctx, dep.SessionID, board.NewEvent(board.EventUserLeft, board.UserRef{UserID: connID}), connID)
	e.hub.ToSession(ctx, dep.SessionID, board.NewEvent(board.EventParticipantCount, dep.Counts.Session), connID)

	e.logger.Info("Connection left session",
		zap.String(logging.FieldConnID, connID),
		zap.String(logging.FieldSessionID, dep.SessionID),
		zap.Int("participants", dep.Counts.Session))
}

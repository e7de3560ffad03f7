package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ayodineji/Agile-Board/internal/logging"
	"github.com/ayodineji/Agile-Board/internal/session"
	"github.com/ayodineji/Agile-Board/pkg/board"
)

// maxBodyBytes bounds JSON request bodies on the HTTP API.
const maxBodyBytes = 64 << 10

// JoinRequest is the body of POST /api/join-session.
type JoinRequest struct {
	Code string `json:"code"`
}

// JoinResponse answers a successful join with the session's current board.
type JoinResponse struct {
	SessionID  string       `json:"sessionId"`
	BoardState *board.State `json:"boardState"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// createSession handles POST /api/create-session
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	created, err := s.store.Create(r.Context())
	if err != nil && !session.IsPersistence(err) {
		s.logger.Error("Failed to create session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	// An unsaved session is still usable until the next successful save
	writeJSON(w, http.StatusOK, created)
}

// joinSession handles POST /api/join-session
func (s *Server) joinSession(w http.ResponseWriter, r *http.Request) {
	var req JoinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if session.NormalizeCode(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "Access code required")
		return
	}

	sess, err := s.store.FindByCode(req.Code)
	if err != nil {
		if session.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Invalid access code")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Debug("Access code accepted", zap.String(logging.FieldSessionID, sess.ID))
	writeJSON(w, http.StatusOK, JoinResponse{SessionID: sess.ID, BoardState: sess.Board})
}

// getBoard handles GET /api/board/{sessionId}
func (s *Server) getBoard(w http.ResponseWriter, r *http.Request) {
	b, err := s.store.Board(chi.URLParam(r, "sessionId"))
	if err != nil {
		if session.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty body")
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/cory-johannsen/covey/internal/game/area"
	"github.com/cory-johannsen/covey/internal/town"
)

type createTownRequest struct {
	FriendlyName     string `json:"friendlyName"`
	IsPubliclyListed bool   `json:"isPubliclyListed"`
	Map              string `json:"map,omitempty"`
}

type updateTownRequest struct {
	TownUpdatePassword string `json:"townUpdatePassword"`
	town.SettingsUpdate
}

type deleteTownRequest struct {
	TownUpdatePassword string `json:"townUpdatePassword"`
}

type conversationRequest struct {
	ID    string `json:"id"`
	Topic string `json:"topic"`
}

type errorBody struct {
	Message string `json:"message"`
}

const maxBody = 64 << 10

func (s *Server) listTowns(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.towns.List())
}

func (s *Server) createTown(w http.ResponseWriter, r *http.Request) {
	var req createTownRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	created, err := s.towns.Create(r.Context(), req.FriendlyName, req.IsPubliclyListed, req.Map)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) updateTown(w http.ResponseWriter, r *http.Request) {
	var req updateTownRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	if err := s.towns.UpdateSettings(r.Context(), r.PathValue("id"), req.TownUpdatePassword, req.SettingsUpdate); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteTown(w http.ResponseWriter, r *http.Request) {
	var req deleteTownRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	if err := s.towns.Delete(r.PathValue("id"), req.TownUpdatePassword); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createConversation(w http.ResponseWriter, r *http.Request) {
	var req conversationRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	err := s.towns.StartConversation(r.Context(), r.PathValue("id"), r.Header.Get(SessionHeader), req.ID, req.Topic)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) chatHistory(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.towns.ChatHistory(r.Context(), r.PathValue("id"), r.Header.Get(SessionHeader), r.URL.Query().Get("interactableID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) leaderboards(w http.ResponseWriter, r *http.Request) {
	boards, err := s.towns.Leaderboards(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, boards)
}

func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Message: "malformed request body"})
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("writing response", zap.Error(err))
	}
}

// writeError maps manager and area failures onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, town.ErrTownNotFound), errors.Is(err, town.ErrUnknownArea):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, town.ErrInvalidPassword), errors.Is(err, town.ErrInvalidSession):
		status, msg = http.StatusForbidden, err.Error()
	case errors.Is(err, town.ErrInvalidName), errors.Is(err, town.ErrUnknownMap), errors.Is(err, town.ErrTownClosed):
		status, msg = http.StatusBadRequest, err.Error()
	default:
		if m, ok := area.ClientMessage(err); ok {
			status, msg = http.StatusBadRequest, m
		} else {
			s.logger.Error("request failed", zap.Error(err))
		}
	}
	s.writeJSON(w, status, errorBody{Message: msg})
}

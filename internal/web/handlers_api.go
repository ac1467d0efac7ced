package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/flowork/flowork-deck/internal/plugin"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

type commandView struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Group       string `json:"group"`
	Label       string `json:"label"`
}

type pressResponse struct {
	Command string `json:"command"`
	Label   string `json:"label"`
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	cmds := s.host.Commands()
	views := make([]commandView, 0, len(cmds))
	for _, c := range cmds {
		views = append(views, commandView{
			Name:        c.Name(),
			DisplayName: c.DisplayName(),
			Group:       c.Group(),
			Label:       c.GetDisplayLabel(""),
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handlePress(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}
	if s.cfg.ReadOnly {
		writeAPIError(w, http.StatusForbidden, "READ_ONLY", "presses are disabled in read-only mode")
		return
	}

	name := r.PathValue("name")
	param := r.URL.Query().Get("param")
	if err := s.host.Press(name, param); err != nil {
		if errors.Is(err, plugin.ErrUnknownCommand) {
			writeAPIError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
			return
		}
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	label, _ := s.host.Label(name, param)
	writeJSON(w, http.StatusOK, pressResponse{Command: name, Label: label})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiErrorResponse{
		Error: apiError{Code: code, Message: message},
	})
}

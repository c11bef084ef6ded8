// Package httpapi is the direct-upload channel adapter: a small chi router
// that accepts normalized events over HTTP and returns the engine's reply.
package httpapi

import (
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tbxark/onboardagent/channel"
	"github.com/tbxark/onboardagent/types"
)

const maxBodyBytes = 32 << 20 // media payloads are base64-encoded inline

type Server struct {
	handler channel.Handler
}

func NewServer(handler channel.Handler) *Server {
	return &Server{handler: handler}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Post("/api/events", s.handleEvent)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// eventRequest is the wire shape of an inbound event. Media payloads arrive
// base64-encoded.
type eventRequest struct {
	UserID   string          `json:"user_id"`
	Kind     types.EventKind `json:"kind"`
	Text     string          `json:"text,omitempty"`
	Payload  string          `json:"payload,omitempty"`
	MIMEType string          `json:"mime_type,omitempty"`
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	var req eventRequest
	if err := sonic.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ev := types.Event{
		UserID:   req.UserID,
		Kind:     req.Kind,
		Text:     req.Text,
		MIMEType: req.MIMEType,
	}
	if req.Payload != "" {
		payload, err := base64.StdEncoding.DecodeString(req.Payload)
		if err != nil {
			writeError(w, http.StatusBadRequest, "payload must be base64")
			return
		}
		ev.Payload = payload
	}

	reply, err := s.handler.Handle(r.Context(), ev)
	if err != nil {
		var verr *types.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		slog.Error("event handling failed", "user_id", ev.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, reply)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, "encoding error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

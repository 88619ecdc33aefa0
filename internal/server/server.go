// Package server exposes one conversation over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/comigor/sonar-go/internal/chat"
	"github.com/comigor/sonar-go/internal/logger"
)

const maxBody = 1 << 20

// New returns the HTTP handler for c.
//
//	POST /messages   body is the prompt; responds with the reply text
//	POST /chat/new   clears the conversation
//	PUT  /model      body is the model id
//	GET  /state      JSON snapshot of the conversation
func New(c *chat.Controller) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /messages", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
		if err != nil {
			logger.L.Error("read body error", "err", err)
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		prompt := string(body)
		if strings.TrimSpace(prompt) == "" {
			http.Error(w, "empty prompt", http.StatusBadRequest)
			return
		}
		logger.L.Info("message request", "length", len(prompt))

		out := c.Submit(r.Context(), prompt)
		switch {
		case out.Skipped():
			http.Error(w, "a request is already in progress", http.StatusConflict)
		case out.Err != nil:
			logger.L.Error("send error", "err", out.Err)
			http.Error(w, chat.SendFailedNotice, http.StatusBadGateway)
		default:
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Write([]byte(out.Reply.Content))
		}
	})

	mux.HandleFunc("POST /chat/new", func(w http.ResponseWriter, r *http.Request) {
		c.NewChat()
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("PUT /model", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		if err := c.SelectModel(strings.TrimSpace(string(body))); err != nil {
			if errors.Is(err, chat.ErrUnknownModel) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(c.Snapshot()); err != nil {
			logger.L.Error("encode state", "err", err)
		}
	})

	return mux
}

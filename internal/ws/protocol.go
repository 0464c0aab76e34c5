package ws

import (
	"encoding/json"
	"net/http"
)

// Inbound viewer message types.
const (
	MsgReaction = "reaction"
	MsgChat     = "chat"
)

// inbound is any message a viewer sends. Unknown types are ignored.
type inbound struct {
	Type     string `json:"type"`
	Emoji    string `json:"emoji"`
	Message  string `json:"message"`
	Username string `json:"username"`
	UserID   string `json:"userId"`
}

type healthResponse struct {
	Status string `json:"status"`
	Agents int    `json:"agents"`
}

type ingestResponse struct {
	Success bool `json:"success"`
}

type hookResponse struct {
	OK bool `json:"ok"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

package handlers

import (
	"encoding/json"
	"net/http"
)

// errorBody is the uniform error payload: a stable machine-readable code
// clients can branch on, plus a human-readable message.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteJSON serializes data as the response body. The status line is
// written before encoding starts, so a failed encode cannot change it.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// ErrorResponse writes the uniform error payload.
func ErrorResponse(w http.ResponseWriter, status int, code, message string) error {
	return WriteJSON(w, status, errorBody{Error: code, Message: message})
}

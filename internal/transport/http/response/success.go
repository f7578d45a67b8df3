package response

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes v with status. Content-Type defaults to JSON.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Success bodies always carry "success": true next to their payload.
func withSuccess(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["success"] = true
	return out
}

func OK(w http.ResponseWriter, fields map[string]any) {
	WriteJSON(w, http.StatusOK, withSuccess(fields))
}

func Created(w http.ResponseWriter, fields map[string]any) {
	WriteJSON(w, http.StatusCreated, withSuccess(fields))
}

func Message(w http.ResponseWriter, msg string) {
	OK(w, map[string]any{"message": msg})
}

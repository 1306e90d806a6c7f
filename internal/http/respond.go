package httpx

import (
	"encoding/json"
	"net/http"
)

// writeJSON writes payload with status. Health and routing answers are never
// cached.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError answers with a bare message under the same "msg" key captured
// failures use. It does not create an error record.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"msg": msg})
}

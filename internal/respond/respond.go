package respond

import (
	"encoding/json"
	"net/http"
)

// Failure is the body returned when a sync operation fails
type Failure struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode,omitempty"`
}

// JSON writes payload with the given status code
func JSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// Error writes a plain error message
func Error(w http.ResponseWriter, code int, message string) {
	JSON(w, code, map[string]string{"error": message})
}

// SyncFailure writes the failure shape shared by all sync endpoints
func SyncFailure(w http.ResponseWriter, code int, err error, errorCode string) {
	JSON(w, code, Failure{Success: false, Error: err.Error(), ErrorCode: errorCode})
}

// SyncSuccess wraps a sync result in the success shape
func SyncSuccess(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": data})
}

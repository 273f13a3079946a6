package response

import (
	"encoding/json"
	"net/http"
)

const (
	StatusOK     = "OK"
	StatusFailed = "FAILED"
)

// StatusResult is the uniform envelope returned by the chat API routes.
type StatusResult struct {
	Status  string  `json:"Status"`
	Message *string `json:"Message"`
	Result  any     `json:"Result"`
}

func OK(w http.ResponseWriter, result any) {
	JSON(w, http.StatusOK, StatusResult{Status: StatusOK, Result: result})
}

// Failed writes a FAILED envelope with HTTP 200, the convention every chat
// route follows; result may carry partial data.
func Failed(w http.ResponseWriter, message string, result any) {
	JSON(w, http.StatusOK, StatusResult{Status: StatusFailed, Message: &message, Result: result})
}

func Unauthorized(w http.ResponseWriter, message string) {
	JSON(w, http.StatusUnauthorized, StatusResult{Status: StatusFailed, Message: &message})
}

func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

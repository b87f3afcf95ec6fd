package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"trustScope/internal/mirror"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, mirror.ErrorResponse{Error: msg})
}

// writeServiceError maps a mirror error to its status and public message.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := mirror.StatusCode(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, mirror.PublicMessage(err))
}

// decodeBody decodes a JSON body keeping numbers as json.Number. Failures
// are returned as mirror validation errors.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &mirror.ValidationError{Message: "Request body required"}
		}
		return &mirror.ValidationError{Message: "Invalid request body"}
	}
	return nil
}

package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	billing "prepaid-billing/internal/billing/domain"
)

type errorBody struct {
	Kind    billing.Kind `json:"kind"`
	Message string       `json:"message"`
}

func statusFor(kind billing.Kind) int {
	switch kind {
	case billing.KindValidation:
		return http.StatusBadRequest
	case billing.KindNotFound:
		return http.StatusNotFound
	case billing.KindDuplicate, billing.KindConflict:
		return http.StatusConflict
	case billing.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	body := errorBody{Kind: billing.KindInternal, Message: "internal error"}
	var be *billing.Error
	if errors.As(err, &be) {
		body = errorBody{Kind: be.Kind, Message: be.Message}
	}
	status := statusFor(body.Kind)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("kind", string(body.Kind)), zap.Error(err))
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFile(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return billing.Validation("invalid json body: %v", err)
	}
	return nil
}

// decodeOptional accepts an empty body.
func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return billing.Validation("invalid json body: %v", err)
}

func parseDate(value, field string) (time.Time, error) {
	if value == "" {
		return time.Time{}, billing.Validation("%s is required", field)
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, billing.Validation("%s must be YYYY-MM-DD", field)
	}
	return t, nil
}

func parseTimeQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, billing.Validation("%s is required", key)
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	return parseDate(value, key)
}

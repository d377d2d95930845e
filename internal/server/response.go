package server

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/Iron-Ham/genbridge/internal/bridge"
	"github.com/Iron-Ham/genbridge/internal/errors"
)

// Client-facing messages. They are part of the HTTP contract.
const (
	msgPromptRequired   = "Prompt is required"
	msgInvalidProvider  = "Invalid provider specified"
	msgInvalidBody      = "Invalid request body"
	msgBodyTooLarge     = "Request body too large"
	msgStartFailed      = "Failed to start LLM process."
	msgGenerateFailed   = "Failed to generate LLM response."
	msgParseFailed      = "Failed to parse LLM response."
	msgTimedOut         = "LLM process timed out."
	msgCapacity         = "Too many concurrent requests."
	msgCanceled         = "Request canceled."
	msgMethodNotAllowed = "Method not allowed"
	msgNotFound         = "Not found"
)

// response is an HTTP status plus JSON document, independent of transport.
type response struct {
	status  int
	payload map[string]string
	// retryAfter asks the client to back off; set for capacity rejections.
	retryAfter bool
}

// renderOutcome maps an outcome onto its HTTP status and body.
func renderOutcome(out bridge.Outcome) response {
	switch out.Kind {
	case bridge.KindSuccess:
		return response{status: http.StatusOK, payload: map[string]string{"response": out.Response}}
	case bridge.KindValidationError:
		return response{status: http.StatusBadRequest, payload: errorPayload(validationMessage(out.Err))}
	case bridge.KindProcessStartError:
		return response{status: http.StatusInternalServerError, payload: detailPayload(msgStartFailed, out.Detail)}
	case bridge.KindWorkerExitError:
		return response{status: http.StatusInternalServerError, payload: detailPayload(msgGenerateFailed, out.Detail)}
	case bridge.KindOutputParseError:
		return response{status: http.StatusInternalServerError, payload: detailPayload(msgParseFailed, out.Detail)}
	case bridge.KindApplicationError:
		return response{status: http.StatusInternalServerError, payload: errorPayload(out.Detail)}
	case bridge.KindWorkerTimeoutError:
		return response{status: http.StatusGatewayTimeout, payload: detailPayload(msgTimedOut, out.Detail)}
	case bridge.KindCapacityError:
		return response{status: http.StatusServiceUnavailable, payload: detailPayload(msgCapacity, out.Detail), retryAfter: true}
	case bridge.KindCanceled:
		return response{status: http.StatusInternalServerError, payload: errorPayload(msgCanceled)}
	default:
		return response{status: http.StatusInternalServerError, payload: detailPayload(msgGenerateFailed, out.Detail)}
	}
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, errors.ErrInvalidBody):
		return msgInvalidBody
	case errors.Is(err, errors.ErrInvalidProvider):
		return msgInvalidProvider
	default:
		return msgPromptRequired
	}
}

func errorPayload(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func detailPayload(msg, details string) map[string]string {
	return map[string]string{"error": msg, "details": details}
}

// encodeJSON renders payload without HTML escaping so generated text reaches
// the client unchanged.
func encodeJSON(payload any) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return []byte(`{"error":"failed to encode response"}` + "\n")
	}
	return buf.Bytes()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(encodeJSON(payload))
}

package web

// errors.go keeps error responses consistent across handlers.
//
// Every error is logged server-side with its technical detail, the support
// code from core.MapError and the request id. Clients only ever see the
// detail string chosen by the handler, so internal faults never leak.

import (
	"net/http"

	"github.com/JonMunkholm/esg/internal/core"
	"github.com/JonMunkholm/esg/internal/logging"
)

// Client-facing messages.
const (
	msgNoFile          = "No file provided. Expected `file` field."
	msgInvalidFileType = "Invalid file type. Only ZIP archives are supported."
	msgFileTooLarge    = "Uploaded file exceeds the maximum allowed size."
	msgUploadFailed    = "An unexpected error occurred while processing the ZIP file."
	msgBusy            = "Too many uploads in progress. Please try again shortly."
	msgNotFound        = "Not found."
	msgReportNotFound  = "Report not found for the specified company."
	msgPredictFailed   = "Failed to generate prediction from the ESG model."
	msgMalformedJSON   = "Malformed JSON request body."
	msgUnexpected      = "An unexpected error occurred."
)

// detailResponse is the {"detail": ...} error body used by the read API.
type detailResponse struct {
	Detail string `json:"detail"`
}

// statusResponse is the {"status": "error", "detail": ...} body used by
// the upload endpoint.
type statusResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// respondError logs err and writes body with statusCode.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int, body any) {
	userMsg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if statusCode >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request rejected", attrs...)
	}

	writeJSON(w, statusCode, body)
}

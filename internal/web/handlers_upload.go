package web

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/JonMunkholm/esg/internal/core"
)

// multipartMemory is how much of a multipart body is kept in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// uploadResponse is the success body of POST /api/upload-zip/.
type uploadResponse struct {
	Status            string `json:"status"`
	CompaniesInserted int    `json:"companies_inserted"`
	NewsInserted      int    `json:"news_inserted"`
	ReportsInserted   int    `json:"reports_inserted"`
}

// handleUploadZip ingests the ZIP archive in the multipart "file" field.
func (s *Server) handleUploadZip(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, err, http.StatusRequestEntityTooLarge, detailResponse{Detail: msgFileTooLarge})
			return
		}
		s.respondError(w, r, err, http.StatusBadRequest, detailResponse{Detail: msgNoFile})
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest, detailResponse{Detail: msgNoFile})
		return
	}
	defer file.Close()

	if !looksLikeZip(header) {
		s.respondError(w, r, errors.New("rejected upload "+header.Filename), http.StatusBadRequest,
			detailResponse{Detail: msgInvalidFileType})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Upload.Timeout)
	defer cancel()

	result, err := s.deps.Ingester.Ingest(ctx, file)
	if err != nil {
		if ie, ok := core.AsIngestionError(err); ok {
			s.respondError(w, r, err, http.StatusBadRequest, statusResponse{Status: "error", Detail: ie.Message})
			return
		}
		if errors.Is(err, core.ErrTooManyUploads) {
			w.Header().Set("Retry-After", "30")
			s.respondError(w, r, err, http.StatusServiceUnavailable, statusResponse{Status: "error", Detail: msgBusy})
			return
		}
		s.respondError(w, r, err, http.StatusInternalServerError, statusResponse{Status: "error", Detail: msgUploadFailed})
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Status:            "success",
		CompaniesInserted: result.CompaniesInserted,
		NewsInserted:      result.NewsInserted,
		ReportsInserted:   result.ReportsInserted,
	})
}

// looksLikeZip accepts a .zip name or a zip content type. Either is enough;
// the ingester validates the actual container.
func looksLikeZip(header *multipart.FileHeader) bool {
	if strings.HasSuffix(strings.ToLower(header.Filename), ".zip") {
		return true
	}
	return strings.Contains(header.Header.Get("Content-Type"), "zip")
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ron9295/guardz-fetch-service/internal/scan"
)

type submitScanRequest struct {
	URLs []string `json:"urls"`
}

type submitScanResponse struct {
	Message     string `json:"message"`
	RequestID   string `json:"requestId"`
	ResultCount int    `json:"resultCount"`
}

func (s *Server) submitScan(w http.ResponseWriter, r *http.Request) {
	var req submitScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validateURLs(req.URLs); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ident := callerIdentity(r)
	requestID, err := s.orchestrator.Submit(r.Context(), req.URLs, ident.OwnerID)
	if err != nil {
		s.logger.Error("scan submission failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to admit scan")
		return
	}

	writeJSON(w, http.StatusAccepted, submitScanResponse{
		Message:     "Fetching started",
		RequestID:   requestID,
		ResultCount: len(req.URLs),
	})
}

func (s *Server) getScanStatus(w http.ResponseWriter, r *http.Request) {
	scanID := chi.URLParam(r, "scan_id")
	report, err := s.reader.Status(r.Context(), scanID, callerIdentity(r))
	if err != nil {
		s.writeReadError(w, scanID, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) getScanResults(w http.ResponseWriter, r *http.Request) {
	scanID := chi.URLParam(r, "scan_id")

	cursor, err := queryInt(r, "cursor", 0)
	if err != nil || cursor < 0 {
		writeError(w, http.StatusBadRequest, "cursor must be a non-negative integer")
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	page, err := s.reader.Results(r.Context(), scanID, callerIdentity(r), cursor, limit)
	if err != nil {
		s.writeReadError(w, scanID, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) writeReadError(w http.ResponseWriter, scanID string, err error) {
	switch {
	case errors.Is(err, scan.ErrNotFound):
		writeError(w, http.StatusNotFound, fmt.Sprintf("scan request %q not found", scanID))
	case errors.Is(err, scan.ErrForbidden):
		writeError(w, http.StatusForbidden, "you do not have permission to access this scan request")
	default:
		s.logger.Error("read path failed", zap.String("scan_id", scanID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) validateURLs(urls []string) error {
	if len(urls) == 0 {
		return fmt.Errorf("urls array cannot be empty")
	}
	if len(urls) > s.cfg.Scan.MaxURLs {
		return fmt.Errorf("urls array cannot contain more than %d URLs", s.cfg.Scan.MaxURLs)
	}
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("each URL must be a valid HTTP or HTTPS URL: %q", raw)
		}
	}
	return nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return v, nil
}

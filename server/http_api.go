package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dotside-studios/davi-nfc-service/protocol"
)

func (s *Server) serviceOr503(w http.ResponseWriter) bool {
	if s.service == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("NFC service not configured"))
		return false
	}
	return true
}

// handleStatus serves GET /api/v1/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.serviceOr503(w) {
		return
	}
	writeJSON(w, http.StatusOK, statusPayload(s.service))
}

// handleRefresh serves POST /api/v1/status/refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !s.serviceOr503(w) {
		return
	}
	s.service.Refresh()
	writeJSON(w, http.StatusAccepted, statusPayload(s.service))
}

// handleListMimeTypes serves GET /api/v1/mimetypes
func (s *Server) handleListMimeTypes(w http.ResponseWriter, r *http.Request) {
	if !s.serviceOr503(w) {
		return
	}
	writeJSON(w, http.StatusOK, mimeTypesPayload(s.service))
}

// handleAddMimeType serves POST /api/v1/mimetypes with a MimeTypeRequest body
func (s *Server) handleAddMimeType(w http.ResponseWriter, r *http.Request) {
	if !s.serviceOr503(w) {
		return
	}

	var body protocol.MimeTypeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("Invalid JSON body"))
		return
	}
	body.MimeType = strings.TrimSpace(body.MimeType)
	if err := s.validate.Struct(body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("mimeType is required"))
		return
	}

	code := http.StatusOK
	if addMimeType(s.service, body.MimeType) {
		code = http.StatusCreated
	}
	writeJSON(w, code, mimeTypesPayload(s.service))
}

// handleRemoveMimeType serves DELETE /api/v1/mimetypes/{mime...}
func (s *Server) handleRemoveMimeType(w http.ResponseWriter, r *http.Request) {
	if !s.serviceOr503(w) {
		return
	}

	mimeType := strings.TrimSpace(r.PathValue("mime"))
	if mimeType == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("mime type is required"))
		return
	}
	if s.service.MimeTypes().Remove(mimeType) == 0 {
		writeJSON(w, http.StatusNotFound, errorBody("mime type not registered"))
		return
	}
	writeJSON(w, http.StatusOK, mimeTypesPayload(s.service))
}

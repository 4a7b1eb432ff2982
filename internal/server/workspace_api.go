package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"aira/internal/workspace"
)

type workspacePayload struct {
	State workspace.State `json:"state"`
	Tree  workspace.Tree  `json:"tree"`
}

type filePayload struct {
	workspace.File
	Text string `json:"text"`
}

func (s *Server) requireStore(w http.ResponseWriter, r *http.Request) bool {
	if s.store == nil {
		s.respondError(w, r, http.StatusServiceUnavailable, "workspace store not configured")
		return false
	}
	return true
}

func (s *Server) handleWorkspace(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	st := s.store.State()
	s.writeJSON(w, r, http.StatusOK, workspacePayload{State: st, Tree: workspace.BuildTree(st)})
}

func (s *Server) handleCreateFile(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	var req struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	if !s.readJSON(w, r, &req) {
		return
	}
	kind, err := workspace.ParseKind(req.Type)
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	f, err := s.store.CreateFile(req.Name, kind)
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, r, http.StatusCreated, f)
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	f, ok := s.store.File(chi.URLParam(r, "id"))
	if !ok {
		s.respondError(w, r, http.StatusNotFound, "file not found")
		return
	}
	s.writeJSON(w, r, http.StatusOK, filePayload{File: f, Text: s.engines.PlainText(f)})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	id := chi.URLParam(r, "id")
	if _, ok := s.store.File(id); !ok {
		s.respondError(w, r, http.StatusNotFound, "file not found")
		return
	}
	s.store.DeleteFile(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateContent(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	id := chi.URLParam(r, "id")
	if _, ok := s.store.File(id); !ok {
		s.respondError(w, r, http.StatusNotFound, "file not found")
		return
	}
	if s.editors != nil && s.editors.IsMounted(id) {
		s.respondError(w, r, http.StatusConflict, "file is open in an editor")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 16<<20))
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, "read body failed")
		return
	}
	body = bytes.TrimSpace(body)
	if !json.Valid(body) {
		s.respondError(w, r, http.StatusBadRequest, "content must be JSON")
		return
	}
	s.store.UpdateFile(id, json.RawMessage(body))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateParent(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	var req struct {
		ParentFolderID *string `json:"parentFolderId"`
	}
	if !s.readJSON(w, r, &req) {
		return
	}
	err := s.store.UpdateFileParent(chi.URLParam(r, "id"), req.ParentFolderID)
	switch {
	case errors.Is(err, workspace.ErrUnknownFile):
		s.respondError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, workspace.ErrUnknownFolder):
		s.respondError(w, r, http.StatusBadRequest, err.Error())
	case err != nil:
		s.respondError(w, r, http.StatusInternalServerError, err.Error())
	default:
		f, _ := s.store.File(chi.URLParam(r, "id"))
		s.writeJSON(w, r, http.StatusOK, f)
	}
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if !s.readJSON(w, r, &req) {
		return
	}
	folder, err := s.store.CreateFolder(req.Name)
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, r, http.StatusCreated, folder)
}

func (s *Server) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	id := chi.URLParam(r, "id")
	folder, ok := s.store.FindFolder(id)
	if !ok {
		s.respondError(w, r, http.StatusNotFound, "folder not found")
		return
	}
	s.store.DeleteFolder(folder.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOpenTab(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	if !s.store.OpenTab(chi.URLParam(r, "id")) {
		s.respondError(w, r, http.StatusNotFound, "file not found")
		return
	}
	s.writeJSON(w, r, http.StatusOK, s.store.State())
}

func (s *Server) handleCloseTab(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	s.store.CloseTab(chi.URLParam(r, "id"))
	s.writeJSON(w, r, http.StatusOK, s.store.State())
}

func (s *Server) handleSetActiveTab(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	var req struct {
		ID string `json:"id"`
	}
	if !s.readJSON(w, r, &req) {
		return
	}
	if err := s.store.SetActiveTab(req.ID); err != nil {
		s.respondError(w, r, http.StatusConflict, err.Error())
		return
	}
	s.writeJSON(w, r, http.StatusOK, s.store.State())
}

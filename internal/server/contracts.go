package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"contractlens/internal/ws"
	"contractlens/pkg/domain"
)

// handleContracts serves the collection: list and upload.
func (s *Server) handleContracts(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		s.handleListContracts(w, r, user)
	case http.MethodPost:
		s.handleUploadContract(w, r, user)
	default:
		methodNotAllowed(w, r)
	}
}

func (s *Server) handleListContracts(w http.ResponseWriter, r *http.Request, user domain.User) {
	mineOnly := r.URL.Query().Get("mine") == "1"
	contracts, err := s.app.ListContracts(r.Context(), user, mineOnly)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"contracts": contracts})
}

func (s *Server) handleUploadContract(w http.ResponseWriter, r *http.Request, user domain.User) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_upload", "invalid multipart body or file too large")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_upload", "missing file field")
		return
	}
	defer file.Close()

	contract, err := s.app.UploadContract(r.Context(), user, header.Filename, header.Size, header.Header.Get("Content-Type"), file)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, contract)
}

// handleContractByID dispatches /contracts/{id} and its subresources.
func (s *Server) handleContractByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	path := strings.TrimPrefix(r.URL.Path, "/contracts/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		notFound(w, r)
		return
	}
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			contract, err := s.app.GetContract(r.Context(), id)
			if err != nil {
				s.writeAppError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, contract)
		case http.MethodDelete:
			if err := s.app.DeleteContract(r.Context(), user, id); err != nil {
				s.writeAppError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
		default:
			methodNotAllowed(w, r)
		}
		return
	}

	switch parts[1] {
	case "comments":
		s.handleContractComments(w, r, user, id)
	case "analyze":
		s.handleAnalyze(w, r, id)
	case "analyses":
		s.handleListAnalyses(w, r, id)
	case "render":
		s.handleRender(w, r, id)
	case "download":
		s.handleDownload(w, r, id)
	case "text":
		s.handleText(w, r, id)
	default:
		notFound(w, r)
	}
}

type commentRequest struct {
	Body      string            `json:"body"`
	Highlight *domain.TextRange `json:"highlight,omitempty"`
}

func (s *Server) handleContractComments(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	switch r.Method {
	case http.MethodGet:
		comments, err := s.app.ListComments(r.Context(), id)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"comments": comments})
	case http.MethodPost:
		var req commentRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_json", "invalid JSON body")
			return
		}
		comment, err := s.app.AddComment(r.Context(), user, id, req.Body, req.Highlight)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		// Persisted; now fan out to the room and the other instances.
		s.hub.Publish(comment.ContractID, ws.ServerMessage{
			Type:       ws.TypeCommentAdded,
			ContractID: comment.ContractID,
			Comment:    &comment,
		})
		writeJSON(w, http.StatusCreated, comment)
	default:
		methodNotAllowed(w, r)
	}
}

type analyzeRequest struct {
	Kind   string `json:"kind"`
	Prompt string `json:"prompt,omitempty"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	var req analyzeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}
	analysis, err := s.app.Analyze(r.Context(), id, domain.AnalysisKind(req.Kind), req.Prompt)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, analysis)
}

func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	analyses, err := s.app.ListAnalyses(r.Context(), id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"analyses": analyses})
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	segments, err := s.app.RenderContract(r.Context(), id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"segments": segments})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	url, err := s.app.DownloadURL(r.Context(), id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleText(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	text, err := s.app.ContractText(r.Context(), id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

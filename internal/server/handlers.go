package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/liszzmword/ai-data-analyst/internal/ai"
	"github.com/liszzmword/ai-data-analyst/internal/analyst"
	"github.com/liszzmword/ai-data-analyst/internal/codebook"
	"github.com/liszzmword/ai-data-analyst/internal/engine"
	"github.com/liszzmword/ai-data-analyst/internal/router"
	"github.com/liszzmword/ai-data-analyst/internal/upload"
)

const defaultCodebookLimit = 20

var errNoFiles = errors.New("업로드된 파일이 없습니다")

type queryRequest struct {
	Query         string `json:"query"`
	Dataset       string `json:"dataset,omitempty"`
	IncludeImages bool   `json:"include_images,omitempty"`
}

type askResponse struct {
	*analyst.Response
	Markdown string `json:"markdown"`
	Error    string `json:"error,omitempty"`
	Hint     string `json:"hint,omitempty"`
}

type chatResponse struct {
	*analyst.Analysis
	Error string `json:"error,omitempty"`
	Hint  string `json:"hint,omitempty"`
}

type fileInfo struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Kind    upload.Kind `json:"kind"`
	Size    int         `json:"size"`
	Rows    int         `json:"rows,omitempty"`
	Columns int         `json:"columns,omitempty"`
	Dataset string      `json:"dataset,omitempty"`
	Summary string      `json:"summary"`
}

type fileError struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

func infoOf(f *upload.File) fileInfo {
	fi := fileInfo{ID: f.ID, Name: f.Name, Kind: f.Kind, Size: f.Size, Dataset: f.Dataset, Summary: f.Summary()}
	if f.IsTable() {
		fi.Rows, fi.Columns = f.Table.Len(), f.Table.Width()
	}
	return fi
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"status":  code,
			"message": err.Error(),
		},
	})
}

func decodeQuery(r *http.Request) (queryRequest, error) {
	var req queryRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		return req, fmt.Errorf("decode request: %w", err)
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return req, errors.New("query is required")
	}
	return req, nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	snap := s.cfg.Workspace.Current()
	datasets := make([]string, 0, len(snap.Tables))
	for name := range snap.Tables {
		datasets = append(datasets, name)
	}
	slices.Sort(datasets)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"datasets":         datasets,
		"missing":          snap.Missing,
		"codebook_entries": snap.Codebook.Len(),
		"loaded_at":        snap.LoadedAt.Format(time.RFC3339),
		"sessions":         s.states.len(),
	})
}

func (s *Server) classify(w http.ResponseWriter, r *http.Request) {
	req, err := decodeQuery(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	res := s.cfg.Classifier.Classify(req.Query)
	writeJSON(w, http.StatusOK, struct {
		router.Result
		Label string `json:"label"`
	}{res, res.Mode.Label()})
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	req, err := decodeQuery(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if req.Dataset == "" {
		req.Dataset = engine.All
	}
	if !engine.ValidFilter(req.Dataset) {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("unknown dataset %q", req.Dataset))
		return
	}
	eng := s.cfg.Workspace.Current().Engine(
		engine.WithLogger(s.log),
		engine.WithSearcher(s.cfg.Searcher),
		engine.WithClassifier(s.cfg.Classifier))
	proc := analyst.NewProcessor(s.cfg.Classifier, eng, s.cfg.Runtime, s.cfg.Ask, s.log)
	resp := proc.Process(r.Context(), req.Query, req.Dataset, nil)

	out := askResponse{Response: resp, Markdown: resp.Format()}
	if resp.Err != nil {
		out.Error, out.Hint = resp.Err.Error(), ai.Hint(resp.Err)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) codebook(w http.ResponseWriter, r *http.Request) {
	cb := s.cfg.Workspace.Current().Codebook
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	limit := defaultCodebookLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}
	var entries []codebook.Entry
	if q == "" {
		entries = cb.Entries()
		if len(entries) > limit {
			entries = entries[:limit]
		}
	} else {
		entries = cb.Search(q, limit)
	}
	if entries == nil {
		entries = []codebook.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": q, "entries": entries})
}

func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	files := stateFrom(r.Context()).files.List()
	out := make([]fileInfo, 0, len(files))
	for _, f := range files {
		out = append(out, infoOf(f))
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": out})
}

func uploadStatus(err error) int {
	var tooLarge *upload.TooLargeError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, upload.ErrUnsupported), errors.Is(err, upload.ErrLegacyExcel):
		return http.StatusUnsupportedMediaType
	}
	return http.StatusBadRequest
}

// uploadFiles streams every file part of a multipart body through the
// loader. Files that fail are reported next to the ones that loaded.
func (s *Server) uploadFiles(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	st := stateFrom(r.Context())
	var (
		added  = []fileInfo{}
		failed = []fileError{}
		status = http.StatusBadRequest
	)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		name := part.FileName()
		if name == "" {
			_ = part.Close()
			continue
		}
		f, err := s.cfg.Loader.Read(name, part)
		_ = part.Close()
		if err != nil {
			s.log.Warn("upload rejected", zap.String("file", name), zap.Error(err))
			failed = append(failed, fileError{File: name, Error: err.Error()})
			status = uploadStatus(err)
			continue
		}
		st.files.Add(f)
		added = append(added, infoOf(f))
	}
	switch {
	case len(added) > 0:
		status = http.StatusOK
	case len(failed) == 0:
		writeErr(w, http.StatusBadRequest, errors.New("no file parts in request"))
		return
	}
	writeJSON(w, status, map[string]any{"files": added, "errors": failed})
}

// deleteFiles removes one file by id, or every file when no id is given.
func (s *Server) deleteFiles(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r.Context())
	id := r.URL.Query().Get("id")
	if id == "" {
		st.files.Clear()
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if !st.files.Remove(id) {
		writeErr(w, http.StatusNotFound, fmt.Errorf("file %q not found", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	req, err := decodeQuery(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	st := stateFrom(r.Context())
	if st.files.Len() == 0 {
		writeErr(w, http.StatusBadRequest, errNoFiles)
		return
	}
	res := s.smart.Analyze(r.Context(), st.files, analyst.Request{
		Query:         req.Query,
		History:       st.history,
		IncludeImages: req.IncludeImages,
	})
	out := chatResponse{Analysis: res}
	if res.Err != nil {
		out.Error, out.Hint = res.Err.Error(), ai.Hint(res.Err)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) resetChat(w http.ResponseWriter, r *http.Request) {
	stateFrom(r.Context()).history.Reset()
	w.WriteHeader(http.StatusNoContent)
}

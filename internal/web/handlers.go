package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/Geocene/firefinder/internal/logic"
	"github.com/Geocene/firefinder/internal/pipeline"
	"github.com/Geocene/firefinder/internal/preprocess"
	"github.com/Geocene/firefinder/internal/store"
)

// DefaultRunsLimit is the page size of GET /runs without a limit.
const DefaultRunsLimit = 20

// handleDetect accepts either a JSON DetectRequest or a CSV body. For CSV
// the source comes from the "source" query value and every other query
// value is a detector parameter.
func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	if s.opts.Runner == nil {
		writeError(w, http.StatusNotFound, "detection disabled")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("read body: %v", err))
		return
	}

	req, err := s.parseDetect(r, body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := s.opts.Runner.Run(r.Context(), req)
	if err != nil {
		code := http.StatusInternalServerError
		if pipeline.IsInputError(err) {
			code = http.StatusBadRequest
		}
		writeError(w, code, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, NewDetectResponse(out))
}

func (s *Server) parseDetect(r *http.Request, body []byte) (pipeline.Request, error) {
	var req pipeline.Request
	overrides := map[string]any{}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "text/csv":
		q := r.URL.Query()
		req.Source = q.Get("source")
		for k, vs := range q {
			if k != "source" && len(vs) > 0 {
				overrides[k] = vs[0]
			}
		}
		records, err := preprocess.DecodeCSV(bytes.NewReader(body))
		if err != nil {
			return req, err
		}
		req.Records = records

	default:
		var dr DetectRequest
		if err := json.Unmarshal(body, &dr); err != nil {
			return req, fmt.Errorf("decode request: %w", err)
		}
		if len(dr.Records) == 0 {
			return req, errors.New("records are required")
		}
		records, err := preprocess.DecodeJSON(bytes.NewReader(dr.Records))
		if err != nil {
			return req, err
		}
		req.Source = dr.Source
		req.Records = records
		overrides = dr.Params
	}

	if req.Source == "" {
		req.Source = "http"
	}
	params, err := logic.ParseParams(merge(s.opts.Detector, overrides))
	if err != nil {
		return req, err
	}
	req.Params = params
	return req, nil
}

// merge returns base with overrides applied, leaving both unchanged.
func merge(base, overrides map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.opts.Runs == nil {
		writeError(w, http.StatusNotFound, "run store disabled")
		return
	}
	limit := DefaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.opts.Runs.ListRuns(r.Context(), limit)
	if err != nil {
		log.Printf("list runs: %v", err)
		writeError(w, http.StatusInternalServerError, "list runs failed")
		return
	}
	out := RunsJSON{Runs: make([]RunJSON, len(runs))}
	for i, run := range runs {
		out.Runs[i] = runJSON(run)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.opts.Runs == nil {
		writeError(w, http.StatusNotFound, "run store disabled")
		return
	}
	id := mux.Vars(r)["id"]
	run, err := s.opts.Runs.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("run %s not found", id))
		return
	}
	if err != nil {
		log.Printf("get run %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "get run failed")
		return
	}
	writeJSON(w, http.StatusOK, RunDetailJSON{RunJSON: runJSON(*run), Events: eventsJSON(run.Events)})
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if s.opts.Runs == nil {
		writeError(w, http.StatusNotFound, "run store disabled")
		return
	}
	id := mux.Vars(r)["id"]
	err := s.opts.Runs.DeleteRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("run %s not found", id))
		return
	}
	if err != nil {
		log.Printf("delete run %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "delete run failed")
		return
	}
	log.Printf("deleted run %s", id)
	w.WriteHeader(http.StatusNoContent)
}

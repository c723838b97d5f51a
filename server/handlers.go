// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/poiesic/reviewlens/core"
	"github.com/poiesic/reviewlens/job"
	"github.com/poiesic/reviewlens/storage"
)

type analyzeRequest struct {
	Namespace string `json:"namespace"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type chatRequest struct {
	Question string `json:"question"`
}

type chatResponse struct {
	Answer string `json:"answer"`
}

type chatMessageView struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// jobView is the API shape of a job record.
type jobView struct {
	ID          string     `json:"id"`
	Namespace   string     `json:"namespace"`
	DisplayName string     `json:"display_name,omitempty"`
	StartDate   string     `json:"start_date"`
	EndDate     string     `json:"end_date"`
	Status      string     `json:"status"`
	Phase       string     `json:"phase,omitempty"`
	Progress    int        `json:"progress"`
	Message     string     `json:"message,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func viewOf(j *core.Job) jobView {
	v := jobView{
		ID:          j.ID,
		Namespace:   j.Namespace,
		DisplayName: j.DisplayName,
		StartDate:   j.StartDate.Format(core.DateBucket),
		EndDate:     j.EndDate.Format(core.DateBucket),
		Status:      string(j.Status),
		Phase:       j.Phase,
		Progress:    j.Progress,
		Message:     j.Message,
		Error:       j.Error,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
	if !j.CompletedAt.IsZero() {
		t := j.CompletedAt
		v.CompletedAt = &t
	}
	return v
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	start, err := time.Parse(core.DateBucket, req.StartDate)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errors.New("start_date must be YYYY-MM-DD"))
		return
	}
	end, err := time.Parse(core.DateBucket, req.EndDate)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errors.New("end_date must be YYYY-MM-DD"))
		return
	}

	created, err := s.orch.Submit(r.Context(), req.Namespace, start, end)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, viewOf(created))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	j, err := s.orch.GetStatus(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, viewOf(j))
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	report, err := s.orch.GetResult(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	status := core.JobStatus(q.Get("status"))

	jobs, err := s.orch.History(r.Context(), limit, offset, status)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	views := make([]jobView, len(jobs))
	for i, j := range jobs {
		views[i] = viewOf(j)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": views})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.orch.Cancel(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	j, err := s.orch.GetStatus(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, viewOf(j))
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	fresh, err := s.orch.Retry(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, viewOf(fresh))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.orch.GetChatHistory(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	views := make([]chatMessageView, len(history))
	for i, msg := range history {
		views[i] = chatMessageView{
			Role:      string(msg.Role),
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"messages": views})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	answer, err := s.orch.Ask(r.Context(), mux.Vars(r)["id"], req.Question)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, chatResponse{Answer: answer})
}

// writeDomainError maps the error taxonomy onto HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, core.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, job.ErrJobNotCompleted), errors.Is(err, job.ErrJobNotRetryable):
		s.writeError(w, http.StatusConflict, err)
	case errors.Is(err, job.ErrChatUnavailable):
		s.writeError(w, http.StatusServiceUnavailable, err)
	default:
		s.logger.Error("request failed", "err", err)
		s.writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", "err", err)
	}
}

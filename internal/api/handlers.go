// Package api provides HTTP handlers for ChartFlow endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/ChartFlow/internal/exec"
	"github.com/BTreeMap/ChartFlow/internal/models"
)

// commandRequest is the body of POST /commands.
type commandRequest struct {
	Input string `json:"input"`
}

// responseRequest is the body of POST /responses.
type responseRequest struct {
	PatientID string `json:"patient_id"`
	Body      string `json:"body"`
}

func (s *Server) commandsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.commandsHandler: processing command request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.commandsHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.commandsHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	results, err := s.runner.Run(r.Context(), req.Input)
	if err != nil {
		if errors.Is(err, models.ErrEmptyInput) || errors.Is(err, models.ErrInvalidIndex) || errors.Is(err, models.ErrNestedConditional) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		slog.Error("Server.commandsHandler: chain execution failed", "error", err)
		writeJSONResponse(w, http.StatusUnprocessableEntity, models.APIResponse{
			Status:  string(models.APIStatusError),
			Message: err.Error(),
			Result:  results,
		})
		return
	}
	if results == nil {
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("nothing to do", nil))
		return
	}

	for _, res := range results {
		if res.Pending {
			writeJSONResponse(w, http.StatusAccepted, models.Pending("awaiting patient reply", results))
			return
		}
	}

	slog.Info("Server.commandsHandler: chain executed", "steps", len(results))
	writeJSONResponse(w, http.StatusOK, models.Success(results))
}

// previewHandler compiles input without executing it, a dry run for
// inspecting what the interpreter would do. When a GenAI client is
// configured the LLM parser is used; otherwise the rule cascade.
func (s *Server) previewHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.previewHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	if s.genai != nil {
		cmd, err := s.genai.GenerateCommand(r.Context(), req.Input)
		if err != nil {
			slog.Error("Server.previewHandler: GenAI parse failed", "error", err)
			writeJSONResponse(w, http.StatusBadGateway, models.Error("LLM parse failed"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success([]models.Command{cmd}))
		return
	}

	cmds, err := exec.Interpret(req.Input)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(cmds))
}

func (s *Server) responsesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.responsesHandler: processing response", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.responsesHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req responseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.responsesHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.PatientID == "" || req.Body == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("patient_id and body are required"))
		return
	}

	s.engine.RecordPatientResponse(req.PatientID, req.Body)
	resolved := s.engine.CheckPendingWorkflows(r.Context())

	slog.Info("Server.responsesHandler: response recorded", "patient_id", req.PatientID, "resolved", len(resolved))
	if len(resolved) > 0 {
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("response recorded and workflows resolved", resolved))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Recorded("response recorded"))
}

func (s *Server) workflowsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.workflowsHandler: listing workflows", "method", r.Method)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	workflows := s.engine.PendingWorkflows().List()
	writeJSONResponse(w, http.StatusOK, models.Success(workflows))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("healthy", nil))
}

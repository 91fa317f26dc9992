package realtime

import (
	"encoding/json"
	"errors"
	"net/http"

	"cas-bridge/internal/dialect"
	"cas-bridge/internal/protocol"
	"cas-bridge/internal/repl"
	"cas-bridge/internal/session"
)

type createKernelRequest struct {
	Dialect string `json:"dialect"`
	Label   string `json:"label"`
}

type executeRequest struct {
	Seq  int    `json:"seq"`
	Code string `json:"code"`
}

type isCompleteRequest struct {
	Code string `json:"code"`
}

// errorCode maps manager errors to protocol error codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return protocol.ErrKernelNotFound
	case errors.Is(err, session.ErrMaxSessions):
		return protocol.ErrMaxSessions
	case errors.Is(err, dialect.ErrUnknownDialect):
		return protocol.ErrUnknownDialect
	case errors.Is(err, repl.ErrSpawn), errors.Is(err, dialect.ErrInvalidProfile):
		return protocol.ErrSpawnFailed
	case errors.Is(err, repl.ErrSessionClosed):
		return protocol.ErrKernelTerminated
	default:
		return protocol.ErrInternal
	}
}

func httpStatus(code string) int {
	switch code {
	case protocol.ErrKernelNotFound, protocol.ErrUnknownDialect:
		return http.StatusNotFound
	case protocol.ErrMaxSessions:
		return http.StatusTooManyRequests
	case protocol.ErrKernelTerminated:
		return http.StatusGone
	case protocol.ErrInvalidMessage:
		return http.StatusBadRequest
	case protocol.ErrSpawnFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code, message string) {
	writeJSON(w, httpStatus(code), protocol.ErrorPayload{Code: code, Message: message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, protocol.ErrInvalidMessage, "invalid request body")
		return false
	}
	return true
}

func (s *Server) handleCreateKernel(w http.ResponseWriter, r *http.Request) {
	var req createKernelRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Dialect == "" {
		writeError(w, protocol.ErrInvalidMessage, "dialect is required")
		return
	}

	k, err := s.kernels.Create(req.Dialect, req.Label)
	if err != nil {
		writeError(w, errorCode(err), err.Error())
		return
	}
	s.kernelCreated(k)

	writeJSON(w, http.StatusCreated, k)
}

func (s *Server) handleListKernels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.kernels.List())
}

func (s *Server) handleGetKernel(w http.ResponseWriter, r *http.Request) {
	k, err := s.kernels.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, errorCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, k)
}

// handleExecute blocks until the cell's response arrives or the request is
// cancelled.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req executeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Seq < 0 {
		writeError(w, protocol.ErrInvalidMessage, "seq must not be negative")
		return
	}

	resp, err := s.kernels.Execute(r.Context(), id, req.Seq, req.Code)
	if err != nil {
		writeError(w, errorCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resultPayload(id, resp))
}

func (s *Server) handleIsComplete(w http.ResponseWriter, r *http.Request) {
	var req isCompleteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	v, err := s.kernels.IsComplete(r.PathValue("id"), req.Code)
	if err != nil {
		writeError(w, errorCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req isCompleteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	v, err := s.kernels.Classify(r.PathValue("name"), req.Code)
	if err != nil {
		writeError(w, errorCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleDeleteKernel(w http.ResponseWriter, r *http.Request) {
	if err := s.kernels.Kill(r.PathValue("id")); err != nil {
		writeError(w, errorCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "terminating"})
}

func (s *Server) handleListDialects(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dialectInfos(s.kernels.Dialects()))
}

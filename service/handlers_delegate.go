package service

import (
	"context"
	"net/http"

	"github.com/Fundable-Protocol/stellar-client/auth"
	"github.com/Fundable-Protocol/stellar-client/stream"
)

// lifecycle adapts the common (caller, id) engine operations to HTTP.
func (s *Server) lifecycle(w http.ResponseWriter, r *http.Request, op func(context.Context, auth.Caller, stream.ID) error, status string) {
	id, err := streamID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := op(r.Context(), caller(r), id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) handleGetDelegate(w http.ResponseWriter, r *http.Request) {
	id, err := streamID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	d, err := s.engine.GetDelegate(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"delegate": d})
}

func (s *Server) handleSetDelegate(w http.ResponseWriter, r *http.Request) {
	id, err := streamID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req struct {
		Delegate stream.Address `json:"delegate"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.SetDelegate(r.Context(), caller(r), id, req.Delegate); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"delegate": req.Delegate})
}

func (s *Server) handleRevokeDelegate(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r, s.engine.RevokeDelegate, "delegate_revoked")
}

func (s *Server) handleGetCancelRequest(w http.ResponseWriter, r *http.Request) {
	id, err := streamID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	req, err := s.engine.GetCancelRequest(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"cancel_request": req})
}

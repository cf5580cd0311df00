package service

import (
	"net/http"
	"strconv"

	"github.com/Fundable-Protocol/stellar-client/stream"
)

type distInitializeRequest struct {
	Admin      stream.Address `json:"admin"`
	FeeAddress stream.Address `json:"fee_address"`
	FeeBps     uint32         `json:"fee_bps"`
}

func (s *Server) handleDistInitialize(w http.ResponseWriter, r *http.Request) {
	var req distInitializeRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.distributor.Initialize(r.Context(), caller(r), req.Admin, req.FeeAddress, req.FeeBps); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"status": "initialized"})
}

type distributeEqualRequest struct {
	Sender     stream.Address   `json:"sender"`
	Token      stream.Address   `json:"token"`
	Total      int64            `json:"total"`
	Recipients []stream.Address `json:"recipients"`
}

func (s *Server) handleDistributeEqual(w http.ResponseWriter, r *http.Request) {
	var req distributeEqualRequest
	if !s.decode(w, r, &req) {
		return
	}
	err := s.distributor.DistributeEqual(r.Context(), caller(r), req.Sender, req.Token, req.Total, req.Recipients)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "distributed"})
}

type distributeWeightedRequest struct {
	Sender     stream.Address   `json:"sender"`
	Token      stream.Address   `json:"token"`
	Recipients []stream.Address `json:"recipients"`
	Amounts    []int64          `json:"amounts"`
}

func (s *Server) handleDistributeWeighted(w http.ResponseWriter, r *http.Request) {
	var req distributeWeightedRequest
	if !s.decode(w, r, &req) {
		return
	}
	err := s.distributor.DistributeWeighted(r.Context(), caller(r), req.Sender, req.Token, req.Recipients, req.Amounts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "distributed"})
}

func (s *Server) handleDistStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	count, err := s.distributor.TotalDistributions(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	total, err := s.distributor.TotalDistributedAmount(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	out := map[string]any{
		"total_distributions": count,
		"total_amount":        total,
	}
	if token := r.URL.Query().Get("token"); token != "" {
		ts, err := s.distributor.TokenStats(ctx, stream.Address(token))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		out["token_stats"] = ts
	}
	if user := r.URL.Query().Get("user"); user != "" {
		us, err := s.distributor.UserStats(ctx, stream.Address(user))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		out["user_stats"] = us
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDistHistory(w http.ResponseWriter, r *http.Request) {
	start := queryUint(r, "start", 0)
	limit := queryUint(r, "limit", 50)
	if limit > 500 {
		limit = 500
	}

	history, err := s.distributor.History(r.Context(), start, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

func queryUint(r *http.Request, key string, def uint64) uint64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return def
	}
	return v
}

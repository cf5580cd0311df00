package service

import (
	"net/http"

	"github.com/Fundable-Protocol/stellar-client/stream"
)

type initializeRequest struct {
	Admin        stream.Address `json:"admin"`
	FeeCollector stream.Address `json:"fee_collector"`
	FeeRateBps   stream.FeeRate `json:"fee_rate_bps"`
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.Initialize(r.Context(), caller(r), req.Admin, req.FeeCollector, req.FeeRateBps); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"status": "initialized"})
}

func (s *Server) handleProtocolMetrics(w http.ResponseWriter, r *http.Request) {
	pm, err := s.engine.GetProtocolMetrics(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pm)
}

func (s *Server) handleGetFee(w http.ResponseWriter, r *http.Request) {
	rate, err := s.engine.GetProtocolFeeRate(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	collector, err := s.engine.GetFeeCollector(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"fee_rate_bps":  rate,
		"fee_collector": collector,
	})
}

func (s *Server) handleSetFeeRate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FeeRateBps stream.FeeRate `json:"fee_rate_bps"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.SetProtocolFeeRate(r.Context(), caller(r), req.FeeRateBps); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"fee_rate_bps": req.FeeRateBps})
}

func (s *Server) handleSetFeeCollector(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FeeCollector stream.Address `json:"fee_collector"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.SetFeeCollector(r.Context(), caller(r), req.FeeCollector); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"fee_collector": req.FeeCollector})
}

type createStreamRequest struct {
	Sender         stream.Address `json:"sender"`
	Recipient      stream.Address `json:"recipient"`
	Token          stream.Address `json:"token"`
	TotalAmount    int64          `json:"total_amount"`
	InitialDeposit int64          `json:"initial_deposit"`
	StartTime      int64          `json:"start_time"`
	EndTime        int64          `json:"end_time"`
}

func (s *Server) handleCreateStream(w http.ResponseWriter, r *http.Request) {
	var req createStreamRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, err := s.engine.CreateStream(r.Context(), caller(r),
		req.Sender, req.Recipient, req.Token,
		req.TotalAmount, req.InitialDeposit, req.StartTime, req.EndTime)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (s *Server) handleGetStream(w http.ResponseWriter, r *http.Request) {
	id, err := streamID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	st, err := s.engine.GetStream(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleWithdrawable(w http.ResponseWriter, r *http.Request) {
	id, err := streamID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := s.engine.WithdrawableAmount(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"withdrawable": amount})
}

func (s *Server) handleStreamMetrics(w http.ResponseWriter, r *http.Request) {
	id, err := streamID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	m, err := s.engine.GetStreamMetrics(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	id, err := streamID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req struct {
		Amount int64 `json:"amount"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.Deposit(r.Context(), caller(r), id, req.Amount); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deposited"})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	id, err := streamID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req struct {
		Amount int64 `json:"amount"`
		Max    bool  `json:"max"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.Max {
		err = s.engine.WithdrawMax(r.Context(), caller(r), id)
	} else {
		err = s.engine.Withdraw(r.Context(), caller(r), id, req.Amount)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "withdrawn"})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r, s.engine.PauseStream, "paused")
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r, s.engine.ResumeStream, "resumed")
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r, s.engine.CancelStream, "canceled")
}

func (s *Server) handleRequestCancel(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r, s.engine.RequestCancel, "cancel_requested")
}

func (s *Server) handleRevokeCancelRequest(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r, s.engine.RevokeCancelRequest, "cancel_request_revoked")
}

func (s *Server) handleCancelConsensual(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r, s.engine.CancelConsensual, "canceled")
}

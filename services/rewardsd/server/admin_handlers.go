package server

import (
	"context"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"couponledger/core/epoch"
	"couponledger/core/fixedpoint"
	"couponledger/core/rewards"
)

func (s *Server) handleConfigureEpoch(w http.ResponseWriter, r *http.Request) {
	var window epoch.Window
	if !decodeBody(w, r, &window) {
		return
	}
	e, err := s.ledger.ConfigureEpoch(r.Context(), window)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

type exclusionRequest struct {
	Address  string `json:"address"`
	Excluded bool   `json:"excluded"`
}

func (s *Server) handleExclusion(w http.ResponseWriter, r *http.Request) {
	var req exclusionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	addr, err := parseAddress("address", req.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.ledger.SetExcluded(r.Context(), addr, req.Excluded); err != nil {
		writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePause(paused bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		if paused {
			err = s.ledger.Pause()
		} else {
			err = s.ledger.Unpause()
		}
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		principal, _ := PrincipalFromContext(r.Context())
		s.logger.Info("pause state changed", "paused", paused, "by", principal.Subject)
		writeJSON(w, http.StatusOK, map[string]bool{"paused": s.ledger.Paused()})
	}
}

type claimLimitsRequest struct {
	Min string `json:"min"`
	Max string `json:"max"`
}

func (s *Server) handleClaimLimits(w http.ResponseWriter, r *http.Request) {
	var req claimLimitsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	minClaim, err := parseAmount("min", req.Min)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	maxClaim, err := parseAmount("max", req.Max)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.ledger.SetClaimLimits(r.Context(), minClaim, maxClaim); err != nil {
		writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addressRequest struct {
	Address string `json:"address"`
}

func (s *Server) handleBreakageSink(w http.ResponseWriter, r *http.Request) {
	s.setAddress(w, r, s.ledger.SetBreakageSink)
}

func (s *Server) handleTreasury(w http.ResponseWriter, r *http.Request) {
	s.setAddress(w, r, s.ledger.SetTreasury)
}

func (s *Server) setAddress(w http.ResponseWriter, r *http.Request, set func(context.Context, common.Address) error) {
	var req addressRequest
	if !decodeBody(w, r, &req) {
		return
	}
	addr, err := parseAddress("address", req.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := set(r.Context(), addr); err != nil {
		writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type distributionGuardsRequest struct {
	MintCeiling string `json:"mintCeiling"`
	DepegGuard  bool   `json:"depegGuard"`
}

// handleDistributionGuards updates the mint ceiling and depeg guard in one
// batch so a partial update is never visible.
func (s *Server) handleDistributionGuards(w http.ResponseWriter, r *http.Request) {
	var req distributionGuardsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ceiling, err := parseAmount("mintCeiling", req.MintCeiling)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err = s.ledger.Batch(r.Context(), func(b *rewards.Batch) error {
		return b.UpdateParams(func(p *rewards.Params) error {
			p.MintCeiling = ceiling
			p.DepegGuard = req.DepegGuard
			return nil
		})
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type collateralRequest struct {
	Collateral string `json:"collateral"`
}

func (s *Server) handleCollateral(w http.ResponseWriter, r *http.Request) {
	if s.collateral == nil {
		writeError(w, http.StatusNotImplemented, "collateral is not managed by this deployment")
		return
	}
	var req collateralRequest
	if !decodeBody(w, r, &req) {
		return
	}
	collateral, err := parseAmount("collateral", req.Collateral)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.collateral.SetCollateral(collateral)
	w.WriteHeader(http.StatusNoContent)
}

type priceRequest struct {
	Rate       string `json:"rate"`
	ObservedAt int64  `json:"observedAt"`
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	if s.prices == nil {
		writeError(w, http.StatusNotImplemented, "price source does not accept posted prices")
		return
	}
	var req priceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rate, err := fixedpoint.ParseScaled(req.Rate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "rate: "+err.Error())
		return
	}
	var observed time.Time
	if req.ObservedAt > 0 {
		observed = time.Unix(req.ObservedAt, 0)
	}
	if err := s.prices.Post(rate, observed); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type distributeAndConfigureRequest struct {
	Distributor string       `json:"distributor"`
	Coupon      string       `json:"coupon"`
	Next        epoch.Window `json:"next"`
}

type distributeAndConfigureResponse struct {
	Report reportResponse `json:"report"`
	Next   epoch.Epoch    `json:"next"`
}

func (s *Server) handleDistributeAndConfigure(w http.ResponseWriter, r *http.Request) {
	var req distributeAndConfigureRequest
	if !decodeBody(w, r, &req) {
		return
	}
	distributor, err := parseAddress("distributor", req.Distributor)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	coupon, err := parseAmount("coupon", req.Coupon)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rep, next, err := s.ledger.DistributeAndConfigure(r.Context(), distributor, coupon, req.Next)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	s.mirrorReport(r.Context(), rep)
	resp, err := newReportResponse(rep)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, distributeAndConfigureResponse{Report: resp, Next: next})
}

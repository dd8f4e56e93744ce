package server

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"couponledger/integrations/exports"
)

type balanceChangeRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (s *Server) handleBalanceChange(w http.ResponseWriter, r *http.Request) {
	var req balanceChangeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	from, err := parseAddress("from", req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.ledger.OnBalanceChange(r.Context(), from, to, amount); err != nil {
		writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type distributeRequest struct {
	Distributor string `json:"distributor"`
	Coupon      string `json:"coupon"`
}

func (s *Server) handleDistribute(w http.ResponseWriter, r *http.Request) {
	var req distributeRequest
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
	rep, err := s.ledger.Distribute(r.Context(), distributor, coupon)
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
	writeJSON(w, http.StatusCreated, resp)
}

type claimRequest struct {
	Account   string `json:"account"`
	Recipient string `json:"recipient"`
}

type claimResponse struct {
	Account   common.Address `json:"account"`
	Recipient common.Address `json:"recipient"`
	Amount    string         `json:"amount"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if !decodeBody(w, r, &req) {
		return
	}
	account, err := parseAddress("account", req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recipient := account
	if strings.TrimSpace(req.Recipient) != "" {
		if recipient, err = parseAddress("recipient", req.Recipient); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	// Tokens issued to a holder may only claim for that holder.
	if p, ok := PrincipalFromContext(r.Context()); ok && !p.HasScope(ScopeAdmin) && common.IsHexAddress(p.Subject) {
		if common.HexToAddress(p.Subject) != account {
			writeError(w, http.StatusForbidden, "token subject does not own account")
			return
		}
	}
	amount, err := s.ledger.Claim(r.Context(), account, recipient)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{Account: account, Recipient: recipient, Amount: amount.Dec()})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	view, err := s.ledger.Account(addr)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleGlobal(w http.ResponseWriter, _ *http.Request) {
	view, err := s.ledger.Global()
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type currentEpochResponse struct {
	ID              uint64 `json:"id"`
	StartTime       uint64 `json:"startTime"`
	EndTime         uint64 `json:"endTime"`
	CheckpointStart uint64 `json:"checkpointStart"`
	CheckpointEnd   uint64 `json:"checkpointEnd"`
	Distributed     bool   `json:"distributed"`
}

func (s *Server) handleCurrentEpoch(w http.ResponseWriter, _ *http.Request) {
	current, ok, distributed := s.ledger.CurrentEpoch()
	if !ok {
		writeError(w, http.StatusNotFound, "no epoch configured")
		return
	}
	writeJSON(w, http.StatusOK, currentEpochResponse{
		ID:              current.ID,
		StartTime:       current.StartTime,
		EndTime:         current.EndTime,
		CheckpointStart: current.CheckpointStart,
		CheckpointEnd:   current.CheckpointEnd,
		Distributed:     distributed,
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid epoch id")
		return
	}
	rep, ok := s.ledger.Report(id)
	if !ok {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	resp, err := newReportResponse(rep)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	reports := s.ledger.Reports()
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	var (
		data        []byte
		checksum    string
		contentType string
		err         error
	)
	switch format {
	case "csv":
		data, checksum, err = exports.ReportsCSV(reports)
		contentType = "text/csv"
	case "jsonl":
		data, checksum, err = exports.ReportsJSONL(reports)
		contentType = "application/x-ndjson"
	case "parquet":
		var buf bytes.Buffer
		err = exports.ReportsParquet(&buf, reports)
		data = buf.Bytes()
		contentType = "application/vnd.apache.parquet"
	default:
		writeError(w, http.StatusBadRequest, "format must be csv, jsonl or parquet")
		return
	}
	if err != nil {
		s.logger.Error("export reports failed", "format", format, "error", err)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=rewards-reports."+format)
	if checksum != "" {
		w.Header().Set("X-Checksum-SHA256", checksum)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

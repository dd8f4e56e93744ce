package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"couponledger/core/epoch"
	"couponledger/core/fixedpoint"
	"couponledger/core/rewards"
	nativecommon "couponledger/native/common"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeBody reads a single JSON object, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid payload: %v", err))
		return false
	}
	return true
}

func parseAddress(field, value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, value)
	}
	return common.HexToAddress(value), nil
}

func parseAmount(field, value string) (*uint256.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(value)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid amount %q", field, value)
	}
	return v, nil
}

// statusFor maps ledger errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, nativecommon.ErrModulePaused),
		errors.Is(err, rewards.ErrSolvencyStale),
		errors.Is(err, rewards.ErrPriceStale):
		return http.StatusServiceUnavailable
	case errors.Is(err, rewards.ErrCustodyTransfer),
		errors.Is(err, rewards.ErrMintFailed),
		errors.Is(err, rewards.ErrPriceFeed):
		return http.StatusBadGateway
	case errors.Is(err, rewards.ErrPersist):
		return http.StatusInternalServerError
	case errors.Is(err, rewards.ErrInvalidParams),
		errors.Is(err, rewards.ErrZeroAddress),
		errors.Is(err, rewards.ErrEpochStarted),
		errors.Is(err, rewards.ErrZeroReward),
		errors.Is(err, rewards.ErrZeroPrice),
		errors.Is(err, rewards.ErrClaimBelowMinimum),
		errors.Is(err, rewards.ErrClaimAboveMaximum),
		errors.Is(err, epoch.ErrInvalidBounds),
		errors.Is(err, fixedpoint.ErrOverflow),
		errors.Is(err, fixedpoint.ErrInvalidDecimal):
		return http.StatusBadRequest
	case errors.Is(err, rewards.ErrNothingToClaim),
		errors.Is(err, rewards.ErrDepegGuard),
		errors.Is(err, rewards.ErrMintCeilingExceeded),
		errors.Is(err, rewards.ErrSolvencyHeadroom):
		return http.StatusUnprocessableEntity
	case errors.Is(err, rewards.ErrEpochNotConfigured),
		errors.Is(err, rewards.ErrDistributionTooEarly),
		errors.Is(err, rewards.ErrAlreadyDistributed),
		errors.Is(err, rewards.ErrInsufficientBalance),
		errors.Is(err, rewards.ErrBreakageSinkUnset),
		errors.Is(err, rewards.ErrTreasuryUnset),
		errors.Is(err, epoch.ErrPreviousNotDistributed),
		errors.Is(err, epoch.ErrOverlapsPrevious):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeLedgerError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

// reportResponse renders a distribution report with decimal strings.
type reportResponse struct {
	EpochID          uint64 `json:"epochId"`
	StartTime        uint64 `json:"startTime"`
	EndTime          uint64 `json:"endTime"`
	DistributionTime uint64 `json:"distributionTime"`
	Coupon           string `json:"coupon"`
	Skim             string `json:"skim"`
	ConversionPrice  string `json:"conversionPrice"`
	TotalReward      string `json:"totalReward"`
	DenominatorUnits string `json:"denominatorUnits"`
	SinkUnits        string `json:"sinkUnits"`
	DeltaIndex       string `json:"deltaIndex"`
	CumulativeIndex  string `json:"cumulativeIndex"`
	TokensAllocated  string `json:"tokensAllocated"`
	SinkMinted       string `json:"sinkMinted"`
	DustCarry        string `json:"dustCarry"`
	Digest           string `json:"digest"`
}

func newReportResponse(rep epoch.Report) (reportResponse, error) {
	digest, err := rep.Digest()
	if err != nil {
		return reportResponse{}, err
	}
	return reportResponse{
		EpochID:          rep.EpochID,
		StartTime:        rep.StartTime,
		EndTime:          rep.EndTime,
		DistributionTime: rep.DistributionTime,
		Coupon:           dec(rep.Coupon),
		Skim:             dec(rep.Skim),
		ConversionPrice:  rep.ConversionPrice.String(),
		TotalReward:      dec(rep.TotalReward),
		DenominatorUnits: dec(rep.DenominatorUnits),
		SinkUnits:        dec(rep.SinkUnits),
		DeltaIndex:       rep.DeltaIndex.String(),
		CumulativeIndex:  rep.CumulativeIndex.String(),
		TokensAllocated:  dec(rep.TokensAllocated),
		SinkMinted:       dec(rep.SinkMinted),
		DustCarry:        dec(rep.DustCarry),
		Digest:           digest,
	}, nil
}

func dec(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

package exports

import (
	"github.com/holiman/uint256"

	"couponledger/core/epoch"
)

// reportRow is the flat, string-encoded form shared by every export format.
// Amounts are base-10 integers; indices are scaled by 1e18.
type reportRow struct {
	Epoch            uint64 `json:"epoch" parquet:"name=epoch, type=INT64, convertedtype=UINT_64"`
	StartTime        uint64 `json:"startTime" parquet:"name=start_time, type=INT64, convertedtype=UINT_64"`
	EndTime          uint64 `json:"endTime" parquet:"name=end_time, type=INT64, convertedtype=UINT_64"`
	DistributionTime uint64 `json:"distributionTime" parquet:"name=distribution_time, type=INT64, convertedtype=UINT_64"`
	Coupon           string `json:"coupon" parquet:"name=coupon, type=BYTE_ARRAY, convertedtype=UTF8"`
	Skim             string `json:"skim" parquet:"name=skim, type=BYTE_ARRAY, convertedtype=UTF8"`
	ConversionPrice  string `json:"conversionPrice" parquet:"name=conversion_price, type=BYTE_ARRAY, convertedtype=UTF8"`
	TotalReward      string `json:"totalReward" parquet:"name=total_reward, type=BYTE_ARRAY, convertedtype=UTF8"`
	DenominatorUnits string `json:"denominatorUnits" parquet:"name=denominator_units, type=BYTE_ARRAY, convertedtype=UTF8"`
	SinkUnits        string `json:"sinkUnits" parquet:"name=sink_units, type=BYTE_ARRAY, convertedtype=UTF8"`
	DeltaIndex       string `json:"deltaIndex" parquet:"name=delta_index, type=BYTE_ARRAY, convertedtype=UTF8"`
	CumulativeIndex  string `json:"cumulativeIndex" parquet:"name=cumulative_index, type=BYTE_ARRAY, convertedtype=UTF8"`
	TokensAllocated  string `json:"tokensAllocated" parquet:"name=tokens_allocated, type=BYTE_ARRAY, convertedtype=UTF8"`
	SinkMinted       string `json:"sinkMinted" parquet:"name=sink_minted, type=BYTE_ARRAY, convertedtype=UTF8"`
	DustCarry        string `json:"dustCarry" parquet:"name=dust_carry, type=BYTE_ARRAY, convertedtype=UTF8"`
	Digest           string `json:"digest" parquet:"name=digest, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func newReportRow(rep epoch.Report) (reportRow, error) {
	digest, err := rep.Digest()
	if err != nil {
		return reportRow{}, err
	}
	return reportRow{
		Epoch:            rep.EpochID,
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

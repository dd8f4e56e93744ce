package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"strconv"

	"couponledger/core/epoch"
)

var reportHeader = []string{
	"epoch", "start_time", "end_time", "distribution_time",
	"coupon", "skim", "conversion_price", "total_reward",
	"denominator_units", "sink_units", "delta_index", "cumulative_index",
	"tokens_allocated", "sink_minted", "dust_carry", "digest",
}

// ReportsCSV builds a CSV export for the supplied epoch reports and returns the
// serialised data alongside a SHA-256 checksum of the payload.
func ReportsCSV(reports []epoch.Report) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	if err := writer.Write(reportHeader); err != nil {
		return nil, "", err
	}
	for _, rep := range reports {
		row, err := newReportRow(rep)
		if err != nil {
			return nil, "", err
		}
		record := []string{
			strconv.FormatUint(row.Epoch, 10),
			strconv.FormatUint(row.StartTime, 10),
			strconv.FormatUint(row.EndTime, 10),
			strconv.FormatUint(row.DistributionTime, 10),
			row.Coupon,
			row.Skim,
			row.ConversionPrice,
			row.TotalReward,
			row.DenominatorUnits,
			row.SinkUnits,
			row.DeltaIndex,
			row.CumulativeIndex,
			row.TokensAllocated,
			row.SinkMinted,
			row.DustCarry,
			row.Digest,
		}
		if err := writer.Write(record); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}

package epoch

import (
	"encoding/hex"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"lukechampine.com/blake3"

	"couponledger/core/fixedpoint"
)

// Report is the immutable record written when an epoch is distributed.
type Report struct {
	EpochID          uint64
	StartTime        uint64
	EndTime          uint64
	DistributionTime uint64

	Coupon          *uint256.Int
	Skim            *uint256.Int
	ConversionPrice fixedpoint.Scaled
	TotalReward     *uint256.Int

	DenominatorUnits *uint256.Int
	SinkUnits        *uint256.Int
	DeltaIndex       fixedpoint.Scaled
	CumulativeIndex  fixedpoint.Scaled
	TokensAllocated  *uint256.Int
	SinkMinted       *uint256.Int
	DustCarry        *uint256.Int
}

// AccrualEnd is the last timestamp at which holders earned units for this
// epoch: the distribution time, never later than the epoch end.
func (r Report) AccrualEnd() uint64 {
	if r.DistributionTime < r.EndTime {
		return r.DistributionTime
	}
	return r.EndTime
}

// Clone returns a deep copy of the report.
func (r Report) Clone() Report {
	out := r
	out.Coupon = fixedpoint.Copy(r.Coupon)
	out.Skim = fixedpoint.Copy(r.Skim)
	out.TotalReward = fixedpoint.Copy(r.TotalReward)
	out.DenominatorUnits = fixedpoint.Copy(r.DenominatorUnits)
	out.SinkUnits = fixedpoint.Copy(r.SinkUnits)
	out.TokensAllocated = fixedpoint.Copy(r.TokensAllocated)
	out.SinkMinted = fixedpoint.Copy(r.SinkMinted)
	out.DustCarry = fixedpoint.Copy(r.DustCarry)
	return out
}

// StoredReport is the canonical RLP form of a report.
type StoredReport struct {
	EpochID          uint64
	StartTime        uint64
	EndTime          uint64
	DistributionTime uint64
	Coupon           []byte
	Skim             []byte
	ConversionPrice  []byte
	TotalReward      []byte
	DenominatorUnits []byte
	SinkUnits        []byte
	DeltaIndex       []byte
	CumulativeIndex  []byte
	TokensAllocated  []byte
	SinkMinted       []byte
	DustCarry        []byte
}

// Stored converts the report into its canonical encoding form.
func (r Report) Stored() StoredReport {
	return StoredReport{
		EpochID:          r.EpochID,
		StartTime:        r.StartTime,
		EndTime:          r.EndTime,
		DistributionTime: r.DistributionTime,
		Coupon:           fixedpoint.Bytes(r.Coupon),
		Skim:             fixedpoint.Bytes(r.Skim),
		ConversionPrice:  fixedpoint.Bytes(r.ConversionPrice.Raw()),
		TotalReward:      fixedpoint.Bytes(r.TotalReward),
		DenominatorUnits: fixedpoint.Bytes(r.DenominatorUnits),
		SinkUnits:        fixedpoint.Bytes(r.SinkUnits),
		DeltaIndex:       fixedpoint.Bytes(r.DeltaIndex.Raw()),
		CumulativeIndex:  fixedpoint.Bytes(r.CumulativeIndex.Raw()),
		TokensAllocated:  fixedpoint.Bytes(r.TokensAllocated),
		SinkMinted:       fixedpoint.Bytes(r.SinkMinted),
		DustCarry:        fixedpoint.Bytes(r.DustCarry),
	}
}

// Report decodes the stored form.
func (s StoredReport) Report() (Report, error) {
	fields := [][]byte{s.Coupon, s.Skim, s.ConversionPrice, s.TotalReward, s.DenominatorUnits,
		s.SinkUnits, s.DeltaIndex, s.CumulativeIndex, s.TokensAllocated, s.SinkMinted, s.DustCarry}
	values := make([]*uint256.Int, len(fields))
	for i, raw := range fields {
		v, err := fixedpoint.FromBytes(raw)
		if err != nil {
			return Report{}, err
		}
		values[i] = v
	}
	return Report{
		EpochID:          s.EpochID,
		StartTime:        s.StartTime,
		EndTime:          s.EndTime,
		DistributionTime: s.DistributionTime,
		Coupon:           values[0],
		Skim:             values[1],
		ConversionPrice:  fixedpoint.NewScaled(values[2]),
		TotalReward:      values[3],
		DenominatorUnits: values[4],
		SinkUnits:        values[5],
		DeltaIndex:       fixedpoint.NewScaled(values[6]),
		CumulativeIndex:  fixedpoint.NewScaled(values[7]),
		TokensAllocated:  values[8],
		SinkMinted:       values[9],
		DustCarry:        values[10],
	}, nil
}

// Digest returns the BLAKE3 hash of the canonical RLP encoding, hex encoded.
func (r Report) Digest() (string, error) {
	encoded, err := rlp.EncodeToBytes(r.Stored())
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

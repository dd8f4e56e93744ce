package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"couponledger/core/epoch"
)

// ReportsJSONL builds a JSON Lines export for the supplied epoch reports and
// returns the serialised payload alongside a checksum.
func ReportsJSONL(reports []epoch.Report) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	for _, rep := range reports {
		row, err := newReportRow(rep)
		if err != nil {
			return nil, "", err
		}
		if err := encoder.Encode(row); err != nil {
			return nil, "", err
		}
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}

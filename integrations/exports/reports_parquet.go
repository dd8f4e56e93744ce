package exports

import (
	"fmt"
	"io"
	"os"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"couponledger/core/epoch"
)

// ReportsParquet streams the reports to w as a snappy-compressed parquet file.
func ReportsParquet(w io.Writer, reports []epoch.Report) error {
	fw := writerfile.NewWriterFile(w)
	pw, err := writer.NewParquetWriter(fw, new(reportRow), 1)
	if err != nil {
		return fmt.Errorf("exports: parquet schema: %w", err)
	}
	pw.RowGroupSize = 16 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, rep := range reports {
		row, err := newReportRow(rep)
		if err != nil {
			pw.WriteStop()
			return err
		}
		if err := pw.Write(&row); err != nil {
			pw.WriteStop()
			return fmt.Errorf("exports: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("exports: parquet flush: %w", err)
	}
	return nil
}

// WriteReportsParquet writes the reports to a parquet file at path.
func WriteReportsParquet(path string, reports []epoch.Report) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("exports: create parquet: %w", err)
	}
	if err := ReportsParquet(file, reports); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("exports: close parquet file: %w", err)
	}
	return nil
}

// Package export writes ledger positions as columnar snapshots for offline
// reconciliation.
package export

import (
	"fmt"
	"io"
	"os"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"lendledger/core/state"
	"lendledger/native/lending"
	"lendledger/storage"
)

type positionRow struct {
	Account        string `parquet:"name=account, type=BYTE_ARRAY, convertedtype=UTF8"`
	TokenAddress   string `parquet:"name=token_address, type=BYTE_ARRAY, convertedtype=UTF8"`
	Collateral     string `parquet:"name=collateral, type=BYTE_ARRAY, convertedtype=UTF8"`
	HasLoan        bool   `parquet:"name=has_loan, type=BOOLEAN"`
	AmountBorrowed string `parquet:"name=amount_borrowed, type=BYTE_ARRAY, convertedtype=UTF8"`
	InterestRate   string `parquet:"name=interest_rate, type=BYTE_ARRAY, convertedtype=UTF8"`
	LoanStartTime  int64  `parquet:"name=loan_start_time, type=INT64"`
	Interest       string `parquet:"name=interest, type=BYTE_ARRAY, convertedtype=UTF8"`
	TotalDue       string `parquet:"name=total_due, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func rowFor(pos *lending.Position) (*positionRow, error) {
	row := &positionRow{Account: pos.Account, Collateral: "0"}
	if pos.Collateral != nil {
		row.TokenAddress = pos.Collateral.TokenAddress
		row.Collateral = pos.Collateral.Amount.String()
	}
	if pos.Loan != nil {
		interest, err := pos.Loan.Interest()
		if err != nil {
			return nil, fmt.Errorf("export: interest for %s: %w", pos.Account, err)
		}
		total, err := pos.Loan.AmountBorrowed.Add(interest)
		if err != nil {
			return nil, fmt.Errorf("export: total due for %s: %w", pos.Account, err)
		}
		row.HasLoan = true
		row.AmountBorrowed = pos.Loan.AmountBorrowed.String()
		row.InterestRate = pos.Loan.InterestRate.String()
		row.LoanStartTime = int64(pos.Loan.LoanStartTime)
		row.Interest = interest.String()
		row.TotalDue = total.String()
	}
	return row, nil
}

// WritePositions streams every account position stored in db to out as a
// snappy-compressed parquet file and returns the number of rows written.
func WritePositions(db storage.Database, out io.Writer) (int, error) {
	pw, err := writer.NewParquetWriter(writerfile.NewWriterFile(out), new(positionRow), 1)
	if err != nil {
		return 0, fmt.Errorf("export: parquet schema: %w", err)
	}
	pw.RowGroupSize = 16 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	count := 0
	err = state.NewManager(db).LendingPositions(func(pos *lending.Position) error {
		row, err := rowFor(pos)
		if err != nil {
			return err
		}
		if err := pw.Write(row); err != nil {
			return fmt.Errorf("export: write row: %w", err)
		}
		count++
		return nil
	})
	if err != nil {
		_ = pw.WriteStop()
		return 0, err
	}
	if err := pw.WriteStop(); err != nil {
		return 0, fmt.Errorf("export: finalize parquet: %w", err)
	}
	return count, nil
}

// WriteFile exports positions to path, replacing any existing file.
func WriteFile(db storage.Database, path string) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("export: create parquet: %w", err)
	}
	count, err := WritePositions(db, file)
	if cerr := file.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("export: close parquet: %w", cerr)
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

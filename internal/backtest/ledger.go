package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"fvgbot/internal/models"
)

var ledgerHeader = []string{
	"entry_idx", "exit_idx", "entry_price", "exit_price",
	"size", "pnl", "equity", "reason", "cumulative_pnl",
}

type LedgerRow struct {
	models.Trade
	CumulativePnL float64 `json:"cumulative_pnl"`
}

func BuildLedger(trades []models.Trade) []LedgerRow {
	rows := make([]LedgerRow, len(trades))
	var cum float64
	for i, t := range trades {
		cum += t.PnL
		rows[i] = LedgerRow{Trade: t, CumulativePnL: cum}
	}
	return rows
}

func WriteLedgerCSV(w io.Writer, rows []LedgerRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ledgerHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			strconv.FormatInt(r.EntryIndex, 10),
			strconv.FormatInt(r.ExitIndex, 10),
			ftoa(r.EntryPrice),
			ftoa(r.ExitPrice),
			ftoa(r.Size),
			ftoa(r.PnL),
			ftoa(r.EquityAfter),
			string(r.Reason),
			ftoa(r.CumulativePnL),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func SaveLedger(path string, rows []LedgerRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("не удалось создать %s: %w", path, err)
	}
	if err := WriteLedgerCSV(f, rows); err != nil {
		f.Close()
		return fmt.Errorf("не удалось записать %s: %w", path, err)
	}
	return f.Close()
}

func ftoa(x float64) string { return strconv.FormatFloat(x, 'f', -1, 64) }

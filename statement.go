package contago

import (
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"
)

const stmtTimeLayout = time.RFC3339

func writeStatementPDF(w io.Writer, acct *Account, entries iter.Seq[LedgerEntry], balance decimal.Decimal) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, "Account statement", "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Branch: %s", acct.Branch()), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Account: %d", acct.Number()), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Holder: %s", acct.Owner().Name), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(70, 7, "Time", "B", 0, "L", false, 0, "")
	pdf.CellFormat(40, 7, "Kind", "B", 0, "L", false, 0, "")
	pdf.CellFormat(40, 7, "Amount", "B", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	var n int
	for e := range entries {
		n++
		pdf.CellFormat(70, 7, e.Time.Format(stmtTimeLayout), "", 0, "L", false, 0, "")
		pdf.CellFormat(40, 7, string(e.Kind), "", 0, "L", false, 0, "")
		pdf.CellFormat(40, 7, e.Amount.StringFixed(2), "", 1, "R", false, 0, "")
	}
	if n == 0 {
		pdf.CellFormat(0, 7, "No transactions recorded.", "", 1, "L", false, 0, "")
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(0, 7, fmt.Sprintf("Balance: %s", balance.StringFixed(2)), "", 1, "R", false, 0, "")

	return pdf.Output(w)
}

func writeStatementText(w io.Writer, acct *Account, entries iter.Seq[LedgerEntry], balance decimal.Decimal) error {
	if _, err := fmt.Fprintf(w, "branch %s account %d holder %s\n",
		acct.Branch(), acct.Number(), acct.Owner().Name); err != nil {
		return err
	}
	var n int
	for e := range entries {
		n++
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n",
			e.Time.Format(stmtTimeLayout), e.Kind, e.Amount.StringFixed(2)); err != nil {
			return err
		}
	}
	if n == 0 {
		if _, err := fmt.Fprintln(w, "no transactions recorded"); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "balance\t%s\n", balance.StringFixed(2))
	return err
}

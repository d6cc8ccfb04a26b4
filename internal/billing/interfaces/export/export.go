package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	billing "prepaid-billing/internal/billing/domain"
	"prepaid-billing/internal/htbill"
)

// BuildInvoicePDF renders an invoice with its daily consumption sheet.
func BuildInvoicePDF(inv billing.Invoice, records []billing.ConsumptionRecord, currency string) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Prepaid Energy Invoice")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Invoice: %s", inv.ID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Account: %s", inv.AccountID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Period: %s", inv.BillingPeriod))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Sync status: %s", inv.SyncStatus))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", inv.CreatedAt.Format(time.RFC3339)))
	pdf.Ln(8)

	summary := []struct {
		label string
		value string
	}{
		{"Units (kWh)", inv.TotalUnits.StringFixed(3)},
		{"Subsidy units (kWh)", inv.TotalSubsidyUnits.StringFixed(3)},
		{fmt.Sprintf("Energy charge (%s)", currency), inv.TotalEnergyCharge.StringFixed(2)},
		{fmt.Sprintf("Fixed charge (%s)", currency), inv.TotalFixedCharge.StringFixed(2)},
		{fmt.Sprintf("Subsidy (%s)", currency), inv.TotalSubsidy.StringFixed(2)},
		{fmt.Sprintf("Total (%s)", currency), inv.TotalAmount.StringFixed(2)},
		{fmt.Sprintf("Opening balance (%s)", currency), inv.OpeningBalance.StringFixed(2)},
		{fmt.Sprintf("Closing balance (%s)", currency), inv.ClosingBalance.StringFixed(2)},
	}
	for _, row := range summary {
		pdf.CellFormat(70, 6, row.label, "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, row.value, "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 9)
	for _, head := range []string{"Day", "kWh", "Energy", "Fixed", "Deduction", "Balance"} {
		pdf.CellFormat(30, 6, head, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, rec := range records {
		pdf.CellFormat(30, 6, rec.BillingDate.Format("2006-01-02"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, rec.KWhConsumed.StringFixed(3), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, rec.EnergyCharge.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, rec.FixedCharge.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, rec.TotalDeduction.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, rec.BalanceAfter.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildInvoiceXLSX renders an invoice summary sheet and a daily records sheet.
func BuildInvoiceXLSX(inv billing.Invoice, records []billing.ConsumptionRecord, currency string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	recordsSheet := "daily"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(recordsSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Prepaid Energy Invoice")
	summary := [][2]any{
		{"Invoice", inv.ID},
		{"Account", inv.AccountID},
		{"Period", inv.BillingPeriod.String()},
		{"Currency", currency},
		{"Units (kWh)", inv.TotalUnits.InexactFloat64()},
		{"Subsidy units (kWh)", inv.TotalSubsidyUnits.InexactFloat64()},
		{"Energy charge", inv.TotalEnergyCharge.InexactFloat64()},
		{"Fixed charge", inv.TotalFixedCharge.InexactFloat64()},
		{"Subsidy", inv.TotalSubsidy.InexactFloat64()},
		{"Total", inv.TotalAmount.InexactFloat64()},
		{"Opening balance", inv.OpeningBalance.InexactFloat64()},
		{"Closing balance", inv.ClosingBalance.InexactFloat64()},
		{"Sync status", string(inv.SyncStatus)},
	}
	for i, row := range summary {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+3), row[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+3), row[1])
	}

	for i, head := range []string{"Day", "kWh", "Subsidy kWh", "Energy", "Fixed", "Deduction", "Balance before", "Balance after"} {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(recordsSheet, cell, head)
	}
	for i, rec := range records {
		row := i + 2
		_ = f.SetCellValue(recordsSheet, fmt.Sprintf("A%d", row), rec.BillingDate.Format("2006-01-02"))
		_ = f.SetCellValue(recordsSheet, fmt.Sprintf("B%d", row), rec.KWhConsumed.InexactFloat64())
		_ = f.SetCellValue(recordsSheet, fmt.Sprintf("C%d", row), rec.SubsidyUnitsApplied.InexactFloat64())
		_ = f.SetCellValue(recordsSheet, fmt.Sprintf("D%d", row), rec.EnergyCharge.InexactFloat64())
		_ = f.SetCellValue(recordsSheet, fmt.Sprintf("E%d", row), rec.FixedCharge.InexactFloat64())
		_ = f.SetCellValue(recordsSheet, fmt.Sprintf("F%d", row), rec.TotalDeduction.InexactFloat64())
		_ = f.SetCellValue(recordsSheet, fmt.Sprintf("G%d", row), rec.BalanceBefore.InexactFloat64())
		_ = f.SetCellValue(recordsSheet, fmt.Sprintf("H%d", row), rec.BalanceAfter.InexactFloat64())
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildHTBillPDF renders the HT line items.
func BuildHTBillPDF(bill htbill.Bill) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()
	pdf.Cell(0, 8, "HT Bill")
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(80, 6, "Head", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Amount", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	for i, item := range bill.Items {
		style := ""
		if i == len(bill.Items)-1 {
			style = "B"
		}
		pdf.SetFont("Arial", style, 10)
		pdf.CellFormat(80, 6, item.Label, "1", 0, "L", false, 0, "")
		pdf.CellFormat(50, 6, item.Amount.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildHTBillXLSX renders the HT line items on one sheet.
func BuildHTBillXLSX(bill htbill.Bill) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := "ht_bill"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	_ = f.SetCellValue(sheet, "A1", "Head")
	_ = f.SetCellValue(sheet, "B1", "Amount")
	for i, item := range bill.Items {
		row := i + 2
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), item.Label)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), item.Amount.InexactFloat64())
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

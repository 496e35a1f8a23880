package models

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/heraerp/universal_backend/utils"
	"github.com/xuri/excelize/v2"
)

// ExportTransactionsExcel writes the filtered transaction list as an xlsx
// workbook to w. The caller owns content-type and disposition headers.
func ExportTransactionsExcel(ctx context.Context, organizationId string, actorUserId int, filter TransactionFilter, w io.Writer) error {
	txns, err := QueryTransactions(ctx, organizationId, actorUserId, filter)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	sheet := "Sheet1"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	f.SetCellValue(sheet, "A1", "TransactionCode")
	f.SetCellValue(sheet, "B1", "Type")
	f.SetCellValue(sheet, "C1", "Date")
	f.SetCellValue(sheet, "D1", "Status")
	f.SetCellValue(sheet, "E1", "SmartCode")
	f.SetCellValue(sheet, "F1", "TotalAmount")
	f.SetCellValue(sheet, "G1", "VoidReason")

	for i, txn := range txns {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(sheet, "A"+row, txn.TransactionCode)
		f.SetCellValue(sheet, "B"+row, txn.TransactionType)
		f.SetCellValue(sheet, "C"+row, txn.TransactionDate.Format(time.DateOnly))
		f.SetCellValue(sheet, "D"+row, string(txn.TransactionStatus))
		f.SetCellValue(sheet, "E"+row, txn.SmartCode)
		f.SetCellValue(sheet, "F"+row, txn.TotalAmount.InexactFloat64())
		f.SetCellValue(sheet, "G"+row, utils.DereferencePtr(txn.VoidReason, ""))
	}

	return f.Write(w)
}

// ExportEntitiesExcel writes the filtered entity list as an xlsx workbook.
func ExportEntitiesExcel(ctx context.Context, organizationId string, actorUserId int, filter EntityFilter, w io.Writer) error {
	entities, err := QueryEntities(ctx, organizationId, actorUserId, filter)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	sheet := "Sheet1"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	f.SetCellValue(sheet, "A1", "EntityType")
	f.SetCellValue(sheet, "B1", "EntityName")
	f.SetCellValue(sheet, "C1", "EntityCode")
	f.SetCellValue(sheet, "D1", "SmartCode")
	f.SetCellValue(sheet, "E1", "Status")

	for i, e := range entities {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(sheet, "A"+row, e.EntityType)
		f.SetCellValue(sheet, "B"+row, e.EntityName)
		f.SetCellValue(sheet, "C"+row, utils.DereferencePtr(e.EntityCode, ""))
		f.SetCellValue(sheet, "D"+row, e.SmartCode)
		f.SetCellValue(sheet, "E"+row, string(e.Status))
	}

	return f.Write(w)
}

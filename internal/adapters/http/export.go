package httpadapter

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/andretaki/simurgh-sub002/internal/core/domain"
)

// exportListLimit matches the listing ceiling so an unqualified export
// returns the same population a fully-paged listing would.
const exportListLimit = 200

var exportHeader = []any{
	"Identifier",
	"Status",
	"Status Label",
	"Solicitation Number",
	"Order Number",
	"Due Date",
	"Received At",
	"Quote Status",
	"Fulfillment Status",
	"Linked Orders",
}

func writeWorkflowExport(w io.Writer, records []domain.WorkflowRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Workflows"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("drop default sheet: %w", err)
	}

	if err := f.SetSheetRow(sheet, "A1", &exportHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("cell name for row %d: %w", i+2, err)
		}
		row := exportRow(rec)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func exportRow(rec domain.WorkflowRecord) []any {
	var (
		identifier         string
		solicitationNumber string
		orderNumber        string
		dueDate            string
		receivedAt         string
		quoteStatus        string
		fulfillment        string
	)

	if rec.Solicitation != nil {
		solicitationNumber = rec.Solicitation.SolicitationNumber
		identifier = firstNonEmpty(solicitationNumber, rec.Solicitation.ID)
		receivedAt = rec.Solicitation.ReceivedAt.UTC().Format(time.RFC3339)
		if rec.Solicitation.DueDate != nil {
			dueDate = rec.Solicitation.DueDate.UTC().Format("2006-01-02")
		}
	}
	if rec.PrimaryOrder != nil {
		orderNumber = rec.PrimaryOrder.OrderNumber
		fulfillment = string(rec.PrimaryOrder.FulfillmentStatus)
		if identifier == "" {
			identifier = firstNonEmpty(orderNumber, rec.PrimaryOrder.ID)
		}
		if receivedAt == "" {
			receivedAt = rec.PrimaryOrder.ReceivedAt.UTC().Format(time.RFC3339)
		}
	}
	if rec.Quote != nil {
		quoteStatus = string(rec.Quote.Status)
		if rec.Quote.NoBid {
			quoteStatus = "no_bid"
		}
	}

	return []any{
		identifier,
		string(rec.Status),
		rec.StatusLabel,
		solicitationNumber,
		orderNumber,
		dueDate,
		receivedAt,
		quoteStatus,
		fulfillment,
		len(rec.LinkedOrders),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

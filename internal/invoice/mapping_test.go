package invoice

import (
	"strings"
	"testing"
	"time"

	"github.com/eGGnogSC/qbsync/internal/database/models"
	"github.com/eGGnogSC/qbsync/pkg/qbclient"
	"github.com/shopspring/decimal"
)

func TestInvoicePayload(t *testing.T) {
	due := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	inv := &models.Invoice{
		InvoiceNumber: "INV-2024-000000000000001234",
		IssueDate:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		DueDate:       &due,
		Notes:         strings.Repeat("n", 5000),
		LineItems: []models.InvoiceLineItem{
			{Description: "Design", Quantity: decimal.RequireFromString("2.5"), Rate: decimal.RequireFromString("80")},
			{Description: "Hosting", Quantity: decimal.NewFromInt(1), Rate: decimal.RequireFromString("19.99")},
		},
	}

	p := invoicePayload(inv, "42", qbclient.Ref{Value: "1", Name: "Services"})

	if len(p.DocNumber) != maxDocNumber {
		t.Errorf("DocNumber length = %d", len(p.DocNumber))
	}
	if len(p.PrivateNote) != maxPrivateNote {
		t.Errorf("PrivateNote length = %d", len(p.PrivateNote))
	}
	if p.TxnDate != "2024-03-01" || p.DueDate != "2024-04-01" {
		t.Errorf("dates = %q, %q", p.TxnDate, p.DueDate)
	}
	if p.CustomerRef.Value != "42" {
		t.Errorf("CustomerRef = %+v", p.CustomerRef)
	}
	if len(p.Line) != 2 {
		t.Fatalf("got %d lines", len(p.Line))
	}
	first := p.Line[0]
	if first.Amount != 200 || first.LineNum != 1 || first.DetailType != qbclient.SalesItemLineDetail {
		t.Errorf("unexpected first line: %+v", first)
	}
	if d := first.SalesItemLineDetail; d.Qty != 2.5 || d.UnitPrice != 80 || d.ItemRef.Value != "1" {
		t.Errorf("unexpected detail: %+v", d)
	}
	if p.Line[1].Amount != 19.99 {
		t.Errorf("second line amount = %v", p.Line[1].Amount)
	}
}

func TestInvoicePayloadWithoutDueDate(t *testing.T) {
	p := invoicePayload(&models.Invoice{IssueDate: time.Now()}, "1", qbclient.Ref{Value: "1"})
	if p.DueDate != "" {
		t.Errorf("DueDate = %q, want empty", p.DueDate)
	}
	if p.Line == nil {
		t.Error("Line should be an empty slice")
	}
}

package invoice

import (
	"github.com/eGGnogSC/qbsync/internal/database/models"
	"github.com/eGGnogSC/qbsync/pkg/qbclient"
)

// QuickBooks field limits
const (
	maxDocNumber   = 21
	maxPrivateNote = 4000
)

const dateLayout = "2006-01-02"

func invoicePayload(inv *models.Invoice, customerID string, item qbclient.Ref) qbclient.Invoice {
	lines := make([]qbclient.Line, 0, len(inv.LineItems))
	for i, li := range inv.LineItems {
		lines = append(lines, qbclient.Line{
			LineNum:     i + 1,
			Description: li.Description,
			Amount:      li.Quantity.Mul(li.Rate).Round(2).InexactFloat64(),
			DetailType:  qbclient.SalesItemLineDetail,
			SalesItemLineDetail: &qbclient.SalesItemDetail{
				ItemRef:   &item,
				Qty:       li.Quantity.InexactFloat64(),
				UnitPrice: li.Rate.InexactFloat64(),
			},
		})
	}

	payload := qbclient.Invoice{
		DocNumber:   qbclient.Truncate(inv.InvoiceNumber, maxDocNumber),
		TxnDate:     inv.IssueDate.Format(dateLayout),
		CustomerRef: &qbclient.Ref{Value: customerID},
		Line:        lines,
		PrivateNote: qbclient.Truncate(inv.Notes, maxPrivateNote),
	}
	if inv.DueDate != nil {
		payload.DueDate = inv.DueDate.Format(dateLayout)
	}
	return payload
}

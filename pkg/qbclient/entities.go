// qbclient/entities.go
package qbclient

// Entity names as used in QuickBooks paths and envelopes
const (
	EntityCustomer = "Customer"
	EntityInvoice  = "Invoice"
	EntityPayment  = "Payment"
)

// Line detail types
const (
	SalesItemLineDetail = "SalesItemLineDetail"
)

// Ref points at another QuickBooks object
type Ref struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
}

// EmailAddress is the PrimaryEmailAddr object
type EmailAddress struct {
	Address string `json:"Address,omitempty"`
}

// TelephoneNumber is the PrimaryPhone object
type TelephoneNumber struct {
	FreeFormNumber string `json:"FreeFormNumber,omitempty"`
}

// PhysicalAddress is a billing or shipping address
type PhysicalAddress struct {
	Line1                  string `json:"Line1,omitempty"`
	City                   string `json:"City,omitempty"`
	CountrySubDivisionCode string `json:"CountrySubDivisionCode,omitempty"`
	PostalCode             string `json:"PostalCode,omitempty"`
	Country                string `json:"Country,omitempty"`
}

// MetaData carries the server-side timestamps of an entity
type MetaData struct {
	CreateTime      string `json:"CreateTime,omitempty"`
	LastUpdatedTime string `json:"LastUpdatedTime,omitempty"`
}

// Customer is the QuickBooks customer object
type Customer struct {
	ID               string           `json:"Id,omitempty"`
	SyncToken        string           `json:"SyncToken,omitempty"`
	Sparse           bool             `json:"sparse,omitempty"`
	DisplayName      string           `json:"DisplayName,omitempty"`
	CompanyName      string           `json:"CompanyName,omitempty"`
	PrimaryEmailAddr *EmailAddress    `json:"PrimaryEmailAddr,omitempty"`
	PrimaryPhone     *TelephoneNumber `json:"PrimaryPhone,omitempty"`
	BillAddr         *PhysicalAddress `json:"BillAddr,omitempty"`
	Active           *bool            `json:"Active,omitempty"`
	MetaData         *MetaData        `json:"MetaData,omitempty"`
}

// SalesItemDetail carries the item, quantity and price of a sales line
type SalesItemDetail struct {
	ItemRef   *Ref    `json:"ItemRef,omitempty"`
	Qty       float64 `json:"Qty,omitempty"`
	UnitPrice float64 `json:"UnitPrice,omitempty"`
}

// LinkedTxn references another transaction, such as the invoice a payment settles
type LinkedTxn struct {
	TxnID   string `json:"TxnId"`
	TxnType string `json:"TxnType"`
}

// Line is a transaction line on an invoice or payment
type Line struct {
	ID                  string           `json:"Id,omitempty"`
	LineNum             int              `json:"LineNum,omitempty"`
	Description         string           `json:"Description,omitempty"`
	Amount              float64          `json:"Amount"`
	DetailType          string           `json:"DetailType,omitempty"`
	SalesItemLineDetail *SalesItemDetail `json:"SalesItemLineDetail,omitempty"`
	LinkedTxn           []LinkedTxn      `json:"LinkedTxn,omitempty"`
}

// Invoice is the QuickBooks invoice object
type Invoice struct {
	ID          string    `json:"Id,omitempty"`
	SyncToken   string    `json:"SyncToken,omitempty"`
	Sparse      bool      `json:"sparse,omitempty"`
	DocNumber   string    `json:"DocNumber,omitempty"`
	TxnDate     string    `json:"TxnDate,omitempty"`
	DueDate     string    `json:"DueDate,omitempty"`
	CustomerRef *Ref      `json:"CustomerRef,omitempty"`
	Line        []Line    `json:"Line,omitempty"`
	PrivateNote string    `json:"PrivateNote,omitempty"`
	TotalAmt    float64   `json:"TotalAmt,omitempty"`
	Balance     float64   `json:"Balance,omitempty"`
	MetaData    *MetaData `json:"MetaData,omitempty"`
}

// Payment is the QuickBooks received-payment object
type Payment struct {
	ID          string    `json:"Id,omitempty"`
	SyncToken   string    `json:"SyncToken,omitempty"`
	CustomerRef *Ref      `json:"CustomerRef,omitempty"`
	TotalAmt    float64   `json:"TotalAmt"`
	TxnDate     string    `json:"TxnDate,omitempty"`
	PrivateNote string    `json:"PrivateNote,omitempty"`
	Line        []Line    `json:"Line,omitempty"`
	MetaData    *MetaData `json:"MetaData,omitempty"`
}

// LinkedInvoice returns the first invoice this payment is applied to and the amount
// applied to it. ok is false when the payment is not linked to any invoice.
func (p *Payment) LinkedInvoice() (invoiceID string, amount float64, ok bool) {
	for _, line := range p.Line {
		for _, txn := range line.LinkedTxn {
			if txn.TxnType == EntityInvoice && txn.TxnID != "" {
				amt := line.Amount
				if amt == 0 {
					amt = p.TotalAmt
				}
				return txn.TxnID, amt, true
			}
		}
	}
	return "", 0, false
}

// Truncate cuts s to at most n characters to fit a QuickBooks field limit
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

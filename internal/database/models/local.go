package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice statuses
const (
	InvoiceStatusDraft    = "draft"
	InvoiceStatusSent     = "sent"
	InvoiceStatusViewed   = "viewed"
	InvoiceStatusPaid     = "paid"
	InvoiceStatusOverdue  = "overdue"
	InvoiceStatusCanceled = "canceled"
)

// Payment methods and statuses
const (
	PaymentMethodStripe       = "stripe"
	PaymentMethodManual       = "manual"
	PaymentMethodCrypto       = "crypto"
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodCheck        = "check"
	PaymentMethodCash         = "cash"

	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

// Client is a customer of the invoicing user
type Client struct {
	ID          uint   `gorm:"primaryKey"`
	UserID      uint   `gorm:"index;not null"`
	Name        string `gorm:"size:255"`
	CompanyName string `gorm:"size:255"`
	Email       string `gorm:"size:320"`
	Phone       string `gorm:"size:64"`
	Address     string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Invoice is a bill issued to a client
type Invoice struct {
	ID            uint    `gorm:"primaryKey"`
	UserID        uint    `gorm:"index;not null"`
	ClientID      *uint   `gorm:"index"`
	Client        *Client `gorm:"constraint:OnDelete:SET NULL"`
	InvoiceNumber string  `gorm:"size:64"`
	Status        string  `gorm:"size:20;index"`
	IssueDate     time.Time
	DueDate       *time.Time
	Notes         string          `gorm:"type:text"`
	Currency      string          `gorm:"size:3"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(12,2)"`
	Total         decimal.Decimal `gorm:"type:decimal(12,2)"`
	AmountPaid    decimal.Decimal `gorm:"type:decimal(12,2)"`
	PaidAt        *time.Time

	LineItems []InvoiceLineItem `gorm:"constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// InvoiceLineItem is one billed line on an invoice
type InvoiceLineItem struct {
	ID          uint            `gorm:"primaryKey"`
	InvoiceID   uint            `gorm:"index;not null"`
	Description string          `gorm:"type:text"`
	Quantity    decimal.Decimal `gorm:"type:decimal(12,4)"`
	Rate        decimal.Decimal `gorm:"type:decimal(12,2)"`
	Amount      decimal.Decimal `gorm:"type:decimal(12,2)"`
	SortOrder   int
}

// Payment is money received against an invoice
type Payment struct {
	ID            uint            `gorm:"primaryKey"`
	UserID        uint            `gorm:"index;not null"`
	InvoiceID     uint            `gorm:"index;not null"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2)"`
	Currency      string          `gorm:"size:3"`
	PaymentMethod string          `gorm:"size:20"`
	PaymentDate   time.Time
	Status        string `gorm:"size:20"`
	Notes         string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

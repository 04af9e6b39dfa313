package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Entity types recorded in mappings and the sync log
const (
	EntityCustomer = "customer"
	EntityInvoice  = "invoice"
	EntityPayment  = "payment"
)

// Sync log actions and outcomes
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"

	SyncStatusSuccess = "success"
	SyncStatusFailed  = "failed"
	SyncStatusPending = "pending"
)

// Payment sync directions
const (
	DirectionToQB   = "to_qb"
	DirectionFromQB = "from_qb"
)

// QuickBooksConnection is one user's authorized link to a QuickBooks company
type QuickBooksConnection struct {
	ID                    uint   `gorm:"primaryKey"`
	UserID                uint   `gorm:"uniqueIndex;not null"`
	RealmID               string `gorm:"column:realm_id;size:64;not null"`
	AccessToken           string `gorm:"type:text"`
	RefreshToken          string `gorm:"type:text"`
	AccessTokenExpiresAt  time.Time
	RefreshTokenExpiresAt time.Time
	Environment           string `gorm:"size:20"`
	IsActive              bool   `gorm:"index"`
	LastSyncAt            *time.Time

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (QuickBooksConnection) TableName() string { return "quickbooks_connections" }

// CustomerMapping links a local client to its QuickBooks customer
type CustomerMapping struct {
	ID            uint      `gorm:"primaryKey"`
	UserID        uint      `gorm:"uniqueIndex:idx_qb_customer_user_client;not null"`
	ClientID      uint      `gorm:"uniqueIndex:idx_qb_customer_user_client;not null"`
	QBCustomerID  string    `gorm:"column:qb_customer_id;size:64;index;not null"`
	QBDisplayName string    `gorm:"column:qb_display_name;size:100"`
	SyncVersion   int       `gorm:"not null"`
	LastSyncedAt  time.Time `gorm:"not null"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (CustomerMapping) TableName() string { return "quickbooks_customer_mappings" }

// InvoiceMapping links a local invoice to its QuickBooks invoice
type InvoiceMapping struct {
	ID           uint      `gorm:"primaryKey"`
	UserID       uint      `gorm:"uniqueIndex:idx_qb_invoice_user_invoice;index:idx_qb_invoice_user_qbid;not null"`
	InvoiceID    uint      `gorm:"uniqueIndex:idx_qb_invoice_user_invoice;not null"`
	QBInvoiceID  string    `gorm:"column:qb_invoice_id;size:64;index:idx_qb_invoice_user_qbid;not null"`
	QBDocNumber  string    `gorm:"column:qb_doc_number;size:21"`
	SyncVersion  int       `gorm:"not null"`
	LastSyncedAt time.Time `gorm:"not null"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (InvoiceMapping) TableName() string { return "quickbooks_invoice_mappings" }

// PaymentMapping links a local payment to a QuickBooks payment in either direction
type PaymentMapping struct {
	ID            uint      `gorm:"primaryKey"`
	UserID        uint      `gorm:"uniqueIndex:idx_qb_payment_user_payment;uniqueIndex:idx_qb_payment_user_qbid;not null"`
	PaymentID     uint      `gorm:"uniqueIndex:idx_qb_payment_user_payment;not null"`
	QBPaymentID   string    `gorm:"column:qb_payment_id;size:64;uniqueIndex:idx_qb_payment_user_qbid;not null"`
	SyncDirection string    `gorm:"size:10;not null"`
	LastSyncedAt  time.Time `gorm:"not null"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (PaymentMapping) TableName() string { return "quickbooks_payment_mappings" }

// SyncLog is an append-only record of one sync attempt
type SyncLog struct {
	ID              uint           `gorm:"primaryKey"`
	UserID          uint           `gorm:"index:idx_qb_sync_log_user_created;not null"`
	EntityType      string         `gorm:"size:20;index"`
	EntityID        uint           `gorm:"index"`
	QBEntityID      *string        `gorm:"column:qb_entity_id;size:64"`
	Action          string         `gorm:"size:10"`
	Status          string         `gorm:"size:10;index"`
	ErrorMessage    *string        `gorm:"type:text"`
	RequestPayload  datatypes.JSON `gorm:"type:json"`
	ResponsePayload datatypes.JSON `gorm:"type:json"`

	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_qb_sync_log_user_created"`
}

func (SyncLog) TableName() string { return "quickbooks_sync_logs" }

// SyncSettings are one user's sync preferences
type SyncSettings struct {
	ID                  uint `gorm:"primaryKey"`
	UserID              uint `gorm:"uniqueIndex;not null"`
	AutoSyncInvoices    bool
	AutoSyncPayments    bool
	SyncPaymentsFromQB  bool            `gorm:"column:sync_payments_from_qb"`
	MinInvoiceAmount    decimal.Decimal `gorm:"type:decimal(12,2)"`
	SyncDraftInvoices   bool
	LastPaymentPollAt   *time.Time
	PollIntervalMinutes int

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (SyncSettings) TableName() string { return "quickbooks_sync_settings" }

// DefaultSyncSettings returns the settings a user gets before saving any
func DefaultSyncSettings(userID uint) SyncSettings {
	return SyncSettings{
		UserID:              userID,
		AutoSyncInvoices:    true,
		AutoSyncPayments:    true,
		SyncPaymentsFromQB:  true,
		MinInvoiceAmount:    decimal.Zero,
		SyncDraftInvoices:   false,
		PollIntervalMinutes: 15,
	}
}

// All lists every model for migration
func All() []any {
	return []any{
		&Client{},
		&Invoice{},
		&InvoiceLineItem{},
		&Payment{},
		&QuickBooksConnection{},
		&CustomerMapping{},
		&InvoiceMapping{},
		&PaymentMapping{},
		&SyncLog{},
		&SyncSettings{},
	}
}

package customer

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/eGGnogSC/qbsync/internal/database/models"
)

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name   string
		client models.Client
		want   string
	}{
		{"company wins", models.Client{ID: 3, Name: "Jane Doe", CompanyName: "Acme Ltd"}, "Acme Ltd"},
		{"personal name", models.Client{ID: 3, Name: "Jane Doe"}, "Jane Doe"},
		{"blank company ignored", models.Client{ID: 3, Name: "Jane Doe", CompanyName: "   "}, "Jane Doe"},
		{"placeholder", models.Client{ID: 7}, "Client 7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DisplayName(&tt.client); got != tt.want {
				t.Errorf("DisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDisplayNameTruncatesByCharacter(t *testing.T) {
	name := strings.Repeat("é", 150)
	got := DisplayName(&models.Client{CompanyName: name})
	if n := utf8.RuneCountInString(got); n != maxDisplayName {
		t.Errorf("got %d characters, want %d", n, maxDisplayName)
	}
	if !utf8.ValidString(got) {
		t.Error("truncation split a character")
	}
}

func TestCustomerPayload(t *testing.T) {
	p := customerPayload(&models.Client{
		ID:      1,
		Name:    "Jane Doe",
		Email:   "jane@example.test",
		Phone:   "555-0100",
		Address: "\n12 Main Street\nSpringfield",
	})
	if p.PrimaryEmailAddr == nil || p.PrimaryEmailAddr.Address != "jane@example.test" {
		t.Errorf("email = %+v", p.PrimaryEmailAddr)
	}
	if p.PrimaryPhone == nil || p.PrimaryPhone.FreeFormNumber != "555-0100" {
		t.Errorf("phone = %+v", p.PrimaryPhone)
	}
	if p.BillAddr == nil || p.BillAddr.Line1 != "12 Main Street" {
		t.Errorf("address = %+v", p.BillAddr)
	}

	empty := customerPayload(&models.Client{ID: 2, Name: "Bare"})
	if empty.PrimaryEmailAddr != nil || empty.PrimaryPhone != nil || empty.BillAddr != nil {
		t.Errorf("empty fields should be omitted: %+v", empty)
	}
}

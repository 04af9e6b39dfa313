package customer

import (
	"fmt"
	"strings"

	"github.com/eGGnogSC/qbsync/internal/database/models"
	"github.com/eGGnogSC/qbsync/pkg/qbclient"
)

// QuickBooks field limits
const (
	maxDisplayName = 100
	maxAddressLine = 500
)

// DisplayName is the name a client carries in QuickBooks: company name, then
// personal name, then a placeholder built from the local id.
func DisplayName(c *models.Client) string {
	name := strings.TrimSpace(c.CompanyName)
	if name == "" {
		name = strings.TrimSpace(c.Name)
	}
	if name == "" {
		name = fmt.Sprintf("Client %d", c.ID)
	}
	return qbclient.Truncate(name, maxDisplayName)
}

func customerPayload(c *models.Client) qbclient.Customer {
	payload := qbclient.Customer{
		DisplayName: DisplayName(c),
		CompanyName: qbclient.Truncate(strings.TrimSpace(c.CompanyName), maxDisplayName),
	}
	if email := strings.TrimSpace(c.Email); email != "" {
		payload.PrimaryEmailAddr = &qbclient.EmailAddress{Address: email}
	}
	if phone := strings.TrimSpace(c.Phone); phone != "" {
		payload.PrimaryPhone = &qbclient.TelephoneNumber{FreeFormNumber: phone}
	}
	if line := firstLine(c.Address); line != "" {
		payload.BillAddr = &qbclient.PhysicalAddress{Line1: qbclient.Truncate(line, maxAddressLine)}
	}
	return payload
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SiteSettings is the singleton site configuration. ContactEmail doubles as the admin
// identity: the member with this email resolves to the admin role.
type SiteSettings struct {
	SiteName        string
	ContactEmail    string
	ContactPhone    string
	ContactAddress  string
	MembershipFee   decimal.Decimal
	MaintenanceMode bool

	UpdatedAt time.Time
}

// DefaultSiteSettings mirrors the values a fresh installation starts with.
func DefaultSiteSettings() SiteSettings {
	return SiteSettings{
		SiteName:       "Digital Media Association",
		ContactEmail:   "contact@dma.org",
		ContactPhone:   "(555) 123-4567",
		ContactAddress: "123 Digital Avenue, Tech City, 10101",
		MembershipFee:  decimal.NewFromInt(150),
	}
}

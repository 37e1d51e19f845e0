package model

import (
	"strings"
	"time"
)

const (
	// DefaultBrandingName is shown when branding carries neither a CRM nor a business name.
	DefaultBrandingName = "YachtCRM"
	// DefaultBusinessName heads the business identity block when no name is configured.
	DefaultBusinessName = "Business"

	contactSeparator = "   "
)

// Branding is the CRM branding profile returned by GET /branding.
type Branding struct {
	CRMName              string `json:"crm_name"`
	BusinessName         string `json:"business_name"`
	BusinessLegalName    string `json:"business_legal_name"`
	BusinessAddressLine1 string `json:"business_address_line1"`
	BusinessAddressLine2 string `json:"business_address_line2"`
	BusinessCity         string `json:"business_city"`
	BusinessState        string `json:"business_state"`
	BusinessPostalCode   string `json:"business_postal_code"`
	BusinessCountry      string `json:"business_country"`
	BusinessPhone        string `json:"business_phone"`
	BusinessEmail        string `json:"business_email"`
	BusinessWebsite      string `json:"business_website"`
	BusinessTaxID        string `json:"business_tax_id"`
}

// BrandingLabel returns the product name shown in page headers. A nil branding
// means the lookup finished without data.
func BrandingLabel(branding *Branding) string {
	if branding == nil {
		return DefaultBrandingName
	}
	if crmName := strings.TrimSpace(branding.CRMName); crmName != "" {
		return crmName
	}
	if businessName := strings.TrimSpace(branding.BusinessName); businessName != "" {
		return businessName
	}
	return DefaultBrandingName
}

// BusinessIdentity is the printable business block shown on reports.
type BusinessIdentity struct {
	Name         string   `json:"name"`
	LegalName    string   `json:"legal_name,omitempty"`
	AddressLines []string `json:"address_lines,omitempty"`
	ContactLine  string   `json:"contact_line,omitempty"`
	TaxID        string   `json:"tax_id,omitempty"`
}

// BuildBusinessIdentity derives the identity block from branding. It returns nil
// when branding is unavailable.
func BuildBusinessIdentity(branding *Branding) *BusinessIdentity {
	if branding == nil {
		return nil
	}
	name := strings.TrimSpace(branding.BusinessName)
	if name == "" {
		name = strings.TrimSpace(branding.CRMName)
	}
	if name == "" {
		name = DefaultBusinessName
	}
	identity := &BusinessIdentity{
		Name:        name,
		LegalName:   strings.TrimSpace(branding.BusinessLegalName),
		ContactLine: ContactLine(branding),
	}
	if taxID := strings.TrimSpace(branding.BusinessTaxID); taxID != "" {
		identity.TaxID = "Tax ID: " + taxID
	}
	identity.AddressLines = addressLines(branding)
	return identity
}

// ContactLine joins the configured phone, email, and website.
func ContactLine(branding *Branding) string {
	if branding == nil {
		return ""
	}
	parts := make([]string, 0, 3)
	if phone := strings.TrimSpace(branding.BusinessPhone); phone != "" {
		parts = append(parts, "Phone: "+phone)
	}
	if email := strings.TrimSpace(branding.BusinessEmail); email != "" {
		parts = append(parts, "Email: "+email)
	}
	if website := strings.TrimSpace(branding.BusinessWebsite); website != "" {
		parts = append(parts, "Web: "+website)
	}
	return strings.Join(parts, contactSeparator)
}

func addressLines(branding *Branding) []string {
	lines := make([]string, 0, 4)
	for _, line := range []string{branding.BusinessAddressLine1, branding.BusinessAddressLine2} {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	city := strings.TrimSpace(branding.BusinessCity)
	state := strings.TrimSpace(branding.BusinessState)
	postal := strings.TrimSpace(branding.BusinessPostalCode)
	locality := city
	if state != "" {
		if locality != "" {
			locality += ", "
		}
		locality += state
	}
	if postal != "" {
		if locality != "" {
			locality += " "
		}
		locality += postal
	}
	if locality != "" {
		lines = append(lines, locality)
	}
	if country := strings.TrimSpace(branding.BusinessCountry); country != "" {
		lines = append(lines, country)
	}
	return lines
}

// BrandingSnapshot stores the last branding payload fetched for a CRM backend.
type BrandingSnapshot struct {
	ID         string    `gorm:"primaryKey;size:36"`
	SourceURL  string    `gorm:"uniqueIndex;not null;size:500"`
	Payload    string    `gorm:"not null;type:text"`
	CapturedAt time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

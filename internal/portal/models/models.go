package models

import "time"

// Credentials identify one accommodation account on the portal.
type Credentials struct {
	Username string
	Password string
	WSKey    string
}

// GuestRecord is one guest's check-in data. Dates are free-form strings in any
// layout accepted by the encoder; it is never persisted by this module.
type GuestRecord struct {
	GuestType   string `json:"guest_type"`
	ArrivalDate string `json:"arrival_date"`
	Nights      int    `json:"nights"`

	FamilyName string `json:"family_name"`
	GivenName  string `json:"given_name"`
	Sex        string `json:"sex"`
	BirthDate  string `json:"birth_date"`

	BirthMunicipality string `json:"birth_municipality"`
	BirthProvince     string `json:"birth_province"`
	BirthCountry      string `json:"birth_country"`
	Citizenship       string `json:"citizenship"`

	DocumentType       string `json:"document_type"`
	DocumentNumber     string `json:"document_number"`
	DocumentIssuePlace string `json:"document_issue_place"`
	DocumentIssueDate  string `json:"document_issue_date"`
	DocumentExpiryDate string `json:"document_expiry_date"`
	IssuingAuthority   string `json:"issuing_authority"`

	ResidenceMunicipality string `json:"residence_municipality"`
	ResidenceProvince     string `json:"residence_province"`
	ResidenceCountry      string `json:"residence_country"`
	ResidenceAddress      string `json:"residence_address"`

	Phone string `json:"phone"`
	Email string `json:"email"`
}

// AuthToken is an immutable value; refresh replaces it.
type AuthToken struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// UsableAt reports whether the token may still be presented at now.
func (t AuthToken) UsableAt(now time.Time, margin time.Duration) bool {
	if t.Value == "" {
		return false
	}
	return now.Before(t.ExpiresAt.Add(-margin))
}

// SubmissionBatch is an ordered list of guests submitted together.
type SubmissionBatch struct {
	ID     string
	Guests []GuestRecord
}

// Outcome is the raw result of one validate or submit call, as reported by the portal.
type Outcome struct {
	Esito       bool
	Code        string
	Description string
	Detail      string
	Accepted    int
	// AcceptedReported is set when the portal sent SchedineValide, even as 0.
	AcceptedReported bool
	Lines            []LineOutcome
}

// LineOutcome is the portal's verdict on a single record of a batch.
type LineOutcome struct {
	Esito       bool
	Code        string
	Description string
	Detail      string
}

// TableType identifies a reference table maintained by the portal.
type TableType string

const (
	TablePlaces        TableType = "Luoghi"
	TableDocumentTypes TableType = "Tipi_Documento"
	TableGuestTypes    TableType = "Tipi_Alloggiato"
	TableErrorCodes    TableType = "TipoErrori"
)

// TableTypes lists every table the portal serves.
var TableTypes = []TableType{TablePlaces, TableDocumentTypes, TableGuestTypes, TableErrorCodes}

// Valid reports whether t is a known reference table.
func (t TableType) Valid() bool {
	for _, known := range TableTypes {
		if t == known {
			return true
		}
	}
	return false
}

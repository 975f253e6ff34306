// Package schedina encodes guest check-in data into the portal's fixed-width
// record format and decodes the delimited rows of reference tables.
package schedina

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"alloggiati/internal/portal/models"
	"alloggiati/internal/portal/portalerr"
)

// RecordLength is the exact length of every encoded record.
const RecordLength = 318

// MaxNights is the longest stay the portal accepts in a single record.
const MaxNights = 30

// CountryItaly is the portal's place code for Italy.
const CountryItaly = "100000100"

// Guest-type codes.
const (
	GuestSingle       = "16"
	GuestFamilyHead   = "17"
	GuestGroupLeader  = "18"
	GuestFamilyMember = "19"
	GuestGroupMember  = "20"
)

// Field names, used in errors and by Offset/Width.
const (
	FieldGuestType             = "guest_type"
	FieldArrivalDate           = "arrival_date"
	FieldNights                = "nights"
	FieldFamilyName            = "family_name"
	FieldGivenName             = "given_name"
	FieldSex                   = "sex"
	FieldBirthDate             = "birth_date"
	FieldBirthMunicipality     = "birth_municipality"
	FieldBirthProvince         = "birth_province"
	FieldBirthCountry          = "birth_country"
	FieldCitizenship           = "citizenship"
	FieldDocumentType          = "document_type"
	FieldDocumentNumber        = "document_number"
	FieldDocumentIssueDate     = "document_issue_date"
	FieldIssuingAuthority      = "issuing_authority"
	FieldResidenceMunicipality = "residence_municipality"
	FieldResidenceProvince     = "residence_province"
	FieldResidenceCountry      = "residence_country"
	FieldResidenceAddress      = "residence_address"
	FieldPhone                 = "phone"
	FieldEmail                 = "email"

	// Validated but not part of the record.
	FieldDocumentExpiryDate = "document_expiry_date"
)

// Schedina is one encoded record. len(s) == RecordLength always holds for
// values returned by Encode.
type Schedina string

type kind int

const (
	kindText kind = iota
	kindNumeric
	kindDate
)

type field struct {
	name  string
	width int
	kind  kind
}

// layout is the protocol field order.
var layout = []field{
	{FieldGuestType, 2, kindNumeric},
	{FieldArrivalDate, 10, kindDate},
	{FieldNights, 2, kindNumeric},
	{FieldFamilyName, 50, kindText},
	{FieldGivenName, 30, kindText},
	{FieldSex, 1, kindNumeric},
	{FieldBirthDate, 10, kindDate},
	{FieldBirthMunicipality, 9, kindNumeric},
	{FieldBirthProvince, 2, kindText},
	{FieldBirthCountry, 9, kindNumeric},
	{FieldCitizenship, 9, kindNumeric},
	{FieldDocumentType, 5, kindText},
	{FieldDocumentNumber, 20, kindText},
	{FieldDocumentIssueDate, 10, kindDate},
	{FieldIssuingAuthority, 9, kindNumeric},
	{FieldResidenceMunicipality, 9, kindNumeric},
	{FieldResidenceProvince, 2, kindText},
	{FieldResidenceCountry, 9, kindNumeric},
	{FieldResidenceAddress, 50, kindText},
	{FieldPhone, 20, kindText},
	{FieldEmail, 50, kindText},
}

// Offset returns the zero-based position of a field within a record.
func Offset(name string) (int, bool) {
	pos := 0
	for _, f := range layout {
		if f.name == name {
			return pos, true
		}
		pos += f.width
	}
	return 0, false
}

// Width returns the fixed width of a field.
func Width(name string) (int, bool) {
	for _, f := range layout {
		if f.name == name {
			return f.width, true
		}
	}
	return 0, false
}

// Field extracts the raw (still padded) value of a field from a record.
func (s Schedina) Field(name string) string {
	off, ok := Offset(name)
	if !ok || len(s) != RecordLength {
		return ""
	}
	w, _ := Width(name)
	return string(s[off : off+w])
}

type value struct {
	raw      string
	required bool
	blank    bool // forced to spaces by protocol rules
}

// Encode validates a guest record and renders it as a fixed-width record.
// All field errors are reported together, joined.
func Encode(g models.GuestRecord) (Schedina, error) {
	primary := IsPrimaryGuest(g.GuestType)
	bornInItaly := strings.TrimSpace(g.BirthCountry) == CountryItaly

	nights := ""
	if g.Nights > 0 {
		nights = strconv.Itoa(min(g.Nights, MaxNights))
	}

	// The document issue place stands in for the authority code when only it is set.
	authority := g.IssuingAuthority
	if strings.TrimSpace(authority) == "" {
		authority = g.DocumentIssuePlace
	}

	values := map[string]value{
		FieldGuestType:             {raw: g.GuestType, required: true},
		FieldArrivalDate:           {raw: g.ArrivalDate, required: true},
		FieldNights:                {raw: nights, required: g.Nights >= 0},
		FieldFamilyName:            {raw: g.FamilyName, required: true},
		FieldGivenName:             {raw: g.GivenName, required: true},
		FieldSex:                   {raw: normalizeSex(g.Sex), required: true},
		FieldBirthDate:             {raw: g.BirthDate, required: true},
		FieldBirthMunicipality:     {raw: g.BirthMunicipality, required: bornInItaly, blank: !bornInItaly},
		FieldBirthProvince:         {raw: strings.ToUpper(g.BirthProvince), required: bornInItaly, blank: !bornInItaly},
		FieldBirthCountry:          {raw: g.BirthCountry, required: true},
		FieldCitizenship:           {raw: g.Citizenship, required: true},
		FieldDocumentType:          {raw: strings.ToUpper(g.DocumentType), required: primary, blank: !primary},
		FieldDocumentNumber:        {raw: g.DocumentNumber, required: primary, blank: !primary},
		FieldDocumentIssueDate:     {raw: g.DocumentIssueDate, blank: !primary},
		FieldIssuingAuthority:      {raw: authority, required: primary, blank: !primary},
		FieldResidenceMunicipality: {raw: g.ResidenceMunicipality},
		FieldResidenceProvince:     {raw: strings.ToUpper(g.ResidenceProvince)},
		FieldResidenceCountry:      {raw: g.ResidenceCountry},
		FieldResidenceAddress:      {raw: g.ResidenceAddress},
		FieldPhone:                 {raw: g.Phone},
		FieldEmail:                 {raw: g.Email},
	}

	var errs []error
	if g.Nights < 0 {
		errs = append(errs, portalerr.InvalidCode(FieldNights, strconv.Itoa(g.Nights)))
	}
	if gt := strings.TrimSpace(g.GuestType); gt != "" && !validGuestType(gt) {
		errs = append(errs, portalerr.InvalidCode(FieldGuestType, gt))
	}
	if sex := values[FieldSex].raw; sex != "" && sex != "1" && sex != "2" {
		errs = append(errs, portalerr.InvalidCode(FieldSex, g.Sex))
	}
	if exp := strings.TrimSpace(g.DocumentExpiryDate); exp != "" {
		if _, err := ParseDate(exp); err != nil {
			errs = append(errs, portalerr.InvalidDate(FieldDocumentExpiryDate, exp))
		}
	}

	var b strings.Builder
	b.Grow(RecordLength)
	for _, f := range layout {
		out, err := render(f, values[f.name])
		if err != nil {
			errs = append(errs, err)
			out = strings.Repeat(" ", f.width)
		}
		b.WriteString(out)
	}
	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}

	rec := b.String()
	if len(rec) != RecordLength {
		return "", fmt.Errorf("encoded record has length %d, want %d", len(rec), RecordLength)
	}
	return Schedina(rec), nil
}

// LineError ties an encoding failure to its position in a batch.
type LineError struct {
	Index int
	Err   error
}

func (e LineError) Error() string {
	return fmt.Sprintf("guest %d: %v", e.Index+1, e.Err)
}

func (e LineError) Unwrap() error {
	return e.Err
}

// EncodeBatch encodes every guest and collects every failure. The returned
// records are only meaningful when no errors are returned.
func EncodeBatch(guests []models.GuestRecord) ([]Schedina, []LineError) {
	records := make([]Schedina, 0, len(guests))
	var failures []LineError
	for i, g := range guests {
		rec, err := Encode(g)
		if err != nil {
			failures = append(failures, LineError{Index: i, Err: err})
			continue
		}
		records = append(records, rec)
	}
	return records, failures
}

// IsPrimaryGuest reports whether the guest type requires identity document data.
func IsPrimaryGuest(guestType string) bool {
	switch strings.TrimSpace(guestType) {
	case GuestSingle, GuestFamilyHead, GuestGroupLeader:
		return true
	}
	return false
}

func validGuestType(code string) bool {
	switch code {
	case GuestSingle, GuestFamilyHead, GuestGroupLeader, GuestFamilyMember, GuestGroupMember:
		return true
	}
	return false
}

func normalizeSex(s string) string {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "M":
		return "1"
	case "F":
		return "2"
	}
	return strings.TrimSpace(s)
}

func render(f field, v value) (string, error) {
	raw := strings.TrimSpace(v.raw)
	if v.blank || raw == "" {
		if raw == "" && v.required && !v.blank {
			return "", portalerr.FieldRequired(f.name)
		}
		return strings.Repeat(" ", f.width), nil
	}
	switch f.kind {
	case kindNumeric:
		return padNumeric(f, raw)
	case kindDate:
		t, err := ParseDate(raw)
		if err != nil {
			return "", portalerr.InvalidDate(f.name, raw)
		}
		return FormatDate(t), nil
	default:
		return padText(raw, f.width), nil
	}
}

func padNumeric(f field, raw string) (string, error) {
	if len(raw) > f.width {
		return "", portalerr.InvalidCode(f.name, raw)
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return "", portalerr.InvalidCode(f.name, raw)
		}
	}
	return strings.Repeat("0", f.width-len(raw)) + raw, nil
}

// padText folds to ASCII, truncates to width and pads with trailing spaces.
func padText(raw string, width int) string {
	s := foldASCII(raw)
	if len(s) > width {
		s = strings.TrimRight(s[:width], " ")
	}
	return s + strings.Repeat(" ", width-len(s))
}

func foldASCII(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r < 0x20:
			return ' '
		case r > unicode.MaxASCII:
			return '?'
		}
		return r
	}, folded)
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"2006/01/02",
	"02.01.2006",
}

// ParseDate accepts any of the supported date layouts.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// FormatDate renders a date the way the portal expects it.
func FormatDate(t time.Time) string {
	return t.Format("02/01/2006")
}

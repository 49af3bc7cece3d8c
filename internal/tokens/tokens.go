// Package tokens holds the placeholder vocabulary of certificate templates and
// the substitution of those placeholders with recipient data.
package tokens

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"html"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// Token is a literal placeholder inside template text
type Token string

const (
	RecipientFirstName   Token = "[[recipient-fname]]"
	RecipientLastName    Token = "[[recipient-lname]]"
	RecipientFullName    Token = "[[recipient-flname]]"
	RecipientReverseName Token = "[[recipient-lfname]]"
	RecipientEmail       Token = "[[recipient-email]]"
	IssuerName           Token = "[[issuer-name]]"
	IssuerContact        Token = "[[issuer-contact]]"
	BadgeName            Token = "[[badge-name]]"
	BadgeDescription     Token = "[[badge-desc]]"
	BadgeNumber          Token = "[[badge-number]]"
	BadgeCourse          Token = "[[badge-course]]"
	BadgeHash            Token = "[[badge-hash]]"
	DateYear             Token = "[[datetime-Y]]"
	DateDotted           Token = "[[datetime-d.m.Y]]"
	DateSlashed          Token = "[[datetime-d/m/Y]]"
	DateISO              Token = "[[datetime-F]]"
	DateEpoch            Token = "[[datetime-s]]"
	BookingTitle         Token = "[[booking-title]]"
	BookingStartDate     Token = "[[booking-startdate]]"
	BookingEndDate       Token = "[[booking-enddate]]"
	BookingDuration      Token = "[[booking-duration]]"
	RecipientBirthDate   Token = "[[recipient-birthdate]]"
	RecipientInstitution Token = "[[recipient-institution]]"
	BadgeDateIssued      Token = "[[badge-date-issued]]"
)

// Vocabulary lists every supported token in its canonical order
var Vocabulary = []Token{
	RecipientFirstName,
	RecipientLastName,
	RecipientFullName,
	RecipientReverseName,
	RecipientEmail,
	IssuerName,
	IssuerContact,
	BadgeName,
	BadgeDescription,
	BadgeNumber,
	BadgeCourse,
	BadgeHash,
	DateYear,
	DateDotted,
	DateSlashed,
	DateISO,
	DateEpoch,
	BookingTitle,
	BookingStartDate,
	BookingEndDate,
	BookingDuration,
	RecipientBirthDate,
	RecipientInstitution,
	BadgeDateIssued,
}

var descriptions = map[Token]string{
	RecipientFirstName:   "recipient's first name",
	RecipientLastName:    "recipient's last name",
	RecipientFullName:    "recipient's full name (first, last)",
	RecipientReverseName: "recipient's full name (last, first)",
	RecipientEmail:       "recipient's email address",
	IssuerName:           "issuer's name or title",
	IssuerContact:        "issuer's contact information",
	BadgeName:            "badge name or title",
	BadgeDescription:     "badge description",
	BadgeNumber:          "badge ID number",
	BadgeCourse:          "name of the course where the badge was awarded",
	BadgeHash:            "badge hash value",
	DateYear:             "current year",
	DateDotted:           "current date as dd.mm.yyyy",
	DateSlashed:          "current date as dd/mm/yyyy",
	DateISO:              "current date as yyyy-mm-dd",
	DateEpoch:            "current Unix epoch timestamp",
	BookingTitle:         "seminar title",
	BookingStartDate:     "seminar start date",
	BookingEndDate:       "seminar end date",
	BookingDuration:      "seminar duration",
	RecipientBirthDate:   "recipient's date of birth",
	RecipientInstitution: "institution where the recipient is employed",
	BadgeDateIssued:      "date when the badge was issued",
}

// Describe returns a human readable description of a token
func (t Token) Describe() string {
	return descriptions[t]
}

// Booking sentinels used when no seminar is linked or answered
const (
	TitleNotSet    = "Title not set"
	DateNotDefined = "Date not defined"
)

// Recipient identifies the person a page is rendered for
type Recipient struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	BirthDate   string `json:"birth_date"`
	Institution string `json:"institution"`
}

// Issuer identifies who hands out the certificate
type Issuer struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
}

// Badge identifies the awarded badge
type Badge struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Number      string `json:"number"`
	Course      string `json:"course"`
	Hash        string `json:"hash"`
	DateIssued  string `json:"date_issued"`
}

// Booking identifies the seminar linked to the certificate
type Booking struct {
	Title     string `json:"title"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Duration  string `json:"duration"`
}

// NoBooking returns the booking used when nothing is linked
func NoBooking() Booking {
	return Booking{
		Title:     TitleNotSet,
		StartDate: DateNotDefined,
		EndDate:   DateNotDefined,
		Duration:  "0",
	}
}

// Context is the per-page data bundle. It is built fresh for every render.
type Context struct {
	Recipient Recipient `json:"recipient"`
	Issuer    Issuer    `json:"issuer"`
	Badge     Badge     `json:"badge"`
	Booking   Booking   `json:"booking"`
	Now       time.Time `json:"now"`
	Hash      string    `json:"hash"`
}

// Table maps every token to its replacement value
type Table map[Token]string

// Table builds the token table for the context
func (c Context) Table() Table {
	now := c.Now
	return Table{
		RecipientFirstName:   c.Recipient.FirstName,
		RecipientLastName:    c.Recipient.LastName,
		RecipientFullName:    c.Recipient.FirstName + " " + c.Recipient.LastName,
		RecipientReverseName: c.Recipient.LastName + " " + c.Recipient.FirstName,
		RecipientEmail:       c.Recipient.Email,
		IssuerName:           c.Issuer.Name,
		IssuerContact:        c.Issuer.Contact,
		BadgeName:            c.Badge.Name,
		BadgeDescription:     c.Badge.Description,
		BadgeNumber:          c.Badge.Number,
		BadgeCourse:          c.Badge.Course,
		BadgeHash:            c.Hash,
		DateYear:             now.Format("2006"),
		DateDotted:           now.Format("02.01.2006"),
		DateSlashed:          now.Format("02/01/2006"),
		DateISO:              now.Format("2006-01-02"),
		DateEpoch:            strconv.FormatInt(now.Unix(), 10),
		BookingTitle:         c.Booking.Title,
		BookingStartDate:     c.Booking.StartDate,
		BookingEndDate:       c.Booking.EndDate,
		BookingDuration:      c.Booking.Duration,
		RecipientBirthDate:   c.Recipient.BirthDate,
		RecipientInstitution: c.Recipient.Institution,
		BadgeDateIssued:      c.Badge.DateIssued,
	}
}

// Row returns the table values in vocabulary order
func (t Table) Row() []string {
	row := make([]string, len(Vocabulary))
	for i, tok := range Vocabulary {
		row[i] = t[tok]
	}
	return row
}

// Escaped returns a copy of the table with values escaped for markup, so a
// recipient named "A & B" does not break the svg document.
func (t Table) Escaped() Table {
	out := make(Table, len(t))
	for tok, value := range t {
		out[tok] = html.EscapeString(value)
	}
	return out
}

// Replacer returns a single pass replacer for the table. Replacement values
// are never scanned again, and text that is not a vocabulary token is kept.
func (t Table) Replacer() *strings.Replacer {
	pairs := make([]string, 0, 2*len(Vocabulary))
	for _, tok := range Vocabulary {
		value, ok := t[tok]
		if !ok {
			continue
		}
		pairs = append(pairs, string(tok), value)
	}
	return strings.NewReplacer(pairs...)
}

// Substitute replaces every vocabulary token in text with the table value
func Substitute(text string, table Table) string {
	return table.Replacer().Replace(text)
}

// Render substitutes svg markup with the context's values, escaped so that
// they stay text inside the document
func Render(markup string, ctx Context) string {
	return Substitute(markup, ctx.Table().Escaped())
}

// Contains reports which vocabulary tokens occur in text
func Contains(text string) []Token {
	var found []Token
	for _, tok := range Vocabulary {
		if strings.Contains(text, string(tok)) {
			found = append(found, tok)
		}
	}
	return found
}

// NewHash returns the cosmetic per-render hash shown on certificates. It is
// not a stable identifier and must not be persisted.
func NewHash(creatorID int64, templateID string, now time.Time) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%d%d%s%d", rand.Int63(), creatorID, templateID, now.Unix())))
	return hex.EncodeToString(sum[:])
}

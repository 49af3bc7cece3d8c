package certificates

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"badgecerts/badgecerts-backend/pkg/pdf"
)

// =====================================================
// Enums and Constants
// =====================================================

// Status is the lifecycle state of a template
type Status int

const (
	StatusInactive       Status = 0
	StatusActive         Status = 1
	StatusInactiveLocked Status = 2
	StatusActiveLocked   Status = 3
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	return s >= StatusInactive && s <= StatusActiveLocked
}

// IsLocked reports whether the template may no longer be edited
func (s Status) IsLocked() bool {
	return s == StatusInactiveLocked || s == StatusActiveLocked
}

// IsActive reports whether the template can be used by recipients
func (s Status) IsActive() bool {
	return s == StatusActive || s == StatusActiveLocked
}

func (s Status) String() string {
	switch s {
	case StatusInactive:
		return "inactive"
	case StatusActive:
		return "active"
	case StatusInactiveLocked:
		return "inactive_locked"
	case StatusActiveLocked:
		return "active_locked"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Type is the scope a template belongs to
type Type int

const (
	TypeSite   Type = 1
	TypeCourse Type = 2
)

// Valid reports whether t is a known type
func (t Type) Valid() bool {
	return t == TypeSite || t == TypeCourse
}

// Render modes recorded in the issue log
const (
	ModeSingle = "single"
	ModeBulk   = "bulk"
)

// Content dispositions of rendered documents
const (
	DispositionInline     = "inline"
	DispositionAttachment = "attachment"
)

// =====================================================
// Core Entities
// =====================================================

// Template is a badge certificate definition
type Template struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name           string    `gorm:"size:255;not null;index" json:"name"`
	Description    string    `gorm:"type:text;not null" json:"description"`
	Official       bool      `gorm:"not null;default:false" json:"official"`
	BackgroundKey  string    `gorm:"size:255" json:"-"`
	BackgroundName string    `gorm:"size:255" json:"background_name"`
	Format         string    `gorm:"size:16;not null" json:"format"`
	Orientation    string    `gorm:"size:1;not null" json:"orientation"`
	Unit           string    `gorm:"size:2;not null" json:"unit"`
	Status         Status    `gorm:"not null;default:0;index" json:"status"`
	IssuerName     string    `gorm:"size:255;not null" json:"issuer_name"`
	IssuerContact  string    `gorm:"size:255" json:"issuer_contact"`
	Type           Type      `gorm:"not null;index:idx_badge_certificates_scope" json:"type"`
	CourseID       *int64    `gorm:"index:idx_badge_certificates_scope" json:"course_id,omitempty"`
	BookingID      *int64    `json:"booking_id,omitempty"`
	CreatedBy      int64     `gorm:"not null;index" json:"created_by"`
	ModifiedBy     int64     `gorm:"not null" json:"modified_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Template) TableName() string { return "badge_certificates" }

func (t *Template) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// PageSetup returns the page geometry of the template
func (t *Template) PageSetup() pdf.PageSetup {
	return pdf.PageSetup{Format: t.Format, Orientation: t.Orientation, Unit: t.Unit}
}

// HasBackground reports whether a background blob is stored
func (t *Template) HasBackground() bool {
	return t.BackgroundKey != ""
}

// Badge is the host's badge class. CertID links it to a template.
type Badge struct {
	ID          int64      `gorm:"primaryKey" json:"id"`
	Name        string     `gorm:"size:255;not null" json:"name"`
	Description string     `gorm:"type:text" json:"description"`
	Type        Type       `gorm:"not null" json:"type"`
	CourseID    *int64     `gorm:"index" json:"course_id,omitempty"`
	Status      int        `gorm:"not null;default:0" json:"status"`
	CertID      *uuid.UUID `gorm:"type:uuid;index" json:"cert_id,omitempty"`
}

func (Badge) TableName() string { return "badges" }

// Badge statuses of the host, active badges can be linked
const (
	BadgeStatusInactive       = 0
	BadgeStatusActive         = 1
	BadgeStatusInactiveLocked = 2
	BadgeStatusActiveLocked   = 3
)

// IssuedBadge is one badge awarded to one user
type IssuedBadge struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	BadgeID    int64     `gorm:"not null;index" json:"badge_id"`
	UserID     int64     `gorm:"not null;index" json:"user_id"`
	UniqueHash string    `gorm:"size:40;not null;uniqueIndex" json:"unique_hash"`
	DateIssued time.Time `gorm:"not null" json:"date_issued"`
	Visible    bool      `gorm:"not null;default:false" json:"visible"`
}

func (IssuedBadge) TableName() string { return "badge_issued" }

// IssueLog records one real (non preview) render
type IssueLog struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TemplateID uuid.UUID      `gorm:"type:uuid;not null;index" json:"template_id"`
	Mode       string         `gorm:"size:16;not null" json:"mode"`
	ActorID    int64          `gorm:"not null" json:"actor_id"`
	Pages      int            `gorm:"not null" json:"pages"`
	Details    datatypes.JSON `json:"details"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (IssueLog) TableName() string { return "badge_certificate_issues" }

func (l *IssueLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// UserCertificate is one row of a user's certificate list
type UserCertificate struct {
	Hash         string    `json:"hash"`
	BadgeID      int64     `json:"badge_id"`
	BadgeName    string    `json:"badge_name"`
	CourseID     *int64    `json:"course_id,omitempty"`
	TemplateID   uuid.UUID `json:"template_id"`
	TemplateName string    `json:"template_name"`
	DateIssued   time.Time `json:"date_issued"`
	Visible      bool      `json:"visible"`
}

// =====================================================
// Request/Response DTOs
// =====================================================

// CreateTemplateRequest is the payload for creating a template
type CreateTemplateRequest struct {
	Name           string `json:"name" form:"name" validate:"required,max=255"`
	Description    string `json:"description" form:"description" validate:"required"`
	Official       bool   `json:"official" form:"official"`
	Format         string `json:"format" form:"format" validate:"omitempty,oneof=A3 A4 B4 B5 LEGAL LETTER TABLOID"`
	Orientation    string `json:"orientation" form:"orientation" validate:"omitempty,oneof=P L"`
	Unit           string `json:"unit" form:"unit" validate:"omitempty,oneof=pt mm cm in"`
	IssuerName     string `json:"issuer_name" form:"issuer_name" validate:"required,max=255"`
	IssuerContact  string `json:"issuer_contact" form:"issuer_contact" validate:"omitempty,max=255,email"`
	Type           Type   `json:"type" form:"type" validate:"required,oneof=1 2"`
	CourseID       *int64 `json:"course_id" form:"course_id"`
	BookingID      *int64 `json:"booking_id" form:"booking_id"`
	Background     string `json:"background" form:"-"`
	BackgroundName string `json:"background_name" form:"-"`
}

// UpdateTemplateRequest changes the fields that are set
type UpdateTemplateRequest struct {
	Name           *string `json:"name" form:"name" validate:"omitnil,min=1,max=255"`
	Description    *string `json:"description" form:"description" validate:"omitnil,min=1"`
	Official       *bool   `json:"official" form:"official"`
	Format         *string `json:"format" form:"format" validate:"omitnil,oneof=A3 A4 B4 B5 LEGAL LETTER TABLOID"`
	Orientation    *string `json:"orientation" form:"orientation" validate:"omitnil,oneof=P L"`
	Unit           *string `json:"unit" form:"unit" validate:"omitnil,oneof=pt mm cm in"`
	IssuerName     *string `json:"issuer_name" form:"issuer_name" validate:"omitnil,min=1,max=255"`
	IssuerContact  *string `json:"issuer_contact" form:"issuer_contact" validate:"omitnil,max=255"`
	BookingID      *int64  `json:"booking_id" form:"booking_id"`
	Background     *string `json:"background" form:"-"`
	BackgroundName *string `json:"background_name" form:"-"`
}

// SetStatusRequest is the payload for a status change
type SetStatusRequest struct {
	Status *Status `json:"status" binding:"required"`
}

// TemplateFilters for listing templates
type TemplateFilters struct {
	Type      *Type
	CourseID  *int64
	CreatedBy *int64
	Status    *Status
	Search    *string
	Sort      string
	Direction string
	Page      int
	PageSize  int
}

// TemplateListResponse is a page of templates
type TemplateListResponse struct {
	Templates  []Template `json:"templates"`
	TotalCount int64      `json:"total_count"`
	Page       int        `json:"page"`
	PageSize   int        `json:"page_size"`
}

// UserCertificateFilters for a user's certificate list
type UserCertificateFilters struct {
	Search   *string
	Visible  *bool
	CourseID *int64
	Page     int
	PageSize int
}

// UserCertificateListResponse is a page of a user's certificates
type UserCertificateListResponse struct {
	Certificates []UserCertificate `json:"certificates"`
	TotalCount   int64             `json:"total_count"`
	Page         int               `json:"page"`
	PageSize     int               `json:"page_size"`
}

// Rendered is a finished PDF
type Rendered struct {
	Filename       string `json:"filename"`
	Disposition    string `json:"disposition"`
	Pages          int    `json:"pages"`
	MissingContent bool   `json:"missing_content"`
	Body           []byte `json:"-"`
}

// ContentDisposition returns the header value for the document
func (r *Rendered) ContentDisposition() string {
	return fmt.Sprintf("%s; filename=%q", r.Disposition, r.Filename)
}

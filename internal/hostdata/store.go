package hostdata

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"badgecerts/badgecerts-backend/internal/auth"
	"badgecerts/badgecerts-backend/internal/certificates"
)

// ProfileFields are the short names of the custom profile fields read for
// recipients and bulk rights
type ProfileFields struct {
	BirthDate   string
	Institution string
	BulkCourse  string
}

// Store implements the host data providers on top of gorm
type Store struct {
	db     *gorm.DB
	fields ProfileFields
	logger *zap.Logger
}

// NewStore creates a host data store
func NewStore(db *gorm.DB, fields ProfileFields, logger *zap.Logger) *Store {
	return &Store{db: db, fields: fields, logger: logger}
}

// HostData wires the store into every provider slot
func (s *Store) HostData() certificates.HostData {
	return certificates.HostData{
		Issuances:  s,
		Recipients: s,
		Courses:    s,
		Bookings:   s,
	}
}

// =====================================================
// Issuances
// =====================================================

// Issuances returns the recipients of every badge linked to the template in
// issue order
func (s *Store) Issuances(ctx context.Context, templateID uuid.UUID) ([]certificates.Issuance, error) {
	var issuances []certificates.Issuance
	err := s.db.WithContext(ctx).Table("badge_issued AS bi").
		Select("bi.user_id AS user_id, bi.unique_hash AS hash, bi.badge_id AS badge_id").
		Joins("JOIN badges b ON b.id = bi.badge_id").
		Where("b.cert_id = ?", templateID).
		Order("bi.date_issued").Order("bi.id").
		Scan(&issuances).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list issuances: %w", err)
	}
	return issuances, nil
}

type assertionRow struct {
	Hash        string
	BadgeID     int64
	Name        string
	Description string
	UserID      int64
	DateIssued  time.Time
}

// Assertion resolves an issuance hash
func (s *Store) Assertion(ctx context.Context, hash string) (*certificates.Assertion, error) {
	var rows []assertionRow
	err := s.db.WithContext(ctx).Table("badge_issued AS bi").
		Select("bi.unique_hash AS hash, b.id AS badge_id, b.name AS name, b.description AS description, "+
			"bi.user_id AS user_id, bi.date_issued AS date_issued").
		Joins("JOIN badges b ON b.id = bi.badge_id").
		Where("bi.unique_hash = ?", hash).
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get issuance: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("issuance %s: %w", hash, certificates.ErrNotFound)
	}

	row := rows[0]
	return &certificates.Assertion{
		Hash:             row.Hash,
		BadgeID:          row.BadgeID,
		BadgeName:        row.Name,
		BadgeDescription: row.Description,
		UserID:           row.UserID,
		IssuedAt:         row.DateIssued,
	}, nil
}

// =====================================================
// Recipients
// =====================================================

// Recipient loads the user with backpack e-mail and profile fields
func (s *Store) Recipient(ctx context.Context, userID int64) (*certificates.RecipientInfo, error) {
	var user User
	err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user %d: %w", userID, certificates.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	info := &certificates.RecipientInfo{
		UserID:       user.ID,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		AccountEmail: user.Email,
	}

	var backpack Backpack
	err = s.db.WithContext(ctx).Where("user_id = ?", userID).Limit(1).Find(&backpack).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get backpack: %w", err)
	}
	info.BackpackEmail = backpack.Email

	if raw, err := s.profileValue(ctx, userID, s.fields.BirthDate); err != nil {
		return nil, err
	} else if raw != "" {
		birth, perr := parseProfileDate(raw)
		if perr != nil {
			s.logger.Warn("Ignoring unparsable birth date", zap.Int64("user_id", userID), zap.Error(perr))
		} else {
			info.BirthDate = &birth
		}
	}

	institution, err := s.profileValue(ctx, userID, s.fields.Institution)
	if err != nil {
		return nil, err
	}
	info.Institution = institution

	return info, nil
}

// profileValue returns "" when the field or the value does not exist
func (s *Store) profileValue(ctx context.Context, userID int64, shortName string) (string, error) {
	if shortName == "" {
		return "", nil
	}
	var values []string
	err := s.db.WithContext(ctx).Table("user_info_data AS d").
		Joins("JOIN user_info_field f ON f.id = d.field_id").
		Where("f.shortname = ? AND d.user_id = ?", shortName, userID).
		Limit(1).
		Pluck("d.data", &values).Error
	if err != nil {
		return "", fmt.Errorf("failed to read profile field %s: %w", shortName, err)
	}
	if len(values) == 0 {
		return "", nil
	}
	return strings.TrimSpace(values[0]), nil
}

// parseProfileDate accepts unix seconds and ISO dates
func parseProfileDate(raw string) (time.Time, error) {
	if sec, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if sec == 0 {
			return time.Time{}, fmt.Errorf("empty date")
		}
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Parse("2006-01-02", raw)
}

// =====================================================
// Courses and Bookings
// =====================================================

// CourseName returns the full name of a course
func (s *Store) CourseName(ctx context.Context, courseID int64) (string, error) {
	var course Course
	err := s.db.WithContext(ctx).First(&course, "id = ?", courseID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("course %d: %w", courseID, certificates.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get course: %w", err)
	}
	return course.FullName, nil
}

// Booking returns the seminar option a user completed, nil when none
func (s *Store) Booking(ctx context.Context, bookingID, userID int64) (*certificates.BookingInfo, error) {
	var answers []BookingAnswer
	err := s.db.WithContext(ctx).
		Where("booking_id = ? AND user_id = ? AND completed = ?", bookingID, userID, true).
		Limit(1).
		Find(&answers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get booking answer: %w", err)
	}
	if len(answers) == 0 || answers[0].OptionID <= 0 {
		return nil, nil
	}

	var option BookingOption
	err = s.db.WithContext(ctx).First(&option, "id = ?", answers[0].OptionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking option: %w", err)
	}

	var booking Booking
	if err := s.db.WithContext(ctx).Limit(1).Find(&booking, "id = ?", bookingID).Error; err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	info := &certificates.BookingInfo{
		Title:    option.Text,
		Duration: booking.Duration,
	}
	if option.CourseStartTime > 0 {
		start := time.Unix(option.CourseStartTime, 0).UTC()
		info.Start = &start
	}
	if option.CourseEndTime > 0 {
		end := time.Unix(option.CourseEndTime, 0).UTC()
		info.End = &end
	}
	return info, nil
}

// =====================================================
// Authorization
// =====================================================

// BulkAuthorizer grants bulk rendering in the course named by the user's
// bulk profile field
type BulkAuthorizer struct {
	store *Store
}

// NewBulkAuthorizer creates the profile based bulk authorizer
func NewBulkAuthorizer(store *Store) *BulkAuthorizer {
	return &BulkAuthorizer{store: store}
}

func (a *BulkAuthorizer) Allowed(ctx context.Context, actor *auth.Actor, capability auth.Capability, courseID int64) (bool, error) {
	if actor == nil || capability != auth.CapBulk || courseID <= 0 {
		return false, nil
	}
	value, err := a.store.profileValue(ctx, actor.UserID, a.store.fields.BulkCourse)
	if err != nil {
		return false, err
	}
	return value == strconv.FormatInt(courseID, 10), nil
}

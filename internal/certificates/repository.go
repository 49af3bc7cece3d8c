package certificates

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines the interface for certificate data access
type Repository interface {
	// Templates
	CreateTemplate(ctx context.Context, t *Template) error
	GetTemplate(ctx context.Context, id uuid.UUID) (*Template, error)
	UpdateTemplate(ctx context.Context, t *Template) error
	ListTemplates(ctx context.Context, filters *TemplateFilters) ([]Template, int64, error)
	TemplatesForCourse(ctx context.Context, courseID int64) ([]Template, error)
	NameExists(ctx context.Context, name string, typ Type, courseID *int64, excludeID *uuid.UUID) (bool, error)
	// DeleteTemplate detaches every linked badge and removes the row in one
	// transaction. It returns the number of detached badges.
	DeleteTemplate(ctx context.Context, id uuid.UUID) (int64, error)
	BackgroundKeys(ctx context.Context) ([]string, error)

	// Badges
	GetBadge(ctx context.Context, id int64) (*Badge, error)
	AvailableBadges(ctx context.Context, courseID *int64) ([]Badge, error)
	AssignedBadges(ctx context.Context, certID uuid.UUID) ([]Badge, error)
	SetBadgeTemplate(ctx context.Context, badgeID int64, certID *uuid.UUID) error
	UserCertificates(ctx context.Context, userID int64, filters *UserCertificateFilters) ([]UserCertificate, int64, error)

	// Issue log
	CreateIssueLog(ctx context.Context, entry *IssueLog) error
	ListIssueLogs(ctx context.Context, templateID uuid.UUID) ([]IssueLog, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a gorm backed repository
func NewGormRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateTemplate(ctx context.Context, t *Template) error {
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("failed to create certificate template: %w", err)
	}
	return nil
}

func (r *gormRepository) GetTemplate(ctx context.Context, id uuid.UUID) (*Template, error) {
	var t Template
	err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("certificate template %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get certificate template: %w", err)
	}
	return &t, nil
}

func (r *gormRepository) UpdateTemplate(ctx context.Context, t *Template) error {
	res := r.db.WithContext(ctx).Save(t)
	if res.Error != nil {
		return fmt.Errorf("failed to update certificate template: %w", res.Error)
	}
	return nil
}

var templateSortColumns = map[string]string{
	"name":       "name",
	"status":     "status",
	"format":     "format",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

func (r *gormRepository) ListTemplates(ctx context.Context, filters *TemplateFilters) ([]Template, int64, error) {
	q := r.db.WithContext(ctx).Model(&Template{})
	if filters.Type != nil {
		q = q.Where("type = ?", *filters.Type)
	}
	if filters.CourseID != nil {
		q = q.Where("course_id = ?", *filters.CourseID)
	}
	if filters.CreatedBy != nil {
		q = q.Where("created_by = ?", *filters.CreatedBy)
	}
	if filters.Status != nil {
		q = q.Where("status = ?", *filters.Status)
	}
	if filters.Search != nil && *filters.Search != "" {
		q = q.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(*filters.Search)+"%")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count certificate templates: %w", err)
	}

	column, ok := templateSortColumns[filters.Sort]
	if !ok {
		column = "name"
	}
	dir := "ASC"
	if strings.EqualFold(filters.Direction, "desc") {
		dir = "DESC"
	}

	var templates []Template
	err := q.Order(column + " " + dir).Order("id").
		Offset((filters.Page - 1) * filters.PageSize).
		Limit(filters.PageSize).
		Find(&templates).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list certificate templates: %w", err)
	}
	return templates, total, nil
}

func (r *gormRepository) TemplatesForCourse(ctx context.Context, courseID int64) ([]Template, error) {
	var templates []Template
	err := r.db.WithContext(ctx).
		Where("type = ? AND course_id = ?", TypeCourse, courseID).
		Order("name").
		Find(&templates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list course templates: %w", err)
	}
	return templates, nil
}

func (r *gormRepository) NameExists(ctx context.Context, name string, typ Type, courseID *int64, excludeID *uuid.UUID) (bool, error) {
	q := r.db.WithContext(ctx).Model(&Template{}).Where("name = ? AND type = ?", name, typ)
	if courseID == nil {
		q = q.Where("course_id IS NULL")
	} else {
		q = q.Where("course_id = ?", *courseID)
	}
	if excludeID != nil {
		q = q.Where("id <> ?", *excludeID)
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check template name: %w", err)
	}
	return count > 0, nil
}

func (r *gormRepository) DeleteTemplate(ctx context.Context, id uuid.UUID) (int64, error) {
	var detached int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Badge{}).Where("cert_id = ?", id).Update("cert_id", nil)
		if res.Error != nil {
			return fmt.Errorf("failed to detach badges: %w", res.Error)
		}
		detached = res.RowsAffected

		res = tx.Delete(&Template{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("failed to delete certificate template: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("certificate template %s: %w", id, ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return detached, nil
}

func (r *gormRepository) BackgroundKeys(ctx context.Context) ([]string, error) {
	var keys []string
	err := r.db.WithContext(ctx).Model(&Template{}).
		Where("background_key <> ''").
		Pluck("background_key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list background keys: %w", err)
	}
	return keys, nil
}

func (r *gormRepository) GetBadge(ctx context.Context, id int64) (*Badge, error) {
	var b Badge
	err := r.db.WithContext(ctx).First(&b, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("badge %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get badge: %w", err)
	}
	return &b, nil
}

func (r *gormRepository) AvailableBadges(ctx context.Context, courseID *int64) ([]Badge, error) {
	q := r.db.WithContext(ctx).
		Where("status IN ?", []int{BadgeStatusActive, BadgeStatusActiveLocked}).
		Where("cert_id IS NULL")
	if courseID == nil {
		q = q.Where("course_id IS NULL")
	} else {
		q = q.Where("course_id = ?", *courseID)
	}

	var badges []Badge
	if err := q.Order("name").Find(&badges).Error; err != nil {
		return nil, fmt.Errorf("failed to list available badges: %w", err)
	}
	return badges, nil
}

func (r *gormRepository) AssignedBadges(ctx context.Context, certID uuid.UUID) ([]Badge, error) {
	var badges []Badge
	err := r.db.WithContext(ctx).Where("cert_id = ?", certID).Order("name").Find(&badges).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list assigned badges: %w", err)
	}
	return badges, nil
}

func (r *gormRepository) SetBadgeTemplate(ctx context.Context, badgeID int64, certID *uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&Badge{}).Where("id = ?", badgeID).Update("cert_id", certID)
	if res.Error != nil {
		return fmt.Errorf("failed to link badge: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("badge %d: %w", badgeID, ErrNotFound)
	}
	return nil
}

func (r *gormRepository) UserCertificates(ctx context.Context, userID int64, filters *UserCertificateFilters) ([]UserCertificate, int64, error) {
	base := func() *gorm.DB {
		q := r.db.WithContext(ctx).Table("badge_issued AS bi").
			Joins("JOIN badges b ON b.id = bi.badge_id").
			Joins("JOIN badge_certificates c ON c.id = b.cert_id").
			Where("bi.user_id = ? AND c.status >= ?", userID, StatusActive)
		if filters.Search != nil && *filters.Search != "" {
			q = q.Where("LOWER(b.name) LIKE ?", "%"+strings.ToLower(*filters.Search)+"%")
		}
		if filters.Visible != nil {
			q = q.Where("bi.visible = ?", *filters.Visible)
		}
		if filters.CourseID != nil {
			q = q.Where("b.course_id = ?", *filters.CourseID)
		}
		return q
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count user certificates: %w", err)
	}

	var rows []UserCertificate
	err := base().
		Select("bi.unique_hash AS hash, b.id AS badge_id, b.name AS badge_name, b.course_id AS course_id, " +
			"c.id AS template_id, c.name AS template_name, bi.date_issued AS date_issued, bi.visible AS visible").
		Order("bi.date_issued DESC").Order("bi.id DESC").
		Offset((filters.Page - 1) * filters.PageSize).
		Limit(filters.PageSize).
		Scan(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list user certificates: %w", err)
	}
	return rows, total, nil
}

func (r *gormRepository) CreateIssueLog(ctx context.Context, entry *IssueLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create issue log: %w", err)
	}
	return nil
}

func (r *gormRepository) ListIssueLogs(ctx context.Context, templateID uuid.UUID) ([]IssueLog, error) {
	var logs []IssueLog
	err := r.db.WithContext(ctx).Where("template_id = ?", templateID).Order("created_at DESC").Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list issue logs: %w", err)
	}
	return logs, nil
}

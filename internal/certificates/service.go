package certificates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"badgecerts/badgecerts-backend/internal/tokens"
	"badgecerts/badgecerts-backend/pkg/pdf"
	"badgecerts/badgecerts-backend/pkg/storage"
	"badgecerts/badgecerts-backend/pkg/workflows"
)

// BackgroundPrefix is the blob key prefix of template backgrounds
const BackgroundPrefix = "backgrounds/"

// Settings tunes validation and rendering
type Settings struct {
	DateLayout         string
	Location           *time.Location
	PerPage            int
	MaxBackgroundBytes int64
	Preview            tokens.PreviewValues
}

// DefaultSettings returns the settings used when none are configured
func DefaultSettings() Settings {
	return Settings{
		DateLayout:         "02.01.2006",
		Location:           time.UTC,
		PerPage:            50,
		MaxBackgroundBytes: 262144,
		Preview:            tokens.DefaultPreviewValues(),
	}
}

// Service provides business logic for certificate templates
type Service struct {
	repo      Repository
	blobs     storage.BlobStore
	generator pdf.Generator
	host      HostData
	settings  Settings
	statuses  *workflows.StateMachine[Status]
	logger    *zap.Logger
	now       func() time.Time
	hash      func(creatorID int64, templateID string, now time.Time) string
}

// NewService creates a new certificates service
func NewService(repo Repository, blobs storage.BlobStore, generator pdf.Generator, host HostData, settings Settings, logger *zap.Logger) *Service {
	defaults := DefaultSettings()
	if settings.DateLayout == "" {
		settings.DateLayout = defaults.DateLayout
	}
	if settings.Location == nil {
		settings.Location = defaults.Location
	}
	if settings.PerPage <= 0 {
		settings.PerPage = defaults.PerPage
	}
	if settings.MaxBackgroundBytes <= 0 {
		settings.MaxBackgroundBytes = defaults.MaxBackgroundBytes
	}

	return &Service{
		repo:      repo,
		blobs:     blobs,
		generator: generator,
		host:      host,
		settings:  settings,
		statuses:  newStatusMachine(),
		logger:    logger,
		now:       time.Now,
		hash:      tokens.NewHash,
	}
}

// newStatusMachine allows activation and deactivation, locking of an active
// template and toggling between the locked states. Locking is one way.
func newStatusMachine() *workflows.StateMachine[Status] {
	return workflows.NewStateMachine(map[Status][]Status{
		StatusInactive:       {StatusActive},
		StatusActive:         {StatusInactive, StatusActiveLocked},
		StatusActiveLocked:   {StatusInactiveLocked},
		StatusInactiveLocked: {StatusActiveLocked},
	})
}

func backgroundKey(id uuid.UUID) string {
	return BackgroundPrefix + id.String() + "/" + uuid.NewString() + ".svg"
}

// =====================================================
// Template Operations
// =====================================================

// CreateTemplate validates and stores a new inactive template
func (s *Service) CreateTemplate(ctx context.Context, actorID int64, req *CreateTemplateRequest) (*Template, error) {
	if req.Format == "" {
		req.Format = pdf.FormatA4
	}
	if req.Orientation == "" {
		req.Orientation = pdf.OrientationPortrait
	}
	if req.Unit == "" {
		req.Unit = pdf.UnitMillimeter
	}

	verr := validateCreate(req, s.settings.MaxBackgroundBytes)
	if _, ok := verr.Fields["name"]; !ok && req.Type.Valid() {
		exists, err := s.repo.NameExists(ctx, req.Name, req.Type, req.CourseID, nil)
		if err != nil {
			return nil, err
		}
		if exists {
			verr.Add("name", "a certificate template with this name already exists")
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	now := s.now()
	template := &Template{
		ID:             uuid.New(),
		Name:           req.Name,
		Description:    req.Description,
		Official:       req.Official,
		BackgroundName: req.BackgroundName,
		Format:         req.Format,
		Orientation:    req.Orientation,
		Unit:           req.Unit,
		Status:         StatusInactive,
		IssuerName:     req.IssuerName,
		IssuerContact:  req.IssuerContact,
		Type:           req.Type,
		CourseID:       req.CourseID,
		BookingID:      req.BookingID,
		CreatedBy:      actorID,
		ModifiedBy:     actorID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	template.BackgroundKey = backgroundKey(template.ID)

	if err := s.blobs.Put(ctx, template.BackgroundKey, []byte(req.Background), "image/svg+xml"); err != nil {
		return nil, fmt.Errorf("failed to store background: %w", err)
	}
	s.checkPlaceholders(template.ID, req.Background)

	if err := s.repo.CreateTemplate(ctx, template); err != nil {
		if derr := s.blobs.Delete(ctx, template.BackgroundKey); derr != nil {
			s.logger.Warn("Failed to remove background of unsaved template",
				zap.String("key", template.BackgroundKey), zap.Error(derr))
		}
		return nil, err
	}

	s.logger.Info("Certificate template created",
		zap.String("template_id", template.ID.String()),
		zap.String("name", template.Name),
		zap.Int64("actor_id", actorID),
	)

	return template, nil
}

// GetTemplate retrieves a template by ID
func (s *Service) GetTemplate(ctx context.Context, id uuid.UUID) (*Template, error) {
	return s.repo.GetTemplate(ctx, id)
}

// UpdateTemplate applies the set fields of req. Locked templates reject
// every change, including ones that change nothing.
func (s *Service) UpdateTemplate(ctx context.Context, actorID int64, id uuid.UUID, req *UpdateTemplateRequest) (*Template, error) {
	template, err := s.repo.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if template.Status.IsLocked() {
		return nil, fmt.Errorf("certificate template %s: %w", id, ErrLocked)
	}

	verr := validateUpdate(req, s.settings.MaxBackgroundBytes)
	if req.Name != nil {
		if _, ok := verr.Fields["name"]; !ok {
			exists, err := s.repo.NameExists(ctx, *req.Name, template.Type, template.CourseID, &template.ID)
			if err != nil {
				return nil, err
			}
			if exists {
				verr.Add("name", "a certificate template with this name already exists")
			}
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	if req.Name != nil {
		template.Name = *req.Name
	}
	if req.Description != nil {
		template.Description = *req.Description
	}
	if req.Official != nil {
		template.Official = *req.Official
	}
	if req.Format != nil {
		template.Format = *req.Format
	}
	if req.Orientation != nil {
		template.Orientation = *req.Orientation
	}
	if req.Unit != nil {
		template.Unit = *req.Unit
	}
	if req.IssuerName != nil {
		template.IssuerName = *req.IssuerName
	}
	if req.IssuerContact != nil {
		template.IssuerContact = *req.IssuerContact
	}
	if req.BookingID != nil {
		if *req.BookingID <= 0 {
			template.BookingID = nil
		} else {
			template.BookingID = req.BookingID
		}
	}

	// a new background goes to a fresh key, the old blob is removed once the
	// row points at the new one
	var oldKey string
	if req.Background != nil {
		oldKey = template.BackgroundKey
		template.BackgroundKey = backgroundKey(template.ID)
		if req.BackgroundName != nil {
			template.BackgroundName = *req.BackgroundName
		}
		if err := s.blobs.Put(ctx, template.BackgroundKey, []byte(*req.Background), "image/svg+xml"); err != nil {
			return nil, fmt.Errorf("failed to store background: %w", err)
		}
		s.checkPlaceholders(template.ID, *req.Background)
	}

	template.ModifiedBy = actorID
	template.UpdatedAt = s.now()

	if err := s.repo.UpdateTemplate(ctx, template); err != nil {
		return nil, err
	}

	if oldKey != "" {
		if err := s.blobs.Delete(ctx, oldKey); err != nil {
			s.logger.Warn("Failed to remove replaced background", zap.String("key", oldKey), zap.Error(err))
		}
	}

	s.logger.Info("Certificate template updated",
		zap.String("template_id", id.String()),
		zap.Int64("actor_id", actorID),
	)

	return template, nil
}

// SetStatus moves a template to status. Setting the current status again
// changes nothing.
//
// Allowed moves are Inactive to Active, Active to Inactive or ActiveLocked,
// and between the two locked statuses. Everything else fails with
// ErrInvalidTransition: an inactive template cannot jump to InactiveLocked
// or ActiveLocked, and a locked template never returns to Inactive or Active.
func (s *Service) SetStatus(ctx context.Context, actorID int64, id uuid.UUID, status Status) (*Template, error) {
	if !s.statuses.Knows(status) {
		verr := &ValidationError{}
		verr.Add("status", "must be one of: 0, 1, 2, 3")
		return nil, verr
	}

	template, err := s.repo.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if template.Status == status {
		return template, nil
	}
	if !s.statuses.CanTransition(template.Status, status) {
		return nil, fmt.Errorf("%w: %s to %s, allowed: %s", ErrInvalidTransition,
			template.Status, status, joinStatuses(s.statuses.GetAllowedTransitions(template.Status)))
	}

	if status.IsActive() && !template.HasBackground() {
		s.logger.Warn("Activating certificate template without background",
			zap.String("template_id", id.String()))
	}

	previous := template.Status
	template.Status = status
	template.ModifiedBy = actorID
	template.UpdatedAt = s.now()
	if err := s.repo.UpdateTemplate(ctx, template); err != nil {
		return nil, err
	}

	s.logger.Info("Certificate template status changed",
		zap.String("template_id", id.String()),
		zap.Stringer("from", previous),
		zap.Stringer("to", status),
	)

	return template, nil
}

func joinStatuses(statuses []Status) string {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = st.String()
	}
	return strings.Join(names, ", ")
}

// checkPlaceholders warns about backgrounds that render the same for every
// recipient
func (s *Service) checkPlaceholders(id uuid.UUID, background string) {
	if len(tokens.Contains(background)) == 0 {
		s.logger.Warn("Certificate background contains no placeholders",
			zap.String("template_id", id.String()))
	}
}

// Activate makes a template available to recipients
func (s *Service) Activate(ctx context.Context, actorID int64, id uuid.UUID) (*Template, error) {
	template, err := s.repo.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	target := StatusActive
	if template.Status.IsLocked() {
		target = StatusActiveLocked
	}
	return s.SetStatus(ctx, actorID, id, target)
}

// Deactivate hides a template from recipients
func (s *Service) Deactivate(ctx context.Context, actorID int64, id uuid.UUID) (*Template, error) {
	template, err := s.repo.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	target := StatusInactive
	if template.Status.IsLocked() {
		target = StatusInactiveLocked
	}
	return s.SetStatus(ctx, actorID, id, target)
}

// DeleteTemplate purges the background and then detaches badges and removes
// the row in one transaction. A failed purge leaves everything untouched.
func (s *Service) DeleteTemplate(ctx context.Context, id uuid.UUID) error {
	template, err := s.repo.GetTemplate(ctx, id)
	if err != nil {
		return err
	}

	if template.HasBackground() {
		if err := s.blobs.Delete(ctx, template.BackgroundKey); err != nil {
			return fmt.Errorf("failed to purge background: %w", err)
		}
	}

	detached, err := s.repo.DeleteTemplate(ctx, id)
	if err != nil {
		return err
	}

	s.logger.Info("Certificate template deleted",
		zap.String("template_id", id.String()),
		zap.Int64("detached_badges", detached),
	)
	return nil
}

// ListTemplates returns a page of templates
func (s *Service) ListTemplates(ctx context.Context, filters *TemplateFilters) (*TemplateListResponse, error) {
	s.normalizePage(&filters.Page, &filters.PageSize)

	templates, total, err := s.repo.ListTemplates(ctx, filters)
	if err != nil {
		return nil, err
	}

	return &TemplateListResponse{
		Templates:  templates,
		TotalCount: total,
		Page:       filters.Page,
		PageSize:   filters.PageSize,
	}, nil
}

func (s *Service) normalizePage(page, pageSize *int) {
	if *page < 1 {
		*page = 1
	}
	if *pageSize < 1 {
		*pageSize = s.settings.PerPage
	}
	if *pageSize > 100 {
		*pageSize = 100
	}
}

// Background returns the raw svg of a template
func (s *Service) Background(ctx context.Context, id uuid.UUID) (*Template, []byte, error) {
	template, err := s.repo.GetTemplate(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.loadBackground(ctx, template)
	if err != nil {
		return template, nil, err
	}
	return template, data, nil
}

// loadBackground returns ErrMissingContent when nothing is stored
func (s *Service) loadBackground(ctx context.Context, template *Template) ([]byte, error) {
	if !template.HasBackground() {
		return nil, ErrMissingContent
	}
	data, err := s.blobs.Get(ctx, template.BackgroundKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrMissingContent
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load background: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrMissingContent
	}
	return data, nil
}

// =====================================================
// Badge Linking
// =====================================================

// AvailableBadges lists active badges of the scope without a template
func (s *Service) AvailableBadges(ctx context.Context, courseID *int64) ([]Badge, error) {
	return s.repo.AvailableBadges(ctx, courseID)
}

// AssignedBadges lists the badges linked to a template
func (s *Service) AssignedBadges(ctx context.Context, id uuid.UUID) ([]Badge, error) {
	if _, err := s.repo.GetTemplate(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.AssignedBadges(ctx, id)
}

// AssignBadge links a badge to a template
func (s *Service) AssignBadge(ctx context.Context, id uuid.UUID, badgeID int64) error {
	template, err := s.repo.GetTemplate(ctx, id)
	if err != nil {
		return err
	}
	badge, err := s.repo.GetBadge(ctx, badgeID)
	if err != nil {
		return err
	}

	verr := &ValidationError{}
	if badge.CertID != nil && *badge.CertID != id {
		verr.Add("badge_id", "badge is already linked to another certificate template")
	}
	if template.Type == TypeCourse && template.CourseID != nil &&
		(badge.CourseID == nil || *badge.CourseID != *template.CourseID) {
		verr.Add("badge_id", "badge does not belong to the template's course")
	}
	if err := verr.OrNil(); err != nil {
		return err
	}

	if err := s.repo.SetBadgeTemplate(ctx, badgeID, &id); err != nil {
		return err
	}
	s.logger.Info("Badge linked to certificate template",
		zap.String("template_id", id.String()), zap.Int64("badge_id", badgeID))
	return nil
}

// UnassignBadge removes the link between a badge and a template
func (s *Service) UnassignBadge(ctx context.Context, id uuid.UUID, badgeID int64) error {
	badge, err := s.repo.GetBadge(ctx, badgeID)
	if err != nil {
		return err
	}
	if badge.CertID == nil || *badge.CertID != id {
		return fmt.Errorf("badge %d on template %s: %w", badgeID, id, ErrNotFound)
	}

	if err := s.repo.SetBadgeTemplate(ctx, badgeID, nil); err != nil {
		return err
	}
	s.logger.Info("Badge unlinked from certificate template",
		zap.String("template_id", id.String()), zap.Int64("badge_id", badgeID))
	return nil
}

// UserCertificates lists the certificates a user can download, newest first
func (s *Service) UserCertificates(ctx context.Context, userID int64, filters *UserCertificateFilters) (*UserCertificateListResponse, error) {
	s.normalizePage(&filters.Page, &filters.PageSize)

	certs, total, err := s.repo.UserCertificates(ctx, userID, filters)
	if err != nil {
		return nil, err
	}

	return &UserCertificateListResponse{
		Certificates: certs,
		TotalCount:   total,
		Page:         filters.Page,
		PageSize:     filters.PageSize,
	}, nil
}

// IssueLogs lists the real renders of a template
func (s *Service) IssueLogs(ctx context.Context, id uuid.UUID) ([]IssueLog, error) {
	if _, err := s.repo.GetTemplate(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListIssueLogs(ctx, id)
}

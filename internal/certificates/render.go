package certificates

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"badgecerts/badgecerts-backend/internal/export"
	"badgecerts/badgecerts-backend/internal/tokens"
	"badgecerts/badgecerts-backend/pkg/pdf"
)

// page is the input for one rendered page
type page struct {
	ctx tokens.Context
}

// Preview renders one page with sample values
func (s *Service) Preview(ctx context.Context, actorID int64, id uuid.UUID) (*Rendered, error) {
	template, err := s.repo.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.localNow()
	hash := s.hash(template.CreatedBy, template.ID.String(), now)
	pctx := tokens.PreviewContext(s.settings.Preview, template.ID.String(), hash, now, s.settings.DateLayout)
	pctx.Issuer = tokens.Issuer{Name: template.IssuerName, Contact: template.IssuerContact}

	rendered, err := s.render(ctx, template, []page{{ctx: pctx}})
	if err != nil {
		return nil, err
	}
	rendered.Filename = "preview_" + fileName(template.Name)
	rendered.Disposition = DispositionInline

	s.logger.Debug("Certificate preview rendered",
		zap.String("template_id", id.String()),
		zap.Int64("actor_id", actorID),
	)
	return rendered, nil
}

// RenderIssued renders the certificate of one of the actor's own badges
func (s *Service) RenderIssued(ctx context.Context, actorID int64, hash string) (*Rendered, error) {
	assertion, err := s.host.Issuances.Assertion(ctx, hash)
	if err != nil {
		return nil, err
	}
	if assertion.UserID != actorID {
		return nil, fmt.Errorf("issuance %s: %w", hash, ErrForbidden)
	}

	badge, err := s.repo.GetBadge(ctx, assertion.BadgeID)
	if err != nil {
		return nil, err
	}
	if badge.CertID == nil {
		return nil, fmt.Errorf("certificate for badge %d: %w", badge.ID, ErrNotFound)
	}
	template, err := s.repo.GetTemplate(ctx, *badge.CertID)
	if err != nil {
		return nil, err
	}
	if !template.Status.IsActive() {
		return nil, fmt.Errorf("certificate template %s: %w", template.ID, ErrInactive)
	}

	return s.renderSingle(ctx, actorID, template, assertion)
}

// RenderForRecipient renders the certificate of one issuance of a template
// on behalf of a manager
func (s *Service) RenderForRecipient(ctx context.Context, actorID int64, id uuid.UUID, userID int64, hash string) (*Rendered, error) {
	template, err := s.repo.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	assertion, err := s.host.Issuances.Assertion(ctx, hash)
	if err != nil {
		return nil, err
	}
	if assertion.UserID != userID {
		return nil, fmt.Errorf("issuance %s for user %d: %w", hash, userID, ErrNotFound)
	}
	badge, err := s.repo.GetBadge(ctx, assertion.BadgeID)
	if err != nil {
		return nil, err
	}
	if badge.CertID == nil || *badge.CertID != template.ID {
		return nil, fmt.Errorf("issuance %s on template %s: %w", hash, id, ErrNotFound)
	}

	return s.renderSingle(ctx, actorID, template, assertion)
}

func (s *Service) renderSingle(ctx context.Context, actorID int64, template *Template, assertion *Assertion) (*Rendered, error) {
	now := s.localNow()
	pctx, err := s.recipientContext(ctx, template, assertion, now)
	if err != nil {
		return nil, err
	}

	rendered, err := s.render(ctx, template, []page{{ctx: pctx}})
	if err != nil {
		return nil, err
	}
	rendered.Filename = fileName(assertion.BadgeName)
	rendered.Disposition = DispositionInline

	s.recordIssue(ctx, template, actorID, ModeSingle, rendered, map[string]interface{}{
		"user_id": assertion.UserID,
		"hash":    assertion.Hash,
	})
	return rendered, nil
}

// RenderBulk renders one page per issued badge of the template into one
// document, in issuance order
func (s *Service) RenderBulk(ctx context.Context, actorID int64, id uuid.UUID) (*Rendered, error) {
	template, err := s.repo.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}

	issuances, err := s.host.Issuances.Issuances(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(issuances) == 0 {
		return nil, fmt.Errorf("certificate template %s: %w", id, ErrNoRecipients)
	}

	now := s.localNow()
	pages := make([]page, 0, len(issuances))
	recipients := make([]int64, 0, len(issuances))
	var badgeName string
	for _, issuance := range issuances {
		assertion, err := s.host.Issuances.Assertion(ctx, issuance.Hash)
		if err != nil {
			return nil, err
		}
		pctx, err := s.recipientContext(ctx, template, assertion, now)
		if err != nil {
			return nil, err
		}
		if badgeName == "" {
			badgeName = assertion.BadgeName
		}
		pages = append(pages, page{ctx: pctx})
		recipients = append(recipients, issuance.UserID)
	}

	rendered, err := s.render(ctx, template, pages)
	if err != nil {
		return nil, err
	}
	if badgeName == "" {
		badgeName = template.Name
	}
	rendered.Filename = fileName(badgeName)
	rendered.Disposition = DispositionAttachment

	s.recordIssue(ctx, template, actorID, ModeBulk, rendered, map[string]interface{}{
		"recipients": recipients,
	})

	s.logger.Info("Bulk certificates rendered",
		zap.String("template_id", id.String()),
		zap.Int("pages", rendered.Pages),
		zap.Int64("actor_id", actorID),
	)
	return rendered, nil
}

// render substitutes the background for every page and writes one PDF. A
// template without background yields blank pages.
func (s *Service) render(ctx context.Context, template *Template, pages []page) (*Rendered, error) {
	background, err := s.loadBackground(ctx, template)
	missing := errors.Is(err, ErrMissingContent)
	if err != nil && !missing {
		return nil, err
	}
	if missing {
		s.logger.Warn("Certificate template has no background, rendering blank pages",
			zap.String("template_id", template.ID.String()),
			zap.Error(ErrMissingContent),
		)
	}

	doc, err := s.generator.NewDocument(template.PageSetup(), template.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	text := string(background)
	for i, p := range pages {
		if missing {
			doc.AddBlankPage()
			continue
		}
		svg := tokens.Render(text, p.ctx)
		if err := doc.AddSVGPage([]byte(svg)); err != nil {
			switch {
			case errors.Is(err, pdf.ErrInvalidSVG):
				s.logger.Warn("Background could not be drawn, page left blank",
					zap.String("template_id", template.ID.String()),
					zap.Int("page", i+1),
					zap.Error(err),
				)
			case errors.Is(err, pdf.ErrPartialSVG):
				s.logger.Warn("Background drawn partially",
					zap.String("template_id", template.ID.String()),
					zap.Int("page", i+1),
					zap.Error(err),
				)
			default:
				return nil, err
			}
		}
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write document: %w", err)
	}

	return &Rendered{
		Pages:          doc.PageCount(),
		MissingContent: missing,
		Body:           buf.Bytes(),
	}, nil
}

// recordIssue locks an active template after a real render and logs the
// render. Failures are logged, the document is still delivered.
func (s *Service) recordIssue(ctx context.Context, template *Template, actorID int64, mode string, rendered *Rendered, details map[string]interface{}) {
	if template.Status == StatusActive {
		if _, err := s.SetStatus(ctx, actorID, template.ID, StatusActiveLocked); err != nil {
			s.logger.Error("Failed to lock certificate template", zap.String("template_id", template.ID.String()), zap.Error(err))
		}
	}

	details["missing_content"] = rendered.MissingContent
	raw, err := json.Marshal(details)
	if err != nil {
		s.logger.Error("Failed to encode issue details", zap.Error(err))
		raw = []byte("{}")
	}
	entry := &IssueLog{
		TemplateID: template.ID,
		Mode:       mode,
		ActorID:    actorID,
		Pages:      rendered.Pages,
		Details:    datatypes.JSON(raw),
		CreatedAt:  s.now(),
	}
	if err := s.repo.CreateIssueLog(ctx, entry); err != nil {
		s.logger.Error("Failed to record certificate issue", zap.String("template_id", template.ID.String()), zap.Error(err))
	}
}

// recipientContext gathers the token values of one issuance
func (s *Service) recipientContext(ctx context.Context, template *Template, assertion *Assertion, now time.Time) (tokens.Context, error) {
	recipient, err := s.host.Recipients.Recipient(ctx, assertion.UserID)
	if err != nil {
		return tokens.Context{}, err
	}

	course, err := s.courseName(ctx, template)
	if err != nil {
		return tokens.Context{}, err
	}

	booking, err := s.booking(ctx, template, assertion.UserID)
	if err != nil {
		return tokens.Context{}, err
	}

	var birthDate string
	if recipient.BirthDate != nil {
		birthDate = s.formatDate(*recipient.BirthDate)
	}

	return tokens.Context{
		Recipient: tokens.Recipient{
			FirstName:   recipient.FirstName,
			LastName:    recipient.LastName,
			Email:       recipient.Email(),
			BirthDate:   birthDate,
			Institution: recipient.Institution,
		},
		Issuer: tokens.Issuer{
			Name:    template.IssuerName,
			Contact: template.IssuerContact,
		},
		Badge: tokens.Badge{
			Name:        assertion.BadgeName,
			Description: assertion.BadgeDescription,
			Number:      strconv.FormatInt(assertion.BadgeID, 10),
			Course:      course,
			Hash:        assertion.Hash,
			DateIssued:  s.formatDate(assertion.IssuedAt),
		},
		Booking: booking,
		Now:     now,
		Hash:    s.hash(template.CreatedBy, template.ID.String(), now),
	}, nil
}

func (s *Service) courseName(ctx context.Context, template *Template) (string, error) {
	if template.CourseID == nil || s.host.Courses == nil {
		return "", nil
	}
	name, err := s.host.Courses.CourseName(ctx, *template.CourseID)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return name, err
}

// booking falls back to the not set sentinels field by field
func (s *Service) booking(ctx context.Context, template *Template, userID int64) (tokens.Booking, error) {
	result := tokens.NoBooking()
	if template.BookingID == nil || s.host.Bookings == nil {
		return result, nil
	}

	info, err := s.host.Bookings.Booking(ctx, *template.BookingID, userID)
	if err != nil {
		return result, err
	}
	if info == nil {
		return result, nil
	}

	if info.Title != "" {
		result.Title = info.Title
	}
	if info.Start != nil && !info.Start.IsZero() {
		result.StartDate = s.formatDate(*info.Start)
	}
	if info.End != nil && !info.End.IsZero() {
		result.EndDate = s.formatDate(*info.End)
	}
	if info.Duration != "" {
		result.Duration = info.Duration
	}
	return result, nil
}

func (s *Service) localNow() time.Time {
	return s.now().In(s.settings.Location)
}

func (s *Service) formatDate(t time.Time) string {
	return t.In(s.settings.Location).Format(s.settings.DateLayout)
}

// fileName turns a title into a download file name
func fileName(title string) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, strings.TrimSpace(title))
	if clean == "" {
		clean = "certificate"
	}
	return clean + ".pdf"
}

// =====================================================
// Export
// =====================================================

// ExportCourse returns one row of token values per issued badge across all
// templates of a course. Columns follow the token vocabulary.
func (s *Service) ExportCourse(ctx context.Context, courseID int64) (*export.Table, error) {
	templates, err := s.repo.TemplatesForCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	header := make([]string, len(tokens.Vocabulary))
	for i, tok := range tokens.Vocabulary {
		header[i] = strings.Trim(string(tok), "[]")
	}
	table := &export.Table{
		Name:   fmt.Sprintf("course-%d", courseID),
		Header: header,
	}

	now := s.localNow()
	for i := range templates {
		template := &templates[i]
		issuances, err := s.host.Issuances.Issuances(ctx, template.ID)
		if err != nil {
			return nil, err
		}
		for _, issuance := range issuances {
			assertion, err := s.host.Issuances.Assertion(ctx, issuance.Hash)
			if err != nil {
				return nil, err
			}
			pctx, err := s.recipientContext(ctx, template, assertion, now)
			if err != nil {
				return nil, err
			}
			table.Rows = append(table.Rows, pctx.Table().Row())
		}
	}

	s.logger.Info("Course certificates exported",
		zap.Int64("course_id", courseID),
		zap.Int("templates", len(templates)),
		zap.Int("rows", len(table.Rows)),
	)
	return table, nil
}

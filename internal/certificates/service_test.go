package certificates

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"badgecerts/badgecerts-backend/internal/tokens"
	"badgecerts/badgecerts-backend/pkg/pdf"
	"badgecerts/badgecerts-backend/pkg/storage"
)

// MockRepository is a mock implementation of the Repository interface
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateTemplate(ctx context.Context, t *Template) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockRepository) GetTemplate(ctx context.Context, id uuid.UUID) (*Template, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Template), args.Error(1)
}

func (m *MockRepository) UpdateTemplate(ctx context.Context, t *Template) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockRepository) ListTemplates(ctx context.Context, filters *TemplateFilters) ([]Template, int64, error) {
	args := m.Called(ctx, filters)
	return args.Get(0).([]Template), args.Get(1).(int64), args.Error(2)
}

func (m *MockRepository) TemplatesForCourse(ctx context.Context, courseID int64) ([]Template, error) {
	args := m.Called(ctx, courseID)
	return args.Get(0).([]Template), args.Error(1)
}

func (m *MockRepository) NameExists(ctx context.Context, name string, typ Type, courseID *int64, excludeID *uuid.UUID) (bool, error) {
	args := m.Called(ctx, name, typ, courseID, excludeID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) DeleteTemplate(ctx context.Context, id uuid.UUID) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) BackgroundKeys(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockRepository) GetBadge(ctx context.Context, id int64) (*Badge, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Badge), args.Error(1)
}

func (m *MockRepository) AvailableBadges(ctx context.Context, courseID *int64) ([]Badge, error) {
	args := m.Called(ctx, courseID)
	return args.Get(0).([]Badge), args.Error(1)
}

func (m *MockRepository) AssignedBadges(ctx context.Context, certID uuid.UUID) ([]Badge, error) {
	args := m.Called(ctx, certID)
	return args.Get(0).([]Badge), args.Error(1)
}

func (m *MockRepository) SetBadgeTemplate(ctx context.Context, badgeID int64, certID *uuid.UUID) error {
	args := m.Called(ctx, badgeID, certID)
	return args.Error(0)
}

func (m *MockRepository) UserCertificates(ctx context.Context, userID int64, filters *UserCertificateFilters) ([]UserCertificate, int64, error) {
	args := m.Called(ctx, userID, filters)
	return args.Get(0).([]UserCertificate), args.Get(1).(int64), args.Error(2)
}

func (m *MockRepository) CreateIssueLog(ctx context.Context, entry *IssueLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockRepository) ListIssueLogs(ctx context.Context, templateID uuid.UUID) ([]IssueLog, error) {
	args := m.Called(ctx, templateID)
	return args.Get(0).([]IssueLog), args.Error(1)
}

// memBlobs is an in-memory blob store that records deletes
type memBlobs struct {
	mu        sync.Mutex
	data      map[string][]byte
	deleted   []string
	deleteErr error
}

func newMemBlobs() *memBlobs {
	return &memBlobs{data: make(map[string][]byte)}
}

func (b *memBlobs) Put(ctx context.Context, key string, data []byte, contentType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = append([]byte(nil), data...)
	return nil
}

func (b *memBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return data, nil
}

func (b *memBlobs) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deleteErr != nil {
		return b.deleteErr
	}
	delete(b.data, key)
	b.deleted = append(b.deleted, key)
	return nil
}

func (b *memBlobs) List(ctx context.Context, prefix string) ([]storage.Object, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []storage.Object
	for key, data := range b.data {
		if strings.HasPrefix(key, prefix) {
			out = append(out, storage.Object{Key: key, Size: int64(len(data))})
		}
	}
	return out, nil
}

// recordingGenerator keeps the substituted svg of every page
type recordingGenerator struct {
	docs []*recordingDoc
	// pageErr is returned by every AddSVGPage call
	pageErr error
}

type recordingDoc struct {
	setup   pdf.PageSetup
	pages   []string
	pageErr error
}

const blankPage = "<blank>"

func (g *recordingGenerator) NewDocument(setup pdf.PageSetup, title string) (pdf.Document, error) {
	if err := setup.Validate(); err != nil {
		return nil, err
	}
	doc := &recordingDoc{setup: setup, pageErr: g.pageErr}
	g.docs = append(g.docs, doc)
	return doc, nil
}

func (d *recordingDoc) AddSVGPage(svg []byte) error {
	d.pages = append(d.pages, string(svg))
	return d.pageErr
}

func (d *recordingDoc) AddBlankPage() { d.pages = append(d.pages, blankPage) }

func (d *recordingDoc) PageCount() int {
	if len(d.pages) == 0 {
		return 1
	}
	return len(d.pages)
}

func (d *recordingDoc) Output(w io.Writer) error {
	_, err := io.WriteString(w, "%PDF-1.3 recorded")
	return err
}

func (g *recordingGenerator) lastPages(t *testing.T) []string {
	t.Helper()
	require.NotEmpty(t, g.docs)
	return g.docs[len(g.docs)-1].pages
}

type fakeIssuances struct {
	byTemplate map[uuid.UUID][]Issuance
	assertions map[string]*Assertion
}

func (f *fakeIssuances) Issuances(ctx context.Context, templateID uuid.UUID) ([]Issuance, error) {
	return f.byTemplate[templateID], nil
}

func (f *fakeIssuances) Assertion(ctx context.Context, hash string) (*Assertion, error) {
	a, ok := f.assertions[hash]
	if !ok {
		return nil, fmt.Errorf("issuance %s: %w", hash, ErrNotFound)
	}
	return a, nil
}

type fakeRecipients map[int64]*RecipientInfo

func (f fakeRecipients) Recipient(ctx context.Context, userID int64) (*RecipientInfo, error) {
	r, ok := f[userID]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	return r, nil
}

type fakeCourses map[int64]string

func (f fakeCourses) CourseName(ctx context.Context, courseID int64) (string, error) {
	name, ok := f[courseID]
	if !ok {
		return "", ErrNotFound
	}
	return name, nil
}

type fakeBookings map[int64]*BookingInfo

func (f fakeBookings) Booking(ctx context.Context, bookingID, userID int64) (*BookingInfo, error) {
	return f[userID], nil
}

type fixture struct {
	repo       *MockRepository
	blobs      *memBlobs
	generator  *recordingGenerator
	issuances  *fakeIssuances
	recipients fakeRecipients
	bookings   fakeBookings
	service    *Service
}

var fixedNow = time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)

func newFixture() *fixture {
	f := &fixture{
		repo:      new(MockRepository),
		blobs:     newMemBlobs(),
		generator: &recordingGenerator{},
		issuances: &fakeIssuances{
			byTemplate: make(map[uuid.UUID][]Issuance),
			assertions: make(map[string]*Assertion),
		},
		recipients: fakeRecipients{},
		bookings:   fakeBookings{},
	}
	host := HostData{
		Issuances:  f.issuances,
		Recipients: f.recipients,
		Courses:    fakeCourses{7: "Chemistry 101"},
		Bookings:   f.bookings,
	}
	f.service = NewService(f.repo, f.blobs, f.generator, host, DefaultSettings(), zap.NewNop())
	f.service.now = func() time.Time { return fixedNow }
	return f
}

// addTemplate stores a template and its background
func (f *fixture) addTemplate(status Status, background string) *Template {
	courseID := int64(7)
	template := &Template{
		ID:            uuid.New(),
		Name:          "Lab Safety",
		Description:   "Completed the lab safety course",
		Format:        pdf.FormatA4,
		Orientation:   pdf.OrientationLandscape,
		Unit:          pdf.UnitMillimeter,
		Status:        status,
		IssuerName:    "Faculty of Chemistry",
		IssuerContact: "chem@example.com",
		Type:          TypeCourse,
		CourseID:      &courseID,
		CreatedBy:     1,
		ModifiedBy:    1,
	}
	if background != "" {
		template.BackgroundKey = backgroundKey(template.ID)
		f.blobs.data[template.BackgroundKey] = []byte(background)
	}
	f.repo.On("GetTemplate", mock.Anything, template.ID).Return(template, nil)
	return template
}

// addIssuance links a badge of the template to a recipient
func (f *fixture) addIssuance(template *Template, badgeID, userID int64, firstName string) string {
	hash := fmt.Sprintf("hash-%d-%d", badgeID, userID)
	f.issuances.byTemplate[template.ID] = append(f.issuances.byTemplate[template.ID], Issuance{UserID: userID, Hash: hash, BadgeID: badgeID})
	f.issuances.assertions[hash] = &Assertion{
		Hash:             hash,
		BadgeID:          badgeID,
		BadgeName:        "Lab Safety Badge",
		BadgeDescription: "Handles chemicals safely",
		UserID:           userID,
		IssuedAt:         time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC),
	}
	f.recipients[userID] = &RecipientInfo{
		UserID:       userID,
		FirstName:    firstName,
		LastName:     "Novak",
		AccountEmail: strings.ToLower(firstName) + "@example.com",
	}
	certID := template.ID
	f.repo.On("GetBadge", mock.Anything, badgeID).Return(&Badge{ID: badgeID, Name: "Lab Safety Badge", Type: TypeCourse, CourseID: template.CourseID, Status: BadgeStatusActive, CertID: &certID}, nil).Maybe()
	return hash
}

func validCreateRequest() *CreateTemplateRequest {
	courseID := int64(7)
	return &CreateTemplateRequest{
		Name:        "Lab Safety",
		Description: "Completed the lab safety course",
		IssuerName:  "Faculty of Chemistry",
		Type:        TypeCourse,
		CourseID:    &courseID,
		Background:  `<svg xmlns="http://www.w3.org/2000/svg" width="297" height="210"><text>[[recipient-flname]]</text></svg>`,
	}
}

// =====================================================
// Template Operations
// =====================================================

func TestCreateTemplate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	req := validCreateRequest()

	f.repo.On("NameExists", ctx, req.Name, TypeCourse, req.CourseID, (*uuid.UUID)(nil)).Return(false, nil)
	f.repo.On("CreateTemplate", ctx, mock.AnythingOfType("*certificates.Template")).Return(nil)

	template, err := f.service.CreateTemplate(ctx, 42, req)

	require.NoError(t, err)
	assert.Equal(t, StatusInactive, template.Status)
	assert.Equal(t, pdf.FormatA4, template.Format)
	assert.Equal(t, pdf.OrientationPortrait, template.Orientation)
	assert.Equal(t, pdf.UnitMillimeter, template.Unit)
	assert.Equal(t, int64(42), template.CreatedBy)
	assert.True(t, strings.HasPrefix(template.BackgroundKey, BackgroundPrefix+template.ID.String()+"/"))
	assert.Equal(t, req.Background, string(f.blobs.data[template.BackgroundKey]))

	f.repo.AssertExpectations(t)
}

func TestCreateTemplateWarnsWithoutPlaceholders(t *testing.T) {
	f := newFixture()
	core, logs := observer.New(zap.WarnLevel)
	f.service.logger = zap.New(core)
	ctx := context.Background()
	req := validCreateRequest()
	req.Background = `<svg xmlns="http://www.w3.org/2000/svg"><text>Certificate</text></svg>`

	f.repo.On("NameExists", ctx, req.Name, TypeCourse, req.CourseID, (*uuid.UUID)(nil)).Return(false, nil)
	f.repo.On("CreateTemplate", ctx, mock.AnythingOfType("*certificates.Template")).Return(nil)

	template, err := f.service.CreateTemplate(ctx, 42, req)

	require.NoError(t, err)
	warned := logs.FilterMessage("Certificate background contains no placeholders")
	require.Equal(t, 1, warned.Len())
	assert.Equal(t, template.ID.String(), warned.All()[0].ContextMap()["template_id"])

	// a background with placeholders stays quiet
	background := validCreateRequest().Background
	f.repo.On("UpdateTemplate", ctx, template).Return(nil)
	f.repo.On("GetTemplate", ctx, template.ID).Return(template, nil)

	_, err = f.service.UpdateTemplate(ctx, 42, template.ID, &UpdateTemplateRequest{Background: &background})

	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("Certificate background contains no placeholders").Len())
}

func TestCreateTemplateDuplicateName(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	req := validCreateRequest()

	f.repo.On("NameExists", ctx, req.Name, TypeCourse, req.CourseID, (*uuid.UUID)(nil)).Return(true, nil)

	_, err := f.service.CreateTemplate(ctx, 42, req)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "name")
	assert.Empty(t, f.blobs.data)
	f.repo.AssertNotCalled(t, "CreateTemplate", mock.Anything, mock.Anything)
}

func TestCreateTemplateValidation(t *testing.T) {
	f := newFixture()
	req := &CreateTemplateRequest{
		Name:          "Lab Safety",
		Description:   "desc",
		IssuerName:    "Faculty",
		IssuerContact: "not-an-email",
		Type:          TypeCourse,
		Format:        "A9",
		Background:    "plain text",
	}
	f.repo.On("NameExists", mock.Anything, req.Name, TypeCourse, req.CourseID, (*uuid.UUID)(nil)).Return(false, nil)

	_, err := f.service.CreateTemplate(context.Background(), 42, req)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "course_id")
	assert.Contains(t, verr.Fields, "issuer_contact")
	assert.Contains(t, verr.Fields, "format")
	assert.Contains(t, verr.Fields, "background")
}

func TestCreateTemplateInsertFailureRemovesBackground(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	req := validCreateRequest()

	f.repo.On("NameExists", ctx, req.Name, TypeCourse, req.CourseID, (*uuid.UUID)(nil)).Return(false, nil)
	f.repo.On("CreateTemplate", ctx, mock.AnythingOfType("*certificates.Template")).Return(errors.New("db down"))

	_, err := f.service.CreateTemplate(ctx, 42, req)

	assert.Error(t, err)
	assert.Empty(t, f.blobs.data)
	assert.Len(t, f.blobs.deleted, 1)
}

func TestUpdateLockedTemplate(t *testing.T) {
	for _, status := range []Status{StatusInactiveLocked, StatusActiveLocked} {
		t.Run(status.String(), func(t *testing.T) {
			f := newFixture()
			template := f.addTemplate(status, "<svg/>")

			_, err := f.service.UpdateTemplate(context.Background(), 1, template.ID, &UpdateTemplateRequest{})

			assert.ErrorIs(t, err, ErrLocked)
			f.repo.AssertNotCalled(t, "UpdateTemplate", mock.Anything, mock.Anything)
		})
	}
}

func TestUpdateTemplateKeepsOwnName(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	template := f.addTemplate(StatusInactive, "<svg/>")
	name := template.Name
	description := "Updated description"

	f.repo.On("NameExists", ctx, name, TypeCourse, template.CourseID, &template.ID).Return(false, nil)
	f.repo.On("UpdateTemplate", ctx, template).Return(nil)

	updated, err := f.service.UpdateTemplate(ctx, 5, template.ID, &UpdateTemplateRequest{Name: &name, Description: &description})

	require.NoError(t, err)
	assert.Equal(t, description, updated.Description)
	assert.Equal(t, int64(5), updated.ModifiedBy)
	f.repo.AssertExpectations(t)
}

func TestUpdateTemplateNameTaken(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	template := f.addTemplate(StatusActive, "<svg/>")
	name := "Fire Safety"

	f.repo.On("NameExists", ctx, name, TypeCourse, template.CourseID, &template.ID).Return(true, nil)

	_, err := f.service.UpdateTemplate(ctx, 5, template.ID, &UpdateTemplateRequest{Name: &name})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "name")
}

func TestUpdateTemplateReplacesBackground(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	template := f.addTemplate(StatusInactive, "<svg>old</svg>")
	oldKey := template.BackgroundKey
	background := "<svg>new</svg>"

	f.repo.On("UpdateTemplate", ctx, template).Return(nil)

	updated, err := f.service.UpdateTemplate(ctx, 1, template.ID, &UpdateTemplateRequest{Background: &background})

	require.NoError(t, err)
	assert.NotEqual(t, oldKey, updated.BackgroundKey)
	assert.Equal(t, background, string(f.blobs.data[updated.BackgroundKey]))
	assert.NotContains(t, f.blobs.data, oldKey)
}

func TestSetStatusTransitions(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusInactive, StatusActive, true},
		{StatusActive, StatusInactive, true},
		{StatusActive, StatusActiveLocked, true},
		{StatusActiveLocked, StatusInactiveLocked, true},
		{StatusInactiveLocked, StatusActiveLocked, true},
		{StatusInactive, StatusActiveLocked, false},
		{StatusActiveLocked, StatusActive, false},
		{StatusInactiveLocked, StatusInactive, false},
		{StatusActiveLocked, StatusInactive, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"_to_"+tt.to.String(), func(t *testing.T) {
			f := newFixture()
			template := f.addTemplate(tt.from, "<svg/>")
			f.repo.On("UpdateTemplate", mock.Anything, template).Return(nil).Maybe()

			updated, err := f.service.SetStatus(context.Background(), 1, template.ID, tt.to)

			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, tt.to, updated.Status)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition)
				f.repo.AssertNotCalled(t, "UpdateTemplate", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestSetStatusRefusalNamesAllowedStatuses(t *testing.T) {
	f := newFixture()
	template := f.addTemplate(StatusInactive, "<svg/>")

	_, err := f.service.SetStatus(context.Background(), 1, template.ID, StatusInactiveLocked)

	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Contains(t, err.Error(), "inactive to inactive_locked, allowed: active")

	f = newFixture()
	template = f.addTemplate(StatusActive, "<svg/>")

	_, err = f.service.SetStatus(context.Background(), 1, template.ID, StatusInactiveLocked)

	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Contains(t, err.Error(), "allowed: inactive, active_locked")
}

func TestSetStatusSameStatusIsNoop(t *testing.T) {
	f := newFixture()
	template := f.addTemplate(StatusActiveLocked, "<svg/>")

	updated, err := f.service.SetStatus(context.Background(), 1, template.ID, StatusActiveLocked)

	require.NoError(t, err)
	assert.Equal(t, StatusActiveLocked, updated.Status)
	f.repo.AssertNotCalled(t, "UpdateTemplate", mock.Anything, mock.Anything)
}

func TestSetStatusInvalidValue(t *testing.T) {
	f := newFixture()

	_, err := f.service.SetStatus(context.Background(), 1, uuid.New(), Status(9))

	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestActivateKeepsLock(t *testing.T) {
	f := newFixture()
	template := f.addTemplate(StatusInactiveLocked, "<svg/>")
	f.repo.On("UpdateTemplate", mock.Anything, template).Return(nil)

	updated, err := f.service.Activate(context.Background(), 1, template.ID)

	require.NoError(t, err)
	assert.Equal(t, StatusActiveLocked, updated.Status)
}

func TestDeleteTemplate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	template := f.addTemplate(StatusActive, "<svg/>")
	key := template.BackgroundKey

	f.repo.On("DeleteTemplate", ctx, template.ID).Return(int64(2), nil)

	err := f.service.DeleteTemplate(ctx, template.ID)

	require.NoError(t, err)
	assert.Equal(t, []string{key}, f.blobs.deleted)
	f.repo.AssertExpectations(t)
}

func TestDeleteTemplateBlobFailureLeavesRow(t *testing.T) {
	f := newFixture()
	template := f.addTemplate(StatusActive, "<svg/>")
	f.blobs.deleteErr = errors.New("bucket unavailable")

	err := f.service.DeleteTemplate(context.Background(), template.ID)

	assert.Error(t, err)
	f.repo.AssertNotCalled(t, "DeleteTemplate", mock.Anything, mock.Anything)
}

func TestListTemplatesNormalizesPaging(t *testing.T) {
	f := newFixture()
	filters := &TemplateFilters{Page: 0, PageSize: 500}
	f.repo.On("ListTemplates", mock.Anything, filters).Return([]Template{}, int64(0), nil)

	resp, err := f.service.ListTemplates(context.Background(), filters)

	require.NoError(t, err)
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, 100, resp.PageSize)
}

// =====================================================
// Badge Linking
// =====================================================

func TestAssignBadgeLinkedElsewhere(t *testing.T) {
	f := newFixture()
	template := f.addTemplate(StatusActive, "<svg/>")
	other := uuid.New()
	f.repo.On("GetBadge", mock.Anything, int64(3)).Return(&Badge{ID: 3, Type: TypeCourse, CourseID: template.CourseID, CertID: &other}, nil)

	err := f.service.AssignBadge(context.Background(), template.ID, 3)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	f.repo.AssertNotCalled(t, "SetBadgeTemplate", mock.Anything, mock.Anything, mock.Anything)
}

func TestAssignBadgeOtherCourse(t *testing.T) {
	f := newFixture()
	template := f.addTemplate(StatusActive, "<svg/>")
	course := int64(8)
	f.repo.On("GetBadge", mock.Anything, int64(3)).Return(&Badge{ID: 3, Type: TypeCourse, CourseID: &course}, nil)

	err := f.service.AssignBadge(context.Background(), template.ID, 3)

	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestAssignAndUnassignBadge(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	template := f.addTemplate(StatusActive, "<svg/>")
	f.repo.On("GetBadge", ctx, int64(3)).Return(&Badge{ID: 3, Type: TypeCourse, CourseID: template.CourseID}, nil).Once()
	f.repo.On("SetBadgeTemplate", ctx, int64(3), &template.ID).Return(nil)

	require.NoError(t, f.service.AssignBadge(ctx, template.ID, 3))

	f.repo.On("GetBadge", ctx, int64(3)).Return(&Badge{ID: 3, Type: TypeCourse, CourseID: template.CourseID, CertID: &template.ID}, nil).Once()
	f.repo.On("SetBadgeTemplate", ctx, int64(3), (*uuid.UUID)(nil)).Return(nil)

	require.NoError(t, f.service.UnassignBadge(ctx, template.ID, 3))
	f.repo.AssertExpectations(t)
}

// =====================================================
// Rendering
// =====================================================

func TestPreviewUsesSampleValues(t *testing.T) {
	f := newFixture()
	template := f.addTemplate(StatusInactive, "<svg>[[recipient-flname]] [[issuer-name]] [[badge-number]] [[datetime-Y]]</svg>")

	rendered, err := f.service.Preview(context.Background(), 1, template.ID)

	require.NoError(t, err)
	assert.Equal(t, 1, rendered.Pages)
	assert.Equal(t, DispositionInline, rendered.Disposition)
	assert.Equal(t, "preview_Lab Safety.pdf", rendered.Filename)
	assert.Equal(t, []string{"<svg>John Doe Faculty of Chemistry " + template.ID.String() + " 2024</svg>"}, f.generator.lastPages(t))
	assert.Equal(t, pdf.OrientationLandscape, f.generator.docs[0].setup.Orientation)
	f.repo.AssertNotCalled(t, "CreateIssueLog", mock.Anything, mock.Anything)
}

func TestPreviewHashSeededWithCreator(t *testing.T) {
	f := newFixture()
	template := f.addTemplate(StatusInactive, "<svg>[[badge-hash]]</svg>")
	template.CreatedBy = 77

	var creators []int64
	f.service.hash = func(creatorID int64, templateID string, now time.Time) string {
		creators = append(creators, creatorID)
		assert.Equal(t, template.ID.String(), templateID)
		return "cafe"
	}

	_, err := f.service.Preview(context.Background(), 5, template.ID)

	require.NoError(t, err)
	assert.Equal(t, []int64{77}, creators)
	assert.Equal(t, []string{"<svg>cafe</svg>"}, f.generator.lastPages(t))
}

func TestPartiallyDrawnBackgroundStillRenders(t *testing.T) {
	f := newFixture()
	core, logs := observer.New(zap.WarnLevel)
	f.service.logger = zap.New(core)
	f.generator.pageErr = fmt.Errorf("%w: path \"M0 0 X\"", pdf.ErrPartialSVG)
	template := f.addTemplate(StatusInactive, "<svg><path d=\"M0 0 X\"/></svg>")

	rendered, err := f.service.Preview(context.Background(), 1, template.ID)

	require.NoError(t, err)
	assert.Equal(t, 1, rendered.Pages)
	assert.Equal(t, 1, logs.FilterMessage("Background drawn partially").Len())
}

func TestRenderFailsOnDocumentError(t *testing.T) {
	f := newFixture()
	f.generator.pageErr = errors.New("disk full")
	template := f.addTemplate(StatusInactive, "<svg/>")

	_, err := f.service.Preview(context.Background(), 1, template.ID)

	assert.EqualError(t, err, "disk full")
}

func TestRenderIssuedSubstitutesRecipient(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	template := f.addTemplate(StatusActive, "<svg>Hello [[recipient-fname]]</svg>")
	hash := f.addIssuance(template, 11, 100, "Ana")

	f.repo.On("UpdateTemplate", ctx, template).Return(nil)
	f.repo.On("CreateIssueLog", ctx, mock.AnythingOfType("*certificates.IssueLog")).Return(nil)

	rendered, err := f.service.RenderIssued(ctx, 100, hash)

	require.NoError(t, err)
	assert.Equal(t, []string{"<svg>Hello Ana</svg>"}, f.generator.lastPages(t))
	assert.Equal(t, "Lab Safety Badge.pdf", rendered.Filename)
	assert.Equal(t, `inline; filename="Lab Safety Badge.pdf"`, rendered.ContentDisposition())
	assert.True(t, bytes.HasPrefix(rendered.Body, []byte("%PDF")))
	assert.Equal(t, StatusActiveLocked, template.Status)

	entry := f.repo.Calls[len(f.repo.Calls)-1].Arguments.Get(1).(*IssueLog)
	assert.Equal(t, ModeSingle, entry.Mode)
	assert.Equal(t, template.ID, entry.TemplateID)
	assert.Equal(t, 1, entry.Pages)
}

func TestRenderIssuedOtherUser(t *testing.T) {
	f := newFixture()
	template := f.addTemplate(StatusActive, "<svg/>")
	hash := f.addIssuance(template, 11, 100, "Ana")

	_, err := f.service.RenderIssued(context.Background(), 200, hash)

	assert.ErrorIs(t, err, ErrForbidden)
}

func TestRenderIssuedInactiveTemplate(t *testing.T) {
	f := newFixture()
	template := f.addTemplate(StatusInactiveLocked, "<svg/>")
	hash := f.addIssuance(template, 11, 100, "Ana")

	_, err := f.service.RenderIssued(context.Background(), 100, hash)

	assert.ErrorIs(t, err, ErrInactive)
}

func TestRenderIssuedUnknownHash(t *testing.T) {
	f := newFixture()

	_, err := f.service.RenderIssued(context.Background(), 100, "nope")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRenderForRecipientWrongTemplate(t *testing.T) {
	f := newFixture()
	template := f.addTemplate(StatusActive, "<svg/>")
	other := f.addTemplate(StatusActive, "<svg/>")
	hash := f.addIssuance(template, 11, 100, "Ana")

	_, err := f.service.RenderForRecipient(context.Background(), 1, other.ID, 100, hash)

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRenderBulkOnePagePerRecipient(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	template := f.addTemplate(StatusActive, "<svg>[[recipient-fname]] [[recipient-email]] [[badge-course]]</svg>")
	f.addIssuance(template, 11, 100, "Ana")
	f.addIssuance(template, 11, 101, "Ben")
	f.addIssuance(template, 11, 102, "Cleo")

	f.repo.On("UpdateTemplate", ctx, template).Return(nil)
	f.repo.On("CreateIssueLog", ctx, mock.AnythingOfType("*certificates.IssueLog")).Return(nil)

	rendered, err := f.service.RenderBulk(ctx, 1, template.ID)

	require.NoError(t, err)
	assert.Equal(t, 3, rendered.Pages)
	assert.Equal(t, DispositionAttachment, rendered.Disposition)
	assert.Equal(t, []string{
		"<svg>Ana ana@example.com Chemistry 101</svg>",
		"<svg>Ben ben@example.com Chemistry 101</svg>",
		"<svg>Cleo cleo@example.com Chemistry 101</svg>",
	}, f.generator.lastPages(t))

	entry := f.repo.Calls[len(f.repo.Calls)-1].Arguments.Get(1).(*IssueLog)
	assert.Equal(t, ModeBulk, entry.Mode)
	assert.JSONEq(t, `{"recipients":[100,101,102],"missing_content":false}`, string(entry.Details))
}

func TestRenderBulkWithoutRecipients(t *testing.T) {
	f := newFixture()
	template := f.addTemplate(StatusActive, "<svg/>")

	_, err := f.service.RenderBulk(context.Background(), 1, template.ID)

	assert.ErrorIs(t, err, ErrNoRecipients)
}

func TestRenderWithoutBackgroundGivesBlankPages(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	template := f.addTemplate(StatusActiveLocked, "")
	f.addIssuance(template, 11, 100, "Ana")
	f.addIssuance(template, 11, 101, "Ben")

	f.repo.On("CreateIssueLog", ctx, mock.AnythingOfType("*certificates.IssueLog")).Return(nil)

	rendered, err := f.service.RenderBulk(ctx, 1, template.ID)

	require.NoError(t, err)
	assert.True(t, rendered.MissingContent)
	assert.Equal(t, 2, rendered.Pages)
	assert.Equal(t, []string{blankPage, blankPage}, f.generator.lastPages(t))
}

func TestRenderEscapesMarkup(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	template := f.addTemplate(StatusActiveLocked, "<svg><text>[[recipient-flname]]</text></svg>")
	hash := f.addIssuance(template, 11, 100, "Tom & <Jerry>")
	f.repo.On("CreateIssueLog", ctx, mock.Anything).Return(nil)

	_, err := f.service.RenderIssued(ctx, 100, hash)

	require.NoError(t, err)
	assert.Equal(t, []string{"<svg><text>Tom &amp; &lt;Jerry&gt; Novak</text></svg>"}, f.generator.lastPages(t))
}

func TestRenderBookingFallsBackPerField(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	template := f.addTemplate(StatusActiveLocked, "<svg>[[booking-title]]|[[booking-startdate]]|[[booking-enddate]]|[[booking-duration]]</svg>")
	bookingID := int64(4)
	template.BookingID = &bookingID
	start := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	hash := f.addIssuance(template, 11, 100, "Ana")
	f.bookings[100] = &BookingInfo{Title: "Spill Response", Start: &start, Duration: "4h"}
	f.repo.On("CreateIssueLog", ctx, mock.Anything).Return(nil)

	_, err := f.service.RenderIssued(ctx, 100, hash)

	require.NoError(t, err)
	assert.Equal(t, []string{"<svg>Spill Response|10.01.2024|" + tokens.DateNotDefined + "|4h</svg>"}, f.generator.lastPages(t))
}

func TestRenderWithoutBookingUsesSentinels(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	template := f.addTemplate(StatusActiveLocked, "<svg>[[booking-title]]|[[booking-duration]]|[[recipient-birthdate]]</svg>")
	hash := f.addIssuance(template, 11, 100, "Ana")
	f.repo.On("CreateIssueLog", ctx, mock.Anything).Return(nil)

	_, err := f.service.RenderIssued(ctx, 100, hash)

	require.NoError(t, err)
	assert.Equal(t, []string{"<svg>" + tokens.TitleNotSet + "|0|</svg>"}, f.generator.lastPages(t))
}

func TestExportCourse(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	template := f.addTemplate(StatusActive, "<svg/>")
	f.addIssuance(template, 11, 100, "Ana")
	f.addIssuance(template, 11, 101, "Ben")
	f.repo.On("TemplatesForCourse", ctx, int64(7)).Return([]Template{*template}, nil)

	table, err := f.service.ExportCourse(ctx, 7)

	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "recipient-fname", table.Header[0])
	assert.Len(t, table.Header, len(tokens.Vocabulary))
	assert.Equal(t, "Ana", table.Rows[0][0])
	assert.Equal(t, "Ben Novak", table.Rows[1][2])
	assert.Equal(t, "01.02.2024", table.Rows[1][len(table.Header)-1])
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "a_b.pdf", fileName("a/b"))
	assert.Equal(t, "certificate.pdf", fileName("  "))
}

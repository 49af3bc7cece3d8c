package certificates

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "certs.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Template{}, &Badge{}, &IssuedBadge{}, &IssueLog{}))
	return db
}

func seedTemplate(t *testing.T, repo Repository, name string, status Status, courseID *int64) *Template {
	t.Helper()
	typ := TypeSite
	if courseID != nil {
		typ = TypeCourse
	}
	template := &Template{
		Name:          name,
		Description:   "desc",
		BackgroundKey: BackgroundPrefix + name + ".svg",
		Format:        "A4",
		Orientation:   "P",
		Unit:          "mm",
		Status:        status,
		IssuerName:    "Issuer",
		Type:          typ,
		CourseID:      courseID,
		CreatedBy:     1,
		ModifiedBy:    1,
	}
	require.NoError(t, repo.CreateTemplate(context.Background(), template))
	return template
}

func TestRepositoryDeleteTemplateDetachesBadges(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormRepository(db)
	ctx := context.Background()

	template := seedTemplate(t, repo, "Safety", StatusActive, nil)
	other := seedTemplate(t, repo, "Other", StatusActive, nil)
	require.NoError(t, db.Create(&[]Badge{
		{ID: 1, Name: "A", Type: TypeSite, Status: BadgeStatusActive, CertID: &template.ID},
		{ID: 2, Name: "B", Type: TypeSite, Status: BadgeStatusActive, CertID: &template.ID},
		{ID: 3, Name: "C", Type: TypeSite, Status: BadgeStatusActive, CertID: &other.ID},
	}).Error)

	detached, err := repo.DeleteTemplate(ctx, template.ID)

	require.NoError(t, err)
	assert.Equal(t, int64(2), detached)

	_, err = repo.GetTemplate(ctx, template.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	for _, id := range []int64{1, 2} {
		badge, err := repo.GetBadge(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, badge.CertID)
	}
	badge, err := repo.GetBadge(ctx, 3)
	require.NoError(t, err)
	require.NotNil(t, badge.CertID)
	assert.Equal(t, other.ID, *badge.CertID)
}

func TestRepositoryDeleteMissingTemplate(t *testing.T) {
	repo := NewGormRepository(newTestDB(t))

	_, err := repo.DeleteTemplate(context.Background(), uuid.New())

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepositoryNameExistsIsScoped(t *testing.T) {
	repo := NewGormRepository(newTestDB(t))
	ctx := context.Background()
	course := int64(7)
	otherCourse := int64(8)
	template := seedTemplate(t, repo, "Safety", StatusInactive, &course)

	exists, err := repo.NameExists(ctx, "Safety", TypeCourse, &course, nil)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.NameExists(ctx, "Safety", TypeCourse, &course, &template.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = repo.NameExists(ctx, "Safety", TypeCourse, &otherCourse, nil)
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = repo.NameExists(ctx, "Safety", TypeSite, nil, nil)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRepositoryListTemplates(t *testing.T) {
	repo := NewGormRepository(newTestDB(t))
	ctx := context.Background()
	seedTemplate(t, repo, "Beta", StatusActive, nil)
	seedTemplate(t, repo, "Alpha", StatusInactive, nil)
	seedTemplate(t, repo, "Gamma", StatusActive, nil)

	templates, total, err := repo.ListTemplates(ctx, &TemplateFilters{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, templates, 2)
	assert.Equal(t, "Alpha", templates[0].Name)
	assert.Equal(t, "Beta", templates[1].Name)

	active := StatusActive
	search := "GAM"
	templates, total, err = repo.ListTemplates(ctx, &TemplateFilters{Status: &active, Search: &search, Sort: "name", Direction: "desc", Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, templates, 1)
	assert.Equal(t, "Gamma", templates[0].Name)
}

func TestRepositoryAvailableBadges(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormRepository(db)
	course := int64(7)
	template := seedTemplate(t, repo, "Safety", StatusActive, &course)
	require.NoError(t, db.Create(&[]Badge{
		{ID: 1, Name: "Free", Type: TypeCourse, CourseID: &course, Status: BadgeStatusActive},
		{ID: 2, Name: "Linked", Type: TypeCourse, CourseID: &course, Status: BadgeStatusActive, CertID: &template.ID},
		{ID: 3, Name: "Draft", Type: TypeCourse, CourseID: &course, Status: BadgeStatusInactive},
		{ID: 4, Name: "Site", Type: TypeSite, Status: BadgeStatusActiveLocked},
	}).Error)

	badges, err := repo.AvailableBadges(context.Background(), &course)
	require.NoError(t, err)
	require.Len(t, badges, 1)
	assert.Equal(t, int64(1), badges[0].ID)

	badges, err = repo.AvailableBadges(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, badges, 1)
	assert.Equal(t, int64(4), badges[0].ID)

	assigned, err := repo.AssignedBadges(context.Background(), template.ID)
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, int64(2), assigned[0].ID)
}

func TestRepositoryUserCertificates(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormRepository(db)
	ctx := context.Background()

	active := seedTemplate(t, repo, "Active", StatusActiveLocked, nil)
	inactive := seedTemplate(t, repo, "Hidden", StatusInactive, nil)
	require.NoError(t, db.Create(&[]Badge{
		{ID: 1, Name: "First", Type: TypeSite, Status: BadgeStatusActive, CertID: &active.ID},
		{ID: 2, Name: "Second", Type: TypeSite, Status: BadgeStatusActive, CertID: &active.ID},
		{ID: 3, Name: "Third", Type: TypeSite, Status: BadgeStatusActive, CertID: &inactive.ID},
		{ID: 4, Name: "Plain", Type: TypeSite, Status: BadgeStatusActive},
	}).Error)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&[]IssuedBadge{
		{BadgeID: 1, UserID: 10, UniqueHash: "h1", DateIssued: base, Visible: true},
		{BadgeID: 2, UserID: 10, UniqueHash: "h2", DateIssued: base.Add(24 * time.Hour)},
		{BadgeID: 3, UserID: 10, UniqueHash: "h3", DateIssued: base},
		{BadgeID: 4, UserID: 10, UniqueHash: "h4", DateIssued: base},
		{BadgeID: 1, UserID: 11, UniqueHash: "h5", DateIssued: base},
	}).Error)

	certs, total, err := repo.UserCertificates(ctx, 10, &UserCertificateFilters{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, certs, 2)
	assert.Equal(t, "h2", certs[0].Hash)
	assert.Equal(t, "h1", certs[1].Hash)
	assert.Equal(t, active.ID, certs[0].TemplateID)
	assert.Equal(t, "Second", certs[0].BadgeName)

	visible := true
	certs, total, err = repo.UserCertificates(ctx, 10, &UserCertificateFilters{Visible: &visible, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, certs, 1)
	assert.Equal(t, "h1", certs[0].Hash)
}

func TestRepositoryIssueLogsAndBackgroundKeys(t *testing.T) {
	repo := NewGormRepository(newTestDB(t))
	ctx := context.Background()
	template := seedTemplate(t, repo, "Safety", StatusActive, nil)

	require.NoError(t, repo.CreateIssueLog(ctx, &IssueLog{TemplateID: template.ID, Mode: ModeBulk, ActorID: 1, Pages: 3, Details: []byte(`{"recipients":[1,2,3]}`)}))

	logs, err := repo.ListIssueLogs(ctx, template.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 3, logs[0].Pages)
	assert.NotEqual(t, uuid.Nil, logs[0].ID)

	keys, err := repo.BackgroundKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{template.BackgroundKey}, keys)
}

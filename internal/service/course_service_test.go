package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucmas-ksa/portal-api/internal/models"
	appErrors "github.com/ucmas-ksa/portal-api/pkg/errors"
)

type mockCourseRepo struct {
	courses    map[string]*models.Course
	referenced map[string]bool
	created    *models.Course
	updated    *models.Course
	deleted    []string
}

func newMockCourseRepo() *mockCourseRepo {
	return &mockCourseRepo{
		courses:    make(map[string]*models.Course),
		referenced: make(map[string]bool),
	}
}

func (m *mockCourseRepo) List(_ context.Context, _ models.CourseFilter) ([]models.Course, int, error) {
	var out []models.Course
	for _, course := range m.courses {
		out = append(out, *course)
	}
	return out, len(out), nil
}

func (m *mockCourseRepo) FindByID(_ context.Context, id string) (*models.Course, error) {
	course, ok := m.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *course
	return &copied, nil
}

func (m *mockCourseRepo) Create(_ context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = "course-new"
	}
	m.created = course
	m.courses[course.ID] = course
	return nil
}

func (m *mockCourseRepo) Update(_ context.Context, course *models.Course) error {
	m.updated = course
	m.courses[course.ID] = course
	return nil
}

func (m *mockCourseRepo) HasEnrollments(_ context.Context, courseID string) (bool, error) {
	return m.referenced[courseID], nil
}

func (m *mockCourseRepo) Delete(_ context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.courses, id)
	return nil
}

func TestCourseServiceCreate(t *testing.T) {
	repo := newMockCourseRepo()
	svc := NewCourseService(repo, nil, nil)

	start := "2026-09-01"
	course, err := svc.Create(context.Background(), CourseRequest{
		Level:     3,
		Name:      "  Level 3  ",
		Fee:       "150.00",
		StartDate: &start,
	})
	require.NoError(t, err)
	assert.Equal(t, "Level 3", course.Name)
	assert.True(t, course.Active)
	assert.Equal(t, "150.00", course.Fee.StringFixed(2))
	require.NotNil(t, course.StartDate)
	assert.Equal(t, "2026-09-01", course.StartDate.Format("2006-01-02"))
	assert.Equal(t, course, repo.created)
}

func TestCourseServiceCreateRejectsNegativeFee(t *testing.T) {
	svc := NewCourseService(newMockCourseRepo(), nil, nil)

	_, err := svc.Create(context.Background(), CourseRequest{Level: 1, Name: "Level 1", Fee: "-10"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceCreateRejectsBadStartDate(t *testing.T) {
	svc := NewCourseService(newMockCourseRepo(), nil, nil)

	start := "01-09-2026"
	_, err := svc.Create(context.Background(), CourseRequest{Level: 1, Name: "Level 1", Fee: "100", StartDate: &start})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceUpdateCanDeactivate(t *testing.T) {
	repo := newMockCourseRepo()
	repo.courses["course-1"] = &models.Course{ID: "course-1", Level: 2, Name: "Level 2", Active: true}
	svc := NewCourseService(repo, nil, nil)

	inactive := false
	course, err := svc.Update(context.Background(), "course-1", CourseRequest{
		Level:  2,
		Name:   "Level 2",
		Fee:    "175.00",
		Active: &inactive,
	})
	require.NoError(t, err)
	assert.False(t, course.Active)
	assert.Equal(t, "175.00", course.Fee.StringFixed(2))
}

func TestCourseServiceUpdateUnknownCourse(t *testing.T) {
	svc := NewCourseService(newMockCourseRepo(), nil, nil)

	_, err := svc.Update(context.Background(), "missing", CourseRequest{Level: 1, Name: "Level 1", Fee: "100"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceDeleteRefusedWhenEnrolled(t *testing.T) {
	repo := newMockCourseRepo()
	repo.courses["course-1"] = &models.Course{ID: "course-1", Level: 2, Name: "Level 2"}
	repo.referenced["course-1"] = true
	svc := NewCourseService(repo, nil, nil)

	err := svc.Delete(context.Background(), "course-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)
}

func TestCourseServiceDeleteUnreferencedCourse(t *testing.T) {
	repo := newMockCourseRepo()
	repo.courses["course-1"] = &models.Course{ID: "course-1", Level: 2, Name: "Level 2"}
	svc := NewCourseService(repo, nil, nil)

	require.NoError(t, svc.Delete(context.Background(), "course-1"))
	assert.Equal(t, []string{"course-1"}, repo.deleted)
}

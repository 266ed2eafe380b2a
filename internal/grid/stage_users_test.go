package grid_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"dovakin0007.com/editorial-grid/internal/access"
	"dovakin0007.com/editorial-grid/internal/grid"
	"dovakin0007.com/editorial-grid/internal/models"
)

func stageContext(s *fakeStore) access.Context {
	return access.Context{Submission: s.submissions[1], Stage: models.StageExternalReview}
}

// Users A=100, C=102 and D=103 are assigned at external review, B=101 only
// at editing.
func seedAssignments(s *fakeStore) {
	s.assign(100, models.StageExternalReview, models.RoleSubEditor)
	s.assign(102, models.StageExternalReview, models.RoleAuthor)
	s.assign(101, models.StageEditing, models.RoleAssistant)
	s.assign(103, models.StageExternalReview, models.RoleAssistant)
	s.assign(100, models.StageExternalReview, models.RoleAssistant)
}

func TestStageUserOptions(t *testing.T) {
	s := newFakeStore()
	seedAssignments(s)
	users := grid.NewStageUsers(s, true, nil)

	options, err := users.Options(context.Background(), stageContext(s))
	require.NoError(t, err)
	require.Equal(t, map[int64]string{
		100: "Amina Okafor <amina@example.org>",
		102: "Chen Wei <chen@example.org>",
		103: "Dara Nolan <dara@example.org>",
	}, options)
	require.Equal(t, 1, s.storeCalls())
}

func TestStageUserListIsValidatedIntersection(t *testing.T) {
	s := newFakeStore()
	seedAssignments(s)
	users := grid.NewStageUsers(s, true, nil)

	selected, err := users.List(context.Background(), stageContext(s), []int64{103, 101, 100})
	require.NoError(t, err)
	ids := []int64{}
	for _, u := range selected {
		ids = append(ids, u.ID)
	}
	require.Equal(t, []int64{100, 103}, ids)
}

func TestStageUserListSpecExample(t *testing.T) {
	s := newFakeStore()
	seedAssignments(s)
	users := grid.NewStageUsers(s, true, nil)

	selected, err := users.List(context.Background(), stageContext(s), []int64{100, 101, 102})
	require.NoError(t, err)
	require.Len(t, selected, 2)
	require.Equal(t, int64(100), selected[0].ID)
	require.Equal(t, int64(102), selected[1].ID)
}

func TestStageUserListEmptyRequest(t *testing.T) {
	s := newFakeStore()
	seedAssignments(s)
	users := grid.NewStageUsers(s, true, nil)

	selected, err := users.List(context.Background(), stageContext(s), nil)
	require.NoError(t, err)
	require.Empty(t, selected)
}

func TestResolveExistingRow(t *testing.T) {
	s := newFakeStore()
	seedAssignments(s)
	users := grid.NewStageUsers(s, true, nil)

	resp, err := users.ResolveSelectedRow(context.Background(), stageContext(s), "102", "")
	require.NoError(t, err)
	require.Equal(t, grid.StatusOK, resp.Status)
	require.Equal(t, grid.UserRow{ID: 102, Name: "Chen Wei", Email: "chen@example.org", Label: "Chen Wei <chen@example.org>"}, resp.Row)

	resp, err = users.ResolveSelectedRow(context.Background(), stageContext(s), "101", "")
	require.NoError(t, err)
	require.Equal(t, grid.StatusNotFound, resp.Status)
}

func TestResolveNewRowStrict(t *testing.T) {
	s := newFakeStore()
	seedAssignments(s)
	users := grid.NewStageUsers(s, true, nil)

	resp, err := users.ResolveSelectedRow(context.Background(), stageContext(s), "", "103")
	require.NoError(t, err)
	require.Equal(t, grid.StatusOK, resp.Status)

	resp, err = users.ResolveSelectedRow(context.Background(), stageContext(s), "", "101")
	require.NoError(t, err)
	require.Equal(t, grid.StatusNotFound, resp.Status)
	require.Zero(t, s.calls["GetUser"])
}

func TestResolveNewRowPermissive(t *testing.T) {
	s := newFakeStore()
	seedAssignments(s)
	users := grid.NewStageUsers(s, false, nil)

	resp, err := users.ResolveSelectedRow(context.Background(), stageContext(s), "", "101")
	require.NoError(t, err)
	require.Equal(t, grid.StatusOK, resp.Status)
	require.Equal(t, 1, s.calls["GetUser"])
	require.Zero(t, s.calls["ListStageUsers"])

	resp, err = users.ResolveSelectedRow(context.Background(), stageContext(s), "", "999")
	require.NoError(t, err)
	require.Equal(t, grid.StatusNotFound, resp.Status)
}

func TestResolveRowRejectsMalformedIDs(t *testing.T) {
	s := newFakeStore()
	users := grid.NewStageUsers(s, true, nil)

	resp, err := users.ResolveSelectedRow(context.Background(), stageContext(s), "", "abc")
	require.NoError(t, err)
	require.Equal(t, grid.StatusInvalid, resp.Status)
	require.Contains(t, resp.Errors, "newRowId")

	resp, err = users.ResolveSelectedRow(context.Background(), stageContext(s), "-4", "")
	require.NoError(t, err)
	require.Equal(t, grid.StatusInvalid, resp.Status)
	require.Contains(t, resp.Errors, "rowId")
	require.Zero(t, s.storeCalls())
}

func TestStageUsersPropagateStoreFailure(t *testing.T) {
	s := newFakeStore()
	s.failWith = errors.New("timeout")
	users := grid.NewStageUsers(s, true, nil)

	_, err := users.Options(context.Background(), stageContext(s))
	require.ErrorContains(t, err, "timeout")
}

func TestListbuilderConfiguration(t *testing.T) {
	users := grid.NewStageUsers(newFakeStore(), true, nil)
	require.Equal(t, grid.Listbuilder{SourceType: "select", SaveType: "external", SaveFieldName: "users"}, users.Listbuilder())
}

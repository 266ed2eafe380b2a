package grid_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dovakin0007.com/editorial-grid/internal/access"
	"dovakin0007.com/editorial-grid/internal/grid"
	"dovakin0007.com/editorial-grid/internal/models"
)

func queryContext(s *fakeStore, queryID int64) access.Context {
	q := s.queries[queryID]
	return access.Context{
		Submission: s.submissions[1],
		Query:      &q,
		Stage:      models.StageExternalReview,
	}
}

func rowIDs(page *grid.NotesPage) []int64 {
	ids := make([]int64, 0, len(page.Rows))
	for _, r := range page.Rows {
		ids = append(ids, r.ID)
	}
	return ids
}

// Query 7 holds N1 (order 1), N3 (order 2) and N2 (order 3).
func seedThread(s *fakeStore) {
	s.addNote(1, 1, 7, 100, "first")
	s.addNote(3, 2, 7, 101, "second")
	s.addNote(2, 3, 7, 100, "third")
	s.addNote(4, 1, 8, 102, "other thread")
}

func TestListNotesInNoteOrder(t *testing.T) {
	s := newFakeStore()
	seedThread(s)
	notes := grid.NewQueryNotes(s, nil)

	page, err := notes.List(context.Background(), queryContext(s, 7))
	require.NoError(t, err)
	require.Equal(t, []int64{1, 3, 2}, rowIDs(page))
	require.Equal(t, "Amina Okafor", page.Rows[0].From)
	require.Equal(t, map[string]int64{"submissionId": 1, "stageId": 3, "queryId": 7}, page.RequestArgs)
	require.Equal(t, 1, s.calls["ListQueryNotes"])
}

type leakyStore struct {
	*fakeStore
}

func (l leakyStore) ListQueryNotes(ctx context.Context, queryID int64) ([]models.Note, error) {
	return []models.Note{
		{ID: 5, Seq: 2, AssocType: models.AssocQuery, AssocID: queryID, Contents: "mine"},
		{ID: 6, Seq: 1, AssocType: models.AssocQuery, AssocID: queryID + 1, Contents: "foreign"},
		{ID: 9, Seq: 1, AssocType: models.AssocSubmission, AssocID: queryID, Contents: "wrong type"},
	}, nil
}

func TestListNotesNeverLeaksOtherThreads(t *testing.T) {
	s := newFakeStore()
	notes := grid.NewQueryNotes(leakyStore{s}, nil)

	page, err := notes.List(context.Background(), queryContext(s, 7))
	require.NoError(t, err)
	require.Equal(t, []int64{5}, rowIDs(page))
}

func TestListNotesRequiresQuery(t *testing.T) {
	s := newFakeStore()
	notes := grid.NewQueryNotes(s, nil)

	_, err := notes.List(context.Background(), access.Context{Submission: s.submissions[1]})
	require.Error(t, err)
	require.Zero(t, s.storeCalls())
}

func TestDeleteNoteThenList(t *testing.T) {
	s := newFakeStore()
	seedThread(s)
	notes := grid.NewQueryNotes(s, nil)
	actx := queryContext(s, 7)

	resp, err := notes.Delete(context.Background(), actx, 3)
	require.NoError(t, err)
	require.Equal(t, grid.StatusChanged, resp.Status)
	require.Equal(t, int64(3), resp.ElementID)

	page, err := notes.List(context.Background(), actx)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, rowIDs(page))
}

func TestDeleteNoteOfAnotherQueryIsNotFound(t *testing.T) {
	s := newFakeStore()
	seedThread(s)
	notes := grid.NewQueryNotes(s, nil)

	resp, err := notes.Delete(context.Background(), queryContext(s, 7), 4)
	require.NoError(t, err)
	require.Equal(t, grid.StatusNotFound, resp.Status)
	require.Zero(t, resp.ElementID)
	require.Zero(t, s.calls["DeleteNote"])
	require.Contains(t, s.notes, int64(4))
}

func TestDeleteNoteWithWrongAssocTypeIsNotFound(t *testing.T) {
	s := newFakeStore()
	s.notes[11] = models.Note{ID: 11, Seq: 1, AssocType: models.AssocSubmission, AssocID: 7, Contents: "x"}
	notes := grid.NewQueryNotes(s, nil)

	resp, err := notes.Delete(context.Background(), queryContext(s, 7), 11)
	require.NoError(t, err)
	require.Equal(t, grid.StatusNotFound, resp.Status)
	require.Zero(t, s.calls["DeleteNote"])
}

func TestDeleteMissingNote(t *testing.T) {
	s := newFakeStore()
	notes := grid.NewQueryNotes(s, nil)

	resp, err := notes.Delete(context.Background(), queryContext(s, 7), 404)
	require.NoError(t, err)
	require.Equal(t, grid.StatusNotFound, resp.Status)
	require.Zero(t, s.calls["DeleteNote"])
}

func TestInsertNoteThenListShowsItLast(t *testing.T) {
	s := newFakeStore()
	seedThread(s)
	notes := grid.NewQueryNotes(s, nil)
	actx := queryContext(s, 7)
	actor := access.Actor{UserID: 101, Roles: []models.Role{models.RoleAuthor}}

	resp, err := notes.Insert(context.Background(), actx, actor, grid.NoteForm{Title: " Re: ", Contents: "  a reply  "})
	require.NoError(t, err)
	require.Equal(t, grid.StatusChanged, resp.Status)
	require.NotZero(t, resp.ElementID)

	created := s.notes[resp.ElementID]
	assert.Equal(t, models.AssocQuery, created.AssocType)
	assert.Equal(t, int64(7), created.AssocID)
	assert.Equal(t, int64(101), created.UserID)
	assert.Equal(t, "a reply", created.Contents)
	require.NotNil(t, created.Title)
	assert.Equal(t, "Re:", *created.Title)

	page, err := notes.List(context.Background(), actx)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 3, 2, resp.ElementID}, rowIDs(page))
}

func TestInsertNoteValidation(t *testing.T) {
	cases := []struct {
		name  string
		form  grid.NoteForm
		field string
		msg   string
	}{
		{"empty contents", grid.NoteForm{}, "contents", "is required"},
		{"blank contents", grid.NoteForm{Contents: " \n\t "}, "contents", "is required"},
		{"long title", grid.NoteForm{Title: strings.Repeat("t", 256), Contents: "ok"}, "title", "must be at most 255 characters"},
		{"nul in contents", grid.NoteForm{Contents: "a\x00b"}, "contents", "invalid characters"},
		{"invalid utf8 contents", grid.NoteForm{Contents: "bad \xff\xfe bytes"}, "contents", "invalid characters"},
		{"nul in title", grid.NoteForm{Title: "re\x00", Contents: "ok"}, "title", "invalid characters"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newFakeStore()
			notes := grid.NewQueryNotes(s, nil)

			resp, err := notes.Insert(context.Background(), queryContext(s, 7), access.Actor{UserID: 100}, tc.form)
			require.NoError(t, err)
			require.Equal(t, grid.StatusInvalid, resp.Status)
			require.Equal(t, tc.msg, resp.Errors[tc.field])
			require.IsType(t, grid.NoteForm{}, resp.Input)
			require.Zero(t, s.calls["CreateNote"])
		})
	}
}

func TestInsertNotePropagatesStoreFailure(t *testing.T) {
	s := newFakeStore()
	s.failWith = errors.New("disk full")
	notes := grid.NewQueryNotes(s, nil)

	_, err := notes.Insert(context.Background(), queryContext(s, 7), access.Actor{UserID: 100}, grid.NoteForm{Contents: "hello"})
	require.ErrorContains(t, err, "disk full")
}

func TestFetchNoteRow(t *testing.T) {
	s := newFakeStore()
	seedThread(s)
	notes := grid.NewQueryNotes(s, nil)

	resp, err := notes.FetchRow(context.Background(), queryContext(s, 7), 3)
	require.NoError(t, err)
	require.Equal(t, grid.StatusOK, resp.Status)
	row, ok := resp.Row.(grid.NoteRow)
	require.True(t, ok)
	require.Equal(t, "second", row.Contents)

	resp, err = notes.FetchRow(context.Background(), queryContext(s, 8), 3)
	require.NoError(t, err)
	require.Equal(t, grid.StatusNotFound, resp.Status)
}

package grid_test

import (
	"context"
	"time"

	"dovakin0007.com/editorial-grid/internal/models"
)

// fakeStore backs every collaborator of the grids in memory and counts the
// calls it receives.
type fakeStore struct {
	submissions map[int64]models.Submission
	queries     map[int64]models.Query
	notes       map[int64]models.Note
	users       map[int64]models.User
	assignments []models.UserStageAssignment
	managers    map[int64]bool

	nextNoteID int64
	nextSeq    int64
	failWith   error

	calls     map[string]int
	roleCalls int
}

func newFakeStore() *fakeStore {
	s := &fakeStore{
		submissions: map[int64]models.Submission{
			1: {ID: 1, ContextID: 1, Title: "On Grids", StageID: models.StageExternalReview},
		},
		queries: map[int64]models.Query{
			7: {ID: 7, AssocType: models.AssocSubmission, AssocID: 1, StageID: models.StageExternalReview, Seq: 1},
			8: {ID: 8, AssocType: models.AssocSubmission, AssocID: 1, StageID: models.StageExternalReview, Seq: 2},
		},
		notes: map[int64]models.Note{},
		users: map[int64]models.User{
			100: {ID: 100, Username: "amina", GivenName: "Amina", FamilyName: "Okafor", Email: "amina@example.org"},
			101: {ID: 101, Username: "bo", GivenName: "Bo", FamilyName: "Lindqvist", Email: "bo@example.org"},
			102: {ID: 102, Username: "chen", GivenName: "Chen", FamilyName: "Wei", Email: "chen@example.org"},
			103: {ID: 103, Username: "dara", GivenName: "Dara", FamilyName: "Nolan", Email: "dara@example.org"},
		},
		managers:   map[int64]bool{},
		nextNoteID: 100,
		nextSeq:    100,
		calls:      map[string]int{},
	}
	return s
}

func (s *fakeStore) addNote(id, seq, queryID, userID int64, contents string) {
	s.notes[id] = models.Note{
		ID:          id,
		Seq:         seq,
		AssocType:   models.AssocQuery,
		AssocID:     queryID,
		UserID:      userID,
		Contents:    contents,
		DateCreated: time.Date(2024, 3, 1, 10, 0, int(seq), 0, time.UTC),
	}
}

func (s *fakeStore) assign(userID int64, stage models.WorkflowStage, role models.Role) {
	s.assignments = append(s.assignments, models.UserStageAssignment{
		ID:           int64(len(s.assignments) + 1),
		SubmissionID: 1,
		StageID:      stage,
		UserID:       userID,
		Role:         role,
	})
}

func (s *fakeStore) storeCalls() int {
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

func (s *fakeStore) GetSubmission(ctx context.Context, id int64) (*models.Submission, error) {
	s.calls["GetSubmission"]++
	sub, ok := s.submissions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &sub, nil
}

func (s *fakeStore) GetQuery(ctx context.Context, id int64) (*models.Query, error) {
	s.calls["GetQuery"]++
	q, ok := s.queries[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &q, nil
}

func (s *fakeStore) ListQueryNotes(ctx context.Context, queryID int64) ([]models.Note, error) {
	s.calls["ListQueryNotes"]++
	if s.failWith != nil {
		return nil, s.failWith
	}
	out := []models.Note{}
	for _, n := range s.notes {
		if n.AssocType == models.AssocQuery && n.AssocID == queryID {
			if u, ok := s.users[n.UserID]; ok {
				n.Author = &u
			}
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *fakeStore) GetNote(ctx context.Context, id int64) (*models.Note, error) {
	s.calls["GetNote"]++
	n, ok := s.notes[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &n, nil
}

func (s *fakeStore) CreateNote(ctx context.Context, in models.CreateNoteInput) (*models.Note, error) {
	s.calls["CreateNote"]++
	if s.failWith != nil {
		return nil, s.failWith
	}
	s.nextNoteID++
	s.nextSeq++
	n := models.Note{
		ID:          s.nextNoteID,
		Seq:         s.nextSeq,
		AssocType:   in.AssocType,
		AssocID:     in.AssocID,
		UserID:      in.UserID,
		Title:       in.Title,
		Contents:    in.Contents,
		DateCreated: time.Now().UTC(),
	}
	s.notes[n.ID] = n
	return &n, nil
}

func (s *fakeStore) DeleteNote(ctx context.Context, id int64) (bool, error) {
	s.calls["DeleteNote"]++
	if _, ok := s.notes[id]; !ok {
		return false, nil
	}
	delete(s.notes, id)
	return true, nil
}

func (s *fakeStore) ListStageUsers(ctx context.Context, submissionID int64, stage models.WorkflowStage) ([]models.User, error) {
	s.calls["ListStageUsers"]++
	if s.failWith != nil {
		return nil, s.failWith
	}
	out := []models.User{}
	for _, a := range s.assignments {
		if a.SubmissionID == submissionID && a.StageID == stage {
			out = append(out, s.users[a.UserID])
		}
	}
	return out, nil
}

func (s *fakeStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	s.calls["GetUser"]++
	u, ok := s.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &u, nil
}

func (s *fakeStore) ActorRoles(ctx context.Context, userID, submissionID int64, stage models.WorkflowStage) ([]models.Role, error) {
	s.roleCalls++
	var roles []models.Role
	if s.managers[userID] {
		roles = append(roles, models.RoleManager)
	}
	for _, a := range s.assignments {
		if a.UserID == userID && a.SubmissionID == submissionID && a.StageID == stage {
			roles = append(roles, a.Role)
		}
	}
	return roles, nil
}

package grid

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"dovakin0007.com/editorial-grid/internal/access"
	"dovakin0007.com/editorial-grid/internal/models"
)

type StageUserStore interface {
	ListStageUsers(ctx context.Context, submissionID int64, stage models.WorkflowStage) ([]models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

// Listbuilder describes how the client widget sources and saves its rows.
type Listbuilder struct {
	SourceType    string `json:"sourceType"`
	SaveType      string `json:"saveType"`
	SaveFieldName string `json:"saveFieldName"`
}

var stageUsersListbuilder = Listbuilder{
	SourceType:    "select",
	SaveType:      "external",
	SaveFieldName: "users",
}

type UserRow struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Label string `json:"label"`
}

func NewUserRow(u models.User) UserRow {
	return UserRow{ID: u.ID, Name: u.FullName(), Email: u.Email, Label: u.Label()}
}

// StageUsers is the list-builder of participants assigned to a submission stage.
type StageUsers struct {
	store         StageUserStore
	strictNewRows bool
	logger        *logrus.Entry
}

// NewStageUsers builds the list-builder. With strictNewRows a newly added row
// must name a user assigned to the stage; otherwise any existing user resolves.
func NewStageUsers(store StageUserStore, strictNewRows bool, logger *logrus.Entry) *StageUsers {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &StageUsers{
		store:         store,
		strictNewRows: strictNewRows,
		logger:        logger.WithField("component", "grid.stage_users"),
	}
}

func (l *StageUsers) Listbuilder() Listbuilder {
	return stageUsersListbuilder
}

// Options labels every user assigned to the context stage.
func (l *StageUsers) Options(ctx context.Context, actx access.Context) (map[int64]string, error) {
	users, err := l.assigned(ctx, actx)
	if err != nil {
		return nil, err
	}
	options := make(map[int64]string, len(users))
	for _, u := range users {
		options[u.ID] = u.Label()
	}
	return options, nil
}

// List keeps the requested ids that are assigned to the context stage, in
// assignment order.
func (l *StageUsers) List(ctx context.Context, actx access.Context, requested []int64) ([]models.User, error) {
	users, err := l.assigned(ctx, actx)
	if err != nil {
		return nil, err
	}
	wanted := make(map[int64]struct{}, len(requested))
	for _, id := range requested {
		wanted[id] = struct{}{}
	}
	selected := make([]models.User, 0, len(requested))
	for _, u := range users {
		if _, ok := wanted[u.ID]; ok {
			selected = append(selected, u)
		}
	}
	return selected, nil
}

// ResolveSelectedRow resolves an existing row by rowID or, when rowID is
// empty, a freshly picked user named by newRowID.
func (l *StageUsers) ResolveSelectedRow(ctx context.Context, actx access.Context, rowID, newRowID string) (*Response, error) {
	if strings.TrimSpace(rowID) != "" {
		id, err := parseRowID(rowID)
		if err != nil {
			return record("fetch_stage_user", invalid(rowID, map[string]string{"rowId": err.Error()})), nil
		}
		return l.resolveAssigned(ctx, actx, id)
	}

	id, err := parseRowID(newRowID)
	if err != nil {
		return record("fetch_stage_user", invalid(newRowID, map[string]string{"newRowId": err.Error()})), nil
	}
	if l.strictNewRows {
		return l.resolveAssigned(ctx, actx, id)
	}

	user, err := l.store.GetUser(ctx, id)
	if errors.Is(err, models.ErrNotFound) || (err == nil && user == nil) {
		return record("fetch_stage_user", notFound()), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get user %d", id)
	}
	l.logger.WithContext(ctx).WithFields(logrus.Fields{
		"submission_id": actx.Submission.ID,
		"stage":         actx.Stage,
		"user_id":       id,
	}).Debug("resolved new row without stage check")
	return record("fetch_stage_user", rowFound(NewUserRow(*user))), nil
}

func (l *StageUsers) resolveAssigned(ctx context.Context, actx access.Context, id int64) (*Response, error) {
	users, err := l.assigned(ctx, actx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.ID == id {
			return record("fetch_stage_user", rowFound(NewUserRow(u))), nil
		}
	}
	return record("fetch_stage_user", notFound()), nil
}

// assigned returns the stage's users once each, in assignment order.
func (l *StageUsers) assigned(ctx context.Context, actx access.Context) ([]models.User, error) {
	users, err := l.store.ListStageUsers(ctx, actx.Submission.ID, actx.Stage)
	if err != nil {
		return nil, errors.Wrapf(err, "list users of submission %d at stage %s", actx.Submission.ID, actx.Stage)
	}
	seen := make(map[int64]struct{}, len(users))
	unique := make([]models.User, 0, len(users))
	for _, u := range users {
		if _, dup := seen[u.ID]; dup {
			continue
		}
		seen[u.ID] = struct{}{}
		unique = append(unique, u)
	}
	return unique, nil
}

func parseRowID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Errorf("%q is not a valid user id", raw)
	}
	return id, nil
}

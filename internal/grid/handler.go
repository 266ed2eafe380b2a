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

type OptionsPage struct {
	RequestArgs map[string]int64 `json:"requestArgs"`
	Listbuilder Listbuilder      `json:"listbuilder"`
	Options     map[int64]string `json:"options"`
}

type UsersPage struct {
	RequestArgs map[string]int64 `json:"requestArgs"`
	Listbuilder Listbuilder      `json:"listbuilder"`
	Rows        []UserRow        `json:"rows"`
}

// Handler is the entry point shared by the transports. Every method resolves
// the actor's roles, authorizes the operation and only then touches the grids.
type Handler struct {
	gate       *access.Gate
	roles      access.RoleSource
	notes      *QueryNotes
	stageUsers *StageUsers
	logger     *logrus.Entry
}

func NewHandler(gate *access.Gate, roles access.RoleSource, notes *QueryNotes, stageUsers *StageUsers, logger *logrus.Entry) *Handler {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{
		gate:       gate,
		roles:      roles,
		notes:      notes,
		stageUsers: stageUsers,
		logger:     logger.WithField("component", "grid"),
	}
}

func (h *Handler) ListNotes(ctx context.Context, userID int64, params access.Params) (*NotesPage, error) {
	actx, _, err := h.authorize(ctx, access.OpListNotes, userID, params)
	if err != nil {
		return nil, err
	}
	return h.notes.List(ctx, actx)
}

func (h *Handler) FetchNote(ctx context.Context, userID int64, params access.Params, noteID string) (*Response, error) {
	actx, _, err := h.authorize(ctx, access.OpFetchNote, userID, params)
	if err != nil {
		return nil, err
	}
	id, err := parseNoteID(noteID)
	if err != nil {
		return record("fetch_note", invalid(noteID, map[string]string{"noteId": err.Error()})), nil
	}
	return h.notes.FetchRow(ctx, actx, id)
}

func (h *Handler) InsertNote(ctx context.Context, userID int64, params access.Params, form NoteForm) (*Response, error) {
	actx, actor, err := h.authorize(ctx, access.OpInsertNote, userID, params)
	if err != nil {
		return nil, err
	}
	return h.notes.Insert(ctx, actx, actor, form)
}

func (h *Handler) DeleteNote(ctx context.Context, userID int64, params access.Params, noteID string) (*Response, error) {
	actx, _, err := h.authorize(ctx, access.OpDeleteNote, userID, params)
	if err != nil {
		return nil, err
	}
	id, err := parseNoteID(noteID)
	if err != nil {
		return record("delete_note", invalid(noteID, map[string]string{"noteId": err.Error()})), nil
	}
	return h.notes.Delete(ctx, actx, id)
}

func (h *Handler) StageUserOptions(ctx context.Context, userID int64, params access.Params) (*OptionsPage, error) {
	actx, _, err := h.authorize(ctx, access.OpStageUserOptions, userID, params)
	if err != nil {
		return nil, err
	}
	options, err := h.stageUsers.Options(ctx, actx)
	if err != nil {
		return nil, err
	}
	return &OptionsPage{
		RequestArgs: actx.RequestArgs(),
		Listbuilder: h.stageUsers.Listbuilder(),
		Options:     options,
	}, nil
}

// ListStageUsers validates the requested user ids against the stage's
// assignments. Ids that are not numbers cannot match and are skipped.
func (h *Handler) ListStageUsers(ctx context.Context, userID int64, params access.Params, userIDs []string) (*UsersPage, error) {
	actx, _, err := h.authorize(ctx, access.OpListStageUsers, userID, params)
	if err != nil {
		return nil, err
	}
	requested := make([]int64, 0, len(userIDs))
	for _, raw := range userIDs {
		id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			h.logger.WithContext(ctx).WithField("user_id", raw).Debug("skipping malformed requested user id")
			continue
		}
		requested = append(requested, id)
	}
	users, err := h.stageUsers.List(ctx, actx, requested)
	if err != nil {
		return nil, err
	}
	rows := make([]UserRow, 0, len(users))
	for _, u := range users {
		rows = append(rows, NewUserRow(u))
	}
	return &UsersPage{
		RequestArgs: actx.RequestArgs(),
		Listbuilder: h.stageUsers.Listbuilder(),
		Rows:        rows,
	}, nil
}

func (h *Handler) FetchStageUser(ctx context.Context, userID int64, params access.Params, rowID, newRowID string) (*Response, error) {
	actx, _, err := h.authorize(ctx, access.OpFetchStageUserRow, userID, params)
	if err != nil {
		return nil, err
	}
	return h.stageUsers.ResolveSelectedRow(ctx, actx, rowID, newRowID)
}

func (h *Handler) authorize(ctx context.Context, op access.Operation, userID int64, params access.Params) (access.Context, access.Actor, error) {
	actor := access.Actor{UserID: userID}
	roles, err := h.actorRoles(ctx, userID, params)
	if err != nil {
		return access.Context{}, actor, err
	}
	actor.Roles = roles
	actx, err := h.gate.Authorize(ctx, op, actor, params)
	if err != nil {
		return access.Context{}, actor, err
	}
	return actx, actor, nil
}

// actorRoles skips the lookup when the identifiers are malformed; the gate
// rejects such requests on its own.
func (h *Handler) actorRoles(ctx context.Context, userID int64, params access.Params) ([]models.Role, error) {
	submissionID, err := strconv.ParseInt(strings.TrimSpace(params.SubmissionID), 10, 64)
	if err != nil || submissionID <= 0 {
		return nil, nil
	}
	stage, err := models.ParseStage(params.StageID)
	if err != nil {
		return nil, nil
	}
	roles, err := h.roles.ActorRoles(ctx, userID, submissionID, stage)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve roles of user %d", userID)
	}
	return roles, nil
}

func parseNoteID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Errorf("%q is not a valid note id", raw)
	}
	return id, nil
}

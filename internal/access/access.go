// Package access resolves the authorized context of a grid request and
// enforces the per-operation role table before any listing or mutation runs.
package access

import (
	"context"

	"dovakin0007.com/editorial-grid/internal/models"
)

type Operation string

const (
	OpListNotes         Operation = "notes.list"
	OpFetchNote         Operation = "notes.fetch_row"
	OpInsertNote        Operation = "notes.insert"
	OpDeleteNote        Operation = "notes.delete"
	OpStageUserOptions  Operation = "stage_users.options"
	OpListStageUsers    Operation = "stage_users.list"
	OpFetchStageUserRow Operation = "stage_users.fetch_row"
)

var (
	noteRoles      = []models.Role{models.RoleManager, models.RoleAuthor, models.RoleSubEditor}
	stageUserRoles = []models.Role{models.RoleManager, models.RoleSubEditor, models.RoleAssistant, models.RoleAuthor}
)

// RoleAssignments maps every exposed operation to the roles allowed to call it.
// Operations missing from the table are denied.
var RoleAssignments = map[Operation][]models.Role{
	OpListNotes:         noteRoles,
	OpFetchNote:         noteRoles,
	OpInsertNote:        noteRoles,
	OpDeleteNote:        noteRoles,
	OpStageUserOptions:  stageUserRoles,
	OpListStageUsers:    stageUserRoles,
	OpFetchStageUserRow: stageUserRoles,
}

type resource int

const (
	resourceSubmission resource = iota
	resourceQuery
)

func resourceFor(op Operation) resource {
	switch op {
	case OpListNotes, OpFetchNote, OpInsertNote, OpDeleteNote:
		return resourceQuery
	default:
		return resourceSubmission
	}
}

// Params are the raw identifiers taken from the request.
type Params struct {
	SubmissionID string
	StageID      string
	QueryID      string
}

type Actor struct {
	UserID int64
	Roles  []models.Role
}

// Context is the authorized bundle handed to the listings. Query is only set
// for query-scoped operations.
type Context struct {
	Submission models.Submission
	Query      *models.Query
	Stage      models.WorkflowStage
}

// RequestArgs are the identifiers a caller threads back on follow-up requests.
func (c Context) RequestArgs() map[string]int64 {
	args := map[string]int64{
		"submissionId": c.Submission.ID,
		"stageId":      int64(c.Stage),
	}
	if c.Query != nil {
		args["queryId"] = c.Query.ID
	}
	return args
}

// Resolver loads the context objects named by a request.
type Resolver interface {
	GetSubmission(ctx context.Context, id int64) (*models.Submission, error)
	GetQuery(ctx context.Context, id int64) (*models.Query, error)
}

// RoleSource yields the roles an actor holds for a submission stage.
type RoleSource interface {
	ActorRoles(ctx context.Context, userID, submissionID int64, stage models.WorkflowStage) ([]models.Role, error)
}

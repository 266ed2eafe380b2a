package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned by stores when a looked up record does not exist.
var ErrNotFound = errors.New("record not found")

// Association types used to link notes and queries to their owners.
const (
	AssocSubmission int64 = 0x0100009
	AssocQuery      int64 = 0x010000a
)

type WorkflowStage int64

const (
	StageSubmission     WorkflowStage = 1
	StageInternalReview WorkflowStage = 2
	StageExternalReview WorkflowStage = 3
	StageEditing        WorkflowStage = 4
	StageProduction     WorkflowStage = 5
)

var stageNames = map[WorkflowStage]string{
	StageSubmission:     "submission",
	StageInternalReview: "internal_review",
	StageExternalReview: "external_review",
	StageEditing:        "editing",
	StageProduction:     "production",
}

func (s WorkflowStage) Valid() bool {
	_, ok := stageNames[s]
	return ok
}

func (s WorkflowStage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown(" + strconv.FormatInt(int64(s), 10) + ")"
}

// ParseStage validates a raw stage id against the known workflow stages.
func ParseStage(raw string) (WorkflowStage, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, errors.Errorf("stage id %q is not a number", raw)
	}
	stage := WorkflowStage(id)
	if !stage.Valid() {
		return 0, errors.Errorf("stage id %d is not a known workflow stage", id)
	}
	return stage, nil
}

type Role string

const (
	RoleManager   Role = "manager"
	RoleSubEditor Role = "sub_editor"
	RoleAssistant Role = "assistant"
	RoleAuthor    Role = "author"
)

type Submission struct {
	ID        int64         `db:"id"`
	ContextID int64         `db:"context_id"`
	Title     string        `db:"title"`
	StageID   WorkflowStage `db:"stage_id"`
}

type Query struct {
	ID        int64         `db:"id"`
	AssocType int64         `db:"assoc_type"`
	AssocID   int64         `db:"assoc_id"`
	StageID   WorkflowStage `db:"stage_id"`
	Seq       int64         `db:"seq"`
	Closed    bool          `db:"closed"`
}

// BelongsTo reports whether the query hangs off the given submission.
func (q Query) BelongsTo(submissionID int64) bool {
	return q.AssocType == AssocSubmission && q.AssocID == submissionID
}

type Note struct {
	ID           int64     `db:"id"`
	Seq          int64     `db:"seq"`
	AssocType    int64     `db:"assoc_type"`
	AssocID      int64     `db:"assoc_id"`
	UserID       int64     `db:"user_id"`
	Title        *string   `db:"title"`
	Contents     string    `db:"contents"`
	DateCreated  time.Time `db:"date_created"`
	DateModified time.Time `db:"date_modified"`
	Author       *User     `db:"-"`
}

// AttachedTo reports whether the note is a reply of the given query.
func (n Note) AttachedTo(queryID int64) bool {
	return n.AssocType == AssocQuery && n.AssocID == queryID
}

type User struct {
	ID         int64  `db:"id"`
	Username   string `db:"username"`
	GivenName  string `db:"given_name"`
	FamilyName string `db:"family_name"`
	Email      string `db:"email"`
}

func (u User) FullName() string {
	return strings.TrimSpace(u.GivenName + " " + u.FamilyName)
}

// Label is the list-builder display form, "Full Name <email>".
func (u User) Label() string {
	return u.FullName() + " <" + u.Email + ">"
}

type UserStageAssignment struct {
	ID           int64         `db:"id"`
	SubmissionID int64         `db:"submission_id"`
	StageID      WorkflowStage `db:"stage_id"`
	UserID       int64         `db:"user_id"`
	Role         Role          `db:"role"`
}

type CreateNoteInput struct {
	AssocType int64
	AssocID   int64
	UserID    int64
	Title     *string
	Contents  string
}

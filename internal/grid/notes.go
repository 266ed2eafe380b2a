package grid

import (
	"context"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"dovakin0007.com/editorial-grid/internal/access"
	"dovakin0007.com/editorial-grid/internal/models"
)

type NoteStore interface {
	ListQueryNotes(ctx context.Context, queryID int64) ([]models.Note, error)
	GetNote(ctx context.Context, id int64) (*models.Note, error)
	CreateNote(ctx context.Context, in models.CreateNoteInput) (*models.Note, error)
	DeleteNote(ctx context.Context, id int64) (bool, error)
}

type NoteRow struct {
	ID          int64     `json:"id"`
	Seq         int64     `json:"seq"`
	Title       *string   `json:"title,omitempty"`
	Contents    string    `json:"contents"`
	AuthorID    int64     `json:"authorId"`
	From        string    `json:"from"`
	DateCreated time.Time `json:"dateCreated"`
}

func NewNoteRow(n models.Note) NoteRow {
	row := NoteRow{
		ID:          n.ID,
		Seq:         n.Seq,
		Title:       n.Title,
		Contents:    n.Contents,
		AuthorID:    n.UserID,
		DateCreated: n.DateCreated,
	}
	if n.Author != nil {
		row.From = n.Author.FullName()
	}
	return row
}

type NotesPage struct {
	RequestArgs map[string]int64 `json:"requestArgs"`
	Rows        []NoteRow        `json:"rows"`
}

// QueryNotes is the notes grid of a single query.
type QueryNotes struct {
	store  NoteStore
	logger *logrus.Entry
}

func NewQueryNotes(store NoteStore, logger *logrus.Entry) *QueryNotes {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &QueryNotes{store: store, logger: logger.WithField("component", "grid.notes")}
}

// List returns the whole thread of the context query in note order.
func (g *QueryNotes) List(ctx context.Context, actx access.Context) (*NotesPage, error) {
	if actx.Query == nil {
		return nil, errors.New("grid: notes listing needs a query context")
	}
	notes, err := g.store.ListQueryNotes(ctx, actx.Query.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "list notes of query %d", actx.Query.ID)
	}

	owned := make([]models.Note, 0, len(notes))
	for _, n := range notes {
		if !n.AttachedTo(actx.Query.ID) {
			g.logger.WithContext(ctx).WithFields(logrus.Fields{
				"query_id": actx.Query.ID,
				"note_id":  n.ID,
			}).Warn("dropping note of another query")
			continue
		}
		owned = append(owned, n)
	}
	sort.SliceStable(owned, func(i, j int) bool {
		if owned[i].Seq != owned[j].Seq {
			return owned[i].Seq < owned[j].Seq
		}
		return owned[i].ID < owned[j].ID
	})

	rows := make([]NoteRow, 0, len(owned))
	for _, n := range owned {
		rows = append(rows, NewNoteRow(n))
	}
	return &NotesPage{RequestArgs: actx.RequestArgs(), Rows: rows}, nil
}

// FetchRow returns one note of the context query.
func (g *QueryNotes) FetchRow(ctx context.Context, actx access.Context, noteID int64) (*Response, error) {
	note, err := g.ownedNote(ctx, actx, noteID)
	if err != nil {
		return nil, err
	}
	if note == nil {
		return record("fetch_note", notFound()), nil
	}
	return record("fetch_note", rowFound(NewNoteRow(*note))), nil
}

// Insert validates the form and adds a note authored by the actor.
func (g *QueryNotes) Insert(ctx context.Context, actx access.Context, actor access.Actor, form NoteForm) (*Response, error) {
	if actx.Query == nil {
		return nil, errors.New("grid: note insert needs a query context")
	}
	form.Normalize()
	if messages, ok := form.Ok(); !ok {
		return record("insert_note", invalid(form, messages)), nil
	}

	in := models.CreateNoteInput{
		AssocType: models.AssocQuery,
		AssocID:   actx.Query.ID,
		UserID:    actor.UserID,
		Contents:  form.Contents,
	}
	if form.Title != "" {
		title := form.Title
		in.Title = &title
	}
	note, err := g.store.CreateNote(ctx, in)
	if err != nil {
		return nil, errors.Wrapf(err, "create note on query %d", actx.Query.ID)
	}
	g.logger.WithContext(ctx).WithFields(logrus.Fields{
		"query_id": actx.Query.ID,
		"note_id":  note.ID,
		"user_id":  actor.UserID,
	}).Info("note inserted")
	return record("insert_note", dataChanged(note.ID)), nil
}

// Delete removes a note only when it is a reply of the context query.
func (g *QueryNotes) Delete(ctx context.Context, actx access.Context, noteID int64) (*Response, error) {
	note, err := g.ownedNote(ctx, actx, noteID)
	if err != nil {
		return nil, err
	}
	if note == nil {
		return record("delete_note", notFound()), nil
	}
	deleted, err := g.store.DeleteNote(ctx, note.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "delete note %d", note.ID)
	}
	if !deleted {
		return record("delete_note", notFound()), nil
	}
	g.logger.WithContext(ctx).WithFields(logrus.Fields{
		"query_id": actx.Query.ID,
		"note_id":  note.ID,
	}).Info("note deleted")
	return record("delete_note", dataChanged(note.ID)), nil
}

// ownedNote returns nil without error when the note is missing or belongs
// elsewhere.
func (g *QueryNotes) ownedNote(ctx context.Context, actx access.Context, noteID int64) (*models.Note, error) {
	if actx.Query == nil {
		return nil, errors.New("grid: note lookup needs a query context")
	}
	note, err := g.store.GetNote(ctx, noteID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get note %d", noteID)
	}
	if note == nil || !note.AttachedTo(actx.Query.ID) {
		return nil, nil
	}
	return note, nil
}

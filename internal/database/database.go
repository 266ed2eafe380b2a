package database

import (
	"context"
	"database/sql"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"dovakin0007.com/editorial-grid/internal/models"
)

var (
	psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

	driverName = "postgres"
)

// ErrNotFound is what every lookup returns when the row does not exist.
var ErrNotFound = models.ErrNotFound

const ddl = `
CREATE TABLE IF NOT EXISTS users (
    id           BIGSERIAL PRIMARY KEY,
    username     TEXT NOT NULL UNIQUE,
    given_name   TEXT NOT NULL DEFAULT '',
    family_name  TEXT NOT NULL DEFAULT '',
    email        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS submissions (
    id          BIGSERIAL PRIMARY KEY,
    context_id  BIGINT NOT NULL,
    title       TEXT NOT NULL DEFAULT '',
    stage_id    BIGINT NOT NULL DEFAULT 1
);

-- context wide roles such as manager
CREATE TABLE IF NOT EXISTS user_roles (
    user_id     BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    context_id  BIGINT NOT NULL,
    role        TEXT NOT NULL,
    PRIMARY KEY (user_id, context_id, role)
);

CREATE TABLE IF NOT EXISTS stage_assignments (
    id             BIGSERIAL PRIMARY KEY,
    submission_id  BIGINT NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
    stage_id       BIGINT NOT NULL,
    user_id        BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    role           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS queries (
    id          BIGSERIAL PRIMARY KEY,
    assoc_type  BIGINT NOT NULL,
    assoc_id    BIGINT NOT NULL,
    stage_id    BIGINT NOT NULL,
    seq         BIGSERIAL,
    closed      BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS notes (
    id             BIGSERIAL PRIMARY KEY,
    seq            BIGSERIAL,
    assoc_type     BIGINT NOT NULL,
    assoc_id       BIGINT NOT NULL,
    user_id        BIGINT NOT NULL REFERENCES users(id),
    title          TEXT,
    contents       TEXT NOT NULL,
    date_created   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    date_modified  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE OR REPLACE FUNCTION set_date_modified() RETURNS trigger AS $$
BEGIN
    NEW.date_modified = NOW();
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_notes_set_date_modified ON notes;
CREATE TRIGGER trg_notes_set_date_modified
BEFORE UPDATE ON notes
FOR EACH ROW EXECUTE FUNCTION set_date_modified();

CREATE INDEX IF NOT EXISTS idx_notes_assoc          ON notes(assoc_type, assoc_id);
CREATE INDEX IF NOT EXISTS idx_queries_assoc        ON queries(assoc_type, assoc_id);
CREATE INDEX IF NOT EXISTS idx_stage_assignments_ss ON stage_assignments(submission_id, stage_id);
`

var noteColumns = []string{
	"n.id", "n.seq", "n.assoc_type", "n.assoc_id", "n.user_id", "n.title", "n.contents", "n.date_created", "n.date_modified",
}

var userColumns = []string{"u.id", "u.username", "u.given_name", "u.family_name", "u.email"}

type Database struct {
	Mu *sync.RWMutex
	Db *sqlx.DB
}

// Connect opens the pool, checks it and applies the schema.
func Connect(ctx context.Context, dsn string) (*Database, error) {
	db, err := sqlx.ConnectContext(ctx, driverName, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "connect to postgres")
	}
	d := &Database{Mu: &sync.RWMutex{}, Db: db}
	if err := d.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func (d *Database) migrate(ctx context.Context) error {
	if _, err := d.Db.ExecContext(ctx, ddl); err != nil {
		return errors.Wrap(err, "migration failed")
	}
	return nil
}

func (d *Database) Close() error {
	if d.Db != nil {
		return d.Db.Close()
	}
	return nil
}

func (d *Database) GetSubmission(ctx context.Context, id int64) (*models.Submission, error) {
	d.Mu.RLock()
	defer d.Mu.RUnlock()
	query, args, err := psql.Select("id", "context_id", "title", "stage_id").
		From("submissions").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build submission query")
	}
	var s models.Submission
	if err := d.Db.GetContext(ctx, &s, query, args...); err != nil {
		return nil, notFound(err, "get submission %d", id)
	}
	return &s, nil
}

func (d *Database) GetQuery(ctx context.Context, id int64) (*models.Query, error) {
	d.Mu.RLock()
	defer d.Mu.RUnlock()
	query, args, err := psql.Select("id", "assoc_type", "assoc_id", "stage_id", "seq", "closed").
		From("queries").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build query lookup")
	}
	var q models.Query
	if err := d.Db.GetContext(ctx, &q, query, args...); err != nil {
		return nil, notFound(err, "get query %d", id)
	}
	return &q, nil
}

func (d *Database) GetNote(ctx context.Context, id int64) (*models.Note, error) {
	d.Mu.RLock()
	defer d.Mu.RUnlock()
	query, args, err := psql.Select(noteColumns...).
		From("notes n").
		Where(sq.Eq{"n.id": id}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build note lookup")
	}
	var n models.Note
	if err := d.Db.GetContext(ctx, &n, query, args...); err != nil {
		return nil, notFound(err, "get note %d", id)
	}
	return &n, nil
}

// ListQueryNotes returns the replies of a query in thread order with their
// authors attached.
func (d *Database) ListQueryNotes(ctx context.Context, queryID int64) ([]models.Note, error) {
	d.Mu.RLock()
	defer d.Mu.RUnlock()
	cols := append(append([]string{}, noteColumns...),
		"u.username AS author_username",
		"u.given_name AS author_given_name",
		"u.family_name AS author_family_name",
		"u.email AS author_email",
	)
	query, args, err := psql.Select(cols...).
		From("notes n").
		LeftJoin("users u ON u.id = n.user_id").
		Where(sq.Eq{"n.assoc_type": models.AssocQuery, "n.assoc_id": queryID}).
		OrderBy("n.seq ASC", "n.id ASC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build notes query")
	}

	type row struct {
		models.Note
		AuthorUsername   sql.NullString `db:"author_username"`
		AuthorGivenName  sql.NullString `db:"author_given_name"`
		AuthorFamilyName sql.NullString `db:"author_family_name"`
		AuthorEmail      sql.NullString `db:"author_email"`
	}
	var rows []row
	if err := d.Db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrapf(err, "list notes of query %d", queryID)
	}
	notes := make([]models.Note, 0, len(rows))
	for _, r := range rows {
		n := r.Note
		if r.AuthorUsername.Valid {
			n.Author = &models.User{
				ID:         n.UserID,
				Username:   r.AuthorUsername.String,
				GivenName:  r.AuthorGivenName.String,
				FamilyName: r.AuthorFamilyName.String,
				Email:      r.AuthorEmail.String,
			}
		}
		notes = append(notes, n)
	}
	return notes, nil
}

func (d *Database) CreateNote(ctx context.Context, in models.CreateNoteInput) (*models.Note, error) {
	d.Mu.Lock()
	defer d.Mu.Unlock()
	query, args, err := psql.Insert("notes").
		Columns("assoc_type", "assoc_id", "user_id", "title", "contents").
		Values(in.AssocType, in.AssocID, in.UserID, in.Title, in.Contents).
		Suffix("RETURNING id, seq, assoc_type, assoc_id, user_id, title, contents, date_created, date_modified").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build note insert")
	}
	var n models.Note
	if err := d.Db.GetContext(ctx, &n, query, args...); err != nil {
		return nil, errors.Wrap(err, "insert note")
	}
	return &n, nil
}

// DeleteNote removes one note and reports whether it existed.
func (d *Database) DeleteNote(ctx context.Context, id int64) (bool, error) {
	d.Mu.Lock()
	defer d.Mu.Unlock()
	query, args, err := psql.Delete("notes").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return false, errors.Wrap(err, "build note delete")
	}
	res, err := d.Db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, errors.Wrapf(err, "delete note %d", id)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected (notes delete)")
	}
	return ra > 0, nil
}

// ListStageUsers returns the users assigned to a submission stage in
// assignment order. A user holding several assignments appears once per
// assignment.
func (d *Database) ListStageUsers(ctx context.Context, submissionID int64, stage models.WorkflowStage) ([]models.User, error) {
	d.Mu.RLock()
	defer d.Mu.RUnlock()
	query, args, err := psql.Select(userColumns...).
		From("stage_assignments sa").
		Join("users u ON u.id = sa.user_id").
		Where(sq.Eq{"sa.submission_id": submissionID, "sa.stage_id": stage}).
		OrderBy("sa.id ASC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build stage users query")
	}
	users := []models.User{}
	if err := d.Db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, errors.Wrapf(err, "list users of submission %d stage %d", submissionID, stage)
	}
	return users, nil
}

func (d *Database) GetUser(ctx context.Context, id int64) (*models.User, error) {
	d.Mu.RLock()
	defer d.Mu.RUnlock()
	query, args, err := psql.Select(userColumns...).
		From("users u").
		Where(sq.Eq{"u.id": id}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build user lookup")
	}
	var u models.User
	if err := d.Db.GetContext(ctx, &u, query, args...); err != nil {
		return nil, notFound(err, "get user %d", id)
	}
	return &u, nil
}

// ActorRoles unions the user's context wide roles with the roles of their
// assignments on the given submission stage.
func (d *Database) ActorRoles(ctx context.Context, userID, submissionID int64, stage models.WorkflowStage) ([]models.Role, error) {
	d.Mu.RLock()
	defer d.Mu.RUnlock()
	stageRoles, stageArgs, err := sq.Select("role").
		From("stage_assignments").
		Where(sq.Eq{"user_id": userID, "submission_id": submissionID, "stage_id": stage}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build stage roles query")
	}
	query, args, err := psql.Select("role").
		From("user_roles").
		Where(sq.Eq{"user_id": userID}).
		Where("context_id = (SELECT context_id FROM submissions WHERE id = ?)", submissionID).
		Suffix("UNION "+stageRoles, stageArgs...).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build roles query")
	}
	roles := []models.Role{}
	if err := d.Db.SelectContext(ctx, &roles, query, args...); err != nil {
		return nil, errors.Wrapf(err, "roles of user %d", userID)
	}
	return roles, nil
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return errors.Wrapf(err, format, args...)
}

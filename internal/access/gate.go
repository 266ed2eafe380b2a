package access

import (
	"context"
	"strconv"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"dovakin0007.com/editorial-grid/internal/models"
)

type Mode string

const (
	ModeEnforce Mode = "enforce"
	// ModeShadow logs role denials but lets the request through. Stage and
	// resource policies are enforced regardless.
	ModeShadow Mode = "shadow"
)

// ParseMode falls back to enforce for anything it does not recognise.
func ParseMode(raw string) Mode {
	if Mode(strings.ToLower(strings.TrimSpace(raw))) == ModeShadow {
		return ModeShadow
	}
	return ModeEnforce
}

const roleModel = `
[request_definition]
r = sub, act

[policy_definition]
p = sub, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.act == p.act
`

type Config struct {
	Mode        Mode
	Logger      *logrus.Entry
	Assignments map[Operation][]models.Role
}

// Gate authorizes grid requests. It is safe for concurrent use once built.
type Gate struct {
	mode        Mode
	resolver    Resolver
	enforcer    *casbin.Enforcer
	assignments map[Operation][]models.Role
	logger      *logrus.Entry
}

func NewGate(resolver Resolver, cfg Config) (*Gate, error) {
	if resolver == nil {
		return nil, errors.New("access: resolver is required")
	}
	source := cfg.Assignments
	if source == nil {
		source = RoleAssignments
	}
	assignments := make(map[Operation][]models.Role, len(source))
	for op, roles := range source {
		assignments[op] = append([]models.Role(nil), roles...)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.WithField("component", "access")
	} else {
		logger = logger.WithField("component", "access")
	}

	m, err := model.NewModelFromString(roleModel)
	if err != nil {
		return nil, errors.Wrap(err, "access: build role model")
	}
	enf, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, errors.Wrap(err, "access: init enforcer")
	}
	for op, roles := range assignments {
		for _, role := range roles {
			if _, err := enf.AddPolicy(string(role), string(op)); err != nil {
				return nil, errors.Wrapf(err, "access: add policy %s/%s", role, op)
			}
		}
	}

	mode := cfg.Mode
	if mode == "" {
		mode = ModeEnforce
	}
	return &Gate{
		mode:        mode,
		resolver:    resolver,
		enforcer:    enf,
		assignments: assignments,
		logger:      logger,
	}, nil
}

func (g *Gate) Mode() Mode {
	return g.mode
}

// Authorize runs the operation, stage, role and resource policies in that
// order. The first failing policy aborts the request with an
// *AuthorizationError. Stage and role checks happen before any lookup, so a
// denied actor never reaches the resolver.
func (g *Gate) Authorize(ctx context.Context, op Operation, actor Actor, params Params) (Context, error) {
	if _, ok := g.assignments[op]; !ok {
		return Context{}, g.reject(ctx, actor, deny(op, ReasonUnknownOperation, "operation is not in the role table"))
	}

	stage, err := models.ParseStage(params.StageID)
	if err != nil {
		return Context{}, g.reject(ctx, actor, deny(op, ReasonInvalidStage, "%v", err))
	}

	if err := g.checkRoles(ctx, op, actor); err != nil {
		return Context{}, err
	}

	out := Context{Stage: stage}
	switch resourceFor(op) {
	case resourceQuery:
		err = g.queryPolicy(ctx, op, params, &out)
	default:
		err = g.submissionPolicy(ctx, op, params, &out)
	}
	if err != nil {
		var authErr *AuthorizationError
		if errors.As(err, &authErr) {
			return Context{}, g.reject(ctx, actor, authErr)
		}
		return Context{}, err
	}

	recordDecision(op, "allowed")
	g.logger.WithContext(ctx).WithFields(logrus.Fields{
		"operation":  op,
		"user_id":    actor.UserID,
		"submission": out.Submission.ID,
		"stage":      out.Stage,
	}).Debug("access granted")
	return out, nil
}

func (g *Gate) checkRoles(ctx context.Context, op Operation, actor Actor) error {
	allowed, err := g.rolesAllow(op, actor.Roles)
	if err != nil {
		return err
	}
	if allowed {
		return nil
	}
	if g.mode == ModeShadow {
		recordDecision(op, "shadow_denied")
		g.logger.WithContext(ctx).WithFields(logrus.Fields{
			"operation": op,
			"user_id":   actor.UserID,
			"roles":     actor.Roles,
			"mode":      ModeShadow,
		}).Warn("access shadow deny")
		return nil
	}
	return g.reject(ctx, actor, deny(op, ReasonRoleDenied, "roles %v not allowed", actor.Roles))
}

func (g *Gate) rolesAllow(op Operation, roles []models.Role) (bool, error) {
	for _, role := range roles {
		ok, err := g.enforcer.Enforce(string(role), string(op))
		if err != nil {
			return false, errors.Wrap(err, "access: enforce role table")
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (g *Gate) submissionPolicy(ctx context.Context, op Operation, params Params, out *Context) error {
	id, err := parseID(params.SubmissionID)
	if err != nil {
		return deny(op, ReasonSubmissionNotFound, "submission id: %v", err)
	}
	submission, err := g.resolver.GetSubmission(ctx, id)
	if errors.Is(err, models.ErrNotFound) || (err == nil && submission == nil) {
		return deny(op, ReasonSubmissionNotFound, "submission %d", id)
	}
	if err != nil {
		return errors.Wrapf(err, "access: resolve submission %d", id)
	}
	out.Submission = *submission
	return nil
}

func (g *Gate) queryPolicy(ctx context.Context, op Operation, params Params, out *Context) error {
	if err := g.submissionPolicy(ctx, op, params, out); err != nil {
		return err
	}
	id, err := parseID(params.QueryID)
	if err != nil {
		return deny(op, ReasonQueryNotFound, "query id: %v", err)
	}
	query, err := g.resolver.GetQuery(ctx, id)
	if errors.Is(err, models.ErrNotFound) || (err == nil && query == nil) {
		return deny(op, ReasonQueryNotFound, "query %d", id)
	}
	if err != nil {
		return errors.Wrapf(err, "access: resolve query %d", id)
	}
	if !query.BelongsTo(out.Submission.ID) {
		return deny(op, ReasonQueryMismatch, "query %d is not attached to submission %d", query.ID, out.Submission.ID)
	}
	if query.StageID != out.Stage {
		return deny(op, ReasonQueryMismatch, "query %d belongs to stage %s, not %s", query.ID, query.StageID, out.Stage)
	}
	out.Query = query
	return nil
}

func (g *Gate) reject(ctx context.Context, actor Actor, err *AuthorizationError) error {
	recordDecision(err.Operation, "denied")
	g.logger.WithContext(ctx).WithFields(logrus.Fields{
		"operation": err.Operation,
		"user_id":   actor.UserID,
		"reason":    err.Reason,
	}).Warn("access denied")
	return err
}

func parseID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("missing")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Errorf("%q is not a valid id", raw)
	}
	return id, nil
}

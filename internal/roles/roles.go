// Package roles maps authenticated principals to their access level.
package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/KevinAiCloud/InterviewAI/internal/auth"
	"github.com/KevinAiCloud/InterviewAI/internal/db/models"
	"github.com/KevinAiCloud/InterviewAI/internal/logging"
	"github.com/KevinAiCloud/InterviewAI/internal/repository"
	"github.com/KevinAiCloud/InterviewAI/internal/telemetry"
)

// Role is the access level of a principal.
type Role string

const (
	// None is the absent role: no principal, or a role not resolved yet.
	None  Role = ""
	User  Role = "user"
	Admin Role = "admin"
)

// IsValid reports whether r is one of the stored roles.
func (r Role) IsValid() bool {
	switch r {
	case User, Admin:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	return string(r)
}

// Parse converts a stored role value. Anything unrecognised becomes User.
func Parse(s string) Role {
	role := Role(strings.ToLower(strings.TrimSpace(s)))
	if !role.IsValid() {
		return User
	}
	return role
}

// Resolver looks up the role of a principal, creating the default record on first sight.
type Resolver struct {
	users       repository.UserRepository
	logger      *slog.Logger
	metrics     *telemetry.AuthMetrics
	adminEmails map[string]struct{}
	now         func() time.Time
}

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	Logger  *slog.Logger
	Metrics *telemetry.AuthMetrics
	// AdminEmails are created with the admin role instead of the default.
	AdminEmails []string
}

// NewResolver creates a Resolver backed by the users table.
func NewResolver(users repository.UserRepository, opts ResolverOptions) *Resolver {
	admins := make(map[string]struct{}, len(opts.AdminEmails))
	for _, email := range opts.AdminEmails {
		if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
			admins[email] = struct{}{}
		}
	}
	return &Resolver{
		users:       users,
		logger:      logging.OrDiscard(opts.Logger),
		metrics:     opts.Metrics,
		adminEmails: admins,
		now:         time.Now,
	}
}

// Resolve returns the role of p. It never fails: storage errors are logged
// and the principal is treated as a regular user.
func (r *Resolver) Resolve(ctx context.Context, p *auth.Principal) Role {
	if p == nil {
		return None
	}

	ctx, span := telemetry.StartSpan(ctx, "admissions/roles", "roles.Resolve",
		attribute.String(telemetry.AttrPrincipalID, p.ID),
	)
	defer span.End()

	role, created, err := r.lookupOrCreate(ctx, p)
	if err != nil {
		telemetry.RecordError(span, err)
		logging.Error(ctx, r.logger, "role lookup failed, defaulting to user", err, "principal_id", p.ID)
		role = User
	}
	span.SetAttributes(attribute.String(telemetry.AttrPrincipalRole, role.String()))

	if r.metrics != nil {
		r.metrics.RecordRoleResolution(ctx, role.String(), created, err != nil)
	}
	return role
}

func (r *Resolver) lookupOrCreate(ctx context.Context, p *auth.Principal) (Role, bool, error) {
	user, err := r.users.GetByID(ctx, p.ID)
	if err == nil {
		return Parse(user.Role), false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return None, false, fmt.Errorf("get role record: %w", err)
	}

	role := User
	if _, ok := r.adminEmails[strings.ToLower(p.Email)]; ok {
		role = Admin
	}
	created, err := r.users.Create(ctx, &models.User{
		ID:        p.ID,
		Email:     p.Email,
		Role:      role.String(),
		CreatedAt: r.now().UTC(),
	})
	if err != nil {
		return None, false, fmt.Errorf("create role record: %w", err)
	}
	if !created {
		// Another context created the record first.
		user, err := r.users.GetByID(ctx, p.ID)
		if err != nil {
			return None, false, fmt.Errorf("reload role record: %w", err)
		}
		return Parse(user.Role), false, nil
	}

	r.logger.InfoContext(ctx, "created role record", "principal_id", p.ID, "role", role)
	return role, true, nil
}

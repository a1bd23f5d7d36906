package access

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
)

// Outcome is the navigation decision category.
type Outcome uint8

const (
	// OutcomeAllow passes the request through unmodified.
	OutcomeAllow Outcome = iota + 1
	// OutcomeLogin redirects to the login page.
	OutcomeLogin
	// OutcomeRedirect redirects an authenticated user elsewhere.
	OutcomeRedirect
)

// String returns the metric label of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeAllow:
		return "allow"
	case OutcomeLogin:
		return "login"
	case OutcomeRedirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Reason records which rule produced a Decision.
type Reason string

const (
	ReasonPublic           Reason = "public"
	ReasonAuthEntry        Reason = "auth_entry"
	ReasonNoSession        Reason = "no_session"
	ReasonRoleLookupFailed Reason = "role_lookup_failed"
	ReasonAdminOnly        Reason = "admin_only"
	ReasonElevatedOnly     Reason = "elevated_only"
	ReasonPermitted        Reason = "permitted"
)

// Decision is the result of evaluating a request.
type Decision struct {
	Outcome  Outcome
	Location string
	Reason   Reason
	// UserID and Role are set when the session and role were resolved.
	UserID string
	Role   Role
}

// Allowed reports whether the request may proceed.
func (d Decision) Allowed() bool {
	return d.Outcome == OutcomeAllow
}

// Observer receives every decision, typically to count it.
type Observer interface {
	ObserveAccessDecision(outcome, reason string)
}

// GateConfig groups the dependencies of a Gate.
type GateConfig struct {
	Rules    Rules
	Sessions SessionResolver
	Roles    RoleLookup
	Logger   *slog.Logger
	Observer Observer
}

// Gate decides whether a navigation request is allowed.
type Gate struct {
	rules    Rules
	sessions SessionResolver
	roles    RoleLookup
	logger   *slog.Logger
	observer Observer
}

// NewGate validates the rule table and builds a Gate.
func NewGate(cfg GateConfig) (*Gate, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("access: session resolver required")
	}
	if cfg.Roles == nil {
		return nil, errors.New("access: role lookup required")
	}
	if err := cfg.Rules.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		rules:    cfg.Rules.Clone(),
		sessions: cfg.Sessions,
		roles:    cfg.Roles,
		logger:   logger,
		observer: cfg.Observer,
	}, nil
}

// Rules returns a copy of the gate's rule table.
func (g *Gate) Rules() Rules {
	return g.rules.Clone()
}

// Evaluate decides the outcome for a request to path carrying token. An empty
// token means the request has no session cookie.
func (g *Gate) Evaluate(ctx context.Context, path, token string) Decision {
	decision := g.decide(ctx, path, token)
	if g.observer != nil {
		g.observer.ObserveAccessDecision(decision.Outcome.String(), string(decision.Reason))
	}
	return decision
}

func (g *Gate) decide(ctx context.Context, path, token string) Decision {
	if g.rules.IsPublic(path) {
		if g.rules.Variant == VariantBounce && g.rules.IsAuthEntry(path) {
			if userID, ok := g.session(ctx, path, token).UserID(); ok {
				return Decision{Outcome: OutcomeRedirect, Location: g.rules.DashboardPath, Reason: ReasonAuthEntry, UserID: userID}
			}
		}
		return Decision{Outcome: OutcomeAllow, Reason: ReasonPublic}
	}

	userID, ok := g.session(ctx, path, token).UserID()
	if !ok {
		return Decision{Outcome: OutcomeLogin, Location: g.loginLocation(path), Reason: ReasonNoSession}
	}

	role, err := g.roles.RoleForUser(ctx, userID)
	if err == nil && !role.Valid() {
		err = ErrUnknownRole
	}
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			g.logger.Warn("access role missing, allowing request", slog.String("user_id", userID), slog.String("path", path))
		} else {
			g.logger.Warn("access role lookup failed, allowing request", slog.String("user_id", userID), slog.String("path", path), slog.Any("error", err))
		}
		return Decision{Outcome: OutcomeAllow, Reason: ReasonRoleLookupFailed, UserID: userID}
	}

	switch g.rules.Requirement(path) {
	case RequireAdmin:
		if role != RoleAdministrador {
			return Decision{Outcome: OutcomeRedirect, Location: g.rules.DeniedPath, Reason: ReasonAdminOnly, UserID: userID, Role: role}
		}
	case RequireElevated:
		if !g.rules.Permits(role, path) {
			return Decision{Outcome: OutcomeRedirect, Location: g.rules.DeniedPath, Reason: ReasonElevatedOnly, UserID: userID, Role: role}
		}
	}
	return Decision{Outcome: OutcomeAllow, Reason: ReasonPermitted, UserID: userID, Role: role}
}

// session resolves token; lookup failures count as no session.
func (g *Gate) session(ctx context.Context, path, token string) Session {
	if token == "" {
		return NoSession()
	}
	sess, err := g.sessions.ResolveSession(ctx, token)
	if err != nil {
		g.logger.Warn("access session lookup failed", slog.String("path", path), slog.Any("error", err))
		return NoSession()
	}
	return sess
}

func (g *Gate) loginLocation(path string) string {
	if g.rules.Variant != VariantReturnTo || path == "" {
		return g.rules.LoginPath
	}
	query := url.Values{}
	query.Set(g.rules.ReturnParam, path)
	return g.rules.LoginPath + "?" + query.Encode()
}

// AngelaMos | 2026
// gate.go

package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/angelamos/auth-api/internal/account"
	"github.com/angelamos/auth-api/internal/core"
	"github.com/angelamos/auth-api/internal/token"
)

type Verifier interface {
	Verify(tokenString string, purpose token.Purpose) (*token.Claims, error)
}

type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenString string) (bool, error)
}

type StatusSource interface {
	GetStatus(ctx context.Context, accountID string) (*account.Status, error)
}

type Exchanger interface {
	Exchange(ctx context.Context, claims *token.Claims) (*token.Pair, error)
}

// GateConfig declares what an endpoint expects from the gate. Purpose
// selects the signing secret; RequireActive is false on the
// verification and reset flows, where an account must be reachable
// before it is active.
type GateConfig struct {
	Purpose       token.Purpose
	RequireActive bool

	// ExchangePath, when set, short-circuits a matching GET into a
	// fresh access/refresh pair instead of normal handling.
	ExchangePath string
}

type Outcome int

const (
	OutcomeDenied Outcome = iota
	OutcomeAuthorized
	OutcomeExchange
)

type Decision struct {
	Outcome Outcome
	Claims  *token.Claims
	Err     *core.AppError
}

type GateRequest struct {
	Method     string
	Path       string
	AuthHeader string
}

// Gate is the per-request authentication state machine. It holds no
// per-request state; everything it decides from is the request and the
// revocation ledger.
type Gate struct {
	verifier Verifier
	ledger   RevocationChecker
	statuses StatusSource
}

func NewGate(
	verifier Verifier,
	ledger RevocationChecker,
	statuses StatusSource,
) *Gate {
	return &Gate{
		verifier: verifier,
		ledger:   ledger,
		statuses: statuses,
	}
}

type gateState struct {
	Decision
	rawToken string
}

// gateStep advances the decision; returning false terminates the
// pipeline with whatever the state holds.
type gateStep func(
	ctx context.Context,
	req GateRequest,
	cfg GateConfig,
	state *gateState,
) bool

// Decide runs the ordered pipeline: bearer extraction, signature and
// expiry verification against the endpoint's purpose secret, revocation
// lookup, exchange short-circuit, live activation check.
func (g *Gate) Decide(
	ctx context.Context,
	req GateRequest,
	cfg GateConfig,
) Decision {
	state := gateState{Decision: Decision{Outcome: OutcomeAuthorized}}

	steps := []gateStep{
		g.extractBearer,
		g.verifyToken,
		g.checkRevocation,
		g.matchExchange,
		g.checkActive,
	}

	for _, step := range steps {
		if !step(ctx, req, cfg, &state) {
			break
		}
	}

	return state.Decision
}

func (g *Gate) extractBearer(
	_ context.Context,
	req GateRequest,
	_ GateConfig,
	state *gateState,
) bool {
	tokenString := parseBearer(req.AuthHeader)
	if tokenString == "" {
		state.Outcome = OutcomeDenied
		state.Err = core.UnauthorizedError("invalid authorization header")
		return false
	}

	state.rawToken = tokenString
	return true
}

func (g *Gate) verifyToken(
	_ context.Context,
	_ GateRequest,
	cfg GateConfig,
	state *gateState,
) bool {
	claims, err := g.verifier.Verify(state.rawToken, cfg.Purpose)
	if err != nil {
		state.Outcome = OutcomeDenied
		state.Err = classifyTokenError(err)
		return false
	}

	state.Claims = claims
	return true
}

func (g *Gate) checkRevocation(
	ctx context.Context,
	_ GateRequest,
	_ GateConfig,
	state *gateState,
) bool {
	revoked, err := g.ledger.IsRevoked(ctx, state.rawToken)
	if err != nil {
		state.Outcome = OutcomeDenied
		state.Claims = nil
		state.Err = core.NewAppError(
			err,
			"an unexpected error occurred",
			http.StatusInternalServerError,
			"INTERNAL",
		)
		return false
	}

	if revoked {
		state.Outcome = OutcomeDenied
		state.Claims = nil
		state.Err = core.TokenRevokedError()
		return false
	}

	return true
}

func (g *Gate) matchExchange(
	_ context.Context,
	req GateRequest,
	cfg GateConfig,
	state *gateState,
) bool {
	if cfg.ExchangePath == "" || cfg.Purpose != token.PurposeAccess {
		return true
	}

	if req.Method == http.MethodGet && req.Path == cfg.ExchangePath {
		state.Outcome = OutcomeExchange
		return false
	}

	return true
}

// checkActive reconciles against the live status row rather than the
// token snapshot, so deactivation takes effect on the next request
// instead of at token expiry.
func (g *Gate) checkActive(
	ctx context.Context,
	_ GateRequest,
	cfg GateConfig,
	state *gateState,
) bool {
	if !cfg.RequireActive {
		return true
	}

	status, err := g.statuses.GetStatus(ctx, state.Claims.AccountID)
	if err != nil {
		state.Outcome = OutcomeDenied
		state.Claims = nil
		if errors.Is(err, core.ErrNotFound) {
			state.Err = core.TokenInvalidError()
		} else {
			state.Err = core.NewAppError(
				err,
				"an unexpected error occurred",
				http.StatusInternalServerError,
				"INTERNAL",
			)
		}
		return false
	}

	if !account.Authorized(*status, true) {
		state.Outcome = OutcomeDenied
		state.Claims = nil
		state.Err = core.ForbiddenError("account is not active")
		return false
	}

	return true
}

// Middleware adapts the gate into chi middleware. An exchanger is only
// consulted when cfg.ExchangePath matches; pass nil otherwise.
func (g *Gate) Middleware(
	cfg GateConfig,
	exchanger Exchanger,
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := g.Decide(r.Context(), GateRequest{
				Method:     r.Method,
				Path:       r.URL.Path,
				AuthHeader: r.Header.Get("Authorization"),
			}, cfg)

			switch decision.Outcome {
			case OutcomeDenied:
				core.JSONError(w, decision.Err)

			case OutcomeExchange:
				g.serveExchange(w, r, exchanger, decision.Claims)

			case OutcomeAuthorized:
				next.ServeHTTP(w, r.WithContext(
					WithClaims(r.Context(), decision.Claims),
				))
			}
		})
	}
}

func (g *Gate) serveExchange(
	w http.ResponseWriter,
	r *http.Request,
	exchanger Exchanger,
	claims *token.Claims,
) {
	if exchanger == nil {
		core.InternalServerError(w, errors.New("gate: no exchanger configured"))
		return
	}

	pair, err := exchanger.Exchange(r.Context(), claims)
	if err != nil {
		if errors.Is(err, core.ErrTokenInvalid) {
			core.JSONError(w, core.TokenInvalidError())
			return
		}
		core.JSONError(w, err)
		return
	}

	core.OK(w, "successfully exchanged auth tokens", map[string]any{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_at":    pair.ExpiresAt,
	})
}

// RequireRole denies authenticated requests whose role is not listed.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	roleSet := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		roleSet[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := GetRole(r.Context())

			if role == "" {
				core.JSONError(
					w,
					core.UnauthorizedError("authentication required"),
				)
				return
			}

			if _, ok := roleSet[role]; !ok {
				core.JSONError(
					w,
					core.ForbiddenError("insufficient permissions"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func parseBearer(authHeader string) string {
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

func classifyTokenError(err error) *core.AppError {
	switch {
	case errors.Is(err, core.ErrTokenExpired):
		return core.TokenExpiredError()
	case errors.Is(err, core.ErrTokenPurposeMismatch):
		return core.NewAppError(
			core.ErrTokenPurposeMismatch,
			"token not valid for this endpoint",
			http.StatusUnauthorized,
			"TOKEN_PURPOSE_MISMATCH",
		)
	default:
		return core.TokenInvalidError()
	}
}

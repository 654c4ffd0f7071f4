// AngelaMos | 2026
// handler.go

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/angelamos/auth-api/internal/account"
	"github.com/angelamos/auth-api/internal/core"
	"github.com/angelamos/auth-api/internal/middleware"
	"github.com/angelamos/auth-api/internal/token"
)

type Handler struct {
	service   *Service
	validator *validator.Validate
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Exchange satisfies middleware.Exchanger; the access gate short-circuits
// GET /v1/auth/authtoken into it.
func (h *Handler) Exchange(
	ctx context.Context,
	claims *token.Claims,
) (*token.Pair, error) {
	return h.service.Exchange(ctx, claims)
}

// RegisterRoutes mounts the auth surface. The three gates differ only in
// the purpose secret they verify against and whether the account must
// already be active: the verification and reset flows must stay
// reachable for inactive accounts.
func (h *Handler) RegisterRoutes(
	r chi.Router,
	accessGate func(http.Handler) http.Handler,
	verificationGate func(http.Handler) http.Handler,
	resetGate func(http.Handler) http.Handler,
) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup/{role}", h.Signup)
		r.Get("/verificationemail", h.ResendVerification)
		r.Post("/verificationemail", h.ResendVerification)
		r.Post("/forgotpassword", h.ForgotPassword)
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(verificationGate)
			r.Post("/verifyemail", h.VerifyEmail)
		})

		r.Group(func(r chi.Router) {
			r.Use(resetGate)
			r.Patch("/resetpassword", h.ResetPassword)
		})

		r.Group(func(r chi.Router) {
			r.Use(accessGate)
			r.Post("/logout", h.Logout)
			r.Get("/authtoken", h.AuthToken)
			r.Get("/me", h.Me)
		})
	})
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	role, ok := parseRole(chi.URLParam(r, "role"))
	if !ok {
		core.BadRequest(w, "invalid role")
		return
	}

	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	resp, err := h.service.Signup(r.Context(), req, role)
	if err != nil {
		if errors.Is(err, core.ErrDuplicateKey) {
			core.BadRequest(w, "account already exists, please log in")
			return
		}
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, "account created successfully", resp)
}

func (h *Handler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	resp, err := h.service.ResendVerification(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			core.NotFound(w, "account")
			return
		}
		if errors.Is(err, core.ErrAlreadyVerified) {
			core.BadRequest(w, "account is already verified")
			return
		}
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, "verification email sent", resp)
}

func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		core.Unauthorized(w, "")
		return
	}

	var req VerifyEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	if err := h.service.VerifyEmail(r.Context(), claims, req.Code); err != nil {
		if errors.Is(err, core.ErrAlreadyVerified) {
			core.BadRequest(w, "account is already verified")
			return
		}
		if errors.Is(err, core.ErrCodeMismatch) {
			core.BadRequest(w, "invalid verification code")
			return
		}
		if errors.Is(err, core.ErrNotFound) {
			core.NotFound(w, "account")
			return
		}
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, "email verified successfully", nil)
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	resp, err := h.service.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			core.NotFound(w, "account")
			return
		}
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, "password reset code sent", resp)
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		core.Unauthorized(w, "")
		return
	}

	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	err := h.service.ResetPassword(r.Context(), claims, req.Code, req.Password)
	if err != nil {
		if errors.Is(err, core.ErrCodeMismatch) {
			core.BadRequest(w, "invalid password reset code")
			return
		}
		if errors.Is(err, core.ErrNotFound) {
			core.NotFound(w, "account")
			return
		}
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, "password reset successfully", nil)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	resp, err := h.service.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			core.JSONError(
				w,
				core.UnauthorizedError("invalid email or password"),
			)
			return
		}
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, "login successful", resp)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		core.Unauthorized(w, "")
		return
	}

	if err := h.service.Logout(r.Context(), claims); err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, "logout successful", nil)
}

// AuthToken is only reached when the gate's exchange short-circuit did
// not fire (e.g. the handler is mounted on a different path); it performs
// the same exchange.
func (h *Handler) AuthToken(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		core.Unauthorized(w, "")
		return
	}

	pair, err := h.service.Exchange(r.Context(), claims)
	if err != nil {
		if errors.Is(err, core.ErrTokenInvalid) {
			core.JSONError(w, core.TokenInvalidError())
			return
		}
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, "successfully exchanged auth tokens", map[string]any{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_at":    pair.ExpiresAt,
	})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == "" {
		core.Unauthorized(w, "")
		return
	}

	resp, err := h.service.CurrentAccount(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			core.NotFound(w, "account")
			return
		}
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, "account retrieved", resp)
}

func parseRole(param string) (string, bool) {
	switch strings.ToLower(param) {
	case "enduser":
		return account.RoleEndUser, true
	case "admin":
		return account.RoleAdmin, true
	case "superadmin":
		return account.RoleSuperAdmin, true
	}
	return "", false
}

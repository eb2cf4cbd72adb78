package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/iyunix/go-designdesk/internal/logger"
	"github.com/iyunix/go-designdesk/internal/middleware"
	"github.com/iyunix/go-designdesk/internal/services/identity"
)

type IdentityHandler struct {
	Identity *identity.Service
	logger   logger.Logger
}

func NewIdentityHandler(svc *identity.Service, log logger.Logger) *IdentityHandler {
	return &IdentityHandler{Identity: svc, logger: log}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup creates an account. The profile row is created separately.
func (h *IdentityHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decodeJSON(w, r, &req) {
		return
	}
	acct, err := h.Identity.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrEmailTaken) {
			writeError(w, http.StatusConflict, middleware.CodeConflict, "Email already registered")
			return
		}
		writeError(w, http.StatusBadRequest, middleware.CodeInvalidRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

// Token exchanges credentials for a bearer token.
func (h *IdentityHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decodeJSON(w, r, &req) {
		return
	}
	token, acct, err := h.Identity.IssueToken(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, middleware.CodeAuthRequired, "Invalid credentials")
			return
		}
		var locked *identity.LockedError
		if errors.As(err, &locked) {
			retry := int(math.Ceil(locked.RetryAfter(time.Now()).Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			writeError(w, http.StatusTooManyRequests, middleware.CodeRateLimited, "Too many failed sign-in attempts")
			return
		}
		h.logger.Error("token issue failed", "error", err)
		writeError(w, http.StatusInternalServerError, middleware.CodeInternal, "Could not issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": token,
		"token_type":   "bearer",
		"account":      acct,
	})
}

// GetProfile returns a public profile by id.
func (h *IdentityHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.Identity.GetProfile(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, identity.ErrProfileNotFound) {
			writeError(w, http.StatusNotFound, middleware.CodeNotFound, "Profile not found")
			return
		}
		writeError(w, http.StatusInternalServerError, middleware.CodeInternal, "Could not load profile")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// PutOwnProfile creates or updates the caller's profile row.
func (h *IdentityHandler) PutOwnProfile(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())

	var req identity.ProfileInput
	if !decodeJSON(w, r, &req) {
		return
	}
	profile, err := h.Identity.UpsertProfile(r.Context(), accountID, req)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidProfile):
			writeError(w, http.StatusBadRequest, middleware.CodeInvalidRequest, err.Error())
		case errors.Is(err, identity.ErrUnauthenticated):
			writeError(w, http.StatusUnauthorized, middleware.CodeAuthRequired, "Account no longer exists")
		default:
			writeError(w, http.StatusInternalServerError, middleware.CodeInternal, "Could not save profile")
		}
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

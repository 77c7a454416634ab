package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nexura/nexura-api/internal/api/dto"
	"github.com/nexura/nexura-api/internal/api/middleware"
	"github.com/nexura/nexura-api/internal/auth"
	"github.com/nexura/nexura-api/internal/database/models"
	"github.com/nexura/nexura-api/internal/store"
	"github.com/nexura/nexura-api/internal/upload"
)

// CookieConfig controls the refresh token cookie.
type CookieConfig struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

func (c CookieConfig) sameSite() http.SameSite {
	// Cross-site frontends need None, which browsers only accept with Secure.
	if c.Secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

// AuthHandler serves the account routes of one organization kind. The hub
// and project routers each get their own instance.
type AuthHandler struct {
	sessions auth.SessionManager
	kind     models.OrgKind
	cookie   CookieConfig
	logger   *slog.Logger
}

func NewAuthHandler(sessions auth.SessionManager, kind models.OrgKind, cookie CookieConfig, logger *slog.Logger) *AuthHandler {
	if cookie.Name == "" {
		cookie.Name = "refreshToken"
	}
	if cookie.MaxAge <= 0 {
		cookie.MaxAge = 30 * 24 * time.Hour
	}
	return &AuthHandler{
		sessions: sessions,
		kind:     kind,
		cookie:   cookie,
		logger:   logger.With("kind", kind),
	}
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	req, logo, err := h.decodeSignUp(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	req.Normalize()
	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errors})
		return
	}

	session, err := h.sessions.SignUp(r.Context(), auth.SignUpInput{
		Kind:        h.kind,
		Name:        req.Name,
		Email:       req.Email,
		Password:    req.Password,
		Address:     req.Address,
		Description: req.Description,
		Logo:        logo,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.setRefreshCookie(w, session.RefreshToken)

	var summary dto.OrganizationSummary
	if org := session.Account.Organization; org != nil {
		summary = dto.OrganizationSummary{Name: org.Name, Logo: org.Logo}
	}
	writeJSON(w, http.StatusCreated, dto.SignUpResponse{
		AccessToken: session.AccessToken,
		Project:     summary,
	})
}

// decodeSignUp accepts either a JSON body or a multipart form with an
// optional "logo" file part.
func (h *AuthHandler) decodeSignUp(r *http.Request) (dto.SignUpRequest, *auth.LogoFile, error) {
	var req dto.SignUpRequest

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, nil, errors.New("Invalid request body")
		}
		return req, nil, nil
	}

	if err := r.ParseMultipartForm(upload.MaxLogoBytes); err != nil {
		return req, nil, errors.New("Invalid multipart form")
	}
	req = dto.SignUpRequest{
		Name:        r.FormValue("name"),
		Email:       r.FormValue("email"),
		Password:    r.FormValue("password"),
		Address:     r.FormValue("address"),
		Description: r.FormValue("description"),
	}

	file, header, err := r.FormFile("logo")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil, nil
	}
	if err != nil {
		return req, nil, errors.New("Invalid logo upload")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, upload.MaxLogoBytes+1))
	if err != nil {
		return req, nil, errors.New("Invalid logo upload")
	}
	if len(data) > upload.MaxLogoBytes {
		return req, nil, fmt.Errorf("Logo must be at most %d MB", upload.MaxLogoBytes>>20)
	}
	return req, &auth.LogoFile{Data: data, Filename: header.Filename}, nil
}

func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req dto.SignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errors})
		return
	}

	session, err := h.sessions.SignIn(r.Context(), auth.SignInInput{
		Kind:     h.kind,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.setRefreshCookie(w, session.RefreshToken)
	writeJSON(w, http.StatusOK, dto.SessionResponse{Message: "Signed in", AccessToken: session.AccessToken})
}

func (h *AuthHandler) AdminSignUp(w http.ResponseWriter, r *http.Request) {
	var req dto.AdminSignUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errors})
		return
	}

	session, err := h.sessions.SignUpAdmin(r.Context(), auth.AdminSignUpInput{
		Kind:     h.kind,
		Email:    req.Email,
		Code:     req.Code,
		Password: req.Password,
		Name:     req.Name,
		Address:  req.Address,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.setRefreshCookie(w, session.RefreshToken)
	writeJSON(w, http.StatusOK, dto.SessionResponse{Message: "Admin account created", AccessToken: session.AccessToken})
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errors})
		return
	}

	if err := h.sessions.ForgotPassword(r.Context(), h.kind, req.Email, req.Role); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Password reset link sent"})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if req.Token == "" {
		// The emailed link carries the token in the query string.
		req.Token = r.URL.Query().Get("token")
	}

	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errors})
		return
	}

	if err := h.sessions.ResetPassword(r.Context(), h.kind, req.Token, req.Password); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Password updated"})
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var token string
	if cookie, err := r.Cookie(h.cookie.Name); err == nil {
		token = cookie.Value
	}

	session, err := h.sessions.Refresh(r.Context(), h.kind, token)
	if errors.Is(err, auth.ErrTokenInvalid) {
		h.clearRefreshCookie(w)
		writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Invalid or expired token"})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.setRefreshCookie(w, session.RefreshToken)
	writeJSON(w, http.StatusOK, dto.SessionResponse{Message: "Token refreshed", AccessToken: session.AccessToken})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var refresh string
	if cookie, err := r.Cookie(h.cookie.Name); err == nil {
		refresh = cookie.Value
	}

	if err := h.sessions.Logout(r.Context(), middleware.GetAccessToken(r.Context()), refresh); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Logged out"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r.Context())
	if account == nil {
		writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, dto.NewAccountDTO(account))
}

func (h *AuthHandler) InviteAdmin(w http.ResponseWriter, r *http.Request) {
	var req dto.InviteAdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errors})
		return
	}

	inv, err := h.sessions.InviteAdmin(r.Context(), middleware.GetAccount(r.Context()), req.Email, req.Role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.InvitationResponse{
		Message:   "Invitation sent",
		Email:     inv.Email,
		ExpiresAt: inv.ExpiresAt,
	})
}

func (h *AuthHandler) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: h.cookie.sameSite(),
		MaxAge:   int(h.cookie.MaxAge.Seconds()),
	})
}

func (h *AuthHandler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: h.cookie.sameSite(),
		MaxAge:   -1,
	})
}

// writeError maps service errors to status codes. Anything unrecognised is
// logged and collapsed to a bare 500.
func (h *AuthHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *auth.ValidationError
	var dup *store.DuplicateKeyError

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: verr.Fields})
	case errors.As(err, &dup):
		details := make(map[string]string, len(dup.Fields))
		for _, f := range dup.Fields {
			details[f] = "already in use"
		}
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
			Error:   strings.Join(dup.Fields, ", ") + " already in use",
			Details: details,
		})
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid credentials"})
	case errors.Is(err, auth.ErrInvitationInvalid):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid or expired code"})
	case errors.Is(err, auth.ErrTokenInvalid):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid or expired token"})
	case errors.Is(err, auth.ErrTokenAlreadyUsed):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Token has already been used"})
	case errors.Is(err, auth.ErrOrganizationMissing):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Account is not linked to an organization"})
	case errors.Is(err, auth.ErrAccountNotFound):
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Account not found"})
	case errors.Is(err, auth.ErrForbidden):
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Forbidden"})
	default:
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

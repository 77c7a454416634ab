package handlers_test

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/nexura/nexura-api/internal/api/dto"
	"github.com/nexura/nexura-api/internal/api/handlers"
	"github.com/nexura/nexura-api/internal/api/middleware"
	"github.com/nexura/nexura-api/internal/database/models"
	"github.com/nexura/nexura-api/internal/testutil"
	"github.com/nexura/nexura-api/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupAuthTestRouter(t *testing.T, kind models.OrgKind) (*chi.Mux, *testutil.Env) {
	env := testutil.NewEnv(t)

	handler := handlers.NewAuthHandler(env.Service, kind, handlers.CookieConfig{Secure: true}, util.DiscardLogger())

	r := chi.NewRouter()
	r.Route("/"+string(kind), func(r chi.Router) {
		r.Post("/sign-up", handler.SignUp)
		r.Post("/sign-in", handler.SignIn)
		r.Post("/admin/sign-up", handler.AdminSignUp)
		r.Post("/forgot-password", handler.ForgotPassword)
		r.Post("/reset-password", handler.ResetPassword)
		r.Post("/refresh", handler.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(env.Service))
			r.Use(middleware.RequireKind(kind))
			r.Post("/logout", handler.Logout)
			r.Get("/me", handler.Me)
			r.With(middleware.RequireOwner).Post("/admin/invite", handler.InviteAdmin)
		})
	})

	return r, env
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func refreshCookie(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == "refreshToken" {
			return c
		}
	}
	t.Fatalf("no refreshToken cookie in response")
	return nil
}

func signUp(t *testing.T, router http.Handler, name, email string) (dto.SignUpResponse, *http.Cookie) {
	t.Helper()
	rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/hub/sign-up", map[string]string{
		"name":     name,
		"email":    email,
		"password": "Secr3t!",
	}))
	testutil.AssertStatus(t, rr, http.StatusCreated)

	var resp dto.SignUpResponse
	testutil.ParseJSONResponse(t, rr, &resp)
	return resp, refreshCookie(t, rr)
}

func TestAuthHandler_SignUp(t *testing.T) {
	router, _ := setupAuthTestRouter(t, models.OrgKindHub)

	t.Run("successful sign-up", func(t *testing.T) {
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/hub/sign-up", map[string]string{
			"name":     "Acme",
			"email":    "a@acme.io",
			"password": "Secr3t!",
		}))
		testutil.AssertStatus(t, rr, http.StatusCreated)

		var resp dto.SignUpResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.NotEmpty(t, resp.AccessToken)
		assert.Equal(t, "Acme", resp.Project.Name)
		assert.Contains(t, resp.Project.Logo, "ui-avatars.com")

		cookie := refreshCookie(t, rr)
		assert.NotEmpty(t, cookie.Value)
		assert.True(t, cookie.HttpOnly)
		assert.True(t, cookie.Secure)
		assert.Equal(t, http.SameSiteNoneMode, cookie.SameSite)
		assert.Equal(t, "/", cookie.Path)
		assert.Equal(t, 30*24*60*60, cookie.MaxAge)
		assert.NotContains(t, rr.Body.String(), cookie.Value)
	})

	t.Run("duplicate email", func(t *testing.T) {
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/hub/sign-up", map[string]string{
			"name":     "Acme Two",
			"email":    "A@ACME.io",
			"password": "Secr3t!",
		}))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)

		var resp dto.ErrorResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, "email already in use", resp.Error)
		assert.Equal(t, "already in use", resp.Details["email"])
	})

	t.Run("validation errors", func(t *testing.T) {
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/hub/sign-up", map[string]string{
			"email":   "not-an-email",
			"address": "0x1234",
		}))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)

		var resp dto.ErrorResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, "Validation failed", resp.Error)
		assert.Contains(t, resp.Details, "name")
		assert.Contains(t, resp.Details, "email")
		assert.Contains(t, resp.Details, "password")
		assert.Contains(t, resp.Details, "address")
	})

	t.Run("invalid body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/hub/sign-up", bytes.NewBufferString("{"))
		req.Header.Set("Content-Type", "application/json")
		rr := serve(router, req)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})
}

func TestAuthHandler_SignUpMultipart(t *testing.T) {
	router, env := setupAuthTestRouter(t, models.OrgKindProject)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("name", "Moonbase"))
	require.NoError(t, mw.WriteField("email", "team@moonbase.io"))
	require.NoError(t, mw.WriteField("password", "Secr3t!"))
	require.NoError(t, mw.WriteField("description", "Lunar quests"))
	part, err := mw.CreateFormFile("logo", "moon.png")
	require.NoError(t, err)
	_, err = part.Write([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a})
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/project/sign-up", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := serve(router, req)
	testutil.AssertStatus(t, rr, http.StatusCreated)

	var resp dto.SignUpResponse
	testutil.ParseJSONResponse(t, rr, &resp)
	assert.Equal(t, "Moonbase", resp.Project.Name)
	assert.Equal(t, "https://cdn.test/project-logos/moon.png", resp.Project.Logo)
	assert.Len(t, env.Uploader.Uploads, 1)
}

func TestAuthHandler_SignIn(t *testing.T) {
	router, env := setupAuthTestRouter(t, models.OrgKindHub)
	signUp(t, router, "Acme", "a@acme.io")

	t.Run("case-insensitive email", func(t *testing.T) {
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/hub/sign-in", map[string]string{
			"email":    "A@Acme.io",
			"password": "Secr3t!",
		}))
		testutil.AssertStatus(t, rr, http.StatusOK)

		var resp dto.SessionResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.NotEmpty(t, resp.AccessToken)
		assert.NotEmpty(t, resp.Message)
		refreshCookie(t, rr)
	})

	t.Run("wrong password and unknown email look the same", func(t *testing.T) {
		wrong := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/hub/sign-in", map[string]string{
			"email":    "a@acme.io",
			"password": "wrong",
		}))
		unknown := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/hub/sign-in", map[string]string{
			"email":    "ghost@acme.io",
			"password": "wrong",
		}))

		testutil.AssertStatus(t, wrong, http.StatusBadRequest)
		testutil.AssertStatus(t, unknown, http.StatusBadRequest)
		assert.Equal(t, wrong.Body.String(), unknown.Body.String())
		assert.JSONEq(t, `{"error":"Invalid credentials"}`, wrong.Body.String())
	})

	t.Run("missing fields", func(t *testing.T) {
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/hub/sign-in", map[string]string{}))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("legacy password too long for bcrypt", func(t *testing.T) {
		long := strings.Repeat("x", 80)
		testutil.CreateLegacyAccount(t, env.DB, models.VariantHubSuperAdmin, "long@acme.io", long)

		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/hub/sign-in", map[string]string{
			"email":    "long@acme.io",
			"password": long,
		}))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
		assert.JSONEq(t, `{"error":"Invalid credentials"}`, rr.Body.String())
	})
}

func TestAuthHandler_AdminSignUp(t *testing.T) {
	router, env := setupAuthTestRouter(t, models.OrgKindHub)
	owner, _ := signUp(t, router, "Acme", "a@acme.io")

	rr := serve(router, testutil.AuthenticatedRequest(t, "POST", "/hub/admin/invite", map[string]string{
		"email": "bob@acme.io",
	}, owner.AccessToken))
	testutil.AssertStatus(t, rr, http.StatusCreated)

	body := map[string]string{
		"email":    "bob@acme.io",
		"code":     env.Mailer.LastInvite(t, "bob@acme.io").Code,
		"password": "b0b-pass",
	}

	rr = serve(router, testutil.UnauthenticatedRequest(t, "POST", "/hub/admin/sign-up", body))
	testutil.AssertStatus(t, rr, http.StatusOK)
	var resp dto.SessionResponse
	testutil.ParseJSONResponse(t, rr, &resp)
	assert.NotEmpty(t, resp.AccessToken)

	rr = serve(router, testutil.UnauthenticatedRequest(t, "POST", "/hub/admin/sign-up", body))
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	assert.JSONEq(t, `{"error":"Invalid or expired code"}`, rr.Body.String())

	t.Run("admins cannot invite", func(t *testing.T) {
		rr := serve(router, testutil.AuthenticatedRequest(t, "POST", "/hub/admin/invite", map[string]string{
			"email": "carol@acme.io",
		}, resp.AccessToken))
		testutil.AssertStatus(t, rr, http.StatusForbidden)
	})
}

// Admin sign-up requires a password even when a client sends only
// {email, code}: an admin created without one could never sign in. The
// decision is recorded under Open Questions in DESIGN.md.
func TestAuthHandler_AdminSignUpRequiresPassword(t *testing.T) {
	router, env := setupAuthTestRouter(t, models.OrgKindHub)
	owner, _ := signUp(t, router, "Acme", "a@acme.io")

	rr := serve(router, testutil.AuthenticatedRequest(t, "POST", "/hub/admin/invite", map[string]string{
		"email": "bob@acme.io",
	}, owner.AccessToken))
	testutil.AssertStatus(t, rr, http.StatusCreated)
	code := env.Mailer.LastInvite(t, "bob@acme.io").Code

	rr = serve(router, testutil.UnauthenticatedRequest(t, "POST", "/hub/admin/sign-up", map[string]string{
		"email": "bob@acme.io",
		"code":  code,
	}))
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	var body map[string]interface{}
	testutil.ParseJSONResponse(t, rr, &body)
	details, ok := body["details"].(map[string]interface{})
	require.True(t, ok, rr.Body.String())
	assert.Contains(t, details, "password")

	// The rejected attempt did not consume the code.
	rr = serve(router, testutil.UnauthenticatedRequest(t, "POST", "/hub/admin/sign-up", map[string]string{
		"email":    "bob@acme.io",
		"code":     code,
		"password": "b0b-pass",
	}))
	testutil.AssertStatus(t, rr, http.StatusOK)
}

func TestAuthHandler_PasswordReset(t *testing.T) {
	router, env := setupAuthTestRouter(t, models.OrgKindHub)
	signUp(t, router, "Acme", "a@acme.io")

	t.Run("unknown email is 404", func(t *testing.T) {
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/hub/forgot-password", map[string]string{
			"email": "ghost@acme.io",
		}))
		testutil.AssertStatus(t, rr, http.StatusNotFound)
	})

	rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/hub/forgot-password", map[string]string{
		"email": "a@acme.io",
	}))
	testutil.AssertStatus(t, rr, http.StatusOK)

	token := env.Mailer.LastResetToken(t, "a@acme.io")

	rr = serve(router, testutil.UnauthenticatedRequest(t, "POST", "/hub/reset-password?token="+token, map[string]string{
		"password": "N3w-pass",
	}))
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr = serve(router, testutil.UnauthenticatedRequest(t, "POST", "/hub/reset-password", map[string]string{
		"token":    token,
		"password": "again",
	}))
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	assert.JSONEq(t, `{"error":"Token has already been used"}`, rr.Body.String())

	rr = serve(router, testutil.UnauthenticatedRequest(t, "POST", "/hub/sign-in", map[string]string{
		"email":    "a@acme.io",
		"password": "N3w-pass",
	}))
	testutil.AssertStatus(t, rr, http.StatusOK)
}

func TestAuthHandler_UnexpectedErrorsAreOpaque(t *testing.T) {
	router, env := setupAuthTestRouter(t, models.OrgKindHub)
	signUp(t, router, "Acme", "a@acme.io")
	env.Mailer.Err = errors.New("dial tcp 10.0.0.7:587: connection refused")

	rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/hub/forgot-password", map[string]string{
		"email": "a@acme.io",
	}))
	testutil.AssertStatus(t, rr, http.StatusInternalServerError)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rr.Body.String())
}

func TestAuthHandler_RefreshAndLogout(t *testing.T) {
	router, _ := setupAuthTestRouter(t, models.OrgKindHub)
	session, cookie := signUp(t, router, "Acme", "a@acme.io")

	req := httptest.NewRequest("POST", "/hub/refresh", nil)
	req.AddCookie(cookie)
	rr := serve(router, req)
	testutil.AssertStatus(t, rr, http.StatusOK)
	rotated := refreshCookie(t, rr)
	assert.NotEqual(t, cookie.Value, rotated.Value)

	// The old refresh token was consumed by the rotation.
	req = httptest.NewRequest("POST", "/hub/refresh", nil)
	req.AddCookie(cookie)
	rr = serve(router, req)
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)

	rr = serve(router, testutil.AuthenticatedRequest(t, "GET", "/hub/me", nil, session.AccessToken))
	testutil.AssertStatus(t, rr, http.StatusOK)
	var me dto.AccountDTO
	testutil.ParseJSONResponse(t, rr, &me)
	assert.Equal(t, "a@acme.io", me.Email)
	assert.Equal(t, string(models.VariantHubSuperAdmin), me.Variant)
	require.NotNil(t, me.Organization)
	assert.Equal(t, "Acme", me.Organization.Name)

	req = testutil.AuthenticatedRequest(t, "POST", "/hub/logout", nil, session.AccessToken)
	req.AddCookie(rotated)
	rr = serve(router, req)
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Equal(t, -1, refreshCookie(t, rr).MaxAge)

	rr = serve(router, testutil.AuthenticatedRequest(t, "GET", "/hub/me", nil, session.AccessToken))
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)

	req = httptest.NewRequest("POST", "/hub/refresh", nil)
	req.AddCookie(rotated)
	rr = serve(router, req)
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)
}

func TestAuthHandler_KindIsolation(t *testing.T) {
	env := testutil.NewEnv(t)
	hub := testutil.CreateOwner(t, env, models.OrgKindHub, "Acme")

	r := chi.NewRouter()
	handler := handlers.NewAuthHandler(env.Service, models.OrgKindProject, handlers.CookieConfig{}, util.DiscardLogger())
	r.With(middleware.Auth(env.Service), middleware.RequireKind(models.OrgKindProject)).Get("/project/me", handler.Me)

	rr := serve(r, testutil.AuthenticatedRequest(t, "GET", "/project/me", nil, hub.AccessToken))
	testutil.AssertStatus(t, rr, http.StatusForbidden)
}

package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/nexura/nexura-api/internal/auth"
	"github.com/nexura/nexura-api/internal/database"
	"github.com/nexura/nexura-api/internal/database/models"
	"github.com/nexura/nexura-api/internal/mail"
	"github.com/nexura/nexura-api/internal/metrics"
	"github.com/nexura/nexura-api/internal/store"
	"github.com/nexura/nexura-api/pkg/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestPassword is the password of every account created by the helpers below.
const TestPassword = "testpassword123"

// SetupTestDB creates an in-memory SQLite database for testing. An in-memory
// database lives on a single connection, so the pool is pinned to one.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), database.Options(logger.Default.LogMode(logger.Silent)))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() { database.Close(db) })
	return db
}

// SetupRedis starts an in-process Redis and returns a client for it.
func SetupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// FakeMailer records outgoing mail instead of sending it.
type FakeMailer struct {
	mu      sync.Mutex
	Resets  []SentReset
	Invites []SentInvite
	Err     error
}

type SentReset struct {
	To   string
	Link string
}

type SentInvite struct {
	To     string
	Invite mail.Invite
}

func (m *FakeMailer) SendPasswordReset(ctx context.Context, to, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Resets = append(m.Resets, SentReset{To: to, Link: link})
	return nil
}

func (m *FakeMailer) SendAdminInvite(ctx context.Context, to string, invite mail.Invite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Invites = append(m.Invites, SentInvite{To: to, Invite: invite})
	return nil
}

// LastInvite returns the most recent invitation sent to "to".
func (m *FakeMailer) LastInvite(t *testing.T, to string) mail.Invite {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Invites) - 1; i >= 0; i-- {
		if m.Invites[i].To == to {
			return m.Invites[i].Invite
		}
	}
	t.Fatalf("no invitation sent to %s", to)
	return mail.Invite{}
}

// LastResetToken extracts the token from the most recent reset link sent to "to".
func (m *FakeMailer) LastResetToken(t *testing.T, to string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Resets) - 1; i >= 0; i-- {
		if m.Resets[i].To == to {
			_, token, ok := strings.Cut(m.Resets[i].Link, "token=")
			if !ok {
				t.Fatalf("reset link without token: %s", m.Resets[i].Link)
			}
			return token
		}
	}
	t.Fatalf("no reset email sent to %s", to)
	return ""
}

// FakeUploader stores nothing and returns a predictable URL.
type FakeUploader struct {
	mu      sync.Mutex
	Uploads []string
	Err     error
}

func (u *FakeUploader) Upload(ctx context.Context, data []byte, filename, folder string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return "", u.Err
	}
	location := "https://cdn.test/" + folder + "/" + filename
	u.Uploads = append(u.Uploads, location)
	return location, nil
}

// Env wires the whole auth core against SQLite and miniredis.
type Env struct {
	DB          *gorm.DB
	Store       *store.Store
	Redis       *redis.Client
	Miniredis   *miniredis.Miniredis
	Mailer      *FakeMailer
	Uploader    *FakeUploader
	Registry    *prometheus.Registry
	Metrics     *metrics.Metrics
	Hasher      *auth.PasswordHasher
	Tokens      *auth.JWTService
	Revocations *auth.RedisRevocationStore
	Invitations *auth.InvitationService
	Reconciler  *auth.Reconciler
	Service     *auth.Service
}

func NewEnv(t *testing.T) *Env {
	t.Helper()

	db := SetupTestDB(t)
	mr, client := SetupRedis(t)
	log := util.DiscardLogger()

	env := &Env{
		DB:        db,
		Store:     store.New(db),
		Redis:     client,
		Miniredis: mr,
		Mailer:    &FakeMailer{},
		Uploader:  &FakeUploader{},
		Registry:  prometheus.NewRegistry(),
		Hasher:    auth.NewPasswordHasher(auth.DefaultBcryptCost),
		Tokens:    CreateTestJWTService(),
	}
	env.Metrics = metrics.New(env.Registry)
	env.Revocations = auth.NewRedisRevocationStore(client, "")
	env.Invitations = auth.NewInvitationService(env.Store, env.Mailer, auth.DefaultInvitationTTL, log)
	env.Reconciler = auth.NewReconciler(env.Store, env.Metrics, log)

	svc, err := auth.NewService(auth.ServiceConfig{
		Store:       env.Store,
		Hasher:      env.Hasher,
		Tokens:      env.Tokens,
		Revocations: env.Revocations,
		Invitations: env.Invitations,
		Reconciler:  env.Reconciler,
		Mailer:      env.Mailer,
		Uploader:    env.Uploader,
		Metrics:     env.Metrics,
		Logger:      log,
		ClientURL:   "https://app.nexura.test",
	})
	if err != nil {
		t.Fatalf("failed to create auth service: %v", err)
	}
	env.Service = svc

	return env
}

// CreateTestJWTService creates a JWT service for testing
func CreateTestJWTService() *auth.JWTService {
	return auth.NewJWTService("test-secret-key-for-testing", auth.DefaultTokenTTLs())
}

// UniqueEmail returns a fresh address under example.com.
func UniqueEmail(prefix string) string {
	return prefix + "-" + uuid.New().String()[:8] + "@example.com"
}

// CreateOwner signs up an owner of kind through the service.
func CreateOwner(t *testing.T, env *Env, kind models.OrgKind, name string) *auth.Session {
	t.Helper()

	session, err := env.Service.SignUp(context.Background(), auth.SignUpInput{
		Kind:     kind,
		Name:     name,
		Email:    UniqueEmail("owner"),
		Password: TestPassword,
	})
	if err != nil {
		t.Fatalf("failed to sign up owner: %v", err)
	}
	return session
}

// CreateAdmin invites and signs up an admin into the owner's organization.
func CreateAdmin(t *testing.T, env *Env, owner *models.Account) *auth.Session {
	t.Helper()
	ctx := context.Background()

	email := UniqueEmail("admin")
	if _, err := env.Service.InviteAdmin(ctx, owner, email, ""); err != nil {
		t.Fatalf("failed to invite admin: %v", err)
	}

	kind := owner.Variant.OrgKind()
	session, err := env.Service.SignUpAdmin(ctx, auth.AdminSignUpInput{
		Kind:     kind,
		Email:    email,
		Code:     env.Mailer.LastInvite(t, email).Code,
		Password: TestPassword,
	})
	if err != nil {
		t.Fatalf("failed to sign up admin: %v", err)
	}
	return session
}

// CreateLegacyAccount inserts an account the way the old sign-up path did:
// plaintext password and no organization link.
func CreateLegacyAccount(t *testing.T, db *gorm.DB, variant models.Variant, email, plaintext string) *models.Account {
	t.Helper()

	account := &models.Account{
		Base:         models.Base{ID: uuid.New()},
		Variant:      variant,
		Email:        email,
		PasswordHash: plaintext,
		Role:         variant.OrgKind().OwnerRole(),
		Name:         "Legacy " + uuid.New().String()[:6],
	}
	if err := db.Omit("Organization").Create(account).Error; err != nil {
		t.Fatalf("failed to create legacy account: %v", err)
	}
	return account
}

// AuthenticatedRequest creates an HTTP request with authentication
func AuthenticatedRequest(t *testing.T, method, path string, body interface{}, token string) *http.Request {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

// UnauthenticatedRequest creates an HTTP request without authentication
func UnauthenticatedRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	return AuthenticatedRequest(t, method, path, body, "")
}

// AssertStatus checks if the response has the expected status code
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if rr.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, rr.Code, rr.Body.String())
	}
}

// ParseJSONResponse parses the response body into the given struct
func ParseJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response body: %v. Body: %s", err, rr.Body.String())
	}
}

// TestContext creates a context with a timeout for tests
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"golang.org/x/crypto/bcrypt"

	"github.com/songzhibin97/qwork/internal/config"
	"github.com/songzhibin97/qwork/internal/filestore"
	"github.com/songzhibin97/qwork/internal/market/auth"
	"github.com/songzhibin97/qwork/internal/market/coordinator"
	"github.com/songzhibin97/qwork/internal/market/repository/memory"
	"github.com/songzhibin97/qwork/internal/market/service"
	"github.com/songzhibin97/qwork/internal/ratelimit"
	storemem "github.com/songzhibin97/qwork/internal/store/driver/memory"
	"github.com/songzhibin97/qwork/pkg/log"
	"github.com/songzhibin97/qwork/pkg/market"
)

// mailbox records the tokens and passwords the services send out
type mailbox struct {
	mu   sync.Mutex
	last map[string]string
}

func (m *mailbox) put(kind, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last[kind] = value
	return nil
}

func (m *mailbox) get(kind string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last[kind]
}

func (m *mailbox) SendActivation(ctx context.Context, to, token string) error {
	return m.put("activation", token)
}

func (m *mailbox) SendPasswordReset(ctx context.Context, to, token string) error {
	return m.put("reset", token)
}

func (m *mailbox) SendAdminTemporaryPassword(ctx context.Context, to, password string) error {
	return m.put("admin_password", password)
}

func (m *mailbox) SendPortfolioStatus(ctx context.Context, to, title string, status market.PortfolioStatus) error {
	return m.put("status", string(status))
}

type testServer struct {
	server *Server
	admins *service.AdminService
	mail   *mailbox
}

func newTestServer(t *testing.T, limit int) *testServer {
	t.Helper()

	cfg := config.Default()
	cfg.Server.Mode = gin.TestMode
	cfg.Logging.AccessLog.Enabled = false

	repo := memory.NewRepository()
	files := filestore.New(afero.NewMemMapFs())
	coord := coordinator.New(repo, files, log.NewNop())
	kv := storemem.New(nil)
	t.Cleanup(func() { kv.Close() })

	tokens, err := auth.NewJWTManager(auth.Config{AccessSecret: "access", RefreshSecret: "refresh"})
	if err != nil {
		t.Fatalf("NewJWTManager() returned error: %v", err)
	}
	hasher := auth.NewPasswordHasher(bcrypt.MinCost)
	mail := &mailbox{last: make(map[string]string)}
	svcCfg := service.DefaultConfig()

	deps := Dependencies{
		Repo:       repo,
		Store:      kv,
		Files:      files,
		Tokens:     tokens,
		Accounts:   service.NewAccountService(repo, coord, hasher, tokens, auth.NewDenylist(kv), mail, svcCfg, nil),
		Portfolios: service.NewPortfolioService(repo, coord, mail, svcCfg, nil),
		Admins:     service.NewAdminService(repo, hasher, tokens, mail, nil),
		Registry:   prometheus.NewRegistry(),
	}
	if limit > 0 {
		deps.Limiter = ratelimit.NewLimiter(kv, &ratelimit.Config{MaxRequests: limit, WindowSize: time.Minute, KeyPrefix: "rl:"}, nil)
	}

	srv, err := NewServer(cfg, deps, nil)
	if err != nil {
		t.Fatalf("NewServer() returned error: %v", err)
	}
	return &testServer{server: srv, admins: deps.Admins, mail: mail}
}

func (ts *testServer) do(t *testing.T, method, target string, body io.Reader, contentType, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, req)
	return w
}

func (ts *testServer) doJSON(t *testing.T, method, target string, payload interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	return ts.do(t, method, target, bytes.NewReader(data), "application/json", token)
}

// upload is one file part of a multipart form
type upload struct {
	field, filename string
	data            []byte
}

func multipartBody(t *testing.T, fields map[string]string, files ...upload) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField() returned error: %v", err)
		}
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.field, f.filename)
		if err != nil {
			t.Fatalf("CreateFormFile() returned error: %v", err)
		}
		part.Write(f.data)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() returned error: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 30), G: uint8(y * 30), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode %s: %v", w.Body.String(), err)
	}
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d: %s", w.Code, status, w.Body.String())
	}
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	expectStatus(t, w, status)
	var resp struct {
		Error string `json:"error"`
	}
	decode(t, w, &resp)
	if resp.Error != code {
		t.Errorf("error = %q, want %q", resp.Error, code)
	}
}

// signupAndLogin registers, activates and logs in an account
func (ts *testServer) signupAndLogin(t *testing.T, email string) (int64, string) {
	t.Helper()
	body, ct := multipartBody(t, map[string]string{
		"email":     email,
		"password":  "password",
		"firstName": "Ada",
	}, upload{field: "profileImage", filename: "me.png", data: pngBytes(t)})
	w := ts.do(t, http.MethodPost, "/api/auth/signup", body, ct, "")
	expectStatus(t, w, http.StatusCreated)
	var signup struct {
		UserID int64 `json:"user_id"`
	}
	decode(t, w, &signup)

	w = ts.do(t, http.MethodGet, "/api/auth/activate-account/"+ts.mail.get("activation"), nil, "", "")
	expectStatus(t, w, http.StatusOK)

	w = ts.doJSON(t, http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": "password"}, "")
	expectStatus(t, w, http.StatusOK)
	var login struct {
		AccessToken string `json:"accessToken"`
	}
	decode(t, w, &login)
	if login.AccessToken == "" {
		t.Fatal("login returned no access token")
	}
	return signup.UserID, login.AccessToken
}

func (ts *testServer) adminToken(t *testing.T) string {
	t.Helper()
	if _, _, err := ts.admins.EnsureAdmin(context.Background(), "root@example.com", "rootpass", "Root"); err != nil {
		t.Fatalf("EnsureAdmin() returned error: %v", err)
	}
	w := ts.doJSON(t, http.MethodPost, "/api/admin/login", map[string]string{"email": "root@example.com", "password": "rootpass"}, "")
	expectStatus(t, w, http.StatusOK)
	var login struct {
		AccessToken string `json:"accessToken"`
	}
	decode(t, w, &login)
	return login.AccessToken
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t, 0)

	w := ts.do(t, http.MethodGet, "/health", nil, "", "")
	expectStatus(t, w, http.StatusOK)
	var resp struct {
		Status     string                 `json:"status"`
		Components map[string]interface{} `json:"components"`
	}
	decode(t, w, &resp)
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
	if _, ok := resp.Components["store"]; !ok {
		t.Error("store component missing from health report")
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("response should carry a request id")
	}
}

func TestServer_SignupAndProfile(t *testing.T) {
	ts := newTestServer(t, 0)
	id, token := ts.signupAndLogin(t, "ada@example.com")

	w := ts.do(t, http.MethodGet, "/api/auth/me", nil, "", token)
	expectStatus(t, w, http.StatusOK)
	var me struct {
		User struct {
			ID    int64  `json:"id"`
			Email string `json:"email"`
		} `json:"user"`
	}
	decode(t, w, &me)
	if me.User.ID != id || me.User.Email != "ada@example.com" {
		t.Errorf("me = %+v, want account %d", me.User, id)
	}

	w = ts.do(t, http.MethodGet, "/api/account/get-single?email=ada@example.com", nil, "", token)
	expectStatus(t, w, http.StatusOK)

	w = ts.doJSON(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "ada@example.com", "password": "wrong"}, "")
	expectError(t, w, http.StatusForbidden, "INVALID_CREDENTIALS")
}

func TestServer_Authorization(t *testing.T) {
	ts := newTestServer(t, 0)
	_, token := ts.signupAndLogin(t, "bob@example.com")

	tests := []struct {
		name   string
		method string
		target string
		token  string
		status int
		code   string
	}{
		{"missing token", http.MethodGet, "/api/auth/me", "", http.StatusUnauthorized, "MISSING_TOKEN"},
		{"garbage token", http.MethodGet, "/api/auth/me", "not-a-jwt", http.StatusUnauthorized, "INVALID_TOKEN"},
		{"user on admin route", http.MethodGet, "/api/account/get-all", token, http.StatusForbidden, "INSUFFICIENT_PERMISSIONS"},
		{"invalid id", http.MethodDelete, "/api/portfolio/delete/abc", token, http.StatusBadRequest, "INVALID_ID"},
		{"unknown route", http.MethodGet, "/api/nothing", "", http.StatusNotFound, "ROUTE_NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, tt.method, tt.target, nil, "", tt.token)
			expectError(t, w, tt.status, tt.code)
		})
	}
}

func TestServer_PortfolioLifecycle(t *testing.T) {
	ts := newTestServer(t, 0)
	_, token := ts.signupAndLogin(t, "cara@example.com")

	body, ct := multipartBody(t, map[string]string{
		"title":       "Go services",
		"description": "Backends",
		"keywords":    `["go","api"]`,
	},
		upload{field: "images", filename: "shot.png", data: pngBytes(t)},
		upload{field: "document", filename: "cv.pdf", data: []byte("%PDF-1.4\n%qwork\n")},
	)
	w := ts.do(t, http.MethodPost, "/api/portfolio/add", body, ct, token)
	expectStatus(t, w, http.StatusCreated)
	var added struct {
		Data market.Portfolio `json:"data"`
	}
	decode(t, w, &added)
	p := added.Data
	if p.Status != market.PortfolioStatusPending || len(p.Images) != 1 || len(p.Keywords) != 2 {
		t.Fatalf("added portfolio = %+v, want pending with one image and two keywords", p)
	}

	w = ts.do(t, http.MethodGet, p.Images[0].Path, nil, "", "")
	expectStatus(t, w, http.StatusOK)
	if w.Body.Len() == 0 {
		t.Error("uploaded image served empty")
	}

	// Pending portfolios are not public
	w = ts.do(t, http.MethodGet, "/api/portfolio/get-all", nil, "", "")
	expectStatus(t, w, http.StatusOK)
	var page struct {
		Data []market.Portfolio `json:"data"`
	}
	decode(t, w, &page)
	if len(page.Data) != 0 {
		t.Errorf("public listing = %d portfolios, want 0", len(page.Data))
	}

	admin := ts.adminToken(t)
	target := "/api/admin/portfolios/" + strconv.FormatInt(p.ID, 10) + "/status"
	w = ts.doJSON(t, http.MethodPatch, target, map[string]string{"status": "approved"}, admin)
	expectStatus(t, w, http.StatusOK)
	if got := ts.mail.get("status"); got != "approved" {
		t.Errorf("status email = %q, want approved", got)
	}

	w = ts.doJSON(t, http.MethodPatch, target, map[string]string{"status": "approved"}, token)
	expectError(t, w, http.StatusForbidden, "INSUFFICIENT_PERMISSIONS")

	w = ts.do(t, http.MethodGet, "/api/portfolio/get-all?q=GO", nil, "", "")
	expectStatus(t, w, http.StatusOK)
	decode(t, w, &page)
	if len(page.Data) != 1 {
		t.Errorf("public listing = %d portfolios, want 1", len(page.Data))
	}

	w = ts.do(t, http.MethodDelete, "/api/portfolio/delete/"+strconv.FormatInt(p.ID, 10), nil, "", token)
	expectStatus(t, w, http.StatusOK)

	w = ts.do(t, http.MethodGet, p.Images[0].Path, nil, "", "")
	expectError(t, w, http.StatusNotFound, "FILE_NOT_FOUND")
}

func TestServer_AdminAddRequiresOwner(t *testing.T) {
	ts := newTestServer(t, 0)
	userID, _ := ts.signupAndLogin(t, "dana@example.com")
	admin := ts.adminToken(t)

	fields := map[string]string{"title": "Curated"}
	doc := upload{field: "document", filename: "cv.pdf", data: []byte("%PDF-1.4\n%qwork\n")}

	body, ct := multipartBody(t, fields, doc)
	w := ts.do(t, http.MethodPost, "/api/portfolio/add", body, ct, admin)
	expectError(t, w, http.StatusBadRequest, "PORTFOLIO_FIELDS_REQUIRED")

	byUser := "/api/portfolio/get-by-user/" + strconv.FormatInt(userID, 10)
	w = ts.do(t, http.MethodGet, byUser, nil, "", "")
	expectStatus(t, w, http.StatusOK)
	var list struct {
		Data []market.Portfolio `json:"data"`
	}
	decode(t, w, &list)
	if len(list.Data) != 0 {
		t.Fatalf("user has %d portfolios, want 0", len(list.Data))
	}

	fields["user_id"] = strconv.FormatInt(userID, 10)
	body, ct = multipartBody(t, fields, doc)
	w = ts.do(t, http.MethodPost, "/api/portfolio/add", body, ct, admin)
	expectStatus(t, w, http.StatusCreated)
	var added struct {
		Data market.Portfolio `json:"data"`
	}
	decode(t, w, &added)
	if added.Data.AccountID != userID {
		t.Errorf("portfolio owner = %d, want %d", added.Data.AccountID, userID)
	}
}

func TestServer_Uploads(t *testing.T) {
	ts := newTestServer(t, 0)

	for _, target := range []string{"/uploads/profile_images/missing.png", "/uploads/../secret", "/uploads/"} {
		w := ts.do(t, http.MethodGet, target, nil, "", "")
		if w.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", target, w.Code)
		}
	}
}

func TestServer_RateLimit(t *testing.T) {
	ts := newTestServer(t, 2)
	login := map[string]string{"email": "nobody@example.com", "password": "x"}

	for i := 0; i < 2; i++ {
		w := ts.doJSON(t, http.MethodPost, "/api/auth/login", login, "")
		expectStatus(t, w, http.StatusForbidden)
		if w.Header().Get("X-RateLimit-Limit") != "2" {
			t.Errorf("X-RateLimit-Limit = %q, want 2", w.Header().Get("X-RateLimit-Limit"))
		}
	}
	w := ts.doJSON(t, http.MethodPost, "/api/auth/login", login, "")
	expectError(t, w, http.StatusTooManyRequests, "RATE_LIMITED")
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}

	// Unlimited routes are unaffected
	w = ts.do(t, http.MethodGet, "/api/portfolio/get-all", nil, "", "")
	expectStatus(t, w, http.StatusOK)
}

func TestServer_Metrics(t *testing.T) {
	ts := newTestServer(t, 0)
	ts.do(t, http.MethodGet, "/api/portfolio/get-all", nil, "", "")

	w := ts.do(t, http.MethodGet, "/metrics", nil, "", "")
	expectStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), `qwork_http_requests_total{method="GET",route="/api/portfolio/get-all",status_code="200"} 1`) {
		t.Errorf("metrics output missing request counter:\n%s", w.Body.String())
	}
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	if _, err := NewServer(config.Default(), Dependencies{}, nil); err == nil {
		t.Error("NewServer() with no dependencies should fail")
	}
}

func TestServer_StartStop(t *testing.T) {
	ts := newTestServer(t, 0)
	ts.server.httpServer.Addr = "127.0.0.1:0"

	errCh, err := ts.server.Start()
	if err != nil {
		t.Fatalf("Start() returned error: %v", err)
	}
	if _, err := ts.server.Start(); err == nil {
		t.Error("second Start() should fail")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ts.server.Stop(ctx); err != nil {
		t.Errorf("Stop() returned error: %v", err)
	}
	for err := range errCh {
		t.Errorf("server reported error: %v", err)
	}
	if err := ts.server.Stop(ctx); err != nil {
		t.Errorf("second Stop() returned error: %v", err)
	}
}

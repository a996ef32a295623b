// Package testsupport provides shared scaffolding for package tests: a
// config factory over temp directories and an in-process stand-in for the
// image service.
package testsupport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"easel/internal/imageapi"
)

// FakeService serves the subset of the image service API the client talks
// to, with canned state the test mutates directly.
type FakeService struct {
	server *httptest.Server

	mu       sync.Mutex
	username string
	password string
	token    string
	user     imageapi.User
	quota    imageapi.Quota
	tasks    map[string]imageapi.Task
}

// NewFakeService starts the fake, registers cleanup, and seeds a default
// account (user "tester", password "secret", token "test-token").
func NewFakeService(t testing.TB) *FakeService {
	t.Helper()

	f := &FakeService{
		username: "tester",
		password: "secret",
		token:    "test-token",
		user:     imageapi.User{ID: 1, Username: "tester", Email: "tester@example.com", IsActive: true},
		quota:    imageapi.Quota{DailyLimit: 50, MonthlyLimit: 500, RemainingToday: 50, RemainingThisMonth: 500},
		tasks:    make(map[string]imageapi.Task),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

// URL returns the fake's base URL.
func (f *FakeService) URL() string {
	return f.server.URL
}

// Token returns the bearer token the fake accepts.
func (f *FakeService) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

// RevokeToken makes every authenticated request fail with 401 until a new
// login happens.
func (f *FakeService) RevokeToken() {
	f.mu.Lock()
	f.token = ""
	f.mu.Unlock()
}

// SetTask installs or replaces a task record served by GET /tasks/{id}.
func (f *FakeService) SetTask(task imageapi.Task) {
	f.mu.Lock()
	f.tasks[task.ID] = task
	f.mu.Unlock()
}

// SetQuota replaces the allowance snapshot.
func (f *FakeService) SetQuota(quota imageapi.Quota) {
	f.mu.Lock()
	f.quota = quota
	f.mu.Unlock()
}

func (f *FakeService) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/auth/login":
		f.handleLogin(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/auth/me":
		f.withAuth(w, r, func() { writeJSON(w, http.StatusOK, f.user) })
	case r.Method == http.MethodGet && r.URL.Path == "/tasks/quota/me":
		f.withAuth(w, r, func() { writeJSON(w, http.StatusOK, f.quota) })
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/tasks/"):
		f.withAuth(w, r, func() { f.handleTask(w, r) })
	default:
		writeDetail(w, http.StatusNotFound, "Not Found")
	}
}

func (f *FakeService) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}

	f.mu.Lock()
	ok := body.Username == f.username && body.Password == f.password
	if ok && f.token == "" {
		f.token = "test-token"
	}
	token := f.token
	f.mu.Unlock()

	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}
	writeJSON(w, http.StatusOK, imageapi.Token{AccessToken: token, TokenType: "bearer", ExpiresIn: 1800})
}

func (f *FakeService) withAuth(w http.ResponseWriter, r *http.Request, next func()) {
	f.mu.Lock()
	token := f.token
	f.mu.Unlock()

	if token == "" || r.Header.Get("Authorization") != "Bearer "+token {
		writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
		return
	}
	next()
}

func (f *FakeService) handleTask(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/tasks/")
	f.mu.Lock()
	task, ok := f.tasks[id]
	f.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "Task not found")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

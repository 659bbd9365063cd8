package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"taskboard/internal/auth"
	"taskboard/internal/logging"
	"taskboard/internal/repository"
	"taskboard/internal/service"
	"taskboard/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	db, err := repository.NewDB("sqlite", filepath.Join(dir, "api.db"), logging.Discard())
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	files, err := storage.NewFileStore(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	userRepo := repository.NewUserRepository(db)
	blobs := service.NewStorageService(repository.NewBlobRepository(db), files, service.StorageOptions{
		PublicURL: "http://api.test",
		GrantTTL:  time.Hour,
		MaxBytes:  1024,
	})
	profiles := service.NewProfileService(repository.NewProfileRepository(db), userRepo, blobs, blobs)
	srv, err := New(Deps{
		Tasks:    service.NewTaskService(repository.NewTaskRepository(db)),
		Profiles: profiles,
		Accounts: service.NewAccountService(userRepo, auth.NewTokens("test-secret", time.Hour), profiles, logging.Discard()),
		Storage:  blobs,
		Logger:   logging.Discard(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv
}

func call(t *testing.T, srv *Server, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body %s", rec.Code, want, rec.Body.String())
	}
}

func signUp(t *testing.T, srv *Server, email string) string {
	t.Helper()
	rec := call(t, srv, http.MethodPost, "/api/auth/signup", "", `{"email":"`+email+`","password":"password123","firstName":"Ann"}`)
	expectStatus(t, rec, http.StatusCreated)
	var res service.AuthResult
	decode(t, rec, &res)
	return res.Token
}

func TestTaskLifecycle(t *testing.T) {
	srv := newTestServer(t)
	token := signUp(t, srv, "ann@example.com")

	rec := call(t, srv, http.MethodPost, "/api/tasks", token, `{"title":"Buy milk","description":"","priority":"low","dueDate":"2025-05-01"}`)
	expectStatus(t, rec, http.StatusCreated)
	var created idResponse
	decode(t, rec, &created)

	rec = call(t, srv, http.MethodGet, "/api/tasks?status=pending", token, "")
	expectStatus(t, rec, http.StatusOK)
	var tasks []map[string]interface{}
	decode(t, rec, &tasks)
	if len(tasks) != 1 || tasks[0]["id"] != created.ID || tasks[0]["status"] != "pending" || tasks[0]["dueDate"] != "2025-05-01" {
		t.Fatalf("tasks = %v", tasks)
	}

	rec = call(t, srv, http.MethodPatch, "/api/tasks/"+created.ID, token, `{"status":"completed","title":null,"dueDate":""}`)
	expectStatus(t, rec, http.StatusOK)

	rec = call(t, srv, http.MethodGet, "/api/tasks/"+created.ID, token, "")
	expectStatus(t, rec, http.StatusOK)
	var task map[string]interface{}
	decode(t, rec, &task)
	if task["status"] != "completed" || task["title"] != "Buy milk" {
		t.Fatalf("task = %v", task)
	}
	if _, ok := task["dueDate"]; ok {
		t.Fatalf("due date not cleared: %v", task)
	}

	rec = call(t, srv, http.MethodGet, "/api/tasks/search?searchTerm=milk&status=completed", token, "")
	expectStatus(t, rec, http.StatusOK)
	decode(t, rec, &tasks)
	if len(tasks) != 1 {
		t.Fatalf("search = %v", tasks)
	}

	rec = call(t, srv, http.MethodGet, "/api/tasks/search?searchTerm=%20%20", token, "")
	expectStatus(t, rec, http.StatusOK)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("blank search body = %s", rec.Body.String())
	}

	rec = call(t, srv, http.MethodGet, "/api/tasks/stats", token, "")
	expectStatus(t, rec, http.StatusOK)
	var stats service.TaskStats
	decode(t, rec, &stats)
	if stats != (service.TaskStats{Total: 1, Completed: 1}) {
		t.Fatalf("stats = %+v", stats)
	}

	rec = call(t, srv, http.MethodDelete, "/api/tasks/"+created.ID, token, "")
	expectStatus(t, rec, http.StatusOK)
	rec = call(t, srv, http.MethodGet, "/api/tasks/"+created.ID, token, "")
	expectStatus(t, rec, http.StatusNotFound)
}

func TestErrorStatusMapping(t *testing.T) {
	srv := newTestServer(t)
	alice := signUp(t, srv, "alice@example.com")
	bob := signUp(t, srv, "bob@example.com")

	rec := call(t, srv, http.MethodPost, "/api/tasks", alice, `{"title":"Secret","priority":"high"}`)
	expectStatus(t, rec, http.StatusCreated)
	var created idResponse
	decode(t, rec, &created)

	tests := []struct {
		name   string
		method string
		target string
		token  string
		body   string
		want   int
	}{
		{"no token", http.MethodGet, "/api/tasks", "", "", http.StatusUnauthorized},
		{"garbage token", http.MethodGet, "/api/tasks/stats", "not-a-jwt", "", http.StatusUnauthorized},
		{"unknown priority", http.MethodPost, "/api/tasks", alice, `{"title":"x","priority":"urgent"}`, http.StatusBadRequest},
		{"bad due date", http.MethodPost, "/api/tasks", alice, `{"title":"x","priority":"low","dueDate":"tomorrow"}`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/tasks", alice, `{"title":"x","priority":"low","owner":"bob"}`, http.StatusBadRequest},
		{"blank title", http.MethodPatch, "/api/tasks/" + created.ID, alice, `{"title":"   "}`, http.StatusBadRequest},
		{"malformed json", http.MethodPatch, "/api/tasks/" + created.ID, alice, `{`, http.StatusBadRequest},
		{"other owner update", http.MethodPatch, "/api/tasks/" + created.ID, bob, `{"title":"mine"}`, http.StatusForbidden},
		{"other owner delete", http.MethodDelete, "/api/tasks/" + created.ID, bob, "", http.StatusForbidden},
		{"missing task", http.MethodPatch, "/api/tasks/nope", alice, `{"title":"x"}`, http.StatusNotFound},
		{"taken email", http.MethodPost, "/api/auth/signup", "", `{"email":"alice@example.com","password":"password123"}`, http.StatusConflict},
		{"wrong password", http.MethodPost, "/api/auth/signin", "", `{"email":"alice@example.com","password":"nope-nope"}`, http.StatusUnauthorized},
		{"unknown route", http.MethodGet, "/api/nothing", alice, "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := call(t, srv, tt.method, tt.target, tt.token, tt.body)
			expectStatus(t, rec, tt.want)
			var body map[string]string
			decode(t, rec, &body)
			if body["error"] == "" {
				t.Fatalf("missing error message: %s", rec.Body.String())
			}
		})
	}

	rec = call(t, srv, http.MethodGet, "/api/tasks/"+created.ID, alice, "")
	expectStatus(t, rec, http.StatusOK)
	var task map[string]interface{}
	decode(t, rec, &task)
	if task["title"] != "Secret" {
		t.Fatalf("task changed by rejected requests: %v", task)
	}
}

func TestSignOutRevokesToken(t *testing.T) {
	srv := newTestServer(t)
	token := signUp(t, srv, "ann@example.com")

	rec := call(t, srv, http.MethodGet, "/api/auth/me", token, "")
	expectStatus(t, rec, http.StatusOK)
	var user map[string]interface{}
	decode(t, rec, &user)
	if user["email"] != "ann@example.com" {
		t.Fatalf("me = %v", user)
	}
	if _, ok := user["passwordHash"]; ok {
		t.Fatalf("password hash leaked: %v", user)
	}

	rec = call(t, srv, http.MethodPost, "/api/auth/signout", token, "")
	expectStatus(t, rec, http.StatusNoContent)

	rec = call(t, srv, http.MethodGet, "/api/auth/me", token, "")
	expectStatus(t, rec, http.StatusOK)
	if strings.TrimSpace(rec.Body.String()) != "null" {
		t.Fatalf("me after sign-out = %s", rec.Body.String())
	}
	rec = call(t, srv, http.MethodGet, "/api/tasks", token, "")
	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestProfileEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rec := call(t, srv, http.MethodGet, "/api/profile/me", "", "")
	expectStatus(t, rec, http.StatusOK)
	if strings.TrimSpace(rec.Body.String()) != "null" {
		t.Fatalf("anonymous profile = %s", rec.Body.String())
	}
	rec = call(t, srv, http.MethodGet, "/api/profile", "", "")
	expectStatus(t, rec, http.StatusUnauthorized)

	token := signUp(t, srv, "ann@example.com")
	rec = call(t, srv, http.MethodGet, "/api/profile/me", token, "")
	expectStatus(t, rec, http.StatusOK)
	var profile map[string]interface{}
	decode(t, rec, &profile)
	if profile["firstName"] != "Ann" {
		t.Fatalf("profile seeded at sign-up = %v", profile)
	}

	rec = call(t, srv, http.MethodPut, "/api/profile", token, `{"firstName":"Ann","lastName":"Lee","bio":"hi"}`)
	expectStatus(t, rec, http.StatusOK)
	rec = call(t, srv, http.MethodPut, "/api/profile", token, `{"firstName":"Ann"}`)
	expectStatus(t, rec, http.StatusBadRequest)

	rec = call(t, srv, http.MethodGet, "/api/profile", token, "")
	expectStatus(t, rec, http.StatusOK)
	var up struct {
		User    map[string]interface{} `json:"user"`
		Profile map[string]interface{} `json:"profile"`
	}
	decode(t, rec, &up)
	if up.User["email"] != "ann@example.com" || up.Profile["lastName"] != "Lee" || up.Profile["bio"] != "hi" {
		t.Fatalf("user profile = %+v", up)
	}

	rec = call(t, srv, http.MethodPost, "/api/profile/signup", token, `{"userId":"`+up.User["id"].(string)+`","firstName":"Annie"}`)
	expectStatus(t, rec, http.StatusOK)
	rec = call(t, srv, http.MethodPost, "/api/profile/signup", token, `{"userId":"someone-else","firstName":"Eve"}`)
	expectStatus(t, rec, http.StatusForbidden)
}

func TestAvatarUploadFlow(t *testing.T) {
	srv := newTestServer(t)
	token := signUp(t, srv, "ann@example.com")

	rec := call(t, srv, http.MethodPost, "/api/profile/avatar/upload-url", token, "")
	expectStatus(t, rec, http.StatusOK)
	var grant service.UploadGrant
	decode(t, rec, &grant)
	u, err := url.Parse(grant.UploadURL)
	if err != nil || u.Host != "api.test" {
		t.Fatalf("upload url = %q", grant.UploadURL)
	}

	upload := func(contentType, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, u.RequestURI(), strings.NewReader(body))
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		return rec
	}

	rec = upload("text/plain", "hello")
	expectStatus(t, rec, http.StatusBadRequest)
	rec = upload("image/png", "png-bytes")
	expectStatus(t, rec, http.StatusCreated)
	var stored storageIDResponse
	decode(t, rec, &stored)
	rec = upload("image/png", "again")
	expectStatus(t, rec, http.StatusForbidden)

	rec = call(t, srv, http.MethodPut, "/api/profile/avatar", token, `{"storageId":"`+stored.StorageID+`"}`)
	expectStatus(t, rec, http.StatusOK)

	rec = call(t, srv, http.MethodGet, "/api/profile/me", token, "")
	expectStatus(t, rec, http.StatusOK)
	var profile map[string]interface{}
	decode(t, rec, &profile)
	if profile["avatarRef"] != stored.StorageID {
		t.Fatalf("profile = %v", profile)
	}

	rec = call(t, srv, http.MethodGet, "/api/storage/"+stored.StorageID, "", "")
	expectStatus(t, rec, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type = %q", ct)
	}
	if rec.Body.String() != "png-bytes" {
		t.Fatalf("body = %q", rec.Body.String())
	}

	rec = call(t, srv, http.MethodGet, "/api/storage/00000000-0000-0000-0000-000000000000", "", "")
	expectStatus(t, rec, http.StatusNotFound)
}

func TestTelegramLinkCode(t *testing.T) {
	srv := newTestServer(t)
	rec := call(t, srv, http.MethodPost, "/api/telegram/link-code", "", "")
	expectStatus(t, rec, http.StatusUnauthorized)

	token := signUp(t, srv, "ann@example.com")
	rec = call(t, srv, http.MethodPost, "/api/telegram/link-code", token, "")
	expectStatus(t, rec, http.StatusOK)
	var code service.LinkCode
	decode(t, rec, &code)
	if len(code.Code) != 8 {
		t.Fatalf("code = %+v", code)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	rec := call(t, srv, http.MethodGet, "/healthz", "", "")
	expectStatus(t, rec, http.StatusOK)

	srv.health = func(context.Context) error { return errors.New("db gone") }
	rec = call(t, srv, http.MethodGet, "/healthz", "", "")
	expectStatus(t, rec, http.StatusServiceUnavailable)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer  abc ", "abc"},
		{"Basic abc", ""},
		{"abc", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := bearerToken(tt.header); got != tt.want {
			t.Errorf("bearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

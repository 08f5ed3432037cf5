package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"notable/api/internal/identity"
	"notable/api/internal/store"
)

func newTestHandler(service *Service) http.Handler {
	return NewHTTPServer(service, "*").Handler()
}

func doRequest(t *testing.T, handler http.Handler, method, path, token string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}

func decodeResponse(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.NewDecoder(recorder.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return payload
}

func sessionToken(t *testing.T, service *Service, userID, name string) string {
	t.Helper()
	session, err := service.issueSession(context.Background(), store.Profile{ID: userID, FullName: name})
	if err != nil {
		t.Fatalf("issueSession: %v", err)
	}
	return session.Token
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestHandler(newTestService(&fakeStore{}))
	recorder := doRequest(t, handler, http.MethodGet, "/api/health", "", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	if payload := decodeResponse(t, recorder); payload["ok"] != true {
		t.Fatalf("payload = %v", payload)
	}
}

func TestAuthCallbackMissingCode(t *testing.T) {
	handler := newTestHandler(newTestService(&fakeStore{}))
	recorder := doRequest(t, handler, http.MethodGet, "/api/auth/callback", "", "")
	if recorder.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", recorder.Code)
	}
	if loc := recorder.Header().Get("Location"); loc != "/auth/login?error=true" {
		t.Fatalf("Location = %q", loc)
	}
}

func TestAuthCallbackExchangeFailure(t *testing.T) {
	fs := &fakeStore{}
	service := newTestService(fs)
	service.identity = &fakeIdentity{
		exchangeFn: func(context.Context, string) (identity.Session, error) {
			return identity.Session{}, identity.ErrExchangeFailed
		},
	}
	recorder := doRequest(t, newTestHandler(service), http.MethodGet, "/api/auth/callback?code=stale", "", "")
	if recorder.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", recorder.Code)
	}
	if loc := recorder.Header().Get("Location"); loc != "/auth/login?error=true" {
		t.Fatalf("Location = %q", loc)
	}
	if fs.ensureProfileCalls != 0 {
		t.Fatal("no profile writes expected on a failed exchange")
	}
}

func TestAuthCallbackSuccess(t *testing.T) {
	fs := &fakeStore{
		getProfileFn: func(_ context.Context, id string) (store.Profile, error) {
			return store.Profile{ID: id, FullName: "Ada"}, nil
		},
	}
	service := newTestService(fs)
	service.identity = &fakeIdentity{
		exchangeFn: func(context.Context, string) (identity.Session, error) {
			return identity.Session{UserID: "user-1", Metadata: map[string]string{"full_name": "Ada"}}, nil
		},
	}

	recorder := doRequest(t, newTestHandler(service), http.MethodGet, "/api/auth/callback?code=good", "", "")
	if recorder.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", recorder.Code)
	}
	if loc := recorder.Header().Get("Location"); loc != "/dashboard" {
		t.Fatalf("Location = %q", loc)
	}

	response := recorder.Result()
	defer response.Body.Close()
	var sessionCookie *http.Cookie
	for _, c := range response.Cookies() {
		if c.Name == sessionCookieName {
			sessionCookie = c
		}
	}
	if sessionCookie == nil || sessionCookie.Value == "" {
		t.Fatal("expected session cookie to be set")
	}
	if !sessionCookie.HttpOnly {
		t.Fatal("session cookie must be HttpOnly")
	}

	// The cookie alone must authenticate API calls.
	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.AddCookie(sessionCookie)
	rec := httptest.NewRecorder()
	newTestHandler(service).ServeHTTP(rec, req)
	if payload := decodeResponse(t, rec); payload["authenticated"] != true {
		t.Fatalf("payload = %v", payload)
	}
}

func TestSessionEndpointWithoutToken(t *testing.T) {
	handler := newTestHandler(newTestService(&fakeStore{}))
	recorder := doRequest(t, handler, http.MethodGet, "/api/session", "", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	if payload := decodeResponse(t, recorder); payload["authenticated"] != false {
		t.Fatalf("payload = %v", payload)
	}
}

func TestNotesRequireAuth(t *testing.T) {
	handler := newTestHandler(newTestService(&fakeStore{}))
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/notes"},
		{http.MethodPost, "/api/notes"},
		{http.MethodGet, "/api/notes/note-1"},
		{http.MethodPut, "/api/notes/note-1"},
		{http.MethodDelete, "/api/notes/note-1"},
		{http.MethodPost, "/api/notes/note-1/summarize"},
		{http.MethodGet, "/api/notes/search?q=x"},
	} {
		recorder := doRequest(t, handler, tc.method, tc.path, "", "")
		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: status = %d, want 401", tc.method, tc.path, recorder.Code)
		}
	}
}

func TestNotesRejectGarbageToken(t *testing.T) {
	handler := newTestHandler(newTestService(&fakeStore{}))
	recorder := doRequest(t, handler, http.MethodGet, "/api/notes", "not-a-token", "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", recorder.Code)
	}
}

func TestCreateAndListNotes(t *testing.T) {
	stored := map[string]store.Note{}
	fs := &fakeStore{
		insertNoteFn: func(_ context.Context, note store.Note) (store.Note, error) {
			stored[note.ID] = note
			return note, nil
		},
		listNotesFn: func(_ context.Context, ownerID string) ([]store.Note, error) {
			var out []store.Note
			for _, note := range stored {
				if note.OwnerID == ownerID {
					out = append(out, note)
				}
			}
			return out, nil
		},
	}
	service := newTestService(fs)
	handler := newTestHandler(service)
	token := sessionToken(t, service, "user-1", "Ada")

	recorder := doRequest(t, handler, http.MethodPost, "/api/notes", token, `{"title":"Groceries","content":"milk, eggs"}`)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", recorder.Code, recorder.Body.String())
	}
	created := decodeResponse(t, recorder)["note"].(map[string]any)
	if created["title"] != "Groceries" || created["ownerId"] != "user-1" {
		t.Fatalf("unexpected note: %v", created)
	}

	recorder = doRequest(t, handler, http.MethodGet, "/api/notes", token, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("list status = %d", recorder.Code)
	}
	notes := decodeResponse(t, recorder)["notes"].([]any)
	if len(notes) != 1 {
		t.Fatalf("expected 1 note, got %d", len(notes))
	}
}

func TestCreateNoteValidationStatus(t *testing.T) {
	service := newTestService(&fakeStore{})
	token := sessionToken(t, service, "user-1", "Ada")
	recorder := doRequest(t, newTestHandler(service), http.MethodPost, "/api/notes", token, `{"title":"","content":""}`)
	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", recorder.Code)
	}
	if payload := decodeResponse(t, recorder); payload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestGetMissingNoteIs404(t *testing.T) {
	service := newTestService(&fakeStore{})
	token := sessionToken(t, service, "user-1", "Ada")
	recorder := doRequest(t, newTestHandler(service), http.MethodGet, "/api/notes/nope", token, "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", recorder.Code)
	}
	if payload := decodeResponse(t, recorder); payload["code"] != "NOT_FOUND" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestDeleteNoteTwice(t *testing.T) {
	service := newTestService(&fakeStore{})
	token := sessionToken(t, service, "user-1", "Ada")
	handler := newTestHandler(service)
	for i := 0; i < 2; i++ {
		recorder := doRequest(t, handler, http.MethodDelete, "/api/notes/note-1", token, "")
		if recorder.Code != http.StatusOK {
			t.Fatalf("delete %d: status = %d", i+1, recorder.Code)
		}
	}
}

func TestRefreshEndpoint(t *testing.T) {
	fs := &fakeStore{
		getProfileFn: func(_ context.Context, id string) (store.Profile, error) {
			return store.Profile{ID: id, FullName: "Ada"}, nil
		},
	}
	fs.lookupRefreshFn = func(_ context.Context, tokenHash string) (string, error) {
		return "user-1", nil
	}
	service := newTestService(fs)

	recorder := doRequest(t, newTestHandler(service), http.MethodPost, "/api/session/refresh", "", `{"refreshToken":"issued-earlier"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeResponse(t, recorder)
	if payload["token"] == "" || payload["refreshToken"] == "" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestRefreshEndpointRejectsUnknown(t *testing.T) {
	recorder := doRequest(t, newTestHandler(newTestService(&fakeStore{})), http.MethodPost, "/api/session/refresh", "", `{"refreshToken":"bogus"}`)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", recorder.Code)
	}
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	fs := &fakeStore{}
	recorder := doRequest(t, newTestHandler(newTestService(fs)), http.MethodPost, "/api/session/logout", "", `{"refreshToken":"issued"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	if len(fs.revokedRefreshHashs) != 1 {
		t.Fatalf("revocations = %d, want 1", len(fs.revokedRefreshHashs))
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	service := newTestService(&fakeStore{})
	token := sessionToken(t, service, "user-1", "Ada")
	recorder := doRequest(t, newTestHandler(service), http.MethodGet, "/api/widgets", token, "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", recorder.Code)
	}
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func authProbe(t *testing.T) (http.Handler, *Principal) {
	t.Helper()
	var seen Principal
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			t.Errorf("expected principal in context")
		}
		seen = p
		w.WriteHeader(http.StatusNoContent)
	})
	return RequireToken("s3cret")(inner), &seen
}

func TestRequireToken(t *testing.T) {
	tests := []struct {
		name       string
		auth       string
		workspace  string
		wantStatus int
		wantUserID int64
	}{
		{name: "missing header", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", auth: "Basic s3cret", wantStatus: http.StatusUnauthorized},
		{name: "wrong token", auth: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "empty token", auth: "Bearer ", wantStatus: http.StatusUnauthorized},
		{name: "valid", auth: "Bearer s3cret", wantStatus: http.StatusNoContent, wantUserID: 1},
		{name: "valid with workspace", auth: "Bearer s3cret", workspace: "42", wantStatus: http.StatusNoContent, wantUserID: 42},
		{name: "bad workspace", auth: "Bearer s3cret", workspace: "zero", wantStatus: http.StatusBadRequest},
		{name: "negative workspace", auth: "Bearer s3cret", workspace: "-1", wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, seen := authProbe(t)
			req := httptest.NewRequest(http.MethodGet, "/api/v1/tick", nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			if tt.workspace != "" {
				req.Header.Set("X-Workspace-ID", tt.workspace)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantUserID != 0 && seen.UserID != tt.wantUserID {
				t.Errorf("userID = %d, want %d", seen.UserID, tt.wantUserID)
			}
		})
	}
}

func TestRequireToken_UnconfiguredTokenRefusesAll(t *testing.T) {
	handler := RequireToken("")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Errorf("handler must not run")
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tick", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

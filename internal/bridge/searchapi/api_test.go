package searchapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandleSearch_RejectsMissingAuth(t *testing.T) {
	s := New(nil, "top-secret", nil)
	mux := http.NewServeMux()
	s.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/api/search?q=hello", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleSearch_AcceptsBareSecret(t *testing.T) {
	s := New(nil, "top-secret", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/search?q=hello", nil)
	req.Header.Set("Authorization", "top-secret")
	if !s.authenticate(req) {
		t.Fatal("expected bare secret to authenticate")
	}
}

func TestHandleSearch_AcceptsBearerPrefixedSecret(t *testing.T) {
	s := New(nil, "top-secret", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/search?q=hello", nil)
	req.Header.Set("Authorization", "Bearer top-secret")
	if !s.authenticate(req) {
		t.Fatal("expected Bearer-prefixed secret to authenticate")
	}
}

func TestHandleSearch_RejectsMissingQuery(t *testing.T) {
	s := New(nil, "", nil)
	mux := http.NewServeMux()
	s.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/api/search", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestParseIntDefault(t *testing.T) {
	cases := []struct {
		in   string
		def  int
		want int
	}{
		{"", 10, 10},
		{"5", 10, 5},
		{"-1", 10, 10},
		{"abc", 10, 10},
	}
	for _, c := range cases {
		if got := parseIntDefault(c.in, c.def); got != c.want {
			t.Errorf("parseIntDefault(%q, %d) = %d, want %d", c.in, c.def, got, c.want)
		}
	}
}

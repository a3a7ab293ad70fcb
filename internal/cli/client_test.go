package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hyperjump/localsearch/internal/models"
)

func TestClient_Search(t *testing.T) {
	var got models.SearchRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/search" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(sampleResponse())
	}))
	defer ts.Close()

	resp, err := NewClient(ts.URL+"/").Search(context.Background(), models.SearchRequest{Query: "q", TopK: 3, IncludeSnippet: true})
	if err != nil {
		t.Fatal(err)
	}
	if got.Query != "q" || got.TopK != 3 || !got.IncludeSnippet {
		t.Errorf("server saw %+v", got)
	}
	if len(resp.Hits) != 2 || resp.Hits[0].DocID != "doc-1" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestClient_problemBecomesAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(models.Problem{
			Type: "about:blank", Title: "Bad Request", Status: 400,
			Detail: "text is required", Instance: "/api/embed",
		})
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL).Embed(context.Background(), models.EmbedRequest{Normalize: true})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Problem == nil {
		t.Fatalf("apiErr = %+v", apiErr)
	}
	if apiErr.Error() != "server returned 400: text is required" {
		t.Errorf("Error() = %q", apiErr.Error())
	}
}

func TestClient_nonProblemError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway down", http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL).Health(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Problem != nil {
		t.Errorf("plain text body parsed as problem: %+v", apiErr.Problem)
	}
	if apiErr.Error() != "server returned 502: gateway down" {
		t.Errorf("Error() = %q", apiErr.Error())
	}
}

func TestClient_Health(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(models.HealthResponse{OK: true, Version: "1.0.0"})
	}))
	defer ts.Close()

	h, err := NewClient(ts.URL).Health(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !h.OK || h.Version != "1.0.0" {
		t.Errorf("health = %+v", h)
	}
}

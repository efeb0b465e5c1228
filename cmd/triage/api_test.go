package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchTriageSendsAdminToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/operator/triage" {
			t.Errorf("expected /operator/triage, got %s", r.URL.Path)
		}
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if got := r.Header.Get("X-Admin-Token"); got != "secret" {
			t.Errorf("expected admin token, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(TriageResponse{Entries: []TriageEntry{
			{UserID: "user-1", Email: "a@example.com", Stage: "meeting_booked", Urgency: 2},
			{UserID: "user-2", Email: "b@example.com", Stage: "no_invitation", Urgency: 6},
		}})
	}))
	defer server.Close()

	api := NewAPIClient(server.URL+"/", "secret")
	entries, err := api.FetchTriage(context.Background())
	if err != nil {
		t.Fatalf("FetchTriage: %v", err)
	}
	if len(entries) != 2 || entries[0].UserID != "user-1" || entries[1].Urgency != 6 {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestFetchTriageServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(apiError{Error: "admin token required"})
	}))
	defer server.Close()

	api := NewAPIClient(server.URL, "wrong")
	_, err := api.FetchTriage(context.Background())
	if err == nil || !strings.Contains(err.Error(), "server: admin token required") {
		t.Fatalf("expected server error, got %v", err)
	}
}

func TestFetchTriageStatusWithoutBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	api := NewAPIClient(server.URL, "secret")
	_, err := api.FetchTriage(context.Background())
	if err == nil || !strings.Contains(err.Error(), "server returned 502") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestFetchTriageBadJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{"))
	}))
	defer server.Close()

	api := NewAPIClient(server.URL, "secret")
	_, err := api.FetchTriage(context.Background())
	if err == nil || !strings.Contains(err.Error(), "decode response") {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestFetchTriageUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	api := NewAPIClient(url, "secret")
	_, err := api.FetchTriage(context.Background())
	if err == nil || !strings.Contains(err.Error(), "request failed") {
		t.Fatalf("expected request error, got %v", err)
	}
}

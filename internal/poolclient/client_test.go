package poolclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_Allocate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/slots/allocate" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(Slot{SlotID: "slot-1", SlotPath: "/workspaces/slot-1"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	slot, err := c.Allocate(context.Background(), AllocateRequest{RepoURL: "git@example.com/repo.git", RequiredBy: "runner-1"})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if slot.SlotID != "slot-1" {
		t.Errorf("SlotID = %q", slot.SlotID)
	}
}

func TestClient_Release(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if err := c.Release(context.Background(), "slot-1"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if gotPath != "/slots/slot-1/release" {
		t.Errorf("path = %q", gotPath)
	}
}

func TestClient_Allocate_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.Allocate(context.Background(), AllocateRequest{RepoURL: "x", RequiredBy: "y"}); err == nil {
		t.Fatal("expected error on 503 response")
	}
}

package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"leadqual_backend/platform/logger"
)

type testCRMConfig struct {
	baseURL string
}

func (c testCRMConfig) GetCRMBaseURL() string    { return c.baseURL }
func (c testCRMConfig) GetCRMAPIKey() string     { return "test-key" }
func (c testCRMConfig) GetCRMLocationID() string { return "loc-1" }
func (c testCRMConfig) IsCRMEnabled() bool       { return true }

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(testCRMConfig{baseURL: srv.URL}, logger.New("test"))
	if client == nil {
		t.Fatal("expected client, got nil")
	}
	return client, srv
}

func TestSearchContacts(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("Version"); got != "2021-07-28" {
			t.Errorf("Version = %q", got)
		}
		if got := r.URL.Query().Get("locationId"); got != "loc-1" {
			t.Errorf("locationId = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"contacts": []Contact{{ID: "c1", Phone: "+15551234567"}},
		})
	})

	contacts, err := client.SearchContacts(context.Background(), "+15551234567")
	if err != nil {
		t.Fatalf("SearchContacts: %v", err)
	}
	if len(contacts) != 1 || contacts[0].ID != "c1" {
		t.Errorf("contacts = %+v, want one contact c1", contacts)
	}
}

func TestCreateContactNormalizesPhone(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Phone      string `json:"phone"`
			LocationID string `json:"locationId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload.Phone != "+12125550123" {
			t.Errorf("phone = %q, want +12125550123", payload.Phone)
		}
		if payload.LocationID != "loc-1" {
			t.Errorf("locationId = %q, want loc-1", payload.LocationID)
		}
		json.NewEncoder(w).Encode(map[string]any{"contact": Contact{ID: "c2"}})
	})

	contact, err := client.CreateContact(context.Background(), ContactParams{
		Name:  "Jane Doe",
		Phone: "(212) 555-0123",
	})
	if err != nil {
		t.Fatalf("CreateContact: %v", err)
	}
	if contact.ID != "c2" {
		t.Errorf("contact id = %q, want c2", contact.ID)
	}
}

func TestAddTag(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/contacts/c1/tags" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var payload map[string][]string
		json.NewDecoder(r.Body).Decode(&payload)
		if len(payload["tags"]) != 1 || payload["tags"][0] != "lead-hot" {
			t.Errorf("tags = %v, want [lead-hot]", payload["tags"])
		}
		w.WriteHeader(http.StatusOK)
	})

	if err := client.AddTag(context.Background(), "c1", "lead-hot"); err != nil {
		t.Fatalf("AddTag: %v", err)
	}
}

func TestErrorStatusIncludesBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"invalid phone"}`))
	})

	err := client.CreateNote(context.Background(), "c1", "note")
	if err == nil {
		t.Fatal("expected error for 422 response")
	}
	if want := "crm returned 422"; !strings.Contains(err.Error(), want) {
		t.Errorf("error = %q, want it to contain %q", err.Error(), want)
	}
	if !strings.Contains(err.Error(), "invalid phone") {
		t.Errorf("error = %q, want response body included", err.Error())
	}
}

func TestNilClientIsNoOp(t *testing.T) {
	var client *Client

	if _, err := client.SearchContacts(context.Background(), "q"); err != nil {
		t.Errorf("nil SearchContacts: %v", err)
	}
	if err := client.SendMessage(context.Background(), "c1", "SMS", "hi"); err != nil {
		t.Errorf("nil SendMessage: %v", err)
	}
	if err := client.AddTag(context.Background(), "c1", "t"); err != nil {
		t.Errorf("nil AddTag: %v", err)
	}
}

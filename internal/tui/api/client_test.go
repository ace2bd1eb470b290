package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestBackend(t *testing.T) (*Client, *http.ServeMux) {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL), mux
}

func TestGetHealth(t *testing.T) {
	client, mux := newTestBackend(t)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	health, err := client.GetHealth()
	if err != nil {
		t.Fatalf("GetHealth failed: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("status = %q", health.Status)
	}
}

func TestGetStats(t *testing.T) {
	client, mux := newTestBackend(t)
	mux.HandleFunc("GET /v1/alerts/stats", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Stats{
			BySeverity:  map[string]int{"HIGH": 2},
			ByStatus:    map[string]int{"open": 2},
			TotalOpen:   2,
			TotalAlerts: 2,
		})
	})

	stats, err := client.GetStats()
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.TotalOpen != 2 || stats.BySeverity["HIGH"] != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestGetAlerts(t *testing.T) {
	client, mux := newTestBackend(t)
	mux.HandleFunc("GET /v1/alerts", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "25" {
			t.Errorf("limit = %q, want 25", got)
		}
		if got := r.URL.Query().Get("status"); got != "open" {
			t.Errorf("status = %q, want open", got)
		}
		json.NewEncoder(w).Encode(AlertsResponse{
			Alerts: []Alert{{ID: 1, Severity: "HIGH", Status: "open"}},
			Total:  1,
		})
	})

	resp, err := client.GetAlerts(25, "open")
	if err != nil {
		t.Fatalf("GetAlerts failed: %v", err)
	}
	if resp.Total != 1 || len(resp.Alerts) != 1 || resp.Alerts[0].ID != 1 {
		t.Errorf("response = %+v", resp)
	}
}

func TestAcknowledge(t *testing.T) {
	client, mux := newTestBackend(t)
	mux.HandleFunc("POST /v1/alerts/{id}/acknowledge", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "7" {
			t.Errorf("id = %q, want 7", r.PathValue("id"))
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["acknowledged_by"] != "alice" {
			t.Errorf("acknowledged_by = %q", body["acknowledged_by"])
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "success"})
	})

	if err := client.Acknowledge(7, "alice"); err != nil {
		t.Fatalf("Acknowledge failed: %v", err)
	}
}

func TestCloseAlert(t *testing.T) {
	client, mux := newTestBackend(t)
	mux.HandleFunc("POST /v1/alerts/{id}/close", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "success"})
	})

	if err := client.CloseAlert(3); err != nil {
		t.Fatalf("CloseAlert failed: %v", err)
	}
}

func TestRunDetection(t *testing.T) {
	client, mux := newTestBackend(t)
	mux.HandleFunc("POST /v1/detect", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]int{"alerts_generated": 12})
	})

	n, err := client.RunDetection()
	if err != nil {
		t.Fatalf("RunDetection failed: %v", err)
	}
	if n != 12 {
		t.Errorf("alerts = %d, want 12", n)
	}
}

func TestErrorStatus(t *testing.T) {
	client, mux := newTestBackend(t)
	mux.HandleFunc("GET /v1/alerts/stats", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	if _, err := client.GetStats(); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestConnectionRefused(t *testing.T) {
	client := NewClient("http://127.0.0.1:1")
	if _, err := client.GetHealth(); err == nil {
		t.Error("expected connection error")
	}
}

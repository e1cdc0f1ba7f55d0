package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearchByIDs(t *testing.T) {
	var gotPath, gotFilter, gotLang, gotLimit, gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotFilter = r.URL.Query().Get("filter")
		gotLang = r.URL.Query().Get("filter-lang")
		gotLimit = r.URL.Query().Get("limit")
		gotCookie = r.Header.Get("Cookie")
		json.NewEncoder(w).Encode(map[string]any{
			"type":     "FeatureCollection",
			"context":  map[string]int{"returned": 1},
			"features": []map[string]string{{"id": "S1A_0001"}},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	resp, err := client.SearchByIDs(context.Background(), "sentinel-1", []string{"S1A_0001", "S1A_0002"}, "session=abc")
	if err != nil {
		t.Fatalf("SearchByIDs failed: %v", err)
	}

	if gotPath != "/catalog/collections/sentinel-1/search" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotLang != "cql2-text" {
		t.Fatalf("filter-lang = %q", gotLang)
	}
	if gotFilter != "id IN ('S1A_0001','S1A_0002')" {
		t.Fatalf("filter = %q", gotFilter)
	}
	if gotLimit != "2" {
		t.Fatalf("limit = %q", gotLimit)
	}
	if gotCookie != "session=abc" {
		t.Fatalf("cookie = %q", gotCookie)
	}

	if resp.Context.Returned != 1 {
		t.Fatalf("returned = %d", resp.Context.Returned)
	}
	if resp.Features == nil || len(*resp.Features) != 1 || (*resp.Features)[0].ID != "S1A_0001" {
		t.Fatalf("unexpected features: %+v", resp.Features)
	}
}

func TestSearchByIDsMissingFeaturesKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"type":    "FeatureCollection",
			"context": map[string]int{"returned": 0},
		})
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).SearchByIDs(context.Background(), "c", []string{"a"}, "")
	if err != nil {
		t.Fatalf("SearchByIDs failed: %v", err)
	}
	if resp.Features != nil {
		t.Fatalf("absent features key decoded as %+v, want nil", resp.Features)
	}
}

func TestSearchByIDsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL).SearchByIDs(context.Background(), "c", []string{"a"}, ""); err == nil {
		t.Fatal("expected an error for a 502 response")
	}
}

func TestPublishItem(t *testing.T) {
	var gotPath, gotCookie string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotCookie = r.Header.Get("Cookie")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	feature := map[string]any{"id": "S1A_0001", "collection": "sentinel-1"}
	if err := NewClient(srv.URL).PublishItem(context.Background(), "sentinel-1", feature, "session=abc"); err != nil {
		t.Fatalf("PublishItem failed: %v", err)
	}
	if gotPath != "/catalog/collections/sentinel-1/items" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotCookie != "session=abc" {
		t.Fatalf("cookie = %q", gotCookie)
	}
	if gotBody["id"] != "S1A_0001" {
		t.Fatalf("body = %v", gotBody)
	}
}

func TestPublishItemError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "conflict", http.StatusConflict)
	}))
	defer srv.Close()

	if err := NewClient(srv.URL).PublishItem(context.Background(), "c", map[string]any{}, ""); err == nil {
		t.Fatal("expected an error for a 409 response")
	}
}

func TestDeleteItem(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
	}))
	defer srv.Close()

	if err := NewClient(srv.URL).DeleteItem(context.Background(), "sentinel-1", "S1A_0001", ""); err != nil {
		t.Fatalf("DeleteItem failed: %v", err)
	}
	if gotMethod != http.MethodDelete {
		t.Fatalf("method = %q", gotMethod)
	}
	if gotPath != "/catalog/collections/sentinel-1/items/S1A_0001" {
		t.Fatalf("path = %q", gotPath)
	}
}

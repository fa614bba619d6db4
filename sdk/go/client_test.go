package turnlinesdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientSendsBearerAndDecodes(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"departing":["p2"],"rolls":[{"person_id":"p2","target":3,"roll":2,"departs":true}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "camp 1")
	c.BearerToken = "tok"
	res, err := c.Roll(context.Background(), "k1")
	if err != nil {
		t.Fatalf("roll: %v", err)
	}
	if gotPath != "/v0/campaigns/camp 1/turnover/roll" || gotAuth != "Bearer tok" || gotBody["contract_id"] != "k1" {
		t.Fatalf("request path=%q auth=%q body=%v", gotPath, gotAuth, gotBody)
	}
	if len(res.Departing) != 1 || !res.Rolls[0].Departs {
		t.Fatalf("result = %+v", res)
	}
}

func TestClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":"not_found"}}`))
	}))
	defer srv.Close()

	err := New(srv.URL, "c").AssignStolenUnit(context.Background(), "p1", "u1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("err = %v", err)
	}
}

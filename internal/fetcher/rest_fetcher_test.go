package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/carelink/emr-connector/internal/platform/logger"
)

func init() {
	logger.InitLogger()
}

func newTestRestClient(serverURL string) *RestClient {
	return NewRestClient(&RestClientConfig{
		BaseUrl: serverURL,
		Timeout: 5 * time.Second,
	})
}

func TestRestFetchBatch(t *testing.T) {

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/observations" {
			t.Errorf("unexpected path %s", req.URL.Path)
		}
		if got := req.URL.Query().Get("since"); got != "500" {
			t.Errorf("got since=%s, expected 500", got)
		}
		if got := req.URL.Query().Get("limit"); got != "100" {
			t.Errorf("got limit=%s, expected 100", got)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"obs_id": 501, "person_id": 9, "concept": "Malaria smear impression",
			 "value_coded": "Quinine 200mg", "obs_datetime": "2023-06-09T09:30:00Z",
			 "creator_name": "Dr. Achieng"},
			{"obs_id": 502, "person_id": 9, "concept": "LAB RESULT",
			 "value_text": "negative", "obs_datetime": "not-a-timestamp"}
		]`))
	}))
	defer server.Close()

	client := newTestRestClient(server.URL)

	batch, err := client.FetchBatch(context.Background(), 500, 100)
	if err != nil {
		t.Fatal("unexpected error:", err)
	}

	// The malformed timestamp row is skipped, not fatal.
	if len(batch) != 1 {
		t.Fatalf("expected one parseable observation, got %d", len(batch))
	}
	obs := batch[0]
	if obs.SourceObsID != 501 || obs.SourcePersonID != 9 {
		t.Errorf("got ids %d/%d", obs.SourceObsID, obs.SourcePersonID)
	}
	if obs.ConceptLabel != "Malaria smear impression" || obs.CodedValue != "Quinine 200mg" {
		t.Errorf("got %q/%q", obs.ConceptLabel, obs.CodedValue)
	}
	if !obs.ObservedAt.Equal(time.Date(2023, 6, 9, 9, 30, 0, 0, time.UTC)) {
		t.Errorf("got observed at %v", obs.ObservedAt)
	}
}

func TestRestFindPerson(t *testing.T) {

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/persons/9" {
			http.NotFound(w, req)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"person_id": 9, "given_name": "Jane", "family_name": "Doe",
			"gender": "F", "birthdate": "1985-03-14"}`))
	}))
	defer server.Close()

	client := newTestRestClient(server.URL)

	person, err := client.FindPerson(context.Background(), 9)
	if err != nil {
		t.Fatal("unexpected error:", err)
	}
	if person.GivenName != "Jane" || person.FamilyName != "Doe" {
		t.Errorf("got %s %s", person.GivenName, person.FamilyName)
	}
	if person.BirthDate == nil || person.BirthDate.Format("2006-01-02") != "1985-03-14" {
		t.Error("expected the birthdate to be parsed")
	}
}

func TestRestFindPersonNotFound(t *testing.T) {

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.NotFound(w, req)
	}))
	defer server.Close()

	client := newTestRestClient(server.URL)

	_, err := client.FindPerson(context.Background(), 404)
	if !errors.Is(err, ErrPersonNotFound) {
		t.Fatalf("expected ErrPersonNotFound, got %v", err)
	}
}

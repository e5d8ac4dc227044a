package docstore

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestElastic_Post(t *testing.T) {
	var gotPath, gotMethod string
	var gotBody envelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"_index":"ddrlocal","_id":"ddr-test-1-1","result":"created"}`))
	}))
	defer srv.Close()

	es, err := NewElastic([]string{srv.URL}, "ddrlocal")
	if err != nil {
		t.Fatalf("NewElastic() error = %v", err)
	}

	doc := map[string]string{"title": "Camp newsletter"}
	if err := es.Post(context.Background(), "entity", "ddr-test-1-1", doc); err != nil {
		t.Fatalf("Post() error = %v", err)
	}

	if gotMethod != http.MethodPut {
		t.Errorf("method = %s, want PUT", gotMethod)
	}
	if !strings.HasPrefix(gotPath, "/ddrlocal/_doc/ddr-test-1-1") {
		t.Errorf("path = %s, want /ddrlocal/_doc/ddr-test-1-1", gotPath)
	}
	if gotBody.Model != "entity" || gotBody.ID != "ddr-test-1-1" {
		t.Errorf("body = %+v", gotBody)
	}
}

func TestElastic_PostError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"mapper_parsing_exception"}`))
	}))
	defer srv.Close()

	es, err := NewElastic([]string{srv.URL}, "ddrlocal")
	if err != nil {
		t.Fatal(err)
	}
	err = es.Post(context.Background(), "file", "ddr-test-1-1-master-abc", struct{}{})
	if err == nil {
		t.Fatal("Post() expected error for 400 response")
	}
	if !strings.Contains(err.Error(), "mapper_parsing_exception") {
		t.Errorf("error %q does not include response body", err)
	}
}

func TestNop(t *testing.T) {
	var ix Indexer = Nop{}
	if err := ix.Post(context.Background(), "entity", "x", nil); err != nil {
		t.Errorf("Nop.Post() = %v", err)
	}
}

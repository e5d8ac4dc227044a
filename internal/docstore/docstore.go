// Package docstore posts imported records to the Elasticsearch index that
// backs collection search.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	esv7 "github.com/elastic/go-elasticsearch/v7"
	esapi "github.com/elastic/go-elasticsearch/v7/esapi"
)

// Indexer receives records after a successful commit.
type Indexer interface {
	Post(ctx context.Context, model, id string, doc any) error
}

// Nop discards every document.
type Nop struct{}

func (Nop) Post(context.Context, string, string, any) error { return nil }

// Elastic indexes documents into one Elasticsearch index.
type Elastic struct {
	es    *esv7.Client
	index string
}

// NewElastic connects to the given hosts.
func NewElastic(hosts []string, index string) (*Elastic, error) {
	es, err := esv7.NewClient(esv7.Config{Addresses: hosts})
	if err != nil {
		return nil, fmt.Errorf("docstore client: %w", err)
	}
	return &Elastic{es: es, index: index}, nil
}

type envelope struct {
	Model string `json:"model"`
	ID    string `json:"id"`
	Doc   any    `json:"doc"`
}

// Post indexes doc under id. Documents carry their model so entities and
// files can share one index.
func (e *Elastic) Post(ctx context.Context, model, id string, doc any) error {
	body, err := json.Marshal(envelope{Model: model, ID: id, Doc: doc})
	if err != nil {
		return fmt.Errorf("encode %s: %w", id, err)
	}

	req := esapi.IndexRequest{
		Index:      e.index,
		DocumentID: id,
		Body:       bytes.NewReader(body),
		Refresh:    "false",
	}
	res, err := req.Do(ctx, e.es)
	if err != nil {
		return fmt.Errorf("index %s: %w", id, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("index %s: %s: %s", id, res.Status(), bytes.TrimSpace(msg))
	}
	return nil
}

// Ping checks that the cluster answers.
func (e *Elastic) Ping(ctx context.Context) error {
	res, err := e.es.Info(e.es.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("docstore ping: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("docstore ping: %s", res.Status())
	}
	return nil
}

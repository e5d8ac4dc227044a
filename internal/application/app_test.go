package application

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/JonMunkholm/ddrcsv/internal/config"
	"github.com/JonMunkholm/ddrcsv/internal/core"
	"github.com/JonMunkholm/ddrcsv/internal/models"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Collection.MediaBase = t.TempDir()
	cfg.Collection.ExportDir = t.TempDir()
	cfg.Collection.Charset = "utf-8"
	cfg.Collection.Timezone = "UTC"
	cfg.Git.Binary = "git"
	return cfg
}

func TestNew_WithoutDatabase(t *testing.T) {
	cfg := testConfig(t)
	app, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	if _, ok := app.History.(core.NopHistory); !ok {
		t.Errorf("History = %T, want core.NopHistory", app.History)
	}
	if _, err := app.Service.History(context.Background(), "", 10); !errors.Is(err, core.ErrHistoryDisabled) {
		t.Errorf("History() error = %v, want ErrHistoryDisabled", err)
	}

	coll, err := app.Service.CollectionPath("ddr-test-1")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(cfg.Collection.MediaBase, "ddr-test-1"); coll != want {
		t.Errorf("CollectionPath() = %q, want %q", coll, want)
	}

	if err := os.MkdirAll(coll, 0o755); err != nil {
		t.Fatal(err)
	}
	_, err = app.Service.Export(context.Background(), models.KindEntity, coll, "")
	if !errors.Is(err, core.ErrNothingWritten) {
		t.Errorf("Export(empty) error = %v, want ErrNothingWritten", err)
	}
}

func TestNew_VocabFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Collection.VocabFile = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := New(context.Background(), cfg); err == nil {
		t.Error("New() with missing vocabulary file error = nil")
	}
}

func TestNew_BadDatabaseURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.URL = "://not a url"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Error("New() with bad database URL error = nil")
	}
}

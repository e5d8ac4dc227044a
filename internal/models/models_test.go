package models

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseEntityID(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"ddr-test-1-1", "ddr-test-1-1", false},
		{"ddr-densho-1000-210", "ddr-densho-1000-210", false},
		{"ddr-test-1", "", true},
		{"ddr-test-1-x", "", true},
		{"DDR-test-1-1", "", true},
		{"ddr-test-1-1-master-abc", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			id, err := ParseEntityID(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidID) {
					t.Errorf("ParseEntityID(%q) error = %v, want ErrInvalidID", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseEntityID(%q) error = %v", tt.in, err)
			}
			if id.String() != tt.want {
				t.Errorf("String() = %q, want %q", id.String(), tt.want)
			}
		})
	}
}

func TestEntityID_Paths(t *testing.T) {
	id, err := ParseEntityID("ddr-test-1-5")
	if err != nil {
		t.Fatal(err)
	}
	if got := id.CollectionID.String(); got != "ddr-test-1" {
		t.Errorf("CollectionID = %q, want ddr-test-1", got)
	}
	coll := id.CollectionID.Path("/media")
	if coll != "/media/ddr-test-1" {
		t.Errorf("collection path = %q", coll)
	}
	want := filepath.Join("/media/ddr-test-1", "files", "ddr-test-1-5", "entity.json")
	if got := id.JSONPath(coll); got != want {
		t.Errorf("JSONPath = %q, want %q", got, want)
	}
}

func TestFileID(t *testing.T) {
	eid, _ := ParseEntityID("ddr-test-1-5")
	fid := NewFileID(eid, RoleMaster, "a1b2c3d4e5f60718293a4b5c6d7e8f9012345678")

	if got := fid.String(); got != "ddr-test-1-5-master-a1b2c3d4e5" {
		t.Fatalf("String() = %q", got)
	}
	parsed, err := ParseFileID(fid.String())
	if err != nil {
		t.Fatalf("ParseFileID() error = %v", err)
	}
	if parsed != fid {
		t.Errorf("ParseFileID() = %+v, want %+v", parsed, fid)
	}

	coll := "/media/ddr-test-1"
	if got, want := fid.JSONPath(coll), "/media/ddr-test-1/files/ddr-test-1-5/files/ddr-test-1-5-master-a1b2c3d4e5.json"; got != want {
		t.Errorf("JSONPath = %q, want %q", got, want)
	}
	if got, want := fid.BinaryPath(coll, ".tif"), "/media/ddr-test-1/files/ddr-test-1-5/files/ddr-test-1-5-master-a1b2c3d4e5.tif"; got != want {
		t.Errorf("BinaryPath = %q, want %q", got, want)
	}

	if _, err := ParseFileID("ddr-test-1-5-access-a1b2c3d4e5"); err == nil {
		t.Error("ParseFileID accepted access role")
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"entity": KindEntity, "Entities": KindEntity, "objects": KindEntity, "files": KindFile} {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Errorf("ParseKind(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseKind("collection"); err == nil {
		t.Error("ParseKind(collection) expected error")
	}
}

func TestEntitySchema_Set(t *testing.T) {
	s := EntitySchema()
	var e Entity

	sets := map[string]string{
		"id":             "ddr-test-1-1",
		"title":          "  Camp newsletter ",
		"creators":       "Smith, John; Doe, Jane;",
		"language":       "eng;jpn:Japanese",
		"topics":         "Internment camps;Newspapers",
		"facility":       "Minidoka",
		"record_created": "2014-03-01T10:11:12.000000",
	}
	for name, raw := range sets {
		if err := s.Set(&e, name, raw); err != nil {
			t.Fatalf("Set(%s) error = %v", name, err)
		}
	}

	if e.Title != "Camp newsletter" {
		t.Errorf("Title = %q", e.Title)
	}
	if diff := cmp.Diff([]string{"Smith, John", "Doe, Jane"}, e.Creators); diff != "" {
		t.Errorf("Creators mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"eng", "jpn"}, e.Language); diff != "" {
		t.Errorf("Language mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Minidoka"}, e.Facility); diff != "" {
		t.Errorf("Facility mismatch (-want +got):\n%s", diff)
	}
	want := time.Date(2014, 3, 1, 10, 11, 12, 0, time.Local)
	if !e.RecordCreated.Equal(want) {
		t.Errorf("RecordCreated = %v, want %v", e.RecordCreated, want)
	}

	if err := s.Set(&e, "record_lastmod", "yesterday"); err == nil {
		t.Error("Set(record_lastmod, yesterday) expected error")
	}
	if err := s.Set(&e, "nonsense", "x"); err == nil {
		t.Error("Set(nonsense) expected error")
	}
	if err := s.Set(&e, "files", "ddr-test-1-1-master-abc"); err != nil || len(e.Files) != 0 {
		t.Errorf("Set(files) = %v, files = %v; want ignored", err, e.Files)
	}
}

func TestEntitySchema_Export(t *testing.T) {
	s := EntitySchema()
	e := Entity{
		ID:            "ddr-test-1-1",
		RecordCreated: time.Date(2014, 3, 1, 10, 11, 12, 500000000, time.UTC),
		Creators:      []string{"Smith, John", "Doe, Jane"},
		Language:      []string{"eng", "jpn"},
		Files:         []FileRef{{ID: "ddr-test-1-1-master-abc"}},
	}

	names := s.ExportNames(EntityExportSkip...)
	row := s.ExportRow(&e, EntityExportSkip...)
	if len(names) != len(row) {
		t.Fatalf("len(names) = %d, len(row) = %d", len(names), len(row))
	}
	got := make(map[string]string, len(names))
	for i, n := range names {
		got[n] = row[i]
	}
	if _, ok := got["files"]; ok {
		t.Error("files exported")
	}
	checks := map[string]string{
		"id":             "ddr-test-1-1",
		"record_created": "2014-03-01T10:11:12.500000",
		"record_lastmod": "",
		"creators":       "Smith, John; Doe, Jane",
		"language":       "eng;jpn",
		"topics":         "",
	}
	for k, want := range checks {
		if got[k] != want {
			t.Errorf("export %s = %q, want %q", k, got[k], want)
		}
	}
}

func TestEntitySchema_Required(t *testing.T) {
	var required []string
	for _, f := range EntitySchema().Fields() {
		if f.Required {
			required = append(required, f.Name)
		}
	}
	want := []string{"id", "status", "public", "title", "language", "genre", "format", "rights"}
	if diff := cmp.Diff(want, required); diff != "" {
		t.Errorf("required fields mismatch (-want +got):\n%s", diff)
	}
}

func TestFileSchema(t *testing.T) {
	s := FileSchema()
	var f File

	if err := s.Set(&f, "sort", "3"); err != nil || f.Sort != 3 {
		t.Errorf("Set(sort) = %v, Sort = %d", err, f.Sort)
	}
	if err := s.Set(&f, "sort", "three"); err == nil {
		t.Error("Set(sort, three) expected error")
	}
	if err := s.Set(&f, "sha1", "deadbeef"); err != nil || f.SHA1 != "" {
		t.Errorf("computed sha1 was imported: %v %q", err, f.SHA1)
	}

	f.Size = 2048
	names := s.ExportNames()
	row := s.ExportRow(&f)
	for i, n := range names {
		if n == "size" && row[i] != "2048" {
			t.Errorf("export size = %q, want 2048", row[i])
		}
	}
}

func TestEntity_AddFile(t *testing.T) {
	var e Entity
	e.AddFile(FileRef{ID: "a", Label: "one"})
	e.AddFile(FileRef{ID: "b"})
	e.AddFile(FileRef{ID: "a", Label: "two"})

	want := []FileRef{{ID: "a", Label: "two"}, {ID: "b"}}
	if diff := cmp.Diff(want, e.Files); diff != "" {
		t.Errorf("Files mismatch (-want +got):\n%s", diff)
	}
}

package core

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/JonMunkholm/ddrcsv/internal/logging"
	"github.com/JonMunkholm/ddrcsv/internal/models"
)

// Exporter writes collection records back to CSV.
type Exporter struct {
	store     RecordStore
	exportDir string
	entities  *models.Schema[models.Entity]
	files     *models.Schema[models.File]
}

// NewExporter returns an Exporter writing default paths under exportDir.
func NewExporter(st RecordStore, exportDir string) *Exporter {
	return &Exporter{
		store:     st,
		exportDir: exportDir,
		entities:  models.EntitySchema(),
		files:     models.FileSchema(),
	}
}

// DefaultPath is <export dir>/<collection id>-objects.csv for entities and
// <collection id>-files.csv for files.
func (x *Exporter) DefaultPath(kind models.Kind, collectionPath string) string {
	suffix := "objects"
	if kind == models.KindFile {
		suffix = "files"
	}
	return filepath.Join(x.exportDir, fmt.Sprintf("%s-%s.csv", filepath.Base(collectionPath), suffix))
}

// Export writes every record of kind under collectionPath to csvPath, or to
// DefaultPath when csvPath is empty. With no records it returns
// ErrNothingWritten and leaves no file behind.
func (x *Exporter) Export(ctx context.Context, kind models.Kind, collectionPath, csvPath string) (ExportResult, error) {
	if csvPath == "" {
		csvPath = x.DefaultPath(kind, collectionPath)
	}
	res := ExportResult{Path: csvPath, Kind: kind}

	paths, err := FindRecords(kind, collectionPath)
	if err != nil {
		return res, err
	}
	if len(paths) == 0 {
		return res, fmt.Errorf("export %s %s: %w", filepath.Base(collectionPath), kind, ErrNothingWritten)
	}

	var header []string
	var rows [][]string
	switch kind {
	case models.KindEntity:
		header = x.entities.ExportNames(models.EntityExportSkip...)
		for _, p := range paths {
			e, err := x.store.LoadEntity(p)
			if err != nil {
				return res, err
			}
			rows = append(rows, x.entities.ExportRow(e, models.EntityExportSkip...))
		}
	case models.KindFile:
		header = x.files.ExportNames()
		for _, p := range paths {
			f, err := x.store.LoadFile(p)
			if err != nil {
				return res, err
			}
			rows = append(rows, x.files.ExportRow(f))
		}
	default:
		return res, fmt.Errorf("unknown record kind %q", kind)
	}

	if err := writeCSV(csvPath, header, rows); err != nil {
		return res, err
	}
	res.Records = len(rows)

	logging.FromContext(ctx).Info("export complete",
		"kind", kind,
		"collection", filepath.Base(collectionPath),
		"records", res.Records,
		"path", csvPath,
	)
	return res, nil
}

// FindRecords lists the metadata files of kind under collectionPath in
// lexical order. Entities are entity.json leaves; files are JSON leaves
// whose name is a master or mezzanine File ID.
func FindRecords(kind models.Kind, collectionPath string) ([]string, error) {
	root := filepath.Join(collectionPath, models.CollectionFilesPrefix)
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		switch kind {
		case models.KindEntity:
			if name == models.EntityJSON {
				out = append(out, path)
			}
		case models.KindFile:
			if strings.HasSuffix(name, ".json") {
				if fid, err := models.ParseFileID(strings.TrimSuffix(name, ".json")); err == nil && models.ValidRole(fid.Role) {
					out = append(out, path)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", collectionPath, err)
	}
	sort.Strings(out)
	return out, nil
}

// writeCSV writes through a temp file so a failed export leaves nothing.
func writeCSV(path string, header []string, rows [][]string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".export-*.csv")
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := NewCSVWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return err
	}
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

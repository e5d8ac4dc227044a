package core

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/ddrcsv/internal/models"
)

// EntityLoader is the part of the record store the reference check needs.
type EntityLoader interface {
	LoadEntity(path string) (*models.Entity, error)
}

// CollectionFor returns the repository of cid. Collections other than the
// one at collectionPath are looked up next to it.
func CollectionFor(collectionPath string, cid models.CollectionID) string {
	if filepath.Base(collectionPath) == cid.String() {
		return collectionPath
	}
	return cid.Path(filepath.Dir(collectionPath))
}

// EntityJSONPath locates an entity's metadata file.
func EntityJSONPath(collectionPath string, eid models.EntityID) string {
	return eid.JSONPath(CollectionFor(collectionPath, eid.CollectionID))
}

// SourcePath resolves a row's basename_orig against the CSV directory.
func SourcePath(csvDir, basename string) string {
	return filepath.Join(csvDir, strings.TrimSpace(basename))
}

// CheckReferences verifies, for a whole files batch, that every parent
// entity loads and every source file exists and is readable. It returns nil
// when everything resolves. Each list keeps input order without repeats.
func CheckReferences(collectionPath, csvDir string, rows []map[string]string, entities EntityLoader) *ReferenceError {
	ref := &ReferenceError{}
	seenEntity := make(map[string]bool)
	seenFile := make(map[string]bool)

	for _, row := range rows {
		raw := strings.TrimSpace(row[models.FileEntityColumn])
		if !seenEntity[raw] {
			seenEntity[raw] = true
			if !entityLoads(collectionPath, raw, entities) {
				ref.BadEntities = append(ref.BadEntities, raw)
			}
		}

		src := SourcePath(csvDir, row["basename_orig"])
		if seenFile[src] {
			continue
		}
		seenFile[src] = true
		switch err := checkReadable(src); {
		case err == nil:
		case errors.Is(err, fs.ErrNotExist):
			ref.MissingFiles = append(ref.MissingFiles, src)
		default:
			ref.UnreadableFiles = append(ref.UnreadableFiles, src)
		}
	}

	if len(ref.BadEntities) == 0 && len(ref.MissingFiles) == 0 && len(ref.UnreadableFiles) == 0 {
		return nil
	}
	return ref
}

func entityLoads(collectionPath, raw string, entities EntityLoader) bool {
	eid, err := models.ParseEntityID(raw)
	if err != nil {
		return false
	}
	_, err = entities.LoadEntity(EntityJSONPath(collectionPath, eid))
	return err == nil
}

// checkReadable opens path for reading. Directories count as unreadable.
func checkReadable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return errors.New("is a directory")
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	return f.Close()
}

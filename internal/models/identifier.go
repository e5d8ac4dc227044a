package models

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
)

// CollectionFilesPrefix is the collection subdirectory holding entities.
const CollectionFilesPrefix = "files"

// File roles that carry metadata in a collection.
const (
	RoleMaster    = "master"
	RoleMezzanine = "mezzanine"
)

// EntityJSON is the metadata file name inside an entity directory.
const EntityJSON = "entity.json"

// SHA1PrefixLen is the number of sha1 hex digits used in a File ID.
const SHA1PrefixLen = 10

var (
	ErrInvalidID = errors.New("invalid identifier")

	collectionIDRe = regexp.MustCompile(`^([a-z]+)-([a-z0-9]+)-([0-9]+)$`)
	entityIDRe     = regexp.MustCompile(`^([a-z]+)-([a-z0-9]+)-([0-9]+)-([0-9]+)$`)
	fileIDRe       = regexp.MustCompile(`^([a-z]+)-([a-z0-9]+)-([0-9]+)-([0-9]+)-(master|mezzanine)-([0-9a-f]+)$`)
)

// CollectionID identifies a collection repository: repo-org-cid.
type CollectionID struct {
	Repo       string
	Org        string
	Collection int
}

func (c CollectionID) String() string {
	return fmt.Sprintf("%s-%s-%d", c.Repo, c.Org, c.Collection)
}

// Path returns the collection repository under base.
func (c CollectionID) Path(base string) string {
	return filepath.Join(base, c.String())
}

// ParseCollectionID parses "ddr-test-1".
func ParseCollectionID(s string) (CollectionID, error) {
	m := collectionIDRe.FindStringSubmatch(s)
	if m == nil {
		return CollectionID{}, fmt.Errorf("%w: collection %q", ErrInvalidID, s)
	}
	cid, err := strconv.Atoi(m[3])
	if err != nil {
		return CollectionID{}, fmt.Errorf("%w: collection %q", ErrInvalidID, s)
	}
	return CollectionID{Repo: m[1], Org: m[2], Collection: cid}, nil
}

// EntityID identifies an entity: repo-org-cid-eid.
type EntityID struct {
	CollectionID
	Entity int
}

func (e EntityID) String() string {
	return fmt.Sprintf("%s-%d", e.CollectionID.String(), e.Entity)
}

// Path returns the entity directory inside its collection repository.
func (e EntityID) Path(collectionPath string) string {
	return filepath.Join(collectionPath, CollectionFilesPrefix, e.String())
}

// JSONPath returns the entity metadata file inside its collection repository.
func (e EntityID) JSONPath(collectionPath string) string {
	return filepath.Join(e.Path(collectionPath), EntityJSON)
}

// ParseEntityID parses "ddr-test-1-1".
func ParseEntityID(s string) (EntityID, error) {
	m := entityIDRe.FindStringSubmatch(s)
	if m == nil {
		return EntityID{}, fmt.Errorf("%w: entity %q", ErrInvalidID, s)
	}
	cid, err1 := strconv.Atoi(m[3])
	eid, err2 := strconv.Atoi(m[4])
	if err1 != nil || err2 != nil {
		return EntityID{}, fmt.Errorf("%w: entity %q", ErrInvalidID, s)
	}
	return EntityID{
		CollectionID: CollectionID{Repo: m[1], Org: m[2], Collection: cid},
		Entity:       eid,
	}, nil
}

// FileID identifies a file: repo-org-cid-eid-role-sha1prefix.
type FileID struct {
	EntityID
	Role string
	SHA1 string
}

// NewFileID builds the ID of a file from its entity, role and full sha1.
func NewFileID(entity EntityID, role, sha1 string) FileID {
	if len(sha1) > SHA1PrefixLen {
		sha1 = sha1[:SHA1PrefixLen]
	}
	return FileID{EntityID: entity, Role: role, SHA1: sha1}
}

func (f FileID) String() string {
	return fmt.Sprintf("%s-%s-%s", f.EntityID.String(), f.Role, f.SHA1)
}

// JSONPath returns the file metadata path inside its collection repository.
func (f FileID) JSONPath(collectionPath string) string {
	return filepath.Join(f.EntityID.Path(collectionPath), CollectionFilesPrefix, f.String()+".json")
}

// BinaryPath returns where the file's binary lives, keeping ext (".tif").
func (f FileID) BinaryPath(collectionPath, ext string) string {
	return filepath.Join(f.EntityID.Path(collectionPath), CollectionFilesPrefix, f.String()+ext)
}

// ParseFileID parses "ddr-test-1-1-master-a1b2c3d4e5".
func ParseFileID(s string) (FileID, error) {
	m := fileIDRe.FindStringSubmatch(s)
	if m == nil {
		return FileID{}, fmt.Errorf("%w: file %q", ErrInvalidID, s)
	}
	eid, err := ParseEntityID(fmt.Sprintf("%s-%s-%s-%s", m[1], m[2], m[3], m[4]))
	if err != nil {
		return FileID{}, fmt.Errorf("%w: file %q", ErrInvalidID, s)
	}
	return FileID{EntityID: eid, Role: m[5], SHA1: m[6]}, nil
}

// ValidRole reports whether role is a metadata-bearing file role.
func ValidRole(role string) bool {
	return role == RoleMaster || role == RoleMezzanine
}

package models

import (
	"strconv"

	"github.com/JonMunkholm/ddrcsv/internal/vocab"
)

// File is the metadata of one binary attached to an entity.
type File struct {
	ID             string `json:"id"`
	Role           string `json:"role"`
	SHA1           string `json:"sha1"`
	SHA256         string `json:"sha256"`
	MD5            string `json:"md5"`
	Size           int64  `json:"size"`
	BasenameOrig   string `json:"basename_orig"`
	Mimetype       string `json:"mimetype"`
	Public         string `json:"public"`
	Rights         string `json:"rights"`
	Sort           int    `json:"sort"`
	Thumb          int    `json:"thumb"`
	Label          string `json:"label"`
	DigitizePerson string `json:"digitize_person"`
	TechNotes      string `json:"tech_notes"`
	XMP            string `json:"xmp"`
	Links          string `json:"links"`
	AccessRel      string `json:"access_rel"`
}

// FileRequiredExceptions are file fields that may be missing from an
// import header. Hashes, size and ID are computed from the binary.
var FileRequiredExceptions = []string{
	"id", "sha1", "sha256", "md5", "size", "mimetype",
	"thumb", "access_rel", "xmp", "links",
}

// FileEntityColumn links a files-import row to its parent entity.
const FileEntityColumn = "entity_id"

// FileSchema returns the file field table.
func FileSchema() *Schema[File] {
	defs := []FieldDef[File]{
		readOnly(Field{Name: "id", Label: "File ID"}, func(f *File) any { return f.ID }, nil),
		text(Field{Name: "role", Label: "Role", Required: true}, func(f *File) *string { return &f.Role }),
		readOnly(Field{Name: "sha1", Label: "SHA1 Hash"}, func(f *File) any { return f.SHA1 }, nil),
		readOnly(Field{Name: "sha256", Label: "SHA256 Hash"}, func(f *File) any { return f.SHA256 }, nil),
		readOnly(Field{Name: "md5", Label: "MD5 Hash"}, func(f *File) any { return f.MD5 }, nil),
		readOnly(Field{Name: "size", Label: "File Size"}, func(f *File) any { return f.Size }, exportSize),
		text(Field{Name: "basename_orig", Label: "Original Filename", Required: true}, func(f *File) *string { return &f.BasenameOrig }),
		readOnly(Field{Name: "mimetype", Label: "MIME type"}, func(f *File) any { return f.Mimetype }, nil),
		text(Field{Name: "public", Label: "Privacy Level", Required: true, Vocab: vocab.Permissions}, func(f *File) *string { return &f.Public }),
		text(Field{Name: "rights", Label: "Rights", Required: true, Vocab: vocab.Rights}, func(f *File) *string { return &f.Rights }),
		integer(Field{Name: "sort", Label: "Sort"}, func(f *File) *int { return &f.Sort }),
		integer(Field{Name: "thumb", Label: "Thumbnail"}, func(f *File) *int { return &f.Thumb }),
		text(Field{Name: "label", Label: "Label"}, func(f *File) *string { return &f.Label }),
		text(Field{Name: "digitize_person", Label: "Digitizer"}, func(f *File) *string { return &f.DigitizePerson }),
		text(Field{Name: "tech_notes", Label: "Technical Notes"}, func(f *File) *string { return &f.TechNotes }),
		text(Field{Name: "xmp", Label: "XMP Metadata"}, func(f *File) *string { return &f.XMP }),
		text(Field{Name: "links", Label: "Associated Files"}, func(f *File) *string { return &f.Links }),
		text(Field{Name: "access_rel", Label: "Access Copy"}, func(f *File) *string { return &f.AccessRel }),
	}
	return NewSchema(KindFile, defs, FileRequiredExceptions)
}

func exportSize(v any) string {
	n, _ := v.(int64)
	if n == 0 {
		return ""
	}
	return strconv.FormatInt(n, 10)
}

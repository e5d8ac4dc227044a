package models

import (
	"strings"
	"time"

	"github.com/JonMunkholm/ddrcsv/internal/vocab"
)

// Entity is the metadata of one archival object.
type Entity struct {
	ID                   string    `json:"id"`
	RecordCreated        time.Time `json:"record_created"`
	RecordLastmod        time.Time `json:"record_lastmod"`
	Status               string    `json:"status"`
	Public               string    `json:"public"`
	Title                string    `json:"title"`
	Description          string    `json:"description"`
	Creation             string    `json:"creation"`
	Location             string    `json:"location"`
	Creators             []string  `json:"creators"`
	Language             []string  `json:"language"`
	Genre                string    `json:"genre"`
	Format               string    `json:"format"`
	Extent               string    `json:"extent"`
	Contributor          string    `json:"contributor"`
	AlternateID          string    `json:"alternate_id"`
	DigitizePerson       string    `json:"digitize_person"`
	DigitizeOrganization string    `json:"digitize_organization"`
	DigitizeDate         string    `json:"digitize_date"`
	Credit               string    `json:"credit"`
	Rights               string    `json:"rights"`
	RightsStatement      string    `json:"rights_statement"`
	Topics               []string  `json:"topics"`
	Persons              []string  `json:"persons"`
	Facility             []string  `json:"facility"`
	Parent               string    `json:"parent"`
	Notes                string    `json:"notes"`
	Files                []FileRef `json:"files"`
}

// FileRef is an entity's pointer to one of its files.
type FileRef struct {
	ID    string `json:"id"`
	Role  string `json:"role"`
	Path  string `json:"path_rel"`
	Label string `json:"label,omitempty"`
}

// AddFile appends ref, replacing an existing reference with the same ID.
func (e *Entity) AddFile(ref FileRef) {
	for i, f := range e.Files {
		if f.ID == ref.ID {
			e.Files[i] = ref
			return
		}
	}
	e.Files = append(e.Files, ref)
}

// EntityRequiredExceptions are entity fields that may be missing from an
// import header.
var EntityRequiredExceptions = []string{"record_created", "record_lastmod", "files"}

// EntityExportSkip lists entity fields left out of CSV exports.
var EntityExportSkip = []string{"files"}

// EntitySchema returns the entity field table.
func EntitySchema() *Schema[Entity] {
	defs := []FieldDef[Entity]{
		text(Field{Name: "id", Label: "Object ID", Required: true}, func(e *Entity) *string { return &e.ID }),
		timestamp(Field{Name: "record_created", Label: "Record Created"}, func(e *Entity) *time.Time { return &e.RecordCreated }),
		timestamp(Field{Name: "record_lastmod", Label: "Record Modified"}, func(e *Entity) *time.Time { return &e.RecordLastmod }),
		text(Field{Name: "status", Label: "Production Status", Required: true, Vocab: vocab.Status}, func(e *Entity) *string { return &e.Status }),
		text(Field{Name: "public", Label: "Privacy Level", Required: true, Vocab: vocab.Permissions}, func(e *Entity) *string { return &e.Public }),
		text(Field{Name: "title", Label: "Title", Required: true}, func(e *Entity) *string { return &e.Title }),
		text(Field{Name: "description", Label: "Description"}, func(e *Entity) *string { return &e.Description }),
		text(Field{Name: "creation", Label: "Date (Created)"}, func(e *Entity) *string { return &e.Creation }),
		text(Field{Name: "location", Label: "Location"}, func(e *Entity) *string { return &e.Location }),
		list(Field{Name: "creators", Label: "Creator"}, func(e *Entity) *[]string { return &e.Creators }),
		languageDef(),
		text(Field{Name: "genre", Label: "Object Genre", Required: true, Vocab: vocab.Genre}, func(e *Entity) *string { return &e.Genre }),
		text(Field{Name: "format", Label: "Object Format", Required: true, Vocab: vocab.Format}, func(e *Entity) *string { return &e.Format }),
		text(Field{Name: "extent", Label: "Physical Description"}, func(e *Entity) *string { return &e.Extent }),
		text(Field{Name: "contributor", Label: "Contributing Institution"}, func(e *Entity) *string { return &e.Contributor }),
		text(Field{Name: "alternate_id", Label: "Alternate ID"}, func(e *Entity) *string { return &e.AlternateID }),
		text(Field{Name: "digitize_person", Label: "Digitizer"}, func(e *Entity) *string { return &e.DigitizePerson }),
		text(Field{Name: "digitize_organization", Label: "Digitizing Institution"}, func(e *Entity) *string { return &e.DigitizeOrganization }),
		text(Field{Name: "digitize_date", Label: "Digitize Date"}, func(e *Entity) *string { return &e.DigitizeDate }),
		text(Field{Name: "credit", Label: "Preferred Citation"}, func(e *Entity) *string { return &e.Credit }),
		text(Field{Name: "rights", Label: "Rights", Required: true, Vocab: vocab.Rights}, func(e *Entity) *string { return &e.Rights }),
		text(Field{Name: "rights_statement", Label: "Restrictions on Reproduction and Use"}, func(e *Entity) *string { return &e.RightsStatement }),
		list(Field{Name: "topics", Label: "Topic"}, func(e *Entity) *[]string { return &e.Topics }),
		list(Field{Name: "persons", Label: "Person/Organization"}, func(e *Entity) *[]string { return &e.Persons }),
		list(Field{Name: "facility", Label: "Facility"}, func(e *Entity) *[]string { return &e.Facility }),
		text(Field{Name: "parent", Label: "Parent Object"}, func(e *Entity) *string { return &e.Parent }),
		text(Field{Name: "notes", Label: "Notes"}, func(e *Entity) *string { return &e.Notes }),
		readOnly(Field{Name: "files", Label: "Files"}, func(e *Entity) any { return e.Files }, exportFileRefs),
	}
	return NewSchema(KindEntity, defs, EntityRequiredExceptions)
}

// languageDef stores language as a list of codes. Labels in "code:Label"
// components are dropped.
func languageDef() FieldDef[Entity] {
	return FieldDef[Entity]{
		Field: Field{Name: "language", Label: "Language", Required: true, Vocab: vocab.Language, List: true},
		Get:   func(e *Entity) any { return e.Language },
		Set: func(e *Entity, raw string) error {
			var codes []string
			for _, c := range SplitList(raw) {
				if i := strings.IndexByte(c, ':'); i >= 0 {
					c = strings.TrimSpace(c[:i])
				}
				codes = append(codes, c)
			}
			e.Language = codes
			return nil
		},
		Export: exportCodes,
	}
}

func exportFileRefs(v any) string {
	refs, _ := v.([]FileRef)
	ids := make([]string, len(refs))
	for i, r := range refs {
		ids[i] = r.ID
	}
	return strings.Join(ids, "; ")
}

package vocab

import "sort"

var statusAlt = map[string][]string{
	"inprocess": {"In Process", "In Progress", "inprogress"},
	"completed": {"Completed", "complete", "Complete"},
}

var permissionsAlt = map[string][]string{
	"1": {"public", "Public"},
	"0": {"private", "Private"},
}

var languageAlt = map[string][]string{
	"eng": {"english", "English", "eng:English"},
	"jpn": {"japanese", "Japanese", "jpn:Japanese"},
	"chi": {"chinese", "Chinese", "chi:Chinese"},
	"fre": {"french", "French", "fre:French"},
	"ger": {"german", "German", "ger:German"},
	"ita": {"italian", "Italian", "ita:Italian"},
	"kor": {"korean", "Korean", "kor:Korean"},
	"por": {"portuguese", "Portuguese", "por:Portuguese"},
	"rus": {"russian", "Russian", "rus:Russian"},
	"spa": {"spanish", "Spanish", "spa:Spanish"},
	"tgl": {"tagalog", "Tagalog", "tgl:Tagalog"},
}

var genreAlt = map[string][]string{
	"advertisement":   {"Advertisements", "Advertisement"},
	"album":           {"Albums", "Album"},
	"architecture":    {"Architecture"},
	"baseball_card":   {"Baseball Cards", "Baseball Card"},
	"blank_form":      {"Blank Forms", "Blank Form"},
	"book":            {"Books", "Book"},
	"broadside":       {"Broadsides", "Broadside"},
	"cartoon":         {"Cartoons (Commentary)", "Cartoon (Commentary)"},
	"catalog":         {"Catalogs", "Catalog"},
	"cityscape":       {"Cityscapes", "Cityscape"},
	"clipping":        {"Clippings", "Clipping"},
	"correspondence":  {"Correspondence"},
	"diary":           {"Diaries", "Diary"},
	"drawing":         {"Drawings", "Drawing"},
	"ephemera":        {"Ephemera"},
	"essay":           {"Essays", "Essay"},
	"ethnography":     {"Ethnographies", "Ethnography"},
	"fieldnotes":      {"Fieldnotes", "Fieldnote"},
	"illustration":    {"Illustrations", "Illustration"},
	"interview":       {"Interviews", "Interview"},
	"landscape":       {"Landscapes", "Landscape"},
	"leaflet":         {"Leaflets", "Leaflet"},
	"manuscript":      {"Manuscripts", "Manuscript"},
	"map":             {"Maps", "Map"},
	"misc_document":   {"Miscellaneous Documents", "Miscellaneous Document"},
	"motion_picture":  {"Motion Pictures", "Motion Picture"},
	"music":           {"Music"},
	"narrative":       {"Narratives", "Narrative"},
	"painting":        {"Paintings", "Painting"},
	"pamphlet":        {"Pamphlets", "Pamphlet"},
	"periodical":      {"Periodicals", "Periodical"},
	"petition":        {"Petitions", "Petition"},
	"photograph":      {"Photographs", "Photograph"},
	"physical_object": {"Physical Objects", "Physical Object"},
	"poetry":          {"Poetry"},
	"portrait":        {"Portraits", "Portrait"},
	"postcard":        {"Postcards", "Postcard"},
	"poster":          {"Posters", "Poster"},
	"print":           {"Prints", "Print"},
	"program":         {"Programs", "Program"},
	"rec_log":         {"Recording Logs", "Recording Log"},
	"score":           {"Scores", "Score"},
	"sheet_music":     {"Sheet Music"},
	"timetable":       {"Timetables", "Timetable"},
	"transcription":   {"Transcriptions", "Transcription"},
}

var formatAlt = map[string][]string{
	"av":  {"Audio/Visual"},
	"ds":  {"Datasets", "Dataset"},
	"doc": {"Documents", "Document"},
	"img": {"Still Images", "Still Image"},
	"vh":  {"Oral Histories", "Oral History"},
}

// DefaultTables returns the built-in DDR vocabularies.
// Each call returns a fresh copy.
func DefaultTables() Tables {
	return Tables{
		Choices: map[string][]Choice{
			Status: {
				{Value: "inprocess", Label: "In Process"},
				{Value: "completed", Label: "Completed"},
			},
			Permissions: {
				{Value: "1", Label: "Public"},
				{Value: "0", Label: "Private"},
			},
			Rights: {
				{Value: "cc", Label: "DDR Creative Commons"},
				{Value: "nocc", Label: "Copyright, restricted"},
				{Value: "pdm", Label: "Public domain"},
			},
			Language: choicesFrom(languageAlt, 1),
			Genre:    choicesFrom(genreAlt, -1),
			Format:   choicesFrom(formatAlt, -1),
		},
		Variants: map[string]map[string][]string{
			Status:      copyAlt(statusAlt),
			Permissions: copyAlt(permissionsAlt),
			Language:    copyAlt(languageAlt),
			Genre:       copyAlt(genreAlt),
			Format:      copyAlt(formatAlt),
		},
		Headers: map[string]map[string][]string{
			"entity": {"facility": {"facilities"}},
			"file":   {"basename_orig": {"file"}},
		},
	}
}

// Default is New(DefaultTables()).
func Default() *Set {
	return New(DefaultTables())
}

// choicesFrom derives choices from a variant table, taking the label from
// the variant at position i (negative counts from the end).
func choicesFrom(alts map[string][]string, i int) []Choice {
	out := make([]Choice, 0, len(alts))
	for code, vs := range alts {
		j := i
		if j < 0 {
			j += len(vs)
		}
		out = append(out, Choice{Value: code, Label: vs[j]})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Value < out[b].Value })
	return out
}

func copyAlt(alts map[string][]string) map[string][]string {
	out := make(map[string][]string, len(alts))
	for k, v := range alts {
		out[k] = append([]string(nil), v...)
	}
	return out
}

package config

import "github.com/albapepper/powerdata/internal/keys"

// SportIDs maps a sport category to its numeric sport ID. Keys are in
// lookup form (see keys.NormalizeCategory).
var SportIDs = map[string]string{
	"afl mens":                     "1",
	"afl womens":                   "2",
	"nrl mens":                     "3",
	"nrl womens":                   "4",
	"fast5 mens":                   "5",
	"fast5 womens":                 "6",
	"netball mens":                 "7",
	"netball womens nz":            "8",
	"netball womens australia":     "9",
	"netball womens international": "10",
	"netball unknown":              "11",
	"nrl unknown":                  "12",
}

// SportID looks up a category case-insensitively. ok is false for categories
// with no mapping.
func SportID(category string) (string, bool) {
	_, lookup := keys.NormalizeCategory(category)
	id, ok := SportIDs[lookup]
	return id, ok
}

package championdata

import (
	"regexp"
	"strings"

	"github.com/albapepper/powerdata/internal/provider"
)

var (
	womensWord = regexp.MustCompile(`\b(women'?s?|aflw|nrlw|female|girls)\b`)
	mensWord   = regexp.MustCompile(`\b(men'?s?|male|boys)\b`)
)

// rule assigns category when match holds. Rules are tried in order.
type rule struct {
	category string
	match    func(in classifyView) bool
}

// classifyView is the normalized input rules look at.
type classifyView struct {
	name          string
	periods       int
	international bool
}

func (v classifyView) has(words ...string) bool {
	for _, w := range words {
		if strings.Contains(v.name, w) {
			return true
		}
	}
	return false
}

func (v classifyView) womens() bool { return womensWord.MatchString(v.name) }
func (v classifyView) mens() bool   { return !v.womens() && mensWord.MatchString(v.name) }

func isFast5(v classifyView) bool { return v.has("fast5", "fast 5", "fastnet") }
func isNRL(v classifyView) bool {
	return v.has("nrl", "rugby league", "state of origin") || strings.HasPrefix(v.name, "nrlw")
}
func isAFL(v classifyView) bool { return v.has("afl", "aussie rules", "australian football") }

// defaultRules is the category rule table for Champion Data competitions.
var defaultRules = []rule{
	{"Fast5 Mens", func(v classifyView) bool { return isFast5(v) && v.mens() }},
	{"Fast5 Womens", isFast5},
	{"NRL Womens", func(v classifyView) bool { return isNRL(v) && v.womens() }},
	{"NRL Mens", func(v classifyView) bool { return isNRL(v) && (v.mens() || v.has("premiership", "telstra", "state of origin")) }},
	{"NRL Unknown", isNRL},
	{"AFL Womens", func(v classifyView) bool { return isAFL(v) && v.womens() }},
	{"AFL Mens", isAFL},
	{"Netball Mens", func(v classifyView) bool { return v.mens() && (v.has("netball") || v.periods == 4) }},
	{"Netball Womens International", func(v classifyView) bool {
		return v.international || v.has("international", "test series", "quad series", "world cup",
			"constellation cup", "commonwealth", "nations cup", "taini jamison", "fast5 series")
	}},
	{"Netball Womens NZ", func(v classifyView) bool {
		return v.has("anz premiership", "netball new zealand", "beko", "national netball league", "nnl")
	}},
	{"Netball Womens Australia", func(v classifyView) bool {
		return v.has("super netball", "suncorp", "ssn", "anz championship", "australian netball league", "ancl")
	}},
	{"Netball Unknown", func(v classifyView) bool { return v.has("netball") || v.periods == 4 }},
	{"NRL Unknown", func(v classifyView) bool { return v.periods == 2 }},
}

// Classifier derives the sport category of a competition from its name,
// regulation period count and squads.
type Classifier struct {
	rules         []rule
	international map[string]struct{}
}

// NewClassifier builds a classifier over defaultRules. A fixture involving
// any of internationalSquadIDs is treated as international netball.
func NewClassifier(internationalSquadIDs ...string) *Classifier {
	intl := make(map[string]struct{}, len(internationalSquadIDs))
	for _, id := range internationalSquadIDs {
		if id = strings.TrimSpace(id); id != "" {
			intl[id] = struct{}{}
		}
	}
	return &Classifier{rules: defaultRules, international: intl}
}

// Classify implements provider.Classifier. Returns "" when no rule matches.
func (c *Classifier) Classify(in provider.ClassifyInput) string {
	v := classifyView{
		name:    strings.ToLower(strings.Join(strings.Fields(in.LeagueName), " ")),
		periods: in.RegulationPeriods,
	}
	for _, id := range in.SquadIDs {
		if _, ok := c.international[id]; ok {
			v.international = true
			break
		}
	}
	for _, r := range c.rules {
		if r.match(v) {
			return r.category
		}
	}
	return ""
}

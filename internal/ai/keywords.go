package ai

import (
	"regexp"
	"strings"

	"github.com/amishk599/jobmatch/internal/model"
)

// roleVocabulary is checked in order; more specific phrases come first.
var roleVocabulary = []string{
	"information technology audit",
	"technology audit",
	"audit technology",
	"tech audit",
	"it audit",
	"technology risk",
	"cyber security",
	"cybersecurity",
	"data analytics",
	"internal audit",
	"external audit",
	"audit manager",
	"audit senior",
	"audit associate",
	"tax manager",
	"tax senior",
	"tax associate",
	"transfer pricing",
	"forensic accounting",
	"risk advisory",
	"financial advisory",
	"management consulting",
	"deal advisory",
	"actuarial",
	"assurance",
	"audit",
	"tax",
	"advisory",
	"consulting",
	"accounting",
	"accountant",
	"auditor",
	"consultant",
	"analyst",
}

type locationAlias struct {
	alias     string
	canonical string
}

// locationAliases maps spellings to one canonical city. Longer aliases come
// first so "new york city" wins over "new york".
var locationAliases = []locationAlias{
	{"new york city", "new york"},
	{"washington dc", "washington"},
	{"washington d c", "washington"},
	{"san francisco", "san francisco"},
	{"los angeles", "los angeles"},
	{"massachusetts", "boston"},
	{"philadelphia", "philadelphia"},
	{"bay area", "san francisco"},
	{"manhattan", "new york"},
	{"new york", "new york"},
	{"washington", "washington"},
	{"chicago", "chicago"},
	{"houston", "houston"},
	{"atlanta", "atlanta"},
	{"seattle", "seattle"},
	{"toronto", "toronto"},
	{"charlotte", "charlotte"},
	{"boston", "boston"},
	{"dallas", "dallas"},
	{"denver", "denver"},
	{"london", "london"},
	{"philly", "philadelphia"},
	{"remote", "remote"},
	{"miami", "miami"},
	{"nyc", "new york"},
	{"bos", "boston"},
	{"ny", "new york"},
	{"la", "los angeles"},
	{"sf", "san francisco"},
	{"dc", "washington"},
	{"ma", "boston"},
}

// locationContext must come right before a two-letter alias in free text,
// so "tax jobs in LA" is a place and "MA in accounting" is not.
var locationContext = []string{"in", "near", "at", "around", "in the", "near the", "around the"}

type experienceBucket struct {
	name    string
	markers []string
}

// experienceBuckets is the closed set of seniority levels, checked in order.
var experienceBuckets = []experienceBucket{
	{"manager or director", []string{"manager", "managers", "director", "directors", "managing director", "managerial"}},
	{"partner", []string{"partner", "principal"}},
	{"senior", []string{"senior", "sr", "experienced", "advanced"}},
	{"mid level", []string{"mid", "mid level", "intermediate"}},
	{"junior", []string{"junior", "jr", "associate"}},
	{"entry level", []string{"entry", "entry level", "graduate", "intern", "internship", "trainee"}},
}

var (
	specializationModifiers = []string{"technology", "tech", "it", "information", "data", "digital", "cyber", "cybersecurity", "analytics", "cloud", "ai"}
	serviceLines            = []string{"audit", "auditing", "tax", "advisory", "assurance", "consulting", "risk", "accounting"}
)

var (
	nonWord     = regexp.MustCompile(`[^a-z0-9]+`)
	salaryRegex = regexp.MustCompile(`(?i)\$\s?\d[\d,.]*\s?k?(\s?(-|to)\s?\$?\s?\d[\d,.]*\s?k?)?|\b\d{2,3}\s?k\b(\s?(-|to)\s?\d{2,3}\s?k\b)?`)
)

// tokenize lower-cases s and pads it so " word " tests match on word boundaries.
func tokenize(s string) string {
	return " " + strings.TrimSpace(nonWord.ReplaceAllString(strings.ToLower(s), " ")) + " "
}

func containsWord(tokenized, phrase string) bool {
	return strings.Contains(tokenized, " "+phrase+" ")
}

func containsAny(tokenized string, words []string) bool {
	for _, w := range words {
		if containsWord(tokenized, w) {
			return true
		}
	}
	return false
}

// keywordPreferences is the deterministic extractor used when the model is
// unavailable or its reply is unusable.
func keywordPreferences(raw string) model.ExtractedPreferences {
	text := tokenize(raw)
	prefs := model.ExtractedPreferences{SearchType: model.SearchGeneral}

	for _, role := range roleVocabulary {
		if containsWord(text, role) {
			prefs.Role = model.StrPtr(role)
			// Seniority words inside the role ("audit manager") are not a level.
			text = strings.Replace(text, " "+role+" ", " ", 1)
			break
		}
	}

	if la, ok := findLocation(text); ok {
		prefs.Location = model.StrPtr(la.canonical)
		text = strings.Replace(text, " "+la.alias+" ", " ", 1)
	}

	if bucket := experienceFor(text); bucket != "" {
		prefs.Experience = model.StrPtr(bucket)
	}

	if m := salaryRegex.FindString(raw); m != "" {
		prefs.Salary = model.StrPtr(strings.TrimSpace(m))
	}

	if prefs.Role != nil {
		prefs.SearchType = model.SearchJobTitle
	}
	return prefs
}

// findLocation returns the first alias mentioned in tokenized text.
// Two-letter aliases only count after a locationContext phrase.
func findLocation(tokenized string) (locationAlias, bool) {
	for _, la := range locationAliases {
		if len(la.alias) > 2 {
			if containsWord(tokenized, la.alias) {
				return la, true
			}
			continue
		}
		for _, c := range locationContext {
			if containsWord(tokenized, c+" "+la.alias) {
				return la, true
			}
		}
	}
	return locationAlias{}, false
}

// experienceFor returns the bucket of the first matching level, or "".
func experienceFor(tokenized string) string {
	for _, b := range experienceBuckets {
		if containsAny(tokenized, b.markers) {
			return b.name
		}
	}
	return ""
}

// normalizeLocation maps aliases to their canonical spelling. Unknown
// locations are kept, lower-cased.
func normalizeLocation(loc string) string {
	loc = strings.ToLower(strings.TrimSpace(loc))
	if loc == "" {
		return ""
	}
	key := strings.TrimSpace(tokenize(loc))
	for _, la := range locationAliases {
		if key == la.alias {
			return la.canonical
		}
	}
	// "new york, ny" and similar: try the part before the comma.
	if head, _, ok := strings.Cut(loc, ","); ok {
		if n := normalizeLocation(head); n != "" {
			return n
		}
	}
	return loc
}

// normalize applies the same canonicalization to model and fallback output.
func normalize(p model.ExtractedPreferences) model.ExtractedPreferences {
	out := model.ExtractedPreferences{SearchType: p.SearchType}

	if p.Role != nil {
		if role := strings.Join(strings.Fields(strings.ToLower(*p.Role)), " "); role != "" {
			out.Role = model.StrPtr(role)
		}
	}
	if p.Location != nil {
		if loc := normalizeLocation(*p.Location); loc != "" {
			out.Location = model.StrPtr(loc)
		}
	}
	if p.Experience != nil {
		if bucket := experienceFor(tokenize(*p.Experience)); bucket != "" {
			out.Experience = model.StrPtr(bucket)
		}
	}
	if p.Salary != nil {
		if salary := strings.TrimSpace(*p.Salary); salary != "" {
			out.Salary = model.StrPtr(salary)
		}
	}

	if !out.SearchType.Valid() {
		out.SearchType = model.SearchGeneral
	}
	if out.Role != nil && isSpecialized(*out.Role) {
		out.SearchType = model.SearchSpecialized
	}
	return out
}

// isSpecialized reports whether role pairs a specialization with a service line.
func isSpecialized(role string) bool {
	text := tokenize(role)
	return containsAny(text, specializationModifiers) && containsAny(text, serviceLines)
}

package extractor

import (
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// number matches "$120,000", "120000" and "120k" style amounts. Group 1 is
// the digits, group 2 the optional thousands qualifier.
const number = `\$?(\d{1,3}(?:,\d{3})+|\d+)([kK])?`

var (
	// Pass (a): amounts anchored to a salary keyword.
	anchoredRe = regexp.MustCompile(`(?i)\b(?:base(?:\s+salary)?\s+of|salary\s+of|offer(?:ing)?|at|is|around|for)\s*` + number + `\b`)
	// Passes (b) and (c): any amount. Pass (b) additionally rejects amounts
	// followed by excludedSuffixRe.
	amountRe         = regexp.MustCompile(number + `\b`)
	excludedSuffixRe = regexp.MustCompile(`(?i)^\s*(?:bonus|relocation|stock|year|month)`)

	bonusWordRe   = regexp.MustCompile(`(?i)\bbonus\b`)
	bonusAmountRe = regexp.MustCompile(`(?i)` + number + `\s*bonus`)
)

// PerkFamily groups the phrases that identify one perk.
type PerkFamily struct {
	Name        string   // canonical perk name, e.g. "remote work"
	Keywords    []string // phrases that put the perk into an offer
	Preferences []string // phrases that record a candidate preference
}

// Rules are the tunable parts of extraction.
type Rules struct {
	SalaryMin int // exclusive
	SalaryMax int // exclusive
	Families  []PerkFamily
}

// DefaultRules returns the stock salary band and perk vocabulary.
func DefaultRules() Rules {
	return Rules{
		SalaryMin: 10_000,
		SalaryMax: 1_000_000,
		Families: []PerkFamily{
			{
				Name:        "remote work",
				Keywords:    []string{"remote work", "remote", "work from home", "wfh"},
				Preferences: []string{"remote work", "remote", "work from home", "wfh"},
			},
			{
				Name:        "stock options",
				Keywords:    []string{"stock options", "stock option", "equity", "rsus", "rsu"},
				Preferences: []string{"stock options", "stock option", "equity", "rsus", "rsu"},
			},
			{
				Name:        "relocation assistance",
				Keywords:    []string{"relocation bonus", "relocation package", "relocation assistance", "relocation", "moving expenses"},
				Preferences: []string{"relocation", "moving"},
			},
		},
	}
}

type family struct {
	name  string
	offer *regexp.Regexp
	pref  *regexp.Regexp
}

// Extractor pulls structured offers and perk preferences out of free text.
// It is heuristic and never fails: unrecognised text yields an empty Offer.
type Extractor struct {
	min, max int
	families []family
}

func New(rules Rules) *Extractor {
	e := &Extractor{min: rules.SalaryMin, max: rules.SalaryMax}
	for _, f := range rules.Families {
		e.families = append(e.families, family{
			name:  f.Name,
			offer: phraseRegexp(f.Keywords),
			pref:  phraseRegexp(f.Preferences),
		})
	}
	return e
}

// phraseRegexp builds a case-insensitive, word-bounded alternation. Longer
// phrases are tried first; apostrophes are optional so "lets" matches "let's".
func phraseRegexp(phrases []string) *regexp.Regexp {
	if len(phrases) == 0 {
		return nil
	}
	sorted := slices.Clone(phrases)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	alts := make([]string, 0, len(sorted))
	for _, p := range sorted {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		q := regexp.QuoteMeta(strings.ToLower(p))
		q = strings.ReplaceAll(q, "'", "'?")
		q = strings.Join(strings.Fields(q), `\s+`)
		alts = append(alts, q)
	}
	if len(alts) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(alts, "|") + `)\b`)
}

// PhraseMatcher exposes the keyword matcher used for perks, for callers
// that need the same matching rules (acceptance detection).
func PhraseMatcher(phrases []string) *regexp.Regexp {
	return phraseRegexp(phrases)
}

type amount struct {
	key   string
	value int
}

// amounts returns every number matched by re, normalized. With exclude set,
// amounts directly followed by a non-salary word are skipped.
func amounts(re *regexp.Regexp, text string, exclude bool) []amount {
	var out []amount
	for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
		if exclude && excludedSuffixRe.MatchString(text[m[1]:]) {
			continue
		}
		digits := text[m[2]:m[3]]
		k := ""
		if m[4] >= 0 {
			k = text[m[4]:m[5]]
		}
		v, ok := normalize(digits, k)
		if !ok {
			continue
		}
		out = append(out, amount{key: strings.ReplaceAll(digits, ",", "") + strings.ToLower(k), value: v})
	}
	return out
}

func normalize(digits, k string) (int, bool) {
	n, err := strconv.Atoi(strings.ReplaceAll(digits, ",", ""))
	if err != nil {
		return 0, false
	}
	if k != "" {
		n *= 1000
	}
	return n, true
}

func (e *Extractor) inBand(v int) bool {
	return v > e.min && v < e.max
}

// ExtractOffer parses text into a structured offer. The passes run in
// priority order: keyword-anchored amounts, then standalone amounts not
// tagged as bonus/relocation/stock/per-period, then any amount at all. The
// last pass is consulted only when the first two found nothing in band.
// Without a base salary the result is empty even if perks were mentioned.
func (e *Extractor) ExtractOffer(text string) Offer {
	seen := make(map[string]struct{})
	base := 0
	for _, pass := range [][]amount{
		amounts(anchoredRe, text, false),
		amounts(amountRe, text, true),
	} {
		for _, a := range pass {
			if _, dup := seen[a.key]; dup {
				continue
			}
			if !e.inBand(a.value) {
				continue
			}
			seen[a.key] = struct{}{}
			base = max(base, a.value)
		}
	}
	// seen only holds in-band amounts, so it is empty whenever the
	// fallback runs.
	if base == 0 {
		for _, a := range amounts(amountRe, text, false) {
			if e.inBand(a.value) {
				base = max(base, a.value)
			}
		}
	}
	if base == 0 {
		return Offer{}
	}

	offer := Offer{Base: base, Perks: e.Perks(text)}
	if bonusWordRe.MatchString(text) {
		offer.Bonus = extractBonus(text)
	}
	return offer
}

func extractBonus(text string) *Bonus {
	m := bonusAmountRe.FindStringSubmatch(text)
	if m == nil {
		return &Bonus{Mentioned: true}
	}
	v, ok := normalize(m[1], m[2])
	if !ok {
		return nil
	}
	return &Bonus{Amount: v}
}

// Perks returns the sorted, de-duplicated perk names mentioned in text.
func (e *Extractor) Perks(text string) []string {
	var perks []string
	for _, f := range e.families {
		if f.offer != nil && f.offer.MatchString(text) {
			perks = append(perks, f.name)
		}
	}
	if len(perks) == 0 {
		return nil
	}
	sort.Strings(perks)
	return slices.Compact(perks)
}

// PreferenceSink receives candidate preferences. Implementations must be
// idempotent per perk name.
type PreferenceSink interface {
	AddCandidatePreference(name string)
}

// ExtractPreferences records every perk family the candidate mentions and
// returns the names recorded.
func (e *Extractor) ExtractPreferences(text string, sink PreferenceSink) []string {
	var found []string
	for _, f := range e.families {
		if f.pref != nil && f.pref.MatchString(text) {
			sink.AddCandidatePreference(f.name)
			found = append(found, f.name)
		}
	}
	return found
}

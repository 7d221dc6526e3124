package voice

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"perio-go/internal/chart"
)

// BleedingMark is one tooth (and optionally one point) named in a bleeding utterance.
// When HasPoint is false every point the scheme collects on the tooth is meant.
type BleedingMark struct {
	Tooth    int         `json:"tooth" yaml:"tooth"`
	Point    chart.Point `json:"point,omitempty" yaml:"point,omitempty"`
	HasPoint bool        `json:"hasPoint" yaml:"hasPoint"`
}

type MobilityGrade struct {
	Tooth  int `json:"tooth" yaml:"tooth"`
	Degree int `json:"degree" yaml:"degree"`
}

// Utterance is a parsed final transcript.
type Utterance struct {
	Text     string          `json:"text" yaml:"text"`
	Mode     Mode            `json:"mode" yaml:"mode"`
	Switched bool            `json:"switched" yaml:"switched"`
	Depths   []int           `json:"depths,omitempty" yaml:"depths,omitempty,flow"`
	Marks    []BleedingMark  `json:"marks,omitempty" yaml:"marks,omitempty"`
	Grades   []MobilityGrade `json:"grades,omitempty" yaml:"grades,omitempty"`
}

func (u Utterance) Empty() bool {
	return len(u.Depths) == 0 && len(u.Marks) == 0 && len(u.Grades) == 0
}

type phrase struct {
	text  string
	value int
}

type trigger struct {
	text string
	mode Mode
}

var (
	depthSeparators = regexp.MustCompile(`[,、，。.\s]+`)
	digitRun        = regexp.MustCompile(`[0-9]+`)
	depthUnits      = []string{"mm", "ミリ", "みり"}
)

var mobilityMarks = strings.NewReplacer(
	"番", " ", "ばん", " ", "度", " ", "°", " ", "、", " ", ",", " ", "，", " ",
	"degrees", " ", "degree", " ", "grade", " ", "tooth", " ",
)

// Parser turns transcripts into typed tokens. It is safe for concurrent use once built.
type Parser struct {
	numbers  []phrase
	exact    map[string]int
	triggers []trigger
	vocab    *Vocabulary
}

func NewParser(v *Vocabulary) *Parser {
	if v == nil {
		v = DefaultVocabulary()
	}
	p := &Parser{vocab: v, exact: make(map[string]int)}
	for n, words := range v.Numbers {
		for _, w := range words {
			w = strings.ToLower(w)
			p.numbers = append(p.numbers, phrase{text: w, value: n})
			p.exact[w] = n
		}
	}
	for m, words := range v.Triggers {
		for _, w := range words {
			p.triggers = append(p.triggers, trigger{text: strings.ToLower(w), mode: m})
		}
	}
	// longest first so greedy matching prefers "じゅういち" over "じゅう"
	sort.Slice(p.numbers, func(i, j int) bool {
		if len(p.numbers[i].text) != len(p.numbers[j].text) {
			return len(p.numbers[i].text) > len(p.numbers[j].text)
		}
		return p.numbers[i].text < p.numbers[j].text
	})
	sort.Slice(p.triggers, func(i, j int) bool {
		if len(p.triggers[i].text) != len(p.triggers[j].text) {
			return len(p.triggers[i].text) > len(p.triggers[j].text)
		}
		return p.triggers[i].text < p.triggers[j].text
	})
	return p
}

// DetectMode reports the mode named by a trigger at the start of text and the text after it.
func (p *Parser) DetectMode(text string) (Mode, string, bool) {
	s := strings.TrimSpace(strings.ToLower(text))
	for _, t := range p.triggers {
		if strings.HasPrefix(s, t.text) {
			return t.mode, strings.TrimLeft(s[len(t.text):], " ,、:："), true
		}
	}
	return "", s, false
}

// Parse interprets a final transcript. A leading trigger selects the mode for this and later
// utterances; otherwise current is used.
func (p *Parser) Parse(text string, current Mode, confidence float64) Utterance {
	u := Utterance{Text: strings.TrimSpace(text), Mode: current}
	body := strings.ToLower(u.Text)
	if m, rest, ok := p.DetectMode(text); ok {
		u.Switched = m != current
		u.Mode = m
		body = rest
	}
	body = p.stripTriggers(body)

	switch u.Mode {
	case ModeBleeding:
		u.Marks = p.ParseBleeding(body)
	case ModeMobility:
		u.Grades = p.ParseMobility(body)
	default:
		u.Depths = p.ParseDepths(body, confidence)
	}
	return u
}

func (p *Parser) stripTriggers(s string) string {
	for _, t := range p.triggers {
		if isDigitsOrSpace(t.text) {
			continue
		}
		s = strings.ReplaceAll(s, t.text, " ")
	}
	return s
}

// Number reads a token as 0-15, either as digits or as a vocabulary word.
func (p *Parser) Number(token string) (int, bool) {
	token = strings.TrimSpace(strings.ToLower(token))
	if token == "" {
		return 0, false
	}
	if isDigits(token) {
		n, err := strconv.Atoi(token)
		if err != nil || n > 15 {
			return 0, false
		}
		return n, true
	}
	n, ok := p.exact[token]
	return n, ok
}

// ParseDepths extracts pocket depth values in spoken order.
func (p *Parser) ParseDepths(text string, confidence float64) []int {
	var out []int
	for _, tok := range depthSeparators.Split(strings.ToLower(text), -1) {
		tok = trimUnits(tok)
		if tok == "" {
			continue
		}
		if n, ok := p.Number(tok); ok {
			out = append(out, n)
			continue
		}
		out = append(out, p.segment(tok, confidence)...)
	}
	return out
}

// segment walks a token with no separators, pulling out digit runs and number words.
func (p *Parser) segment(tok string, confidence float64) []int {
	var out []int
	for i := 0; i < len(tok); {
		if isDigit(tok[i]) {
			j := i
			for j < len(tok) && isDigit(tok[j]) {
				j++
			}
			out = append(out, splitRun(tok[i:j], confidence)...)
			i = j
			continue
		}
		if ph, ok := p.numberAt(tok[i:]); ok {
			out = append(out, ph.value)
			i += len(ph.text)
			continue
		}
		_, size := utf8.DecodeRuneInString(tok[i:])
		i += size
	}
	return out
}

func (p *Parser) numberAt(s string) (phrase, bool) {
	for _, ph := range p.numbers {
		if strings.HasPrefix(s, ph.text) {
			return ph, true
		}
	}
	return phrase{}, false
}

// splitRun handles a digit run. Values up to 15 stand as one reading. Longer runs are taken to
// be several depths said without a pause and are split into digits. A run of one repeated digit
// is only trusted when the recognizer was confident enough.
func splitRun(run string, confidence float64) []int {
	if n, err := strconv.Atoi(run); err == nil && n <= 15 {
		return []int{n}
	}
	if repeated(run) {
		switch {
		case len(run) == 2 && confidence >= 0.60:
		case len(run) == 3 && confidence >= 0.40:
		default:
			return nil
		}
	}
	out := make([]int, 0, len(run))
	for i := 0; i < len(run); i++ {
		out = append(out, int(run[i]-'0'))
	}
	return out
}

func repeated(run string) bool {
	for i := 1; i < len(run); i++ {
		if run[i] != run[0] {
			return false
		}
	}
	return len(run) > 1
}

// ParseBleeding reads tooth numbers, each optionally followed by a surface and side.
func (p *Parser) ParseBleeding(text string) []BleedingMark {
	text = strings.ToLower(text)
	locs := digitRun.FindAllStringIndex(text, -1)
	var out []BleedingMark
	for i, loc := range locs {
		tooth, err := strconv.Atoi(text[loc[0]:loc[1]])
		if err != nil || !chart.IsValidTooth(tooth) {
			continue
		}
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		mark := BleedingMark{Tooth: tooth}
		if pt, ok := p.sitePoint(text[loc[1]:end]); ok {
			mark.Point = pt
			mark.HasPoint = true
		}
		out = append(out, mark)
	}
	return out
}

func (p *Parser) sitePoint(segment string) (chart.Point, bool) {
	surface := firstOf(segment, map[string][]string{
		"mesial": p.vocab.Surfaces.Mesial,
		"mid":    p.vocab.Surfaces.Mid,
		"distal": p.vocab.Surfaces.Distal,
	})
	side := firstOf(segment, map[string][]string{
		"buccal":  p.vocab.Sides.Buccal,
		"lingual": p.vocab.Sides.Lingual,
	})
	if surface == "" || side == "" {
		return "", false
	}
	points := map[[2]string]chart.Point{
		{"distal", "buccal"}:  chart.PointDistoBuccal,
		{"mid", "buccal"}:     chart.PointBuccal,
		{"mesial", "buccal"}:  chart.PointMesioBuccal,
		{"distal", "lingual"}: chart.PointDistoLingual,
		{"mid", "lingual"}:    chart.PointLingual,
		{"mesial", "lingual"}: chart.PointMesioLingual,
	}
	return points[[2]string{surface, side}], true
}

// firstOf returns the group whose word occurs earliest in s.
func firstOf(s string, groups map[string][]string) string {
	best, at := "", -1
	for name, words := range groups {
		for _, w := range words {
			if i := strings.Index(s, strings.ToLower(w)); i >= 0 && (at < 0 || i < at || (i == at && name < best)) {
				best, at = name, i
			}
		}
	}
	return best
}

// ParseMobility reads tooth/degree pairs. Pairs with an unknown tooth or a degree outside 0-3
// are skipped.
func (p *Parser) ParseMobility(text string) []MobilityGrade {
	tokens := strings.Fields(mobilityMarks.Replace(strings.ToLower(text)))
	var out []MobilityGrade
	for i := 0; i < len(tokens); {
		tooth, err := strconv.Atoi(tokens[i])
		if err != nil || !chart.IsValidTooth(tooth) || i+1 >= len(tokens) {
			i++
			continue
		}
		degree, ok := p.Number(tokens[i+1])
		if !ok || degree > 3 {
			i++
			continue
		}
		out = append(out, MobilityGrade{Tooth: tooth, Degree: degree})
		i += 2
	}
	return out
}

func trimUnits(tok string) string {
	for _, u := range depthUnits {
		tok = strings.TrimSuffix(tok, u)
	}
	return strings.TrimSpace(tok)
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return s != ""
}

func isDigitsOrSpace(s string) bool {
	return isDigits(strings.ReplaceAll(s, " ", ""))
}

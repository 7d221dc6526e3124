package voice

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Mode is what the dictation stream is currently entering.
type Mode string

const (
	ModeDepth    Mode = "depth"
	ModeBleeding Mode = "bleeding"
	ModeMobility Mode = "mobility"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDepth, ModeBleeding, ModeMobility:
		return Mode(s), nil
	case "ppd":
		return ModeDepth, nil
	case "bop":
		return ModeBleeding, nil
	}
	return "", fmt.Errorf("unknown voice mode %q", s)
}

// Vocabulary lists the spoken forms the parser understands.
type Vocabulary struct {
	Numbers  map[int][]string  `yaml:"numbers"`
	Triggers map[Mode][]string `yaml:"triggers"`
	Surfaces struct {
		Mesial []string `yaml:"mesial"`
		Mid    []string `yaml:"mid"`
		Distal []string `yaml:"distal"`
	} `yaml:"surfaces"`
	Sides struct {
		Buccal  []string `yaml:"buccal"`
		Lingual []string `yaml:"lingual"`
	} `yaml:"sides"`
}

// DefaultVocabulary covers English and Japanese readings of 0-15, mode names and site names.
func DefaultVocabulary() *Vocabulary {
	v := &Vocabulary{
		Numbers: map[int][]string{
			0:  {"zero", "ぜろ", "ゼロ", "零"},
			1:  {"one", "いち", "イチ", "一", "ワン"},
			2:  {"two", "に", "ニ", "二", "ツー"},
			3:  {"three", "さん", "サン", "三", "スリー"},
			4:  {"four", "よん", "ヨン", "し", "シ", "四", "フォー"},
			5:  {"five", "ご", "ゴ", "五", "ファイブ"},
			6:  {"six", "ろく", "ロク", "六", "シックス"},
			7:  {"seven", "なな", "ナナ", "しち", "シチ", "七", "セブン"},
			8:  {"eight", "はち", "ハチ", "八", "エイト"},
			9:  {"nine", "きゅう", "キュウ", "く", "ク", "九", "ナイン"},
			10: {"ten", "じゅう", "ジュウ", "十", "テン"},
			11: {"eleven", "じゅういち", "ジュウイチ", "十一", "イレブン"},
			12: {"twelve", "じゅうに", "ジュウニ", "十二", "トゥエルブ"},
			13: {"thirteen", "じゅうさん", "ジュウサン", "十三", "サーティーン"},
			14: {"fourteen", "じゅうよん", "ジュウヨン", "十四", "フォーティーン"},
			15: {"fifteen", "じゅうご", "ジュウゴ", "十五", "フィフティーン"},
		},
		Triggers: map[Mode][]string{
			ModeDepth:    {"ppd", "pocket depth", "pocket", "depth", "ポケット", "ピーピーディー", "深さ", "ふかさ"},
			ModeBleeding: {"bop", "bleeding", "bleed", "ビーオーピー", "出血あり", "出血", "しゅっけつ"},
			ModeMobility: {"mobility", "動揺度", "どうようど", "どうよう", "モビリティ"},
		},
	}
	v.Surfaces.Mesial = []string{"mesial", "mesio", "近心", "きんしん"}
	v.Surfaces.Mid = []string{"mid", "middle", "central", "中央", "ちゅうおう"}
	v.Surfaces.Distal = []string{"distal", "disto", "遠心", "えんしん"}
	v.Sides.Buccal = []string{"buccal", "頬側", "きょうそく", "ほおがわ"}
	v.Sides.Lingual = []string{"lingual", "palatal", "舌側", "ぜっそく", "したがわ", "口蓋側", "こうがいそく"}
	return v
}

// LoadVocabulary reads a YAML vocabulary. Sections left empty in the file keep the defaults.
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary file: %w", err)
	}

	var file Vocabulary
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal vocabulary YAML: %w", err)
	}

	v := DefaultVocabulary()
	for n, words := range file.Numbers {
		if n < 0 || n > 15 {
			return nil, fmt.Errorf("vocabulary number %d out of range 0-15", n)
		}
		v.Numbers[n] = words
	}
	for m, words := range file.Triggers {
		if _, err := ParseMode(string(m)); err != nil {
			return nil, err
		}
		v.Triggers[m] = words
	}
	overlay(&v.Surfaces.Mesial, file.Surfaces.Mesial)
	overlay(&v.Surfaces.Mid, file.Surfaces.Mid)
	overlay(&v.Surfaces.Distal, file.Surfaces.Distal)
	overlay(&v.Sides.Buccal, file.Sides.Buccal)
	overlay(&v.Sides.Lingual, file.Sides.Lingual)
	return v, nil
}

func overlay(dst *[]string, src []string) {
	if len(src) > 0 {
		*dst = src
	}
}

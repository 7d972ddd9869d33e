package matching

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed dictionaries.yaml
var defaultDictionaries []byte

// CompoundPhrase is a multi-word phrase scored as a unit, with its synonym row.
type CompoundPhrase struct {
	Phrase   string   `yaml:"phrase"`
	Synonyms []string `yaml:"synonyms"`
}

// BrandPair is a Latin/Cyrillic brand name pair. Matching applies the
// bidirectional closure: each side is an alias of the other.
type BrandPair struct {
	Latin    string `yaml:"latin"`
	Cyrillic string `yaml:"cyrillic"`
}

// Dictionaries holds the matching tables. They are data, not code: the
// default set is embedded, and deployments can override it with a YAML file.
type Dictionaries struct {
	StopWords         []string            `yaml:"stop_words"`
	CompoundPhrases   []CompoundPhrase    `yaml:"compound_phrases"`
	Synonyms          map[string][]string `yaml:"synonyms"`
	Brands            []BrandPair         `yaml:"brands"`
	Abbreviations     map[string][]string `yaml:"abbreviations"`
	NegativePatterns  []string            `yaml:"negative_patterns"`
	ServiceIndicators []string            `yaml:"service_indicators"`

	stopSet      map[string]struct{}
	brandAliases map[string][]string
	abbrevAlias  map[string][]string
}

// DefaultDictionaries returns the embedded table set.
func DefaultDictionaries() *Dictionaries {
	d, err := parseDictionaries(defaultDictionaries)
	if err != nil {
		// The embedded file is validated by tests; reaching here is a build defect.
		panic(fmt.Sprintf("embedded dictionaries are invalid: %v", err))
	}
	return d
}

// LoadDictionaries reads a table set from a YAML file.
func LoadDictionaries(path string) (*Dictionaries, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dictionaries: %w", err)
	}
	d, err := parseDictionaries(data)
	if err != nil {
		return nil, fmt.Errorf("parse dictionaries %s: %w", path, err)
	}
	return d, nil
}

func parseDictionaries(data []byte) (*Dictionaries, error) {
	var d Dictionaries
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	d.compile()
	return &d, nil
}

// compile lowercases all tables and builds the bidirectional alias closures.
func (d *Dictionaries) compile() {
	d.stopSet = make(map[string]struct{}, len(d.StopWords))
	for _, w := range d.StopWords {
		d.stopSet[strings.ToLower(w)] = struct{}{}
	}

	for i := range d.CompoundPhrases {
		d.CompoundPhrases[i].Phrase = strings.ToLower(d.CompoundPhrases[i].Phrase)
		for j, s := range d.CompoundPhrases[i].Synonyms {
			d.CompoundPhrases[i].Synonyms[j] = strings.ToLower(s)
		}
	}

	syn := make(map[string][]string, len(d.Synonyms))
	for key, values := range d.Synonyms {
		lowered := make([]string, len(values))
		for i, v := range values {
			lowered[i] = strings.ToLower(v)
		}
		syn[strings.ToLower(key)] = lowered
	}
	d.Synonyms = syn

	d.brandAliases = make(map[string][]string, len(d.Brands)*2)
	for _, pair := range d.Brands {
		lat := strings.ToLower(pair.Latin)
		cyr := strings.ToLower(pair.Cyrillic)
		d.brandAliases[lat] = append(d.brandAliases[lat], cyr)
		d.brandAliases[cyr] = append(d.brandAliases[cyr], lat)
	}

	d.abbrevAlias = make(map[string][]string, len(d.Abbreviations)*2)
	for acronym, expansions := range d.Abbreviations {
		a := strings.ToLower(acronym)
		for _, exp := range expansions {
			e := strings.ToLower(exp)
			d.abbrevAlias[a] = append(d.abbrevAlias[a], e)
			d.abbrevAlias[e] = append(d.abbrevAlias[e], a)
		}
	}

	for i, p := range d.NegativePatterns {
		d.NegativePatterns[i] = strings.ToLower(p)
	}
	for i, p := range d.ServiceIndicators {
		d.ServiceIndicators[i] = strings.ToLower(p)
	}
}

// IsStopWord reports whether the lowercased word is a generic procurement term.
func (d *Dictionaries) IsStopWord(word string) bool {
	_, ok := d.stopSet[word]
	return ok
}

// BrandAliases returns the opposite-script aliases for a lowercased brand key.
func (d *Dictionaries) BrandAliases(key string) []string {
	return d.brandAliases[key]
}

// AbbreviationAliases returns the counterpart forms for a lowercased acronym
// or expansion.
func (d *Dictionaries) AbbreviationAliases(key string) []string {
	return d.abbrevAlias[key]
}

// CompoundFor returns the compound phrase covering the keyword: either the
// keyword is the phrase verbatim, or the phrase is contained in the keyword.
func (d *Dictionaries) CompoundFor(keyword string) *CompoundPhrase {
	for i := range d.CompoundPhrases {
		p := &d.CompoundPhrases[i]
		if keyword == p.Phrase || strings.Contains(keyword, p.Phrase) {
			return p
		}
	}
	return nil
}

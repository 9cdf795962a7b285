package pipeline

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ExpenseType is the label an expense record is classified under.
type ExpenseType string

const (
	Container ExpenseType = "Container"
	OTG       ExpenseType = "OTG"
	Sugar     ExpenseType = "Sugar"
	Atta      ExpenseType = "Atta"
	Maida     ExpenseType = "Maida"
	Oil       ExpenseType = "Oil"
	Walnut    ExpenseType = "Walnut"
	Banana    ExpenseType = "Banana"
	Material  ExpenseType = "Material"
)

// Quantity labels of the built-in extractors.
const (
	LabelWheat = "wheat"
	LabelMix   = "mix"
)

// Rule assigns Label to a description containing any of Keywords.
type Rule struct {
	Label    ExpenseType
	Keywords []string
}

// Extractor pulls a quantity out of a description. Pattern must have one
// capture group holding a decimal integer.
type Extractor struct {
	Label   string
	Pattern *regexp.Regexp
}

// Rules is the matcher configuration shared by classification and unit
// counting. Rules are evaluated in order; the first match wins.
type Rules struct {
	Classes    []Rule
	Fallback   ExpenseType
	Extractors []Extractor
	// Presence is the token whose mere presence in an income description
	// counts one sale.
	Presence string
}

// DefaultRules returns the bakery's built-in keyword rules.
func DefaultRules() *Rules {
	return &Rules{
		Classes: []Rule{
			{Label: Container, Keywords: []string{"container", "containers", "box"}},
			{Label: OTG, Keywords: []string{"otg"}},
			{Label: Sugar, Keywords: []string{"sugar"}},
			{Label: Atta, Keywords: []string{"atta", "aata"}},
			{Label: Maida, Keywords: []string{"maida"}},
			{Label: Oil, Keywords: []string{"oil"}},
			{Label: Walnut, Keywords: []string{"walnut", "walnuts"}},
			{Label: Banana, Keywords: []string{"banana", "bananas"}},
		},
		Fallback: Material,
		Extractors: []Extractor{
			{Label: LabelWheat, Pattern: regexp.MustCompile(`wheat\s*-?\s*(\d+)\s*pc`)},
			{Label: LabelMix, Pattern: regexp.MustCompile(`mix\s*-?\s*(\d+)\s*pc`)},
		},
		Presence: "pc",
	}
}

// Classify returns the expense type for a description. Matching is a
// case-insensitive substring test.
func (r *Rules) Classify(description string) ExpenseType {
	desc := strings.ToLower(description)
	for _, rule := range r.Classes {
		for _, kw := range rule.Keywords {
			if strings.Contains(desc, kw) {
				return rule.Label
			}
		}
	}
	return r.Fallback
}

// Order returns every label Classify can produce, in priority order.
func (r *Rules) Order() []ExpenseType {
	out := make([]ExpenseType, 0, len(r.Classes)+1)
	seen := make(map[ExpenseType]bool, len(r.Classes)+1)
	for _, rule := range r.Classes {
		if !seen[rule.Label] {
			seen[rule.Label] = true
			out = append(out, rule.Label)
		}
	}
	if !seen[r.Fallback] {
		out = append(out, r.Fallback)
	}
	return out
}

type rulesFile struct {
	Fallback string `yaml:"fallback"`
	Presence string `yaml:"presence"`
	Classes  []struct {
		Label    string   `yaml:"label"`
		Keywords []string `yaml:"keywords"`
	} `yaml:"classes"`
	Extractors []struct {
		Label   string `yaml:"label"`
		Pattern string `yaml:"pattern"`
	} `yaml:"extractors"`
}

// LoadRules reads rules from a YAML file.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	rules, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	return rules, nil
}

// ParseRules decodes YAML rules. Fallback defaults to Material and Presence
// to "pc"; keywords are lower-cased.
func ParseRules(data []byte) (*Rules, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	rules := &Rules{
		Fallback: ExpenseType(strings.TrimSpace(f.Fallback)),
		Presence: strings.ToLower(strings.TrimSpace(f.Presence)),
	}
	if rules.Fallback == "" {
		rules.Fallback = Material
	}
	if rules.Presence == "" {
		rules.Presence = "pc"
	}

	for i, c := range f.Classes {
		label := strings.TrimSpace(c.Label)
		if label == "" {
			return nil, fmt.Errorf("class %d: empty label", i)
		}
		var kws []string
		for _, kw := range c.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				kws = append(kws, kw)
			}
		}
		if len(kws) == 0 {
			return nil, fmt.Errorf("class %q: no keywords", label)
		}
		rules.Classes = append(rules.Classes, Rule{Label: ExpenseType(label), Keywords: kws})
	}

	for i, e := range f.Extractors {
		label := strings.TrimSpace(e.Label)
		if label == "" {
			return nil, fmt.Errorf("extractor %d: empty label", i)
		}
		re, err := regexp.Compile(e.Pattern)
		if err != nil {
			return nil, fmt.Errorf("extractor %q: %w", label, err)
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("extractor %q: %w", label, errNoCaptureGroup)
		}
		rules.Extractors = append(rules.Extractors, Extractor{Label: label, Pattern: re})
	}

	return rules, nil
}

var errNoCaptureGroup = errors.New("pattern needs a capture group for the quantity")

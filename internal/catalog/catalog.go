// Package catalog holds the predefined intake questions. The bank is compiled
// into the binary, parsed once and never mutated afterwards; every accessor
// hands out deep copies.
package catalog

import (
	_ "embed"
	"fmt"
	"regexp"
	"sync"

	"gopkg.in/yaml.v3"

	"wellpath/internal/model"
)

//go:embed questions.yaml
var embedded []byte

var generatedID = regexp.MustCompile(`^q[0-9]+$`)

type questionDoc struct {
	ID         string   `yaml:"id"`
	Text       string   `yaml:"text"`
	Kind       string   `yaml:"kind"`
	Category   string   `yaml:"category"`
	Options    []string `yaml:"options"`
	AllowEmpty bool     `yaml:"allowEmpty"`
}

type branchDoc struct {
	Answer string `yaml:"answer"`
	Path   string `yaml:"path"`
}

type bankDoc struct {
	Version  string                   `yaml:"version"`
	Root     questionDoc              `yaml:"root"`
	Branches []branchDoc              `yaml:"branches"`
	Sets     map[string][]questionDoc `yaml:"sets"`
}

// Catalog is a validated, read-only question bank
type Catalog struct {
	version  string
	root     model.QuestionRecord
	branches map[string]model.Path
	sets     map[string][]model.QuestionRecord
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
	defaultErr  error
)

// Default returns the embedded bank, parsing it on first use
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCat, defaultErr = Load(embedded)
	})
	return defaultCat, defaultErr
}

// MustDefault is Default for process start-up
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded question bank is invalid: %v", err))
	}
	return c
}

// Load parses and validates a YAML question bank
func Load(data []byte) (*Catalog, error) {
	var doc bankDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}
	if doc.Version == "" {
		return nil, fmt.Errorf("question bank has no version")
	}

	seen := map[string]bool{}
	root, err := toRecord(doc.Root, seen)
	if err != nil {
		return nil, fmt.Errorf("root: %w", err)
	}
	if root.ID != model.RootQuestionID {
		return nil, fmt.Errorf("root question must have id %q, got %q", model.RootQuestionID, root.ID)
	}
	if root.Kind != model.KindSingleChoice {
		return nil, fmt.Errorf("root question must be singleChoice")
	}

	c := &Catalog{
		version:  doc.Version,
		root:     root,
		branches: make(map[string]model.Path, len(doc.Branches)),
		sets:     make(map[string][]model.QuestionRecord, len(doc.Sets)),
	}

	for _, b := range doc.Branches {
		path := model.Path(b.Path)
		if path != model.PathGeneralHealth && path != model.PathFeelingUnwell {
			return nil, fmt.Errorf("branch %q: unknown path %q", b.Answer, b.Path)
		}
		if !root.HasOption(b.Answer) {
			return nil, fmt.Errorf("branch %q is not a root option", b.Answer)
		}
		c.branches[b.Answer] = path
	}
	for _, opt := range root.Options {
		if _, ok := c.branches[opt]; !ok {
			return nil, fmt.Errorf("root option %q has no branch", opt)
		}
	}

	for name, qs := range doc.Sets {
		if len(qs) == 0 {
			return nil, fmt.Errorf("set %q is empty", name)
		}
		records := make([]model.QuestionRecord, 0, len(qs))
		for _, q := range qs {
			rec, err := toRecord(q, seen)
			if err != nil {
				return nil, fmt.Errorf("set %q: %w", name, err)
			}
			if generatedID.MatchString(rec.ID) {
				return nil, fmt.Errorf("set %q: id %q collides with generated ids", name, rec.ID)
			}
			records = append(records, rec)
		}
		c.sets[name] = records
	}

	for _, name := range []string{model.SetDemographics, model.SetGeneralHealth, model.SetFeelingUnwell} {
		if _, ok := c.sets[name]; !ok {
			return nil, fmt.Errorf("missing required set %q", name)
		}
	}

	return c, nil
}

func toRecord(q questionDoc, seen map[string]bool) (model.QuestionRecord, error) {
	if q.ID == "" || q.Text == "" {
		return model.QuestionRecord{}, fmt.Errorf("question needs id and text")
	}
	if seen[q.ID] {
		return model.QuestionRecord{}, fmt.Errorf("duplicate question id %q", q.ID)
	}
	seen[q.ID] = true

	kind, ok := model.ParseQuestionKind(q.Kind)
	if !ok {
		return model.QuestionRecord{}, fmt.Errorf("%s: unknown kind %q", q.ID, q.Kind)
	}
	if kind.RequiresOptions() && len(q.Options) == 0 {
		return model.QuestionRecord{}, fmt.Errorf("%s: %s requires options", q.ID, kind)
	}
	if !kind.RequiresOptions() && len(q.Options) > 0 {
		return model.QuestionRecord{}, fmt.Errorf("%s: %s takes no options", q.ID, kind)
	}
	if q.AllowEmpty && kind != model.KindMultiChoice {
		return model.QuestionRecord{}, fmt.Errorf("%s: allowEmpty is only valid for multiChoice", q.ID)
	}

	return model.QuestionRecord{
		ID:         q.ID,
		Text:       q.Text,
		Kind:       kind,
		Options:    q.Options,
		AllowEmpty: q.AllowEmpty,
		Category:   q.Category,
		Predefined: true,
	}, nil
}

// Version identifies the bank content
func (c *Catalog) Version() string {
	return c.version
}

// Root returns the branching question
func (c *Catalog) Root() model.QuestionRecord {
	return c.root.Clone()
}

// Set returns a copy of a named question set
func (c *Catalog) Set(name string) []model.QuestionRecord {
	return model.CloneQuestions(c.sets[name])
}

// SetNames lists the named sets
func (c *Catalog) SetNames() []string {
	names := make([]string, 0, len(c.sets))
	for _, n := range []string{model.SetDemographics, model.SetGeneralHealth, model.SetFeelingUnwell} {
		if _, ok := c.sets[n]; ok {
			names = append(names, n)
		}
	}
	return names
}

// Staging returns the sets a new interview is seeded with
func (c *Catalog) Staging() map[string][]model.QuestionRecord {
	return map[string][]model.QuestionRecord{
		model.SetDemographics:  c.Set(model.SetDemographics),
		model.SetGeneralHealth: c.Set(model.SetGeneralHealth),
		model.SetFeelingUnwell: c.Set(model.SetFeelingUnwell),
	}
}

// PathFor maps a root answer to its branch
func (c *Catalog) PathFor(answer string) (model.Path, bool) {
	p, ok := c.branches[answer]
	return p, ok
}

// SpliceOrder lists the staged sets appended for a path, in order
func SpliceOrder(path model.Path) []string {
	switch path {
	case model.PathGeneralHealth:
		return []string{model.SetDemographics, model.SetGeneralHealth}
	case model.PathFeelingUnwell:
		return []string{model.SetDemographics, model.SetFeelingUnwell}
	}
	return nil
}

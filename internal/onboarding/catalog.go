package onboarding

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/access"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

var ErrInvalidCatalog = errors.New("invalid step catalog")

// Step is one numbered onboarding section.
type Step struct {
	ID       int              `yaml:"id"       json:"id"`
	Key      string           `yaml:"key"      json:"key"`
	Title    string           `yaml:"title"    json:"title"`
	Stage    access.StepStage `yaml:"stage"    json:"stage"`
	Required bool             `yaml:"required" json:"required"`
}

type catalogFile struct {
	Steps []Step `yaml:"steps"`
}

// Catalog is the fixed, ordered list of steps. It is static configuration
// and is never mutated after construction.
type Catalog struct {
	steps     []Step
	firstPost int
	lastPre   int
}

// NewCatalog validates steps: ids must run 1..N in order, keys must be
// unique, and no pre-meeting step may follow a post-meeting one.
func NewCatalog(steps []Step) (*Catalog, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: no steps", ErrInvalidCatalog)
	}
	c := &Catalog{steps: make([]Step, len(steps))}
	keys := make(map[string]struct{}, len(steps))
	for i, st := range steps {
		if st.ID != i+1 {
			return nil, fmt.Errorf("%w: step %d has id %d", ErrInvalidCatalog, i+1, st.ID)
		}
		st.Key = strings.TrimSpace(st.Key)
		if st.Key == "" {
			return nil, fmt.Errorf("%w: step %d has no key", ErrInvalidCatalog, st.ID)
		}
		if _, dup := keys[st.Key]; dup {
			return nil, fmt.Errorf("%w: duplicate key %q", ErrInvalidCatalog, st.Key)
		}
		keys[st.Key] = struct{}{}

		switch st.Stage {
		case access.PreMeeting:
			if c.firstPost != 0 {
				return nil, fmt.Errorf("%w: pre-meeting step %d follows post-meeting step %d", ErrInvalidCatalog, st.ID, c.firstPost)
			}
			c.lastPre = st.ID
		case access.PostMeeting:
			if c.firstPost == 0 {
				c.firstPost = st.ID
			}
		default:
			return nil, fmt.Errorf("%w: step %d has stage %q", ErrInvalidCatalog, st.ID, st.Stage)
		}
		c.steps[i] = st
	}
	return c, nil
}

// ParseCatalog reads the YAML form: a top-level "steps" list.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	return NewCatalog(file.Steps)
}

func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// DefaultCatalog returns the built-in ten-step catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("onboarding: embedded catalog: %v", err))
	}
	return c
}

func (c *Catalog) Len() int { return len(c.steps) }

func (c *Catalog) Steps() []Step {
	return append([]Step(nil), c.steps...)
}

func (c *Catalog) Step(id int) (Step, bool) {
	if id < 1 || id > len(c.steps) {
		return Step{}, false
	}
	return c.steps[id-1], true
}

// FirstPostMeetingStep is 0 when every step is pre-meeting.
func (c *Catalog) FirstPostMeetingStep() int { return c.firstPost }

// LastPreMeetingStep is 0 when every step is post-meeting.
func (c *Catalog) LastPreMeetingStep() int { return c.lastPre }

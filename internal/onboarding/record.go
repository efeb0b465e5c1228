package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/user"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotFound       = errors.New("onboarding record not found")
	ErrUnknownSection = errors.New("unknown onboarding section")
	ErrStepLocked     = errors.New("onboarding step not available at current access level")
)

// Section is the free-form content of one step. Only top-level keys are
// interpreted; values are kept as raw JSON.
type Section map[string]json.RawMessage

// Record is the per-creator onboarding state.
type Record struct {
	UserID               user.ID
	CurrentStep          int
	CompletedSteps       []int
	IsCompleted          bool
	CompletionPercentage int
	Sections             map[int]Section
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func NewRecord(id user.ID) Record {
	return Record{
		UserID:      id,
		CurrentStep: 1,
		Sections:    make(map[int]Section),
	}
}

// Apply merges partial into the section, marks it completed and recomputes
// the derived fields. Keys in partial replace existing keys; keys absent
// from partial are kept.
func (r *Record) Apply(c *Catalog, sectionID int, partial Section) error {
	if _, ok := c.Step(sectionID); !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSection, sectionID)
	}
	if r.Sections == nil {
		r.Sections = make(map[int]Section)
	}

	existing := r.Sections[sectionID]
	merged := make(Section, len(existing)+len(partial))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range partial {
		merged[k] = append(json.RawMessage(nil), v...)
	}
	r.Sections[sectionID] = merged

	if !r.HasCompleted(sectionID) {
		r.CompletedSteps = append(r.CompletedSteps, sectionID)
		sort.Ints(r.CompletedSteps)
	}

	n := c.Len()
	r.IsCompleted = len(r.CompletedSteps) >= n
	r.CompletionPercentage = int(math.Round(100 * float64(len(r.CompletedSteps)) / float64(n)))

	if r.CurrentStep < 1 {
		r.CurrentStep = 1
	}
	if sectionID >= r.CurrentStep {
		r.CurrentStep = min(sectionID+1, n)
	}
	return nil
}

func (r *Record) HasCompleted(sectionID int) bool {
	for _, id := range r.CompletedSteps {
		if id == sectionID {
			return true
		}
	}
	return false
}

// Repository persists records. Update performs load-or-create, fn, and
// the write as one atomic unit on the user's row.
type Repository interface {
	Get(ctx context.Context, id user.ID) (Record, error)
	Update(ctx context.Context, id user.ID, fn func(*Record) error) (Record, error)
}

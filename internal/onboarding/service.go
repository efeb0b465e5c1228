package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/access"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/user"
)

var tracer = otel.Tracer("bloom/onboarding")

// LevelSource resolves a creator's current access level.
type LevelSource interface {
	Level(ctx context.Context, id user.ID) (access.Level, error)
}

type StepView struct {
	Step
	Visible   bool `json:"visible"`
	Completed bool `json:"completed"`
}

// Progress is the read model a form UI renders from.
type Progress struct {
	Record
	Level                access.Level
	Steps                []StepView
	FirstPostMeetingStep int
	LastPreMeetingStep   int
	// ShowMeetingInterstitial is set while post-meeting steps exist but
	// are still locked; the UI places it after LastPreMeetingStep.
	ShowMeetingInterstitial bool
}

type Service struct {
	repo      Repository
	catalog   *Catalog
	levels    LevelSource
	authority access.Authority
	now       func() time.Time
}

func NewService(repo Repository, catalog *Catalog, levels LevelSource, authority access.Authority) *Service {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if authority == nil {
		authority = access.Policy{}
	}
	return &Service{
		repo:      repo,
		catalog:   catalog,
		levels:    levels,
		authority: authority,
		now:       time.Now,
	}
}

func (s *Service) Catalog() *Catalog { return s.catalog }

// ApplyCompletion merges partial into a section and persists the record.
// The step must be visible at the creator's current level.
func (s *Service) ApplyCompletion(ctx context.Context, id user.ID, sectionID int, partial Section) (Record, error) {
	ctx, span := tracer.Start(ctx, "onboarding.ApplyCompletion")
	defer span.End()
	span.SetAttributes(attribute.Int("onboarding.section", sectionID))

	if err := s.ready(); err != nil {
		return Record{}, err
	}
	if strings.TrimSpace(string(id)) == "" {
		return Record{}, ErrInvalidInput
	}
	step, ok := s.catalog.Step(sectionID)
	if !ok {
		return Record{}, fmt.Errorf("%w: %d", ErrUnknownSection, sectionID)
	}

	level, err := s.levels.Level(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if !s.authority.IsStepVisible(step.Stage, level) {
		return Record{}, fmt.Errorf("%w: step %d needs more than %s", ErrStepLocked, sectionID, level)
	}

	now := s.now().UTC()
	return s.repo.Update(ctx, id, func(r *Record) error {
		if err := r.Apply(s.catalog, sectionID, partial); err != nil {
			return err
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		r.UpdatedAt = now
		return nil
	})
}

// Progress loads the record and evaluates the stage gate for every step
// against the level as it is right now.
func (s *Service) Progress(ctx context.Context, id user.ID) (Progress, error) {
	if err := s.ready(); err != nil {
		return Progress{}, err
	}
	if strings.TrimSpace(string(id)) == "" {
		return Progress{}, ErrInvalidInput
	}

	rec, err := s.repo.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		rec = NewRecord(id)
	} else if err != nil {
		return Progress{}, err
	}

	level, err := s.levels.Level(ctx, id)
	if err != nil {
		return Progress{}, err
	}

	p := Progress{
		Record:               rec,
		Level:                level,
		FirstPostMeetingStep: s.catalog.FirstPostMeetingStep(),
		LastPreMeetingStep:   s.catalog.LastPreMeetingStep(),
	}
	for _, st := range s.catalog.Steps() {
		p.Steps = append(p.Steps, StepView{
			Step:      st,
			Visible:   s.authority.IsStepVisible(st.Stage, level),
			Completed: rec.HasCompleted(st.ID),
		})
	}
	if p.FirstPostMeetingStep != 0 {
		p.ShowMeetingInterstitial = !s.authority.IsStepVisible(access.PostMeeting, level)
	}
	return p, nil
}

func (s *Service) ready() error {
	if s.repo == nil {
		return errors.New("repository is required")
	}
	if s.levels == nil {
		return errors.New("level source is required")
	}
	return nil
}

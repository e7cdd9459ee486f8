// Package learner runs the periodic preference-learning cycle: drain the
// signal log, derive a new profile through the inference collaborator, and
// commit it with a compare-and-swap write. The learning phase is recomputed
// from the total signal count on every run.
package learner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/briefly/tracker/internal/inference"
	"github.com/briefly/tracker/internal/profile"
	"github.com/briefly/tracker/internal/signallog"
	"github.com/briefly/tracker/internal/store"
)

// SignalSource yields the full signal history.
type SignalSource interface {
	Drain(ctx context.Context) ([]signallog.Signal, error)
}

// Analyzer derives a preference analysis from clicks and the current profile.
type Analyzer interface {
	AnalyzePreferences(ctx context.Context, clicks []signallog.Signal, current *profile.Profile) (*inference.Analysis, error)
}

// Report summarizes one learning cycle.
type Report struct {
	Skipped         bool     `json:"skipped"`
	ClicksAnalyzed  int      `json:"clicks_analyzed"`
	LearningPhase   int      `json:"learning_phase"`
	BoostedKeywords []string `json:"boosted_keywords"`
}

// Learner wires the signal source, the analyzer and the profile document.
type Learner struct {
	signals     SignalSource
	analyzer    Analyzer
	store       *store.Client
	profilePath string
	logger      *zap.Logger
	now         func() time.Time
}

// Option configures a Learner.
type Option func(*Learner)

// WithProfilePath overrides the profile document path.
func WithProfilePath(p string) Option {
	return func(l *Learner) { l.profilePath = p }
}

// WithLogger attaches a logger.
func WithLogger(lg *zap.Logger) Option {
	return func(l *Learner) { l.logger = lg }
}

// WithClock overrides the time source (used by tests).
func WithClock(now func() time.Time) Option {
	return func(l *Learner) { l.now = now }
}

// NewLearner creates a Learner.
func NewLearner(signals SignalSource, analyzer Analyzer, client *store.Client, opts ...Option) *Learner {
	l := &Learner{
		signals:     signals,
		analyzer:    analyzer,
		store:       client,
		profilePath: profile.DefaultPath,
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run executes one learning cycle. An empty log skips the cycle without any
// write. A parse failure from the analyzer aborts the cycle and leaves the
// profile document untouched; the next scheduled run retries against the
// accumulated history.
func (l *Learner) Run(ctx context.Context) (*Report, error) {
	clicks, err := l.signals.Drain(ctx)
	if err != nil {
		return nil, fmt.Errorf("drain signal log: %w", err)
	}
	if len(clicks) == 0 {
		l.logger.Info("no signals to analyze, skipping cycle")
		return &Report{Skipped: true}, nil
	}

	current, err := l.loadProfile(ctx)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	analysis, err := l.analyzer.AnalyzePreferences(ctx, clicks, current)
	if err != nil {
		return nil, fmt.Errorf("analyze preferences: %w", err)
	}

	phase := profile.PhaseForCount(len(clicks))
	next := buildProfile(analysis, phase, l.now().UTC())

	message := fmt.Sprintf("Update preferences via analysis (%d clicks)", len(clicks))
	err = l.store.Update(ctx, l.profilePath, message, func(body json.RawMessage, exists bool) ([]byte, error) {
		return json.MarshalIndent(next, "", "  ")
	})
	if err != nil {
		return nil, fmt.Errorf("write profile: %w", err)
	}

	l.logger.Info("profile updated",
		zap.Int("clicks_analyzed", len(clicks)),
		zap.Int("learning_phase", phase),
		zap.Int("boosted_keywords", len(next.BoostedKeywords)),
	)
	return &Report{
		ClicksAnalyzed:  len(clicks),
		LearningPhase:   phase,
		BoostedKeywords: next.BoostedKeywords,
	}, nil
}

func (l *Learner) loadProfile(ctx context.Context) (*profile.Profile, error) {
	doc, err := l.store.Read(ctx, l.profilePath)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return profile.Default(), nil
		}
		return nil, err
	}
	var p profile.Profile
	if err := json.Unmarshal(doc.Body, &p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	return &p, nil
}

// buildProfile gates the analysis output by learning phase. Phase 0 keeps
// everything at defaults; phase 1 admits boosted keywords only; phase 2 adds
// the remaining learned fields; phase 3 additionally enables serendipity
// inside [0.1, 0.2].
func buildProfile(a *inference.Analysis, phase int, now time.Time) *profile.Profile {
	next := profile.Default()
	next.LearningPhase = phase
	next.LastUpdated = now.Format(time.RFC3339)

	if phase >= 1 {
		next.BoostedKeywords = a.BoostedKeywords
	}
	if phase >= 2 {
		next.SuppressedKeywords = a.SuppressedKeywords
		next.PreferredSources = a.PreferredSources
		if dist := profile.NormalizeDistribution(a.CategoryDistribution); dist != nil {
			next.CategoryDistribution = dist
		}
	}
	if phase >= 3 {
		next.SerendipityRatio = profile.ClampSerendipity(a.SerendipityRatio)
	}
	return next
}

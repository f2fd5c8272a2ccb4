package observation

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	mcberrors "github.com/marlonsc/mcbgo/internal/errors"
	"github.com/marlonsc/mcbgo/internal/repo"
)

// ErrorPattern is a named regex classifying Error-typed observation content,
// per spec.md §9's error-pattern/matches tables.
type ErrorPattern struct {
	ID       string
	Name     string
	Regex    string
	Category string

	compiled *regexp.Regexp
}

// ErrorPatternMatcher classifies TypeError observations against a
// registered set of ErrorPatterns and records matches in
// error_pattern_matches.
type ErrorPatternMatcher struct {
	mu       sync.RWMutex
	patterns []ErrorPattern
	db       repo.Executor
}

// NewErrorPatternMatcher builds a matcher with no registered patterns.
func NewErrorPatternMatcher(db repo.Executor) *ErrorPatternMatcher {
	return &ErrorPatternMatcher{db: db}
}

// Register compiles and adds a pattern, persisting it to error_patterns. A
// malformed regex is rejected with ErrCodeInvalidRegex rather than silently
// dropped.
func (m *ErrorPatternMatcher) Register(ctx context.Context, name, pattern, category string) (ErrorPattern, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return ErrorPattern{}, mcberrors.New(mcberrors.ErrCodeInvalidRegex, "invalid error pattern regex", err)
	}

	ep := ErrorPattern{ID: uuid.NewString(), Name: name, Regex: pattern, Category: category, compiled: re}

	if _, err := m.db.Execute(ctx, `
		INSERT INTO error_patterns (id, name, regex, category) VALUES (?, ?, ?, ?)`,
		ep.ID, ep.Name, ep.Regex, nullIfEmpty(ep.Category)); err != nil {
		return ErrorPattern{}, mcberrors.New(mcberrors.ErrCodeDatabase, "failed to save error pattern", err)
	}

	m.mu.Lock()
	m.patterns = append(m.patterns, ep)
	m.mu.Unlock()
	return ep, nil
}

// Classify matches content (a TypeError observation's content) against
// every registered pattern and records each hit against observationID in
// error_pattern_matches. It returns the names of patterns that matched.
func (m *ErrorPatternMatcher) Classify(ctx context.Context, observationID, content string) ([]string, error) {
	m.mu.RLock()
	patterns := make([]ErrorPattern, len(m.patterns))
	copy(patterns, m.patterns)
	m.mu.RUnlock()

	var matched []string
	for _, p := range patterns {
		if p.compiled == nil || !p.compiled.MatchString(content) {
			continue
		}
		if _, err := m.db.Execute(ctx, `
			INSERT INTO error_pattern_matches (id, pattern_id, observation_id, matched_at)
			VALUES (?, ?, ?, ?)`,
			uuid.NewString(), p.ID, observationID, time.Now().UTC().Format(time.RFC3339)); err != nil {
			return matched, mcberrors.New(mcberrors.ErrCodeDatabase, "failed to record error pattern match", err)
		}
		matched = append(matched, p.Name)
	}
	return matched, nil
}

// ClassifyIfError runs Classify only when typ is TypeError; other
// observation types are never pattern-matched.
func (m *ErrorPatternMatcher) ClassifyIfError(ctx context.Context, typ Type, observationID, content string) ([]string, error) {
	if typ != TypeError {
		return nil, nil
	}
	return m.Classify(ctx, observationID, content)
}

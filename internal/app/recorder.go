/**
 * @description
 * This file guards the device recording session. The actual audio work
 * (codec, permissions, file I/O) belongs to the native recording SDK behind
 * the Recorder interface; this wrapper only enforces the usage quota before a
 * session starts, counts the recording when it stops, and stops an in-flight
 * recorder on teardown.
 */
package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/calorietracker/subscription-service/internal/domain"
)

var (
	// ErrRecordingInProgress is returned when Start is called while a session
	// is already active.
	ErrRecordingInProgress = errors.New("a recording session is already active")

	// ErrQuotaExhausted is returned when the monthly recording allowance for
	// the current tier is used up.
	ErrQuotaExhausted = errors.New("monthly recording limit reached")
)

// Recorder is the native audio SDK boundary.
type Recorder interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// RecordingSession serializes device recording and ties completed recordings
// to the usage counter.
type RecordingSession struct {
	recorder Recorder
	facade   *Facade
	logger   *slog.Logger

	mu     sync.Mutex
	active bool
}

// NewRecordingSession creates the session guard.
func NewRecordingSession(recorder Recorder, facade *Facade, logger *slog.Logger) *RecordingSession {
	return &RecordingSession{recorder: recorder, facade: facade, logger: logger}
}

// Start begins a recording after checking the quota. Tiers with an unlimited
// allowance always pass.
func (s *RecordingSession) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return ErrRecordingInProgress
	}
	s.active = true
	s.mu.Unlock()

	snap := s.facade.Snapshot()
	if !snap.Usage.Unlimited && snap.Usage.RecordingsRemaining <= 0 {
		s.clearActive()
		return ErrQuotaExhausted
	}

	if err := s.recorder.Start(ctx); err != nil {
		s.clearActive()
		return err
	}
	return nil
}

// Stop ends the active session and counts the recording.
func (s *RecordingSession) Stop(ctx context.Context) (domain.UsageInfo, error) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return domain.UsageInfo{}, errors.New("no recording session is active")
	}
	s.mu.Unlock()
	defer s.clearActive()

	if err := s.recorder.Stop(ctx); err != nil {
		return domain.UsageInfo{}, err
	}
	return s.facade.UpdateUsageCount(ctx, 1)
}

// Close stops an in-flight recorder on teardown. The recording is not
// counted; an interrupted session is not a completed recording.
func (s *RecordingSession) Close(ctx context.Context) {
	s.mu.Lock()
	active := s.active
	s.active = false
	s.mu.Unlock()

	if active {
		if err := s.recorder.Stop(ctx); err != nil {
			s.logger.Warn("failed to stop in-flight recorder on teardown", "error", err)
		}
	}
}

func (s *RecordingSession) clearActive() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

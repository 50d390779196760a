package services

import (
	"context"
	"sync"

	"snapLinkAPI/internal/types/notification"
)

type stubPrefs struct {
	mu     sync.Mutex
	prefs  map[string]*notification.StreakPrefs
	errFor map[string]error
}

func newStubPrefs() *stubPrefs {
	return &stubPrefs{
		prefs:  make(map[string]*notification.StreakPrefs),
		errFor: make(map[string]error),
	}
}

func (s *stubPrefs) allow(userID, name, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[userID] = &notification.StreakPrefs{
		DisplayName:    name,
		PushToken:      &token,
		PushEnabled:    true,
		StreakWarnings: true,
	}
}

func (s *stubPrefs) set(userID string, p *notification.StreakPrefs) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[userID] = p
}

func (s *stubPrefs) fail(userID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errFor[userID] = err
}

func (s *stubPrefs) GetStreakPrefs(ctx context.Context, userID string) (*notification.StreakPrefs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.errFor[userID]; ok {
		return nil, err
	}
	if p, ok := s.prefs[userID]; ok {
		return p, nil
	}
	return &notification.StreakPrefs{DisplayName: userID}, nil
}

type recordingPusher struct {
	mu   sync.Mutex
	jobs []*PushJob
}

func (p *recordingPusher) EnqueuePush(job *PushJob) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, job)
}

func (p *recordingPusher) sent() []*PushJob {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*PushJob(nil), p.jobs...)
}

func (p *recordingPusher) sentTo(userID string) []*PushJob {
	var out []*PushJob
	for _, job := range p.sent() {
		if job.UserID == userID {
			out = append(out, job)
		}
	}
	return out
}

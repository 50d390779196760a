package services

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"snapLinkAPI/internal/types/notification"
)

// PushProvider is what the dispatcher needs from FCM (or a test fake).
type PushProvider interface {
	SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]any) error
}

// PushJob is one notification for one recipient. Jobs are processed by
// a small worker pool so push latency never sits on the transaction
// paths that produce them.
type PushJob struct {
	UserID string
	Token  string
	Type   notification.NotificationType
	Title  string
	Body   string
	Data   map[string]any
}

// NotificationService records in-app notifications and fans pushes out
// through the injected provider. Every failure here is logged and
// dropped: notification delivery is never allowed to error a caller.
type NotificationService struct {
	db           *pgxpool.Pool
	pushProvider PushProvider
	jobQueue     chan *PushJob
	stopChan     chan struct{}
	wg           sync.WaitGroup
	workers      int
}

func NewNotificationService(db *pgxpool.Pool) *NotificationService {
	s := &NotificationService{
		db:       db,
		workers:  5,
		jobQueue: make(chan *PushJob, 100),
		stopChan: make(chan struct{}),
	}
	s.startWorkers()
	return s
}

// SetPushProvider injects the real FCM provider from main.go.
func (s *NotificationService) SetPushProvider(provider PushProvider) {
	s.pushProvider = provider
}

func (s *NotificationService) startWorkers() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
}

func (s *NotificationService) worker() {
	defer s.wg.Done()
	for {
		select {
		case job := <-s.jobQueue:
			s.processJob(job)
		case <-s.stopChan:
			return
		}
	}
}

func (s *NotificationService) processJob(job *PushJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.recordNotification(ctx, job)

	if s.pushProvider == nil || job.Token == "" {
		return
	}

	tokens := []notification.DeviceToken{{Token: job.Token}}
	if err := s.pushProvider.SendPush(ctx, tokens, job.Title, job.Body, job.Data); err != nil {
		log.Printf("Push failed for user %s: %v", job.UserID, err)
	}
}

// recordNotification persists the in-app copy. Skipped when the
// service runs without a database (tests).
func (s *NotificationService) recordNotification(ctx context.Context, job *PushJob) {
	if s.db == nil {
		return
	}

	data, err := json.Marshal(job.Data)
	if err != nil {
		data = []byte("{}")
	}

	query := `
		INSERT INTO notifications (id, user_id, type, title, body, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`

	if _, err := s.db.Exec(ctx, query, uuid.New(), job.UserID, job.Type, job.Title, job.Body, data); err != nil {
		log.Printf("Failed to record notification for user %s: %v", job.UserID, err)
	}
}

// EnqueuePush adds a job to the queue. It never blocks a caller for
// long and never returns an error; a full queue drops the job with a
// log line.
func (s *NotificationService) EnqueuePush(job *PushJob) {
	select {
	case s.jobQueue <- job:
	case <-time.After(5 * time.Second):
		log.Printf("Failed to queue %s notification for user %s: queue full", job.Type, job.UserID)
	}
}

// Stop drains the worker pool gracefully.
func (s *NotificationService) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}

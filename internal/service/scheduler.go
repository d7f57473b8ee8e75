package service

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"pulse/config"
	"pulse/internal/domain"
	"pulse/internal/models"

	"go.uber.org/zap"
)

// ScheduledStore persists scheduled message entries.
type ScheduledStore interface {
	Create(ctx context.Context, m *models.ScheduledMessage) error
	GetByID(ctx context.Context, id string) (*models.ScheduledMessage, error)
	ListPending(ctx context.Context) ([]models.ScheduledMessage, error)
	ListPendingByChat(ctx context.Context, chatID, senderID string) ([]models.ScheduledMessage, error)
	Transition(ctx context.Context, id, status string) error
	Deliver(ctx context.Context, id string) (*models.Message, error)
}

type ChatDirectory interface {
	GetByID(ctx context.Context, id string) (*models.Chat, error)
}

// Fanout publishes delivered messages to connected users.
type Fanout interface {
	PublishToChat(chatID string, participants []string, event string, payload interface{}) int
	PublishToUser(userID, event string, payload interface{}) bool
}

type scheduledSentPayload struct {
	ScheduledID string          `json:"scheduledId"`
	Message     *models.Message `json:"message"`
}

// Scheduler fires scheduled messages at their time. Armed entries sit in one
// time-ordered heap drained by a single dispatcher goroutine. Cancel disarms
// the entry and fire re-checks the persisted status, so a cancelled entry
// never becomes sent.
type Scheduler struct {
	store  ScheduledStore
	chats  ChatDirectory
	fanout Fanout
	cfg    config.SchedulerConfig
	log    *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	queue jobQueue
	jobs  map[string]*job

	wake      chan struct{}
	stop      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

func NewScheduler(store ScheduledStore, chats ChatDirectory, fanout Fanout, cfg config.SchedulerConfig, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.FireTimeout <= 0 {
		cfg.FireTimeout = 15 * time.Second
	}
	if cfg.CatchUp == "" {
		cfg.CatchUp = config.CatchUpNone
	}
	return &Scheduler{
		store:  store,
		chats:  chats,
		fanout: fanout,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
		jobs:   make(map[string]*job),
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
}

// Start launches the dispatcher.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.run()
	})
}

// Stop halts the dispatcher and waits for in-flight fires. Armed entries stay
// pending in the store and are re-armed by Recover on the next start.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
	})
}

// Schedule arms entry to fire at its scheduled time.
func (s *Scheduler) Schedule(entry *models.ScheduledMessage) error {
	if !entry.ScheduledTime.After(s.now()) {
		return domain.ErrScheduleInPast
	}
	s.arm(entry.ID, entry.ScheduledTime)
	return nil
}

// Cancel marks the entry cancelled and then disarms it, so a failed write
// leaves the entry armed. It returns domain.ErrNotPending when the entry
// already left pending.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	if err := s.store.Transition(ctx, id, domain.ScheduledCancelled); err != nil {
		return err
	}
	// A fire that pops the job before this point sees the cancelled status and skips.
	disarmed := s.disarm(id)
	s.log.Info("scheduled message cancelled", zap.String("id", id), zap.Bool("disarmed", disarmed))
	return nil
}

// ScheduleMessage validates and persists a pending entry for senderID, then arms it.
func (s *Scheduler) ScheduleMessage(ctx context.Context, senderID, chatID, content string, at time.Time) (*models.ScheduledMessage, error) {
	if senderID == "" || chatID == "" || strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("chat and content are required: %w", domain.ErrInvalidArgument)
	}
	if !at.After(s.now()) {
		return nil, domain.ErrScheduleInPast
	}
	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !isParticipant(chat, senderID) {
		return nil, domain.ErrForbidden
	}
	entry := &models.ScheduledMessage{
		SenderID:      senderID,
		ChatID:        chatID,
		Content:       content,
		ScheduledTime: at,
		Status:        domain.ScheduledPending,
	}
	if err := s.store.Create(ctx, entry); err != nil {
		return nil, err
	}
	s.arm(entry.ID, entry.ScheduledTime)
	s.log.Info("scheduled message armed", zap.String("id", entry.ID), zap.String("chat", chatID), zap.Time("at", at))
	return entry, nil
}

// CancelMessage cancels an entry on behalf of userID, who must be its sender.
func (s *Scheduler) CancelMessage(ctx context.Context, userID, id string) (*models.ScheduledMessage, error) {
	entry, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.SenderID != userID {
		return nil, domain.ErrForbidden
	}
	if !entry.IsPending() {
		return nil, fmt.Errorf("scheduled message %s is %s: %w", id, entry.Status, domain.ErrNotPending)
	}
	if err := s.Cancel(ctx, id); err != nil {
		return nil, err
	}
	entry.Status = domain.ScheduledCancelled
	return entry, nil
}

// ListPending returns userID's pending entries for chatID.
func (s *Scheduler) ListPending(ctx context.Context, userID, chatID string) ([]models.ScheduledMessage, error) {
	return s.store.ListPendingByChat(ctx, chatID, userID)
}

// Recover re-arms every pending entry with a future time. Overdue entries are
// handled by the configured catch-up policy. It returns the number armed.
func (s *Scheduler) Recover(ctx context.Context) (int, error) {
	pending, err := s.store.ListPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("recover scheduled messages: %w", err)
	}
	now := s.now()
	armed, overdue := 0, 0
	for i := range pending {
		entry := &pending[i]
		if entry.ScheduledTime.After(now) {
			s.arm(entry.ID, entry.ScheduledTime)
			armed++
			continue
		}
		overdue++
		switch s.cfg.CatchUp {
		case config.CatchUpFire:
			s.arm(entry.ID, now)
			armed++
		case config.CatchUpFail:
			if err := s.store.Transition(ctx, entry.ID, domain.ScheduledFailed); err != nil && !errors.Is(err, domain.ErrNotPending) {
				s.log.Warn("fail overdue scheduled message", zap.String("id", entry.ID), zap.Error(err))
			}
		}
	}
	s.log.Info("scheduled messages recovered", zap.Int("armed", armed), zap.Int("overdue", overdue), zap.String("catch_up", s.cfg.CatchUp))
	return armed, nil
}

// Armed reports whether id is waiting in the queue.
func (s *Scheduler) Armed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[id]
	return ok
}

func (s *Scheduler) ArmedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *Scheduler) arm(id string, at time.Time) {
	s.mu.Lock()
	if j, ok := s.jobs[id]; ok {
		j.at = at
		heap.Fix(&s.queue, j.index)
	} else {
		j = &job{id: id, at: at}
		heap.Push(&s.queue, j)
		s.jobs[id] = j
	}
	s.mu.Unlock()
	s.poke()
}

func (s *Scheduler) disarm(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return false
	}
	heap.Remove(&s.queue, j.index)
	delete(s.jobs, id)
	return true
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// run pops due jobs and fires each on its own goroutine, then sleeps until the
// next fire time or until the queue head changes.
func (s *Scheduler) run() {
	defer s.wg.Done()
	for {
		due, wait := s.popDue()
		for _, id := range due {
			s.wg.Add(1)
			go s.fire(id)
		}

		var timer *time.Timer
		var fireC <-chan time.Time
		if wait >= 0 {
			timer = time.NewTimer(wait)
			fireC = timer.C
		}
		select {
		case <-fireC:
		case <-s.wake:
		case <-s.stop:
			if timer != nil {
				timer.Stop()
			}
			return
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

func (s *Scheduler) popDue() ([]string, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var due []string
	for s.queue.Len() > 0 && !s.queue[0].at.After(now) {
		j := heap.Pop(&s.queue).(*job)
		delete(s.jobs, j.id)
		due = append(due, j.id)
	}
	if s.queue.Len() == 0 {
		return due, -1
	}
	return due, s.queue[0].at.Sub(now)
}

func (s *Scheduler) fire(id string) {
	defer s.wg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FireTimeout)
	defer cancel()
	log := s.log.With(zap.String("id", id))

	entry, err := s.store.GetByID(ctx, id)
	if err != nil {
		log.Warn("load scheduled message", zap.Error(err))
		if !errors.Is(err, domain.ErrNotFound) {
			s.markFailed(id)
		}
		return
	}
	if !entry.IsPending() {
		log.Debug("skip fire", zap.String("status", entry.Status))
		return
	}
	msg, err := s.store.Deliver(ctx, id)
	if errors.Is(err, domain.ErrNotPending) {
		log.Info("scheduled message left pending before fire")
		return
	}
	if err != nil {
		log.Warn("deliver scheduled message", zap.Error(err))
		s.markFailed(id)
		return
	}

	var participants []string
	if chat, err := s.chats.GetByID(ctx, msg.ChatID); err != nil {
		log.Warn("load chat for fan-out", zap.String("chat", msg.ChatID), zap.Error(err))
	} else {
		participants = chat.ParticipantIDs()
	}
	n := s.fanout.PublishToChat(msg.ChatID, participants, domain.EventNewMessage, msg)
	s.fanout.PublishToUser(entry.SenderID, domain.EventScheduledMessageSent, scheduledSentPayload{ScheduledID: id, Message: msg})
	log.Info("scheduled message sent", zap.String("message", msg.ID), zap.Int("delivered", n))
}

func (s *Scheduler) markFailed(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FireTimeout)
	defer cancel()
	if err := s.store.Transition(ctx, id, domain.ScheduledFailed); err != nil && !errors.Is(err, domain.ErrNotPending) {
		s.log.Warn("mark scheduled message failed", zap.String("id", id), zap.Error(err))
	}
}

func isParticipant(chat *models.Chat, userID string) bool {
	for _, id := range chat.ParticipantIDs() {
		if id == userID {
			return true
		}
	}
	return false
}

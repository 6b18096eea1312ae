package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studsched/notifier_bot/internal/model"
)

// Виртуальные часы: время двигается только через advanceTo.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return !t.fired
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) TimerHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{at: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

// advanceTo сдвигает время и синхронно запускает созревшие таймеры.
func (c *fakeClock) advanceTo(to time.Time) {
	c.mu.Lock()
	c.now = to
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(to) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
}

type fakeLedger struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]*model.ScheduledNotification
	byKey map[string]uuid.UUID
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		byID:  make(map[uuid.UUID]*model.ScheduledNotification),
		byKey: make(map[string]uuid.UUID),
	}
}

func (l *fakeLedger) put(n model.ScheduledNotification) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byID[n.ID] = &n
	l.byKey[n.NotificationKey] = n.ID
}

func (l *fakeLedger) get(id uuid.UUID) model.ScheduledNotification {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.byID[id]
}

func (l *fakeLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byID)
}

func (l *fakeLedger) InsertIfAbsent(_ context.Context, n *model.ScheduledNotification) (bool, *model.ScheduledNotification, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if id, ok := l.byKey[n.NotificationKey]; ok {
		existing := *l.byID[id]
		return false, &existing, nil
	}

	stored := *n
	stored.CreatedAt = time.Now()
	l.byID[stored.ID] = &stored
	l.byKey[stored.NotificationKey] = stored.ID
	return true, nil, nil
}

func (l *fakeLedger) GetByID(_ context.Context, id uuid.UUID) (*model.ScheduledNotification, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, ok := l.byID[id]
	if !ok {
		return nil, nil
	}
	copied := *n
	return &copied, nil
}

func (l *fakeLedger) GetByKey(_ context.Context, key string) (*model.ScheduledNotification, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id, ok := l.byKey[key]
	if !ok {
		return nil, nil
	}
	copied := *l.byID[id]
	return &copied, nil
}

func (l *fakeLedger) UpdateStatus(_ context.Context, id uuid.UUID, from, to model.NotificationStatus, patch model.StatusPatch) (bool, error) {
	if !model.CanTransition(from, to) {
		return false, fmt.Errorf("illegal status transition %s -> %s", from, to)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	n, ok := l.byID[id]
	if !ok || n.Status != from {
		return false, nil
	}

	n.Status = to
	if patch.ErrorMessage != nil {
		n.ErrorMessage = patch.ErrorMessage
	}
	if patch.SentAt != nil {
		n.SentAt = patch.SentAt
	}
	return true, nil
}

func (l *fakeLedger) MarkAttempt(_ context.Context, id uuid.UUID, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, ok := l.byID[id]
	if !ok {
		return fmt.Errorf("not found")
	}
	n.Attempts++
	attempt := at
	n.LastAttemptAt = &attempt
	return nil
}

func (l *fakeLedger) ScanRetryable(_ context.Context, date time.Time, maxAttempts int) ([]model.ScheduledNotification, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var result []model.ScheduledNotification
	for _, n := range l.byID {
		if n.Status == model.NotificationStatusFailed && n.Attempts < maxAttempts && n.Date.Equal(date) {
			result = append(result, *n)
		}
	}
	return result, nil
}

func (l *fakeLedger) ListPendingByUser(_ context.Context, telegramID int64) ([]model.ScheduledNotification, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var result []model.ScheduledNotification
	for _, n := range l.byID {
		if n.TelegramID == telegramID && n.Status == model.NotificationStatusPending {
			result = append(result, *n)
		}
	}
	return result, nil
}

func (l *fakeLedger) DeleteOlderThan(_ context.Context, before time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var deleted int64
	for id, n := range l.byID {
		if n.Date.Before(before) {
			delete(l.byID, id)
			delete(l.byKey, n.NotificationKey)
			deleted++
		}
	}
	return deleted, nil
}

func (l *fakeLedger) Stats(_ context.Context, date time.Time) (*model.NotificationStats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := &model.NotificationStats{Date: date.Format("2006-01-02")}
	for _, n := range l.byID {
		if !n.Date.Equal(date) {
			continue
		}
		stats.Total++
		switch n.Status {
		case model.NotificationStatusPending:
			stats.Pending++
		case model.NotificationStatusSent:
			stats.Sent++
		case model.NotificationStatusFailed:
			stats.Failed++
		case model.NotificationStatusCancelled:
			stats.Cancelled++
		}
	}
	return stats, nil
}

type fakeUsers struct {
	mu    sync.Mutex
	users []model.User
}

func (f *fakeUsers) GetByTelegramID(_ context.Context, telegramID int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.users {
		if f.users[i].TelegramID == telegramID {
			u := f.users[i]
			return &u, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) StreamEnabled(_ context.Context, chunkSize int, fn func([]model.User) error) error {
	f.mu.Lock()
	var enabled []model.User
	for _, u := range f.users {
		if u.NotificationsEnabled && u.GroupID != nil {
			enabled = append(enabled, u)
		}
	}
	f.mu.Unlock()

	for start := 0; start < len(enabled); start += chunkSize {
		end := start + chunkSize
		if end > len(enabled) {
			end = len(enabled)
		}
		if err := fn(enabled[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeUsers) ResetDailyTaskCounters(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var reset int64
	for i := range f.users {
		if f.users[i].DailyTasksSolved != 0 {
			f.users[i].DailyTasksSolved = 0
			reset++
		}
	}
	return reset, nil
}

type fakeTimetable struct {
	weeks      map[string][]model.ClassEvent // ключ "группа/чётность"
	failGroups map[string]bool
}

func newFakeTimetable() *fakeTimetable {
	return &fakeTimetable{
		weeks:      make(map[string][]model.ClassEvent),
		failGroups: make(map[string]bool),
	}
}

func (f *fakeTimetable) set(groupID string, weekParity int, classes []model.ClassEvent) {
	f.weeks[fmt.Sprintf("%s/%d", groupID, weekParity)] = classes
}

func (f *fakeTimetable) ClassesFor(_ context.Context, groupID string, weekParity int, dayOfWeek string) ([]model.ClassEvent, error) {
	if f.failGroups[groupID] {
		return nil, fmt.Errorf("timetable cache unavailable")
	}
	var classes []model.ClassEvent
	for _, class := range f.weeks[fmt.Sprintf("%s/%d", groupID, weekParity)] {
		if class.DayOfWeek == dayOfWeek {
			classes = append(classes, class)
		}
	}
	return classes, nil
}

type sentMessage struct {
	chatID int64
	text   string
}

type fakeMessenger struct {
	mu       sync.Mutex
	failures int // сколько ближайших вызовов вернут ошибку
	sent     []sentMessage
}

func (f *fakeMessenger) SendMessage(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failures > 0 {
		f.failures--
		return fmt.Errorf("telegram: 502 bad gateway")
	}

	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

func (f *fakeMessenger) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeHistory struct {
	mu      sync.Mutex
	items   []model.NotificationHistoryItem
	failErr error
}

func (f *fakeHistory) Append(_ context.Context, item *model.NotificationHistoryItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failErr != nil {
		return f.failErr
	}
	item.ID = int64(len(f.items) + 1)
	f.items = append(f.items, *item)
	return nil
}

func (f *fakeHistory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

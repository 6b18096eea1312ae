package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/studsched/notifier_bot/internal/model"
	"github.com/studsched/notifier_bot/internal/timeutil"
)

// Насколько далеко в прошлое уведомление ещё считается актуальным.
const lateTolerance = time.Minute

// Пауза между чанками, чтобы не монополизировать пул соединений.
const chunkPause = 10 * time.Millisecond

// PlannerConfig настройки планировщика уведомлений.
type PlannerConfig struct {
	ChunkSize          int
	DefaultLeadMinutes int
	MaxAttempts        int
	RetryIntervals     []int // минуты паузы перед повторными попытками
	RetentionDays      int
}

// PlanReport итоги прохода планировщика.
type PlanReport struct {
	Users     int `json:"users"`
	Created   int `json:"created"`
	Scheduled int `json:"scheduled"`
}

// PlannerService планирует уведомления: ежедневный обход всех пользователей,
// перепланирование одного пользователя, retry- и cleanup-циклы.
type PlannerService struct {
	users     UserDirectory
	timetable TimetableReader
	ledger    Ledger
	delivery  *DeliveryService
	timers    *TimerTable
	clock     Clock
	loc       *time.Location
	cfg       PlannerConfig
	logger    *zap.Logger
}

func NewPlannerService(
	users UserDirectory,
	timetable TimetableReader,
	ledger Ledger,
	delivery *DeliveryService,
	timers *TimerTable,
	clock Clock,
	loc *time.Location,
	cfg PlannerConfig,
	logger *zap.Logger,
) *PlannerService {
	return &PlannerService{
		users:     users,
		timetable: timetable,
		ledger:    ledger,
		delivery:  delivery,
		timers:    timers,
		clock:     clock,
		loc:       loc,
		cfg:       cfg,
		logger:    logger,
	}
}

// PlanAllUsers ежедневный обход: для каждого пользователя с включёнными
// уведомлениями планирует сегодняшние пары. Пользователи обрабатываются
// чанками по ChunkSize, внутри чанка - параллельно. Ошибка одного
// пользователя не прерывает обход.
func (s *PlannerService) PlanAllUsers(ctx context.Context) (PlanReport, error) {
	now := s.clock.Now().In(s.loc)

	var mu sync.Mutex
	var report PlanReport

	err := s.users.StreamEnabled(ctx, s.cfg.ChunkSize, func(chunk []model.User) error {
		g, gctx := errgroup.WithContext(ctx)
		for _, user := range chunk {
			user := user
			g.Go(func() error {
				created, scheduled, err := s.planUser(gctx, &user, now)
				if err != nil {
					s.logger.Error("Failed to plan user notifications",
						zap.Int64("telegram_id", user.TelegramID), zap.Error(err))
					return nil // продолжаем со следующим пользователем
				}

				mu.Lock()
				report.Users++
				report.Created += created
				report.Scheduled += scheduled
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		// Передышка между чанками
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(chunkPause):
		}
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("plan all users: %w", err)
	}

	return report, nil
}

// ScheduleUserNotifications перепланирует одного пользователя. Зовётся,
// когда пользователь включил уведомления, сменил группу или упреждение.
// Идемпотентна: повторный вызов ничего не дублирует благодаря ключу журнала.
func (s *PlannerService) ScheduleUserNotifications(ctx context.Context, telegramID int64) (PlanReport, error) {
	user, err := s.users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return PlanReport{}, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return PlanReport{}, fmt.Errorf("user %d not found", telegramID)
	}

	now := s.clock.Now().In(s.loc)
	created, scheduled, err := s.planUser(ctx, user, now)
	if err != nil {
		return PlanReport{}, err
	}

	return PlanReport{Users: 1, Created: created, Scheduled: scheduled}, nil
}

// planUser планирует сегодняшние пары одного пользователя.
func (s *PlannerService) planUser(ctx context.Context, user *model.User, now time.Time) (created, scheduled int, err error) {
	if !user.NotificationsEnabled || user.GroupID == nil {
		return 0, 0, nil
	}

	groupID := *user.GroupID
	classes, err := s.timetable.ClassesFor(ctx, groupID, timeutil.WeekParity(now), timeutil.WeekdayName(now.Weekday()))
	if err != nil {
		return 0, 0, fmt.Errorf("read timetable: %w", err)
	}

	lead := user.NotificationTime
	if lead <= 0 {
		lead = s.cfg.DefaultLeadMinutes
	}

	for _, class := range classes {
		classStart, err := timeutil.ClassStart(now, class.Time, s.loc)
		if err != nil {
			s.logger.Debug("Skipping class with malformed time",
				zap.Int64("telegram_id", user.TelegramID),
				zap.String("time", class.Time))
			continue
		}

		notifyAt := classStart.Add(-time.Duration(lead) * time.Minute)
		key := model.NotificationKey(user.TelegramID, class.Discipline, classStart.Format("15:04"), now)

		// Просроченный момент блокирует только создание новой записи.
		// Уже существующую pending-запись всё равно перевзводим: после
		// рестарта процесса поздняя доставка лучше тихой потери.
		if notifyAt.Before(now.Add(-lateTolerance)) {
			existing, err := s.ledger.GetByKey(ctx, key)
			if err != nil {
				return created, scheduled, fmt.Errorf("get ledger entry: %w", err)
			}
			if existing == nil || existing.Status != model.NotificationStatusPending {
				continue
			}
			if s.timers.Arm(existing.ID, existing.ScheduledTime, s.deliverAction(existing.ID)) {
				scheduled++
			}
			continue
		}

		entry := &model.ScheduledNotification{
			ID:                      uuid.New(),
			NotificationKey:         key,
			TelegramID:              user.TelegramID,
			GroupID:                 groupID,
			Date:                    timeutil.DateOnly(now),
			ClassInfo:               class,
			ScheduledTime:           notifyAt.UTC(),
			NotificationTimeMinutes: lead,
			Status:                  model.NotificationStatusPending,
		}

		wasCreated, existing, err := s.ledger.InsertIfAbsent(ctx, entry)
		if err != nil {
			return created, scheduled, fmt.Errorf("insert ledger entry: %w", err)
		}

		target := entry
		if wasCreated {
			created++
		} else {
			// Уже запланировано. Перевзводим таймер только для живой записи -
			// так после рестарта процесса восстанавливаются будущие отправки.
			if existing == nil || existing.Status != model.NotificationStatusPending {
				continue
			}
			target = existing
		}

		if s.timers.Arm(target.ID, target.ScheduledTime, s.deliverAction(target.ID)) {
			scheduled++
		}
	}

	return created, scheduled, nil
}

// deliverAction действие таймера: доставка с фоновым контекстом,
// т.к. к моменту срабатывания контекст планирования уже завершён.
func (s *PlannerService) deliverAction(id uuid.UUID) func() {
	return func() {
		s.delivery.Deliver(context.Background(), id)
	}
}

// RetryFailed каждые 2 минуты возвращает неудачные записи за сегодня в
// pending и доставляет их заново - с нарастающей паузой и потолком попыток.
func (s *PlannerService) RetryFailed(ctx context.Context) (int, error) {
	now := s.clock.Now().In(s.loc)

	entries, err := s.ledger.ScanRetryable(ctx, timeutil.DateOnly(now), s.cfg.MaxAttempts)
	if err != nil {
		return 0, fmt.Errorf("scan retryable: %w", err)
	}

	retried := 0
	for _, entry := range entries {
		if !s.coolDownElapsed(&entry, now) {
			continue
		}

		applied, err := s.ledger.UpdateStatus(ctx, entry.ID, model.NotificationStatusFailed, model.NotificationStatusPending, model.StatusPatch{})
		if err != nil {
			s.logger.Error("Failed to reset notification for retry",
				zap.String("id", entry.ID.String()), zap.Error(err))
			continue
		}
		if !applied {
			continue // кто-то успел раньше
		}

		// Доставляем сразу, без нового таймера
		s.delivery.Deliver(ctx, entry.ID)
		retried++
	}

	return retried, nil
}

// Пауза перед повтором, когда список интервалов не задан.
const fallbackRetryCoolDown = time.Minute

// coolDownElapsed проверяет, прошла ли пауза перед очередной попыткой.
// Индекс в лестнице интервалов - число уже сделанных попыток доставки:
// после первой неудачной попытки (attempts == 1) действует второй интервал,
// первый достаётся только записям без единой попытки.
func (s *PlannerService) coolDownElapsed(entry *model.ScheduledNotification, now time.Time) bool {
	if entry.LastAttemptAt == nil {
		return true // ни одной попытки не было (например, сбой взведения таймера)
	}

	coolDown := fallbackRetryCoolDown
	if len(s.cfg.RetryIntervals) > 0 {
		idx := entry.Attempts
		if idx > len(s.cfg.RetryIntervals)-1 {
			idx = len(s.cfg.RetryIntervals) - 1
		}
		coolDown = time.Duration(s.cfg.RetryIntervals[idx]) * time.Minute
	}

	return now.Sub(*entry.LastAttemptAt) >= coolDown
}

// CancelNotification условно отменяет ожидающую запись и снимает её таймер.
// Если доставка уже началась (статус не pending) - эффекта нет.
func (s *PlannerService) CancelNotification(ctx context.Context, id uuid.UUID) (bool, error) {
	applied, err := s.ledger.UpdateStatus(ctx, id, model.NotificationStatusPending, model.NotificationStatusCancelled, model.StatusPatch{})
	if err != nil {
		return false, fmt.Errorf("cancel notification: %w", err)
	}

	if applied {
		s.timers.Cancel(id)
	}
	return applied, nil
}

// CancelUserPending отменяет все ожидающие уведомления пользователя.
// Используется при отключении уведомлений.
func (s *PlannerService) CancelUserPending(ctx context.Context, telegramID int64) (int, error) {
	entries, err := s.ledger.ListPendingByUser(ctx, telegramID)
	if err != nil {
		return 0, fmt.Errorf("list pending: %w", err)
	}

	cancelled := 0
	for _, entry := range entries {
		applied, err := s.CancelNotification(ctx, entry.ID)
		if err != nil {
			s.logger.Error("Failed to cancel notification",
				zap.String("id", entry.ID.String()), zap.Error(err))
			continue
		}
		if applied {
			cancelled++
		}
	}

	return cancelled, nil
}

// CleanupOld удаляет записи журнала старше окна хранения.
func (s *PlannerService) CleanupOld(ctx context.Context) (int64, error) {
	now := s.clock.Now().In(s.loc)
	cutoff := timeutil.DateOnly(now).AddDate(0, 0, -s.cfg.RetentionDays)

	deleted, err := s.ledger.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup old notifications: %w", err)
	}

	return deleted, nil
}

// GetNotificationStats статистика журнала за дату (по умолчанию - сегодня).
func (s *PlannerService) GetNotificationStats(ctx context.Context, date *time.Time) (*model.NotificationStats, error) {
	d := timeutil.DateOnly(s.clock.Now().In(s.loc))
	if date != nil {
		d = timeutil.DateOnly(*date)
	}

	return s.ledger.Stats(ctx, d)
}

// TodayClasses возвращает сегодняшние пары пользователя для команды /today.
func (s *PlannerService) TodayClasses(ctx context.Context, telegramID int64) ([]model.ClassEvent, error) {
	user, err := s.users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil || user.GroupID == nil {
		return nil, nil
	}

	now := s.clock.Now().In(s.loc)
	return s.timetable.ClassesFor(ctx, *user.GroupID, timeutil.WeekParity(now), timeutil.WeekdayName(now.Weekday()))
}

// ResetDailyTaskCounters обнуляет дневные счётчики задач (полночный джоб).
func (s *PlannerService) ResetDailyTaskCounters(ctx context.Context) (int64, error) {
	return s.users.ResetDailyTaskCounters(ctx)
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/studsched/notifier_bot/internal/model"
)

type testEnv struct {
	clock     *fakeClock
	ledger    *fakeLedger
	users     *fakeUsers
	timetable *fakeTimetable
	messenger *fakeMessenger
	history   *fakeHistory
	timers    *TimerTable
	delivery  *DeliveryService
	planner   *PlannerService
	loc       *time.Location
}

// newTestEnv собирает полный стек сервисов на фейках.
// Тест сам выставляет env.clock.now московским временем.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)

	env := &testEnv{
		clock:     newFakeClock(time.Date(2025, time.May, 5, 0, 0, 0, 0, loc)),
		ledger:    newFakeLedger(),
		users:     &fakeUsers{},
		timetable: newFakeTimetable(),
		messenger: &fakeMessenger{},
		history:   &fakeHistory{},
		loc:       loc,
	}

	logger := zap.NewNop()
	env.timers = NewTimerTable(env.clock)
	env.delivery = NewDeliveryService(env.ledger, env.history, env.messenger, env.clock, 10*time.Second, logger)
	env.planner = NewPlannerService(
		env.users, env.timetable, env.ledger, env.delivery, env.timers, env.clock, loc,
		PlannerConfig{
			ChunkSize:          50,
			DefaultLeadMinutes: 10,
			MaxAttempts:        3,
			RetryIntervals:     []int{1, 3, 5},
			RetentionDays:      7,
		},
		logger,
	)
	return env
}

func (e *testEnv) moscow(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, e.loc)
}

func strPtr(s string) *string { return &s }

// Понедельник 2025-05-05, ISO-неделя 19 (нечётная).
var (
	testDay     = time.Date(2025, time.May, 5, 0, 0, 0, 0, time.UTC)
	mathClass   = model.ClassEvent{DayOfWeek: "Понедельник", Time: "14:00 - 15:30", Discipline: "Математика", Teacher: "Иванов И.И.", Auditory: "101", LessonType: "Лекция"}
	physClass   = model.ClassEvent{DayOfWeek: "Понедельник", Time: "16:00 - 17:30", Discipline: "Физика", Teacher: "Петров П.П.", Auditory: "202", LessonType: "Практика"}
	tuesdayClass = model.ClassEvent{DayOfWeek: "Вторник", Time: "10:00 - 11:30", Discipline: "История", LessonType: "Лекция"}
)

func seedStudent(env *testEnv, telegramID int64, lead int) {
	env.users.users = append(env.users.users, model.User{
		TelegramID:           telegramID,
		NotificationsEnabled: true,
		NotificationTime:     lead,
		GroupID:              strPtr("ИВТ-21"),
	})
}

func TestPlanAllUsers_HappyPath(t *testing.T) {
	env := newTestEnv(t)
	env.clock.now = env.moscow(2025, time.May, 5, 13, 0)

	seedStudent(env, 1001, 10)
	env.timetable.set("ИВТ-21", 1, []model.ClassEvent{mathClass, tuesdayClass})

	report, err := env.planner.PlanAllUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Users)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Scheduled)

	// Ровно одна запись: пара вторника сегодня не планируется
	require.Equal(t, 1, env.ledger.count())
	require.Equal(t, 1, env.timers.Len())

	var entry model.ScheduledNotification
	for id := range env.ledger.byID {
		entry = env.ledger.get(id)
	}
	assert.Equal(t, "1001_Математика_14:00_2025-05-05", entry.NotificationKey)
	assert.Equal(t, model.NotificationStatusPending, entry.Status)
	assert.Equal(t, 10, entry.NotificationTimeMinutes)
	assert.True(t, entry.ScheduledTime.Equal(env.moscow(2025, time.May, 5, 13, 50)),
		"scheduled_time must be 13:50 local, got %s", entry.ScheduledTime)

	// В 13:50 таймер срабатывает, мессенджер отвечает успехом
	env.clock.advanceTo(env.moscow(2025, time.May, 5, 13, 50))

	final := env.ledger.get(entry.ID)
	assert.Equal(t, model.NotificationStatusSent, final.Status)
	assert.Equal(t, 1, final.Attempts)
	require.NotNil(t, final.SentAt)
	assert.Equal(t, 1, env.history.count())
	assert.Equal(t, 0, env.timers.Len())
}

func TestScheduleUserNotifications_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	env.clock.now = env.moscow(2025, time.May, 5, 13, 0)

	seedStudent(env, 1001, 10)
	env.timetable.set("ИВТ-21", 1, []model.ClassEvent{mathClass})

	first, err := env.planner.ScheduleUserNotifications(context.Background(), 1001)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)

	second, err := env.planner.ScheduleUserNotifications(context.Background(), 1001)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 0, second.Scheduled) // таймер уже взведён

	assert.Equal(t, 1, env.ledger.count())
	assert.Equal(t, 1, env.timers.Len())
}

func TestPlanUser_SkipsTooLateClass(t *testing.T) {
	env := newTestEnv(t)
	env.clock.now = env.moscow(2025, time.May, 5, 13, 0)

	seedStudent(env, 1001, 10)
	// Уведомление пришлось бы на 12:55 - больше минуты в прошлом
	late := model.ClassEvent{DayOfWeek: "Понедельник", Time: "13:05 - 14:35", Discipline: "Химия"}
	env.timetable.set("ИВТ-21", 1, []model.ClassEvent{late})

	report, err := env.planner.ScheduleUserNotifications(context.Background(), 1001)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 0, env.ledger.count())
}

func TestPlanUser_SkipsMalformedTime(t *testing.T) {
	env := newTestEnv(t)
	env.clock.now = env.moscow(2025, time.May, 5, 8, 0)

	seedStudent(env, 1001, 10)
	broken := model.ClassEvent{DayOfWeek: "Понедельник", Time: "четвёртая пара", Discipline: "Химия"}
	env.timetable.set("ИВТ-21", 1, []model.ClassEvent{broken, mathClass})

	report, err := env.planner.ScheduleUserNotifications(context.Background(), 1001)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created) // только корректная пара
}

func TestPlanUser_CacheMissMeansNoClasses(t *testing.T) {
	env := newTestEnv(t)
	env.clock.now = env.moscow(2025, time.May, 5, 8, 0)

	seedStudent(env, 1001, 10)
	// Кэш пуст

	report, err := env.planner.ScheduleUserNotifications(context.Background(), 1001)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Created)
}

func TestPlanUser_UsesDefaultLeadTime(t *testing.T) {
	env := newTestEnv(t)
	env.clock.now = env.moscow(2025, time.May, 5, 8, 0)

	seedStudent(env, 1001, 0) // упреждение не задано
	env.timetable.set("ИВТ-21", 1, []model.ClassEvent{mathClass})

	_, err := env.planner.ScheduleUserNotifications(context.Background(), 1001)
	require.NoError(t, err)

	for id := range env.ledger.byID {
		entry := env.ledger.get(id)
		assert.Equal(t, 10, entry.NotificationTimeMinutes)
		assert.True(t, entry.ScheduledTime.Equal(env.moscow(2025, time.May, 5, 13, 50)))
	}
}

func TestPlanAllUsers_OneBadUserDoesNotAbortRun(t *testing.T) {
	env := newTestEnv(t)
	env.clock.now = env.moscow(2025, time.May, 5, 8, 0)

	// У второго пользователя чтение кэша падает - обход это переживает
	seedStudent(env, 1001, 10)
	env.users.users = append(env.users.users, model.User{
		TelegramID:           1002,
		NotificationsEnabled: true,
		NotificationTime:     10,
		GroupID:              strPtr("СЛОМ-01"),
	})
	env.timetable.set("ИВТ-21", 1, []model.ClassEvent{mathClass, physClass})
	env.timetable.failGroups["СЛОМ-01"] = true

	report, err := env.planner.PlanAllUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Users)
	assert.Equal(t, 2, report.Created)
}

func TestRestartRearmsPendingFutureEntries(t *testing.T) {
	env := newTestEnv(t)
	env.clock.now = env.moscow(2025, time.May, 5, 13, 0)

	seedStudent(env, 1001, 10)
	env.timetable.set("ИВТ-21", 1, []model.ClassEvent{mathClass})

	// Запись уже в журнале (создана до "рестарта"), таймеров нет
	existing := model.ScheduledNotification{
		ID:                      uuid.New(),
		NotificationKey:         model.NotificationKey(1001, "Математика", "14:00", testDay),
		TelegramID:              1001,
		GroupID:                 "ИВТ-21",
		Date:                    testDay,
		ClassInfo:               mathClass,
		ScheduledTime:           env.moscow(2025, time.May, 5, 13, 50).UTC(),
		NotificationTimeMinutes: 10,
		Status:                  model.NotificationStatusPending,
	}
	env.ledger.put(existing)

	report, err := env.planner.ScheduleUserNotifications(context.Background(), 1001)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 1, report.Scheduled)
	assert.True(t, env.timers.Armed(existing.ID))

	// Дубликат не появился
	assert.Equal(t, 1, env.ledger.count())
}

func TestRestartDeliversPastDuePendingEntry(t *testing.T) {
	env := newTestEnv(t)

	// Рестарт в 13:55: момент отправки (13:50) уже позади
	env.clock.now = env.moscow(2025, time.May, 5, 13, 55)

	seedStudent(env, 1001, 10)
	env.timetable.set("ИВТ-21", 1, []model.ClassEvent{mathClass})

	existing := model.ScheduledNotification{
		ID:                      uuid.New(),
		NotificationKey:         model.NotificationKey(1001, "Математика", "14:00", testDay),
		TelegramID:              1001,
		GroupID:                 "ИВТ-21",
		Date:                    testDay,
		ClassInfo:               mathClass,
		ScheduledTime:           env.moscow(2025, time.May, 5, 13, 50).UTC(),
		NotificationTimeMinutes: 10,
		Status:                  model.NotificationStatusPending,
	}
	env.ledger.put(existing)

	report, err := env.planner.ScheduleUserNotifications(context.Background(), 1001)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Created) // новая запись не создаётся
	assert.Equal(t, 1, report.Scheduled)
	assert.True(t, env.timers.Armed(existing.ID))
	assert.Equal(t, 1, env.ledger.count())

	// Просроченный таймер срабатывает сразу: поздняя доставка вместо потери
	env.clock.advanceTo(env.moscow(2025, time.May, 5, 14, 30))

	final := env.ledger.get(existing.ID)
	assert.Equal(t, model.NotificationStatusSent, final.Status)
	assert.Equal(t, 1, env.messenger.sentCount())
	assert.Equal(t, 1, env.history.count())
}

func TestRestartDoesNotCreateEntryForMissedClass(t *testing.T) {
	env := newTestEnv(t)
	env.clock.now = env.moscow(2025, time.May, 5, 13, 55)

	seedStudent(env, 1001, 10)
	env.timetable.set("ИВТ-21", 1, []model.ClassEvent{mathClass})

	// Журнал пуст: пара прошла мимо планировщика целиком
	report, err := env.planner.ScheduleUserNotifications(context.Background(), 1001)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 0, report.Scheduled)
	assert.Equal(t, 0, env.ledger.count())
}

func TestRestartDoesNotRearmSentEntries(t *testing.T) {
	env := newTestEnv(t)
	env.clock.now = env.moscow(2025, time.May, 5, 13, 0)

	seedStudent(env, 1001, 10)
	env.timetable.set("ИВТ-21", 1, []model.ClassEvent{mathClass})

	sentAt := env.moscow(2025, time.May, 5, 12, 0).UTC()
	existing := model.ScheduledNotification{
		ID:              uuid.New(),
		NotificationKey: model.NotificationKey(1001, "Математика", "14:00", testDay),
		TelegramID:      1001,
		Date:            testDay,
		ClassInfo:       mathClass,
		Status:          model.NotificationStatusSent,
		SentAt:          &sentAt,
	}
	env.ledger.put(existing)

	report, err := env.planner.ScheduleUserNotifications(context.Background(), 1001)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 0, report.Scheduled)
	assert.Equal(t, 0, env.timers.Len())
}

func TestCancelNotification(t *testing.T) {
	env := newTestEnv(t)
	env.clock.now = env.moscow(2025, time.May, 5, 13, 0)

	seedStudent(env, 1001, 10)
	env.timetable.set("ИВТ-21", 1, []model.ClassEvent{mathClass})

	_, err := env.planner.ScheduleUserNotifications(context.Background(), 1001)
	require.NoError(t, err)

	var id uuid.UUID
	for entryID := range env.ledger.byID {
		id = entryID
	}

	applied, err := env.planner.CancelNotification(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, model.NotificationStatusCancelled, env.ledger.get(id).Status)
	assert.False(t, env.timers.Armed(id))

	// Повторная отмена - no-op
	applied, err = env.planner.CancelNotification(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, applied)

	// Сработавший позже таймер ничего не отправит
	env.clock.advanceTo(env.moscow(2025, time.May, 5, 14, 0))
	assert.Equal(t, 0, env.messenger.sentCount())
	assert.Equal(t, 0, env.history.count())
}

func TestCancelUserPending(t *testing.T) {
	env := newTestEnv(t)
	env.clock.now = env.moscow(2025, time.May, 5, 8, 0)

	seedStudent(env, 1001, 10)
	env.timetable.set("ИВТ-21", 1, []model.ClassEvent{mathClass, physClass})

	_, err := env.planner.ScheduleUserNotifications(context.Background(), 1001)
	require.NoError(t, err)
	require.Equal(t, 2, env.ledger.count())

	cancelled, err := env.planner.CancelUserPending(context.Background(), 1001)
	require.NoError(t, err)
	assert.Equal(t, 2, cancelled)
	assert.Equal(t, 0, env.timers.Len())

	stats, err := env.planner.GetNotificationStats(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Cancelled)
	assert.Equal(t, 0, stats.Pending)
}

func TestCleanupOld(t *testing.T) {
	env := newTestEnv(t)
	env.clock.now = env.moscow(2025, time.May, 5, 2, 0)

	oldDate := testDay.AddDate(0, 0, -10)
	for i := 0; i < 5; i++ {
		env.ledger.put(model.ScheduledNotification{
			ID:              uuid.New(),
			NotificationKey: model.NotificationKey(int64(2000+i), "Математика", "14:00", oldDate),
			Date:            oldDate,
			Status:          model.NotificationStatusSent,
		})
	}
	for i := 0; i < 3; i++ {
		env.ledger.put(model.ScheduledNotification{
			ID:              uuid.New(),
			NotificationKey: model.NotificationKey(int64(3000+i), "Физика", "16:00", testDay),
			Date:            testDay,
			Status:          model.NotificationStatusPending,
		})
	}

	deleted, err := env.planner.CleanupOld(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), deleted)
	assert.Equal(t, 3, env.ledger.count())
}

func TestGetNotificationStats(t *testing.T) {
	env := newTestEnv(t)
	env.clock.now = env.moscow(2025, time.May, 5, 13, 0)

	statuses := []model.NotificationStatus{
		model.NotificationStatusPending,
		model.NotificationStatusSent,
		model.NotificationStatusSent,
		model.NotificationStatusFailed,
	}
	for i, status := range statuses {
		env.ledger.put(model.ScheduledNotification{
			ID:              uuid.New(),
			NotificationKey: model.NotificationKey(int64(1000+i), "Математика", "14:00", testDay),
			Date:            testDay,
			Status:          status,
		})
	}

	stats, err := env.planner.GetNotificationStats(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "2025-05-05", stats.Date)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 2, stats.Sent)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 0, stats.Cancelled)
}

func TestResetDailyTaskCounters(t *testing.T) {
	env := newTestEnv(t)
	env.clock.now = env.moscow(2025, time.May, 5, 0, 0)

	env.users.users = []model.User{
		{TelegramID: 1, DailyTasksSolved: 4},
		{TelegramID: 2, DailyTasksSolved: 0},
		{TelegramID: 3, DailyTasksSolved: 7},
	}

	reset, err := env.planner.ResetDailyTaskCounters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), reset)
}

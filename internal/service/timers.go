package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Clock абстракция времени, чтобы тесты могли подставить виртуальные часы.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) TimerHandle
}

// TimerHandle взведённый одноразовый таймер.
type TimerHandle interface {
	Stop() bool
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, fn func()) TimerHandle {
	return time.AfterFunc(d, fn)
}

// SystemClock возвращает часы на time.Now и time.AfterFunc.
func SystemClock() Clock { return systemClock{} }

// TimerTable процесс-локальная таблица взведённых таймеров доставки.
// Живёт только в памяти: после рестарта процесса таймеры восстанавливает
// initial_planner по записям журнала.
type TimerTable struct {
	clock Clock

	mu     sync.Mutex
	timers map[uuid.UUID]TimerHandle
}

func NewTimerTable(clock Clock) *TimerTable {
	return &TimerTable{
		clock:  clock,
		timers: make(map[uuid.UUID]TimerHandle),
	}
}

// Arm взводит одноразовый таймер на абсолютный момент at.
// Повторный Arm для того же id - no-op (false): таймер уже взведён
// и двойного срабатывания быть не может. Просроченный at срабатывает сразу.
func (t *TimerTable) Arm(id uuid.UUID, at time.Time, fn func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.timers[id]; ok {
		return false
	}

	d := at.Sub(t.clock.Now())
	if d < 0 {
		d = 0
	}

	t.timers[id] = t.clock.AfterFunc(d, func() {
		t.remove(id)
		fn()
	})
	return true
}

// Cancel снимает таймер, если он ещё не сработал.
func (t *TimerTable) Cancel(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	handle, ok := t.timers[id]
	if !ok {
		return false
	}

	handle.Stop()
	delete(t.timers, id)
	return true
}

// Armed сообщает, взведён ли таймер для записи.
func (t *TimerTable) Armed(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.timers[id]
	return ok
}

// Len количество взведённых таймеров.
func (t *TimerTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

func (t *TimerTable) remove(id uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.timers, id)
}

package clock

import (
	"context"
	"sort"
	"sync"
	"time"
)

// minInterval replaces non-positive intervals passed to Every.
const minInterval = time.Millisecond

// StopFunc cancels a scheduled task. Calling it more than once is safe.
type StopFunc func()

// Scheduler runs a callback at a fixed interval.
type Scheduler interface {
	Every(interval time.Duration, fn func()) StopFunc
}

// TickerScheduler runs each task on its own goroutine driven by a time.Ticker.
type TickerScheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTickerScheduler creates a scheduler backed by real timers.
func NewTickerScheduler() *TickerScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &TickerScheduler{ctx: ctx, cancel: cancel}
}

// Every starts a ticker loop calling fn every interval until stopped.
func (ts *TickerScheduler) Every(interval time.Duration, fn func()) StopFunc {
	if interval <= 0 {
		interval = minInterval
	}
	ctx, cancel := context.WithCancel(ts.ctx)

	ts.wg.Add(1)
	go func() {
		defer ts.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn()
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(cancel) }
}

// Close stops every task and waits for the loops to exit.
func (ts *TickerScheduler) Close() {
	ts.cancel()
	ts.wg.Wait()
}

type manualTask struct {
	id       int
	interval time.Duration
	next     time.Time
	fn       func()
}

// ManualScheduler fires tasks only when Advance moves its Manual clock.
type ManualScheduler struct {
	clock  *Manual
	mu     sync.Mutex
	tasks  map[int]*manualTask
	nextID int
}

// NewManualScheduler creates a scheduler stepping the given manual clock.
func NewManualScheduler(clock *Manual) *ManualScheduler {
	return &ManualScheduler{
		clock: clock,
		tasks: make(map[int]*manualTask),
	}
}

// Every registers fn to run each time the clock crosses another interval.
func (ms *ManualScheduler) Every(interval time.Duration, fn func()) StopFunc {
	if interval <= 0 {
		interval = minInterval
	}

	ms.mu.Lock()
	id := ms.nextID
	ms.nextID++
	ms.tasks[id] = &manualTask{
		id:       id,
		interval: interval,
		next:     ms.clock.Now().Add(interval),
		fn:       fn,
	}
	ms.mu.Unlock()

	return func() {
		ms.mu.Lock()
		delete(ms.tasks, id)
		ms.mu.Unlock()
	}
}

// Pending reports the number of registered tasks.
func (ms *ManualScheduler) Pending() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.tasks)
}

// Advance moves the clock forward by d, firing due tasks in time order.
// The clock reads each task's due time while its callback runs.
func (ms *ManualScheduler) Advance(d time.Duration) {
	target := ms.clock.Now().Add(d)

	for {
		task := ms.nextDue(target)
		if task == nil {
			break
		}
		ms.clock.Set(task.next)
		task.fn()

		ms.mu.Lock()
		task.next = task.next.Add(task.interval)
		ms.mu.Unlock()
	}

	ms.clock.Set(target)
}

func (ms *ManualScheduler) nextDue(target time.Time) *manualTask {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	due := make([]*manualTask, 0, len(ms.tasks))
	for _, task := range ms.tasks {
		if !task.next.After(target) {
			due = append(due, task)
		}
	}
	if len(due) == 0 {
		return nil
	}

	sort.Slice(due, func(i, j int) bool {
		if due[i].next.Equal(due[j].next) {
			return due[i].id < due[j].id
		}
		return due[i].next.Before(due[j].next)
	})
	return due[0]
}

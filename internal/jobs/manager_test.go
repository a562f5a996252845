package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingJob struct {
	mu       sync.Mutex
	runs     int
	finishAt int
	err      error
}

func (j *countingJob) Name() string            { return "counting" }
func (j *countingJob) Interval() time.Duration { return time.Hour }

func (j *countingJob) Run(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.runs++
	return j.err
}

func (j *countingJob) Finished() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.finishAt > 0 && j.runs >= j.finishAt
}

func (j *countingJob) Runs() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runs
}

// instantAfter fires immediately and records requested sleeps.
type instantAfter struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (a *instantAfter) After(d time.Duration) <-chan time.Time {
	a.mu.Lock()
	a.sleeps = append(a.sleeps, d)
	a.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

func TestManager_FinishableJobStopsItself(t *testing.T) {
	clock := &instantAfter{}
	m := NewManager(context.Background(), WithAfter(clock.After))
	job := &countingJob{finishAt: 3, err: errors.New("transient")}
	m.Register(job)

	m.Start()
	m.Wait()

	assert.Equal(t, 3, job.Runs())
	assert.Equal(t, []time.Duration{time.Hour, time.Hour}, clock.sleeps)
}

func TestManager_FinishedAfterFirstRunNeverSleeps(t *testing.T) {
	clock := &instantAfter{}
	m := NewManager(context.Background(), WithAfter(clock.After))
	job := &countingJob{finishAt: 1}
	m.Register(job)

	m.Start()
	m.Wait()

	assert.Equal(t, 1, job.Runs())
	assert.Empty(t, clock.sleeps)
}

func TestManager_StopInterruptsSleep(t *testing.T) {
	blocked := make(chan time.Time)
	slept := make(chan struct{}, 1)
	after := func(d time.Duration) <-chan time.Time {
		slept <- struct{}{}
		return blocked
	}

	m := NewManager(context.Background(), WithAfter(after))
	job := &countingJob{}
	m.Register(job)
	m.Start()

	<-slept
	m.Stop()
	m.Wait()

	assert.Equal(t, 1, job.Runs())
}

func TestManager_StartTwiceRunsOnce(t *testing.T) {
	clock := &instantAfter{}
	m := NewManager(context.Background(), WithAfter(clock.After))
	job := &countingJob{finishAt: 1}
	m.Register(job)
	m.Register(nil)

	m.Start()
	m.Start()
	m.Wait()

	assert.Equal(t, 1, job.Runs())
}

package janitor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rohanmalik/merakistore-backend/pkg/logger"
)

type fakeLock struct {
	held     bool
	acquires int
	releases int
	denied   bool
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	f.acquires++
	if f.denied || f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.releases++
	f.held = false
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "janitor-test"})
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	service, err := NewService(ServiceParams{
		Logger: logg,
		Lock:   &fakeLock{},
		Jobs:   []Job{success, failure},
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	err = service.runCycle(context.Background())
	if err == nil {
		t.Fatal("expected cycle error from failing job")
	}
	if !strings.Contains(err.Error(), "fail: boom") {
		t.Fatalf("unexpected cycle error: %v", err)
	}
	if success.runs != 1 {
		t.Fatalf("expected success job to run once, ran %d", success.runs)
	}
	if failure.runs != 1 {
		t.Fatalf("expected failure job to run once, ran %d", failure.runs)
	}
}

func TestServiceSkipsCycleWhenLockHeld(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "janitor-test"})
	job := &testJob{name: "noop"}
	lock := &fakeLock{denied: true}
	service, err := NewService(ServiceParams{
		Logger: logg,
		Lock:   lock,
		Jobs:   []Job{job},
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected no runs while lock held, ran %d", job.runs)
	}
	if lock.releases != 0 {
		t.Fatalf("expected no release without acquire, released %d", lock.releases)
	}
}

func TestServiceReleasesLockAfterCycle(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "janitor-test"})
	lock := &fakeLock{}
	service, err := NewService(ServiceParams{
		Logger: logg,
		Lock:   lock,
		Jobs:   []Job{&testJob{name: "noop"}},
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if lock.held {
		t.Fatal("expected lock released after cycle")
	}
	if lock.acquires != 1 || lock.releases != 1 {
		t.Fatalf("expected one acquire and one release, got %d/%d", lock.acquires, lock.releases)
	}
}

func TestNewServiceRequiresJobs(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "janitor-test"})
	if _, err := NewService(ServiceParams{Logger: logg, Lock: &fakeLock{}}); err == nil {
		t.Fatal("expected error without jobs")
	}
}

type fakeLockStore struct {
	setNXKey string
	setNXTTL time.Duration
	taken    bool
	delKeys  []string
}

func (f *fakeLockStore) SetNX(_ context.Context, key string, _ any, ttl time.Duration) (bool, error) {
	f.setNXKey = key
	f.setNXTTL = ttl
	if f.taken {
		return false, nil
	}
	f.taken = true
	return true, nil
}

func (f *fakeLockStore) Del(_ context.Context, keys ...string) error {
	f.delKeys = append(f.delKeys, keys...)
	f.taken = false
	return nil
}

func TestRedisLockRoundTrip(t *testing.T) {
	store := &fakeLockStore{}
	lock, err := NewRedisLock(store, "janitor:lock", time.Hour)
	if err != nil {
		t.Fatalf("construct lock: %v", err)
	}

	acquired, err := lock.Acquire(context.Background())
	if err != nil || !acquired {
		t.Fatalf("expected first acquire to succeed, got %v %v", acquired, err)
	}
	if store.setNXKey != "janitor:lock" || store.setNXTTL != time.Hour {
		t.Fatalf("unexpected lock key/ttl: %s %s", store.setNXKey, store.setNXTTL)
	}

	acquired, err = lock.Acquire(context.Background())
	if err != nil || acquired {
		t.Fatalf("expected second acquire to be denied, got %v %v", acquired, err)
	}

	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
	if len(store.delKeys) != 1 || store.delKeys[0] != "janitor:lock" {
		t.Fatalf("unexpected delete keys: %v", store.delKeys)
	}
}

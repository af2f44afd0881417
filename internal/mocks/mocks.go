// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/triage/internal/config"
	"github.com/xkilldash9x/triage/internal/store"
	"github.com/xkilldash9x/triage/internal/worker"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Library() config.LibraryConfig {
	args := m.Called()
	return args.Get(0).(config.LibraryConfig)
}

func (m *MockConfig) Supervisor() config.SupervisorConfig {
	args := m.Called()
	return args.Get(0).(config.SupervisorConfig)
}

func (m *MockConfig) Worker() config.WorkerConfig {
	args := m.Called()
	return args.Get(0).(config.WorkerConfig)
}

func (m *MockConfig) Store() config.StoreConfig {
	args := m.Called()
	return args.Get(0).(config.StoreConfig)
}

// --- Setters ---

func (m *MockConfig) SetLibraryPaths(p []string)      { m.Called(p) }
func (m *MockConfig) SetLibraryThreshold(t float64)   { m.Called(t) }
func (m *MockConfig) SetSupervisorRetryBudget(n int)  { m.Called(n) }
func (m *MockConfig) SetSupervisorWorkDir(dir string) { m.Called(dir) }

// -- Worker Mock --

// RunFunc lets a test compute an attempt's result, for example to write the
// output file the diagnosis reads.
type RunFunc func(ctx context.Context, a worker.Attempt) (*worker.Result, error)

// MockWorker mocks worker.Worker. The first return value may be a
// *worker.Result or a RunFunc.
type MockWorker struct {
	mock.Mock
}

func (m *MockWorker) Run(ctx context.Context, a worker.Attempt) (*worker.Result, error) {
	args := m.Called(ctx, a)
	switch v := args.Get(0).(type) {
	case RunFunc:
		return v(ctx, a)
	case func(context.Context, worker.Attempt) (*worker.Result, error):
		return v(ctx, a)
	case *worker.Result:
		return v, args.Error(1)
	default:
		return nil, args.Error(1)
	}
}

// -- Recorder Mock --

// MockRecorder mocks store.Recorder and keeps every record it was given.
type MockRecorder struct {
	mock.Mock
	mu      sync.Mutex
	records []store.AttemptRecord
}

func (m *MockRecorder) RecordAttempt(ctx context.Context, rec store.AttemptRecord) error {
	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()
	args := m.Called(ctx, rec)
	return args.Error(0)
}

// Records returns a copy of the records received so far.
func (m *MockRecorder) Records() []store.AttemptRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.AttemptRecord(nil), m.records...)
}

var (
	_ config.Interface = (*MockConfig)(nil)
	_ worker.Worker    = (*MockWorker)(nil)
	_ store.Recorder   = (*MockRecorder)(nil)
)

// Package testutil provides helpers and testify mocks shared by the dirhash
// test suites.
package testutil

import (
	"context"
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stackvity/dirhash/pkg/dirhash"
	"github.com/stretchr/testify/mock"
)

// MockFileHasher provides a mock implementation of the dirhash.FileHasher interface.
// Configure expectations using testify/mock methods (e.g., .On("Hash", ...).Return(...)).
type MockFileHasher struct {
	mock.Mock
}

// Hash mocks the Hash method.
func (m *MockFileHasher) Hash(ctx context.Context, root, relPath string) (rec dirhash.FileRecord, err error) {
	args := m.Called(ctx, root, relPath)
	rec, _ = args.Get(0).(dirhash.FileRecord)
	err = args.Error(1)
	return
}

// MockTUIProgram provides a mock implementation of hooks.TUIProgram.
type MockTUIProgram struct {
	mock.Mock
}

// Send mocks the Send method.
func (m *MockTUIProgram) Send(msg tea.Msg) {
	m.Called(msg)
}

// MockProgressBar provides a mock implementation of hooks.ProgressBar.
type MockProgressBar struct {
	mock.Mock
}

// ChangeMax mocks the ChangeMax method.
func (m *MockProgressBar) ChangeMax(max int) {
	m.Called(max)
}

// Add mocks the Add method.
func (m *MockProgressBar) Add(num int) error {
	args := m.Called(num)
	return args.Error(0)
}

// Describe mocks the Describe method.
func (m *MockProgressBar) Describe(description string) {
	m.Called(description)
}

// Finish mocks the Finish method.
func (m *MockProgressBar) Finish() error {
	args := m.Called()
	return args.Error(0)
}

// Close mocks the Close method.
func (m *MockProgressBar) Close() error {
	args := m.Called()
	return args.Error(0)
}

// syncWriter serialises writes from concurrently logging goroutines.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

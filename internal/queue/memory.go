package queue

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process queue for single-node deployments and tests.
type Memory struct {
	mu         sync.Mutex
	jobs       []Job
	processing uuid.UUID
	closed     bool
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Init(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = false
	return nil
}

func (m *Memory) Shutdown(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *Memory) Push(_ context.Context, job Job) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	if i := m.index(job.ID); i >= 0 {
		return i + 1, nil
	}
	m.jobs = append(m.jobs, job)
	return len(m.jobs), nil
}

func (m *Memory) Peek(context.Context) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if len(m.jobs) == 0 {
		return nil, nil
	}
	j := m.jobs[0]
	return &j, nil
}

func (m *Memory) Pop(context.Context) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if len(m.jobs) == 0 {
		return nil, nil
	}
	j := m.jobs[0]
	m.jobs[0] = Job{}
	m.jobs = m.jobs[1:]
	m.processing = j.ID
	return &j, nil
}

func (m *Memory) Position(_ context.Context, id uuid.UUID) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, false, ErrClosed
	}
	if i := m.index(id); i >= 0 {
		return i + 1, true, nil
	}
	return 0, false, nil
}

func (m *Memory) Len(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	return len(m.jobs), nil
}

func (m *Memory) Processing(context.Context) (uuid.UUID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return uuid.Nil, false, ErrClosed
	}
	return m.processing, m.processing != uuid.Nil, nil
}

func (m *Memory) Done(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.processing == id {
		m.processing = uuid.Nil
	}
	return nil
}

func (m *Memory) index(id uuid.UUID) int {
	for i, j := range m.jobs {
		if j.ID == id {
			return i
		}
	}
	return -1
}

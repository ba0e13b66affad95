package sink

import (
	"context"
	"sync"

	"github.com/temoto/udpinsert/tele"
)

type Batch struct {
	Database string
	Points   []tele.Point
}

// Memory collects batches, optionally signals each one on channel C.
type Memory struct {
	mu      sync.Mutex
	batches []Batch
	C       chan Batch
	Err     error
}

var _ tele.Sink = &Memory{}

func NewMemory(buffer int) *Memory {
	m := &Memory{}
	if buffer > 0 {
		m.C = make(chan Batch, buffer)
	}
	return m
}

func (m *Memory) Write(ctx context.Context, database string, points []tele.Point) error {
	b := Batch{Database: database, Points: append([]tele.Point(nil), points...)}
	m.mu.Lock()
	err := m.Err
	if err == nil {
		m.batches = append(m.batches, b)
	}
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if m.C != nil {
		select {
		case m.C <- b:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (m *Memory) SetError(err error) {
	m.mu.Lock()
	m.Err = err
	m.mu.Unlock()
}

func (m *Memory) Batches() []Batch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Batch(nil), m.batches...)
}

// Points returns all points written to database, in order.
func (m *Memory) Points(database string) []tele.Point {
	m.mu.Lock()
	defer m.mu.Unlock()
	ps := []tele.Point{}
	for _, b := range m.batches {
		if b.Database == database {
			ps = append(ps, b.Points...)
		}
	}
	return ps
}

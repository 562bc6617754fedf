package logging

import (
	"io"
	"sync"
)

type LogsExporter interface {
	Export(io.Writer, bool) error
}

type logLine []byte

// MemoryLogs is a zapcore.WriteSyncer keeping the last lines written to it
type MemoryLogs struct {
	lines [][]byte
	next  int
	count int

	lock sync.Mutex
}

func NewMemoryLogger(size int) *MemoryLogs {
	return &MemoryLogs{
		lines: make([][]byte, size),
	}
}

func (m *MemoryLogs) Write(p []byte) (n int, err error) {
	l := make(logLine, len(p))
	copy(l, p)

	m.lock.Lock()
	defer m.lock.Unlock()
	m.lines[m.next] = l
	m.next = (m.next + 1) % len(m.lines)
	if m.count < len(m.lines) {
		m.count++
	}
	return len(p), nil
}

func (m *MemoryLogs) Sync() error {
	return nil
}

func (m *MemoryLogs) Close() error {
	return nil
}

func (m *MemoryLogs) Export(w io.Writer, revert bool) error {
	m.lock.Lock()
	snapshot := make([][]byte, 0, m.count)
	first := (m.next - m.count + len(m.lines)) % len(m.lines)
	for i := 0; i < m.count; i++ {
		snapshot = append(snapshot, m.lines[(first+i)%len(m.lines)])
	}
	m.lock.Unlock()

	if revert {
		for i := len(snapshot) - 1; i >= 0; i-- {
			if _, err := w.Write(snapshot[i]); err != nil {
				return err
			}
		}
		return nil
	}
	for _, line := range snapshot {
		if _, err := w.Write(line); err != nil {
			return err
		}
	}
	return nil
}

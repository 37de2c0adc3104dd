package workflow

// State is the cycle position of the manager.
type State string

const (
	StateIdle       State = "idle"
	StateFetching   State = "fetching"
	StateProcessing State = "processing"
	StatePersisting State = "persisting"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	State     State
	Cycles    int
	IndexSize int
	LastError string
	LastCycle *CycleReport
}

// Status returns the latest workflow information.
func (m *Manager) Status() StatusSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	summary := StatusSummary{
		State:     m.state,
		Cycles:    m.cycles,
		IndexSize: m.deps.Index.Len(),
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastCycle != nil {
		report := *m.lastCycle
		report.Results = append([]JobResult(nil), m.lastCycle.Results...)
		summary.LastCycle = &report
	}
	return summary
}

func (m *Manager) setState(state State) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

func (m *Manager) finishCycle(report CycleReport, err error) {
	m.mu.Lock()
	m.state = StateIdle
	m.cycles++
	m.lastErr = err
	m.lastCycle = &report
	m.mu.Unlock()
}

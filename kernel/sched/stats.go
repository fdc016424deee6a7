package sched

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// CoreStats is a snapshot of one core.
type CoreStats struct {
	Core        int
	Current     ThreadID
	CurrentName string
	Idle        bool
	Ready       int
	Levels      [NumPriorities]int
	Switches    uint64
	Ticks       uint64
}

// Stats is a snapshot of the machine.
type Stats struct {
	Uptime   uint64
	Cores    []CoreStats
	Threads  int
	Sleeping int
	Joining  int
}

// ThreadInfo describes one live thread.
type ThreadInfo struct {
	ID         ThreadID
	Name       string
	Core       int
	Priority   Priority
	State      State
	Cause      Cause
	Vector     Vector
	Idle       bool
	Detached   bool
	Created    uint64
	Dispatches uint64
	RunTicks   uint64
}

// Stats returns a snapshot of the machine. Core and table snapshots are taken
// one after the other and need not be mutually consistent.
func (m *Machine) Stats() Stats {
	st := Stats{Uptime: m.Now(), Cores: make([]CoreStats, len(m.cores))}
	for i, c := range m.cores {
		st.Cores[i] = c.snapshot()
	}

	s := m.threads.Lock(nil)
	st.Threads = m.tab.live
	st.Sleeping = m.ledger.sleepers.len()
	st.Joining = m.ledger.joiners.len()
	m.threads.Unlock(nil, s)
	return st
}

// Threads lists every allocated control block, zombies included, in table
// order.
func (m *Machine) Threads() []ThreadInfo {
	s := m.threads.Lock(nil)
	defer m.threads.Unlock(nil, s)

	out := make([]ThreadInfo, 0, m.tab.live)
	for i := range m.tab.slots {
		t := &m.tab.slots[i]
		state := t.loadState()
		if state == StateFree {
			continue
		}
		out = append(out, ThreadInfo{
			ID:         t.id,
			Name:       t.name,
			Core:       t.core,
			Priority:   t.prio,
			State:      state,
			Cause:      t.cause,
			Vector:     t.vector,
			Idle:       t.idle,
			Detached:   t.detached,
			Created:    t.created,
			Dispatches: t.dispatches.Load(),
			RunTicks:   t.runTicks.Load(),
		})
	}
	return out
}

// Dump writes a human-readable report of cores and threads to w.
func (m *Machine) Dump(w io.Writer) error {
	st := m.Stats()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "uptime %d ticks, %d threads, %d sleeping, %d joining\n", st.Uptime, st.Threads, st.Sleeping, st.Joining)
	fmt.Fprintln(tw, "CORE\tCURRENT\tREADY\tSWITCHES\tTICKS")
	for _, c := range st.Cores {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\n", c.Core, c.CurrentName, c.Ready, c.Switches, c.Ticks)
	}

	fmt.Fprintln(tw, "ID\tNAME\tCORE\tPRIO\tSTATE\tCAUSE\tDISPATCHES\tTICKS")
	for _, t := range m.Threads() {
		cause := "-"
		if t.State == StateZombie {
			cause = t.Cause.String()
			if t.Cause == CauseFault {
				cause += " (" + t.Vector.String() + ")"
			}
		}
		fmt.Fprintf(tw, "%#x\t%s\t%d\t%d\t%s\t%s\t%d\t%d\n",
			uint32(t.ID), t.Name, t.Core, t.Priority, t.State, cause, t.Dispatches, t.RunTicks)
	}
	return tw.Flush()
}

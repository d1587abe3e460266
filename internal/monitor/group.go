package monitor

import "github.com/geodesymiami/minsar-sub000/pkg/model"

// Group is the outstanding set for one step. Slots are positional: a
// resubmitted record replaces its predecessor at the same index, so
// counts and iteration order stay stable for the life of the group.
type Group struct {
	label    string
	records  []*model.SubmissionRecord
	done     []bool
	awaiting []bool // slot holds an escalated record still waiting for admission
}

// NewGroup wraps freshly submitted records for monitoring.
func NewGroup(label string, records []*model.SubmissionRecord) *Group {
	return &Group{
		label:    label,
		records:  records,
		done:     make([]bool, len(records)),
		awaiting: make([]bool, len(records)),
	}
}

// Label returns the group's log identity.
func (g *Group) Label() string { return g.label }

// Records exposes the slot array. Callers must not reorder it.
func (g *Group) Records() []*model.SubmissionRecord { return g.records }

// Progress tallies the current state of every slot.
func (g *Group) Progress() model.Progress {
	return model.ComputeProgress(g.records)
}

// Outstanding counts slots that have not completed yet.
func (g *Group) Outstanding() int {
	n := 0
	for _, d := range g.done {
		if !d {
			n++
		}
	}
	return n
}

// Done reports whether every slot has completed.
func (g *Group) Done() bool { return g.Outstanding() == 0 }

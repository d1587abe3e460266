// Package walltime parses and formats Slurm walltime expressions and
// implements the escalation policy applied when a job times out.
package walltime

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Parse converts a Slurm time expression to a duration. Accepted forms are
// the ones sbatch itself takes: "MM", "MM:SS", "HH:MM:SS", "D-HH",
// "D-HH:MM" and "D-HH:MM:SS".
func Parse(expr string) (time.Duration, error) {
	s := strings.TrimSpace(expr)
	if s == "" {
		return 0, fmt.Errorf("empty walltime")
	}

	var days int
	if day, rest, ok := strings.Cut(s, "-"); ok {
		d, err := parseField(day, "days")
		if err != nil {
			return 0, fmt.Errorf("walltime %q: %w", expr, err)
		}
		days = d
		s = rest
		if s == "" {
			return 0, fmt.Errorf("walltime %q: missing hours after day part", expr)
		}
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("walltime %q: too many fields", expr)
	}
	vals := make([]int, len(parts))
	for i, p := range parts {
		v, err := parseField(p, "field")
		if err != nil {
			return 0, fmt.Errorf("walltime %q: %w", expr, err)
		}
		vals[i] = v
	}

	var d time.Duration
	if days > 0 {
		// With a day prefix the first field is hours.
		d = time.Duration(days) * 24 * time.Hour
		d += time.Duration(vals[0]) * time.Hour
		if len(vals) > 1 {
			d += time.Duration(vals[1]) * time.Minute
		}
		if len(vals) > 2 {
			d += time.Duration(vals[2]) * time.Second
		}
		return d, nil
	}

	switch len(vals) {
	case 1: // minutes
		d = time.Duration(vals[0]) * time.Minute
	case 2: // minutes:seconds
		d = time.Duration(vals[0])*time.Minute + time.Duration(vals[1])*time.Second
	case 3: // hours:minutes:seconds
		d = time.Duration(vals[0])*time.Hour + time.Duration(vals[1])*time.Minute + time.Duration(vals[2])*time.Second
	}
	return d, nil
}

func parseField(s, what string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("bad %s %q", what, s)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative %s %q", what, s)
	}
	return v, nil
}

// Format renders a duration in the canonical form passed to sbatch
// --time: "HH:MM:SS" below one day, "D-HH:MM:SS" from one day up.
// Durations are truncated to whole seconds.
func Format(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h >= 24 {
		return fmt.Sprintf("%d-%02d:%02d:%02d", h/24, h%24, m, s)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Policy controls how much extra walltime a resubmitted job gets and how
// far escalation may go per queue.
type Policy struct {
	// Factor multiplies the previous walltime on each escalation.
	// Values at or below 1 fall back to DefaultFactor.
	Factor float64
	// Ceilings holds the per-queue walltime limit keyed by queue class.
	Ceilings map[string]time.Duration
	// DefaultCeiling applies to queues absent from Ceilings. Zero means
	// no limit.
	DefaultCeiling time.Duration
}

// DefaultFactor is the escalation multiplier used when a Policy does not
// set one.
const DefaultFactor = 1.5

// Escalate returns the walltime for the next attempt after a timeout:
// the previous walltime scaled by the policy factor, rounded up to a
// whole minute, and clipped to the queue's ceiling. Once the ceiling is
// reached, further escalations return the ceiling unchanged.
func (p Policy) Escalate(current time.Duration, queue string) time.Duration {
	factor := p.Factor
	if factor <= 1 {
		factor = DefaultFactor
	}

	next := time.Duration(math.Ceil(float64(current)*factor/float64(time.Minute))) * time.Minute

	ceil := p.DefaultCeiling
	if c, ok := p.Ceilings[queue]; ok {
		ceil = c
	}
	if ceil > 0 && next > ceil {
		next = ceil
	}
	return next
}

// Ceiling returns the walltime limit configured for the queue, or the
// default ceiling when the queue has no entry.
func (p Policy) Ceiling(queue string) time.Duration {
	if c, ok := p.Ceilings[queue]; ok {
		return c
	}
	return p.DefaultCeiling
}

package walltime

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := []struct {
		expr string
		want time.Duration
	}{
		{"30", 30 * time.Minute},
		{"90:30", 90*time.Minute + 30*time.Second},
		{"02:00:00", 2 * time.Hour},
		{"0:30:00", 30 * time.Minute},
		{"1-00", 24 * time.Hour},
		{"1-12", 36 * time.Hour},
		{"2-00:30", 48*time.Hour + 30*time.Minute},
		{"1-06:15:30", 30*time.Hour + 15*time.Minute + 30*time.Second},
		{" 45 ", 45 * time.Minute},
	}
	for _, tt := range tests {
		got, err := Parse(tt.expr)
		if err != nil {
			t.Errorf("Parse(%q) error: %v", tt.expr, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, expr := range []string{"", "abc", "1:2:3:4", "-10", "1-", "2-xx:00"} {
		if _, err := Parse(expr); err == nil {
			t.Errorf("Parse(%q) = nil error, want error", expr)
		}
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Minute, "00:30:00"},
		{2*time.Hour + 5*time.Minute, "02:05:00"},
		{24*time.Hour - time.Second, "23:59:59"},
		{26*time.Hour + 30*time.Minute, "1-02:30:00"},
		{48 * time.Hour, "2-00:00:00"},
		{90 * time.Second, "00:01:30"},
		{0, "00:00:00"},
	}
	for _, tt := range tests {
		if got := Format(tt.d); got != tt.want {
			t.Errorf("Format(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, expr := range []string{"00:30:00", "02:00:00", "2-00:00:00"} {
		d, err := Parse(expr)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", expr, err)
		}
		if got := Format(d); got != expr {
			t.Errorf("Format(Parse(%q)) = %q", expr, got)
		}
	}
}

func TestPolicy_Escalate(t *testing.T) {
	p := Policy{
		Factor: 1.5,
		Ceilings: map[string]time.Duration{
			"skx": 48 * time.Hour,
			"dev": 2 * time.Hour,
		},
		DefaultCeiling: 24 * time.Hour,
	}

	tests := []struct {
		name    string
		current time.Duration
		queue   string
		want    time.Duration
	}{
		{"plain escalation", 30 * time.Minute, "skx", 45 * time.Minute},
		{"rounds up to minute", 31 * time.Minute, "skx", 47 * time.Minute},
		{"clipped to queue ceiling", 100 * time.Hour, "skx", 48 * time.Hour},
		{"at ceiling stays at ceiling", 48 * time.Hour, "skx", 48 * time.Hour},
		{"dev queue ceiling", 90 * time.Minute, "dev", 2 * time.Hour},
		{"unknown queue uses default", 20 * time.Hour, "normal", 24 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Escalate(tt.current, tt.queue); got != tt.want {
				t.Errorf("Escalate(%v, %q) = %v, want %v", tt.current, tt.queue, got, tt.want)
			}
		})
	}
}

func TestPolicy_Escalate_DefaultFactor(t *testing.T) {
	var p Policy
	if got, want := p.Escalate(60*time.Minute, "skx"), 90*time.Minute; got != want {
		t.Errorf("Escalate() = %v, want %v", got, want)
	}
}

func TestPolicy_Escalate_StrictlyGreaterBelowCeiling(t *testing.T) {
	p := Policy{Factor: 1.5, DefaultCeiling: 48 * time.Hour}
	for _, current := range []time.Duration{time.Minute, 10 * time.Minute, 7 * time.Hour} {
		if got := p.Escalate(current, "skx"); got <= current {
			t.Errorf("Escalate(%v) = %v, want > %v", current, got, current)
		}
	}
}

func TestPolicy_Ceiling(t *testing.T) {
	p := Policy{
		Ceilings:       map[string]time.Duration{"dev": 2 * time.Hour},
		DefaultCeiling: 24 * time.Hour,
	}
	if got := p.Ceiling("dev"); got != 2*time.Hour {
		t.Errorf("Ceiling(dev) = %v, want 2h", got)
	}
	if got := p.Ceiling("skx"); got != 24*time.Hour {
		t.Errorf("Ceiling(skx) = %v, want 24h", got)
	}
}

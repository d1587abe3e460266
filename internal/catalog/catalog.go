// Package catalog resolves pipeline steps to the batch scripts that
// implement them. A run directory holds scripts named run_NN_<label>_K.job;
// the catalog globs them per step and parses the #SBATCH directives each
// script carries into JobUnit metadata.
package catalog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/geodesymiami/minsar-sub000/internal/walltime"
	"github.com/geodesymiami/minsar-sub000/pkg/model"
)

// DefaultAliases maps the named stages of the phase-linking pipeline to
// their step numbers. Numeric step expressions bypass this table.
var DefaultAliases = map[string]int{
	"load_data":             1,
	"phase_linking":         2,
	"concatenate_patches":   3,
	"generate_ifgram":       4,
	"unwrap_ifgram":         5,
	"load_ifgram":           6,
	"ifgram_correction":     7,
	"invert_network":        8,
	"timeseries_correction": 9,
}

// ScriptDefaults fills JobUnit fields for scripts whose #SBATCH block
// omits the corresponding directive.
type ScriptDefaults struct {
	Walltime   time.Duration
	QueueClass string
	TaskCount  int
}

// Catalog discovers job scripts under one run directory.
type Catalog struct {
	Dir      string
	Aliases  map[string]int
	Defaults ScriptDefaults
}

// New returns a Catalog over dir with the default alias table and
// conservative script defaults.
func New(dir string) *Catalog {
	return &Catalog{
		Dir:     dir,
		Aliases: DefaultAliases,
		Defaults: ScriptDefaults{
			Walltime:   time.Hour,
			QueueClass: "normal",
			TaskCount:  1,
		},
	}
}

var stepFileRe = regexp.MustCompile(`^run_(\d+)_`)

// HighestStep scans the run directory and returns the largest step number
// present. A directory with no run_NN_* files yields 0 and no error.
func (c *Catalog) HighestStep() (int, error) {
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		return 0, fmt.Errorf("scanning run directory: %w", err)
	}
	highest := 0
	for _, e := range entries {
		m := stepFileRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return highest, nil
}

// SelectorForStep builds the glob selector covering every job script of
// one step.
func (c *Catalog) SelectorForStep(step int) model.JobGroupSelector {
	return model.JobGroupSelector{
		Step:    step,
		Pattern: filepath.Join(c.Dir, fmt.Sprintf("run_%02d_*.job", step)),
	}
}

// Expand resolves a selector to concrete job units in lexical path order.
// A step selector matching no files expands to an empty slice, which the
// planner drops. A single-unit selector names one script literally; that
// script must exist.
func (c *Catalog) Expand(sel model.JobGroupSelector) ([]model.JobUnit, error) {
	if sel.Step == 0 {
		unit, err := c.ParseScript(sel.Pattern)
		if err != nil {
			return nil, err
		}
		return []model.JobUnit{unit}, nil
	}

	paths, err := filepath.Glob(sel.Pattern)
	if err != nil {
		return nil, fmt.Errorf("expanding %s: %w", sel.Label(), err)
	}
	sort.Strings(paths)

	units := make([]model.JobUnit, 0, len(paths))
	for _, p := range paths {
		unit, err := c.ParseScript(p)
		if err != nil {
			return nil, err
		}
		units = append(units, unit)
	}
	return units, nil
}

// ParseScript reads one batch script and builds its JobUnit from the
// #SBATCH directive block. Directives recognized: -t/--time,
// -p/--partition and -n/--ntasks; anything else passes through to the
// scheduler untouched. Scanning stops at the first executable line, which
// is where sbatch stops reading directives too.
func (c *Catalog) ParseScript(path string) (model.JobUnit, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.JobUnit{}, fmt.Errorf("reading job script: %w", err)
	}
	defer f.Close()

	unit := model.JobUnit{
		Path:              path,
		StepName:          StepName(path),
		RequestedWalltime: c.Defaults.Walltime,
		TaskCount:         c.Defaults.TaskCount,
		QueueClass:        c.Defaults.QueueClass,
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#!") {
			continue
		}
		if !strings.HasPrefix(line, "#") {
			break
		}
		flag, value, ok := parseDirective(line)
		if !ok {
			continue
		}
		switch flag {
		case "-t", "--time":
			d, err := walltime.Parse(value)
			if err != nil {
				return model.JobUnit{}, fmt.Errorf("%s: %w", path, err)
			}
			unit.RequestedWalltime = d
		case "-p", "--partition":
			unit.QueueClass = value
		case "-n", "--ntasks":
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 {
				return model.JobUnit{}, fmt.Errorf("%s: bad ntasks %q", path, value)
			}
			unit.TaskCount = n
		}
	}
	if err := scanner.Err(); err != nil {
		return model.JobUnit{}, fmt.Errorf("reading job script %s: %w", path, err)
	}
	return unit, nil
}

// parseDirective splits an "#SBATCH <flag> <value>" line. Both
// "--flag=value" and "--flag value" spellings occur in generated scripts.
func parseDirective(line string) (flag, value string, ok bool) {
	rest, found := strings.CutPrefix(line, "#SBATCH")
	if !found {
		return "", "", false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", "", false
	}
	if f, v, hasEq := strings.Cut(fields[0], "="); hasEq {
		return f, v, true
	}
	if len(fields) < 2 {
		return fields[0], "", true
	}
	return fields[0], fields[1], true
}

var (
	stepPrefixRe = regexp.MustCompile(`^run_\d+_`)
	chunkIndexRe = regexp.MustCompile(`_\d+$`)
)

// StepName derives the human-readable step label from a script path:
// "run_05_invert_igram_0.job" becomes "invert_igram". Scripts outside the
// run_NN naming scheme keep their base name without the extension.
func StepName(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), ".job")
	if stepPrefixRe.MatchString(name) {
		name = stepPrefixRe.ReplaceAllString(name, "")
		name = chunkIndexRe.ReplaceAllString(name, "")
	}
	return name
}

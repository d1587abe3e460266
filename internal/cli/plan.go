package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/geodesymiami/minsar-sub000/internal/catalog"
	"github.com/geodesymiami/minsar-sub000/internal/planner"
	"github.com/geodesymiami/minsar-sub000/internal/walltime"
	"github.com/geodesymiami/minsar-sub000/pkg/model"
)

func newPlanCmd() *cobra.Command {
	var (
		flagStart   string
		flagStop    string
		flagStep    string
		flagJobFile string
	)

	cmd := &cobra.Command{
		Use:   "plan [workdir]",
		Short: "Show the job groups a run would submit, without submitting",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workDir, err := resolveWorkDir(args)
			if err != nil {
				return err
			}

			cat := catalog.New(workDir)
			if cfg.Queue != "" {
				cat.Defaults.QueueClass = cfg.Queue
			}

			p := planner.New(cat, cat.Aliases, logger)
			groups, err := p.Plan(planner.Request{
				Start:   model.ParseStepSelector(flagStart),
				Stop:    model.ParseStepSelector(flagStop),
				Only:    model.ParseStepSelector(flagStep),
				JobFile: flagJobFile,
			})
			if err != nil {
				return err
			}

			if len(groups) == 0 {
				fmt.Println("Nothing to run.")
				return nil
			}

			fmt.Printf("%-10s  %-6s  %-6s  %-10s  %s\n", "GROUP", "JOBS", "TASKS", "WALLTIME", "QUEUE")
			for _, sel := range groups {
				units, err := cat.Expand(sel)
				if err != nil {
					return err
				}
				tasks := 0
				queues := map[string]bool{}
				longest := units[0].RequestedWalltime
				for _, u := range units {
					tasks += u.TaskCount
					queues[u.QueueClass] = true
					if u.RequestedWalltime > longest {
						longest = u.RequestedWalltime
					}
				}
				fmt.Printf("%-10s  %-6d  %-6d  %-10s  %s\n",
					sel.Label(), len(units), tasks, walltime.Format(longest), queueList(queues))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flagStart, "start", "", "First step to plan (number or stage name)")
	cmd.Flags().StringVar(&flagStop, "stop", "", "Last step to plan (number or stage name)")
	cmd.Flags().StringVar(&flagStep, "step", "", "Plan exactly one step (number or stage name)")
	cmd.Flags().StringVar(&flagJobFile, "job-file", "", "Plan a single job script instead of a step range")

	return cmd
}

// queueList renders the set of queues a group spans, comma-separated in
// stable order.
func queueList(queues map[string]bool) string {
	keys := make([]string, 0, len(queues))
	for q := range queues {
		keys = append(keys, q)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

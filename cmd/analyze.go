package main

import (
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/visibility-cli/internal/engine"
)

var analyzeLocation string

var analyzeCmd = &cobra.Command{
	Use:   "analyze <domain-id>",
	Short: "Run a visibility analysis for one domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		domainID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid domain id %q", args[0])
		}

		if err := cfg.Validate("analyze"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Engine.Prepare(ctx, domainID)
		if err != nil {
			return err
		}
		run.OverrideLocation(analyzeLocation)

		sink := engine.SinkFunc(func(ev engine.Event) {
			switch ev.Type {
			case engine.EventProgress:
				fmt.Printf("[%5.1f%%] %s\n", ev.Progress.Progress, ev.Progress.Message)
			case engine.EventResult:
				r := ev.Result.Result
				tag := ""
				if ev.Result.Cached {
					tag = " (cached)"
				}
				fmt.Printf("[%5.1f%%] %s phrase %d: presence=%d overall=%.0f%s\n",
					ev.Result.Percent, r.Model, r.PhraseID, r.Scores.Presence, r.Scores.Overall, tag)
			case engine.EventStats:
				s := ev.Stats
				fmt.Printf("         stats: %d results, presence %.1f%%, avg overall %.1f\n",
					s.TotalResults, s.Overall.PresenceRate, s.Overall.AvgOverall)
			case engine.EventError:
				fmt.Printf("         error: %s\n", ev.Error.Message)
			case engine.EventComplete:
				c := ev.Complete
				fmt.Printf("done: %d units, %d fresh, %d cached\n",
					c.TotalUnits, c.FreshResults, c.CachedReplay)
			}
		})

		return run.Execute(ctx, sink)
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeLocation, "location", "", "override the domain's stored location for this run")
	rootCmd.AddCommand(analyzeCmd)
}

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/filebus-org/go-filebus/pkg/bus"
	"github.com/filebus-org/go-filebus/pkg/types"
)

var publishCmd = &cobra.Command{
	Use:   "publish <dir> <source> <type> <priority> [payload]",
	Short: "Write an event into the queue",
	Args:  cobra.RangeArgs(4, 5),
	RunE: func(cmd *cobra.Command, args []string) error {
		priority, err := types.ParsePriority(args[3])
		if err != nil {
			return fmt.Errorf("%v: %w", err, bus.ErrInvalidArgs)
		}
		payload := ""
		if len(args) == 5 {
			payload = args[4]
		}

		windowSec, _ := cmd.Flags().GetInt("dedup-window")
		window := time.Duration(windowSec) * time.Second
		if windowSec == 0 {
			// Fall back to the queue's config.yaml when the flag is
			// unset; errors there surface, silence would hide typos.
			cfg, err := bus.LoadConfig(args[0])
			if err != nil {
				return err
			}
			window = cfg.DedupWindow
		}

		name, err := bus.PublishDedup(args[0], args[1], args[2], priority, payload, window)
		if err != nil {
			return err
		}
		fmt.Println(name)
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <dir>",
	Short: "List pending events, most urgent first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, _ := cmd.Flags().GetString("handle")
		events, err := bus.Check(args[0], source)
		if err != nil {
			return err
		}
		nowMicros := time.Now().UnixMicro()
		for _, ev := range events {
			fmt.Printf("[%s] %s (%s)\n",
				ev.Priority, ev.Filename, bus.FormatAge(nowMicros-ev.TimestampMicros))
		}
		return nil
	},
}

var readCmd = &cobra.Command{
	Use:   "read <dir> <event-file>",
	Short: "Print one event file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := bus.ReadEvent(args[0], args[1])
		if err != nil {
			return err
		}
		os.Stdout.Write(data)
		return nil
	},
}

var ackCmd = &cobra.Command{
	Use:   "ack <dir> <event-file>",
	Short: "Acknowledge an event (move to processed/)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return bus.Ack(args[0], args[1])
	},
}

var ackAllCmd = &cobra.Command{
	Use:   "ack-all <dir>",
	Short: "Acknowledge all pending events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, _ := cmd.Flags().GetString("handle")
		acked, err := bus.AckAll(args[0], source)
		if err != nil {
			return err
		}
		fmt.Printf("Acknowledged %d event%s\n", acked, plural(acked))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <dir>",
	Short: "Summarise pending and processed events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := bus.QueueStatus(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Pending: %d total", st.Pending)
		if st.Pending > 0 {
			fmt.Printf(" (critical=%d, high=%d, normal=%d, low=%d)",
				st.ByPriority[types.PriorityCritical],
				st.ByPriority[types.PriorityHigh],
				st.ByPriority[types.PriorityNormal],
				st.ByPriority[types.PriorityLow])
		}
		fmt.Println()
		if st.OldestMicros > 0 {
			oldest := time.UnixMicro(st.OldestMicros).UTC()
			fmt.Printf("Oldest pending: %s (%s)\n",
				oldest.Format("2006-01-02T15:04:05Z"),
				bus.FormatAge(time.Now().UnixMicro()-st.OldestMicros))
		}
		fmt.Printf("Processed: %d events (%.1f KB)\n",
			st.ProcessedCount, float64(st.ProcessedBytes)/1024.0)
		if st.Stale > 0 {
			fmt.Printf("WARNING: %d stale event%s pending past the ack timeout\n",
				st.Stale, plural(st.Stale))
		}
		return nil
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune <dir>",
	Short: "Delete old processed events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		maxBytes, _ := cmd.Flags().GetInt64("max-bytes")
		if days > 0 && maxBytes > 0 {
			return fmt.Errorf("--days and --max-bytes are mutually exclusive: %w",
				bus.ErrInvalidArgs)
		}

		var res *bus.PruneResult
		var err error
		if days > 0 {
			res, err = bus.PruneAge(args[0], time.Duration(days)*24*time.Hour)
		} else {
			if maxBytes <= 0 {
				cfg, cfgErr := bus.LoadConfig(args[0])
				if cfgErr != nil {
					return cfgErr
				}
				maxBytes = cfg.RetentionMaxBytes
			}
			res, err = bus.PruneBytes(args[0], maxBytes)
		}
		if err != nil {
			return err
		}
		fmt.Printf("Pruned %d event%s (%.1f KB remaining)\n",
			res.Pruned, plural(res.Pruned), float64(res.RemainingBytes)/1024.0)
		return nil
	},
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func init() {
	publishCmd.Flags().Int("dedup-window", 0, "drop if the same source:type is pending within N seconds")
	checkCmd.Flags().String("handle", "", "only list events from this source")
	ackAllCmd.Flags().String("handle", "", "only acknowledge events from this source")
	pruneCmd.Flags().Int("days", 0, "delete processed events older than N days")
	pruneCmd.Flags().Int64("max-bytes", 0, "delete oldest processed events beyond this total size")

	rootCmd.AddCommand(publishCmd, checkCmd, readCmd, ackCmd, ackAllCmd, statusCmd, pruneCmd)
}

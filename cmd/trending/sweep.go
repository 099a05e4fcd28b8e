package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/d60-Lab/trending/internal/model"
	"github.com/d60-Lab/trending/internal/scheduler"
)

var sweepTypes []string

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one reindex + evict pass and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		var opts []scheduler.Option
		if len(sweepTypes) > 0 {
			types := make([]model.ItemType, 0, len(sweepTypes))
			for _, s := range sweepTypes {
				t, ok := model.ParseItemType(s)
				if !ok {
					return fmt.Errorf("unknown item type %q", s)
				}
				types = append(types, t)
			}
			opts = append(opts, scheduler.WithItemTypes(types...))
		}

		sched, err := a.Scheduler(opts...)
		if err != nil {
			return err
		}
		results, runErr := sched.RunOnce(ctx)
		out, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return runErr
	},
}

func init() {
	sweepCmd.Flags().StringSliceVarP(&sweepTypes, "type", "t", nil, "item types to sweep (default: all)")
}

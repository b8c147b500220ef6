package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"go.miragespace.co/esmodule"

	"github.com/spf13/cobra"
)

func newRunCmd(c *cli) *cobra.Command {
	var (
		call  string
		async bool
	)

	cmd := &cobra.Command{
		Use:   "run <entry>",
		Short: "Evaluate an entry module from the configured source",
		Long: `Evaluate an entry module from the configured source. With --call, the
expression is evaluated in the scope of the entry module and its result is
printed as JSON. Otherwise the names of the entry exports are printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rc, err := c.cfg.RuntimeConfig(c.logger)
			if err != nil {
				return err
			}

			rt, err := esmodule.NewRuntime(c.logger, rc)
			if err != nil {
				return err
			}
			defer rt.Stop(true)

			ctx := cmd.Context()
			if err := rt.LoadEntry(ctx, args[0], false); err != nil {
				return err
			}

			if call == "" {
				exports, err := rt.Exports(ctx)
				if err != nil {
					return err
				}
				names := make([]string, 0, len(exports))
				for name := range exports {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}

			var result any
			if async {
				result, err = rt.CallAsync(ctx, call)
			} else {
				result, err = rt.Call(ctx, call)
			}
			if err != nil {
				return err
			}

			b, err := json.Marshal(result)
			if err != nil {
				return fmt.Errorf("result is not serializable: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}

	cmd.Flags().StringVar(&call, "call", "", "expression to evaluate after loading the entry")
	cmd.Flags().BoolVar(&async, "async", false, "await the promise returned by --call")

	return cmd
}

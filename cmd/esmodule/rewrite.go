package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"go.miragespace.co/esmodule/rewrite"
	"go.miragespace.co/esmodule/transpile"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newRewriteCmd(c *cli) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "rewrite <files...>",
		Short: "Rewrite module files into scripts",
		Long: `Rewrite module files into scripts. Use - to read from stdin. Without --out-dir
the results are written to stdout in argument order.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.cfg.Rewriter(c.logger)
			if err != nil {
				return err
			}

			results := make([]string, len(args))

			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(runtime.NumCPU())
			for i, name := range args {
				g.Go(func() error {
					source, err := readModule(ctx, cmd.InOrStdin(), name)
					if err != nil {
						return fmt.Errorf("%s: %w", name, err)
					}

					out, err := r.Rewrite(source, c.cfg.LoaderSymbol, c.cfg.ExportsSymbol)
					if err != nil {
						return fmt.Errorf("%s: %w", name, err)
					}

					results[i] = out
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			for i, name := range args {
				if outDir == "" {
					if len(args) > 1 {
						fmt.Fprintf(cmd.OutOrStdout(), "// %s\n", name)
					}
					fmt.Fprint(cmd.OutOrStdout(), results[i])
					continue
				}

				target := filepath.Join(outDir, outputName(name))
				if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
					return err
				}
				if err := os.WriteFile(target, []byte(results[i]), 0o644); err != nil {
					return err
				}
				c.logger.Info("Module rewritten", zap.String("module", name), zap.String("output", target))
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out-dir", "", "write results into this directory instead of stdout")

	return cmd
}

func readModule(ctx context.Context, stdin io.Reader, name string) (string, error) {
	var (
		raw []byte
		err error
	)
	if name == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(name)
	}
	if err != nil {
		return "", err
	}

	source := rewrite.NormalizeNewLines(string(raw))
	if transpile.IsTypescript(name) {
		return transpile.TranspileTypescript(ctx, strings.NewReader(source))
	}
	return source, nil
}

func outputName(name string) string {
	if name == "-" {
		return "stdin.js"
	}
	if transpile.IsTypescript(name) {
		name = strings.TrimSuffix(name, filepath.Ext(name)) + ".js"
	}
	return filepath.Clean(strings.TrimPrefix(filepath.ToSlash(name), "../"))
}

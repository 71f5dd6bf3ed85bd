package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/radio-control/rigd/internal/adapter"
	"github.com/radio-control/rigd/internal/audit"
	"github.com/radio-control/rigd/internal/config"
)

func execCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <tokens...>",
		Short: "Send one raw rigctl command and print the reply",
		Example: "  rigd exec f\n" +
			"  rigd exec F 14074000",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			// Keep stdout for the reply.
			if cfg.Logging.Output != "file" {
				cfg.Logging.Output = "stderr"
			}
			return execRaw(cmd.Context(), cfg, args, cmd.OutOrStdout())
		},
	}
}

func execRaw(ctx context.Context, cfg *config.Config, tokens []string, out io.Writer) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx = audit.WithActor(ctx, "cli")
	res, err := a.orchestrator.Raw(ctx, strings.Join(tokens, " "))
	if err != nil {
		if code := adapter.CodeOf(err); code != nil {
			return fmt.Errorf("%v: %s", code, adapter.DetailOf(err))
		}
		return err
	}
	if v := res.Value(); v != nil {
		_, err = fmt.Fprintln(out, v)
	}
	return err
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/idxstore/internal/boundary"
	"github.com/roach88/idxstore/internal/ir"
)

// EstimateResult is the storage estimate reported by the backend.
type EstimateResult struct {
	Backend    string  `json:"backend"`
	QuotaBytes int64   `json:"quota_bytes"`
	UsageBytes int64   `json:"usage_bytes"`
	QuotaMB    float64 `json:"quota_mb"`
	UsageMB    float64 `json:"usage_mb"`
}

// NewEstimateCommand creates the estimate command.
func NewEstimateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Report storage quota and usage",
		Long: `Open the configured backend and report its storage quota and an
estimate of the bytes in use.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEstimate(rootOpts, cmd)
		},
	}
	return cmd
}

func runEstimate(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	s, err := openSession(cmd.Context(), opts, ir.DatabaseSpec{}, false)
	if err != nil {
		return err
	}
	defer s.close()

	est, err := s.manager.StorageEstimate(cmd.Context())
	if err != nil {
		return formatter.Fail(ExitCommandError, string(boundary.CodeOf(err)), err.Error())
	}

	result := EstimateResult{
		Backend:    opts.Config.Backend,
		QuotaBytes: est.QuotaBytes,
		UsageBytes: est.UsageBytes,
		QuotaMB:    est.QuotaMB(),
		UsageMB:    est.UsageMB(),
	}
	if formatter.JSON() {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "%s: %.2f MB used of %.2f MB\n", result.Backend, result.UsageMB, result.QuotaMB)
	return nil
}

package cli

import (
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/kurun/runcheck/internal/output"
	"github.com/kurun/runcheck/internal/version"
	rcerr "github.com/kurun/runcheck/pkg/errors"
)

const defaultVersionTimeout = 10 * time.Second

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var versionCheck bool

//nolint:gochecknoglobals // Tests point the checker at a fake release server
var newVersionChecker = func(userAgent string) *version.Checker {
	return version.NewChecker(userAgent)
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the build version. With --check, also look up the latest release.`,
	Args:  cobra.NoArgs,
	RunE:  runVersion,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "check for a newer release")
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	w := cmd.OutOrStdout()
	if !versionCheck {
		return cc.Emit(w, buildInfo, func(w io.Writer) error {
			outln(w, "runcheck "+formatVersion(buildInfo))
			return nil
		})
	}

	userAgent := "runcheck-cli"
	if cc != nil && cc.Cfg != nil && cc.Cfg.API.UserAgent != "" {
		userAgent = cc.Cfg.API.UserAgent
	}
	ctx, cancel := contextWithTimeout(cmd, defaultVersionTimeout)
	defer cancel()

	info, err := newVersionChecker(userAgent).Check(ctx, buildInfo.Version)
	if err != nil {
		return rcerr.WithCause(rcerr.ErrNetworkError, err)
	}

	return cc.Emit(w, info, func(w io.Writer) error {
		outln(w, "runcheck "+formatVersion(buildInfo))
		if info.IsNewer {
			output.Infof(w, "A newer release is available: %s (%s)", info.Latest, info.URL)
		} else {
			output.Success(w, "You are running the latest release")
		}
		return nil
	})
}

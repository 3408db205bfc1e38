// Package cmd holds the vpw-tool commands.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kstaniek/go-vpw-gateway/internal/gpio"
	"github.com/kstaniek/go-vpw-gateway/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "vpw-tool",
	Short: "J1850 VPW bus toolbox",
	Long: `Compute frame CRCs, inspect pulse trains, sniff the bus and send
frames, either on GPIO pins or on a simulated bus.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		lvl, ok := logging.ParseLevel(logLevel)
		if !ok {
			return fmt.Errorf("invalid log-level: %s", logLevel)
		}
		logging.Set(logging.New("text", lvl, cmd.ErrOrStderr()))
		if noColor {
			color.NoColor = true
		}
		return nil
	},
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, red("error: %v", err))
	}
	return err
}

var (
	backend  string
	gpioRoot string
	rxPin    int
	txPin    int
	rxInvert bool
	txInvert bool
	strict   bool
	logLevel string
	noColor  bool
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&backend, "backend", "b", "gpio", "bus backend: gpio|sim")
	pf.StringVar(&gpioRoot, "gpio-root", gpio.DefaultRoot, "sysfs GPIO directory")
	pf.IntVar(&rxPin, "rx-pin", 17, "GPIO number reading the bus")
	pf.IntVar(&txPin, "tx-pin", 27, "GPIO number driving the bus")
	pf.BoolVar(&rxInvert, "rx-invert", false, "bus reads Active when the rx pin is low")
	pf.BoolVar(&txInvert, "tx-invert", false, "drive the tx pin low to make the bus Active")
	pf.BoolVar(&strict, "strict", false, "treat out of window pulses as bus errors")
	pf.StringVar(&logLevel, "log-level", "warn", "log level: debug|info|warn|error")
	pf.BoolVar(&noColor, "no-color", false, "disable colored output")
}

var (
	yellow = color.New(color.FgHiYellow).SprintfFunc()
	red    = color.New(color.FgRed).SprintfFunc()
	green  = color.New(color.FgGreen).SprintfFunc()
)

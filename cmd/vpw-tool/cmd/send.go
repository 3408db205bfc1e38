package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kstaniek/go-vpw-gateway/internal/j1850"
	"github.com/kstaniek/go-vpw-gateway/internal/vpw"
)

var (
	sendAppendCRC bool
	sendRepeat    int
	sendInterval  time.Duration
	sendTrace     bool
)

func init() {
	rootCmd.AddCommand(sendCmd)
	f := sendCmd.Flags()
	f.BoolVar(&sendAppendCRC, "append-crc", true, "append the CRC byte to each frame")
	f.IntVarP(&sendRepeat, "repeat", "r", 1, "send the frame list this many times")
	f.DurationVarP(&sendInterval, "interval", "i", 50*time.Millisecond, "pause between frames")
	f.BoolVar(&sendTrace, "trace", false, "print the driven waveform (sim backend only)")
}

var sendCmd = &cobra.Command{
	Use:   "send <frame>...",
	Short: "Transmit frames on the bus",
	Long: `Transmit frames given as hex strings, one frame per argument:

  vpw-tool send "68 6A F1 01 00" "686AF10100"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var list []j1850.Frame
		for _, a := range args {
			f, err := parseFrame([]string{a})
			if err != nil {
				return fmt.Errorf("%q: %w", a, err)
			}
			if sendAppendCRC {
				if f, err = f.AppendCRC(); err != nil {
					return fmt.Errorf("%q: %w", a, err)
				}
			}
			list = append(list, f)
		}
		b, err := openBus(sendTrace)
		if err != nil {
			return err
		}
		defer b.close()
		if err := b.x.Init(); err != nil {
			return err
		}
		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		failed := 0
		for r := 0; r < sendRepeat; r++ {
			for i, f := range list {
				if r > 0 || i > 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(sendInterval):
					}
				}
				if err := b.x.Transmit(ctx, f.Bytes()); err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					failed++
					fmt.Fprintln(out, red("%-35s %s: %v", f, vpw.Kind(err), err))
					continue
				}
				fmt.Fprintln(out, green("%-35s sent", f))
			}
		}
		if sendTrace && b.sim != nil {
			t := b.x.Table()
			for _, p := range b.sim.Waveform() {
				fmt.Fprintf(out, "%s %v\n", p.Level, t.Duration(p.Ticks))
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d transmissions failed", failed, sendRepeat*len(list))
		}
		return nil
	},
}

package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kstaniek/go-vpw-gateway/internal/vpw"
)

var encodeAppendCRC bool

func init() {
	rootCmd.AddCommand(encodeCmd)
	encodeCmd.Flags().BoolVar(&encodeAppendCRC, "append-crc", false, "append the CRC byte before encoding")
}

var encodeCmd = &cobra.Command{
	Use:   "encode <hex bytes>",
	Short: "Print the VPW pulse train of a frame",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := parseFrame(args)
		if err != nil {
			return err
		}
		if encodeAppendCRC {
			if f, err = f.AppendCRC(); err != nil {
				return err
			}
		}
		t := vpw.DefaultTable
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		var total vpw.Ticks
		for i, p := range t.Encode(f.Bytes()) {
			fmt.Fprintf(tw, "%d\t%s\t%v\t%s\n", i, p.Level, t.Duration(p.Ticks), symbol(t, i, p))
			total += p.Ticks
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d bytes, %v on the wire\n", f, f.Len, t.Duration(total))
		return nil
	},
}

// symbol names pulse i of an encoded frame from its measured class.
func symbol(t vpw.Table, i int, p vpw.Pulse) string {
	c := t.ClassifyPulse(p.Level, p.Ticks)
	switch {
	case i == 0 && c == vpw.SOF:
		return "sof"
	case c != vpw.Short && c != vpw.Long:
		return "eof"
	}
	v := 0
	if (p.Level == vpw.Active) == (c == vpw.Short) {
		v = 1
	}
	return fmt.Sprintf("byte %d bit %d = %d", (i-1)/8, 7-(i-1)%8, v)
}

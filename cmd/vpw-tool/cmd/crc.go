package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kstaniek/go-vpw-gateway/internal/j1850"
)

var crcCheck bool

func init() {
	rootCmd.AddCommand(crcCmd)
	crcCmd.Flags().BoolVarP(&crcCheck, "check", "c", false, "verify that the last byte is the CRC of the rest")
}

var crcCmd = &cobra.Command{
	Use:   "crc <hex bytes>",
	Short: "Compute the CRC byte of a frame",
	Example: `  vpw-tool crc 68 6A F1 01 00
  vpw-tool crc --check "68 6A F1 01 00 17"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := parseFrame(args)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if crcCheck {
			if !f.CheckCRC() {
				want := j1850.CRC8(f.Bytes()[:f.Len-1])
				return fmt.Errorf("crc mismatch: got %02X want %02X", f.Data[f.Len-1], want)
			}
			fmt.Fprintln(out, green("%s ok", f))
			return nil
		}
		g, err := f.AppendCRC()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%02X\n", g.Data[g.Len-1])
		fmt.Fprintln(out, g)
		return nil
	},
}

package cmd

import (
	"errors"

	"github.com/pyneda/xsslab/pkg/encoding"

	"github.com/spf13/cobra"
)

var encodeEncoder string
var encodeDecode bool
var encodeList bool
var encodeFile string

var encodeCmd = &cobra.Command{
	Use:   "encode [payload...]",
	Short: "Encode or decode payloads with a registered encoder or chain",
	Example: `  xsslab encode "<script>alert(1)</script>" -e html_entities+url
  xsslab encode --decode -e base64 "eval(atob('YWxlcnQoMSk='))"
  xsslab encode --list`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if encodeList {
			return printStrings(cmd, "Encoder", encoding.List())
		}
		inputs := args
		if encodeFile != "" {
			lines, err := readLines(encodeFile)
			if err != nil {
				return err
			}
			inputs = append(inputs, lines...)
		}
		if len(inputs) == 0 {
			return errors.New("at least one payload or --file is required")
		}

		op := encoding.EncodeAll
		if encodeDecode {
			op = encoding.DecodeAll
		}
		out, err := op(encodeEncoder, inputs)
		if err != nil {
			return err
		}
		return printStrings(cmd, encodeEncoder, out)
	},
}

func init() {
	rootCmd.AddCommand(encodeCmd)
	encodeCmd.Flags().StringVarP(&encodeEncoder, "encoder", "e", encoding.URL, "Encoder name, or names joined with + to chain them")
	encodeCmd.Flags().BoolVarP(&encodeDecode, "decode", "d", false, "Decode instead of encode")
	encodeCmd.Flags().BoolVar(&encodeList, "list", false, "List the registered encoders")
	encodeCmd.Flags().StringVar(&encodeFile, "file", "", "Read payloads from a file, one per line (- for stdin)")
}

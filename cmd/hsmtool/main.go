// hsmtool derives card credentials offline against the same mock HSM the
// server runs. Useful for seeding test data and debugging terminal
// integrations. The key must match ISSUER_HSM_KEY on the server for the
// outputs to agree.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"issuer-core/internal/hsm"
)

func main() {
	var key string

	root := &cobra.Command{
		Use:           "hsmtool",
		Short:         "Derive card credentials against the mock HSM",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&key, "key", "dev-only-hsm-key", "HSM master key")

	mod := func() *hsm.Module { return hsm.New(key) }

	root.AddCommand(
		&cobra.Command{
			Use:   "pvv <pan> <pin>",
			Short: "Derive the PIN verification value",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				pvv, err := mod().DerivePVV(args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Println(pvv)
				return nil
			},
		},
		&cobra.Command{
			Use:   "cvv <pan> <expiry> [serviceCode]",
			Short: "Derive CVV (or CVV2 when no service code is given)",
			Args:  cobra.RangeArgs(2, 3),
			RunE: func(cmd *cobra.Command, args []string) error {
				if len(args) == 3 {
					fmt.Println(mod().GenerateCVV(args[0], args[1], args[2]))
				} else {
					fmt.Println(mod().GenerateCVV2(args[0], args[1]))
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "icvv <pan> <sequenceNumber>",
			Short: "Derive the chip CVV",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				fmt.Println(mod().GenerateICVV(args[0], args[1]))
				return nil
			},
		},
		&cobra.Command{
			Use:   "sessionkey <masterKeyName> <pan>",
			Short: "Derive session key material",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				fmt.Println(mod().DeriveSessionKey(args[0], args[1]))
				return nil
			},
		},
		&cobra.Command{
			Use:   "arqc <pan> <nonce>",
			Short: "Generate a request cryptogram",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				arqc, err := mod().GenerateARQC(args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Println(arqc)
				return nil
			},
		},
		&cobra.Command{
			Use:   "arpc <arqc> <responseCode>",
			Short: "Generate the response cryptogram for an ARQC",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				fmt.Println(mod().GenerateARPC(args[0], args[1]))
				return nil
			},
		},
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"nespdf/internal/document"
	"nespdf/pkg/contract"
)

func (a *app) verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file.pdf>",
		Short: "Re-parse a produced PDF and check its cross-reference table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return fail(exitConfig, fmt.Errorf("%w: %w", contract.ErrInputMissing, err))
			}
			p, err := document.Verify(b)
			if err != nil {
				return fail(exitRuntime, fmt.Errorf("%s: %w", args[0], err))
			}
			fmt.Fprintf(a.stdout, "ok %s: %d objects, xref size %d, root %d, startxref %d, id %s\n",
				args[0], p.InUse(), p.Size, p.Root, p.StartXref, p.ID)
			return nil
		},
	}
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cmdq/protocol"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "cmdq %s\n", protocol.Version)
			return err
		},
	}
}

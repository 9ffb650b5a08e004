package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of mailwatch",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("mailwatch version %s\n", version)
		},
	}
}

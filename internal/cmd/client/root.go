package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs a root Cobra command holding the queue command group.
func NewRoot(open TransportFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "zpoll",
		Short: "zpoll client commands",
	}
	root.AddCommand(NewQueueCommand(open))
	return root
}

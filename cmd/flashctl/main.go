// Command flashctl inspects and prepares raw flash devices: it resolves
// geometry, scans for bad blocks, erases, writes clean markers, programs page
// images and can serve a device to remote clients.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/moffa90/go-flashdev/protocol"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	glog.Flush()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts targetOptions

	root := &cobra.Command{
		Use:           "flashctl",
		Short:         "Raw flash device management",
		Long:          "Resolve geometry, scan bad blocks, erase, write clean markers and program images on raw NAND flash",
		Version:       "wire protocol " + protocol.ProtocolVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			// glog reads its settings from the standard flag set.
			return flag.CommandLine.Parse(nil)
		},
	}

	root.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	opts.register(root.PersistentFlags())

	root.AddCommand(
		newInfoCmd(&opts),
		newIsBadCmd(&opts),
		newScanCmd(&opts),
		newEraseCmd(&opts),
		newCleanMarkersCmd(&opts),
		newWriteCmd(&opts),
		newReadCmd(&opts),
		newServeCmd(&opts),
	)

	return root
}

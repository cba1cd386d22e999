// Handles the "s3stream ranges" command

package main

import (
	"fmt"

	"github.com/bitrise-io/go-s3stream/chunker"
	"github.com/docker/go-units"
	"github.com/spf13/cobra"
)

var rangesCmd = &cobra.Command{
	Use:   "ranges size",
	Short: "Print the parts an object of the given size is transferred in",
	Long: `Prints the byte ranges a download of an object of the given size requests,
which are also the parts an upload of the same size is split into. The size may
have a unit, e.g. 6MiB or 5TiB.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		size, err := units.RAMInBytes(args[0])
		if err != nil {
			return fmt.Errorf("invalid size %s: %w", args[0], err)
		}
		if size < 0 {
			return fmt.Errorf("invalid size %s: must not be negative", args[0])
		}

		c, err := partChunker()
		if err != nil {
			return err
		}

		ranges := chunker.Split(c, size)
		for i, r := range ranges {
			logger.Printf("%5d %s (%s)", i+1, r, humanSize(r.Size()))
		}

		if len(ranges) > chunker.MaxPartCount {
			logger.Warnf("%d parts, more than the %d S3 accepts", len(ranges), chunker.MaxPartCount)
			return nil
		}
		logger.Donef("%d parts", len(ranges))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rangesCmd)
}

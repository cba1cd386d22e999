// Handles the "s3stream get" command

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/bitrise-io/go-s3stream/internal/transfer"
	"github.com/bitrise-io/go-s3stream/s3stream"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var getCmd = &cobra.Command{
	Use:   "get s3://bucket/key [destination]",
	Short: "Download an object",
	Long: `Downloads the object as a sequence of ranged GETs, several of them in flight,
and writes it to the destination file or to the standard output if the destination
is missing or "-".`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := parseObject(args[0])
		if err != nil {
			return err
		}

		destination := "-"
		if len(args) == 2 {
			destination = args[1]
		}
		toStdout := destination == "-"
		// The object takes the standard output, every log line moves to the standard error.
		logger = commandLogger(toStdout, viper.GetBool("verbose"))

		c, err := partChunker()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		s3Client, err := newClient(ctx, src.Bucket)
		if err != nil {
			return err
		}

		var dst io.Writer = os.Stdout
		if !toStdout {
			f, err := os.Create(destination)
			if err != nil {
				return fmt.Errorf("create %s: %w", destination, err)
			}
			defer f.Close() //nolint:errcheck
			dst = f
		}

		logger.Infof("Downloading %s", src)
		result, err := transfer.Download(ctx, s3Client, dst, transfer.DownloadParams{
			Bucket:     src.Bucket,
			Key:        src.Key,
			Decompress: viper.GetBool("zstd"),
			Options: []func(*s3stream.ReaderOptions){func(o *s3stream.ReaderOptions) {
				o.Parallelism = viper.GetInt("parallelism")
				o.Chunker = c
			}},
		}, logger)
		if err != nil {
			return err
		}

		if toStdout {
			logger.Donef("Downloaded %s (%d parts)", humanSize(result.Bytes), result.Parts)
			if viper.GetBool("digest") {
				logger.Printf("blake3: %s", result.Digest)
			}
			return nil
		}

		if err := dst.(*os.File).Close(); err != nil {
			return fmt.Errorf("close %s: %w", destination, err)
		}

		logger.Donef("Downloaded %s (%d parts) to %s", humanSize(result.Bytes), result.Parts, destination)
		if viper.GetBool("digest") {
			logger.Printf("blake3: %s", result.Digest)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(getCmd)

	getCmd.Flags().Bool("zstd", false, "zstd decompress the object")
}

// Handles the "s3stream put" command

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bitrise-io/go-s3stream/internal/transfer"
	"github.com/bitrise-io/go-s3stream/s3stream"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const zstdExtension = ".zst"

var putCmd = &cobra.Command{
	Use:   "put source... s3://bucket/key",
	Short: "Upload files or the standard input",
	Long: `Uploads every source as a multipart upload, several parts in flight.

A source of "-" uploads the standard input. Sources may be glob patterns, ** matches
any number of directories. With more than one source file the target has to be a
prefix ending with /, every file is uploaded below it by its base name.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sources, dst := args[:len(args)-1], args[len(args)-1]

		t, err := parseTarget(dst)
		if err != nil {
			return err
		}

		c, err := partChunker()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		s3Client, err := newClient(ctx, t.Bucket)
		if err != nil {
			return err
		}

		params := transfer.UploadParams{
			Bucket:           t.Bucket,
			Compress:         viper.GetBool("zstd"),
			CompressionLevel: viper.GetInt("compression-level"),
			ContentType:      viper.GetString("content-type"),
			Options: []func(*s3stream.WriterOptions){func(o *s3stream.WriterOptions) {
				o.Parallelism = viper.GetInt("parallelism")
				o.Chunker = c
			}},
		}

		if len(sources) == 1 && sources[0] == "-" {
			if t.isPrefix() {
				return fmt.Errorf("invalid target %s: the standard input needs an object key", t)
			}
			params.Key = t.Key
			return upload(cmd, s3Client, os.Stdin, "stdin", params)
		}

		evaluator := transfer.NewPathEvaluator(logger, pathutil.NewPathModifier(), pathutil.NewPathChecker())
		paths, err := evaluator.Evaluate(sources)
		if err != nil {
			return fmt.Errorf("evaluate sources: %w", err)
		}
		if len(paths) == 0 {
			return errors.New("no source file found")
		}
		if len(paths) > 1 && !t.isPrefix() {
			return fmt.Errorf("invalid target %s: uploading %d files needs a prefix ending with /", t, len(paths))
		}

		for _, path := range paths {
			key := t.Key
			if t.isPrefix() {
				key = t.join(path).Key
				if params.Compress {
					key += zstdExtension
				}
			}

			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open %s: %w", path, err)
			}

			params.Key = key
			err = upload(cmd, s3Client, f, path, params)
			if closeErr := f.Close(); closeErr != nil {
				logger.Warnf("Failed to close %s: %s", path, closeErr)
			}
			if err != nil {
				return err
			}
		}

		return nil
	},
}

func upload(cmd *cobra.Command, s3Client s3stream.UploadAPIClient, src io.Reader, name string, params transfer.UploadParams) error {
	dst := target{Bucket: params.Bucket, Key: params.Key}
	logger.Infof("Uploading %s to %s", name, dst)

	result, err := transfer.Upload(cmd.Context(), s3Client, src, params, logger)
	if err != nil {
		return err
	}

	logger.Donef("Uploaded %s (%d parts), ETag: %s", humanSize(result.Bytes), result.Parts, result.ETag)
	if viper.GetBool("digest") {
		logger.Printf("blake3: %s", result.Digest)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(putCmd)

	putCmd.Flags().Bool("zstd", false, "zstd compress the data before uploading it")
	putCmd.Flags().Int("compression-level", transfer.DefaultCompressionLevel, "zstd compression level (1-19)")
	putCmd.Flags().String("content-type", "", "content type of the uploaded objects")
}

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bitrise-io/go-s3stream/chunker"
	"github.com/bitrise-io/go-s3stream/client"
	"github.com/bitrise-io/go-s3stream/s3stream"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix       = "S3STREAM"
	bootstrapRegion = "us-east-1"
)

var (
	cfgFile string
	logger  = log.NewLogger()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "s3stream",
	Short: "Stream large objects to and from S3",
	Long: `Downloads objects as parallel ranged GETs and uploads data of unknown size as
parallel multipart uploads, without staging anything on disk.

Every flag can also be set in the config file or with an S3STREAM_ prefixed
environment variable, e.g. S3STREAM_REGION.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(cmd); err != nil {
			return err
		}
		logger.EnableDebugLog(viper.GetBool("verbose"))
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.String("region", "", "bucket region, resolved from the bucket if empty")
	flags.String("endpoint", "", "custom S3 endpoint URL")
	flags.Bool("path-style", false, "use path style addressing")
	flags.String("access-key-id", "", "AWS access key ID, the default credential chain is used if empty")
	flags.String("secret-access-key", "", "AWS secret access key")
	flags.Int("retries", 0, "retries of a failed request (0 for the default, -1 to disable)")
	flags.IntP("parallelism", "p", s3stream.DefaultParallelism(), "number of parts transferred at the same time")
	flags.String("part-size", "", "fixed part size, e.g. 8MiB (growing part sizes if empty)")
	flags.Bool("digest", false, "print the BLAKE3 digest of the transferred data")
	flags.BoolP("verbose", "v", false, "enable debug logs")
}

func initConfig(cmd *cobra.Command) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file %s: %w", cfgFile, err)
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	return viper.BindPFlags(cmd.Flags())
}

func clientConfig(region string) client.Config {
	return client.Config{
		Region:          region,
		AccessKeyID:     viper.GetString("access-key-id"),
		SecretAccessKey: viper.GetString("secret-access-key"),
		Endpoint:        viper.GetString("endpoint"),
		UsePathStyle:    viper.GetBool("path-style"),
		RetryMax:        viper.GetInt("retries"),
	}
}

// newClient creates a client for the region of bucket.
func newClient(ctx context.Context, bucket string) (*s3.Client, error) {
	region := viper.GetString("region")
	if region != "" {
		return client.New(ctx, clientConfig(region), logger)
	}

	bootstrap, err := client.New(ctx, clientConfig(bootstrapRegion), logger)
	if err != nil {
		return nil, err
	}
	region, err = client.ResolveRegion(ctx, bootstrap, bucket)
	if err != nil {
		return nil, err
	}
	logger.Debugf("Bucket %s is in %s", bucket, region)

	return client.New(ctx, clientConfig(region), logger)
}

// partChunker returns the chunker selected by the part-size flag.
func partChunker() (chunker.Chunker, error) {
	partSize := viper.GetString("part-size")
	if partSize == "" {
		return chunker.Default(), nil
	}

	size, err := units.RAMInBytes(partSize)
	if err != nil {
		return nil, fmt.Errorf("invalid part size %s: %w", partSize, err)
	}
	if size < 1 || size > chunker.MaxPartSize {
		return nil, fmt.Errorf("part size must be between 1 and %s", units.BytesSize(float64(chunker.MaxPartSize)))
	}
	return chunker.Fixed(size), nil
}

func humanSize(n int64) string {
	return units.HumanSizeWithPrecision(float64(n), 3)
}

package main

import (
	"fmt"
	"os"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/filedrop-io/go-uploadutils/fileselect"
	"github.com/filedrop-io/go-uploadutils/uploader"
	"github.com/filedrop-io/go-uploadutils/uploader/network"
)

const (
	modeWholeFile = "whole-file"
	modeChunked   = "chunked"

	transportHTTP = "http"
	transportS3   = "s3"
)

var uploadCmd = &cobra.Command{
	Use:   "upload [paths...]",
	Short: "Upload the given files or glob patterns",
	Long: `Upload the given files to the configured endpoint.

In whole-file mode (the default) every matched file is uploaded concurrently
as a single request. In chunked mode only the FIRST matched file is uploaded,
split into sequential chunks of --chunk-size bytes.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().String("endpoint", "http://localhost:8080", "backend base URL")
	uploadCmd.Flags().String("mode", modeWholeFile, "upload mode: whole-file or chunked")
	uploadCmd.Flags().String("chunk-size", units.BytesSize(float64(uploader.DefaultChunkSize)), "chunk size in chunked mode, e.g. 50KB or 1MB")
	uploadCmd.Flags().Int("concurrency", 0, "max concurrent uploads in whole-file mode, 0 for unbounded")
	uploadCmd.Flags().String("transport", transportHTTP, "whole-file transport: http or s3")
	uploadCmd.Flags().String("s3-bucket", "", "S3 bucket (s3 transport)")
	uploadCmd.Flags().String("s3-region", "", "S3 region (s3 transport)")
	uploadCmd.Flags().String("s3-prefix", "", "S3 object key prefix (s3 transport)")

	for _, key := range []string{"endpoint", "mode", "chunk-size", "concurrency", "transport", "s3-bucket", "s3-region", "s3-prefix"} {
		_ = viper.BindPFlag(key, uploadCmd.Flags().Lookup(key))
	}

	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	logger := log.NewLogger()
	verbose, _ := cmd.Flags().GetBool("verbose")
	logger.EnableDebugLog(verbose)

	endpoint := viper.GetString("endpoint")
	mode := viper.GetString("mode")

	chunkSize, err := units.RAMInBytes(viper.GetString("chunk-size"))
	if err != nil {
		return fmt.Errorf("invalid chunk size: %w", err)
	}

	selector := fileselect.NewSelector(logger)
	files, err := selector.Expand(args)
	if err != nil {
		return fmt.Errorf("resolve paths: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no files matched the given paths")
	}

	listing := network.NewListingClient(endpoint, nil, logger)

	cfg := uploader.Config{
		ChunkSize:      chunkSize,
		MaxConcurrency: viper.GetInt("concurrency"),
		Refresh:        listing.Refresh,
		Logger:         logger,
		OnSuccess: func() {
			logger.Println()
			logger.Donef("Upload finished")
		},
		OnFail: func(message string) {
			logger.Println()
			logger.Errorf(message)
		},
	}

	var session *uploader.Session
	switch mode {
	case modeChunked:
		if len(files) > 1 {
			logger.Warnf("Chunked mode uploads a single file, using the first of %d matches: %s", len(files), files[0].Name())
		}
		bar := newChunkProgressBar(files[0].Name())
		cfg.OnProgress = func(percent int) {
			_ = bar.Set(percent)
		}
		transport := network.NewChunkUploader(network.ChunkUploaderConfig{BaseURL: endpoint}, logger)
		session = uploader.NewChunked(transport, cfg)
	case modeWholeFile:
		transport, err := wholeFileTransport(logger)
		if err != nil {
			return err
		}
		logger.Infof("Uploading %d files", len(files))
		session = uploader.NewWholeFile(transport, cfg)
	default:
		return fmt.Errorf("unknown mode: %s", mode)
	}

	if err := session.Select(files); err != nil {
		return err
	}
	if err := session.Submit(createContext()); err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	session.Flush()

	printListing(logger, listing.Latest())
	return nil
}

func wholeFileTransport(logger log.Logger) (uploader.FileTransport, error) {
	switch viper.GetString("transport") {
	case transportS3:
		bucket := viper.GetString("s3-bucket")
		if bucket == "" {
			return nil, fmt.Errorf("--s3-bucket is required with the s3 transport")
		}
		return network.NewS3Uploader(network.S3UploadParams{
			Region:    viper.GetString("s3-region"),
			Bucket:    bucket,
			KeyPrefix: viper.GetString("s3-prefix"),
		}, logger), nil
	case transportHTTP:
		return network.NewFileUploader(network.FileUploaderConfig{BaseURL: viper.GetString("endpoint")}, logger), nil
	default:
		return nil, fmt.Errorf("unknown transport: %s", viper.GetString("transport"))
	}
}

func newChunkProgressBar(fileName string) *progressbar.ProgressBar {
	return progressbar.NewOptions(100,
		progressbar.OptionSetDescription(fmt.Sprintf("Uploading %s", fileName)),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetWidth(50),
		progressbar.OptionShowCount(),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(false),
	)
}

func printListing(logger log.Logger, files []network.RemoteFile) {
	if len(files) == 0 {
		return
	}
	logger.Println()
	logger.Infof("Files on the server:")
	for _, file := range files {
		logger.Printf("  %s (%s)", file.Name, units.HumanSizeWithPrecision(float64(file.Size), 3))
	}
}

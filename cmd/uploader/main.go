// Command uploader is a demo front end for the upload engine: it uploads
// local files to the reference backend (whole-file or chunked) and can run
// the backend itself.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "uploader",
	Short: "Upload files to a remote endpoint, whole or in chunks",
	Long: `uploader transfers locally selected files to a remote endpoint.

In whole-file mode every selected file is sent as one request, all files
concurrently. In chunked mode a single file is split into sequential, ordered
chunks that the backend stitches back together.

Usage:
  Upload files:     uploader upload ./docs/**/*.pdf
  Upload one file:  uploader upload --mode chunked ./backup.tar
  Run the backend:  uploader serve --dir ./uploads`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.uploader.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")

	viper.SetEnvPrefix("UPLOADER")
	viper.AutomaticEnv()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return
		}
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".uploader")
	}

	viper.AutomaticEnv()

	// Missing config file is fine, flags and env cover everything.
	_ = viper.ReadInConfig()
}

// createContext creates a context that cancels on interrupt signals.
func createContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	return ctx
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

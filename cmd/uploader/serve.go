package main

import (
	"fmt"
	"net/http"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/filedrop-io/go-uploadutils/uploadserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reference upload backend",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "listen address")
	serveCmd.Flags().String("dir", "./uploads", "directory for stored uploads")

	_ = viper.BindPFlag("addr", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("dir", serveCmd.Flags().Lookup("dir"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := log.NewLogger()
	verbose, _ := cmd.Flags().GetBool("verbose")
	logger.EnableDebugLog(verbose)

	server, err := uploadserver.New(uploadserver.Config{StoreDir: viper.GetString("dir")}, logger)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	addr := viper.GetString("addr")
	logger.Infof("Listening on %s, storing uploads in %s", addr, viper.GetString("dir"))

	httpServer := &http.Server{Addr: addr, Handler: server.Handler()}

	ctx := createContext()
	go func() {
		<-ctx.Done()
		logger.Infof("Shutting down")
		_ = httpServer.Close()
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

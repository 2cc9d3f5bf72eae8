package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/f-sync/followdiff/internal/insights"
	"github.com/f-sync/followdiff/internal/server"
	"github.com/f-sync/followdiff/internal/store"
)

const (
	commandUse                  = "server"
	commandShortDescription     = "Serve the following/followers analysis API over HTTP"
	envPrefix                   = "FOLLOWDIFF_SERVER"
	sharedGeminiKeyEnv          = "FOLLOWDIFF_GEMINI_API_KEY"
	flagHostName                = "host"
	flagHostDescription         = "Host interface for the HTTP server"
	flagPortName                = "port"
	flagPortDescription         = "Port for the HTTP server"
	flagDatabaseName            = "database"
	flagDatabaseDescription     = "Path to the SQLite database holding imported connections"
	flagGeminiKeyName           = "gemini-api-key"
	flagGeminiKeyDescription    = "Gemini API key; the rule based summary is used when empty"
	flagGeminiModelName         = "gemini-model"
	flagGeminiModelDescription  = "Gemini model used for insights"
	flagFoldCaseName            = "fold-case"
	flagFoldCaseDescription     = "Lower-case usernames when importing"
	flagConfigName              = "config"
	flagConfigDescription       = "Optional configuration file"
	defaultHost                 = "127.0.0.1"
	defaultPort                 = 8080
	defaultDatabasePath         = "followdiff.db"
	shutdownTimeout             = 5 * time.Second
	errMessageLoggerCreate      = "create logger"
	errMessageReadConfig        = "read configuration file"
	errMessageStoreOpen         = "open store"
	errMessageSummarizerCreate  = "create summarizer"
	errMessageListenAndServe    = "listen and serve"
	errMessageShutdown          = "shutdown"
	logMessageSummarizerChoice  = "initializing insight summarizer"
	logMessageStartingServer    = "starting HTTP server"
	logMessageShuttingDown      = "shutting down HTTP server"
	logMessageServerStopped     = "server stopped"
	logMessageListenError       = "server listen failure"
	logMessageStoreCloseFailure = "store close failure"
	logFieldAddress             = "address"
	logFieldDatabase            = "database"
	logFieldGeminiEnabled       = "gemini_enabled"
)

func main() {
	cobra.CheckErr(newServerCommand().Execute())
}

func newServerCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   commandUse,
		Short: commandShortDescription,
		RunE:  runServerCommand,
	}

	command.Flags().String(flagHostName, defaultHost, flagHostDescription)
	command.Flags().Int(flagPortName, defaultPort, flagPortDescription)
	command.Flags().String(flagDatabaseName, defaultDatabasePath, flagDatabaseDescription)
	command.Flags().String(flagGeminiKeyName, "", flagGeminiKeyDescription)
	command.Flags().String(flagGeminiModelName, insights.DefaultGeminiModel, flagGeminiModelDescription)
	command.Flags().Bool(flagFoldCaseName, false, flagFoldCaseDescription)
	command.Flags().String(flagConfigName, "", flagConfigDescription)

	for _, flagName := range []string{flagHostName, flagPortName, flagDatabaseName, flagGeminiKeyName, flagGeminiModelName, flagFoldCaseName, flagConfigName} {
		bindFlagToViper(command, flagName)
	}
	cobra.CheckErr(viper.BindEnv(flagGeminiKeyName, envName(flagGeminiKeyName), sharedGeminiKeyEnv))

	cobra.OnInitialize(configureEnvironment)

	return command
}

func bindFlagToViper(command *cobra.Command, flagName string) {
	cobra.CheckErr(viper.BindPFlag(flagName, command.Flags().Lookup(flagName)))
}

func envName(flagName string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

func configureEnvironment() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func readConfigFile() error {
	configPath := viper.GetString(flagConfigName)
	if configPath == "" {
		return nil
	}
	viper.SetConfigFile(configPath)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("%s: %w", errMessageReadConfig, err)
	}
	return nil
}

func runServerCommand(command *cobra.Command, _ []string) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageLoggerCreate, err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := readConfigFile(); err != nil {
		return err
	}

	executionContext, stop := signal.NotifyContext(command.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	databasePath := viper.GetString(flagDatabaseName)
	connectionStore, err := store.Open(executionContext, databasePath)
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageStoreOpen, err)
	}
	defer func() {
		if closeErr := connectionStore.Close(); closeErr != nil {
			logger.Warn(logMessageStoreCloseFailure, zap.Error(closeErr))
		}
	}()

	geminiAPIKey := viper.GetString(flagGeminiKeyName)
	logger.Info(logMessageSummarizerChoice, zap.Bool(logFieldGeminiEnabled, geminiAPIKey != ""))
	summarizer, err := insights.NewSummarizer(executionContext, insights.Config{
		GeminiAPIKey: geminiAPIKey,
		GeminiModel:  viper.GetString(flagGeminiModelName),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageSummarizerCreate, err)
	}

	router, err := server.NewRouter(server.RouterConfig{
		Store:    connectionStore,
		Insights: insights.NewService(summarizer, logger),
		Logger:   logger,
		FoldCase: viper.GetBool(flagFoldCaseName),
	})
	if err != nil {
		return err
	}

	host := viper.GetString(flagHostName)
	port := viper.GetInt(flagPortName)
	address := fmt.Sprintf("%s:%d", host, port)
	logger.Info(logMessageStartingServer, zap.String(logFieldAddress, address), zap.String(logFieldDatabase, databasePath))

	httpServer := &http.Server{Addr: address, Handler: router}
	serveErrors := make(chan error, 1)
	go func() {
		serveErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(logMessageListenError, zap.Error(err))
			return fmt.Errorf("%s: %w", errMessageListenAndServe, err)
		}
	case <-executionContext.Done():
		logger.Info(logMessageShuttingDown)
		shutdownContext, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownContext); err != nil {
			return fmt.Errorf("%s: %w", errMessageShutdown, err)
		}
	}

	logger.Info(logMessageServerStopped)
	return nil
}

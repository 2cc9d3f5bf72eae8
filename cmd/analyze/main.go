package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/f-sync/followdiff/internal/insights"
)

const (
	commandUse                 = "analyze"
	commandShortDescription    = "Compare an Instagram following export with a followers export"
	envPrefix                  = "FOLLOWDIFF_ANALYZE"
	sharedGeminiKeyEnv         = "FOLLOWDIFF_GEMINI_API_KEY"
	flagFollowingName          = "following"
	flagFollowingDescription   = "Path to the following export"
	flagFollowersName          = "followers"
	flagFollowersDescription   = "Path to the followers export"
	flagFormatName             = "format"
	flagFormatDescription      = "Report format: text or json"
	flagListName               = "list"
	flagListDescription        = "List to print: following, followers, not-following-back, fans or mutual"
	flagSearchName             = "search"
	flagSearchDescription      = "Only print usernames containing this term, ignoring case"
	flagFoldCaseName           = "fold-case"
	flagFoldCaseDescription    = "Lower-case usernames before comparing"
	flagStoreName              = "store"
	flagStoreDescription       = "SQLite database to persist the imported sequences into"
	flagInsightsName           = "insights"
	flagInsightsDescription    = "Append a narrative summary of the statistics"
	flagGeminiKeyName          = "gemini-api-key"
	flagGeminiKeyDescription   = "Gemini API key; the rule based summary is used when empty"
	flagGeminiModelName        = "gemini-model"
	flagGeminiModelDescription = "Gemini model used for insights"
	flagWatchName              = "watch"
	flagWatchDescription       = "Re-run whenever either input file changes"
	flagConfigName             = "config"
	flagConfigDescription      = "Optional configuration file"
	defaultFormat              = "text"
	errMessageLoggerCreate     = "create logger"
	errMessageReadConfig       = "read configuration file"
	watchSeparator             = "\n---\n"
	logMessageWatching         = "watching inputs for changes"
	logMessageInputChanged     = "input changed"
	logMessageRunFailed        = "analysis failed"
	logMessageWatchError       = "watch error"
)

func main() {
	cobra.CheckErr(newAnalyzeCommand().Execute())
}

func newAnalyzeCommand() *cobra.Command {
	command := &cobra.Command{
		Use:          commandUse,
		Short:        commandShortDescription,
		SilenceUsage: true,
		RunE:         runAnalyzeCommand,
	}

	command.Flags().String(flagFollowingName, "", flagFollowingDescription)
	command.Flags().String(flagFollowersName, "", flagFollowersDescription)
	command.Flags().String(flagFormatName, defaultFormat, flagFormatDescription)
	command.Flags().String(flagListName, "", flagListDescription)
	command.Flags().String(flagSearchName, "", flagSearchDescription)
	command.Flags().Bool(flagFoldCaseName, false, flagFoldCaseDescription)
	command.Flags().String(flagStoreName, "", flagStoreDescription)
	command.Flags().Bool(flagInsightsName, false, flagInsightsDescription)
	command.Flags().String(flagGeminiKeyName, "", flagGeminiKeyDescription)
	command.Flags().String(flagGeminiModelName, insights.DefaultGeminiModel, flagGeminiModelDescription)
	command.Flags().Bool(flagWatchName, false, flagWatchDescription)
	command.Flags().String(flagConfigName, "", flagConfigDescription)

	for _, flagName := range []string{
		flagFollowingName, flagFollowersName, flagFormatName, flagListName, flagSearchName, flagFoldCaseName,
		flagStoreName, flagInsightsName, flagGeminiKeyName, flagGeminiModelName, flagWatchName, flagConfigName,
	} {
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

func configurationFromViper() AnalyzeConfiguration {
	return AnalyzeConfiguration{
		FollowingPath: viper.GetString(flagFollowingName),
		FollowersPath: viper.GetString(flagFollowersName),
		Format:        viper.GetString(flagFormatName),
		List:          viper.GetString(flagListName),
		Search:        viper.GetString(flagSearchName),
		FoldCase:      viper.GetBool(flagFoldCaseName),
		StorePath:     viper.GetString(flagStoreName),
		Insights:      viper.GetBool(flagInsightsName),
		GeminiAPIKey:  viper.GetString(flagGeminiKeyName),
		GeminiModel:   viper.GetString(flagGeminiModelName),
	}
}

func runAnalyzeCommand(command *cobra.Command, _ []string) error {
	logger, err := zap.NewDevelopment()
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

	configuration := configurationFromViper()
	application := NewAnalyzeApplicationWithDependencies(AnalyzeDependencies{
		Logger: logger,
		Stdout: command.OutOrStdout(),
	})
	if err := application.Run(executionContext, configuration); err != nil {
		return err
	}
	if !viper.GetBool(flagWatchName) {
		return nil
	}
	return watchAndRerun(executionContext, application, configuration, command.OutOrStdout(), logger)
}

// watchAndRerun repeats the analysis after every input change until ctx is cancelled.
// Failed runs are logged and do not stop the loop.
func watchAndRerun(executionContext context.Context, application AnalyzeApplication, configuration AnalyzeConfiguration, stdout io.Writer, logger *zap.Logger) error {
	watcher, err := newInputWatcher(configuration.FollowingPath, configuration.FollowersPath)
	if err != nil {
		return err
	}
	defer watcher.Close()

	logger.Info(logMessageWatching,
		zap.String(flagFollowingName, configuration.FollowingPath),
		zap.String(flagFollowersName, configuration.FollowersPath))

	for {
		select {
		case <-executionContext.Done():
			return nil
		case path, ok := <-watcher.Changes:
			if !ok {
				return nil
			}
			logger.Info(logMessageInputChanged, zap.String(logFieldPath, path))
			_, _ = io.WriteString(stdout, watchSeparator)
			if err := application.Run(executionContext, configuration); err != nil {
				logger.Error(logMessageRunFailed, zap.Error(err))
			}
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn(logMessageWatchError, zap.Error(watchErr))
		}
	}
}

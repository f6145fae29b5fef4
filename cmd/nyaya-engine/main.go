// nyaya-engine serves the contract review engine as a JSON-RPC 2.0 process
// over stdio. The host application spawns it and exchanges line-framed
// messages; configuration comes from flags, NYAYA_* environment variables,
// and an optional .env file.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"nyaya/engine/internal/appdirs"
	"nyaya/engine/internal/engine"
	"nyaya/engine/internal/envfile"
	"nyaya/engine/internal/errinfo"
	"nyaya/engine/internal/logging"
	"nyaya/engine/internal/rpc"
)

var rootCmd = &cobra.Command{
	Use:   "nyaya-engine",
	Short: "Contract risk negotiation engine over stdio JSON-RPC",
	Long: `nyaya-engine decodes risk-annotated contracts, runs adversarial
debate negotiations over flagged clauses, and assembles the final draft.
It speaks line-framed JSON-RPC 2.0 on stdin/stdout and pushes negotiation
events as notifications.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "write debug logs under the data directory")
	rootCmd.PersistentFlags().String("data-dir", "", "override the engine data directory")
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	viper.SetEnvPrefix("NYAYA")
	viper.AutomaticEnv()
}

func serve() error {
	envResult := envfile.Load()
	if dataDir := viper.GetString("data_dir"); dataDir != "" {
		os.Setenv("NYAYA_DATA_DIR", dataDir)
	}
	debug := viper.GetBool("debug")
	dataDir, err := appdirs.DataDir()
	if err != nil {
		return err
	}
	logSetup, logErr := logging.NewFileLogger(dataDir, debug)
	logger := logSetup.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.With("component", "engine")
	if logSetup.Enabled {
		logger.Info("engine.logging_enabled", "path", logSetup.Path)
	}
	if envResult.Loaded {
		logger.Debug("engine.env_loaded", "path", envResult.Path, "keys", envResult.Keys)
	}
	if envResult.Err != nil {
		logger.Warn("engine.env_load_failed", "path", envResult.Path, "error", envResult.Err.Error())
	}
	if logErr != nil {
		logger.Warn("engine.log_setup_failed", "error", logErr.Error())
	}
	if logSetup.Close != nil {
		defer logSetup.Close()
	}

	eng, err := engine.New(engine.WithLogger(logger))
	if err != nil {
		logger.Error("engine.init_failed", "error", err.Error())
		return err
	}
	server := rpc.NewServer(engine.APIVersion, os.Stdin, os.Stdout, logger)
	eng.SetNotifier(server.Notify)

	register := func(method string, fn func(context.Context, json.RawMessage) (any, *errinfo.ErrorInfo)) {
		server.Register(method, func(ctx context.Context, params json.RawMessage) (any, *rpc.Error) {
			result, errInfo := fn(ctx, params)
			if errInfo != nil {
				return nil, rpc.ErrorFrom(errInfo)
			}
			return result, nil
		})
	}

	register("EngineGetInfo", eng.EngineGetInfo)

	register("ProvidersGetStatus", eng.ProvidersGetStatus)
	register("ProvidersSetApiKey", eng.ProvidersSetApiKey)
	register("ProvidersClearApiKey", eng.ProvidersClearApiKey)
	register("ProvidersValidate", eng.ProvidersValidate)
	register("ProvidersSetEnabled", eng.ProvidersSetEnabled)

	register("SettingsGetDebateRounds", eng.SettingsGetDebateRounds)
	register("SettingsSetDebateRounds", eng.SettingsSetDebateRounds)

	register("SessionCreate", eng.SessionCreate)
	register("SessionGet", eng.SessionGet)
	register("SessionClose", eng.SessionClose)

	register("NegotiationStart", eng.NegotiationStart)
	register("NegotiationCancel", eng.NegotiationCancel)
	register("NegotiationGetState", eng.NegotiationGetState)
	register("EntrySetDecision", eng.EntrySetDecision)

	register("DraftGenerate", eng.DraftGenerate)
	register("DraftGetTextDiff", eng.DraftGetTextDiff)

	if err := server.Serve(context.Background()); err != nil {
		logger.Error("rpc.server_error", "error", err.Error())
		return err
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("nyaya-engine: %v", err)
	}
}

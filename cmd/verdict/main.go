package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/verdict/internal/profile"
	"github.com/hrygo/verdict/server"
	"github.com/hrygo/verdict/server/service/evaluation"
	"github.com/hrygo/verdict/store"
	"github.com/hrygo/verdict/store/db"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "verdict",
	Short: "Multi-tier evaluation of multi-agent executions.",
	Long: `verdict records multi-agent execution traces and scores finished executions
with three tiers: text similarity against references, an LLM quality judge and
graph analysis of agent and tool interactions. The tiers are folded into one
composite score and an accept / weak_accept / weak_reject / reject verdict.`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return setupLogger(viper.GetString("log-level"))
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the recording and evaluation HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		instanceProfile, err := loadProfile()
		if err != nil {
			return err
		}
		config, err := loadEvaluationConfig()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		storeInstance, err := openStore(ctx, instanceProfile)
		if err != nil {
			return err
		}
		s, err := server.NewServer(ctx, instanceProfile, storeInstance, config)
		if err != nil {
			storeInstance.Close()
			return errors.Wrap(err, "failed to create server")
		}

		c := make(chan os.Signal, 1)
		// Trigger graceful shutdown on SIGINT or SIGTERM.
		// The default signal sent by the `kill` command is SIGTERM,
		// which is taken as the graceful shutdown signal for many systems, eg., Kubernetes, Gunicorn.
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)

		if err := s.Start(ctx); err != nil {
			s.Shutdown(ctx)
			return errors.Wrap(err, "failed to start server")
		}
		printGreetings(cmd, instanceProfile, s.Addr())

		<-c
		s.Shutdown(ctx)
		return nil
	},
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 8088)
	viper.SetDefault("log-level", "info")

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8088, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver (sqlite or postgres)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name")
	rootCmd.PersistentFlags().String("config", "", "evaluation config file (yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	for _, name := range []string{"mode", "addr", "port", "data", "driver", "dsn", "config", "log-level"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("verdict")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	rootCmd.AddCommand(serveCmd, evaluateCmd, executionsCmd, traceCmd, demoCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogger(level string) error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return errors.Wrapf(err, "invalid log level %q", level)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
	return nil
}

func loadProfile() (*profile.Profile, error) {
	instanceProfile := &profile.Profile{
		Mode:    viper.GetString("mode"),
		Addr:    viper.GetString("addr"),
		Port:    viper.GetInt("port"),
		Data:    viper.GetString("data"),
		Driver:  viper.GetString("driver"),
		DSN:     viper.GetString("dsn"),
		Version: version,
	}
	instanceProfile.FromEnv()
	if err := instanceProfile.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid profile")
	}
	return instanceProfile, nil
}

// loadEvaluationConfig reads the "evaluation" section of the config file over the defaults.
func loadEvaluationConfig() (evaluation.Config, error) {
	config := evaluation.DefaultConfig()
	path := viper.GetString("config")
	if path == "" {
		return config, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return config, errors.Wrapf(err, "failed to read config %s", path)
	}
	if err := v.UnmarshalKey("evaluation", &config); err != nil {
		return config, errors.Wrapf(err, "failed to decode config %s", path)
	}
	return config, nil
}

func openStore(ctx context.Context, instanceProfile *profile.Profile) (*store.Store, error) {
	dbDriver, err := db.NewDBDriver(instanceProfile)
	if err != nil {
		return nil, err
	}
	storeInstance := store.New(dbDriver, instanceProfile)
	if err := storeInstance.Migrate(ctx); err != nil {
		storeInstance.Close()
		return nil, errors.Wrap(err, "failed to migrate")
	}
	return storeInstance, nil
}

func printGreetings(cmd *cobra.Command, p *profile.Profile, addr string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "verdict %s started successfully!\n", p.Version)
	fmt.Fprintf(out, "Data directory: %s\nDatabase driver: %s\n", p.Data, p.Driver)
	fmt.Fprintf(out, "Listening on http://%s\n", addr)
}

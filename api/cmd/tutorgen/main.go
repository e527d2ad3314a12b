package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"tutor-dpo/api/internal/config"
)

var (
	v          = config.New()
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "tutorgen",
	Short:         "Synthesize tutoring dialogues and preference pairs with LLM agents",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(v, configPath)
		if err != nil {
			return err
		}
		cfg = c
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "config file (default tutorgen.yaml in ./config or .)")
	pf.String("provider", "ollama", "LLM provider: ollama, gemini or gpt")
	pf.String("endpoint", "http://127.0.0.1:11434", "Ollama endpoint")
	pf.Duration("timeout", 600*time.Second, "per-call timeout")
	pf.Float64("rps", 0, "max backend calls per second across all agents (0 = unlimited)")
	pf.String("model", "", "model for every role, overriding per-role config")
	pf.String("dsn", "", "optional SQL key store: postgres://... or sqlite://path")
	pf.String("prompts", "", "directory overriding the built-in prompt templates")
	pf.String("log-level", "info", "debug, info, warn or error")
	pf.String("log-format", "console", "console or json")
	pf.String("log-file", "", "also write JSON logs to this file")

	bind(pf, "provider", "backend.provider")
	bind(pf, "endpoint", "backend.endpoint")
	bind(pf, "timeout", "backend.timeout")
	bind(pf, "rps", "backend.rps")
	bind(pf, "dsn", "store.dsn")
	bind(pf, "prompts", "prompts.dir")
	bind(pf, "log-level", "log.level")
	bind(pf, "log-format", "log.format")
	bind(pf, "log-file", "log.file")
	for _, role := range []string{"student", "tutor_at", "tutor_as", "translator", "preference"} {
		bind(pf, "model", "models."+role)
	}

	rootCmd.AddCommand(dcCmd, dpCmd, filterCmd, translateCmd)
}

// bind lets a changed flag override the viper key.
func bind(fs *pflag.FlagSet, name, key string) {
	if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
		panic(fmt.Sprintf("bind %s: %v", name, err))
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "tutorgen:", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"tutor-dpo/api/internal/checkpoint"
	"tutor-dpo/api/internal/config"
	"tutor-dpo/api/internal/dataset"
	"tutor-dpo/api/internal/llm"
	"tutor-dpo/api/internal/llm/gemini"
	"tutor-dpo/api/internal/llm/gpt"
	"tutor-dpo/api/internal/llm/ollama"
	"tutor-dpo/api/internal/logging"
	"tutor-dpo/api/internal/notify"
	"tutor-dpo/api/internal/prompt"
	"tutor-dpo/api/internal/rubric"
	"tutor-dpo/api/internal/store"
	"tutor-dpo/api/internal/validate"
)

// app holds what every subcommand shares: logger, prompts, backends and the
// optional key store and notifier.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	closeLog func() error
	prompts  *prompt.Set
	engines  *llm.Engines
	limiter  *rate.Limiter
	db       *sql.DB
	notifier notify.Notifier
	started  time.Time
}

func newApp(ctx context.Context, cfg *config.Config, command string) (*app, error) {
	log, closeLog, err := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return nil, err
	}
	log = log.With().Str("command", command).Logger()

	prompts, err := prompt.Load(cfg.Prompts.Dir)
	if err != nil {
		closeLog()
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		log:      log,
		closeLog: closeLog,
		prompts:  prompts,
		limiter:  llm.NewLimiter(cfg.Backend.RPS),
		notifier: notify.Noop{},
		started:  time.Now(),
	}
	a.engines = &llm.Engines{
		Ollama: func(model string) (llm.Backend, error) {
			return ollama.New(cfg.Backend.Endpoint, model), nil
		},
		Gemini: func(model string) (llm.Backend, error) {
			return gemini.New(cfg.Backend.GeminiAPIKey, model), nil
		},
		GPT: func(model string) (llm.Backend, error) {
			return gpt.New(cfg.Backend.OpenAIAPIKey, model), nil
		},
	}

	if cfg.Store.DSN != "" {
		db, err := store.Open(ctx, cfg.Store.DSN)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.db = db
	}

	if cfg.Notify.TelegramToken != "" {
		tg, err := notify.NewTelegram(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
		if err != nil {
			// a broken notifier never blocks a run
			log.Warn().Err(err).Msg("telegram notifier disabled")
		} else {
			a.notifier = tg
		}
	}
	return a, nil
}

// agent binds a role to the configured provider, model and temperature.
func (a *app) agent(role, model string, temperature float64) (llm.Agent, error) {
	b, err := a.engines.GetEngine(a.cfg.Backend.Provider, model)
	if err != nil {
		return llm.Agent{}, fmt.Errorf("%s backend: %w", role, err)
	}
	return llm.Agent{
		Role:        role,
		Backend:     llm.Throttle(b, a.limiter),
		Temperature: temperature,
		Timeout:     a.cfg.Backend.Timeout,
	}, nil
}

// validator uses the corrective instruction from the prompt set, so an
// override in the prompts dir reaches every retry.
func (a *app) validator(tables *rubric.Tables) *validate.Validator {
	return validate.New(tables,
		validate.WithMaxAttempts(a.cfg.Validation.MaxAttempts),
		validate.WithBackoff(a.cfg.Validation.Backoff),
		validate.WithCorrective(a.prompts.Raw(prompt.Corrective)),
		validate.WithLogger(a.log.With().Str("component", "validator").Logger()),
	)
}

// keys collects the ids already written to output, plus those recorded in
// the SQL store when one is configured.
func (a *app) keys(ctx context.Context, command, output string) (checkpoint.Keys, error) {
	fromFile, err := checkpoint.LoadKeys(output, checkpoint.DefaultField)
	if err != nil {
		return nil, err
	}
	a.log.Info().Int("keys", fromFile.Len()).Str("output", output).Msg("resuming from output")
	if a.db == nil {
		return fromFile, nil
	}
	abs, err := filepath.Abs(output)
	if err != nil {
		abs = output
	}
	repo, err := store.NewKeyRepo(ctx, a.db, command+":"+abs)
	if err != nil {
		return nil, err
	}
	a.log.Info().Int("keys", repo.Len()).Msg("resuming from key store")
	return checkpoint.Multi{fromFile, repo}, nil
}

// open opens the input and creates the locked output writer.
func (a *app) open(input, output string) (*os.File, *dataset.Writer, error) {
	in, err := os.Open(input)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open input: %w", dataset.ErrIO, err)
	}
	w, err := dataset.Create(output)
	if err != nil {
		in.Close()
		return nil, nil, err
	}
	return in, w, nil
}

// finish records the run and sends the summary. Neither can fail the run.
func (a *app) finish(ctx context.Context, command, input, output string, stats map[string]int, runErr error) {
	if a.db != nil {
		id, err := store.NewRunRepo(a.db).Insert(context.WithoutCancel(ctx), store.Run{
			Command: command, Input: input, Output: output, Stats: stats,
		})
		if err != nil {
			a.log.Warn().Err(err).Msg("run not recorded")
		} else {
			a.log.Debug().Str("run_id", id).Msg("run recorded")
		}
	}
	err := a.notifier.Notify(context.WithoutCancel(ctx), notify.Summary{
		Command: command,
		Input:   input,
		Output:  output,
		Stats:   stats,
		Elapsed: time.Since(a.started),
		Err:     runErr,
	})
	if err != nil {
		a.log.Warn().Err(err).Msg("run summary not sent")
	}
}

func (a *app) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn().Err(err).Msg("close store")
		}
	}
	if err := a.closeLog(); err != nil {
		fmt.Fprintln(os.Stderr, "close log file:", err)
	}
}

package main

import (
	"time"

	"github.com/spf13/cobra"

	"tutor-dpo/api/internal/checkpoint"
	"tutor-dpo/api/internal/dialogue"
	"tutor-dpo/api/internal/filter"
	"tutor-dpo/api/internal/orchestrator"
	"tutor-dpo/api/internal/preference"
	"tutor-dpo/api/internal/rubric"
	"tutor-dpo/api/internal/tutoring"
)

var dcCmd = &cobra.Command{
	Use:   "dc <seeds.jsonl> <dc.jsonl>",
	Short: "Generate tutoring conversations (Dc) from seed problems",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		input, output := args[0], args[1]

		a, err := newApp(ctx, cfg, "dc")
		if err != nil {
			return err
		}
		defer a.Close()

		student, err := a.agent("student", cfg.Models.Student, cfg.Temperature.Student)
		if err != nil {
			return err
		}
		at, err := a.agent("tutor_at", cfg.Models.TutorAT, cfg.Temperature.TutorAT)
		if err != nil {
			return err
		}
		as, err := a.agent("tutor_as", cfg.Models.TutorAS, cfg.Temperature.TutorAS)
		if err != nil {
			return err
		}

		tables := rubric.Default()
		validator := a.validator(tables)
		commit, _ := orchestrator.ParseCommitPolicy(cfg.Dialogue.CommitPolicy)

		opts := []orchestrator.Option{
			orchestrator.WithLogger(a.log.With().Str("component", "orchestrator").Logger()),
		}
		if cfg.Dialogue.ContextTokens > 0 {
			opts = append(opts, orchestrator.WithContextBuilder(dialogue.NewBuilder(
				dialogue.WithLabels(dialogue.SpanishLabels),
				dialogue.WithTokenBound(cfg.Dialogue.ContextTokens, &dialogue.TiktokenCounter{}),
			)))
		}
		if cfg.Translate.Enabled {
			tr, err := a.agent("translator", cfg.Models.Translator, cfg.Temperature.Translator)
			if err != nil {
				return err
			}
			opts = append(opts, orchestrator.WithTranslator(tutoring.NewTranslator(tr, a.prompts, a.log)))
		}

		o := orchestrator.New(
			orchestrator.Agents{Student: student, TutorAT: at, TutorAS: as},
			validator, a.prompts, tables,
			orchestrator.Config{
				MaxTurns:  cfg.Dialogue.MaxTurns,
				Commit:    commit,
				TurnPause: cfg.Dialogue.TurnPause,
			},
			opts...,
		)

		in, w, err := a.open(input, output)
		if err != nil {
			return err
		}
		defer in.Close()
		defer w.Close()
		keys, err := a.keys(ctx, "dc", output)
		if err != nil {
			return err
		}

		st, runErr := o.Run(ctx, in, w, orchestrator.RunOptions{Keys: keys})
		a.finish(ctx, "dc", input, output, st.Map(), runErr)
		return runErr
	},
}

var dpCmd = &cobra.Command{
	Use:   "dp <dc.jsonl> <dp.jsonl>",
	Short: "Build preference pairs (Dp) from generated conversations",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		input, output := args[0], args[1]

		a, err := newApp(ctx, cfg, "dp")
		if err != nil {
			return err
		}
		defer a.Close()

		agent, err := a.agent("preference", cfg.Models.Preference, cfg.Temperature.Preference)
		if err != nil {
			return err
		}
		name, _ := preference.ParseStrategy(cfg.Preference.Strategy)
		log := a.log.With().Str("component", "preference").Logger()

		var strategy preference.Strategy
		switch name {
		case preference.NameContrastive:
			mode, _ := dialogue.ParseMode(cfg.Preference.ContextMode)
			strategy = preference.NewContrastive(agent, a.prompts, mode, log)
		default:
			policy, _ := tutoring.ParsePolicy(cfg.Classify.Policy)
			strategy = preference.NewDivergence(
				tutoring.NewClassifier(agent, a.prompts, rubric.DefaultCurriculum(), policy, log),
				tutoring.NewSummarizer(agent, a.prompts),
				log,
			)
		}

		in, w, err := a.open(input, output)
		if err != nil {
			return err
		}
		defer in.Close()
		defer w.Close()
		keys, err := a.keys(ctx, "dp:"+name, output)
		if err != nil {
			return err
		}

		st, runErr := preference.NewBuilder(strategy, keys, log).Run(ctx, in, w)
		a.finish(ctx, "dp", input, output, st.Map(), runErr)
		return runErr
	},
}

var filterCmd = &cobra.Command{
	Use:   "filter <problems.jsonl> <seeds.jsonl>",
	Short: "Keep grade 3-5 problems and tag them with subject and objective",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		input, output := args[0], args[1]

		a, err := newApp(ctx, cfg, "filter")
		if err != nil {
			return err
		}
		defer a.Close()

		agent, err := a.agent("filter", cfg.Models.Translator, cfg.Temperature.Translator)
		if err != nil {
			return err
		}
		in, w, err := a.open(input, output)
		if err != nil {
			return err
		}
		defer in.Close()
		defer w.Close()

		f := filter.New(agent, a.prompts, rubric.DefaultCurriculum(), a.log)
		st, runErr := f.Run(ctx, in, w, checkpoint.ForOutput(output, cfg.Checkpoint.Every))
		a.finish(ctx, "filter", input, output, st.Map(), runErr)
		return runErr
	},
}

var translateSkip int

var translateCmd = &cobra.Command{
	Use:   "translate <in.jsonl> <out.jsonl>",
	Short: "Translate every string field to Spanish and add curriculum tags",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		input, output := args[0], args[1]

		a, err := newApp(ctx, cfg, "translate")
		if err != nil {
			return err
		}
		defer a.Close()

		tr, err := a.agent("translator", cfg.Models.Translator, cfg.Temperature.Translator)
		if err != nil {
			return err
		}
		aux, err := a.agent("preference", cfg.Models.Preference, cfg.Temperature.Preference)
		if err != nil {
			return err
		}
		policy, _ := tutoring.ParsePolicy(cfg.Classify.Policy)

		in, w, err := a.open(input, output)
		if err != nil {
			return err
		}
		defer in.Close()
		defer w.Close()

		e := &tutoring.Enricher{
			Translator: tutoring.NewTranslator(tr, a.prompts, a.log),
			Classifier: tutoring.NewClassifier(aux, a.prompts, rubric.DefaultCurriculum(), policy, a.log),
			Summarizer: tutoring.NewSummarizer(aux, a.prompts),
		}
		st, runErr := e.Run(ctx, in, w, translateSkip, checkpoint.ForOutput(output, cfg.Checkpoint.Every), a.log)
		a.finish(ctx, "translate", input, output, st.Map(), runErr)
		return runErr
	},
}

func init() {
	dcf := dcCmd.Flags()
	dcf.Int("max-turns", orchestrator.DefaultMaxTurns, "turns per conversation")
	dcf.String("commit", "stream", "commit policy: stream or atomic")
	dcf.Duration("turn-pause", 100*time.Millisecond, "pause after each turn before the next student utterance")
	dcf.Int("max-attempts", 5, "validator attempts per tutor response")
	dcf.Int("context-tokens", 0, "token bound on the tutor context (0 = unbounded)")
	dcf.Bool("translate", true, "translate generated text to Spanish")
	bind(dcf, "max-turns", "dialogue.max_turns")
	bind(dcf, "commit", "dialogue.commit_policy")
	bind(dcf, "turn-pause", "dialogue.turn_pause")
	bind(dcf, "max-attempts", "validate.max_attempts")
	bind(dcf, "context-tokens", "dialogue.context_tokens")
	bind(dcf, "translate", "translate.enabled")

	dpf := dpCmd.Flags()
	dpf.String("strategy", preference.NameDivergence, "divergence or contrastive")
	dpf.String("context-mode", string(dialogue.Summarized), "contrastive context: numbered or summarized")
	dpf.String("classify-policy", string(tutoring.DefaultOnParseFailure), "default-on-parse-failure or propagate-as-missing")
	bind(dpf, "strategy", "preference.strategy")
	bind(dpf, "context-mode", "preference.context_mode")
	bind(dpf, "classify-policy", "classify.policy")

	filterCmd.Flags().Int("every", checkpoint.DefaultEvery, "save the offset checkpoint every N lines")
	bind(filterCmd.Flags(), "every", "checkpoint.every")

	translateCmd.Flags().IntVar(&translateSkip, "skip", -1, "input lines to skip (default: resume from the offset checkpoint)")
}

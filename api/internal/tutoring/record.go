package tutoring

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"tutor-dpo/api/internal/checkpoint"
	"tutor-dpo/api/internal/dataset"
)

// Enricher translates every string value of a dataset row, tags it and adds
// a summary of its solution.
type Enricher struct {
	Translator Translator
	Classifier *Classifier
	Summarizer *Summarizer
}

// Enrich returns a new row; obj is not modified. Keys are kept as they are.
func (e *Enricher) Enrich(ctx context.Context, obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj)+3)
	for k, v := range obj {
		if s, ok := v.(string); ok && e.Translator != nil {
			out[k] = e.Translator.Translate(ctx, s)
			continue
		}
		out[k] = v
	}

	problem, _ := out["problem"].(string)
	solution, _ := out["generated_solution"].(string)

	if e.Classifier != nil {
		tags := e.Classifier.Classify(ctx, problem, solution)
		if tags.Area != "" {
			out["area_conocimiento"] = tags.Area
		}
		if tags.Objective != "" {
			out["objetivo_pedagogico"] = tags.Objective
		}
	}
	if e.Summarizer != nil {
		// a failed summary is recorded as empty
		sum, _ := e.Summarizer.Summarize(ctx, solution)
		out["generated_secondary_answer"] = sum
	}
	return out
}

type EnrichStats struct {
	Read      int
	Written   int
	Malformed int
}

func (s EnrichStats) Map() map[string]int {
	return map[string]int{"read": s.Read, "written": s.Written, "malformed": s.Malformed}
}

// Run enriches every row of r and appends the results to sink. Input lines
// below skip are not read; a negative skip resumes from off instead. off,
// when set, records consumed input lines, so rows that never reached the
// output are not counted against a rerun.
func (e *Enricher) Run(ctx context.Context, r io.Reader, sink dataset.Sink, skip int, off *checkpoint.Offset, log zerolog.Logger) (EnrichStats, error) {
	var st EnrichStats
	start := skip
	if start < 0 {
		start = 0
		if off != nil {
			n, err := off.Load()
			if err != nil {
				return st, err
			}
			start = n
		}
	}
	consumed := start

	bad := func(line int, err error) {
		if line < start {
			return
		}
		st.Malformed++
		log.Warn().Int("line", line).Err(err).Msg("skipping malformed row")
	}
	err := dataset.Decode(r, bad, func(line int, obj map[string]any) error {
		if line < start {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		st.Read++
		if err := sink.Append(e.Enrich(ctx, obj)); err != nil {
			return err
		}
		st.Written++
		consumed = line + 1
		if off != nil && off.Due(consumed) {
			return off.Save(consumed)
		}
		return nil
	})
	if err != nil {
		return st, err
	}
	if off != nil && consumed > start {
		if err := off.Save(consumed); err != nil {
			return st, err
		}
	}
	log.Info().Interface("stats", st.Map()).Msg("translation finished")
	return st, nil
}

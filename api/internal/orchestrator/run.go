package orchestrator

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"tutor-dpo/api/internal/checkpoint"
	"tutor-dpo/api/internal/dataset"
)

var conversationNS = uuid.NewSHA1(uuid.NameSpaceURL, []byte("tutor-dpo/conversation"))

// ConversationID derives a stable id from a seed's position and text, so a
// rerun over the same seed file recognises conversations it already wrote.
func ConversationID(line int, problem string) string {
	return uuid.NewSHA1(conversationNS, []byte(strconv.Itoa(line)+"\x00"+problem)).String()
}

// Stats summarises a batch run.
type Stats struct {
	Seeds     int
	Skipped   int
	Malformed int
	Completed int
	Aborted   int
	Turns     int
}

func (s Stats) Map() map[string]int {
	return map[string]int{
		"seeds":     s.Seeds,
		"skipped":   s.Skipped,
		"malformed": s.Malformed,
		"completed": s.Completed,
		"aborted":   s.Aborted,
		"turns":     s.Turns,
	}
}

type RunOptions struct {
	// Keys holds conversation ids already present in the output. Nil
	// disables key checkpointing.
	Keys checkpoint.Keys
	// Offset, when set, skips consumed seed lines and is saved periodically.
	Offset *checkpoint.Offset
}

// Run converses over every seed in r. A failed conversation is logged and
// the batch moves on; only sink and checkpoint I/O errors stop it.
func (o *Orchestrator) Run(ctx context.Context, r io.Reader, sink dataset.Sink, opts RunOptions) (Stats, error) {
	var st Stats
	start := 0
	if opts.Offset != nil {
		n, err := opts.Offset.Load()
		if err != nil {
			return st, err
		}
		start = n
	}
	consumed := start

	bad := func(line int, err error) {
		if line < start {
			return
		}
		st.Malformed++
		o.log.Warn().Int("line", line).Err(err).Msg("skipping malformed seed")
	}
	err := dataset.Decode(r, bad, func(line int, seed dataset.Seed) error {
		if line < start {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		st.Seeds++
		problem := strings.TrimSpace(seed.Problem)
		id := ConversationID(line, problem)

		switch {
		case problem == "":
			st.Malformed++
			o.log.Warn().Int("line", line).Msg("seed has no problem")
		case opts.Keys != nil && opts.Keys.Has(id):
			st.Skipped++
		default:
			out, err := o.Converse(ctx, id, problem, sink)
			if err != nil {
				return err
			}
			st.Turns += out.Committed
			if out.Completed {
				st.Completed++
			} else {
				st.Aborted++
			}
			if opts.Keys != nil && out.Committed > 0 {
				if err := opts.Keys.Mark(ctx, id); err != nil {
					return fmt.Errorf("mark %s: %w", id, err)
				}
			}
		}

		consumed = line + 1
		if opts.Offset != nil && opts.Offset.Due(consumed) {
			return opts.Offset.Save(consumed)
		}
		return nil
	})
	if err != nil {
		return st, err
	}
	if opts.Offset != nil && consumed > start {
		if err := opts.Offset.Save(consumed); err != nil {
			return st, err
		}
	}
	o.log.Info().Interface("stats", st.Map()).Msg("dialogue generation finished")
	return st, nil
}

package preference

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/rs/zerolog"

	"tutor-dpo/api/internal/checkpoint"
	"tutor-dpo/api/internal/dataset"
)

// Builder drives a strategy over a whole Dc file.
type Builder struct {
	strategy Strategy
	keys     checkpoint.Keys
	log      zerolog.Logger
}

// NewBuilder returns a Builder. keys may be nil to process every conversation.
func NewBuilder(s Strategy, keys checkpoint.Keys, log zerolog.Logger) *Builder {
	return &Builder{strategy: s, keys: keys, log: log}
}

type Stats struct {
	Conversations int
	Skipped       int
	Malformed     int
	Pairs         int
}

func (s Stats) Map() map[string]int {
	return map[string]int{
		"conversations": s.Conversations,
		"skipped":       s.Skipped,
		"malformed":     s.Malformed,
		"pairs":         s.Pairs,
	}
}

// Group collects turns by conversation id in order of first appearance,
// each sorted by turn_idx.
func Group(turns []dataset.Turn) []Conversation {
	index := map[string]int{}
	var convs []Conversation
	for _, t := range turns {
		i, ok := index[t.ConversationID]
		if !ok {
			i = len(convs)
			index[t.ConversationID] = i
			convs = append(convs, Conversation{ID: t.ConversationID})
		}
		convs[i].Turns = append(convs[i].Turns, t)
	}
	for i := range convs {
		ts := convs[i].Turns
		sort.SliceStable(ts, func(a, b int) bool { return ts[a].TurnIdx < ts[b].TurnIdx })
	}
	return convs
}

// Run reads Dc from r and appends pairs to sink. Conversations already in
// keys are skipped; a conversation is marked once it produced a pair.
func (b *Builder) Run(ctx context.Context, r io.Reader, sink dataset.Sink) (Stats, error) {
	var st Stats
	var turns []dataset.Turn
	bad := func(line int, err error) {
		st.Malformed++
		b.log.Warn().Int("line", line).Err(err).Msg("skipping malformed Dc line")
	}
	err := dataset.Decode(r, bad, func(line int, t dataset.Turn) error {
		if t.ConversationID == "" {
			bad(line, fmt.Errorf("missing conversation_id"))
			return nil
		}
		turns = append(turns, t)
		return nil
	})
	if err != nil {
		return st, fmt.Errorf("%w: read Dc: %w", dataset.ErrIO, err)
	}

	for _, conv := range Group(turns) {
		if b.keys != nil && b.keys.Has(conv.ID) {
			st.Skipped++
			continue
		}
		st.Conversations++
		n := 0
		err := b.strategy.Extract(ctx, conv, func(p dataset.Pair) error {
			if err := sink.Append(p); err != nil {
				return err
			}
			n++
			return nil
		})
		st.Pairs += n
		if err != nil {
			return st, err
		}
		if b.keys != nil && n > 0 {
			if err := b.keys.Mark(ctx, conv.ID); err != nil {
				return st, fmt.Errorf("mark %s: %w", conv.ID, err)
			}
		}
	}
	b.log.Info().Str("strategy", b.strategy.Name()).Interface("stats", st.Map()).Msg("preference dataset finished")
	return st, nil
}

package consistency

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/teranos/mend/rule"
	"github.com/teranos/mend/types"
)

// queueCapacity bounds the handoff between rule iteration and collection.
const queueCapacity = 256

// detected is a violation together with the rule that produced it.
type detected struct {
	rule      rule.Rule
	violation types.Violation
}

// collect runs every rule's iterator and detector in a producer goroutine
// while a consumer drains the violations concurrently. Closing the channel
// signals that the producer has finished.
func collect(ctx context.Context, rules []rule.Rule, tables map[string]*types.Table, newTuples []int) ([]detected, error) {
	g, ctx := errgroup.WithContext(ctx)
	queue := make(chan detected, queueCapacity)

	g.Go(func() error {
		defer close(queue)
		for _, r := range rules {
			r := r
			err := r.Iterator(ctx, tables, newTuples, func(b rule.Block) error {
				for _, v := range r.Detect(b) {
					select {
					case queue <- detected{rule: r, violation: v}:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	var found []detected
	g.Go(func() error {
		for d := range queue {
			found = append(found, d)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return found, nil
}

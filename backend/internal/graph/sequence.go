package graph

import (
	"context"

	"go.uber.org/zap"
)

// LinkSequentially chains targets pairwise: each origin links to the first
// target, which links to the second, and so on. Without explicit origins the
// first target starts the chain and at least two targets are required. With
// CloseLoop the last target is linked back to the first origin; a failure
// there ends the call immediately.
func (r *Repository) LinkSequentially(ctx context.Context, targets []NodeRef, opts SequenceOptions) (LinkReport, error) {
	var report LinkReport

	origins := opts.Origins
	if len(origins) == 0 {
		if len(targets) < 2 {
			r.logger.Warn("At least two nodes are required to link them sequentially",
				zap.Int("count", len(targets)),
			)
			return report, nil
		}
		origins = targets[:1]
		targets = targets[1:]
	}
	if len(targets) == 0 {
		r.logger.Warn("No targets to link sequentially")
		return report, nil
	}

	for _, origin := range origins {
		current := origin
		for _, target := range targets {
			pair, err := r.LinkNodes(ctx, []NodeRef{current}, []NodeRef{target}, opts.LinkOptions)
			if err != nil {
				return report, err
			}
			if !pair.OK() {
				r.logger.Warn("Failed to link node in sequence",
					zap.String("origin", current.String()),
					zap.String("target", target.String()),
				)
			}
			report.Add(pair)
			current = target
		}

		if opts.CloseLoop {
			last := targets[len(targets)-1]
			closing, err := r.LinkNodes(ctx, []NodeRef{last}, []NodeRef{origins[0]}, opts.LinkOptions)
			if err != nil {
				return report, err
			}
			report.Add(closing)
			if !closing.OK() {
				r.logger.Warn("Failed to close the loop",
					zap.String("origin", last.String()),
					zap.String("target", origins[0].String()),
				)
				if closing.Failed == 0 {
					report.Failed++
				}
				return report, nil
			}
		}
	}
	return report, nil
}

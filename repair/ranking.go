package repair

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/teranos/mend/errors"
	"github.com/teranos/mend/logger"
	"github.com/teranos/mend/types"
)

// RankingManager picks the column whose candidates are worth the most.
// A column is returned at most once per RankingManager.
type RankingManager struct {
	opts     Options
	logger   *zap.SugaredLogger
	finished map[types.Column]struct{}
}

// NewRankingManager validates opts.
func NewRankingManager(opts Options) (*RankingManager, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &RankingManager{
		opts:     opts,
		logger:   opts.Logger.Named("ranking"),
		finished: make(map[types.Column]struct{}),
	}, nil
}

// TopGroup re-derives one group per violated column, sorts them by descending
// total score and returns the first unfinished group with candidates. It
// returns nil when none remains.
func (r *RankingManager) TopGroup(ctx context.Context) (*Group, error) {
	cols, err := r.opts.Store.ViolatedColumns(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "top group")
	}

	groups := make([]*Group, 0, len(cols))
	for _, col := range cols {
		if r.IsFinished(col) {
			continue
		}
		g := newGroup(col, r.opts)
		if err := g.Populate(ctx); err != nil {
			return nil, err
		}
		if g.Len() == 0 {
			continue
		}
		groups = append(groups, g)
	}
	if len(groups) == 0 {
		return nil, nil
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].TotalScore() > groups[j].TotalScore()
	})
	top := groups[0]
	r.finished[top.Column()] = struct{}{}

	r.logger.Infow("Selected repair group",
		logger.FieldTable, top.Column().Table,
		logger.FieldAttribute, top.Column().Attribute,
		logger.FieldScore, top.TotalScore(),
		logger.FieldCount, top.Len())
	return top, nil
}

// IsFinished reports whether col was already returned by TopGroup.
func (r *RankingManager) IsFinished(col types.Column) bool {
	_, ok := r.finished[col]
	return ok
}

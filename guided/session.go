// Package guided runs the interactive repair loop: pick the most valuable
// column, propose its best fix, ask an oracle, apply accepted fixes and keep
// the violation tables consistent until nothing is left to propose.
package guided

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/teranos/mend/am"
	"github.com/teranos/mend/classify"
	"github.com/teranos/mend/consistency"
	"github.com/teranos/mend/errors"
	"github.com/teranos/mend/logger"
	"github.com/teranos/mend/repair"
	"github.com/teranos/mend/rule"
	"github.com/teranos/mend/solver"
	"github.com/teranos/mend/store"
	"github.com/teranos/mend/types"
)

// TrainingRecorder persists the labelled answers of a session.
type TrainingRecorder interface {
	SaveTraining(ctx context.Context, session string, set []types.TrainingInstance) error
}

// Dependencies are the collaborators a Session owns. Classifier and Training
// are optional: a Classifier is updated with every answer, a Training
// recorder receives the session's answers when it ends.
type Dependencies struct {
	Audit       *consistency.AuditManager
	Consistency *consistency.Manager
	Ranking     *repair.RankingManager
	Classifier  classify.Classifier
	Oracle      Oracle
	Training    TrainingRecorder
	Metrics     *Metrics
	Logger      *zap.SugaredLogger
}

// Session is one guided repair run.
type Session struct {
	id              string
	deps            Dependencies
	maxInteractions int
	logger          *zap.SugaredLogger
}

// NewSession validates deps. maxInteractions bounds the number of oracle
// calls; 0 runs until no group remains.
func NewSession(deps Dependencies, maxInteractions int) (*Session, error) {
	if deps.Audit == nil || deps.Consistency == nil || deps.Ranking == nil || deps.Oracle == nil {
		return nil, errors.NewInvalidInputError("session needs audit, consistency, ranking and oracle")
	}
	if maxInteractions < 0 {
		return nil, errors.NewInvalidInputError("max interactions must not be negative, got %d", maxInteractions)
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(prometheus.NewRegistry())
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	return &Session{
		id:              uuid.New().String(),
		deps:            deps,
		maxInteractions: maxInteractions,
		logger:          deps.Logger.Named("guided"),
	}, nil
}

// Assemble builds a session over st from configuration. A classifier, when
// scoring or the oracle needs one, is trained on the answers recorded for the
// source table by earlier sessions.
func Assemble(ctx context.Context, st *store.Store, rules []rule.Rule, cfg *am.Config, reg prometheus.Registerer, log *zap.SugaredLogger) (*Session, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	scoring, err := repair.ParseScoring(cfg.Repair.Scoring)
	if err != nil {
		return nil, err
	}
	metrics := NewMetrics(reg)

	var classifier *classify.NaiveBayes
	if scoring == repair.ScoringEntropy || cfg.Repair.Oracle == am.OracleClassifier {
		classifier, err = seedClassifier(ctx, st, cfg, log)
		if err != nil {
			return nil, err
		}
	}

	var oracle Oracle
	switch cfg.Repair.Oracle {
	case "", am.OracleGroundTruth:
		oracle = NewGroundTruth(st, cfg.Source.CleanTable)
	case am.OracleDirtyCell:
		oracle = NewDirtyCellOracle(st, cfg.Source.CleanTable)
	case am.OracleClassifier:
		if !classifier.Ready() {
			return nil, errors.WithHint(
				errors.NewInvalidInputError("no recorded answers with both labels for %q", cfg.Source.Table),
				"run a ground_truth or dirty_cell session on this table first")
		}
		oracle = NewClassifierOracle(classifier)
	default:
		return nil, errors.WithHint(
			errors.NewInvalidInputError("unknown oracle %q", cfg.Repair.Oracle),
			"use ground_truth, dirty_cell or classifier")
	}

	cleanTable := am.DeriveCleanTable
	if cfg.Source.CleanTable != "" {
		cleanTable = func(string) string { return cfg.Source.CleanTable }
	}
	slv := solver.New(st, solver.Config{Epsilon: cfg.GetEpsilon(), CleanTable: cleanTable}, log)

	cm, err := consistency.NewManager(st, rules, cfg.GetBatchSize(), log)
	if err != nil {
		return nil, err
	}
	opts := repair.Options{
		Store:   st,
		Solver:  slv,
		Scoring: scoring,
		Hooks:   metrics.Hooks(),
		Logger:  log,
	}
	deps := Dependencies{
		Audit:       consistency.NewAuditManager(st, log),
		Consistency: cm,
		Oracle:      oracle,
		Metrics:     metrics,
		Logger:      log,
	}
	if classifier != nil {
		opts.Classifier = classifier
	}
	// Answers of the classifier oracle are its own predictions, never training data.
	if cfg.Repair.Oracle != am.OracleClassifier {
		deps.Training = st
		if classifier != nil {
			deps.Classifier = classifier
		}
	}
	deps.Ranking, err = repair.NewRankingManager(opts)
	if err != nil {
		return nil, err
	}
	return NewSession(deps, cfg.Repair.MaxInteractions)
}

func seedClassifier(ctx context.Context, st *store.Store, cfg *am.Config, log *zap.SugaredLogger) (*classify.NaiveBayes, error) {
	classifier := classify.NewNaiveBayes(cfg.Repair.Features)
	if cfg.Source.Table == "" {
		return classifier, nil
	}
	set, err := st.TrainingSet(ctx, cfg.Source.Table)
	if err != nil {
		return nil, errors.Wrap(err, "load training set")
	}
	if err := classifier.Train(ctx, set); err != nil {
		return nil, err
	}
	log.Infow("Classifier trained on recorded answers",
		logger.FieldTable, cfg.Source.Table,
		logger.FieldCount, len(set),
		"ready", classifier.Ready())
	return classifier, nil
}

// ID returns the session's uuid.
func (s *Session) ID() string { return s.id }

// Result summarizes a session.
type Result struct {
	SessionID    string
	Interactions int
	Hits         int
	Skipped      int
	Elapsed      time.Duration
	Training     []types.TrainingInstance
	Applied      []types.AuditRecord
	// Truncated is set when the interaction bound stopped the session.
	Truncated bool
}

// Run drives the loop until no group remains or the interaction bound is hit.
// The partial result is returned alongside any error.
func (s *Session) Run(ctx context.Context) (Result, error) {
	ctx = logger.WithSessionID(ctx, s.id)
	log := logger.FromContext(ctx, s.logger)
	start := time.Now()
	res := Result{SessionID: s.id}

	err := s.run(ctx, log, &res)
	if s.deps.Training != nil && len(res.Training) > 0 {
		if saveErr := s.deps.Training.SaveTraining(context.WithoutCancel(ctx), s.id, res.Training); saveErr != nil {
			err = errors.CombineErrors(err, errors.Wrap(saveErr, "record training answers"))
		}
	}

	res.Elapsed = time.Since(start)
	s.deps.Metrics.SessionSeconds.Observe(res.Elapsed.Seconds())
	log.Infow("Guided repair finished",
		"interactions", res.Interactions,
		"hits", res.Hits,
		"applied", len(res.Applied),
		"skipped", res.Skipped,
		"truncated", res.Truncated,
		logger.FieldDurationMS, res.Elapsed.Milliseconds())
	return res, err
}

func (s *Session) run(ctx context.Context, log *zap.SugaredLogger, res *Result) error {
	for {
		group, err := s.deps.Ranking.TopGroup(ctx)
		if err != nil {
			return errors.Wrap(err, "select group")
		}
		if group == nil {
			return nil
		}
		done, err := s.drain(ctx, log, group, res)
		if err != nil {
			return err
		}
		if done {
			res.Truncated = true
			return nil
		}
	}
}

// drain proposes fixes from g until it runs out. It reports true when the
// interaction bound was reached.
func (s *Session) drain(ctx context.Context, log *zap.SugaredLogger, g *repair.Group, res *Result) (bool, error) {
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		c, ok := g.TopFix(offset)
		if !ok {
			return false, nil
		}

		cell := c.Cell()
		if s.deps.Audit.IsAlreadyUpdated(cell) {
			res.Skipped++
			s.deps.Metrics.FixesSkipped.Inc()
			offset++
			continue
		}
		if s.maxInteractions > 0 && res.Interactions >= s.maxInteractions {
			return true, nil
		}

		accepted, err := s.deps.Oracle.Accept(ctx, c.Fix, c.Tuple)
		if err != nil {
			return false, errors.Wrap(err, "ask oracle")
		}
		res.Interactions++
		s.deps.Metrics.Interactions.Inc()

		label := types.LabelNo
		if accepted {
			label = types.LabelYes
		}
		instance := c.Instance(label)
		res.Training = append(res.Training, instance)
		if s.deps.Classifier != nil {
			if err := s.deps.Classifier.Update(ctx, instance); err != nil {
				return false, errors.MarkClassifier(errors.Wrap(err, "update classifier"))
			}
		}

		log.Debugw("Oracle answered",
			append(logger.CellFields(cell.Table(), cell.Attribute(), cell.TID()),
				logger.FieldValue, c.Proposed().String(),
				logger.FieldScore, c.Score,
				logger.FieldOffset, offset,
				"accepted", accepted)...)

		if !accepted {
			s.deps.Metrics.FixesRejected.Inc()
			offset++
			continue
		}

		res.Hits++
		updated, rec, err := s.deps.Audit.ApplyFix(ctx, c.Fix)
		if err != nil {
			return false, err
		}
		res.Applied = append(res.Applied, rec)
		s.deps.Metrics.FixesApplied.Inc()

		if _, err := s.deps.Consistency.CheckConsistency(ctx, updated); err != nil {
			return false, err
		}
		offset = 0
		if err := g.Populate(ctx); err != nil {
			return false, err
		}
	}
}

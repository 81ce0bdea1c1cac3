// Package consistency keeps the violation and repair tables in step with the
// source data after a cell update, and applies accepted fixes with an audit trail.
package consistency

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/mend/am"
	"github.com/teranos/mend/errors"
	"github.com/teranos/mend/logger"
	"github.com/teranos/mend/rule"
	"github.com/teranos/mend/store"
	"github.com/teranos/mend/types"
)

// Manager maintains violations for a fixed set of rules. A Manager created with
// NewUpdateManager detects violations but never generates repair rows.
type Manager struct {
	store       *store.Store
	rules       []rule.Rule
	batchSize   int
	withRepairs bool
	logger      *zap.SugaredLogger
}

// NewManager creates a ConsistencyManager. A non-positive batchSize uses the default.
func NewManager(st *store.Store, rules []rule.Rule, batchSize int, log *zap.SugaredLogger) (*Manager, error) {
	return newManager(st, rules, batchSize, true, log.Named("consistency"))
}

// NewUpdateManager creates the detection-only sibling of NewManager.
func NewUpdateManager(st *store.Store, rules []rule.Rule, batchSize int, log *zap.SugaredLogger) (*Manager, error) {
	return newManager(st, rules, batchSize, false, log.Named("update"))
}

func newManager(st *store.Store, rules []rule.Rule, batchSize int, withRepairs bool, log *zap.SugaredLogger) (*Manager, error) {
	seen := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		if _, dup := seen[r.ID()]; dup {
			return nil, errors.NewInvalidInputError("rule %q registered twice", r.ID())
		}
		seen[r.ID()] = struct{}{}
	}
	if batchSize <= 0 {
		batchSize = am.DefaultBatchSize
	}
	return &Manager{
		store:       st,
		rules:       rules,
		batchSize:   batchSize,
		withRepairs: withRepairs,
		logger:      log,
	}, nil
}

// Rules returns the registered rules.
func (m *Manager) Rules() []rule.Rule {
	return m.rules
}

// RemoveViolations deletes every violation touching cell together with its
// repair rows, and returns the other tuples that were paired with cell in
// those repairs.
func (m *Manager) RemoveViolations(ctx context.Context, cell types.Cell) ([]int, error) {
	var (
		partners []int
		removed  int64
	)
	err := m.store.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		if partners, err = tx.RepairPartners(ctx, cell); err != nil {
			return err
		}
		removed, err = tx.DeleteViolationsTouching(ctx, cell)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "remove violations")
	}

	m.logger.Debugw("Removed violations",
		append(logger.CellFields(cell.Table(), cell.Attribute(), cell.TID()),
			logger.FieldCount, removed,
			"affected", partners)...)
	sort.Ints(partners)
	return partners, nil
}

// FindNewViolations re-runs every rule over cell's table restricted to blocks
// containing cell's tuple, persists what it finds and returns the tuples paired
// with the updated tuple in new fixes on cell's attribute.
func (m *Manager) FindNewViolations(ctx context.Context, cell types.Cell) ([]int, error) {
	var rules []rule.Rule
	for _, r := range m.rules {
		for _, name := range r.TableNames() {
			if name == cell.Table() {
				rules = append(rules, r)
				break
			}
		}
	}
	if len(rules) == 0 {
		return nil, nil
	}

	out, err := m.detect(ctx, rules, []int{cell.TID()}, false)
	if err != nil {
		return nil, errors.Wrap(err, "find new violations")
	}

	seen := map[int]struct{}{cell.TID(): {}}
	var affected []int
	add := func(c types.Cell) {
		if c.Table() != cell.Table() || c.Attribute() != cell.Attribute() {
			return
		}
		if _, ok := seen[c.TID()]; ok {
			return
		}
		seen[c.TID()] = struct{}{}
		affected = append(affected, c.TID())
	}
	for _, f := range out.fixes {
		if f.RightConstant {
			continue
		}
		if f.Left.Attribute() != cell.Attribute() || f.Right.Attribute() != cell.Attribute() {
			continue
		}
		add(f.Left)
		add(f.Right)
	}
	sort.Ints(affected)

	m.logger.Debugw("Found new violations",
		append(logger.CellFields(cell.Table(), cell.Attribute(), cell.TID()),
			logger.FieldCount, len(out.violations),
			logger.FieldFixCount, len(out.fixes),
			"affected", affected)...)
	return affected, nil
}

// CheckConsistency is RemoveViolations followed by FindNewViolations for the
// same cell. It returns the union of both affected sets.
func (m *Manager) CheckConsistency(ctx context.Context, cell types.Cell) ([]int, error) {
	removed, err := m.RemoveViolations(ctx, cell)
	if err != nil {
		return nil, err
	}
	found, err := m.FindNewViolations(ctx, cell)
	if err != nil {
		return nil, err
	}
	return union(removed, found), nil
}

// Detection summarizes one detection pass.
type Detection struct {
	Violations int
	Fixes      int
	ByRule     map[string]int
	Elapsed    time.Duration
}

// DetectAll runs every rule over its full tables and persists the violations
// and, unless detection-only, their candidate fixes. Rows left by an earlier
// pass of the same rules are replaced.
func (m *Manager) DetectAll(ctx context.Context) (Detection, error) {
	start := time.Now()
	out, err := m.detect(ctx, m.rules, nil, true)
	if err != nil {
		return Detection{}, errors.Wrap(err, "detect")
	}
	d := Detection{
		Violations: len(out.violations),
		Fixes:      len(out.fixes),
		ByRule:     make(map[string]int),
		Elapsed:    time.Since(start),
	}
	for _, v := range out.violations {
		d.ByRule[v.RuleID]++
	}
	m.logger.Infow("Detection complete",
		logger.FieldCount, d.Violations,
		logger.FieldFixCount, d.Fixes,
		logger.FieldDurationMS, d.Elapsed.Milliseconds())
	return d, nil
}

type detection struct {
	violations []types.Violation
	fixes      []types.Fix
}

func (m *Manager) loadTables(ctx context.Context, rules []rule.Rule) (map[string]*types.Table, error) {
	tables := make(map[string]*types.Table)
	for _, r := range rules {
		for _, name := range r.TableNames() {
			if _, ok := tables[name]; ok {
				continue
			}
			t, err := m.store.LoadTable(ctx, name)
			if err != nil {
				return nil, errors.Wrapf(err, "rule %s", r.ID())
			}
			tables[name] = t
		}
	}
	return tables, nil
}

// detect collects violations from rules and persists them in one transaction.
// With replace the rules' existing violation and repair rows are cleared first.
func (m *Manager) detect(ctx context.Context, rules []rule.Rule, newTuples []int, replace bool) (detection, error) {
	tables, err := m.loadTables(ctx, rules)
	if err != nil {
		return detection{}, err
	}
	found, err := collect(ctx, rules, tables, newTuples)
	if err != nil {
		return detection{}, err
	}
	if len(found) == 0 && !replace {
		return detection{}, nil
	}

	var out detection
	err = m.store.WithTx(ctx, func(tx *store.Tx) error {
		if replace {
			for _, r := range rules {
				n, err := tx.DeleteRuleViolations(ctx, r.ID())
				if err != nil {
					return err
				}
				if n > 0 {
					m.logger.Debugw("Cleared earlier detection", logger.FieldRuleID, r.ID(), logger.FieldCount, n)
				}
			}
		}
		if len(found) == 0 {
			return nil
		}
		vid, err := tx.NextViolationID(ctx)
		if err != nil {
			return err
		}
		out = detection{violations: make([]types.Violation, 0, len(found))}
		for i, d := range found {
			v := d.violation
			v.ID = vid + i
			out.violations = append(out.violations, v)
			if m.withRepairs {
				out.fixes = append(out.fixes, d.rule.Repair(v)...)
			}
		}
		if err := tx.InsertViolations(ctx, out.violations, m.batchSize); err != nil {
			return err
		}
		if len(out.fixes) == 0 {
			return nil
		}
		firstID, err := tx.NextRepairID(ctx)
		if err != nil {
			return err
		}
		return tx.InsertFixes(ctx, out.fixes, firstID, m.batchSize)
	})
	if err != nil {
		return detection{}, err
	}
	return out, nil
}

func union(a, b []int) []int {
	seen := make(map[int]struct{}, len(a)+len(b))
	var out []int
	for _, s := range [][]int{a, b} {
		for _, tid := range s {
			if _, ok := seen[tid]; ok {
				continue
			}
			seen[tid] = struct{}{}
			out = append(out, tid)
		}
	}
	sort.Ints(out)
	return out
}

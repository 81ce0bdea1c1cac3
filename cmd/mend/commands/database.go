package commands

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/teranos/mend/am"
	"github.com/teranos/mend/db"
	"github.com/teranos/mend/errors"
	"github.com/teranos/mend/logger"
	"github.com/teranos/mend/rule"
	"github.com/teranos/mend/store"
)

// loadConfig loads and validates the configuration.
func loadConfig() (*am.Config, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return cfg, nil
}

// openStore connects to the configured database, applies migrations and
// wraps it in a store. The caller closes the returned database.
func openStore(ctx context.Context, cfg *am.Config) (*store.Store, *sqlx.DB, error) {
	database, err := db.Connect(ctx, cfg.Database.Driver, cfg.DatabaseTarget(), logger.Logger)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open database %s", cfg.DatabaseTarget())
	}
	return store.New(database, logger.Logger), database, nil
}

// loadRules reads the rule file named by path, or by rules.path when path is empty.
func loadRules(cfg *am.Config, path string) ([]rule.Rule, error) {
	if path == "" {
		path = cfg.Rules.Path
	}
	if path == "" {
		return nil, errors.WithHint(
			errors.NewInvalidInputError("no rule file configured"),
			"pass --rules or set rules.path in mend.toml")
	}
	rules, err := rule.LoadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load rules from %s", path)
	}
	logger.Logger.Infow("Loaded rules", logger.FieldFile, path, logger.FieldCount, len(rules))
	return rules, nil
}

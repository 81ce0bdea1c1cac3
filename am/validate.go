package am

import "github.com/teranos/mend/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "", "sqlite3":
	case "pgx":
		if c.Database.DSN == "" {
			return errors.WithHint(
				errors.New("database.dsn cannot be empty when database.driver = pgx"),
				"set MEND_DATABASE_DSN")
		}
	default:
		return errors.Newf("database.driver must be sqlite3 or pgx, got %q", c.Database.Driver)
	}

	switch c.Repair.Scoring {
	case "", ScoringVOI, ScoringEntropy:
	default:
		return errors.Newf("repair.scoring must be %q or %q, got %q", ScoringVOI, ScoringEntropy, c.Repair.Scoring)
	}

	switch c.Repair.Oracle {
	case "", OracleGroundTruth, OracleDirtyCell, OracleClassifier:
	default:
		return errors.Newf("repair.oracle must be %q, %q or %q, got %q",
			OracleGroundTruth, OracleDirtyCell, OracleClassifier, c.Repair.Oracle)
	}

	// Zero means "use the default"; negative values are never meaningful
	if c.Repair.MaxInteractions < 0 {
		return errors.Newf("repair.max_interactions must be >= 0, got %d", c.Repair.MaxInteractions)
	}
	if c.Repair.BatchSize < 0 {
		return errors.Newf("repair.batch_size must be >= 0, got %d", c.Repair.BatchSize)
	}
	if c.Repair.Epsilon < 0 {
		return errors.Newf("repair.epsilon must be >= 0, got %g", c.Repair.Epsilon)
	}

	return nil
}

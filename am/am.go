package am

// Config represents the mend configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Source   SourceConfig   `mapstructure:"source"`
	Repair   RepairConfig   `mapstructure:"repair"`
	Rules    RulesConfig    `mapstructure:"rules"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig selects the database holding source, violation, repair and audit tables
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite3 or pgx (default: sqlite3)
	Path   string `mapstructure:"path"`   // sqlite file path
	DSN    string `mapstructure:"dsn"`    // postgres connection string, used when driver = pgx
}

// SourceConfig names the dirty table under repair and its clean reference
type SourceConfig struct {
	Table      string `mapstructure:"table"`
	CleanTable string `mapstructure:"clean_table"` // empty = derived from table, see CleanTableName
}

// RepairConfig configures the guided repair session
type RepairConfig struct {
	Scoring         string   `mapstructure:"scoring"`          // voi or entropy (default: voi)
	Oracle          string   `mapstructure:"oracle"`           // ground_truth, dirty_cell or classifier (default: ground_truth)
	MaxInteractions int      `mapstructure:"max_interactions"` // 0 = run to convergence
	BatchSize       int      `mapstructure:"batch_size"`       // rows per violation/repair insert statement (default: 4096)
	Epsilon         float64  `mapstructure:"epsilon"`          // strict inequality margin for continuous values (default: 1e-5)
	Features        []string `mapstructure:"features"`         // tuple attributes the classifier may use (empty = all)
}

// RulesConfig points at the rule definition file
type RulesConfig struct {
	Path string `mapstructure:"path"` // .toml or .yaml
}

// MetricsConfig configures the prometheus textfile written after a session
type MetricsConfig struct {
	File string `mapstructure:"file"` // empty = no export
}

// LogConfig configures log output
type LogConfig struct {
	JSON bool `mapstructure:"json"`
}

// Scoring modes
const (
	ScoringVOI     = "voi"
	ScoringEntropy = "entropy"
)

// Oracle kinds. ground_truth accepts a fix whose value matches the clean
// table; dirty_cell accepts any fix on a cell that differs from it.
const (
	OracleGroundTruth = "ground_truth"
	OracleDirtyCell   = "dirty_cell"
	OracleClassifier  = "classifier"
)

// Defaults shared between SetDefaults and the getters
const (
	DefaultDatabasePath = "mend.db"
	DefaultBatchSize    = 4096
	DefaultEpsilon      = 1e-5

	DefaultFilePermissions = 0644
	DefaultDirPermissions  = 0755
)

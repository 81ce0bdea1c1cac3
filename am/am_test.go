package am

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestLoad_Defaults(t *testing.T) {
	// Create isolated viper instance without loading user/system config
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	if err != nil {
		t.Fatalf("LoadWithViper() failed: %v", err)
	}

	if cfg.Database.Path != DefaultDatabasePath {
		t.Errorf("expected default database path %q, got %q", DefaultDatabasePath, cfg.Database.Path)
	}
	if cfg.Database.Driver != "sqlite3" {
		t.Errorf("expected default driver sqlite3, got %q", cfg.Database.Driver)
	}
	if cfg.Repair.Scoring != ScoringVOI {
		t.Errorf("expected default scoring %q, got %q", ScoringVOI, cfg.Repair.Scoring)
	}
	if cfg.Repair.BatchSize != DefaultBatchSize {
		t.Errorf("expected default batch size %d, got %d", DefaultBatchSize, cfg.Repair.BatchSize)
	}
	if cfg.Repair.Epsilon != DefaultEpsilon {
		t.Errorf("expected default epsilon %g, got %g", DefaultEpsilon, cfg.Repair.Epsilon)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:    "zero config is valid",
			config:  Config{},
			wantErr: false,
		},
		{
			name:    "unknown driver",
			config:  Config{Database: DatabaseConfig{Driver: "oracle"}},
			wantErr: true,
		},
		{
			name:    "pgx without dsn",
			config:  Config{Database: DatabaseConfig{Driver: "pgx"}},
			wantErr: true,
		},
		{
			name:    "pgx with dsn",
			config:  Config{Database: DatabaseConfig{Driver: "pgx", DSN: "postgres://localhost/mend"}},
			wantErr: false,
		},
		{
			name:    "entropy scoring",
			config:  Config{Repair: RepairConfig{Scoring: ScoringEntropy}},
			wantErr: false,
		},
		{
			name:    "unknown scoring",
			config:  Config{Repair: RepairConfig{Scoring: "random"}},
			wantErr: true,
		},
		{
			name:    "unknown oracle",
			config:  Config{Repair: RepairConfig{Oracle: "user"}},
			wantErr: true,
		},
		{
			name:    "negative max interactions",
			config:  Config{Repair: RepairConfig{MaxInteractions: -1}},
			wantErr: true,
		},
		{
			name:    "negative batch size",
			config:  Config{Repair: RepairConfig{BatchSize: -5}},
			wantErr: true,
		},
		{
			name:    "negative epsilon",
			config:  Config{Repair: RepairConfig{Epsilon: -1e-5}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mend.toml")
	content := `
[database]
path = "hospital.db"

[source]
table = "hospital_noise"

[repair]
scoring = "entropy"
max_interactions = 25
features = ["zipcode", "state"]
`
	if err := os.WriteFile(path, []byte(content), DefaultFilePermissions); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() failed: %v", err)
	}

	if cfg.Database.Path != "hospital.db" {
		t.Errorf("database.path = %q", cfg.Database.Path)
	}
	if cfg.Repair.Scoring != ScoringEntropy {
		t.Errorf("repair.scoring = %q", cfg.Repair.Scoring)
	}
	if cfg.Repair.MaxInteractions != 25 {
		t.Errorf("repair.max_interactions = %d", cfg.Repair.MaxInteractions)
	}
	if len(cfg.Repair.Features) != 2 {
		t.Errorf("repair.features = %v", cfg.Repair.Features)
	}
	// Defaults fill what the file leaves out
	if cfg.Repair.BatchSize != DefaultBatchSize {
		t.Errorf("repair.batch_size = %d", cfg.Repair.BatchSize)
	}
	if got := cfg.CleanTableName(); got != "hospital_clean" {
		t.Errorf("CleanTableName() = %q", got)
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCleanTableName(t *testing.T) {
	tests := []struct {
		source SourceConfig
		want   string
	}{
		{SourceConfig{Table: "hospital_noise"}, "hospital_clean"},
		{SourceConfig{Table: "HOSPITAL_NOISE"}, "HOSPITAL_CLEAN"},
		{SourceConfig{Table: "TAX_NOISE_noise"}, "TAX_CLEAN_clean"},
		{SourceConfig{Table: "tax"}, "tax_clean"},
		{SourceConfig{Table: "tax", CleanTable: "tax_truth"}, "tax_truth"},
	}

	for _, tt := range tests {
		cfg := Config{Source: tt.source}
		if got := cfg.CleanTableName(); got != tt.want {
			t.Errorf("CleanTableName(%+v) = %q, want %q", tt.source, got, tt.want)
		}
	}
}

func TestGetters_FallBackOnZero(t *testing.T) {
	var cfg Config
	if cfg.GetBatchSize() != DefaultBatchSize {
		t.Errorf("GetBatchSize() = %d", cfg.GetBatchSize())
	}
	if cfg.GetEpsilon() != DefaultEpsilon {
		t.Errorf("GetEpsilon() = %g", cfg.GetEpsilon())
	}
	if cfg.GetDatabasePath() != DefaultDatabasePath {
		t.Errorf("GetDatabasePath() = %q", cfg.GetDatabasePath())
	}

	cfg.Database = DatabaseConfig{Driver: "pgx", DSN: "postgres://db/mend"}
	if cfg.DatabaseTarget() != "postgres://db/mend" {
		t.Errorf("DatabaseTarget() = %q", cfg.DatabaseTarget())
	}
}

func TestEnvOverride(t *testing.T) {
	Reset()
	defer Reset()
	t.Setenv("MEND_DATABASE_PATH", "/tmp/from-env.db")
	t.Setenv("MEND_REPAIR_SCORING", "entropy")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Database.Path != "/tmp/from-env.db" {
		t.Errorf("database.path = %q, want env override", cfg.Database.Path)
	}
	if cfg.Repair.Scoring != ScoringEntropy {
		t.Errorf("repair.scoring = %q, want env override", cfg.Repair.Scoring)
	}
}

func TestFindProjectConfig(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("finds mend.toml in a parent directory", func(t *testing.T) {
		subDir := filepath.Join(tmpDir, "test1", "subdir")
		os.MkdirAll(subDir, DefaultDirPermissions)
		os.WriteFile(filepath.Join(tmpDir, "test1", "mend.toml"), []byte(""), DefaultFilePermissions)

		oldWd, _ := os.Getwd()
		defer os.Chdir(oldWd)
		os.Chdir(subDir)

		result := findProjectConfig()
		if filepath.Base(result) != "mend.toml" {
			t.Errorf("expected mend.toml, got %q", result)
		}
		if !filepath.IsAbs(result) {
			t.Error("expected absolute path")
		}
	})
}

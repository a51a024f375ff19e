package config

import (
	"os"
	"path/filepath"
	"testing"

	"uborka/internal/models"
)

func TestLoadConfig(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
app:
  name: "uborka"
database:
  path: "test.db"
scheduler:
  max_occurrences: 26
cleaners:
  - id: 1
    name: "Alena"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Database.Path != "test.db" {
		t.Errorf("expected database path test.db, got %s", cfg.Database.Path)
	}

	if cfg.Scheduler.MaxOccurrences != 26 {
		t.Errorf("expected max_occurrences 26, got %d", cfg.Scheduler.MaxOccurrences)
	}

	if len(cfg.Cleaners) != 1 || cfg.Cleaners[0].ID != 1 {
		t.Errorf("expected 1 cleaner with ID 1")
	}
}

func TestLoadConfigExpandsEnv(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("UBORKA_DB_PATH", "from_env.db")

	yamlContent := `
database:
  path: "${UBORKA_DB_PATH}"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Database.Path != "from_env.db" {
		t.Errorf("expected expanded path from_env.db, got %s", cfg.Database.Path)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Cleaners: []models.Cleaner{{ID: 1, Name: "Alena"}},
			},
			wantErr: false,
		},
		{
			name:    "missing database path",
			cfg:     Config{},
			wantErr: true,
		},
		{
			name: "negative max occurrences",
			cfg: Config{
				Database:  DatabaseConfig{Path: "path"},
				Scheduler: SchedulerConfig{MaxOccurrences: -1},
			},
			wantErr: true,
		},
		{
			name: "duplicate cleaner id",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Cleaners: []models.Cleaner{
					{ID: 1, Name: "Alena"},
					{ID: 1, Name: "Marta"},
				},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	if cfg.API.HTTP.Port != 8080 {
		t.Errorf("expected default HTTP port 8080, got %d", cfg.API.HTTP.Port)
	}
	if cfg.Scheduler.MaxOccurrences != models.DefaultMaxOccurrences {
		t.Errorf("expected default max occurrences %d, got %d", models.DefaultMaxOccurrences, cfg.Scheduler.MaxOccurrences)
	}
	if cfg.Scheduler.ResumeHorizonMonths != models.DefaultResumeHorizonMonths {
		t.Errorf("expected default resume horizon %d, got %d", models.DefaultResumeHorizonMonths, cfg.Scheduler.ResumeHorizonMonths)
	}
	if cfg.Scheduler.LockTTLSeconds != models.SeriesLockTTLSeconds {
		t.Errorf("expected default lock ttl %d, got %d", models.SeriesLockTTLSeconds, cfg.Scheduler.LockTTLSeconds)
	}
	if cfg.API.Auth.HeaderAPIKey != "x-api-key" {
		t.Errorf("expected default api key header, got %s", cfg.API.Auth.HeaderAPIKey)
	}
}

func TestValidateCleaners(t *testing.T) {
	tests := []struct {
		name     string
		cleaners []models.Cleaner
		wantErr  bool
	}{
		{
			name: "Valid cleaners",
			cleaners: []models.Cleaner{
				{ID: 1, Name: "Alena"},
				{ID: 2, Name: "Marta"},
			},
			wantErr: false,
		},
		{
			name: "Duplicate ID",
			cleaners: []models.Cleaner{
				{ID: 1, Name: "Alena"},
				{ID: 1, Name: "Marta"},
			},
			wantErr: true,
		},
		{
			name: "ID 0",
			cleaners: []models.Cleaner{
				{ID: 0, Name: "Alena"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCleaners(tt.cleaners)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCleaners() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

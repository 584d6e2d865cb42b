package config

import (
	"os"
	"testing"
	"time"
)

// chdir is a Go 1.21-compatible stand-in for testing.T.Chdir (Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Recommender.StaleAfter != 30*time.Minute {
		t.Errorf("StaleAfter = %s, want 30m", cfg.Recommender.StaleAfter)
	}
	if cfg.Recommender.LikeThreshold != 4.0 {
		t.Errorf("LikeThreshold = %.1f, want 4.0", cfg.Recommender.LikeThreshold)
	}
	if cfg.Recommender.MaxFeatures != 5000 {
		t.Errorf("MaxFeatures = %d, want 5000", cfg.Recommender.MaxFeatures)
	}
	if !cfg.Recommender.Diversify {
		t.Error("Diversify = false, want true")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("MOVIEREC_RECOMMENDER_STALEAFTER", "5m")
	t.Setenv("MOVIEREC_SERVER_PORT", "9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Recommender.StaleAfter != 5*time.Minute {
		t.Errorf("StaleAfter = %s, want 5m", cfg.Recommender.StaleAfter)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	valid := RecommenderConfig{
		StaleAfter:    time.Minute,
		LikeThreshold: 4.0,
		NGramMax:      2,
		DefaultLimit:  5,
		MaxLimit:      50,
	}

	tests := []struct {
		name    string
		mutate  func(r *RecommenderConfig)
		wantErr bool
	}{
		{name: "valid", mutate: func(r *RecommenderConfig) {}},
		{name: "zero staleness", mutate: func(r *RecommenderConfig) { r.StaleAfter = 0 }, wantErr: true},
		{name: "threshold above scale", mutate: func(r *RecommenderConfig) { r.LikeThreshold = 6 }, wantErr: true},
		{name: "trigrams unsupported", mutate: func(r *RecommenderConfig) { r.NGramMax = 3 }, wantErr: true},
		{name: "max below default", mutate: func(r *RecommenderConfig) { r.MaxLimit = 1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			cfg := &Config{Recommender: r}
			err := cfg.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

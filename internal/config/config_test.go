package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Index.Shape != IndexShapeCorpus {
		t.Errorf("Index.Shape = %q, want %q", cfg.Index.Shape, IndexShapeCorpus)
	}
	if cfg.Index.Store != IndexStoreDatabase {
		t.Errorf("Index.Store = %q, want %q", cfg.Index.Store, IndexStoreDatabase)
	}
	if cfg.Index.VerifyCorpus {
		t.Error("Index.VerifyCorpus should default to false")
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Database.Driver = %q, want sqlite", cfg.Database.Driver)
	}
	if got := cfg.Database.DSN(); got != "./data/reference_index.db" {
		t.Errorf("Database.DSN() = %q", got)
	}
	if len(cfg.Encoder.Mean) != 3 || len(cfg.Encoder.Std) != 3 {
		t.Errorf("Encoder mean/std = %v/%v, want 3 values each", cfg.Encoder.Mean, cfg.Encoder.Std)
	}
	if cfg.Recognition.Workers <= 0 || cfg.Recognition.QueueSize <= 0 {
		t.Errorf("Recognition = %+v, want positive workers and queue", cfg.Recognition)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "armscan.yaml")
	content := []byte(`
index:
  corpus_path: /srv/corpus
  shape: labels
  store: memory
encoder:
  strategy: jina
  api_key: test-key
bot:
  emergency_contacts:
    - "112"
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Index.CorpusPath != "/srv/corpus" {
		t.Errorf("Index.CorpusPath = %q", cfg.Index.CorpusPath)
	}
	if len(cfg.Bot.EmergencyContacts) != 1 || cfg.Bot.EmergencyContacts[0] != "112" {
		t.Errorf("Bot.EmergencyContacts = %v", cfg.Bot.EmergencyContacts)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestEncoderConfigValidate(t *testing.T) {
	base := EncoderConfig{
		InputSize: 224,
		Mean:      []float64{0.5, 0.5, 0.5},
		Std:       []float64{0.5, 0.5, 0.5},
	}

	testCases := []struct {
		name    string
		mutate  func(c *EncoderConfig)
		wantErr bool
	}{
		{name: "thumbnail", mutate: func(c *EncoderConfig) { c.Strategy = StrategyThumbnail }},
		{name: "onnx with model", mutate: func(c *EncoderConfig) { c.Strategy = StrategyONNX; c.ModelPath = "m.onnx" }},
		{name: "thumbnail ignores input size", mutate: func(c *EncoderConfig) { c.Strategy = StrategyThumbnail; c.InputSize = 0 }},
		{name: "onnx without model", mutate: func(c *EncoderConfig) { c.Strategy = StrategyONNX }, wantErr: true},
		{name: "onnx without input size", mutate: func(c *EncoderConfig) { c.Strategy = StrategyONNX; c.ModelPath = "m.onnx"; c.InputSize = 0 }, wantErr: true},
		{name: "jina without key", mutate: func(c *EncoderConfig) { c.Strategy = StrategyJina; c.Model = "jina-clip-v2" }, wantErr: true},
		{name: "jina with key", mutate: func(c *EncoderConfig) { c.Strategy = StrategyJina; c.Model = "jina-clip-v2"; c.APIKey = "k" }},
		{name: "unknown strategy", mutate: func(c *EncoderConfig) { c.Strategy = "resnet" }, wantErr: true},
		{name: "zero std", mutate: func(c *EncoderConfig) { c.Strategy = StrategyThumbnail; c.Std = []float64{0, 1, 1} }, wantErr: true},
		{name: "two channels", mutate: func(c *EncoderConfig) { c.Strategy = StrategyThumbnail; c.Mean = []float64{0, 0} }, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := base.Clone()
			tc.mutate(c)
			err := c.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestIndexConfigValidate(t *testing.T) {
	thumb := &EncoderConfig{Strategy: StrategyThumbnail}
	jina := &EncoderConfig{Strategy: StrategyJina}

	testCases := []struct {
		name    string
		index   IndexConfig
		enc     *EncoderConfig
		wantErr bool
	}{
		{name: "corpus", index: IndexConfig{Shape: IndexShapeCorpus, Store: IndexStoreDatabase, CorpusPath: "c"}, enc: thumb},
		{name: "corpus without path", index: IndexConfig{Shape: IndexShapeCorpus, Store: IndexStoreDatabase}, enc: thumb, wantErr: true},
		{name: "labels with text encoder", index: IndexConfig{Shape: IndexShapeLabels, Store: IndexStoreMemory}, enc: jina},
		{name: "labels with vision encoder", index: IndexConfig{Shape: IndexShapeLabels, Store: IndexStoreMemory}, enc: thumb, wantErr: true},
		{name: "unknown store", index: IndexConfig{Shape: IndexShapeCorpus, Store: "redis", CorpusPath: "c"}, enc: thumb, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.index.Validate(tc.enc)
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestEncoderConfigCloneIsDeep(t *testing.T) {
	c := &EncoderConfig{Mean: []float64{1, 2, 3}, Std: []float64{1, 1, 1}}
	clone := c.Clone()
	clone.Mean[0] = 9
	if c.Mean[0] != 1 {
		t.Error("Clone shares the Mean slice with the original")
	}
}

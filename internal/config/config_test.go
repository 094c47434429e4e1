package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/asg0451/crakv/internal/chaos"
	"github.com/asg0451/crakv/internal/logger"
	"github.com/asg0451/crakv/internal/node"
	"github.com/asg0451/crakv/internal/scenario"
	"github.com/asg0451/crakv/internal/store"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	return path
}

func TestLoadFileYAML(t *testing.T) {
	content := `
node:
  role: echo
  workers: 8
  store: owned
  start_msg_id: 5
log:
  level: debug
admin:
  enabled: true
  addr: 127.0.0.1:9090
scenario:
  name: test-scenario
  description: Test scenario
  duration: 10s
  node_count: 5
  client:
    workers: 10
    write_ratio: 0.5
    cas_ratio: 0.25
  chaos:
    enabled: true
    interval: 2s
    targets: 1
    attack_types:
      - partition
      - delay
  recovery:
    enabled: true
    delay: 1s
`
	cfg, err := LoadFile(writeFile(t, "config.yaml", content))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Node.Role != "echo" {
		t.Errorf("expected role 'echo', got '%s'", cfg.Node.Role)
	}
	if cfg.Node.Workers != 8 {
		t.Errorf("expected workers 8, got %d", cfg.Node.Workers)
	}
	if cfg.Node.StartMsgID != 5 {
		t.Errorf("expected start_msg_id 5, got %d", cfg.Node.StartMsgID)
	}
	if !cfg.Admin.Enabled || cfg.Admin.Addr != "127.0.0.1:9090" {
		t.Errorf("unexpected admin config: %+v", cfg.Admin)
	}
	if cfg.Scenario.Name != "test-scenario" {
		t.Errorf("expected name 'test-scenario', got '%s'", cfg.Scenario.Name)
	}
	if cfg.Scenario.NodeCount != 5 {
		t.Errorf("expected node_count 5, got %d", cfg.Scenario.NodeCount)
	}
	if !cfg.Scenario.Chaos.Enabled {
		t.Error("expected chaos to be enabled")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestLoadFileJSON(t *testing.T) {
	content := `{
  "log": {"level": "warn"},
  "scenario": {
    "name": "json-test",
    "duration": "5s",
    "node_count": 3,
    "client": {"workers": 5},
    "chaos": {"enabled": false}
  }
}`
	cfg, err := LoadFile(writeFile(t, "config.json", content))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Scenario.Name != "json-test" {
		t.Errorf("expected name 'json-test', got '%s'", cfg.Scenario.Name)
	}
	if cfg.Scenario.Chaos.Enabled {
		t.Error("expected chaos to be disabled")
	}
	// ファイルにない項目はデフォルトのまま
	if cfg.Node.Role != "kv" {
		t.Errorf("expected default role 'kv', got '%s'", cfg.Node.Role)
	}
	if cfg.Admin.Addr != "127.0.0.1:8080" {
		t.Errorf("expected default admin addr, got '%s'", cfg.Admin.Addr)
	}
	level, err := cfg.LogLevel()
	if err != nil || level != logger.LevelWarn {
		t.Errorf("expected warn level, got %v (%v)", level, err)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	if _, err := LoadFile("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadFileUnsupportedFormat(t *testing.T) {
	if _, err := LoadFile(writeFile(t, "config.txt", "test")); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvRole, "echo")
	t.Setenv(EnvWorkers, "3")
	t.Setenv(EnvStore, "owned")
	t.Setenv(EnvStartMsgID, "42")
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvAdminAddr, ":7070")

	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("failed to apply env: %v", err)
	}

	role, _ := cfg.NodeRole()
	if role != node.RoleEcho {
		t.Errorf("expected echo role, got %s", role)
	}
	mode, _ := cfg.StoreMode()
	if mode != store.ModeOwned {
		t.Errorf("expected owned store, got %s", mode)
	}
	if cfg.Node.Workers != 3 {
		t.Errorf("expected workers 3, got %d", cfg.Node.Workers)
	}
	opts := cfg.NodeOptions("n7")
	if opts.ID != "n7" || opts.StartMsgID != 42 || opts.Workers != 3 {
		t.Errorf("unexpected node options: %+v", opts)
	}
	if !cfg.Admin.Enabled || cfg.Admin.Addr != ":7070" {
		t.Errorf("expected admin enabled on :7070, got %+v", cfg.Admin)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("expected log level error, got %s", cfg.Log.Level)
	}
}

func TestApplyEnvInvalidInt(t *testing.T) {
	t.Setenv(EnvWorkers, "many")

	if err := Default().ApplyEnv(); err == nil {
		t.Error("expected error for non-numeric workers")
	}
}

func TestToScenarioConfig(t *testing.T) {
	cfg := &FileConfig{
		Node: NodeConfig{Workers: 6, Store: "owned"},
		Scenario: ScenarioConfig{
			Name:        "test",
			Description: "Test",
			Duration:    "10s",
			NodeCount:   5,
			Client: ClientConfig{
				Workers:        10,
				WriteRatio:     0.7,
				CasRatio:       0.1,
				RequestTimeout: "250ms",
			},
			Chaos: ChaosConfig{
				Enabled:     true,
				Interval:    "2s",
				Targets:     2,
				AttackTypes: []string{"partition", "delay"},
				DelayAmount: "50ms",
			},
			Recovery: RecoveryConfig{
				Enabled: true,
				Delay:   "1s",
			},
		},
	}

	scenarioCfg, err := cfg.ToScenarioConfig(scenario.BasicScenario())
	if err != nil {
		t.Fatalf("failed to convert config: %v", err)
	}

	if scenarioCfg.Name != "test" {
		t.Errorf("expected name 'test', got '%s'", scenarioCfg.Name)
	}
	if scenarioCfg.NodeCount != 5 {
		t.Errorf("expected node count 5, got %d", scenarioCfg.NodeCount)
	}
	if scenarioCfg.NodeWorkers != 6 {
		t.Errorf("expected node workers 6, got %d", scenarioCfg.NodeWorkers)
	}
	if scenarioCfg.StoreMode != store.ModeOwned {
		t.Errorf("expected owned store, got %s", scenarioCfg.StoreMode)
	}
	if scenarioCfg.ClientWorkers != 10 {
		t.Errorf("expected workers 10, got %d", scenarioCfg.ClientWorkers)
	}
	if scenarioCfg.WriteRatio != 0.7 {
		t.Errorf("expected write ratio 0.7, got %f", scenarioCfg.WriteRatio)
	}
	if scenarioCfg.RequestTimeout != 250*time.Millisecond {
		t.Errorf("expected request timeout 250ms, got %v", scenarioCfg.RequestTimeout)
	}
	if !scenarioCfg.EnableChaos {
		t.Error("expected chaos to be enabled")
	}
	if len(scenarioCfg.AttackTypes) != 2 || scenarioCfg.AttackTypes[0] != chaos.AttackPartition {
		t.Errorf("unexpected attack types: %v", scenarioCfg.AttackTypes)
	}
	if scenarioCfg.DelayAmount != 50*time.Millisecond {
		t.Errorf("expected delay amount 50ms, got %v", scenarioCfg.DelayAmount)
	}
	if !scenarioCfg.EnableRecovery {
		t.Error("expected recovery to be enabled")
	}
}

func TestToScenarioConfigKeepsPreset(t *testing.T) {
	base := scenario.StressScenario()

	scenarioCfg, err := Default().ToScenarioConfig(base)
	if err != nil {
		t.Fatalf("failed to convert config: %v", err)
	}
	if scenarioCfg.StoreMode != store.ModeOwned {
		t.Errorf("expected preset store mode to survive, got %s", scenarioCfg.StoreMode)
	}
	if scenarioCfg.Name != "stress" || scenarioCfg.NodeCount != base.NodeCount {
		t.Errorf("expected preset values to survive, got %+v", scenarioCfg)
	}
}

func TestToScenarioConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  FileConfig
	}{
		{"duration", FileConfig{Scenario: ScenarioConfig{Duration: "invalid"}}},
		{"attack type", FileConfig{Scenario: ScenarioConfig{Chaos: ChaosConfig{AttackTypes: []string{"kill"}}}}},
		{"recovery delay", FileConfig{Scenario: ScenarioConfig{Recovery: RecoveryConfig{Delay: "soon"}}}},
		{"store", FileConfig{Node: NodeConfig{Store: "disk"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.cfg.ToScenarioConfig(scenario.DefaultConfig()); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*FileConfig)
		wantErr bool
	}{
		{"default", func(*FileConfig) {}, false},
		{"bad role", func(c *FileConfig) { c.Node.Role = "raft" }, true},
		{"bad store", func(c *FileConfig) { c.Node.Store = "disk" }, true},
		{"bad log level", func(c *FileConfig) { c.Log.Level = "loud" }, true},
		{"negative workers", func(c *FileConfig) { c.Node.Workers = -1 }, true},
		{"admin without addr", func(c *FileConfig) { c.Admin.Enabled = true; c.Admin.Addr = "" }, true},
		{"write ratio", func(c *FileConfig) { c.Scenario.Client.WriteRatio = 1.5 }, true},
		{"ratios sum", func(c *FileConfig) {
			c.Scenario.Client.WriteRatio = 0.8
			c.Scenario.Client.CasRatio = 0.3
		}, true},
		{"negative targets", func(c *FileConfig) { c.Scenario.Chaos.Targets = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

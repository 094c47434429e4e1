package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/asg0451/crakv/internal/chaos"
	"github.com/asg0451/crakv/internal/logger"
	"github.com/asg0451/crakv/internal/node"
	"github.com/asg0451/crakv/internal/scenario"
	"github.com/asg0451/crakv/internal/store"
)

// 環境変数名
const (
	EnvRole       = "CRAKV_ROLE"
	EnvWorkers    = "CRAKV_WORKERS"
	EnvStore      = "CRAKV_STORE"
	EnvStartMsgID = "CRAKV_START_MSG_ID"
	EnvLogLevel   = "CRAKV_LOG_LEVEL"
	EnvAdminAddr  = "CRAKV_ADMIN_ADDR"
)

// FileConfig は設定ファイルの構造
type FileConfig struct {
	Node     NodeConfig     `yaml:"node" json:"node"`
	Log      LogConfig      `yaml:"log" json:"log"`
	Admin    AdminConfig    `yaml:"admin" json:"admin"`
	Scenario ScenarioConfig `yaml:"scenario" json:"scenario"`
}

// NodeConfig はstdioで動かすノードの設定
type NodeConfig struct {
	Role       string `yaml:"role" json:"role"`
	Workers    int    `yaml:"workers" json:"workers"`
	Store      string `yaml:"store" json:"store"`
	StartMsgID int    `yaml:"start_msg_id" json:"start_msg_id"`
}

// LogConfig はログ設定
type LogConfig struct {
	Level string `yaml:"level" json:"level"`
}

// AdminConfig は管理用HTTPサーバーの設定
type AdminConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// ScenarioConfig はシナリオ設定
type ScenarioConfig struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Duration    string `yaml:"duration" json:"duration"`
	NodeCount   int    `yaml:"node_count" json:"node_count"`

	Client   ClientConfig   `yaml:"client" json:"client"`
	Chaos    ChaosConfig    `yaml:"chaos" json:"chaos"`
	Recovery RecoveryConfig `yaml:"recovery" json:"recovery"`
}

// ClientConfig はクライアント設定
type ClientConfig struct {
	Workers        int     `yaml:"workers" json:"workers"`
	WriteRatio     float64 `yaml:"write_ratio" json:"write_ratio"`
	CasRatio       float64 `yaml:"cas_ratio" json:"cas_ratio"`
	RequestTimeout string  `yaml:"request_timeout" json:"request_timeout"`
}

// ChaosConfig はカオス設定
type ChaosConfig struct {
	Enabled     bool     `yaml:"enabled" json:"enabled"`
	Interval    string   `yaml:"interval" json:"interval"`
	Targets     int      `yaml:"targets" json:"targets"`
	AttackTypes []string `yaml:"attack_types" json:"attack_types"`
	DelayAmount string   `yaml:"delay_amount" json:"delay_amount"`
}

// RecoveryConfig は復旧設定
type RecoveryConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Delay   string `yaml:"delay" json:"delay"`
}

// Default はデフォルト設定を返す
func Default() *FileConfig {
	return &FileConfig{
		Node: NodeConfig{
			Role:       string(node.RoleKV),
			StartMsgID: 1,
			// Storeは空のままにする。stdioノードではlocked、シナリオではプリセットの値になる
		},
		Log: LogConfig{
			Level: "info",
		},
		Admin: AdminConfig{
			Addr: "127.0.0.1:8080",
		},
	}
}

// LoadFile は設定ファイルを読み込む
// ファイルにない項目はDefaultの値のまま
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	return config, nil
}

// ApplyEnv は環境変数で設定を上書きする
func (f *FileConfig) ApplyEnv() error {
	f.Node.Role = envOrDefault(EnvRole, f.Node.Role)
	f.Node.Store = envOrDefault(EnvStore, f.Node.Store)
	f.Log.Level = envOrDefault(EnvLogLevel, f.Log.Level)
	if addr := os.Getenv(EnvAdminAddr); addr != "" {
		f.Admin.Addr = addr
		f.Admin.Enabled = true
	}

	var err error
	if f.Node.Workers, err = envIntOrDefault(EnvWorkers, f.Node.Workers); err != nil {
		return err
	}
	if f.Node.StartMsgID, err = envIntOrDefault(EnvStartMsgID, f.Node.StartMsgID); err != nil {
		return err
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

// NodeRole はノードの役割を返す
func (f *FileConfig) NodeRole() (node.Role, error) {
	return node.ParseRole(f.Node.Role)
}

// StoreMode はストア実装を返す
func (f *FileConfig) StoreMode() (store.Mode, error) {
	return store.ParseMode(f.Node.Store)
}

// LogLevel はログレベルを返す
func (f *FileConfig) LogLevel() (logger.Level, error) {
	return logger.ParseLevel(f.Log.Level)
}

// NodeOptions はnode.Configを組み立てる。IDはハンドシェイク後に決まる
func (f *FileConfig) NodeOptions(id string) node.Config {
	return node.Config{
		ID:         id,
		StartMsgID: f.Node.StartMsgID,
		Workers:    f.Node.Workers,
	}
}

// ToScenarioConfig はFileConfigをscenario.Configに変換する
// base の値を、ファイルに書かれた項目だけ上書きする
func (f *FileConfig) ToScenarioConfig(base scenario.Config) (scenario.Config, error) {
	sc := f.Scenario
	config := base

	if sc.Name != "" {
		config.Name = sc.Name
	}
	if sc.Description != "" {
		config.Description = sc.Description
	}
	if sc.Duration != "" {
		d, err := time.ParseDuration(sc.Duration)
		if err != nil {
			return config, fmt.Errorf("invalid duration: %w", err)
		}
		config.Duration = d
	}
	if sc.NodeCount > 0 {
		config.NodeCount = sc.NodeCount
	}

	// ノード設定はstdioノードと共通
	if f.Node.Workers > 0 {
		config.NodeWorkers = f.Node.Workers
	}
	if f.Node.Store != "" {
		mode, err := f.StoreMode()
		if err != nil {
			return config, err
		}
		config.StoreMode = mode
	}

	// Client設定
	if sc.Client.Workers > 0 {
		config.ClientWorkers = sc.Client.Workers
	}
	if sc.Client.WriteRatio > 0 {
		config.WriteRatio = sc.Client.WriteRatio
	}
	if sc.Client.CasRatio > 0 {
		config.CasRatio = sc.Client.CasRatio
	}
	if sc.Client.RequestTimeout != "" {
		d, err := time.ParseDuration(sc.Client.RequestTimeout)
		if err != nil {
			return config, fmt.Errorf("invalid request timeout: %w", err)
		}
		config.RequestTimeout = d
	}

	// Chaos設定
	if sc.Chaos.Enabled {
		config.EnableChaos = true
	}
	if sc.Chaos.Interval != "" {
		d, err := time.ParseDuration(sc.Chaos.Interval)
		if err != nil {
			return config, fmt.Errorf("invalid chaos interval: %w", err)
		}
		config.ChaosInterval = d
	}
	if sc.Chaos.Targets > 0 {
		config.ChaosTargets = sc.Chaos.Targets
	}
	if len(sc.Chaos.AttackTypes) > 0 {
		attacks, err := chaos.ParseAttackTypes(sc.Chaos.AttackTypes)
		if err != nil {
			return config, err
		}
		config.AttackTypes = attacks
	}
	if sc.Chaos.DelayAmount != "" {
		d, err := time.ParseDuration(sc.Chaos.DelayAmount)
		if err != nil {
			return config, fmt.Errorf("invalid chaos delay amount: %w", err)
		}
		config.DelayAmount = d
	}

	// Recovery設定
	if sc.Recovery.Enabled {
		config.EnableRecovery = true
	}
	if sc.Recovery.Delay != "" {
		d, err := time.ParseDuration(sc.Recovery.Delay)
		if err != nil {
			return config, fmt.Errorf("invalid recovery delay: %w", err)
		}
		config.RecoveryDelay = d
	}

	return config, nil
}

// Validate は設定を検証する
func (f *FileConfig) Validate() error {
	if _, err := f.NodeRole(); err != nil {
		return fmt.Errorf("node.role: %w", err)
	}
	if _, err := f.StoreMode(); err != nil {
		return fmt.Errorf("node.store: %w", err)
	}
	if _, err := f.LogLevel(); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	if f.Node.Workers < 0 {
		return fmt.Errorf("node.workers must be non-negative")
	}
	if f.Node.StartMsgID < 0 {
		return fmt.Errorf("node.start_msg_id must be non-negative")
	}

	if f.Admin.Enabled && f.Admin.Addr == "" {
		return fmt.Errorf("admin.addr is required when admin is enabled")
	}

	sc := f.Scenario

	if sc.NodeCount < 0 {
		return fmt.Errorf("scenario.node_count must be non-negative")
	}

	if sc.Client.Workers < 0 {
		return fmt.Errorf("scenario.client.workers must be non-negative")
	}

	if sc.Client.WriteRatio < 0 || sc.Client.WriteRatio > 1 {
		return fmt.Errorf("scenario.client.write_ratio must be between 0 and 1")
	}

	if sc.Client.CasRatio < 0 || sc.Client.WriteRatio+sc.Client.CasRatio > 1 {
		return fmt.Errorf("scenario.client.cas_ratio must be non-negative and write_ratio + cas_ratio must not exceed 1")
	}

	if sc.Chaos.Targets < 0 {
		return fmt.Errorf("scenario.chaos.targets must be non-negative")
	}

	return nil
}

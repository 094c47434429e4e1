package scenario

import (
	"sort"
	"time"

	"github.com/asg0451/crakv/internal/chaos"
	"github.com/asg0451/crakv/internal/store"
)

// BasicScenario は基本的なシナリオ設定を返す
// カオス注入なし、純粋な負荷テスト
func BasicScenario() Config {
	config := DefaultConfig()
	config.Name = "basic"
	config.Description = "Basic load test without chaos injection"
	config.EnableChaos = false
	config.EnableRecovery = false
	return config
}

// PartitionScenario はパーティション注入シナリオを返す
// 孤立したノードへのリクエストはタイムアウトになる
func PartitionScenario() Config {
	config := DefaultConfig()
	config.Name = "partition"
	config.Description = "Partition nodes from the client and heal them"
	config.Duration = 15 * time.Second
	config.NodeCount = 5
	config.ChaosInterval = 3 * time.Second
	config.AttackTypes = []chaos.AttackType{chaos.AttackPartition}
	config.RecoveryDelay = 1 * time.Second
	return config
}

// LatencyScenario はレイテンシ注入シナリオを返す
// Delay攻撃のみ
func LatencyScenario() Config {
	config := DefaultConfig()
	config.Name = "latency"
	config.Description = "Latency injection test"
	config.AttackTypes = []chaos.AttackType{chaos.AttackDelay}
	config.DelayAmount = 150 * time.Millisecond
	config.RecoveryDelay = 500 * time.Millisecond
	return config
}

// StressScenario は高負荷シナリオを返す
// 多数のワーカー、owned ストア、複数の攻撃タイプ
func StressScenario() Config {
	config := DefaultConfig()
	config.Name = "stress"
	config.Description = "High load stress test with multiple attack types"
	config.Duration = 20 * time.Second
	config.NodeCount = 7
	config.NodeWorkers = 8
	config.StoreMode = store.ModeOwned
	config.ClientWorkers = 50
	config.WriteRatio = 0.3
	config.CasRatio = 0.3
	config.ChaosTargets = 2
	config.RecoveryDelay = 500 * time.Millisecond
	return config
}

// QuickScenario はクイックテスト用シナリオを返す
// 短時間での動作確認用
func QuickScenario() Config {
	config := DefaultConfig()
	config.Name = "quick"
	config.Description = "Quick test for verification"
	config.Duration = 3 * time.Second
	config.ClientWorkers = 5
	config.ChaosInterval = 1 * time.Second
	config.RecoveryDelay = 500 * time.Millisecond
	return config
}

var presets = map[string]func() Config{
	"basic":     BasicScenario,
	"partition": PartitionScenario,
	"latency":   LatencyScenario,
	"stress":    StressScenario,
	"quick":     QuickScenario,
}

// GetPreset は名前からプリセットシナリオを取得する
func GetPreset(name string) (Config, bool) {
	if fn, ok := presets[name]; ok {
		return fn(), true
	}
	return Config{}, false
}

// ListPresets は利用可能なプリセット名を返す
func ListPresets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

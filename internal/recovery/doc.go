// Package recovery はネットワーク障害からの自動復旧機能を提供する。
//
// RecoveryManagerはクラスタ内のノードを監視し、ChaosMonkeyが注入した
// パーティションや遅延を一定時間後に解除する。
//
// # 機能
//
// - ヘルスチェック: 定期的にノードごとの障害設定を確認
// - 自動解除: RecoveryDelay を過ぎた障害を解除し chaos_heal を発行
// - 異常終了の検出: ノードループがエラーで終わったノードを一度だけ報告
//
// # 使用例
//
//	config := recovery.DefaultConfig()
//	config.HealthCheckInterval = 500 * time.Millisecond
//	config.RecoveryDelay = 2 * time.Second
//
//	manager := recovery.New(cluster, config)
//	manager.Start(ctx)
//	defer manager.Stop()
package recovery

// Package chaos はカオスエンジニアリング機能を提供する。
//
// ChaosMonkeyはクラスタのネットワーク上のノードに障害を注入し、
// タイムアウトやcasの失敗が正しく報告されるかを確かめるために使用される。
//
// # 障害タイプ
//
// - Partition: ノード宛て・ノード発のメッセージを全て破棄
// - Delay: ノードとの配送に遅延を注入
//
// 注入した障害の解除は recovery.Manager が行う。Stop時に残った障害は
// Monkey自身が解除する。
//
// # 使用例
//
//	config := chaos.DefaultConfig()
//	config.Interval = 3 * time.Second
//	config.TargetCount = 2
//
//	monkey := chaos.New(cluster, config)
//	monkey.Start(ctx)
//	defer monkey.Stop()
package chaos

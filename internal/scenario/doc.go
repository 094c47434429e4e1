// Package scenario は統合シナリオ実行機能を提供する。
//
// シナリオエンジンはクラスタ、Client、ChaosMonkey、RecoveryManagerを
// 連携させ、インプロセスのネットワーク上でKVノードに負荷と障害を与える。
//
// # プリセットシナリオ
//
// - basic: カオスなしの基本負荷テスト
// - partition: ノードの孤立と解除
// - latency: レイテンシ注入テスト
// - stress: 高負荷ストレステスト
// - quick: 短時間の動作確認
//
// # 使用例
//
//	config, _ := scenario.GetPreset("partition")
//	engine := scenario.New(config)
//	result, err := engine.Run(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Report())
package scenario

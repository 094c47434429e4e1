// Package main is the entry point for crakv.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asg0451/crakv/internal/admin"
	"github.com/asg0451/crakv/internal/bus"
	"github.com/asg0451/crakv/internal/config"
	"github.com/asg0451/crakv/internal/events"
	"github.com/asg0451/crakv/internal/logger"
	"github.com/asg0451/crakv/internal/node"
	"github.com/asg0451/crakv/internal/protocol"
	"github.com/asg0451/crakv/internal/scenario"
	"github.com/asg0451/crakv/internal/store"
)

var (
	version = "dev"
)

// options はコマンドラインフラグ
type options struct {
	configFile     string
	role           string
	logLevel       string
	workers        int
	storeMode      string
	startMsgID     int
	adminAddr      string
	sim            bool
	presetName     string
	duration       time.Duration
	nodes          int
	enableChaos    bool
	enableRecovery bool
	listPresets    bool
	showVersion    bool

	// 明示的に指定されたフラグ名
	set map[string]bool
}

func main() {
	var opts options

	// フラグ定義
	flag.StringVar(&opts.configFile, "config", "", "設定ファイルパス (YAML/JSON)")
	flag.StringVar(&opts.role, "role", "", "ノードの役割 (kv, echo)")
	flag.StringVar(&opts.logLevel, "log-level", "", "ログレベル (debug, info, warn, error)")
	flag.IntVar(&opts.workers, "workers", 0, "ハンドラワーカー数")
	flag.StringVar(&opts.storeMode, "store", "", "ストア実装 (locked, owned)")
	flag.IntVar(&opts.startMsgID, "start-msg-id", 0, "送信msg_idの開始値")
	flag.StringVar(&opts.adminAddr, "admin", "", "管理サーバーのアドレス (例: 127.0.0.1:8080)。指定すると有効化")
	flag.BoolVar(&opts.sim, "sim", false, "ローカルシミュレータでシナリオを実行")
	flag.StringVar(&opts.presetName, "preset", "", "プリセットシナリオ名 (basic, partition, latency, stress, quick)")
	flag.DurationVar(&opts.duration, "duration", 0, "シナリオ実行時間 (例: 10s, 1m)")
	flag.IntVar(&opts.nodes, "nodes", 0, "シミュレータのノード数")
	flag.BoolVar(&opts.enableChaos, "chaos", true, "カオス注入を有効化")
	flag.BoolVar(&opts.enableRecovery, "recovery", true, "障害の自動解除を有効化")
	flag.BoolVar(&opts.listPresets, "list-presets", false, "利用可能なプリセットを表示")
	flag.BoolVar(&opts.showVersion, "version", false, "バージョンを表示")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `crakv - linearizable key-value node for Maelstrom

Usage:
  crakv [options]

Options:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Maelstromからノードとして起動
  maelstrom test -w lin-kv --bin crakv

  # echoノードとして起動
  crakv -role echo

  # ローカルシミュレータでプリセットを実行
  crakv -sim -preset partition

  # 管理サーバー付きでシミュレータを実行
  crakv -sim -preset quick -admin 127.0.0.1:8080
`)
	}

	flag.Parse()

	opts.set = make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		opts.set[f.Name] = true
	})

	// バージョン表示
	if opts.showVersion {
		fmt.Printf("crakv version %s\n", version)
		return
	}

	// プリセット一覧表示
	if opts.listPresets {
		printPresets()
		return
	}

	cfg, err := buildConfig(opts)
	if err != nil {
		logger.Error("", "config error: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.sim {
		err = runScenario(ctx, cfg, opts)
	} else {
		err = runNode(ctx, cfg)
	}
	if err != nil {
		logger.Error("", "%v", err)
		stop()
		os.Exit(1)
	}
}

// buildConfig はファイル、環境変数、フラグの順に設定を重ねる
func buildConfig(opts options) (*config.FileConfig, error) {
	cfg := config.Default()
	if opts.configFile != "" {
		loaded, err := config.LoadFile(opts.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	// フラグが明示的に指定された場合のみオーバーライド
	if opts.set["role"] {
		cfg.Node.Role = opts.role
	}
	if opts.set["log-level"] {
		cfg.Log.Level = opts.logLevel
	}
	if opts.set["workers"] {
		cfg.Node.Workers = opts.workers
	}
	if opts.set["store"] {
		cfg.Node.Store = opts.storeMode
	}
	if opts.set["start-msg-id"] {
		cfg.Node.StartMsgID = opts.startMsgID
	}
	if opts.set["admin"] {
		cfg.Admin.Addr = opts.adminAddr
		cfg.Admin.Enabled = opts.adminAddr != ""
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)

	return cfg, nil
}

// runNode はstdio上で1ノードを動かす
func runNode(ctx context.Context, cfg *config.FileConfig) error {
	role, err := cfg.NodeRole()
	if err != nil {
		return err
	}

	conn := bus.NewStdio(os.Stdin, os.Stdout)

	id, err := protocol.Handshake(ctx, conn, conn, cfg.Node.StartMsgID)
	if err != nil {
		if errors.Is(err, bus.ErrClosed) {
			return nil
		}
		return fmt.Errorf("handshake: %w", err)
	}

	nodeConfig := cfg.NodeOptions(id.ID)
	nodeConfig.StartMsgID = id.NextMsgID

	var n *node.Node
	switch role {
	case node.RoleEcho:
		n = node.NewEcho(nodeConfig, conn, conn)
	default:
		mode, err := cfg.StoreMode()
		if err != nil {
			return err
		}
		s, closeStore := store.New(mode)
		defer closeStore()
		n = node.NewKV(nodeConfig, s, conn, conn)
	}

	eventBus := events.NewBus()
	defer eventBus.Close()
	n.SetEventBus(eventBus)

	if cfg.Admin.Enabled {
		server := admin.NewServer(cfg.Admin.Addr, eventBus)
		server.AddNode(n)
		startAdmin(ctx, server)
	}

	err = n.Run(ctx)
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		logger.Info(id.ID, "interrupted, shutting down")
		return nil
	}
	if err != nil {
		return fmt.Errorf("node %s failed: %w", id.ID, err)
	}
	return nil
}

// runScenario はローカルシミュレータでシナリオを実行する
func runScenario(ctx context.Context, cfg *config.FileConfig, opts options) error {
	var base scenario.Config
	if opts.presetName != "" {
		preset, ok := scenario.GetPreset(opts.presetName)
		if !ok {
			return fmt.Errorf("unknown preset: %s (available: %v)", opts.presetName, scenario.ListPresets())
		}
		base = preset
	} else {
		base = scenario.QuickScenario()
	}

	sc, err := cfg.ToScenarioConfig(base)
	if err != nil {
		return fmt.Errorf("invalid scenario config: %w", err)
	}

	if opts.duration > 0 {
		sc.Duration = opts.duration
	}
	if opts.nodes > 0 {
		sc.NodeCount = opts.nodes
	}
	if opts.set["chaos"] {
		sc.EnableChaos = opts.enableChaos
	}
	if opts.set["recovery"] {
		sc.EnableRecovery = opts.enableRecovery
	}

	fmt.Println("crakv - local simulator")
	fmt.Println("=======================")
	fmt.Printf("Scenario: %s\n", sc.Name)
	fmt.Printf("Duration: %v\n", sc.Duration)
	fmt.Printf("Nodes: %d (%s store), Client workers: %d\n", sc.NodeCount, sc.StoreMode, sc.ClientWorkers)
	fmt.Printf("Chaos: %v, Recovery: %v\n", sc.EnableChaos, sc.EnableRecovery)
	fmt.Println("=======================")
	fmt.Println()

	eventBus := events.NewBus()
	defer eventBus.Close()

	engine := scenario.New(sc)
	engine.SetEventBus(eventBus)

	if cfg.Admin.Enabled {
		server := admin.NewServer(cfg.Admin.Addr, eventBus)
		server.SetEngine(engine)
		startAdmin(ctx, server)
	}

	result, err := engine.Run(ctx)
	if err != nil {
		return err
	}

	// レポート出力
	fmt.Println(result.Report())
	return nil
}

// startAdmin は管理サーバーをバックグラウンドで起動する
func startAdmin(ctx context.Context, server *admin.Server) {
	go func() {
		if err := server.Start(ctx); err != nil {
			logger.Error("", "admin server error: %v", err)
		}
	}()
}

// printPresets は利用可能なプリセットを表示する
func printPresets() {
	fmt.Println("利用可能なプリセットシナリオ:")
	fmt.Println()

	for _, name := range scenario.ListPresets() {
		preset, _ := scenario.GetPreset(name)
		fmt.Printf("  %-12s %s\n", name, preset.Description)
	}

	fmt.Println()
	fmt.Println("使用例: crakv -sim -preset quick")
}

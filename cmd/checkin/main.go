package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"checkin_engine/internal/browser"
	"checkin_engine/internal/config"
	"checkin_engine/internal/engine"
	"checkin_engine/internal/logbus"
	"checkin_engine/internal/model"
	"checkin_engine/internal/notify"
	"checkin_engine/internal/provider"
	"checkin_engine/internal/provider/newapi"
	"checkin_engine/internal/store/sqlite"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "./config.yaml", "path to config.yaml")
	flag.Parse()

	// .env 不存在时静默跳过，环境变量优先级高于文件
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("load config: %v", err)
		return 1
	}

	bus := logbus.New(500)
	defer bus.Close()
	stopLog := bus.WriteTo(os.Stdout)
	defer stopLog()

	kit := notify.NewKit(cfg.Notify, bus)

	accounts, accErr := config.LoadAccounts()

	providers, warnings := config.LoadProviders(cfg.ProvidersFile)
	for _, w := range warnings {
		bus.Log("warn", "provider 配置被跳过", map[string]any{"detail": w})
	}

	ctx := context.Background()
	var store engine.Store
	if cfg.Storage.DisableDB {
		bus.Log("info", "数据库已禁用，使用内存存储", nil)
		store = engine.NewMemoryStore()
	} else {
		db, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			bus.Log("error", "打开数据库失败", map[string]any{"error": err.Error()})
			return 1
		}
		defer db.Close()
		syncStore(ctx, bus, db, providers, accounts)

		// 数据库里的账号/provider 覆盖环境变量：跨次运行保留抓取过的配置
		if stored, err := db.ListActiveAccounts(ctx); err != nil {
			bus.Log("warn", "读取数据库账号失败", map[string]any{"error": err.Error()})
		} else if len(stored) > 0 {
			accounts, accErr = stored, nil
		}
		if stored, err := db.ListProviders(ctx); err != nil {
			bus.Log("warn", "读取数据库 provider 失败", map[string]any{"error": err.Error()})
		} else {
			for name, p := range stored {
				if _, ok := providers[name]; !ok {
					providers[name] = p
				}
			}
		}
		store = db
	}

	if accErr != nil {
		bus.Log("error", "账号配置无效", map[string]any{"error": accErr.Error()})
		notifyConfigError(kit, accErr)
		return 1
	}

	fetcher := browser.NewFetcher(cfg.Browser, bus)
	defer fetcher.Close()

	eng := engine.New(engine.Options{
		Registry: provider.NewRegistry(providers),
		Store:    store,
		Notifier: kit,
		Browser:  fetcher,
		Bus:      bus,
		Limits:   cfg.Limits,
		Clients: func(prov model.ProviderConfig) engine.APIClient {
			return newapi.NewClient(cfg.HTTP, prov, bus)
		},
	})

	summary, err := eng.Run(ctx, accounts)
	if err != nil {
		bus.Log("error", "签到执行失败", map[string]any{"error": err.Error()})
		return 1
	}

	fmt.Println(summary.Render(time.Now()))
	if !summary.AllSucceeded() {
		return 1
	}
	return 0
}

// syncStore 把本次加载的 providers 与账号回写数据库，便于后续查询历史。
func syncStore(ctx context.Context, bus *logbus.Bus, db *sqlite.Store, providers map[string]model.ProviderConfig, accounts []model.Account) {
	for _, p := range providers {
		if err := db.UpsertProvider(ctx, p); err != nil {
			bus.Log("warn", "保存 provider 失败", map[string]any{"provider": p.Name, "error": err.Error()})
		}
	}
	for _, acc := range accounts {
		if _, err := db.UpsertAccount(ctx, acc); err != nil {
			bus.Log("warn", "保存账号失败", map[string]any{"account": acc.Key(), "error": err.Error()})
		}
	}
}

func notifyConfigError(kit *notify.Kit, err error) {
	if kit.ChannelCount() == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	kit.Push(ctx, "签到配置错误", err.Error())
}

package main

import (
	"ConsumerSegmentation/src/config"
	"ConsumerSegmentation/src/dashboard"
	"ConsumerSegmentation/src/datasource/file"
	"ConsumerSegmentation/src/storage"
	"ConsumerSegmentation/src/web"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/robfig/cron"
)

func main() {
	jsonFolder := "./config"
	jsonFile := "config.json"
	dataJsonFile := "dataconfig.json"
	cfg, dcfg, err := config.LoadConfig(jsonFolder, jsonFile, dataJsonFile)
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// 初始化日志系统
	logger, err := storage.NewLogger(cfg.LogName)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}

	style, err := web.LoadStyleSheet(cfg.StyleSheet)
	if err != nil {
		logger.Fatal(err.Error())
		log.Fatal(err)
	}

	t1 := time.Now()
	dataset, err := file.LoadDataset(cfg, dcfg)
	if err != nil {
		logger.Fatal(err.Error())
		log.Fatal(err)
	}
	if !dataset.HasOnline {
		logger.Warning(fmt.Sprintf("column %q not found in %s", dataset.Schema.Online, dataset.Path))
	}
	logger.Info(fmt.Sprintf("数据集 %s 加载完成: %d 行, 用时 %v", dataset.Path, dataset.Frame.Nrow(), time.Since(t1)))

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		logger.Fatal(err.Error())
		log.Fatal(err)
	}

	printer, err := dashboard.NewPrinter(cfg.Language)
	if err != nil {
		logger.Warning(err.Error())
	}

	env := &dashboard.Env{
		Dataset:   dataset,
		Data:      dcfg,
		OutputDir: cfg.OutputDir,
		Printer:   printer,
		Log:       logger,
	}
	registry := dashboard.NewRegistry(env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 样式表热更新
	monitor, err := file.NewFileMonitor(cfg.StyleSheet)
	if err != nil {
		logger.Warning("stylesheet watch disabled: " + err.Error())
	} else {
		defer monitor.Close()
		go func() {
			err := monitor.Watch(ctx, func(path string) {
				if err := style.Reload(); err != nil {
					logger.Error(err.Error())
					return
				}
				logger.Info("stylesheet reloaded: " + path)
			})
			if err != nil {
				logger.Error("stylesheet watch: " + err.Error())
			}
		}()
	}

	// 设置定时任务
	c := cron.New()
	ttl := cfg.Server.SessionTTL.Std()
	cronSpec := fmt.Sprintf("@every %s", cfg.Server.CleanupInterval.Std())
	err = c.AddFunc(cronSpec, func() {
		evicted := registry.Evict(ttl)
		logger.Debug(fmt.Sprintf("会话清理(间隔: %v): 回收 %d 个, 剩余 %d 个", cronSpec, len(evicted), registry.Len()))
	})
	if err != nil {
		logger.Fatal("创建定时任务失败: " + err.Error())
		log.Fatal(err)
	}
	err = c.AddFunc("@every 1m", func() {
		if err := logger.CheckRotate(cfg); err != nil {
			logger.Error("log rotate: " + err.Error())
		}
	})
	if err != nil {
		logger.Fatal("创建定时任务失败: " + err.Error())
		log.Fatal(err)
	}
	c.Start()
	defer c.Stop()

	e, err := web.BuildServer(web.Deps{
		Env:      env,
		Registry: registry,
		Style:    style,
		Logs:     logger,
	}, cfg.Server.LogLevel)
	if err != nil {
		logger.Fatal(err.Error())
		log.Fatal(err)
	}

	if err := writePid(cfg.PidFile); err != nil {
		logger.Warning("write pid file: " + err.Error())
	}
	defer os.Remove(cfg.PidFile)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server: " + err.Error())
			log.Fatal(err)
		}
	}()
	logger.Info(fmt.Sprintf("服务已启动 %s (会话超时: %v)，按Ctrl+C退出", addr, ttl))

	waitForShutdown(logger)

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown: " + err.Error())
	}
	registry.Close()
	logger.Close()
}

// waitForShutdown 阻塞到收到 SIGINT/SIGTERM；SIGHUP 重新打开日志文件
func waitForShutdown(logger *storage.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for sig := range sigChan {
		if sig == syscall.SIGHUP {
			if err := logger.Reopen(""); err != nil {
				log.Println("reopen log:", err)
				continue
			}
			logger.Info("log file reopened")
			continue
		}
		logger.Info("Received signal: " + sig.String() + ", shutting down...")
		return
	}
}

func writePid(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644)
}

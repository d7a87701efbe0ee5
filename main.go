package main

import (
	"ConsumerSegmentation/src/config"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// 通知正在运行的服务重新打开日志文件，配合外部 logrotate 使用
func main() {
	cfg, _, err := config.LoadConfig("./config", "config.json", "dataconfig.json")
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	pid, err := readPid(cfg.PidFile)
	if err != nil {
		log.Fatal(err)
	}

	// 向服务进程发送 SIGHUP
	if err := syscall.Kill(pid, syscall.SIGHUP); err != nil {
		log.Fatal("Failed to send SIGHUP:", err)
	}
	log.Printf("SIGHUP sent to %d", pid)
}

func readPid(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid in %s: %q", path, data)
	}
	return pid, nil
}

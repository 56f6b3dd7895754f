package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/sergeysmolkin-grodt/SilverBullet/config"
	"github.com/sergeysmolkin-grodt/SilverBullet/logs"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to the config.yaml file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Println("Note: .env file not found, will continue using system environment variables.")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Fatal error: Unable to load config file '%s': %v\n", *configPath, err)
		return
	}

	envCfg := config.LoadEnvConfig()

	symbolUpper := strings.ToUpper(cfg.Symbol)
	logFilename := fmt.Sprintf("%s/%s_signals.log", cfg.Normal.LogDirectory, symbolUpper)
	stateFilename := fmt.Sprintf("%s/%s_state.json", cfg.Normal.StateDirectory, symbolUpper)

	if err := logs.Init(cfg.Logs, logFilename); err != nil {
		fmt.Printf("Fatal error: Failed to initialize logging system: %v\n", err)
		return
	}
	defer logs.Close()

	logs.Infof("Configuration loaded successfully, logs will be written to: %s", logFilename)
	for _, w := range cfg.Warnings {
		logs.Warnf("[Config] %s", w)
	}

	orchestrator, err := NewOrchestrator(cfg, envCfg, stateFilename)
	if err != nil {
		logs.Fatalf("Failed to initialize Orchestrator: %v", err)
	}
	if err := orchestrator.Start(); err != nil {
		logs.Fatalf("Failed to start: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	orchestrator.Stop()
}

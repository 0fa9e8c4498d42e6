package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"polybot-go/internal/config"
	"polybot-go/internal/market"
)

const defaultConfigPath = "internal/config/config.yaml"

func main() {
	reader := bufio.NewReader(os.Stdin)

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	for {
		fmt.Println("\n=== PolyBot Control ===")
		fmt.Println("1) Show configuration summary")
		fmt.Println("2) Edit risk knobs")
		fmt.Println("3) Edit signal knobs")
		fmt.Println("4) Edit tracked interval")
		fmt.Println("5) Save config")
		fmt.Println("6) Launch bot")
		fmt.Println("7) Reload config from disk")
		fmt.Println("0) Exit")
		fmt.Print("Select option: ")

		input, _ := reader.ReadString('\n')
		choice := strings.TrimSpace(input)

		switch choice {
		case "1":
			printSummary(cfg)
		case "2":
			editRisk(reader, cfg)
		case "3":
			editSignal(reader, cfg)
		case "4":
			editInterval(reader, cfg)
		case "5":
			if err := saveConfig(cfg); err != nil {
				fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			} else {
				fmt.Println("config saved")
			}
		case "6":
			launchBot(reader)
		case "7":
			reloaded, err := loadConfig()
			if err != nil {
				fmt.Fprintf(os.Stderr, "reload failed: %v\n", err)
			} else {
				cfg = reloaded
				fmt.Println("config reloaded")
			}
		case "0":
			return
		default:
			fmt.Println("unknown option")
		}
	}
}

func printSummary(cfg *config.Config) {
	fmt.Println("\n--- Configuration Summary ---")
	fmt.Printf("Interval: %s (tick every %s)\n", cfg.Bot.Interval, cfg.Bot.UpdateInterval)
	fmt.Printf("Max exposure: $%.2f\n", cfg.Risk.MaxExposure)
	fmt.Printf("Risk per trade: %.2f%%\n", cfg.Risk.RiskPerTrade*100)
	fmt.Printf("Max position size: $%.2f\n", cfg.Signal.MaxPositionSize)
	fmt.Printf("Arbitrage threshold: %.2f%%\n", cfg.Signal.ArbitrageThreshold*100)
	fmt.Printf("Min confidence: %d | momentum window: %s\n", cfg.Signal.MinConfidence, cfg.Signal.MomentumWindow)
	fmt.Printf("Stub feed: %t | telegram: %t\n", cfg.Feeds.Stub, cfg.Telegram.Enabled)
}

func editRisk(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Risk ---")
	cfg.Risk.MaxExposure = promptFloat(reader, "Max exposure (USD)", cfg.Risk.MaxExposure)
	cfg.Risk.RiskPerTrade = promptPercent(reader, "Risk per trade (%)", cfg.Risk.RiskPerTrade)
}

func editSignal(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Signal ---")
	cfg.Signal.MaxPositionSize = promptFloat(reader, "Max position size (USD)", cfg.Signal.MaxPositionSize)
	cfg.Signal.ArbitrageThreshold = promptPercent(reader, "Arbitrage threshold (%)", cfg.Signal.ArbitrageThreshold)
	cfg.Signal.MinConfidence = int(promptFloat(reader, "Min confidence (0-100)", float64(cfg.Signal.MinConfidence)))
}

func editInterval(reader *bufio.Reader, cfg *config.Config) {
	fmt.Printf("Interval (5m, 15m, all) [%s]: ", cfg.Bot.Interval)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if _, err := market.ParseIntervals(line); err != nil {
		fmt.Printf("invalid interval, keeping %s\n", cfg.Bot.Interval)
		return
	}
	cfg.Bot.Interval = line
}

func launchBot(reader *bufio.Reader) {
	fmt.Println("Launching bot (Ctrl+C to stop)...")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "go", "run", "./cmd/polybot", "-config", locateConfig())
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start bot: %v\n", err)
		return
	}

	go func() {
		_ = cmd.Wait()
		cancel()
	}()

	fmt.Print("\nPress ENTER to stop the bot and return to menu...")
	_, _ = reader.ReadString('\n')
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func promptFloat(reader *bufio.Reader, label string, current float64) float64 {
	fmt.Printf("%s [%.2f]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := strconv.ParseFloat(line, 64)
	if err != nil {
		fmt.Printf("invalid number, keeping %.2f\n", current)
		return current
	}
	return val
}

func promptPercent(reader *bufio.Reader, label string, current float64) float64 {
	pct := promptFloat(reader, label, current*100)
	return pct / 100
}

func loadConfig() (*config.Config, error) {
	return config.Load(locateConfig())
}

func saveConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return config.Save(locateConfig(), cfg)
}

func locateConfig() string {
	return filepath.Clean(defaultConfigPath)
}

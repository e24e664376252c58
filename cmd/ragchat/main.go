package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"ragserver/internal/client"
	"ragserver/internal/config"
	"ragserver/internal/tui"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	var topK int
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional)")
	flag.IntVar(&topK, "top-k", 5, "Number of context chunks to retrieve per question")
	flag.Parse()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	baseURL := cfg.Client.BaseURL
	if v := os.Getenv("RAG_API_URL"); v != "" {
		baseURL = v
	}
	api := client.New(baseURL, 2*time.Minute)

	health, err := api.Health()
	if err != nil {
		log.Fatalf("server unreachable at %s: %v", baseURL, err)
	}

	// Any file arguments are uploaded before the chat starts.
	for _, path := range flag.Args() {
		res, err := api.Upload(path)
		if err != nil {
			log.Fatalf("upload %s failed: %v", path, err)
		}
		fmt.Printf("Ingested %s (%d chunks)\n", res.DocumentName, res.ChunksCreated)
	}

	banner := fmt.Sprintf("Connected to %s", baseURL)
	if stats, err := api.Stats(); err == nil {
		banner = fmt.Sprintf("Connected to %s, %d chunks indexed", baseURL, stats.TotalChunks)
	}
	if !health.LLMConfigured {
		banner += " (warning: LLM not configured on server)"
	}

	m := tui.New(api, topK, banner)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		log.Fatal(err)
	}
}

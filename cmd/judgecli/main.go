package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/dheerajgaurgithub/earnbycode-judge/internal/cli/command"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/cli/config"
	httpclient "github.com/dheerajgaurgithub/earnbycode-judge/internal/cli/http"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/cli/repl"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/cli/state"
)

const defaultConfigPath = "configs/judgecli.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	baseURL := flag.String("base", "", "Override judge server base URL")
	timeout := flag.Duration("timeout", 0, "Override HTTP timeout (e.g. 30s)")
	statePath := flag.String("state", "", "Override session state path")
	pretty := flag.Bool("pretty", false, "Pretty print JSON response")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if *statePath != "" {
		cfg.StatePath = *statePath
	}
	if *pretty {
		trueValue := true
		cfg.PrettyJSON = &trueValue
	}

	sess, err := state.Load(cfg.StatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load session state failed: %v\n", err)
		return
	}

	client := httpclient.New(cfg.BaseURL, cfg.Timeout)

	commands := command.Registry()
	session := repl.New(client, commands, &sess, cfg.StatePath, cfg.HistoryPath, cfg.PrettyJSON != nil && *cfg.PrettyJSON)
	if err := session.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "session failed: %v\n", err)
	}
}

// Command omniforge runs the multi-tenant agent execution runtime.
//
// Usage:
//
//	omniforge serve --config omniforge.yaml
//	omniforge validate --config omniforge.yaml
//	omniforge version
package main

import (
	"fmt"
	"runtime/debug"

	"github.com/alecthomas/kong"

	"github.com/omniforge-ai/omniforge/pkg/config"
	"github.com/omniforge-ai/omniforge/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP server."`
	Validate ValidateCmd `cmd:"" help:"Validate configuration file."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat string `help:"Log format (text or json)." default:"text"`
	LogFile   string `help:"Log file path (empty = stderr)."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("omniforge version %s\n", version)
	return nil
}

// ValidateCmd checks a configuration file without starting anything.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	if err := config.LoadEnvFiles(); err != nil {
		return err
	}
	cfg, err := config.LoadFromFile(cli.Config)
	if err != nil {
		return err
	}
	fmt.Printf("configuration valid: %d agent(s), storage=%s\n", len(cfg.Agents), cfg.Storage.Backend)
	return nil
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("omniforge"),
		kong.Description("Multi-tenant autonomous agent execution runtime."),
		kong.UsageOnError(),
	)

	closer, err := logger.Setup(logger.Options{
		Level:  cli.LogLevel,
		Format: cli.LogFormat,
		File:   cli.LogFile,
	})
	ctx.FatalIfErrorf(err)
	if closer != nil {
		defer closer.Close()
	}

	ctx.FatalIfErrorf(ctx.Run(cli))
}

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/linkerlin/chatauto.go/internal/config"
	"github.com/linkerlin/chatauto.go/internal/host"
	"github.com/linkerlin/chatauto.go/internal/orchestrator"
)

const usage = `Usage: chatauto <command> [flags] [args]

Commands:
  panel          open the terminal control panel (default)
  run            run enabled schedules without a panel
  send           send every enabled message once
  add            add a message: chatauto add [-delay 2s] text
  list           list messages and schedules
  export         write messages and schedules as YAML
  import         read messages and schedules from YAML
  auto-continue  copy the auto-continue script to the clipboard (-once, -sidebar)
  commands       list chat related host commands
  bridge         serve a dry-run host on the bridge socket
`

type command func(ctx context.Context, cfg *config.Config, fs *flag.FlagSet) error

var commands = map[string]struct {
	run   command
	flags func(fs *flag.FlagSet)
}{
	"panel":         {run: runPanel},
	"run":           {run: runDaemon},
	"send":          {run: runSend},
	"add":           {run: runAdd, flags: addFlags},
	"list":          {run: runList},
	"export":        {run: runExport, flags: exportFlags},
	"import":        {run: runImport, flags: importFlags},
	"auto-continue": {run: runAutoContinue, flags: autoContinueFlags},
	"commands":      {run: runCommands},
	"bridge":        {run: runBridge},
}

func main() {
	name := "panel"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		name, args = args[0], args[1:]
	}
	if name == "help" {
		fmt.Print(usage)
		return
	}

	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n%s", name, usage)
		os.Exit(2)
	}

	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("c", "", "Path to config file")
	if cmd.flags != nil {
		cmd.flags(fs)
	}
	fs.Parse(args)

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	closeLog, err := setupLogging(cfg, name == "panel")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.run(ctx, cfg, fs); err != nil {
		slog.Error("Command failed", "command", name, "err", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		closeLog()
		os.Exit(1)
	}
}

// setupLogging installs the default slog logger. The panel owns the terminal,
// so in panel mode logs go to a file in the data dir.
func setupLogging(cfg *config.Config, toFile bool) (func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	closeFn := func() {}
	if toFile {
		if err := os.MkdirAll(cfg.App.DataDir, 0o755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(filepath.Join(cfg.App.DataDir, "chatauto.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		w = f
		closeFn = func() { f.Close() }
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.Log.Format == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
	return closeFn, nil
}

// open wires the orchestrator to the host bridge socket.
func open(cfg *config.Config, opts orchestrator.Options) (*orchestrator.Orchestrator, error) {
	return orchestrator.New(cfg, host.NewClient(cfg.Host.Socket), opts)
}

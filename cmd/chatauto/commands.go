package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/linkerlin/chatauto.go/internal/chat"
	"github.com/linkerlin/chatauto.go/internal/config"
	"github.com/linkerlin/chatauto.go/internal/delay"
	"github.com/linkerlin/chatauto.go/internal/host"
	"github.com/linkerlin/chatauto.go/internal/orchestrator"
	"github.com/linkerlin/chatauto.go/internal/panel"
	"github.com/linkerlin/chatauto.go/internal/store"
	"github.com/linkerlin/chatauto.go/internal/tui"
	"github.com/linkerlin/chatauto.go/internal/types"
)

func runPanel(ctx context.Context, cfg *config.Config, _ *flag.FlagSet) error {
	var surface *tui.Surface
	o, err := open(cfg, orchestrator.Options{
		Surface: func(c *panel.Controller) (panel.Surface, error) {
			surface = tui.New(ctx, c)
			return surface, nil
		},
	})
	if err != nil {
		return err
	}
	defer o.Close()

	if _, err := o.Start(ctx); err != nil {
		return err
	}
	if err := o.OpenPanel(ctx); err != nil {
		return err
	}
	slog.Info("chatauto started", "name", cfg.App.Name, "workspace", o.Workspace().Path)
	return surface.Run(ctx)
}

func runDaemon(ctx context.Context, cfg *config.Config, _ *flag.FlagSet) error {
	o, err := open(cfg, orchestrator.Options{})
	if err != nil {
		return err
	}
	defer o.Close()

	started, err := o.Start(ctx)
	if err != nil {
		return err
	}
	slog.Info("chatauto running", "workspace", o.Workspace().Path, "schedules", started)
	<-ctx.Done()
	slog.Info("shutting down...")
	return nil
}

func runSend(ctx context.Context, cfg *config.Config, _ *flag.FlagSet) error {
	o, err := open(cfg, orchestrator.Options{})
	if err != nil {
		return err
	}
	defer o.Close()

	res, err := o.SendAll(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Sent %d/%d messages.\n", res.Sent, res.Total)
	return nil
}

var addDelay string

func addFlags(fs *flag.FlagSet) {
	fs.StringVar(&addDelay, "delay", delay.Format(types.DefaultDelayMs), "Delay before sending, e.g. 500ms, 2s, 1m")
}

func runAdd(ctx context.Context, cfg *config.Config, fs *flag.FlagSet) error {
	text := strings.Join(fs.Args(), " ")
	o, err := open(cfg, orchestrator.Options{})
	if err != nil {
		return err
	}
	defer o.Close()

	msg, err := o.Store().AddMessage(text, delay.Parse(addDelay))
	if err != nil {
		return err
	}
	fmt.Printf("Added %s (delay %s)\n", msg.ID, delay.Format(msg.DelayMs))
	return nil
}

func runList(ctx context.Context, cfg *config.Config, _ *flag.FlagSet) error {
	o, err := open(cfg, orchestrator.Options{})
	if err != nil {
		return err
	}
	defer o.Close()

	msgs, err := o.Store().ListMessages()
	if err != nil {
		return err
	}
	schedules, err := o.Store().ListSchedules()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Workspace\t%s\n\n", o.Workspace().Path)
	fmt.Fprintln(w, "ID\tON\tDELAY\tTEXT")
	for _, m := range msgs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.ID, onOff(m.Enabled), delay.Format(m.DelayMs), m.Preview(50))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "ID\tON\tNAME\tTRIGGER\tNEXT RUN")
	for _, sc := range schedules {
		next := "-"
		if sc.NextRunTimestamp != nil {
			next = types.FromMs(*sc.NextRunTimestamp).Format("2006-01-02 15:04:05")
		}
		desc := "-"
		if sc.Trigger != nil {
			desc = sc.Trigger.Describe()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", sc.ID, onOff(sc.Enabled), sc.Name, desc, next)
	}
	return w.Flush()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

var exportPath string

func exportFlags(fs *flag.FlagSet) {
	fs.StringVar(&exportPath, "o", "", "Output file (default stdout)")
}

func runExport(ctx context.Context, cfg *config.Config, _ *flag.FlagSet) error {
	o, err := open(cfg, orchestrator.Options{})
	if err != nil {
		return err
	}
	defer o.Close()

	b, err := o.Store().Export()
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if exportPath != "" {
		f, err := os.Create(exportPath)
		if err != nil {
			return fmt.Errorf("create %s: %w", exportPath, err)
		}
		defer f.Close()
		w = f
	}
	return store.EncodeBundle(w, b)
}

var importReplace bool

func importFlags(fs *flag.FlagSet) {
	fs.BoolVar(&importReplace, "replace", false, "Replace existing messages and schedules")
}

func runImport(ctx context.Context, cfg *config.Config, fs *flag.FlagSet) error {
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: chatauto import [-replace] <file>")
	}
	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := store.DecodeBundle(f)
	if err != nil {
		return err
	}

	o, err := open(cfg, orchestrator.Options{})
	if err != nil {
		return err
	}
	defer o.Close()

	if importReplace {
		o.Scheduler().StopAll()
	}
	res, err := o.Store().Import(b, importReplace)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d messages and %d schedules.\n", res.Messages, res.Schedules)
	return nil
}

var (
	continueOnce  bool
	toggleSidebar bool
)

func autoContinueFlags(fs *flag.FlagSet) {
	fs.BoolVar(&continueOnce, "once", false, "Run the first host continue command instead of copying the script")
	fs.BoolVar(&toggleSidebar, "sidebar", false, "Toggle the chat sessions sidebar first")
}

func runAutoContinue(ctx context.Context, cfg *config.Config, _ *flag.FlagSet) error {
	o, err := open(cfg, orchestrator.Options{})
	if err != nil {
		return err
	}
	defer o.Close()

	auto := o.AutoContinue()
	if toggleSidebar {
		if _, ok := auto.ToggleSessionsSidebar(ctx); !ok {
			fmt.Println("No sessions sidebar command available.")
		}
	}

	if continueOnce {
		name, ok := auto.TryContinue(ctx)
		if !ok {
			return fmt.Errorf("no continue command available on the host")
		}
		fmt.Printf("Ran %s\n", name)
		return nil
	}

	if err := auto.Start(ctx); err != nil {
		return err
	}
	fmt.Println("Auto-continue script copied to the clipboard.")
	fmt.Println("Paste it into the developer tools console of the chat window and press Enter.")
	fmt.Println("Run window.stopAutoContinue() there to stop it.")
	return nil
}

func runCommands(ctx context.Context, cfg *config.Config, _ *flag.FlagSet) error {
	gw := host.NewGateway(host.NewClient(cfg.Host.Socket), cfg.Host.CommandTimeout)
	names, err := gw.Discover(ctx, chat.DiscoverPatterns...)
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

func runBridge(ctx context.Context, cfg *config.Config, _ *flag.FlagSet) error {
	known := []string{chat.TypeCommand}
	for _, table := range [][]host.Invocation{chat.NewChatCommands, chat.OpenChatCommands, chat.SubmitCommands} {
		for _, inv := range table {
			known = append(known, inv.Command)
		}
	}

	srv, err := host.NewServer(cfg.Host.Socket, host.NewDryRun(known...))
	if err != nil {
		return err
	}
	defer srv.Stop()

	slog.Info("Dry-run host listening", "socket", srv.Path())
	return srv.Serve(ctx)
}

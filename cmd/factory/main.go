// Command factory runs a single task through the pipeline and prints the
// outcome. It is the one-shot entry point; cmd/factoryd is the service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	factoryflow "github.com/randalmurphal/factoryflow"
	"github.com/randalmurphal/factoryflow/config"
)

func main() {
	phaseFlag := flag.String("phase", string(factoryflow.PhaseDirect), "pipeline phase: direct, prd, spec, or implement")
	workspace := flag.String("workspace", "", "repository checkout to operate in (overrides config)")
	setFlag := flag.String("set", "", "save a config value (key=value) to ~/.config/factory/config.yaml and exit")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	if *verbose {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	if *setFlag != "" {
		if err := saveConfig(*setFlag); err != nil {
			fmt.Fprintf(os.Stderr, "factory: %v\n", err)
			os.Exit(1)
		}
		return
	}

	task := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if task == "" {
		fmt.Fprintln(os.Stderr, "usage: factory [flags] <task description>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := run(task, factoryflow.Phase(*phaseFlag), *workspace); err != nil {
		fmt.Fprintf(os.Stderr, "factory: %v\n", err)
		os.Exit(1)
	}
}

func saveConfig(pair string) error {
	key, value, ok := strings.Cut(pair, "=")
	if !ok || key == "" {
		return fmt.Errorf("invalid -set value %q (want key=value)", pair)
	}
	if err := config.NewPipelineSaver().SaveGlobal(key, value); err != nil {
		return err
	}
	fmt.Printf("Saved %s\n", key)
	return nil
}

func run(task string, phase factoryflow.Phase, workspace string) error {
	settings, err := config.Load()
	if err != nil {
		return err
	}
	if workspace != "" {
		settings.Workspace = workspace
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	services, err := factoryflow.NewServices(settings)
	if err != nil {
		return err
	}

	compiled, err := factoryflow.Build(phase)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = services.InjectAll(ctx)

	initial := factoryflow.NewState(task).
		WithPhase(phase).
		WithWorkspace(settings.Workspace)

	fmt.Printf("Running %s pipeline (%s)\n", phase, initial.RunID)
	final, err := compiled.Run(ctx, initial)
	if err != nil {
		return err
	}

	fmt.Printf("\nFinal status: %s\n", final.Status)
	fmt.Printf("Iterations:   %d\n", final.IterationCount)
	if final.PRURL != "" {
		fmt.Printf("Pull request: %s\n", final.PRURL)
	}
	if len(final.Messages) > 0 {
		fmt.Println("\nProgress:")
		for _, msg := range final.Messages {
			fmt.Printf("  - %s\n", msg)
		}
	}
	if final.Contract != "" {
		fmt.Printf("\nFinal artifact:\n%s\n", final.Contract)
	}
	return nil
}

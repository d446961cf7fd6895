// nbagent is a terminal front end for the notebook agent engine. It
// drives the orchestrator against a simulated notebook runtime, either
// as a one-shot request or as an interactive chat loop.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"nbagent/pkg/agent"
	"nbagent/pkg/config"
	"nbagent/pkg/logx"
	"nbagent/pkg/metrics"
	"nbagent/pkg/notebook"
	"nbagent/pkg/orchestrator"
	"nbagent/pkg/session"
	"nbagent/pkg/transcript"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		model      = flag.String("model", "", "model key (provider/model), overrides config")
		tier       = flag.String("tier", "", "safety tier: strict, balanced, permissive")
		stream     = flag.Bool("stream", false, "stream the response instead of waiting for it")
		execute    = flag.Bool("execute", false, "apply and execute the generated plan")
	)
	flag.Parse()

	if err := run(*configPath, *model, *tier, *stream, *execute, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "nbagent: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, model, tier string, stream, execute bool, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if model != "" {
		cfg.Agent.DefaultModel = model
	}
	if tier != "" {
		cfg.Agent.SafetyTier = tier
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logx.NewLogger("cli")
	streamer := agent.NewStreamer(agent.DefaultRegistry())
	runtime := notebook.NewSimRuntime()

	opts := []orchestrator.Option{orchestrator.WithRecorder(metrics.New())}
	if cfg.Transcript.Enabled {
		store, err := transcript.Open(cfg.Transcript.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, orchestrator.WithTranscript(store))
	}

	manager := session.NewManager(cfg.Agent, streamer, runtime, opts...)
	sess := manager.Create()
	defer manager.Destroy(sess.ID)

	ctx := context.Background()

	if len(args) > 0 {
		message := strings.Join(args, " ")
		return handleRequest(ctx, sess, runtime, message, stream, execute)
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("no request given and stdin is not a terminal")
	}

	logger.Info("interactive mode, model %s, tier %s", cfg.Agent.DefaultModel, cfg.Agent.SafetyTier)
	fmt.Println("nbagent interactive mode. Type a request, /clear, or /quit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/clear":
			sess.Orchestrator.Clear()
			fmt.Println("session cleared")
			continue
		}

		if err := handleRequest(ctx, sess, runtime, line, stream, execute); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
	return scanner.Err()
}

func handleRequest(ctx context.Context, sess *session.Session, runtime *notebook.SimRuntime, message string, stream, execute bool) error {
	req := orchestrator.Request{
		Message: message,
		Context: snapshot(runtime),
	}

	if stream {
		fragments, err := sess.Orchestrator.StreamResponse(ctx, req)
		if err != nil {
			return err
		}
		for fragment := range fragments {
			fmt.Print(fragment)
		}
		fmt.Println()
		return nil
	}

	resp, err := sess.Orchestrator.ProcessRequest(ctx, req)
	if err != nil {
		return err
	}

	fmt.Println(resp.Message)
	for i, suggestion := range resp.Suggestions {
		fmt.Printf("\n--- suggestion %d (%s) ---\n%s\n", i+1, suggestion.Kind, suggestion.Code)
	}

	if execute && len(resp.Plan) > 0 {
		if resp.RequiresApproval {
			fmt.Println("\nplan requires approval, executing anyway (-execute given)")
		}
		result := sess.Orchestrator.ExecutePlan(ctx, resp.Plan)
		fmt.Printf("\nexecuted %d/%d steps (%d errors)\n",
			result.Summary.Completed, result.Summary.TotalSteps, result.Summary.Errors)
		for _, step := range resp.Plan {
			if step.Error != "" {
				fmt.Printf("  step %s: %s\n", step.ID, step.Error)
			}
		}
	}
	return nil
}

func snapshot(runtime *notebook.SimRuntime) *notebook.Context {
	ctx := runtime.Snapshot()
	return &ctx
}

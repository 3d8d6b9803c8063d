// Package main is the interactive terminal front end for the influence
// simulation trainer: scenario setup, conversational simulation, and
// evaluation, driven by a single session controller.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"influencesim/pkg/config"
	"influencesim/pkg/controller"
	"influencesim/pkg/llm"
	"influencesim/pkg/llm/middleware"
	"influencesim/pkg/llm/provider/anthropic"
	"influencesim/pkg/llm/provider/google"
	"influencesim/pkg/llm/provider/ollama"
	"influencesim/pkg/llm/provider/openai"
	"influencesim/pkg/logx"
	"influencesim/pkg/metrics"
	"influencesim/pkg/persistence"
	"influencesim/pkg/session"
	"influencesim/pkg/stage"
	"influencesim/pkg/templates"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "influencesim: %v\n", err)
		os.Exit(1)
	}
}

//nolint:cyclop // top-level wiring is inherently sequential
func run() error {
	configPath := flag.String("config", "config.yaml", "path to YAML config file (missing file uses defaults)")
	secretsPath := flag.String("secrets", "", "path to encrypted secrets file (optional)")
	archivePath := flag.String("archive", "", "override archive database path (empty uses config value)")
	flag.Parse()

	logger := logx.NewLogger("cli")

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	if *secretsPath != "" {
		if err := loadSecrets(*secretsPath); err != nil {
			return err
		}
	}

	renderer, err := templates.NewRenderer()
	if err != nil {
		return err
	}

	// One recorder per process; the session ID label is resolved per call so
	// restarts attribute usage to the new session.
	recorder := middleware.NewRecorder()

	var ctrl *controller.Controller
	sessionID := func() string {
		if ctrl == nil {
			return ""
		}
		return ctrl.Session().ID()
	}

	designerClient, err := buildClient(config.RoleDesigner, &cfg.Roles.Designer, cfg, recorder, sessionID)
	if err != nil {
		return err
	}
	facilitatorClient, err := buildClient(config.RoleFacilitator, &cfg.Roles.Facilitator, cfg, recorder, sessionID)
	if err != nil {
		return err
	}
	evaluatorClient, err := buildClient(config.RoleEvaluator, &cfg.Roles.Evaluator, cfg, recorder, sessionID)
	if err != nil {
		return err
	}

	var opts []controller.Option
	dbPath := cfg.Archive.Path
	if *archivePath != "" {
		dbPath = *archivePath
	}
	if dbPath != "" {
		store, openErr := persistence.Open(dbPath)
		if openErr != nil {
			// Archiving is best-effort; run without it rather than refuse to start.
			logger.Warn("archive unavailable: %v", openErr)
		} else {
			defer func() { _ = store.Close() }()
			opts = append(opts, controller.WithArchive(store))
		}
	}

	var querySvc *metrics.QueryService
	if cfg.Metrics.PrometheusURL != "" {
		querySvc, err = metrics.NewQueryService(cfg.Metrics.PrometheusURL)
		if err != nil {
			logger.Warn("metrics query unavailable: %v", err)
		}
	}

	ctrl = controller.New(
		stage.NewDesignStage(designerClient, renderer, cfg.Roles.Designer),
		stage.NewSimulationStage(facilitatorClient, renderer, cfg.Roles.Facilitator),
		stage.NewEvaluationStage(evaluatorClient, renderer, cfg.Roles.Evaluator),
		opts...,
	)

	return interact(context.Background(), ctrl, querySvc)
}

// loadSecrets decrypts the secrets file, prompting for the password on the
// terminal, and installs the secrets for GetAPIKey resolution.
func loadSecrets(path string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("secrets file requires an interactive terminal for the password prompt")
	}
	fmt.Print("Secrets password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	secrets, err := config.DecryptSecretsFile(path, string(password))
	if err != nil {
		return err
	}
	config.SetDecryptedSecrets(secrets)
	return nil
}

// resolveAPIKey returns the credential for a provider, falling back to a
// no-echo terminal prompt when nothing is configured. A prompted key is
// exported to the environment so other roles on the same provider reuse it.
func resolveAPIKey(provider string) (string, error) {
	key, err := config.GetAPIKey(provider)
	if err == nil {
		return key, nil
	}

	envVars := map[string]string{
		config.ProviderAnthropic: config.EnvAnthropicAPIKey,
		config.ProviderOpenAI:    config.EnvOpenAIAPIKey,
		config.ProviderGoogle:    config.EnvGoogleAPIKey,
	}
	envVar, ok := envVars[provider]
	if !ok || !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", err
	}

	fmt.Printf("Enter %s: ", envVar)
	entered, readErr := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if readErr != nil {
		return "", fmt.Errorf("failed to read API key: %w", readErr)
	}
	if len(entered) == 0 {
		return "", err
	}

	if setErr := os.Setenv(envVar, string(entered)); setErr != nil {
		return "", fmt.Errorf("failed to store API key: %w", setErr)
	}
	return string(entered), nil
}

// buildClient constructs the gateway client for one role: the raw provider
// client wrapped with per-request timeout and metrics middleware.
func buildClient(role string, rc *config.RoleConfig, cfg *config.Config, recorder *middleware.Recorder, sessionID middleware.SessionIDProvider) (llm.Client, error) {
	provider, err := config.ProviderForModel(rc.Model)
	if err != nil {
		return nil, fmt.Errorf("role %s: %w", role, err)
	}

	key, err := resolveAPIKey(provider)
	if err != nil {
		return nil, fmt.Errorf("role %s: %w", role, err)
	}

	var base llm.Client
	switch provider {
	case config.ProviderOpenAI:
		base = openai.NewClientWithModel(key, rc.Model)
	case config.ProviderAnthropic:
		base = anthropic.NewClientWithModel(key, rc.Model)
	case config.ProviderGoogle:
		base = google.NewClientWithModel(key, rc.Model)
	case config.ProviderOllama:
		base = ollama.NewClientWithModel(key, rc.Model)
	default:
		return nil, fmt.Errorf("role %s: unsupported provider %s", role, provider)
	}

	return llm.Chain(base,
		middleware.Metrics(recorder, role, sessionID),
		middleware.Timeout(cfg.Timeout()),
	), nil
}

// interact runs the event loop: scenario setup in SETUP, then moves and
// commands in SIMULATING and FINISHED. Gateway and validation errors are
// printed and the loop continues; only I/O errors end the run.
func interact(ctx context.Context, ctrl *controller.Controller, querySvc *metrics.QueryService) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Println("Influence simulation trainer. Commands: /finish, /restart, /metrics, /quit")

	for {
		switch ctrl.State() {
		case controller.StateSetup:
			if done, err := runSetup(ctx, ctrl, scanner); done || err != nil {
				return err
			}
		case controller.StateSimulating:
			if done, err := runSimulation(ctx, ctrl, scanner, querySvc); done || err != nil {
				return err
			}
		case controller.StateFinished:
			if done, err := runFinished(ctx, ctrl, scanner, querySvc); done || err != nil {
				return err
			}
		}
	}
}

// runSetup collects the scenario parameters and submits them. Returns
// done=true when the user quits.
func runSetup(ctx context.Context, ctrl *controller.Controller, scanner *bufio.Scanner) (bool, error) {
	fmt.Println("\n--- Scenario setup ---")

	tactics, ok := promptLine(scanner, "Influence tactics to practice: ")
	if !ok {
		return true, nil
	}
	details, ok := promptLine(scanner, "Scenario details (or leave blank): ")
	if !ok {
		return true, nil
	}
	role, ok := promptLine(scanner, "Your role in the scenario: ")
	if !ok {
		return true, nil
	}
	makeItUpRaw, ok := promptLine(scanner, "Let the designer invent the details? (y/n): ")
	if !ok {
		return true, nil
	}
	difficultyRaw, ok := promptLine(scanner, "Difficulty (1-5): ")
	if !ok {
		return true, nil
	}

	difficulty, err := strconv.Atoi(strings.TrimSpace(difficultyRaw))
	if err != nil {
		fmt.Println("Difficulty must be a number between 1 and 5.")
		return false, nil
	}

	req := &session.ScenarioRequest{
		Tactics:         tactics,
		ScenarioDetails: details,
		Role:            role,
		MakeItUp:        strings.HasPrefix(strings.ToLower(strings.TrimSpace(makeItUpRaw)), "y"),
		Difficulty:      difficulty,
	}

	fmt.Println("Designing scenario...")
	if err := ctrl.SubmitScenarioRequest(ctx, req); err != nil {
		printStageError(err)
		return false, nil
	}

	scenario, _ := ctrl.Session().Scenario()
	fmt.Printf("\n--- Scenario ---\n%s\n\nThe simulation has begun. Type your opening move.\n", scenario)
	return false, nil
}

// runSimulation handles one SIMULATING input: a command or a move.
func runSimulation(ctx context.Context, ctrl *controller.Controller, scanner *bufio.Scanner, querySvc *metrics.QueryService) (bool, error) {
	line, ok := promptLine(scanner, "\nYou: ")
	if !ok {
		return true, nil
	}

	switch strings.TrimSpace(line) {
	case "/quit":
		return true, nil
	case "/restart":
		ctrl.Reset()
		fmt.Println("Session restarted.")
		return false, nil
	case "/metrics":
		printMetrics(ctx, ctrl, querySvc)
		return false, nil
	case "/finish":
		fmt.Println("Evaluating your performance...")
		feedback, err := ctrl.Finish(ctx)
		if err != nil {
			printStageError(err)
			return false, nil
		}
		fmt.Printf("\n--- Evaluation ---\n%s\n", feedback)
		return false, nil
	}

	reply, err := ctrl.SubmitMove(ctx, line)
	if err != nil {
		printStageError(err)
		return false, nil
	}
	fmt.Printf("\nSimulation Facilitator: %s\n", reply)
	return false, nil
}

// runFinished handles FINISHED inputs: retrying a failed evaluation,
// inspecting metrics, or restarting.
func runFinished(ctx context.Context, ctrl *controller.Controller, scanner *bufio.Scanner, querySvc *metrics.QueryService) (bool, error) {
	if _, has := ctrl.Session().Feedback(); !has {
		line, ok := promptLine(scanner, "\nEvaluation failed. Retry? (y/n): ")
		if !ok {
			return true, nil
		}
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "y") {
			feedback, err := ctrl.Evaluate(ctx)
			if err != nil {
				printStageError(err)
				return false, nil
			}
			fmt.Printf("\n--- Evaluation ---\n%s\n", feedback)
		}
		return false, nil
	}

	line, ok := promptLine(scanner, "\nSession finished. /restart for a new scenario, /metrics for usage, /quit to exit: ")
	if !ok {
		return true, nil
	}
	switch strings.TrimSpace(line) {
	case "/restart":
		ctrl.Reset()
		fmt.Println("Session restarted.")
	case "/metrics":
		printMetrics(ctx, ctrl, querySvc)
	case "/quit":
		return true, nil
	}
	return false, nil
}

// promptLine prints a prompt and reads one line. ok is false on EOF.
func promptLine(scanner *bufio.Scanner, prompt string) (line string, ok bool) {
	fmt.Print(prompt)
	if !scanner.Scan() {
		return "", false
	}
	return scanner.Text(), true
}

// printStageError renders a stage error for the user without ending the
// session: validation errors as a retry hint, gateway errors by kind.
func printStageError(err error) {
	if stage.IsValidation(err) {
		fmt.Printf("Invalid input: %v\n", err)
		return
	}
	fmt.Printf("Error: %v\nThe session is unchanged; you can try again.\n", err)
}

// printMetrics fetches and prints the current session's gateway usage from
// Prometheus, if a query service is configured.
func printMetrics(ctx context.Context, ctrl *controller.Controller, querySvc *metrics.QueryService) {
	if querySvc == nil {
		fmt.Println("Metrics are not configured (set metrics.prometheus_url).")
		return
	}

	summary, err := querySvc.GetSessionMetrics(ctx, ctrl.Session().ID())
	if err != nil {
		fmt.Printf("Failed to fetch metrics: %v\n", err)
		return
	}
	fmt.Printf("Session %s: %d requests, %d prompt + %d completion tokens, avg %.2fs/request\n",
		summary.SessionID, summary.Requests, summary.PromptTokens, summary.CompletionTokens, summary.AvgDuration)

	byRole, err := querySvc.GetSessionMetricsByRole(ctx, ctrl.Session().ID())
	if err != nil {
		return
	}
	for role, m := range byRole {
		fmt.Printf("  %s: %d requests, %d tokens\n", role, m.Requests, m.TotalTokens)
	}
}

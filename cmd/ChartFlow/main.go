package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/BTreeMap/ChartFlow/internal/api"
	"github.com/BTreeMap/ChartFlow/internal/exec"
	"github.com/BTreeMap/ChartFlow/internal/genai"
	"github.com/BTreeMap/ChartFlow/internal/messaging"
	"github.com/BTreeMap/ChartFlow/internal/models"
	"github.com/BTreeMap/ChartFlow/internal/scheduler"
	"github.com/BTreeMap/ChartFlow/internal/session"
	"github.com/BTreeMap/ChartFlow/internal/store"
	"github.com/BTreeMap/ChartFlow/internal/twiliosms"
	"github.com/BTreeMap/ChartFlow/internal/util"
	"github.com/BTreeMap/ChartFlow/internal/whatsapp"
	"github.com/BTreeMap/ChartFlow/internal/workflow"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for ChartFlow state data
	DefaultStateDir = "/var/lib/chartflow"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "chartflow.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	if err := run(flags); err != nil {
		slog.Error("ChartFlow failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("ChartFlow exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL string
	StateDir    string
	Provider    string
	OpenAIKey   string
	APIAddr     string
	SweepCron   string
	NumericCode bool
}

// Flags holds command line flag values
type Flags struct {
	qrOutput  *string
	numeric   *bool
	stateDir  *string
	dbDSN     *string
	provider  *string
	openaiKey *string
	apiAddr   *string
	sweepCron *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    util.GetEnvOrDefault("CHARTFLOW_STATE_DIR", DefaultStateDir),
		Provider:    util.GetEnvOrDefault("MESSAGING_PROVIDER", "simulator"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		APIAddr:     os.Getenv("API_ADDR"),
		SweepCron:   os.Getenv("SWEEP_SCHEDULE"),
		NumericCode: util.ParseBoolEnv("WHATSAPP_NUMERIC_CODE", false),
	}

	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"CHARTFLOW_STATE_DIR", config.StateDir,
		"MESSAGING_PROVIDER", config.Provider,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"SWEEP_SCHEDULE", config.SweepCron)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:  flag.String("qr-output", "", "path to write WhatsApp login QR code"),
		numeric:   flag.Bool("numeric-code", config.NumericCode, "use numeric WhatsApp login code instead of QR code (overrides $WHATSAPP_NUMERIC_CODE)"),
		stateDir:  flag.String("state-dir", config.StateDir, "state directory for ChartFlow data (overrides $CHARTFLOW_STATE_DIR)"),
		dbDSN:     flag.String("db-dsn", config.DatabaseURL, "record store DSN, SQLite path or postgres:// URL (overrides $DATABASE_URL)"),
		provider:  flag.String("provider", config.Provider, "messaging provider: simulator, twilio or whatsapp (overrides $MESSAGING_PROVIDER)"),
		openaiKey: flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key for the parse preview endpoint (overrides $OPENAI_API_KEY)"),
		apiAddr:   flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		sweepCron: flag.String("sweep-cron", config.SweepCron, "cron expression for the pending-workflow sweep (overrides $SWEEP_SCHEDULE)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"provider", *flags.provider,
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"sweepCron", *flags.sweepCron)

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		stateDir := filepath.Dir(*flags.dbDSN)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
	}
	return nil
}

// buildStore selects a backend from the DSN.
func buildStore(dsn string) (store.Store, error) {
	if dsn == "memory" {
		slog.Info("Using in-memory record store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Info("Using PostgreSQL record store")
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	}
	slog.Info("Using SQLite record store", "path", dsn)
	return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
}

// buildMessagingService selects a transport from the provider flag.
func buildMessagingService(flags Flags) (messaging.Service, error) {
	switch strings.ToLower(*flags.provider) {
	case "twilio":
		client, err := twiliosms.NewClient()
		if err != nil {
			return nil, err
		}
		slog.Info("Using Twilio SMS messaging")
		return messaging.NewTwilioService(client), nil
	case "whatsapp":
		var waOpts []whatsapp.Option
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		waOpts = append(waOpts, whatsapp.WithDBDSN(filepath.Join(*flags.stateDir, "whatsmeow.db")))
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, err
		}
		slog.Info("Using WhatsApp messaging")
		return messaging.NewWhatsAppService(client), nil
	default:
		slog.Info("Using simulator messaging (no external transport)")
		return messaging.NewSimulatorService(), nil
	}
}

// run wires the modules together and serves until interrupted.
func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := buildStore(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	msgService, err := buildMessagingService(flags)
	if err != nil {
		return err
	}
	if err := msgService.Start(ctx); err != nil {
		return err
	}
	defer msgService.Stop()

	messenger := messaging.NewPatientMessenger(st, msgService)
	respHandler := messaging.NewResponseHandler(msgService)

	// Each parked workflow registers a reply hook for its patient so the
	// next inbound message resolves it; replies that resolve nothing fall
	// through to the default acknowledgment.
	var engine *workflow.Engine
	engine = workflow.NewEngine(st, messenger, workflow.WithPendingHook(func(wf *models.ConditionalWorkflow) {
		if err := respHandler.RegisterReplyHook(messenger, engine, wf.Condition.PatientID); err != nil {
			slog.Warn("Failed to register reply hook", "error", err, "workflow_id", wf.ID)
		}
	}))
	sess := session.New()
	runner := exec.NewRunner(st, sess, engine, messenger)

	go pumpResponses(ctx, msgService, messenger, engine, respHandler)
	go drainReceipts(ctx, msgService)

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddReconcileJob(*flags.sweepCron, func(ctx context.Context) int {
		return len(engine.CheckPendingWorkflows(ctx))
	}); err != nil {
		return err
	}

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.openaiKey != "" {
		genaiClient, err := genai.NewClient(genai.WithAPIKey(*flags.openaiKey))
		if err != nil {
			return err
		}
		apiOpts = append(apiOpts, api.WithGenAIClient(genaiClient))
	}

	server := api.NewServer(runner, engine, apiOpts...)
	if twilioService, ok := msgService.(*messaging.TwilioService); ok {
		server.HandleFunc("/webhook/twilio", twilioService.TwilioWebhookHandler)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Stop(shutdownCtx)
	}
}

// pumpResponses records inbound replies and routes them through the hook
// registry: the hook registered for a parked workflow resolves it, and
// anything unhandled gets the default acknowledgment.
func pumpResponses(ctx context.Context, msgService messaging.Service, messenger *messaging.PatientMessenger, engine *workflow.Engine, respHandler *messaging.ResponseHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		case resp, ok := <-msgService.Responses():
			if !ok {
				return
			}
			if patientID, err := messenger.PatientIDFor(resp.From); err == nil {
				engine.RecordPatientResponse(patientID, resp.Body)
			} else {
				slog.Warn("Inbound reply from unknown number", "error", err, "from", resp.From)
			}
			if err := respHandler.ProcessResponse(ctx, resp); err != nil {
				slog.Warn("Failed to process inbound reply", "error", err, "from", resp.From)
			}
		}
	}
}

// drainReceipts logs delivery receipts so the channel never blocks.
func drainReceipts(ctx context.Context, msgService messaging.Service) {
	for {
		select {
		case <-ctx.Done():
			return
		case receipt, ok := <-msgService.Receipts():
			if !ok {
				return
			}
			slog.Debug("Message receipt", "to", receipt.To, "status", receipt.Status)
		}
	}
}

// MachineID Core - Device Fleet Admission Gate
//
// This is the main entry point for the MachineID Core service. It
// answers two questions for fleets of autonomous agents and worker
// devices:
//   - register: may this device join the organisation's fleet?
//   - validate: may this already-registered device operate right now?
//
// Every verdict is quota-checked, logged, and recorded durably.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/machineid-io/machineid-core/migrations"

	"github.com/machineid-io/machineid-core/internal/admission"
	"github.com/machineid-io/machineid-core/internal/api"
	"github.com/machineid-io/machineid-core/internal/audit"
	"github.com/machineid-io/machineid-core/internal/device"
	"github.com/machineid-io/machineid-core/internal/infrastructure/config"
	"github.com/machineid-io/machineid-core/internal/infrastructure/database"
	"github.com/machineid-io/machineid-core/internal/infrastructure/influxdb"
	"github.com/machineid-io/machineid-core/internal/infrastructure/logging"
	"github.com/machineid-io/machineid-core/internal/infrastructure/mqtt"
	"github.com/machineid-io/machineid-core/internal/org"
	"github.com/machineid-io/machineid-core/internal/quota"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // startup sequence: each step is linear wiring
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting MachineID Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Repositories
	orgRepo := org.NewSQLiteRepository(db.DB)
	deviceRepo := device.NewSQLiteRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	// First-boot seeding: create a default organisation so the gate
	// is usable immediately after install.
	if cfg.Seed.Enabled {
		plan, planErr := quota.ParsePlan(cfg.Seed.OrgPlan)
		if planErr != nil {
			return fmt.Errorf("seed configuration: %w", planErr)
		}
		if _, seedErr := org.SeedDefault(ctx, orgRepo, cfg.Seed.OrgName, plan, log.Logger); seedErr != nil {
			return fmt.Errorf("seeding default organisation: %w", seedErr)
		}
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Decision recorders: the audit log is always on; broker events
	// and metric points join when their clients are configured.
	recorders := []admission.DecisionRecorder{
		&auditRecorder{repo: auditRepo},
	}
	if mqttClient != nil {
		recorders = append(recorders, &mqttRecorder{client: mqttClient})
	}
	if influxClient != nil {
		recorders = append(recorders, &influxRecorder{client: influxClient})
	}

	admissionSvc := admission.NewService(deviceRepo, log.Logger, recorders...)

	// Start the API server
	apiServer, err := api.New(api.Deps{
		Config:    cfg.API,
		Security:  cfg.Security,
		Logger:    log,
		DB:        db,
		Orgs:      orgRepo,
		Devices:   deviceRepo,
		Decisions: auditRepo,
		Admission: admissionSvc,
		MQTT:      mqttClient,
		Influx:    influxClient,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. MQTT (if enabled)
	// 4. Database

	log.Info("MachineID Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses MACHINEID_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MACHINEID_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// auditRecorder persists every verdict to the decisions table. It is
// the one recorder that is always wired: the durable audit log is part
// of the product, not an optional sink.
type auditRecorder struct {
	repo audit.Repository
}

// RecordDecision implements admission.DecisionRecorder.
func (r *auditRecorder) RecordDecision(ctx context.Context, d admission.Decision) error {
	return r.repo.Create(ctx, &audit.Entry{
		OrgID:     d.OrgID,
		DeviceID:  d.DeviceID,
		Op:        d.Op,
		Outcome:   string(d.Outcome),
		Allowed:   d.Allowed,
		RequestID: d.RequestID,
		CreatedAt: d.At,
	})
}

// mqttRecorder publishes decision events to the broker so fleet
// operators can alert on denials in real time. Events are fire and
// forget; a slow broker never delays a verdict already issued.
type mqttRecorder struct {
	client *mqtt.Client
}

// RecordDecision implements admission.DecisionRecorder.
func (r *mqttRecorder) RecordDecision(_ context.Context, d admission.Decision) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encoding decision event: %w", err)
	}
	return r.client.PublishDecision(d.OrgID, d.Op, payload)
}

// influxRecorder turns verdicts into time-series points for
// dashboarding admission rates and fleet sizes per organisation.
type influxRecorder struct {
	client *influxdb.Client
}

// RecordDecision implements admission.DecisionRecorder.
func (r *influxRecorder) RecordDecision(_ context.Context, d admission.Decision) error {
	r.client.WriteDecision(d.OrgID, d.Op, string(d.Outcome), d.Allowed)

	// Register decisions carry the authoritative active count taken
	// inside the admission transaction; use it to refresh the gauge.
	if d.Op == "register" {
		r.client.WriteFleetGauge(d.OrgID, d.ActiveCount, int64(d.Limit))
	}
	return nil
}

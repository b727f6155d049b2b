package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/machineid-io/machineid-core/internal/device"
	"github.com/machineid-io/machineid-core/internal/org"
	"github.com/machineid-io/machineid-core/internal/quota"
	"github.com/machineid-io/machineid-core/internal/requestid"
)

// Outcome is the verdict of an admission operation. Outcomes travel
// on the wire, so their values are part of the API contract.
type Outcome string

const (
	// OutcomeOK: a register created the device, or a validate found
	// it active.
	OutcomeOK Outcome = "ok"

	// OutcomeExists: the device was already registered and active.
	OutcomeExists Outcome = "exists"

	// OutcomeRestored: a previously revoked device was re-admitted.
	OutcomeRestored Outcome = "restored"

	// OutcomeLimitReached: admitting the device would exceed the
	// organisation's device limit.
	OutcomeLimitReached Outcome = "limit_reached"

	// OutcomeNotRegistered: a validate found no record of the device.
	OutcomeNotRegistered Outcome = "not_registered"

	// OutcomeRevoked: the device is known but has been revoked.
	OutcomeRevoked Outcome = "revoked"
)

// Result is the answer to a register or validate call.
type Result struct {
	Outcome Outcome
	// Allowed reports whether the device may operate.
	Allowed bool
	// Record is the device record after the operation. Nil when the
	// device was denied or is unknown.
	Record *device.Record
	// ActiveCount is the organisation's active device count after the
	// operation. Only set by Register.
	ActiveCount int
}

// Decision is the audit shape of one verdict, handed to every
// configured recorder. The JSON tags fix the event payload format
// published to external sinks.
type Decision struct {
	Op        string  `json:"op"`
	OrgID     string  `json:"org_id"`
	DeviceID  string  `json:"device_id"`
	Outcome   Outcome `json:"outcome"`
	Allowed   bool    `json:"allowed"`
	RequestID string  `json:"request_id,omitempty"`
	// ActiveCount is the organisation's active device count after the
	// operation. Only register decisions carry it; the count is taken
	// inside the same transaction as the verdict.
	ActiveCount int `json:"active_count,omitempty"`
	// Limit is the organisation's device limit at decision time.
	Limit quota.Limit `json:"limit"`
	At    time.Time   `json:"at"`
}

// DecisionRecorder receives every verdict the service issues.
// Implementations must not block for long; failures are logged by the
// service and never propagate to the caller.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, d Decision) error
}

// Logger is the minimal logging interface the service needs.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Service answers admission questions for authenticated organisations.
//
// Thread Safety: all methods are safe for concurrent use.
type Service struct {
	devices   device.Repository
	recorders []DecisionRecorder
	logger    Logger
}

// NewService creates an admission service.
//
// Parameters:
//   - devices: device store used for all state reads and writes
//   - logger: logger instance (may be nil)
//   - recorders: decision sinks, invoked in order for every verdict
func NewService(devices device.Repository, logger Logger, recorders ...DecisionRecorder) *Service {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Service{
		devices:   devices,
		recorders: recorders,
		logger:    logger,
	}
}

// Register admits a device into an organisation's fleet, or reports
// why it cannot be admitted.
//
// The call is idempotent: registering an already active device
// reports exists without touching the quota. A revoked device is
// restored only if a slot is free. Denials are returned as a Result
// with Allowed=false, never as an error.
//
// Parameters:
//   - ctx: request context, carrying the request identifier
//   - o: the authenticated organisation
//   - deviceID: caller-chosen device identifier
//
// Returns ErrInvalidDeviceID for malformed identifiers, or a wrapped
// store error when the decision could not be made.
func (s *Service) Register(ctx context.Context, o *org.Organization, deviceID string) (*Result, error) {
	if err := device.ValidateDeviceID(deviceID); err != nil {
		return nil, err
	}

	admit, err := s.devices.Admit(ctx, o.ID, deviceID, o.DeviceLimit)
	if err != nil {
		return nil, fmt.Errorf("admitting device: %w", err)
	}

	res := &Result{
		Record:      admit.Record,
		ActiveCount: admit.ActiveCount,
	}
	switch admit.Transition {
	case device.TransitionCreated:
		res.Outcome = OutcomeOK
		res.Allowed = true
	case device.TransitionExists:
		res.Outcome = OutcomeExists
		res.Allowed = true
	case device.TransitionRestored:
		res.Outcome = OutcomeRestored
		res.Allowed = true
	case device.TransitionDenied:
		res.Outcome = OutcomeLimitReached
	}

	s.logger.Info("register decision",
		"org_id", o.ID,
		"device_id", deviceID,
		"outcome", res.Outcome,
		"active_count", res.ActiveCount,
		"limit", o.DeviceLimit.String(),
	)
	s.record(ctx, Decision{
		Op:          "register",
		OrgID:       o.ID,
		DeviceID:    deviceID,
		Outcome:     res.Outcome,
		Allowed:     res.Allowed,
		ActiveCount: res.ActiveCount,
		Limit:       o.DeviceLimit,
	})

	return res, nil
}

// Validate answers whether a registered device may operate right now.
//
// It reads current state and issues exactly one of ok, not_registered
// or revoked. A passing validation stamps the record's last validated
// time; that write is best effort and never turns a pass into a
// failure.
func (s *Service) Validate(ctx context.Context, o *org.Organization, deviceID string) (*Result, error) {
	if err := device.ValidateDeviceID(deviceID); err != nil {
		return nil, err
	}

	rec, err := s.devices.Get(ctx, o.ID, deviceID)

	res := &Result{}
	switch {
	case err == nil && rec.IsActive():
		res.Outcome = OutcomeOK
		res.Allowed = true
		res.Record = rec
	case err == nil:
		res.Outcome = OutcomeRevoked
		res.Record = rec
	case errors.Is(err, device.ErrNotRegistered):
		res.Outcome = OutcomeNotRegistered
	default:
		return nil, fmt.Errorf("reading device record: %w", err)
	}

	if res.Allowed {
		if touchErr := s.devices.TouchValidated(ctx, o.ID, deviceID, time.Now().UTC()); touchErr != nil {
			s.logger.Warn("failed to record validation time",
				"org_id", o.ID,
				"device_id", deviceID,
				"error", touchErr,
			)
		}
	}

	s.logger.Debug("validate decision",
		"org_id", o.ID,
		"device_id", deviceID,
		"outcome", res.Outcome,
	)
	s.record(ctx, Decision{
		Op:       "validate",
		OrgID:    o.ID,
		DeviceID: deviceID,
		Outcome:  res.Outcome,
		Allowed:  res.Allowed,
		Limit:    o.DeviceLimit,
	})

	return res, nil
}

// Revoke parks a device, freeing its quota slot immediately. Revoking
// an already revoked device succeeds without moving its revocation
// time. Returns ErrNotRegistered for unknown devices.
func (s *Service) Revoke(ctx context.Context, o *org.Organization, deviceID string) (*device.Record, error) {
	if err := device.ValidateDeviceID(deviceID); err != nil {
		return nil, err
	}

	rec, err := s.devices.Revoke(ctx, o.ID, deviceID)
	if err != nil {
		if errors.Is(err, device.ErrNotRegistered) {
			return nil, err
		}
		return nil, fmt.Errorf("revoking device: %w", err)
	}

	s.logger.Info("device revoked",
		"org_id", o.ID,
		"device_id", deviceID,
	)
	s.record(ctx, Decision{
		Op:       "revoke",
		OrgID:    o.ID,
		DeviceID: deviceID,
		Outcome:  OutcomeRevoked,
		Limit:    o.DeviceLimit,
	})

	return rec, nil
}

// record fans the verdict out to every recorder. Recorder errors are
// logged and swallowed so the verdict already issued stands.
func (s *Service) record(ctx context.Context, d Decision) {
	if len(s.recorders) == 0 {
		return
	}

	d.RequestID = requestid.FromContext(ctx)
	d.At = time.Now().UTC()

	for _, r := range s.recorders {
		if err := r.RecordDecision(ctx, d); err != nil {
			s.logger.Warn("decision recorder failed",
				"op", d.Op,
				"org_id", d.OrgID,
				"device_id", d.DeviceID,
				"error", err,
			)
		}
	}
}

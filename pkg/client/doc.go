// Package client is the worker-side SDK for a MachineID admission
// gate. It speaks the two protocol operations a device ever needs:
// Register once on startup, Validate before doing work.
//
// The client follows the gate's error taxonomy. Authentication
// failures and malformed requests return immediately. Business
// denials - limit_reached, revoked, not_registered - are verdicts,
// not errors: they arrive in the result and the call succeeds.
// Infrastructure failures (network errors and responses marked
// retryable) are retried a bounded number of times with doubling
// backoff before surfacing as ErrUnavailable.
//
// Typical worker startup:
//
//	c, err := client.New(client.Config{
//		BaseURL: "https://machineid.example.com",
//		OrgKey:  os.Getenv("MACHINEID_ORG_KEY"),
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	reg, err := c.Register(ctx, "crewai:agent-01")
//	if err != nil || !reg.Admitted() {
//		// hard stop: the fleet gate said no
//	}
//
//	val, err := c.Validate(ctx, "crewai:agent-01")
//	if err != nil || !val.Allowed {
//		// hard stop
//	}
package client

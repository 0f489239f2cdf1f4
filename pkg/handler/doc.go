// Package handler runs registered task workers against a Conductor-style
// orchestrator.
//
// A TaskHandler owns one poll/execute/update runner per registered worker,
// a shared HTTP transport, the event bus, and Prometheus metrics exposure.
// Runners that crash are restarted within a rate-limited policy.
//
// # Basic Usage
//
//	greet, err := worker.NewTyped("greet", func(ctx context.Context, in GreetInput) (interface{}, error) {
//	    return fmt.Sprintf("Hello %s", in.Name), nil
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	registry, err := worker.NewRegistry(greet)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	h, err := handler.New(registry)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := h.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer h.Stop(handler.DefaultStopGrace)
//
// # Configuration
//
// The orchestrator URL and credentials come from the environment
// (CONDUCTOR_SERVER_URL, CONDUCTOR_AUTH_KEY, CONDUCTOR_AUTH_SECRET).
// Per-worker properties resolve from conductor.worker.<name>.<property>,
// then conductor.worker.all.<property>, then the options supplied at
// registration.
package handler

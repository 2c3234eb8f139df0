package host

import "context"

// Service is a long-lived unit supervised for the application's lifetime.
// Name is its registration identifier. Lifecycle hooks are optional and
// expressed through the capability interfaces below.
type Service interface {
	Name() string
}

// Starter services are started before any run loop begins.
type Starter interface {
	Start(ctx context.Context) error
}

// Runner services run until ctx is cancelled. Returning earlier, with or
// without an error, is treated as a crash and restarted after backoff.
type Runner interface {
	Run(ctx context.Context) error
}

// Stopper services are stopped after every run loop has exited.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Agent is an external observer that services may expose themselves to.
type Agent interface {
	Name() string
}

// Attacher services accept agents.
type Attacher interface {
	Attach(agent Agent) error
	Detach(agent Agent) error
}

package pubsub

import "context"

// Subjects, relative to the configured broadcast prefix
const (
	SubjectArbitrages = "arbitrages"
	SubjectExecutions = "executions"
)

type Broadcaster interface {
	Publish(ctx context.Context, subject string, data any) error
	Health(ctx context.Context) error
}

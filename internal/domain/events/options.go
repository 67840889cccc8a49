package events

// EventType names an event. Each bounded context declares its own constants.
type EventType string

func (t EventType) String() string { return string(t) }

// PublishParams is the per-publish routing information collected from
// PublishOptions.
type PublishParams struct {
	// Key groups related events; sinks that partition use it as the
	// partition key so a run's events stay ordered.
	Key     string
	Headers map[string]string
}

// PublishOption adjusts PublishParams.
type PublishOption func(*PublishParams)

// WithKey sets the routing key, normally the run ID.
func WithKey(key string) PublishOption {
	return func(p *PublishParams) { p.Key = key }
}

// WithHeaders attaches metadata that sinks forward alongside the payload.
func WithHeaders(headers map[string]string) PublishOption {
	return func(p *PublishParams) { p.Headers = headers }
}

// ApplyOptions folds opts into a PublishParams.
func ApplyOptions(opts ...PublishOption) PublishParams {
	var params PublishParams
	for _, opt := range opts {
		opt(&params)
	}
	return params
}

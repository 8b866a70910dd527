package redis

// Keys builds the Redis key and channel names under a common prefix.
type Keys struct {
	Prefix string
}

// LatestEvaluation is the key holding the last published evaluation.
func (k Keys) LatestEvaluation() string { return k.Prefix + "eval:latest" }

// EvaluationChannel is the pubsub channel evaluations are published on.
func (k Keys) EvaluationChannel() string { return k.Prefix + "pub:eval" }

// Position is the key holding the open position.
func (k Keys) Position() string { return k.Prefix + "position:open" }

// Exits is the stream that keeps recent exit events.
func (k Keys) Exits() string { return k.Prefix + "stream:exits" }

// ExitChannel is the pubsub channel exit events are published on.
func (k Keys) ExitChannel() string { return k.Prefix + "pub:exit" }

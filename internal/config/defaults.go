package config

import "time"

const defaultPort = 8080

var defaultDB = DB{
	Host: "127.0.0.1",
	Port: "5432",
	User: "dispatch",
	Pass: "dispatch",
	Name: "dispatch",
}

var defaultRedis = Redis{
	Addr: "127.0.0.1:6379",
	DB:   0,
}

var defaultBroadcast = Broadcast{
	Timeout:          120 * time.Second,
	MarkerBuffer:     30 * time.Second,
	CreateLockTTL:    5 * time.Second,
	CreateLockWait:   2 * time.Second,
	MaxTrucks:        10,
	TxMaxAttempts:    3,
	TxBaseDelay:      20 * time.Millisecond,
	TxMaxDelay:       200 * time.Millisecond,
	OperationTimeout: 5 * time.Second,
}

var defaultTimer = Timer{
	Enabled:           true,
	PollInterval:      time.Second,
	BatchSize:         100,
	FireLockTTL:       15 * time.Second,
	ReconcileInterval: 30 * time.Second,
}

var defaultKafka = Kafka{
	Topic:   "broadcast-events",
	GroupID: "dispatch-push",
}

var defaultRateLimit = RateLimit{
	Enabled: true,
	Limit:   20,
	Window:  time.Second,
}

// DefaultPort returns the default port.
func DefaultPort() int { return defaultPort }

// DefaultDB returns the default database settings.
func DefaultDB() DB { return defaultDB }

// DefaultRedis returns the default key-value store settings.
func DefaultRedis() Redis { return defaultRedis }

// DefaultBroadcast returns the default broadcast settings.
func DefaultBroadcast() Broadcast { return defaultBroadcast }

// DefaultTimer returns the default timer service settings.
func DefaultTimer() Timer { return defaultTimer }

// DefaultKafka returns the default Kafka settings.
func DefaultKafka() Kafka { return defaultKafka }

// DefaultRateLimit returns the default rate limit settings.
func DefaultRateLimit() RateLimit { return defaultRateLimit }

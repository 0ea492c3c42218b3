package redis

import "time"

type Config struct {
	ConnectionURL  string        `env:"REDIS_URL"` // e.g. "redis://:password@localhost:6379/0"; empty disables Redis
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`

	// LockTTL bounds how long a crashed holder can keep a subscription locked.
	LockTTL time.Duration `env:"REDIS_LOCK_TTL" envDefault:"30s"`
	// LockRetryInterval is the polling interval while waiting for a held lock.
	LockRetryInterval time.Duration `env:"REDIS_LOCK_RETRY_INTERVAL" envDefault:"50ms"`
	LockPrefix        string        `env:"REDIS_LOCK_PREFIX" envDefault:"subsync:lock:"`
}

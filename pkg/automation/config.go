package automation

import "time"

// Config holds sweep tuning and the schedule of the periodic jobs.
type Config struct {
	Concurrency      int           `env:"AUTOMATION_CONCURRENCY" envDefault:"8"`
	RenewalLookahead time.Duration `env:"AUTOMATION_RENEWAL_LOOKAHEAD" envDefault:"168h"`
	BatchSize        int           `env:"AUTOMATION_BATCH_SIZE" envDefault:"500"`

	CheckInterval      time.Duration `env:"AUTOMATION_CHECK_INTERVAL" envDefault:"30s"`
	BillingInterval    time.Duration `env:"AUTOMATION_BILLING_INTERVAL" envDefault:"1h"`
	RenewalInterval    time.Duration `env:"AUTOMATION_RENEWAL_INTERVAL" envDefault:"6h"`
	ExpirationInterval time.Duration `env:"AUTOMATION_EXPIRATION_INTERVAL" envDefault:"1h"`
	TrialInterval      time.Duration `env:"AUTOMATION_TRIAL_INTERVAL" envDefault:"1h"`
	DriftInterval      time.Duration `env:"AUTOMATION_DRIFT_INTERVAL" envDefault:"15m"`
}

package config

import "github.com/caarlos0/env/v9"

type Config struct {
	Port       string `env:"PORT" envDefault:"8080"`
	DBUser     string `env:"DB_USER,required"`
	DBPassword string `env:"DB_PASSWORD,required"`
	DBHost     string `env:"DB_HOST,required"` // e.g. tcp(host:3306) or unix(/cloudsql/instance)
	DBName     string `env:"DB_NAME,required"`
	DBPort     string `env:"DB_PORT" envDefault:"3306"`

	InstanceConnectionName string `env:"INSTANCE_CONNECTION_NAME"`

	FirebaseProjectID string `env:"FIREBASE_PROJECT_ID"`

	// Web Push (VAPID) credentials. The dispatch worker refuses to start
	// without them; the rest of the API is unaffected.
	VAPIDPublicKey  string `env:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `env:"VAPID_PRIVATE_KEY"`
	VAPIDSubject    string `env:"VAPID_SUBJECT" envDefault:"mailto:ops@tsubaki.chat"`

	// Dispatch tunables. Backoff constants are deliberately configuration,
	// not code: only the shape (exponential + jitter + cap) is fixed.
	DispatchLeaseSeconds       int    `env:"DISPATCH_LEASE_SECONDS" envDefault:"30"`
	DispatchLeaseGraceSeconds  int    `env:"DISPATCH_LEASE_GRACE_SECONDS" envDefault:"5"`
	DispatchMaxAttempts        int    `env:"DISPATCH_MAX_ATTEMPTS" envDefault:"8"`
	DispatchBackoffBaseSeconds int    `env:"DISPATCH_BACKOFF_BASE_SECONDS" envDefault:"5"`
	DispatchBackoffCapSeconds  int    `env:"DISPATCH_BACKOFF_CAP_SECONDS" envDefault:"600"`
	DispatchBatchSize          int    `env:"DISPATCH_BATCH_SIZE" envDefault:"25"`
	DispatchMaxBatchSize       int    `env:"DISPATCH_MAX_BATCH_SIZE" envDefault:"50"`
	DispatchFanOut             int    `env:"DISPATCH_FAN_OUT" envDefault:"4"`
	DispatchSendTimeoutSeconds int    `env:"DISPATCH_SEND_TIMEOUT_SECONDS" envDefault:"10"`
	WakeupMinIntervalSeconds   int    `env:"WAKEUP_MIN_INTERVAL_SECONDS" envDefault:"15"`
	DispatchCronSpec           string `env:"DISPATCH_CRON" envDefault:"@every 1m"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

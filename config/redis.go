package config

// RedisConfig selects the Redis that holds durable session credentials. Exactly one topology
// applies: cluster when UseCluster is set, sentinel when UseSentinel is set, otherwise a
// single node at URI.
type RedisConfig struct {
	// URI is a redis:// URL or a bare host:port.
	URI      string `env:"URI"      envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	DB       int    `env:"DB"       envDefault:"0"`

	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`

	UseCluster   bool     `env:"USE_CLUSTER"   envDefault:"false"`
	ClusterNodes []string `env:"CLUSTER_NODES" envDefault:""`

	// KeyPrefix namespaces credential keys, e.g. "tourbook:credential:<sid>".
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"tourbook:"`
}

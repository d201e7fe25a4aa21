package snapshot

import "time"

// Config is the root configuration for a snapshot controller.
type Config struct {
	Storage     StorageConfig     `koanf:"storage"`
	Replication ReplicationConfig `koanf:"replication"`
	Retention   RetentionConfig   `koanf:"retention"`
}

// StorageConfig configures where a controller keeps its pending, committed,
// and runtime directories.
type StorageConfig struct {
	// Dir is the root directory under which pending/, snapshots/, and
	// runtime/ are created.
	Dir string `koanf:"dir"`
}

// ReplicationConfig configures outbound chunk replication.
type ReplicationConfig struct {
	// Targets lists the addresses of replication peers, in whatever form
	// the configured ChunkTransport expects (host:port for
	// NetChunkTransport).
	Targets []string `koanf:"targets"`

	// RateLimitChunksPerSecond caps outbound chunk sends across all
	// targets combined. Zero disables rate limiting.
	RateLimitChunksPerSecond float64 `koanf:"rate_limit_chunks_per_second"`

	// RateLimitBurst is the token bucket burst size used alongside
	// RateLimitChunksPerSecond.
	RateLimitBurst int `koanf:"rate_limit_burst"`

	// DialTimeout bounds connection setup when using NetChunkTransport.
	DialTimeout time.Duration `koanf:"dial_timeout"`

	// ListenAddr is the host:port this node binds a NetChunkServer to for
	// inbound chunk receipt. Empty disables the inbound listener.
	ListenAddr string `koanf:"listen_addr"`
}

// RetentionConfig configures automatic pruning of committed snapshots.
type RetentionConfig struct {
	// Interval is how often the background auto-snapshotter fires. Zero
	// disables automatic snapshotting.
	Interval time.Duration `koanf:"interval"`

	// KeepCount is the minimum number of newest snapshots to retain.
	KeepCount int `koanf:"keep_count"`

	// MaxAge additionally retains any snapshot younger than this.
	MaxAge time.Duration `koanf:"max_age"`
}

// DefaultConfig returns sane defaults: no replication targets configured,
// no rate limit, hourly auto-snapshots, and a retention window keeping the
// three newest snapshots.
func DefaultConfig() Config {
	return Config{
		Storage: StorageConfig{
			Dir: "data/snapshots",
		},
		Replication: ReplicationConfig{
			RateLimitChunksPerSecond: 0,
			RateLimitBurst:           1,
			DialTimeout:              5 * time.Second,
			ListenAddr:               "127.0.0.1:5346",
		},
		Retention: RetentionConfig{
			Interval:  time.Hour,
			KeepCount: 3,
		},
	}
}

// PruneOptions converts the retention section into the options Storage.Prune
// expects.
func (r RetentionConfig) PruneOptions() PruneOptions {
	return PruneOptions{
		KeepCount: r.KeepCount,
		MaxAge:    r.MaxAge,
	}
}

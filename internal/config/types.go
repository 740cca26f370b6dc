package config

// Config is the root configuration schema.
type Config struct {
	Global  GlobalConfig  `mapstructure:"global"`
	Store   StoreConfig   `mapstructure:"store"`
	Backup  BackupConfig  `mapstructure:"backup"`
	Restore RestoreConfig `mapstructure:"restore"`
	Storage StorageConfig `mapstructure:"storage"`
}

type GlobalConfig struct {
	LogLevel  string `mapstructure:"log_level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	LogFormat string `mapstructure:"log_format" validate:"omitempty,oneof=json console"`
	LockFile  string `mapstructure:"lock_file"`
}

// StoreConfig selects the live record store that backups are taken from and restored into.
type StoreConfig struct {
	Driver     string `mapstructure:"driver" validate:"required,oneof=sqlite memory"`
	SQLitePath string `mapstructure:"sqlite_path" validate:"required_if=Driver sqlite"`
}

type BackupConfig struct {
	// Collections is the full set of collection names a comprehensive export covers.
	// When empty the store is asked for its collection list.
	Collections      []string  `mapstructure:"collections" validate:"dive,required"`
	EventsCollection string    `mapstructure:"events_collection" validate:"required"`
	Source           string    `mapstructure:"source" validate:"required"`
	Note             string    `mapstructure:"note"`
	Encrypt          bool      `mapstructure:"encrypt"`
	Password         string    `mapstructure:"password"` // usually CBU_BACKUP_PASSWORD
	Compression      string    `mapstructure:"compression" validate:"omitempty,oneof=none gzip zstd"`
	MaxParallelism   int       `mapstructure:"max_parallelism" validate:"gte=0"`
	TilesFile        string    `mapstructure:"tiles_file"`
	MaxPayloadBytes  int64     `mapstructure:"max_payload_bytes" validate:"gte=0"`
	Retention        Retention `mapstructure:"retention"`
}

type RestoreConfig struct {
	DryRun      bool     `mapstructure:"dry_run"`
	Collections []string `mapstructure:"collections"`
}

type Retention struct {
	KeepLast int `mapstructure:"keep_last" validate:"gte=0"`
	KeepDays int `mapstructure:"keep_days" validate:"gte=0"`
}

type StorageConfig struct {
	Path   string `mapstructure:"path" validate:"required"`
	Prefix string `mapstructure:"prefix"`
}

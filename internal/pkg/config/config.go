package config

import "time"

type Config struct {
	TibberCfg *TibberConfig
	StoreCfg  *StoreConfig
	ServerCfg *ServerConfig
	LogLevel  string
}

type TibberConfig struct {
	Endpoint    string
	AccessToken string
	HomeID      string
	Timeout     time.Duration
}

// StoreConfig selects the persistence backend: DatabaseURL wins when set,
// otherwise cache blobs are kept as JSON files under StateDir. Key is the
// opaque per-installation storage key.
type StoreConfig struct {
	DatabaseURL string
	StateDir    string
	Key         string
}

type ServerConfig struct {
	ListenAddr string
}

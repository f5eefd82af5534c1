package config

import "time"

// RPCConfig configures the JSON-RPC transport facade (C1).
type RPCConfig struct {
	URL             string        `json:"url"`
	Retry           int           `json:"retry"`
	RequestTimeOut  time.Duration `json:"request_time_out"`
}

// RedisDataRetentionConfig bounds the receipt dumper's retention policy.
type RedisDataRetentionConfig struct {
	MaxBlocks  int `json:"max_blocks"`
	TTLSeconds int `json:"ttl_seconds"`
}

// RedisConfig configures the KV store facade (C2).
type RedisConfig struct {
	Host           string                   `json:"host"`
	Port           int                      `json:"port"`
	DB             int                      `json:"db"`
	Password       string                   `json:"password,omitempty"`
	SSL            bool                     `json:"ssl"`
	ClusterMode    bool                     `json:"cluster_mode"`
	DataRetention  RedisDataRetentionConfig `json:"data_retention"`
}

// LogsConfig configures the logging package.
type LogsConfig struct {
	DebugMode    bool   `json:"debug_mode"`
	WriteToFiles bool   `json:"write_to_files"`
	Level        string `json:"level"`
}

// ProcessorConfig configures the TxProcessor consumer loop (C7).
type ProcessorConfig struct {
	RedisQueueKey       string `json:"redis_queue_key"`
	RedisBlockTimeout   int    `json:"redis_block_timeout"`
	MaxConcurrentWorkers int   `json:"max_concurrent_workers"`
}

// Settings is the top-level settings.json document.
type Settings struct {
	Namespace string          `json:"namespace"`
	RPC       RPCConfig       `json:"rpc"`
	Redis     RedisConfig     `json:"redis"`
	Logs      LogsConfig      `json:"logs"`
	Processor ProcessorConfig `json:"processor"`
}

// PreloaderDef names one hook entry in preloaders.json.
type PreloaderDef struct {
	TaskType  string `json:"task_type"`
	Module    string `json:"module"`
	ClassName string `json:"class_name"`
}

// PreloaderConfig is the preloaders.json document; order is preserved.
type PreloaderConfig struct {
	Preloaders []PreloaderDef `json:"preloaders"`
}

// AddressSource points at the file the event filter's target-address set
// is loaded from.
type AddressSource struct {
	ConfigFile string `json:"config_file"`
}

// EventFilterDef is one entry in the event-filter config's "filters" array.
type EventFilterDef struct {
	FilterName      string        `json:"filter_name"`
	ABIPath         string        `json:"abi_path"`
	EventTopics     []string      `json:"event_topics"`
	AddressSource   AddressSource `json:"address_source"`
	RedisKeyPattern string        `json:"redis_key_pattern"`
}

// EventFiltersConfig is the top-level event-filter JSON document.
type EventFiltersConfig struct {
	Filters []EventFilterDef `json:"filters"`
}

// ProjectsConfig is the address-source file's shape: a list of grouped
// project entries, each carrying a list of contract addresses.
type ProjectsConfig struct {
	Config []struct {
		Projects []string `json:"projects"`
	} `json:"config"`
}

package internal

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config is the top-level tunable surface for the storage-and-concurrency
// core: how many frames each buffer pool shard holds, how many shards the
// parallel pool runs, where pages live on disk, and the extendible hash
// table's tuning knobs.
type Config struct {
	BufferPool struct {
		PoolSize   int `mapstructure:"pool_size"`
		NumShards  int `mapstructure:"num_shards"`
	} `mapstructure:"buffer_pool"`

	Storage struct {
		DataDir string `mapstructure:"data_dir"`
	} `mapstructure:"storage"`

	HashIndex struct {
		BucketArraySize int `mapstructure:"bucket_array_size"`
		MaxDirDepth     int `mapstructure:"max_dir_depth"`
	} `mapstructure:"hash_index"`

	Server struct {
		Debug bool `mapstructure:"debug"`
	} `mapstructure:"server"`
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("buffer_pool.pool_size", 64)
	v.SetDefault("buffer_pool.num_shards", 4)
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("hash_index.bucket_array_size", 0) // 0 = hashindex.DefaultBucketArraySize
	v.SetDefault("hash_index.max_dir_depth", 9)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

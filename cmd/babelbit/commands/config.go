package commands

import (
	"errors"

	"github.com/spf13/viper"
)

type Config struct {
	EngineURL     string         `mapstructure:"engine_url"`
	OutputDir     string         `mapstructure:"output_dir"`
	Workers       int            `mapstructure:"workers"`
	SkipProcessed bool           `mapstructure:"skip_processed"`
	Registry      RegistryConfig `mapstructure:"registry"`
	Signer        SignerConfig   `mapstructure:"signer"`
	Chutes        ChutesConfig   `mapstructure:"chutes"`
	DB            DBConfig       `mapstructure:"db"`
	S3            S3Config       `mapstructure:"s3"`
}

type RegistryConfig struct {
	URL string `mapstructure:"url"`
}

type SignerConfig struct {
	URL string `mapstructure:"url"`
}

type ChutesConfig struct {
	API            string `mapstructure:"api"`
	APIKey         string `mapstructure:"api_key"`
	BaseDomain     string `mapstructure:"base_domain"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries"`
	BackoffMillis  int    `mapstructure:"backoff_millis"`
	MaxTokens      int    `mapstructure:"max_tokens"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(".babelbit")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return cfg, nil
		}
		return cfg, err
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

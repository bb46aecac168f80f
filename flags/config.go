package flags

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/lancao008/google-pay/iap"
	"github.com/lancao008/google-pay/iap/memory"
)

const (
	EnvTarget        = "IAB_TARGET"
	EnvPackageName   = "IAB_PACKAGE_NAME"
	EnvPublicKey     = "IAB_PUBLIC_KEY"
	EnvAPIVersion    = "IAB_API_VERSION"
	EnvPageSize      = "IAB_PAGE_SIZE"
	EnvListenAddress = "IAB_LISTEN_ADDRESS"
	EnvSkuCacheTTL   = "IAB_SKU_CACHE_TTL"
)

const defaultEnvFile = ".env"

type Config struct {
	// Target is the address of the billing service. Empty means no provider
	// is installed.
	Target      string
	PackageName string

	// PublicKey is the base64 X.509 developer key receipts are verified with.
	PublicKey  string
	APIVersion int

	// PageSize and ListenAddress configure a served fake billing service.
	PageSize      int
	ListenAddress string

	// SkuCacheTTL enables SKU details caching when positive.
	SkuCacheTTL time.Duration
}

func Default() *Config {
	return &Config{
		PackageName:   "com.example.billing",
		APIVersion:    iap.APIVersion,
		PageSize:      memory.DefaultPageSize,
		ListenAddress: "localhost:8085",
	}
}

// Load reads the configuration from the environment. Values missing from the
// environment are read from envFiles, or from .env when it exists and no
// files are given.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		if _, err := os.Stat(defaultEnvFile); err == nil {
			envFiles = []string{defaultEnvFile}
		}
	}

	fromFile := map[string]string{}
	if len(envFiles) > 0 {
		var err error
		fromFile, err = godotenv.Read(envFiles...)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read env file")
		}
	}

	lookup := func(key string) (string, bool) {
		if val, ok := os.LookupEnv(key); ok {
			return val, true
		}
		val, ok := fromFile[key]
		return val, ok
	}

	c := Default()
	if val, ok := lookup(EnvTarget); ok {
		c.Target = val
	}
	if val, ok := lookup(EnvPackageName); ok && val != "" {
		c.PackageName = val
	}
	if val, ok := lookup(EnvPublicKey); ok {
		c.PublicKey = val
	}
	if val, ok := lookup(EnvListenAddress); ok && val != "" {
		c.ListenAddress = val
	}

	var err error
	if c.APIVersion, err = intValue(lookup, EnvAPIVersion, c.APIVersion); err != nil {
		return nil, err
	}
	if c.PageSize, err = intValue(lookup, EnvPageSize, c.PageSize); err != nil {
		return nil, err
	}
	if c.PageSize <= 0 {
		return nil, errors.Errorf("%s must be positive", EnvPageSize)
	}

	if val, ok := lookup(EnvSkuCacheTTL); ok && val != "" {
		c.SkuCacheTTL, err = time.ParseDuration(val)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid %s", EnvSkuCacheTTL)
		}
	}

	return c, nil
}

func intValue(lookup func(string) (string, bool), key string, def int) (int, error) {
	val, ok := lookup(key)
	if !ok || val == "" {
		return def, nil
	}

	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", key)
	}
	return n, nil
}

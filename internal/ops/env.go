package ops

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/yanun0323/logs"
)

const envPrefix = "TRADECORE_"

// LoadDotEnv loads a .env file into the process environment. Variables
// already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// applyEnv overrides file values with TRADECORE_* variables. Secrets and
// endpoints belong in the environment rather than in the file.
func applyEnv(cfg *FileConfig) {
	setString(&cfg.Trader.TraderID, "TRADER_ID")
	setString(&cfg.Trader.InstanceID, "INSTANCE_ID")
	setString(&cfg.Trader.AccountID, "ACCOUNT_ID")

	setString(&cfg.Cache.Backend, "CACHE_BACKEND")
	setString(&cfg.Cache.Dir, "CACHE_DIR")
	setString(&cfg.Cache.DSN, "CACHE_DSN")
	setString(&cfg.Cache.Addr, "CACHE_ADDR")
	setString(&cfg.Cache.Password, "CACHE_PASSWORD")

	setString(&cfg.Bus.Backing, "BUS_BACKING")
	setString(&cfg.Bus.RedisAddr, "BUS_REDIS_ADDR")
	if v, ok := lookup("BUS_KAFKA_BROKERS"); ok {
		cfg.Bus.KafkaBrokers = strings.Split(v, ",")
	}

	setString(&cfg.Recorder.Dir, "RECORDER_DIR")
	setString(&cfg.Metrics.Addr, "METRICS_ADDR")
	setString(&cfg.Profiling.ServerURL, "PROFILING_SERVER_URL")

	if v, ok := lookup("KILL_SWITCH"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			logs.Warnf("ops: %sKILL_SWITCH=%q ignored, err: %+v", envPrefix, v, err)
			return
		}
		cfg.Risk.KillSwitch = b
	}
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func setString(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

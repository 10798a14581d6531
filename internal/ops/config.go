package ops

import (
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"tradecore/internal/bus/backing"
	"tradecore/internal/cache"
	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/internal/reconcile"
	"tradecore/internal/recorder"
	"tradecore/internal/risk"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Trader         TraderConfig         `json:"trader"`
	Registry       RegistryConfig       `json:"registry"`
	Cache          CacheConfig          `json:"cache"`
	Bus            BusConfig            `json:"bus"`
	Recorder       RecorderConfig       `json:"recorder"`
	Reconciliation ReconciliationConfig `json:"reconciliation"`
	Risk           risk.Config          `json:"risk"`
	Metrics        MetricsConfig        `json:"metrics"`
	Profiling      ProfilingConfig      `json:"profiling"`
	Features       FeatureFlagsConfig   `json:"features"`
}

type TraderConfig struct {
	TraderID   string `json:"trader_id" validate:"required"`
	InstanceID string `json:"instance_id" validate:"omitempty,uuid4"`
	AccountID  string `json:"account_id"`
}

// RegistryConfig defines venue and instrument mappings.
type RegistryConfig struct {
	Venues      []VenueConfig      `json:"venues" validate:"required,min=1,dive"`
	Instruments []InstrumentConfig `json:"instruments" validate:"dive"`
}

// VenueConfig describes a venue entry.
type VenueConfig struct {
	Name string `json:"name" validate:"required"`
}

// InstrumentConfig describes an instrument entry. Decimal values are strings
// so the precision of the increments is kept.
type InstrumentConfig struct {
	ID             string `json:"id" validate:"required"`
	Kind           string `json:"kind" validate:"omitempty,oneof=SPOT PERPETUAL FUTURE OPTION"`
	QuoteCurrency  string `json:"quote_currency" validate:"required"`
	PricePrecision uint8  `json:"price_precision" validate:"lte=9"`
	SizePrecision  uint8  `json:"size_precision" validate:"lte=9"`
	PriceIncrement string `json:"price_increment" validate:"required"`
	SizeIncrement  string `json:"size_increment" validate:"required"`
	MinQuantity    string `json:"min_quantity"`
	MaxQuantity    string `json:"max_quantity"`
	MakerFee       string `json:"maker_fee"`
	TakerFee       string `json:"taker_fee"`
}

// CacheConfig selects the cache database backend.
type CacheConfig struct {
	cache.Config
	Encoding string `json:"encoding" validate:"omitempty,oneof=msgpack json"`
	Backend  string `json:"backend" validate:"omitempty,oneof=memory pebble postgres redis"`
	Dir      string `json:"dir" validate:"required_if=Backend pebble"`
	DSN      string `json:"dsn" validate:"required_if=Backend postgres"`
	Addr     string `json:"addr" validate:"required_if=Backend redis"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// BusConfig controls external streaming of bus messages.
type BusConfig struct {
	QueueSize      int      `json:"queue_size" validate:"gte=0"`
	Backing        string   `json:"backing" validate:"omitempty,oneof=none redis kafka"`
	StreamKey      string   `json:"stream_key"`
	StreamPerTopic bool     `json:"stream_per_topic"`
	TopicPrefixes  []string `json:"topic_prefixes"`
	AutotrimMins   int      `json:"autotrim_mins" validate:"gte=0"`
	RedisAddr      string   `json:"redis_addr" validate:"required_if=Backing redis"`
	KafkaBrokers   []string `json:"kafka_brokers" validate:"required_if=Backing kafka"`
}

type RecorderConfig struct {
	Enabled         bool   `json:"enabled"`
	Dir             string `json:"dir" validate:"required_if=Enabled true"`
	SegmentMaxBytes int64  `json:"segment_max_bytes" validate:"gte=0"`
	FilePrefix      string `json:"file_prefix"`
}

type ReconciliationConfig struct {
	Tolerance           string `json:"tolerance"`
	InflightThresholdMs int64  `json:"inflight_threshold_ms" validate:"gte=0"`
	InflightIntervalMs  int64  `json:"inflight_interval_ms" validate:"gte=0"`
	MaxRetries          uint32 `json:"max_retries"`
}

type MetricsConfig struct {
	Addr string `json:"addr" validate:"omitempty,hostname_port"`
}

type ProfilingConfig struct {
	Enabled   bool   `json:"enabled"`
	AppName   string `json:"app_name"`
	ServerURL string `json:"server_url" validate:"required_if=Enabled true"`
}

// FeatureFlagsConfig captures optional runtime flags.
type FeatureFlagsConfig struct {
	EnableTrading       *bool `json:"enable_trading"`
	EnableRecording     *bool `json:"enable_recording"`
	EnableInflightCheck *bool `json:"enable_inflight_check"`
}

// FeatureFlags are resolved runtime flags.
type FeatureFlags struct {
	EnableTrading       bool
	EnableRecording     bool
	EnableInflightCheck bool
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	TraderID         model.TraderID
	InstanceID       model.UUID4
	AccountID        model.AccountID
	Registry         *schema.Registry
	Cache            CacheConfig
	Bus              BusConfig
	Backing          backing.Config
	Recorder         recorder.Config
	Reconcile        reconcile.Config
	InflightInterval time.Duration
	Risk             risk.Config
	Metrics          MetricsConfig
	Profiling        ProfilingConfig
	Features         FeatureFlags
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads a JSON config file, applies TRADECORE_* environment overrides,
// validates it and builds the registry.
func Load(path string) (Loaded, error) {
	cfg, err := readFile(path)
	if err != nil {
		return Loaded{}, err
	}
	applyEnv(&cfg)
	return Resolve(cfg)
}

// LoadRegistry reads a JSON config file and only builds the registry.
func LoadRegistry(path string) (*schema.Registry, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return buildRegistry(cfg.Registry)
}

func readFile(path string) (FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, errors.Wrap(err, "read config").With("path", path)
	}
	var cfg FileConfig
	if err := sonic.Unmarshal(data, &cfg); err != nil {
		return FileConfig{}, errors.Wrap(exception.ErrInvalidConfig, err.Error()).With("path", path)
	}
	return cfg, nil
}

// Resolve validates cfg and turns it into the values the node wires.
func Resolve(cfg FileConfig) (Loaded, error) {
	if err := validate.Struct(cfg); err != nil {
		return Loaded{}, errors.Wrap(exception.ErrInvalidConfig, err.Error())
	}

	registry, err := buildRegistry(cfg.Registry)
	if err != nil {
		return Loaded{}, err
	}

	instanceID := model.NewUUID4()
	if cfg.Trader.InstanceID != "" {
		if instanceID, err = uuid.Parse(cfg.Trader.InstanceID); err != nil {
			return Loaded{}, errors.Wrap(exception.ErrInvalidConfig, "instance id").With("value", cfg.Trader.InstanceID)
		}
	}
	accountID := cfg.Trader.AccountID
	if accountID == "" {
		accountID = "SIM-001"
	}
	traderID := model.NewTraderID(cfg.Trader.TraderID)

	cacheCfg := cfg.Cache
	cacheCfg.Config.Encoding = enum.SerializationEncodingMsgPack
	if cacheCfg.Encoding != "" {
		cacheCfg.Config.Encoding, _ = enum.ParseSerializationEncoding(cacheCfg.Encoding)
	}
	if cacheCfg.Backend == "" {
		cacheCfg.Backend = "memory"
	}

	reconcileCfg, err := resolveReconcile(cfg.Reconciliation)
	if err != nil {
		return Loaded{}, err
	}
	inflightInterval := time.Second
	if cfg.Reconciliation.InflightIntervalMs > 0 {
		inflightInterval = time.Duration(cfg.Reconciliation.InflightIntervalMs) * time.Millisecond
	}

	streamKey := cfg.Bus.StreamKey
	if streamKey == "" {
		streamKey = backing.StreamKey(cacheCfg.Config.Keyspace(traderID, instanceID))
	}
	busCfg := cfg.Bus
	if busCfg.Backing == "" {
		busCfg.Backing = "none"
	}

	rec := recorder.DefaultConfig(cfg.Recorder.Dir)
	if cfg.Recorder.SegmentMaxBytes > 0 {
		rec.SegmentMaxBytes = cfg.Recorder.SegmentMaxBytes
	}
	if cfg.Recorder.FilePrefix != "" {
		rec.FilePrefix = cfg.Recorder.FilePrefix
	}

	features := resolveFeatures(cfg.Features)
	if !cfg.Recorder.Enabled {
		features.EnableRecording = false
	}

	return Loaded{
		TraderID:   traderID,
		InstanceID: instanceID,
		AccountID:  model.NewAccountID(accountID),
		Registry:   registry,
		Cache:      cacheCfg,
		Bus:        busCfg,
		Backing: backing.Config{
			StreamKey:      streamKey,
			StreamPerTopic: cfg.Bus.StreamPerTopic,
			TopicPrefixes:  cfg.Bus.TopicPrefixes,
			BufferInterval: cacheCfg.Config.BufferInterval(),
			WriteTimeout:   time.Second,
		},
		Recorder:         rec,
		Reconcile:        reconcileCfg,
		InflightInterval: inflightInterval,
		Risk:             cfg.Risk,
		Metrics:          cfg.Metrics,
		Profiling:        cfg.Profiling,
		Features:         features,
	}, nil
}

func resolveReconcile(cfg ReconciliationConfig) (reconcile.Config, error) {
	out := reconcile.DefaultConfig()
	if cfg.Tolerance != "" {
		tol, err := decimal.NewFromString(cfg.Tolerance)
		if err != nil || tol.IsNegative() {
			return reconcile.Config{}, errors.Wrap(exception.ErrInvalidConfig, "reconciliation tolerance").With("value", cfg.Tolerance)
		}
		out.Tolerance = tol
	}
	if cfg.InflightThresholdMs > 0 {
		out.InflightThreshold = time.Duration(cfg.InflightThresholdMs) * time.Millisecond
	}
	if cfg.MaxRetries > 0 {
		out.InflightMaxRetries = cfg.MaxRetries
	}
	return out, nil
}

func buildRegistry(cfg RegistryConfig) (*schema.Registry, error) {
	reg := schema.NewRegistry()
	for _, venue := range cfg.Venues {
		if _, err := reg.AddVenue(model.NewVenue(venue.Name)); err != nil {
			return nil, err
		}
	}
	for _, ic := range cfg.Instruments {
		inst, err := buildInstrument(ic)
		if err != nil {
			return nil, err
		}
		if _, err := reg.AddInstrument(inst); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func buildInstrument(cfg InstrumentConfig) (*model.Instrument, error) {
	id, err := model.ParseInstrumentID(cfg.ID)
	if err != nil {
		return nil, errors.Wrap(exception.ErrInvalidConfig, "instrument id").With("value", cfg.ID)
	}
	quote, err := model.CurrencyFromCode(cfg.QuoteCurrency)
	if err != nil {
		return nil, errors.Wrap(exception.ErrInvalidConfig, "quote currency").With("instrument", cfg.ID).With("value", cfg.QuoteCurrency)
	}
	inst := &model.Instrument{
		ID:             id,
		RawSymbol:      id.Symbol,
		Kind:           parseKind(cfg.Kind),
		QuoteCurrency:  quote,
		PricePrecision: cfg.PricePrecision,
		SizePrecision:  cfg.SizePrecision,
	}

	invalid := func(field, value string) error {
		return errors.Wrap(exception.ErrInvalidConfig, field).With("instrument", cfg.ID).With("value", value)
	}
	if inst.PriceIncrement, err = model.ParsePrice(cfg.PriceIncrement); err != nil || inst.PriceIncrement.Precision != cfg.PricePrecision || !inst.PriceIncrement.IsPositive() {
		return nil, invalid("price increment", cfg.PriceIncrement)
	}
	if inst.SizeIncrement, err = model.ParseQuantity(cfg.SizeIncrement); err != nil || inst.SizeIncrement.Precision != cfg.SizePrecision || !inst.SizeIncrement.IsPositive() {
		return nil, invalid("size increment", cfg.SizeIncrement)
	}
	if cfg.MinQuantity != "" {
		if inst.MinQuantity, err = model.ParseQuantity(cfg.MinQuantity); err != nil {
			return nil, invalid("min quantity", cfg.MinQuantity)
		}
	}
	if cfg.MaxQuantity != "" {
		if inst.MaxQuantity, err = model.ParseQuantity(cfg.MaxQuantity); err != nil {
			return nil, invalid("max quantity", cfg.MaxQuantity)
		}
	}
	if cfg.MakerFee != "" {
		if inst.MakerFee, err = decimal.NewFromString(cfg.MakerFee); err != nil {
			return nil, invalid("maker fee", cfg.MakerFee)
		}
	}
	if cfg.TakerFee != "" {
		if inst.TakerFee, err = decimal.NewFromString(cfg.TakerFee); err != nil {
			return nil, invalid("taker fee", cfg.TakerFee)
		}
	}
	return inst, nil
}

func parseKind(s string) model.InstrumentKind {
	switch s {
	case "SPOT":
		return model.InstrumentKindSpot
	case "FUTURE":
		return model.InstrumentKindFuture
	case "OPTION":
		return model.InstrumentKindOption
	default:
		return model.InstrumentKindPerpetual
	}
}

func resolveFeatures(cfg FeatureFlagsConfig) FeatureFlags {
	flags := FeatureFlags{
		EnableTrading:       true,
		EnableRecording:     true,
		EnableInflightCheck: true,
	}
	if cfg.EnableTrading != nil {
		flags.EnableTrading = *cfg.EnableTrading
	}
	if cfg.EnableRecording != nil {
		flags.EnableRecording = *cfg.EnableRecording
	}
	if cfg.EnableInflightCheck != nil {
		flags.EnableInflightCheck = *cfg.EnableInflightCheck
	}
	return flags
}

package config

import (
	"flag"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/erain9/crossmatch/pkg/core"
)

// MarketConfig describes one market of a reference pair. Prices and
// quantities are decimals in the file and get scaled into fixed point by
// MarketInfo.
type MarketConfig struct {
	MarketID      uint64  `yaml:"market_id"`
	MarketCode    string  `yaml:"market_code"`
	Type          string  `yaml:"type"`
	CycleType     string  `yaml:"cycle_type"`
	ReferencePair string  `yaml:"reference_pair"`
	FutureMarket  string  `yaml:"future_market"`
	Factor        uint64  `yaml:"factor"`
	QtyFactor     uint64  `yaml:"qty_factor"`
	TickSize      float64 `yaml:"tick_size"`
	QtyIncrement  float64 `yaml:"qty_increment"`
	MakerFeePips  int64   `yaml:"maker_fee_pips"`
	GroupCount    int     `yaml:"group_count"`
}

// Config represents the application configuration
type Config struct {
	Server struct {
		AdminAddr string `yaml:"admin_addr"`
		FeedAddr  string `yaml:"feed_addr"`
		LogLevel  string `yaml:"log_level"`
		LogFormat string `yaml:"log_format"`
	} `yaml:"server"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`

	Kafka struct {
		BrokerAddr   string `yaml:"broker_addr"`
		OrderTopic   string `yaml:"order_topic"`
		PriceTopic   string `yaml:"price_topic"`
		EventTopic   string `yaml:"event_topic"`
		BookTopic    string `yaml:"book_topic"`
		ArchiveTopic string `yaml:"archive_topic"`
		GroupID      string `yaml:"group_id"`
	} `yaml:"kafka"`

	Journal struct {
		Dir string `yaml:"dir"`
	} `yaml:"journal"`

	Feed struct {
		Depth        int `yaml:"depth"`
		ImpliedDepth int `yaml:"implied_depth"`
	} `yaml:"feed"`

	Otel struct {
		Endpoint string `yaml:"endpoint"`
		Enabled  bool   `yaml:"enabled"`
	} `yaml:"otel"`

	Markets []MarketConfig `yaml:"markets"`
}

// Default configuration values
var (
	configFile = flag.String("config", "", "Path to config file (YAML)")
	adminPort  = flag.Int("admin_port", 50051, "The gRPC admin server port")
	feedPort   = flag.Int("feed_port", 8080, "The websocket feed port")
	logLevel   = flag.String("log_level", "info", "Log level: debug, info, warn, error")
	logFormat  = flag.String("log_format", "pretty", "Log format: json, pretty")
)

// LoadConfig loads the configuration from command line flags and optionally from a config file
func LoadConfig() (*Config, error) {
	// Parse command line flags
	flag.Parse()

	config := defaultConfig()

	// Load configuration from file if specified
	if *configFile != "" {
		yamlFile, err := os.ReadFile(*configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(yamlFile, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		log.Printf("Loaded configuration from %s", *configFile)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func defaultConfig() *Config {
	config := &Config{}
	config.Server.AdminAddr = fmt.Sprintf(":%d", *adminPort)
	config.Server.FeedAddr = fmt.Sprintf(":%d", *feedPort)
	config.Server.LogLevel = *logLevel
	config.Server.LogFormat = *logFormat
	config.Redis.Addr = "localhost:6379"
	config.Redis.Prefix = "crossmatch"
	config.Kafka.BrokerAddr = "localhost:9092"
	config.Kafka.OrderTopic = "crossmatch-orders-in"
	config.Kafka.PriceTopic = "crossmatch-prices-in"
	config.Kafka.EventTopic = "crossmatch-order-events"
	config.Kafka.BookTopic = "crossmatch-books-out"
	config.Kafka.ArchiveTopic = "crossmatch-order-archive"
	config.Kafka.GroupID = "crossmatch-engine"
	config.Journal.Dir = "data/journal"
	config.Feed.Depth = 20
	config.Feed.ImpliedDepth = 20
	config.Otel.Endpoint = "localhost:4317"
	return config
}

func (c *Config) validate() error {
	seen := make(map[uint64]string, len(c.Markets))
	for i := range c.Markets {
		m := &c.Markets[i]
		if m.MarketID == 0 {
			return fmt.Errorf("market %q: market_id must be set", m.MarketCode)
		}
		if m.MarketCode == "" {
			return fmt.Errorf("market %d: market_code must be set", m.MarketID)
		}
		if other, dup := seen[m.MarketID]; dup {
			return fmt.Errorf("market %q: market_id %d already used by %q", m.MarketCode, m.MarketID, other)
		}
		seen[m.MarketID] = m.MarketCode
		switch m.Type {
		case core.MarketSpot, core.MarketPerp, core.MarketFuture, core.MarketSpread, core.MarketRepo:
		default:
			return fmt.Errorf("market %q: unknown type %q", m.MarketCode, m.Type)
		}
		if m.Type == core.MarketSpread && m.FutureMarket == "" {
			return fmt.Errorf("market %q: spread markets need a future_market leg", m.MarketCode)
		}
		if m.ReferencePair == "" {
			return fmt.Errorf("market %q: reference_pair must be set", m.MarketCode)
		}
		if m.TickSize < 0 || m.QtyIncrement < 0 {
			return fmt.Errorf("market %q: negative increments", m.MarketCode)
		}
	}
	return nil
}

// MarketInfo converts the decimal file representation into the fixed-point
// parameters the matching core works with.
func (m *MarketConfig) MarketInfo() core.MarketInfo {
	info := core.MarketInfo{
		MarketID:        m.MarketID,
		MarketCode:      m.MarketCode,
		Type:            m.Type,
		ReferencePair:   m.ReferencePair,
		Factor:          m.Factor,
		QtyFactor:       m.QtyFactor,
		MakerFee:        m.MakerFeePips,
		OrderGroupCount: m.GroupCount,
	}
	info.Normalize(m.CycleType)
	if m.TickSize > 0 {
		info.Tick = core.ScalePrice(m.TickSize, info.Factor)
	}
	if m.QtyIncrement > 0 {
		info.QtyIncrement = core.ScaleQuantity(m.QtyIncrement, info.QtyFactor)
	}
	return info
}

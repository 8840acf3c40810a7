package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/erain9/crossmatch/pkg/core"
)

const sampleYAML = `
server:
  admin_addr: ":6000"
  log_level: debug
kafka:
  broker_addr: "kafka:9092"
  order_topic: "orders"
markets:
  - market_id: 1
    market_code: "BTC-USDT-SWAP"
    type: "FUTURE"
    cycle_type: "SWAP"
    reference_pair: "BTC-USDT"
    factor: 100
    qty_factor: 1000
    tick_size: 0.5
    qty_increment: 0.001
    maker_fee_pips: 10
  - market_id: 2
    market_code: "BTC-USDT-SPR-240927"
    type: "SPREAD"
    future_market: "BTC-USDT-240927"
    reference_pair: "BTC-USDT"
    factor: 100
`

func TestLoadFromYAML(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, yaml.Unmarshal([]byte(sampleYAML), cfg))
	require.NoError(t, cfg.validate())

	assert.Equal(t, ":6000", cfg.Server.AdminAddr)
	assert.Equal(t, "kafka:9092", cfg.Kafka.BrokerAddr)
	assert.Equal(t, "orders", cfg.Kafka.OrderTopic)
	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "crossmatch-prices-in", cfg.Kafka.PriceTopic)
	require.Len(t, cfg.Markets, 2)
}

func TestMarketInfoScaling(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, yaml.Unmarshal([]byte(sampleYAML), cfg))

	info := cfg.Markets[0].MarketInfo()
	// A FUTURE with a SWAP cycle is a perp.
	assert.Equal(t, core.MarketPerp, info.Type)
	assert.Equal(t, int64(50), info.Tick)
	assert.Equal(t, uint64(1), info.QtyIncrement)
	assert.Equal(t, int64(10), info.MakerFee)
	assert.Equal(t, core.DefaultOrderGroupCount, info.OrderGroupCount)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"duplicate id", func(c *Config) { c.Markets[1].MarketID = 1 }},
		{"unknown type", func(c *Config) { c.Markets[0].Type = "OPTION" }},
		{"spread without future leg", func(c *Config) { c.Markets[1].FutureMarket = "" }},
		{"missing reference pair", func(c *Config) { c.Markets[0].ReferencePair = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			require.NoError(t, yaml.Unmarshal([]byte(sampleYAML), cfg))
			tt.mutate(cfg)
			assert.Error(t, cfg.validate())
		})
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"time"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"
	"github.com/fatih/color"
	"github.com/segmentio/kafka-go"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/erain9/crossmatch/pkg/core"
)

// Config holds the load generator settings, all overridable from the
// environment.
type Config struct {
	BrokerAddr      string
	OrderTopic      string
	MarketID        uint64
	NumWorkers      int
	OrdersPerWorker int
	OrdersPerSecond int
	MidPrice        int64
	PriceSpread     int64
	MaxQuantity     uint64
}

func loadConfig() (*Config, error) {
	v := viper.New()

	v.SetDefault("KAFKA_BROKER_ADDR", "localhost:9092")
	v.SetDefault("ORDER_TOPIC", "crossmatch-orders-in")
	v.SetDefault("MARKET_ID", 1)
	v.SetDefault("NUM_WORKERS", 16)
	v.SetDefault("ORDERS_PER_WORKER", 10000)
	v.SetDefault("ORDERS_PER_SECOND", 20000)
	v.SetDefault("MID_PRICE", 5000000)
	v.SetDefault("PRICE_SPREAD", 1000)
	v.SetDefault("MAX_QUANTITY", 100)

	v.AutomaticEnv()

	cfg := &Config{
		BrokerAddr:      v.GetString("KAFKA_BROKER_ADDR"),
		OrderTopic:      v.GetString("ORDER_TOPIC"),
		MarketID:        v.GetUint64("MARKET_ID"),
		NumWorkers:      v.GetInt("NUM_WORKERS"),
		OrdersPerWorker: v.GetInt("ORDERS_PER_WORKER"),
		OrdersPerSecond: v.GetInt("ORDERS_PER_SECOND"),
		MidPrice:        v.GetInt64("MID_PRICE"),
		PriceSpread:     v.GetInt64("PRICE_SPREAD"),
		MaxQuantity:     v.GetUint64("MAX_QUANTITY"),
	}
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.BrokerAddr == "" {
		return fmt.Errorf("KAFKA_BROKER_ADDR must not be empty")
	}
	if cfg.OrderTopic == "" {
		return fmt.Errorf("ORDER_TOPIC must not be empty")
	}
	if cfg.MarketID == 0 {
		return fmt.Errorf("MARKET_ID must not be zero")
	}
	if cfg.NumWorkers <= 0 || cfg.OrdersPerWorker <= 0 {
		return fmt.Errorf("NUM_WORKERS and ORDERS_PER_WORKER must be positive")
	}
	if cfg.MaxQuantity == 0 {
		return fmt.Errorf("MAX_QUANTITY must not be zero")
	}
	return nil
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.BrokerAddr),
		Topic:        cfg.OrderTopic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}
	defer writer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		log.Println("Received interrupt signal, cleaning up...")
		cancel()
	}()

	limiter := rate.NewLimiter(rate.Limit(cfg.OrdersPerSecond), cfg.OrdersPerSecond)
	hist := hdrhistogram.New(1, int64(10*time.Second/time.Microsecond), 3)
	var histMu sync.Mutex

	var wg sync.WaitGroup
	errChan := make(chan error, cfg.NumWorkers*cfg.OrdersPerWorker)

	total := cfg.NumWorkers * cfg.OrdersPerWorker
	start := time.Now()
	log.Printf("Starting %d workers, %d orders per worker...", cfg.NumWorkers, cfg.OrdersPerWorker)

	for i := 0; i < cfg.NumWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
			for j := 0; j < cfg.OrdersPerWorker; j++ {
				if err := limiter.Wait(ctx); err != nil {
					return
				}

				order := randomOrder(cfg, r, uint64(workerID*cfg.OrdersPerWorker+j+1))
				payload, err := json.Marshal(&order)
				if err != nil {
					errChan <- fmt.Errorf("failed to marshal order: %v", err)
					continue
				}

				sent := time.Now()
				err = writer.WriteMessages(ctx, kafka.Message{
					Key:   []byte(strconv.FormatUint(order.MarketID, 10)),
					Value: payload,
				})
				if err != nil {
					errChan <- fmt.Errorf("failed to produce order: %v", err)
					continue
				}

				histMu.Lock()
				_ = hist.RecordValue(time.Since(sent).Microseconds())
				histMu.Unlock()
			}
		}(i)
	}

	wg.Wait()
	duration := time.Since(start)
	close(errChan)

	var errors []error
	for err := range errChan {
		errors = append(errors, err)
	}

	printSummary(cfg, hist, total, len(errors), duration)

	if len(errors) > 0 {
		log.Printf("First error: %v", errors[0])
		os.Exit(1)
	}
}

func randomOrder(cfg *Config, r *rand.Rand, orderID uint64) core.Order {
	side := core.Buy
	if r.Float64() < 0.5 {
		side = core.Sell
	}

	price := cfg.MidPrice + r.Int63n(2*cfg.PriceSpread+1) - cfg.PriceSpread
	qty := uint64(r.Int63n(int64(cfg.MaxQuantity))) + 1

	return core.Order{
		OrderID:         orderID,
		AccountID:       uint64(r.Intn(1000)) + 1,
		MarketID:        cfg.MarketID,
		Side:            side,
		Type:            core.TypeLimit,
		TimeCondition:   core.GTC,
		Action:          core.ActionNew,
		Price:           price,
		Quantity:        qty,
		DisplayQuantity: qty,
		RemainQuantity:  qty,
	}
}

func printSummary(cfg *Config, hist *hdrhistogram.Histogram, total, failed int, duration time.Duration) {
	color.NoColor = false
	cyan := color.New(color.FgCyan).SprintfFunc()
	red := color.New(color.FgRed).SprintfFunc()
	green := color.New(color.FgGreen).SprintfFunc()

	fmt.Println(cyan("Load test completed in %v", duration))
	fmt.Println(green("Orders produced: %d (%.0f/sec)", total-failed, float64(total-failed)/duration.Seconds()))
	if failed > 0 {
		fmt.Println(red("Errors encountered: %d", failed))
	}
	fmt.Printf("Produce latency (us): p50=%d p99=%d p99.9=%d max=%d\n",
		hist.ValueAtQuantile(50),
		hist.ValueAtQuantile(99),
		hist.ValueAtQuantile(99.9),
		hist.Max())
	fmt.Printf("Target market: %d, topic: %s\n", cfg.MarketID, cfg.OrderTopic)
}

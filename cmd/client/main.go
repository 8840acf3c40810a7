package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"github.com/nikolaydubina/fpdecimal"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/erain9/crossmatch/pkg/messaging"
)

var (
	feedAddr  = flag.String("feed-addr", "localhost:8080", "Websocket feed address in the format host:port")
	adminAddr = flag.String("admin-addr", "localhost:50051", "Admin gRPC address in the format host:port")
	market    = flag.String("market", "", "Market code filter, empty for all markets")
	factor    = flag.Float64("factor", 100, "Price scaling factor for display")
	qtyFactor = flag.Float64("qty-factor", 1, "Quantity scaling factor for display")
)

type feedMessage struct {
	Type string      `json:"type"`
	Data feedPayload `json:"data"`
}

// feedPayload is the union of the book and quote wire shapes, the type field
// says which half is populated.
type feedPayload struct {
	messaging.BookSnapshot
	BidPrice    int64  `json:"bp"`
	BidQuantity uint64 `json:"bq"`
	AskPrice    int64  `json:"ap"`
	AskQuantity uint64 `json:"aq"`
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	os.Args = append(os.Args[:1], os.Args[2:]...)
	flag.Parse()

	switch command {
	case "watch-books":
		watch("/ws/books")
	case "watch-quotes":
		watch("/ws/quotes")
	case "health":
		checkHealth()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: client <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  watch-books   Stream display books from the feed")
	fmt.Println("  watch-quotes  Stream best quotes from the feed")
	fmt.Println("  health        Check engine health over the admin port")
}

func watch(path string) {
	url := fmt.Sprintf("ws://%s%s", *feedAddr, path)
	if *market != "" {
		url += "?market=" + *market
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Fatal().Err(err).Str("url", url).Msg("Failed to connect to feed")
	}
	defer conn.Close()

	log.Info().Str("url", url).Msg("Connected to feed")

	for {
		var msg feedMessage
		if err := conn.ReadJSON(&msg); err != nil {
			log.Fatal().Err(err).Msg("Feed connection closed")
		}
		switch msg.Type {
		case "book":
			renderBook(&msg.Data.BookSnapshot)
		case "quote":
			renderQuote(&msg.Data)
		}
	}
}

func renderBook(snap *messaging.BookSnapshot) {
	color.NoColor = false
	cyan := color.New(color.FgCyan).SprintfFunc()
	red := color.New(color.FgRed).SprintfFunc()
	green := color.New(color.FgGreen).SprintfFunc()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)

	fmt.Fprintf(w, "%s\n", cyan("%s", snap.MarketCode))
	fmt.Fprintf(w, "%15s|%15s|%s\n", cyan("Price"), cyan("Quantity"), cyan("Side"))
	fmt.Fprintf(w, "%15s|%15s|%s\n", "---------------", "---------------", "----")

	// Asks print worst first so the spread sits in the middle.
	for i := len(snap.Asks) - 1; i >= 0; i-- {
		level := snap.Asks[i]
		fmt.Fprintf(w, "%15s|%15s|%s\n",
			displayPrice(level.Price),
			displayQuantity(level.Quantity),
			red("ASK"))
	}
	fmt.Fprintf(w, "%15s|%15s|%s\n", "---------------", "---------------", "----")
	for _, level := range snap.Bids {
		fmt.Fprintf(w, "%15s|%15s|%s\n",
			displayPrice(level.Price),
			displayQuantity(level.Quantity),
			green("BID"))
	}
	w.Flush()
	fmt.Println()
}

func renderQuote(quote *feedPayload) {
	color.NoColor = false
	red := color.New(color.FgRed).SprintfFunc()
	green := color.New(color.FgGreen).SprintfFunc()

	fmt.Printf("%s  bid %s x %s  ask %s x %s\n",
		quote.MarketCode,
		green("%s", displayPrice(quote.BidPrice)),
		displayQuantity(quote.BidQuantity),
		red("%s", displayPrice(quote.AskPrice)),
		displayQuantity(quote.AskQuantity))
}

func displayPrice(price int64) string {
	return fpdecimal.FromFloat(float64(price) / *factor).String()
}

func displayQuantity(qty uint64) string {
	return fpdecimal.FromFloat(float64(qty) / *qtyFactor).String()
}

func checkHealth() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(ctx, *adminAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to admin server")
	}
	defer conn.Close()

	service := *market
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		log.Fatal().Err(err).Msg("Health check failed")
	}
	log.Info().
		Str("service", service).
		Str("status", resp.Status.String()).
		Msg("Health check complete")
}

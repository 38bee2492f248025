package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mapleandrye/backend-bakeshop/internal/config"
	"github.com/mapleandrye/backend-bakeshop/internal/obs"
	"github.com/mapleandrye/backend-bakeshop/internal/pricing"
	"github.com/mapleandrye/backend-bakeshop/internal/resilience"
	"github.com/mapleandrye/backend-bakeshop/internal/shipping"
)

// ratecheck quotes live carrier rates from the command line. Useful for
// verifying USPS credentials and origin configuration before a deploy.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	destZIP := flag.String("zip", "", "destination ZIP code")
	items := flag.Int("items", 1, "number of items in the box")
	timeout := flag.Duration("timeout", 30*time.Second, "overall quote timeout")
	flag.Parse()

	if *destZIP == "" {
		fmt.Fprintln(os.Stderr, "usage: ratecheck -zip 33101 [-items 6]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := obs.NewLogger("console", "warn")

	carrier := &shipping.USPSClient{
		BaseURL:      cfg.USPSBaseURL,
		ClientID:     cfg.USPSClientID,
		ClientSecret: cfg.USPSClientSecret,
		HTTP: resilience.HTTPClient{
			Client:      &http.Client{},
			MaxAttempts: 2,
			Timeout:     cfg.ShippingCallTimeout,
		},
	}
	quoter := &shipping.Quoter{
		Carrier:      carrier,
		OriginZIP:    cfg.OriginZIP,
		MaxAttempts:  cfg.ShippingMaxAttempts,
		RetryBackoff: cfg.ShippingRetryBackoff,
		StaggerStep:  cfg.ShippingStaggerStep,
		Logger:       logger,
		Progress: func(pct int) {
			fmt.Fprintf(os.Stderr, "\rquoting... %d%%", pct)
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	result, err := quoter.Quote(ctx, *destZIP, *items)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		log.Fatalf("quote: %v", err)
	}

	fmt.Printf("%s -> %s  (%d items, %.2f lb, box %.0fx%.0fx%.0f)\n",
		cfg.OriginZIP, *destZIP, *items,
		result.Dimensions.WeightLb, result.Dimensions.Length, result.Dimensions.Width, result.Dimensions.Height)
	if result.Fallback {
		fmt.Println("carrier unavailable, showing fallback table:")
	}
	for _, rate := range result.Rates {
		line := fmt.Sprintf("  %-30s  $%.2f", rate.MailClass, pricing.Dollars(rate.TotalPrice))
		if rate.Commitment != nil && rate.Commitment.ScheduleDeliveryDate != "" {
			line += "  ETA " + rate.Commitment.ScheduleDeliveryDate
		}
		fmt.Println(line)
	}
}

// Command test-scale is a manual test for the measurement session.
// It connects to a scale, logs every frame at debug level and prints the
// result of one or more measurement requests.
//
// Usage:
//
//	go run ./cmd/test-scale --address AA:BB:CC:DD:EE:FF [--unit kg|lb] [--count 2]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/chaz8081/renpho-ble/internal/ble"
	"github.com/chaz8081/renpho-ble/internal/scale"
)

func main() {
	address := flag.String("address", "", "scale address (scans when empty)")
	unit := flag.String("unit", "kg", "weight unit: kg or lb")
	count := flag.Int("count", 1, "number of measurement requests on one connection")
	timeout := flag.Duration("timeout", scale.DefaultTimeout, "per-request timeout")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	u, err := scale.ParseWeightUnit(*unit)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	adapter := ble.NewTinygoAdapter()
	if *address == "" {
		fmt.Println("Scanning for a scale...")
		dev, err := ble.FindScale(adapter, ble.DefaultNamePrefix, 15*time.Second)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		*address = dev.Address
		fmt.Printf("Found %q at %s\n", dev.Name, dev.Address)
	}

	client := ble.NewClient(adapter, *address, ble.ClientOptions{Logger: logger})
	sc := scale.New(client, scale.Options{
		Timeout: *timeout,
		Logger:  logger,
		OnUnsolicited: func(m scale.Measurement) {
			fmt.Printf("Unsolicited reading: %.2f kg\n", m.WeightKg)
		},
	})

	ctx := context.Background()
	if err := sc.Connect(ctx); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer sc.Disconnect()

	for i := 1; i <= *count; i++ {
		fmt.Printf("\nRequest %d/%d: step on the scale...\n", i, *count)
		res, err := sc.Measure(ctx, scale.MeasureOptions{Unit: u, BodyComposition: true})
		if err != nil {
			state := "disconnected"
			if sess := sc.Session(); sess != nil {
				state = sess.State().String()
			}
			fmt.Printf("Error: %v (state %s)\n", err, state)
			continue
		}
		m := res.Measurement
		fmt.Printf("Weight %.2f kg, impedance %.1f, resistance %d/%d\n",
			m.WeightKg, m.Impedance, m.Resistance1, m.Resistance2)
		if c := res.Composition; c != nil {
			fmt.Printf("Fat %.1f%%, water %.1f%%, muscle %.1f kg, bone %.1f kg\n",
				c.BodyFatPct, c.BodyWaterPct, c.MuscleMassKg, c.BoneMassKg)
		}
		if sess := sc.Session(); sess != nil {
			if v, ok := sess.Variant(); ok {
				fmt.Printf("Variant: %s\n", v)
			}
		}
	}

	fmt.Println("\nDone!")
}

// Command glasswing-keygen mints offline license keys for a device.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/nivara-ai/glasswing/internal/license"
)

func main() {
	os.Exit(run())
}

func run() int {
	device := flag.String("device", "", "device identifier the key is bound to (required)")
	plan := flag.String("plan", "U", "plan type: U (unlimited) or L (limited)")
	days := flag.Int("days", 365, "validity in days from today")
	lifetime := flag.Bool("lifetime", false, "issue a perpetual key (overrides -days)")
	flag.Parse()

	if *device == "" {
		fmt.Fprintln(os.Stderr, "glasswing-keygen: -device is required")
		flag.Usage()
		return 2
	}

	duration := *days
	if *lifetime {
		duration = -1
	}

	key, err := license.Generate(*device, duration, license.Plan(*plan), time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "glasswing-keygen: %v\n", err)
		return 1
	}

	fmt.Printf("Device:  %s\n", *device)
	fmt.Printf("Plan:    %s\n", *plan)
	if exp, ok := key.ExpiresAt(); ok {
		fmt.Printf("Expires: %s\n", exp.Format("2006-01-02"))
	} else {
		fmt.Println("Expires: never")
	}
	fmt.Printf("Key:     %s\n", key)
	return 0
}

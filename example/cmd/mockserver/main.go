// Standalone mock portal for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	CRYSTAL_USERNAME=demo CRYSTAL_PASSWORD=demo \
//	    go run ./cmd/parkwatch watch 12/24 -c example/config.yaml
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jpalmerr/parkwatch/example/mockportal"
)

func main() {
	addr := flag.String("addr", ":9999", "listen address")
	flipAfter := flag.Int("flip-after", 10, "date page loads before spots open")
	glitchRate := flag.Float64("glitch-rate", 0.2, "chance of a page without a status element")
	flag.Parse()

	fmt.Printf("Mock parking portal starting on %s\n", *addr)
	fmt.Printf("Dates read SOLD OUT for %d checks, then 3 SPOTS LEFT\n", *flipAfter)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	mock := mockportal.New(*flipAfter, *glitchRate, slog.Default())
	if err := http.ListenAndServe(*addr, mock.Handler()); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

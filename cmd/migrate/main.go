// migrate applies the embedded schema migrations: go run ./cmd/migrate -direction up
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/ErlanBelekov/fallah-auth/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	// Only the DSN is needed here, so the full service config is not loaded.
	if err := migrate.Run(os.Getenv("DATABASE_URL"), *direction); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return
		}
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
	fmt.Println("migrate:", *direction, "ok")
}

// Command authtest-server runs the in-memory auth API on an ephemeral
// port for local development. It seeds a single user and prints the
// base URL; point authctl's --server flag at it.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.pilab.hu/authflow/authtest"
	"go.pilab.hu/authflow/domain"
)

func main() {
	username := flag.String("user", "dev", "seed username")
	password := flag.String("password", "dev", "seed password")
	tokenTTL := flag.Duration("token-ttl", 15*time.Minute, "access token lifetime")
	sessionTTL := flag.Duration("session-ttl", 24*time.Hour, "session lifetime")
	flag.Parse()

	srv := authtest.NewServer(
		authtest.WithTokenTTL(*tokenTTL),
		authtest.WithSessionTTL(*sessionTTL),
	)
	defer srv.Close()

	err := srv.AddUser(*username, *password, &domain.UserRecord{
		ID:          "dev-user",
		Username:    *username,
		DisplayName: "Development User",
		Role:        "admin",
		Status:      domain.UserStatusActive,
		Email:       *username + "@localhost",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed user: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("authtest server listening at %s (user %q)\n", srv.URL(), *username)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

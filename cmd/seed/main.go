// Command seed creates pending interview sessions for local development,
// printing the invitation ids. Session creation in production belongs to
// the recruiter backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/store"
)

func main() {
	dbURL := flag.String("db", os.Getenv("DATABASE_URL"), "postgres connection string")
	role := flag.String("role", "Backend Engineer", "job role for the seeded sessions")
	limit := flag.Duration("limit", 30*time.Minute, "interview time limit")
	count := flag.Int("count", 1, "number of sessions to create")
	flag.Parse()

	db, err := store.Open(*dbURL)
	if err != nil {
		slog.Error("store open failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for i := 0; i < *count; i++ {
		id := uuid.NewString()
		if err := db.CreateSession(ctx, id, *role, *limit); err != nil {
			slog.Error("create session failed", "error", err)
			os.Exit(1)
		}
		fmt.Println(id)
	}
}

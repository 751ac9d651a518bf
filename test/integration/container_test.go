//go:build integration

package integration

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

const postgresImage = "postgres:16-alpine"

// startPostgresContainer runs a throwaway postgres through the Docker CLI.
// Docker picks the host port; the container is removed by the returned stop.
func startPostgresContainer(ctx context.Context) (string, func(), error) {
	id, err := docker(ctx, "run", "-d", "--rm",
		"-p", "127.0.0.1::5432",
		"-e", "POSTGRES_USER=bedflow",
		"-e", "POSTGRES_PASSWORD=bedflow",
		"-e", "POSTGRES_DB=bedflowtest",
		"--label", "bedflow.integration=true",
		postgresImage,
	)
	if err != nil {
		return "", nil, err
	}
	stop := func() {
		_, _ = docker(context.Background(), "rm", "-f", id)
	}

	mapped, err := docker(ctx, "port", id, "5432/tcp")
	if err != nil {
		stop()
		return "", nil, err
	}
	hostPort := strings.SplitN(mapped, "\n", 2)[0]
	connStr := fmt.Sprintf("postgres://bedflow:bedflow@%s/bedflowtest?sslmode=disable", hostPort)

	readyCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := awaitPostgres(readyCtx, connStr); err != nil {
		stop()
		return "", nil, err
	}
	return connStr, stop, nil
}

func docker(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "docker", args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("docker %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// awaitPostgres polls until the server accepts a connection and answers a
// ping, or ctx expires.
func awaitPostgres(ctx context.Context, connStr string) error {
	tick := time.NewTicker(250 * time.Millisecond)
	defer tick.Stop()

	var lastErr error
	for {
		conn, err := pgx.Connect(ctx, connStr)
		if err == nil {
			err = conn.Ping(ctx)
			conn.Close(ctx)
			if err == nil {
				return nil
			}
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres not ready: %w (last error: %v)", ctx.Err(), lastErr)
		case <-tick.C:
		}
	}
}

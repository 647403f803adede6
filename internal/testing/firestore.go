// Package testing provides shared test infrastructure, currently the
// Firestore emulator harness used by store tests.
package testing

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	emulatorStartupTime = 5 * time.Second
	pollInterval        = 100 * time.Millisecond
	clearDataTimeout    = 10 * time.Second
	httpRequestTimeout  = 1 * time.Second
)

var (
	ErrEmulatorStartTimeout = errors.New("emulator did not start within timeout")
	ErrEmulatorClearFailed  = errors.New("failed to clear emulator data")
)

// FirestoreEmulator manages a Firestore emulator instance for store tests.
// Each instance uses a unique project ID so tests cannot see each other's
// documents even when they share an emulator process.
type FirestoreEmulator struct {
	Host      string
	ProjectID string
	Client    *firestore.Client
	cmd       *exec.Cmd
	cleanup   func()
}

// SetupFirestoreEmulator returns an emulator-backed Firestore client. It
// reuses an emulator advertised via FIRESTORE_EMULATOR_HOST (CI), otherwise
// starts one with gcloud. Tests are skipped when neither is possible.
func SetupFirestoreEmulator(t *testing.T) (*FirestoreEmulator, context.Context) {
	t.Helper()

	ctx := context.Background()
	emulator := &FirestoreEmulator{
		ProjectID: "test-" + uuid.NewString()[:8],
	}

	if existingHost := os.Getenv("FIRESTORE_EMULATOR_HOST"); existingHost != "" {
		t.Logf("Using existing Firestore emulator at %s", existingHost)
		emulator.Host = existingHost
	} else {
		if _, err := exec.LookPath("gcloud"); err != nil {
			t.Skip("Skipping: no Firestore emulator and gcloud not in PATH")
		}
		if err := emulator.startLocalEmulator(t); err != nil {
			t.Skipf("Skipping: failed to start Firestore emulator: %v", err)
		}
	}

	client, err := emulator.createClient(ctx)
	if err != nil {
		if emulator.cmd != nil {
			_ = emulator.cmd.Process.Kill()
		}
		t.Fatalf("Failed to create Firestore client: %v", err)
	}
	emulator.Client = client

	emulator.cleanup = func() {
		_ = client.Close()
		if emulator.cmd != nil {
			_ = emulator.cmd.Process.Kill()
		}
	}

	if err := emulator.ClearData(ctx); err != nil {
		t.Logf("Warning: failed to clear emulator data: %v", err)
	}

	return emulator, ctx
}

// Cleanup closes the client and stops any emulator this harness started.
func (e *FirestoreEmulator) Cleanup() {
	if e.cleanup != nil {
		e.cleanup()
	}
}

func (e *FirestoreEmulator) startLocalEmulator(t *testing.T) error {
	t.Helper()

	port, err := findAvailablePort()
	if err != nil {
		return fmt.Errorf("no available port for emulator: %w", err)
	}

	e.Host = fmt.Sprintf("localhost:%d", port)
	// #nosec G204 -- Static arguments for test emulator command
	e.cmd = exec.Command("gcloud", "emulators", "firestore", "start", "--host-port", e.Host)
	if err := e.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start emulator: %w", err)
	}

	t.Setenv("FIRESTORE_EMULATOR_HOST", e.Host)
	t.Logf("Started Firestore emulator at %s", e.Host)

	if err := e.waitForEmulator(); err != nil {
		_ = e.cmd.Process.Kill()
		return err
	}
	return nil
}

func (e *FirestoreEmulator) waitForEmulator() error {
	deadline := time.Now().Add(emulatorStartupTime)
	url := fmt.Sprintf("http://%s/", e.Host)

	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), httpRequestTimeout)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			cancel()
			time.Sleep(pollInterval)
			continue
		}

		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				cancel()
				return nil
			}
		}
		cancel()
		time.Sleep(pollInterval)
	}

	return fmt.Errorf("%w: %v", ErrEmulatorStartTimeout, emulatorStartupTime)
}

func (e *FirestoreEmulator) createClient(ctx context.Context) (*firestore.Client, error) {
	conn, err := grpc.NewClient(e.Host, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	client, err := firestore.NewClient(ctx, e.ProjectID, option.WithGRPCConn(conn))
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return client, nil
}

// ClearData deletes every document under the emulator project.
func (e *FirestoreEmulator) ClearData(ctx context.Context) error {
	url := fmt.Sprintf("http://%s/emulator/v1/projects/%s/databases/(default)/documents", e.Host, e.ProjectID)

	timeoutCtx, cancel := context.WithTimeout(ctx, clearDataTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create clear data request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to clear emulator data: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// A fresh project ID legitimately 404s or 500s before first use.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound && resp.StatusCode != http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", ErrEmulatorClearFailed, resp.StatusCode)
	}
	return nil
}

func findAvailablePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, fmt.Errorf("failed to resolve TCP address: %w", err)
	}

	listener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("failed to listen on TCP address: %w", err)
	}
	defer func() { _ = listener.Close() }()

	return listener.Addr().(*net.TCPAddr).Port, nil
}

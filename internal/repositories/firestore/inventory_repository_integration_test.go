//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	domain "github.com/shopstream/api/internal/domain"
	pconfig "github.com/shopstream/api/internal/platform/config"
	pfirestore "github.com/shopstream/api/internal/platform/firestore"
	"github.com/shopstream/api/internal/repositories"
)

func TestInventoryRepositoryIntegration(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })

	waitForEndpoint(t, endpoint, 30*time.Second)

	cfg := pconfig.FirestoreConfig{
		ProjectID:    "inventory-test",
		EmulatorHost: endpoint,
	}

	provider := pfirestore.NewProvider(cfg)
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	repo, err := NewInventoryRepository(provider)
	if err != nil {
		t.Fatalf("new inventory repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("provider client: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	seed := map[string]map[string]any{
		"prod_widget": {
			"name":      "Widget",
			"unitPrice": 2500,
			"stock":     5,
			"isActive":  true,
			"updatedAt": now,
		},
		"prod_gadget": {
			"name":      "Gadget",
			"unitPrice": 1000,
			"stock":     2,
			"isActive":  true,
			"updatedAt": now,
		},
		"prod_retired": {
			"name":      "Retired",
			"unitPrice": 500,
			"stock":     10,
			"isActive":  false,
			"updatedAt": now,
		},
	}
	for id, doc := range seed {
		if _, err := client.Collection(productsCollection).Doc(id).Set(ctx, doc); err != nil {
			t.Fatalf("seed product %s: %v", id, err)
		}
	}

	reserveResult, err := repo.Reserve(ctx, repositories.InventoryReserveRequest{
		Lines: []domain.ReservationLine{
			{ProductID: "prod_widget", Quantity: 3},
			{ProductID: "prod_gadget", Quantity: 1},
		},
		OrderID: "order_1",
		Now:     now,
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if got := reserveResult.Stocks["prod_widget"].Stock; got != 2 {
		t.Fatalf("expected widget stock 2 after reserve, got %d", got)
	}
	if got := reserveResult.Stocks["prod_gadget"].Stock; got != 1 {
		t.Fatalf("expected gadget stock 1 after reserve, got %d", got)
	}

	var invErr *repositories.InventoryError

	// One short line fails the whole reservation, leaving both stocks intact.
	_, err = repo.Reserve(ctx, repositories.InventoryReserveRequest{
		Lines: []domain.ReservationLine{
			{ProductID: "prod_widget", Quantity: 1},
			{ProductID: "prod_gadget", Quantity: 5},
		},
		OrderID: "order_2",
		Now:     now.Add(time.Second),
	})
	if !errors.As(err, &invErr) || invErr.Code != repositories.InventoryErrorInsufficientStock {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}
	if snap, err := repo.Availability(ctx, "prod_widget"); err != nil || snap.Stock != 2 {
		t.Fatalf("expected widget stock untouched at 2, got %d (err %v)", snap.Stock, err)
	}

	_, err = repo.Reserve(ctx, repositories.InventoryReserveRequest{
		Lines:   []domain.ReservationLine{{ProductID: "prod_retired", Quantity: 1}},
		OrderID: "order_3",
		Now:     now,
	})
	if !errors.As(err, &invErr) || invErr.Code != repositories.InventoryErrorProductInactive {
		t.Fatalf("expected inactive product error, got %v", err)
	}

	_, err = repo.Reserve(ctx, repositories.InventoryReserveRequest{
		Lines:   []domain.ReservationLine{{ProductID: "prod_missing", Quantity: 1}},
		OrderID: "order_4",
		Now:     now,
	})
	if !errors.As(err, &invErr) || invErr.Code != repositories.InventoryErrorProductNotFound {
		t.Fatalf("expected product not found error, got %v", err)
	}
	if !strings.Contains(invErr.Error(), "prod_missing") {
		t.Fatalf("expected product id in error, got %v", invErr)
	}

	releaseResult, err := repo.Release(ctx, repositories.InventoryReleaseRequest{
		Lines: []domain.ReservationLine{
			{ProductID: "prod_widget", Quantity: 3},
			{ProductID: "prod_gadget", Quantity: 1},
		},
		OrderID: "order_1",
		Reason:  "order cancelled",
		Now:     now.Add(2 * time.Second),
	})
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if got := releaseResult.Stocks["prod_widget"].Stock; got != 5 {
		t.Fatalf("expected widget stock restored to 5, got %d", got)
	}

	// Concurrent reserves must never drive stock below zero.
	const workers = 8
	var wg sync.WaitGroup
	successes := make(chan struct{}, workers)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(idx int) {
			defer wg.Done()
			_, err := repo.Reserve(ctx, repositories.InventoryReserveRequest{
				Lines:   []domain.ReservationLine{{ProductID: "prod_widget", Quantity: 2}},
				OrderID: fmt.Sprintf("order_c_%d", idx),
				Now:     time.Now().UTC(),
			})
			if err == nil {
				successes <- struct{}{}
			}
		}(i)
	}
	wg.Wait()
	close(successes)

	granted := 0
	for range successes {
		granted++
	}
	if granted != 2 {
		t.Fatalf("expected exactly 2 of %d concurrent reserves to win with stock 5, got %d", workers, granted)
	}
	snap, err := repo.Availability(ctx, "prod_widget")
	if err != nil {
		t.Fatalf("availability after concurrency: %v", err)
	}
	if snap.Stock != 1 {
		t.Fatalf("expected widget stock 1 after concurrent reserves, got %d", snap.Stock)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		"gcr.io/google.com/cloudsdktool/cloud-sdk:emulators",
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}

	cmd := exec.Command("docker", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "info")
	if err := cmd.Run(); err != nil {
		t.Skip("docker daemon unavailable: " + err.Error())
	}
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "docker", "stop", id)
	_ = cmd.Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		lastErr = err
		time.Sleep(250 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = errors.New("timeout waiting for endpoint")
	}
	t.Fatalf("emulator did not become ready: %v", lastErr)
}

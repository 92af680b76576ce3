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

	domain "github.com/orderdesk/api/internal/domain"
	pconfig "github.com/orderdesk/api/internal/platform/config"
	pfirestore "github.com/orderdesk/api/internal/platform/firestore"
	"github.com/orderdesk/api/internal/repositories"
)

func TestInventoryRepositoryIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}

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

	now := time.Now().UTC().Truncate(time.Second)
	pen := domain.InventoryItem{
		ID:        "inv_pen",
		Name:      "Blue Pen",
		Category:  "stationery",
		Quantity:  12,
		UnitPrice: 150,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.Insert(ctx, pen); err != nil {
		t.Fatalf("seed item: %v", err)
	}

	stored, err := repo.FindByID(ctx, pen.ID)
	if err != nil {
		t.Fatalf("find seeded item: %v", err)
	}
	if stored.Status != domain.StockStatusInStock {
		t.Fatalf("expected in_stock for quantity 12, got %s", stored.Status)
	}

	// Dropping to the threshold boundary recomputes the status in the same write.
	result, err := repo.AdjustQuantities(ctx, repositories.InventoryAdjustRequest{
		Adjustments: []repositories.InventoryAdjustment{{ProductID: pen.ID, Delta: -2}},
		Reason:      "order",
		OrderRef:    "ord_int_1",
		Now:         now.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("adjust to threshold: %v", err)
	}
	item, ok := result.Items[pen.ID]
	if !ok {
		t.Fatalf("adjust result missing %s: %+v", pen.ID, result.Items)
	}
	if item.Quantity != 10 || item.Status != domain.StockStatusLowStock {
		t.Fatalf("expected quantity 10 low_stock, got %d %s", item.Quantity, item.Status)
	}

	result, err = repo.AdjustQuantities(ctx, repositories.InventoryAdjustRequest{
		Adjustments: []repositories.InventoryAdjustment{{ProductID: pen.ID, Delta: -10}},
		Reason:      "order",
		OrderRef:    "ord_int_2",
		Now:         now.Add(2 * time.Minute),
	})
	if err != nil {
		t.Fatalf("adjust to zero: %v", err)
	}
	if item = result.Items[pen.ID]; item.Quantity != 0 || item.Status != domain.StockStatusOutOfStock {
		t.Fatalf("expected quantity 0 out_of_stock, got %d %s", item.Quantity, item.Status)
	}

	// Oversell is rejected and identifies the offending product.
	_, err = repo.AdjustQuantities(ctx, repositories.InventoryAdjustRequest{
		Adjustments: []repositories.InventoryAdjustment{{ProductID: pen.ID, Delta: -1}},
		Now:         now.Add(3 * time.Minute),
	})
	var invErr *repositories.InventoryError
	if !errors.As(err, &invErr) || invErr.Code != repositories.InventoryErrorInsufficientStock {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}
	if invErr.ProductID != pen.ID {
		t.Fatalf("expected product id %s in error, got %s", pen.ID, invErr.ProductID)
	}

	_, err = repo.AdjustQuantities(ctx, repositories.InventoryAdjustRequest{
		Adjustments: []repositories.InventoryAdjustment{{ProductID: "inv_missing", Delta: -1}},
		Now:         now.Add(3 * time.Minute),
	})
	invErr = nil
	if !errors.As(err, &invErr) || invErr.Code != repositories.InventoryErrorProductNotFound {
		t.Fatalf("expected product not found error, got %v", err)
	}

	// A batch where the second line fails must leave the first untouched.
	notebook := pen
	notebook.ID = "inv_notebook"
	notebook.Name = "Spiral Notebook"
	notebook.Quantity = 4
	if err := repo.Insert(ctx, notebook); err != nil {
		t.Fatalf("seed second item: %v", err)
	}
	_, err = repo.AdjustQuantities(ctx, repositories.InventoryAdjustRequest{
		Adjustments: []repositories.InventoryAdjustment{
			{ProductID: notebook.ID, Delta: -1},
			{ProductID: pen.ID, Delta: -1},
		},
		Now: now.Add(4 * time.Minute),
	})
	if err == nil {
		t.Fatalf("expected mixed batch to fail on the depleted item")
	}
	after, err := repo.FindByID(ctx, notebook.ID)
	if err != nil {
		t.Fatalf("find after failed batch: %v", err)
	}
	if after.Quantity != 4 {
		t.Fatalf("expected failed batch to leave quantity 4, got %d", after.Quantity)
	}
}

func TestInventoryRepositoryIntegrationSingleUnitContention(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}

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
		ProjectID:    "inventory-contention-test",
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

	now := time.Now().UTC().Truncate(time.Second)
	if err := repo.Insert(ctx, domain.InventoryItem{
		ID:        "inv_lamp",
		Name:      "Desk Lamp",
		Quantity:  1,
		UnitPrice: 2500,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("seed item: %v", err)
	}

	// Two buyers race for the last unit. Exactly one transaction may win.
	const buyers = 2
	results := make([]error, buyers)
	var wg sync.WaitGroup
	wg.Add(buyers)
	for i := 0; i < buyers; i++ {
		go func(idx int) {
			defer wg.Done()
			_, results[idx] = repo.AdjustQuantities(ctx, repositories.InventoryAdjustRequest{
				Adjustments: []repositories.InventoryAdjustment{{ProductID: "inv_lamp", Delta: -1}},
				Reason:      "order",
				OrderRef:    fmt.Sprintf("ord_race_%d", idx),
				Now:         now,
			})
		}(i)
	}
	wg.Wait()

	var wins, rejections int
	for idx, adjustErr := range results {
		if adjustErr == nil {
			wins++
			continue
		}
		var invErr *repositories.InventoryError
		if !errors.As(adjustErr, &invErr) || invErr.Code != repositories.InventoryErrorInsufficientStock {
			t.Fatalf("buyer %d: expected insufficient stock, got %v", idx, adjustErr)
		}
		rejections++
	}
	if wins != 1 || rejections != 1 {
		t.Fatalf("expected exactly one winner for the last unit, got %d wins and %d rejections", wins, rejections)
	}

	final, err := repo.FindByID(ctx, "inv_lamp")
	if err != nil {
		t.Fatalf("find after race: %v", err)
	}
	if final.Quantity != 0 || final.Status != domain.StockStatusOutOfStock {
		t.Fatalf("expected quantity 0 out_of_stock after race, got %d %s", final.Quantity, final.Status)
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
		firestoreEmulatorImage,
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
		t.Fatalf("docker daemon not available: %v", err)
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
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s did not become ready within %s", endpoint, timeout)
}

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

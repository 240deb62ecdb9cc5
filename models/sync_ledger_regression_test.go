package models_test

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/mmdatafocus/hotel_backend/config"
	"github.com/mmdatafocus/hotel_backend/models"
	"gorm.io/gorm"
)

// integrationDB starts a throwaway MySQL container, connects the global DB
// handle against it and runs migrations. Tests that need a real database call
// this first; without INTEGRATION_TESTS=1 they skip.
func integrationDB(t *testing.T) *gorm.DB {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "hotel_test")

	config.ConnectDatabaseWithRetry()
	models.MigrateTable()
	return config.GetDB()
}

// A webhook redelivered with the same idempotency key must land on the row
// the first delivery created, not a second row.
func TestRecordEvent_RedeliveryReturnsExistingRow(t *testing.T) {
	db := integrationDB(t)

	input := models.NewChannelEvent{
		PropertyId:       "prop-1",
		Direction:        models.EventDirectionInbound,
		Source:           "cultbooking",
		EventType:        "booking.created",
		EntityType:       "reservation",
		EntityExternalId: "BK-900",
		IdempotencyKey:   "cultbooking-evt-900",
		Payload:          []byte(`{"booking":{"id":"BK-900"}}`),
	}
	first, created, err := models.RecordEvent(db, input)
	if err != nil {
		t.Fatalf("RecordEvent(first): %v", err)
	}
	if !created {
		t.Fatal("first delivery must create the row")
	}

	second, created, err := models.RecordEvent(db, input)
	if err != nil {
		t.Fatalf("RecordEvent(second): %v", err)
	}
	if created {
		t.Fatal("redelivery must not create a second row")
	}
	if second.ID != first.ID {
		t.Fatalf("redelivery resolved to row %d, expected %d", second.ID, first.ID)
	}

	var count int64
	if err := db.Model(&models.ChannelEvent{}).
		Where("idempotency_key = ?", input.IdempotencyKey).
		Count(&count).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one ledger row, got %d", count)
	}
}

// The attempt counter is guarded in SQL, so the retry bound holds no matter
// how many deliveries race on the row. Once spent, the row fails into the
// operator DLQ view.
func TestIncrementAttempts_StopsAtMaxAndSurfacesInFailedList(t *testing.T) {
	db := integrationDB(t)

	event, _, err := models.RecordEvent(db, models.NewChannelEvent{
		PropertyId:     "prop-1",
		Direction:      models.EventDirectionInbound,
		Source:         "cultbooking",
		EventType:      "booking.created",
		EntityType:     "reservation",
		IdempotencyKey: "cultbooking-evt-retry",
		MaxAttempts:    3,
	})
	if err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}

	for i := 1; i <= 3; i++ {
		n, err := event.IncrementAttempts(db)
		if err != nil {
			t.Fatalf("IncrementAttempts #%d: %v", i, err)
		}
		if n != i {
			t.Fatalf("attempt #%d counted as %d", i, n)
		}
	}
	if _, err := event.IncrementAttempts(db); !errors.Is(err, models.ErrEventTerminal) {
		t.Fatalf("fourth attempt must hit the bound, got %v", err)
	}

	if err := event.MarkFailed(db, errors.New("upstream rejected")); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	failed, err := models.ListFailedEvents(db, "prop-1", "cultbooking", 10)
	if err != nil {
		t.Fatalf("ListFailedEvents: %v", err)
	}
	found := false
	for _, f := range failed {
		if f.ID == event.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("exhausted event %d missing from failed list", event.ID)
	}
}

// Only one run per (property, channel, sync type) may hold the lock; a
// completed run frees it for the next tick.
func TestAcquireSyncLock_OneRunnerPerIntegration(t *testing.T) {
	db := integrationDB(t)

	state, acquired, err := models.AcquireSyncLock(db, "prop-1", "cultbooking",
		models.SyncTypePullReservations, models.SyncTriggeredSystem, 0)
	if err != nil {
		t.Fatalf("AcquireSyncLock(first): %v", err)
	}
	if !acquired {
		t.Fatal("first acquire must win")
	}

	_, acquired, err = models.AcquireSyncLock(db, "prop-1", "cultbooking",
		models.SyncTypePullReservations, models.SyncTriggeredSystem, 0)
	if err != nil {
		t.Fatalf("AcquireSyncLock(contended): %v", err)
	}
	if acquired {
		t.Fatal("second acquire must lose while the first run is in flight")
	}

	// A different sync type is a different lock.
	_, acquired, err = models.AcquireSyncLock(db, "prop-1", "cultbooking",
		models.SyncTypeReconciliation, models.SyncTriggeredSystem, 0)
	if err != nil {
		t.Fatalf("AcquireSyncLock(other type): %v", err)
	}
	if !acquired {
		t.Fatal("reconciliation lock must be independent of the pull lock")
	}

	if err := state.Complete(db, models.SyncCounters{Pulled: 5, Upserted: 2}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	_, acquired, err = models.AcquireSyncLock(db, "prop-1", "cultbooking",
		models.SyncTypePullReservations, models.SyncTriggeredSystem, 0)
	if err != nil {
		t.Fatalf("AcquireSyncLock(after complete): %v", err)
	}
	if !acquired {
		t.Fatal("lock must be free after the run completes")
	}
}

// A run that dies without releasing its lock is force-failed once it is older
// than the timeout, and the lock becomes acquirable again.
func TestReclaimStaleSyncLocks_FreesCrashedRun(t *testing.T) {
	db := integrationDB(t)

	state, acquired, err := models.AcquireSyncLock(db, "prop-1", "cultbooking",
		models.SyncTypePullReservations, models.SyncTriggeredSystem, 0)
	if err != nil || !acquired {
		t.Fatalf("AcquireSyncLock: acquired=%v err=%v", acquired, err)
	}

	stale := time.Now().UTC().Add(-time.Hour)
	if err := db.Model(&models.SyncState{}).
		Where("id = ?", state.ID).
		Update("started_at", stale).Error; err != nil {
		t.Fatalf("backdate run: %v", err)
	}

	reclaimed, err := models.ReclaimStaleSyncLocks(db, 10*time.Minute)
	if err != nil {
		t.Fatalf("ReclaimStaleSyncLocks: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("expected 1 reclaimed run, got %d", reclaimed)
	}

	var row models.SyncState
	if err := db.Where("id = ?", state.ID).Take(&row).Error; err != nil {
		t.Fatalf("reload run: %v", err)
	}
	if row.Status != models.SyncStatusFailed {
		t.Fatalf("reclaimed run status = %s, expected failed", row.Status)
	}

	_, acquired, err = models.AcquireSyncLock(db, "prop-1", "cultbooking",
		models.SyncTypePullReservations, models.SyncTriggeredSystem, 0)
	if err != nil {
		t.Fatalf("AcquireSyncLock(after reclaim): %v", err)
	}
	if !acquired {
		t.Fatal("lock must be acquirable after a stale run is reclaimed")
	}
}

// At most one active mapping per internal id; deactivating the broken link
// makes room for a new one while the old row stays for audit.
func TestCreateMapping_UniqueWhileActive(t *testing.T) {
	db := integrationDB(t)

	first, err := models.CreateMapping(db, "prop-1", "cultbooking", models.MappingTypeRoomType, "12", "RT-200")
	if err != nil {
		t.Fatalf("CreateMapping(first): %v", err)
	}

	if _, err := models.CreateMapping(db, "prop-1", "cultbooking", models.MappingTypeRoomType, "12", "RT-201"); !errors.Is(err, models.ErrMappingConflict) {
		t.Fatalf("remap over an active mapping must conflict, got %v", err)
	}

	if err := first.DeactivateMapping(db); err != nil {
		t.Fatalf("DeactivateMapping: %v", err)
	}
	second, err := models.CreateMapping(db, "prop-1", "cultbooking", models.MappingTypeRoomType, "12", "RT-201")
	if err != nil {
		t.Fatalf("CreateMapping(after deactivate): %v", err)
	}

	resolved, err := models.FindMappingByInternalId(db, "prop-1", "cultbooking", models.MappingTypeRoomType, "12")
	if err != nil {
		t.Fatalf("FindMappingByInternalId: %v", err)
	}
	if resolved == nil || resolved.ID != second.ID {
		t.Fatalf("active lookup resolved to %+v, expected row %d", resolved, second.ID)
	}

	var history int64
	if err := db.Model(&models.EntityMapping{}).
		Where("property_id = ? AND internal_id = ?", "prop-1", "12").
		Count(&history).Error; err != nil {
		t.Fatalf("count history: %v", err)
	}
	if history != 2 {
		t.Fatalf("expected both mapping rows kept, got %d", history)
	}
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("hotel-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=hotel_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}

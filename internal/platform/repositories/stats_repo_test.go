package repositories

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"authhooks/internal/platform/models"
)

func TestStatsRepoZeroValueForMissingRow(t *testing.T) {
	repo := NewStatsRepository(setupTestDB(t))

	stats, err := repo.Get("wh_unseen")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stats.Total != 0 || stats.SuccessRate != 0 {
		t.Errorf("missing row should yield zero stats, got %+v", stats)
	}
	if stats.ByDay == nil || stats.ByEvent == nil {
		t.Error("maps not initialized for zero stats")
	}
	if stats.LastDeliveryAt != nil {
		t.Error("LastDeliveryAt set for zero stats")
	}
}

func TestStatsRepoUpsertRoundTrip(t *testing.T) {
	repo := NewStatsRepository(setupTestDB(t))

	at := int64(1700000000)
	s := &models.WebhookStats{
		WebhookID:      "wh_1",
		Total:          10,
		Successful:     8,
		Failed:         2,
		AvgResponseMs:  123.5,
		LastDeliveryAt: &at,
		ByDay:          map[string]int64{"2023-11-14": 10},
		ByEvent:        map[string]int64{"user.login": 10},
		Recent:         []models.RecentDelivery{{ID: "whd_1", Event: "user.login", Success: true, At: at}},
		UpdatedAt:      at,
	}
	if err := repo.Upsert(s); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	fetched, err := repo.Get("wh_1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.Total != 10 || fetched.Successful != 8 {
		t.Errorf("counters lost: %+v", fetched)
	}
	// Derived on read.
	if fetched.SuccessRate != 0.8 {
		t.Errorf("SuccessRate = %f, want 0.8", fetched.SuccessRate)
	}
	if fetched.ByDay["2023-11-14"] != 10 || fetched.ByEvent["user.login"] != 10 {
		t.Errorf("buckets lost: %v / %v", fetched.ByDay, fetched.ByEvent)
	}
	if len(fetched.Recent) != 1 || fetched.Recent[0].ID != "whd_1" {
		t.Errorf("recent window lost: %v", fetched.Recent)
	}

	// Second upsert replaces, not duplicates.
	s.Total = 11
	if err := repo.Upsert(s); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}
	fetched, _ = repo.Get("wh_1")
	if fetched.Total != 11 {
		t.Errorf("Total = %d after second upsert, want 11", fetched.Total)
	}
}

func TestStatsRepoGetQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT webhook_id").WillReturnError(errors.New("disk I/O error"))

	repo := NewStatsRepository(db)
	if _, err := repo.Get("wh_1"); err == nil {
		t.Error("query error swallowed")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStatsRepoUpsertExecError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO webhook_stats").WillReturnError(errors.New("database is locked"))

	repo := NewStatsRepository(db)
	s := &models.WebhookStats{WebhookID: "wh_1", ByDay: map[string]int64{}, ByEvent: map[string]int64{}}
	if err := repo.Upsert(s); err == nil {
		t.Error("exec error swallowed")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

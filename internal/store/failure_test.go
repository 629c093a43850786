package store

import (
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/Shivay00001/aria-runtime/pkg/models"
)

// These tests inject a failing database handle to exercise the
// AuditWriteFailure path without touching the filesystem.

func newFailingStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

func TestWriteEventFailureIsAuditWriteFailure(t *testing.T) {
	s, mock := newFailingStore(t)
	mock.ExpectExec("INSERT INTO audit_events").WillReturnError(errors.New("disk full"))

	e := models.NewAuditEvent("s1", "", "session_start", models.LevelInfo, map[string]any{})
	err := s.WriteEvent(&e)
	var awf *models.AuditWriteFailureError
	if !errors.As(err, &awf) {
		t.Fatalf("want AuditWriteFailureError, got %v", err)
	}
	if awf.Op != "write_event" {
		t.Fatalf("op = %s", awf.Op)
	}
}

func TestCreateSessionFailureIsAuditWriteFailure(t *testing.T) {
	s, mock := newFailingStore(t)
	mock.ExpectExec("INSERT INTO sessions").WillReturnError(errors.New("database is locked"))

	err := s.CreateSession("s1", "task text", models.KernelConfig{})
	var awf *models.AuditWriteFailureError
	if !errors.As(err, &awf) {
		t.Fatalf("want AuditWriteFailureError, got %v", err)
	}
}

func TestWriteStepStartFailureIsAuditWriteFailure(t *testing.T) {
	s, mock := newFailingStore(t)
	mock.ExpectExec("INSERT INTO steps").WillReturnError(errors.New("io error"))

	st := models.NewStepTrace("s1", 1, models.StepModelCall)
	err := s.WriteStepStart(st)
	var awf *models.AuditWriteFailureError
	if !errors.As(err, &awf) {
		t.Fatalf("want AuditWriteFailureError, got %v", err)
	}
}

func TestReadFailureIsMemoryCorruption(t *testing.T) {
	s, mock := newFailingStore(t)
	mock.ExpectQuery("SELECT value_json FROM kv_memory").WillReturnError(errors.New("corrupt page"))

	_, err := s.GetKV("k", "default")
	var mc *models.MemoryCorruptionError
	if !errors.As(err, &mc) {
		t.Fatalf("want MemoryCorruptionError, got %v", err)
	}
}

func TestVerifyChainFalseOnStoreError(t *testing.T) {
	s, mock := newFailingStore(t)
	mock.ExpectQuery("SELECT payload_json, chain_hash FROM audit_events").WillReturnError(errors.New("corrupt"))

	if s.VerifyChain("s1") {
		t.Fatal("store errors must yield false, not true")
	}
}

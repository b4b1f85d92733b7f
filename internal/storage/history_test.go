package storage

import (
	"testing"
)

func TestAppendAndGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	uid := NewSessionUID()

	if err := Append(dir, uid, Record{Route: "ambient", Response: "clear"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := Append(dir, uid, Record{Route: "query", Response: "a mug", Triggers: []string{"bottle"}}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	records, err := Get(dir, uid)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Response != "clear" || records[1].Route != "query" {
		t.Fatalf("records=%+v, want append order preserved", records)
	}
	if records[0].Timestamp == "" {
		t.Fatal("timestamp empty, want auto-filled")
	}
}

func TestListSummarizesSessions(t *testing.T) {
	dir := t.TempDir()
	uid := NewSessionUID()
	if err := Append(dir, uid, Record{Route: "ambient", Response: "clear"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	list := List(dir)
	if len(list) != 1 {
		t.Fatalf("got %d sessions, want 1", len(list))
	}
	if list[0].UID != uid || list[0].Records != 1 {
		t.Fatalf("list=%+v, want the stored session", list)
	}
	if list[0].LatestRecord.Response != "clear" {
		t.Fatalf("latest=%+v, want last record", list[0].LatestRecord)
	}
}

func TestListMissingDirIsEmpty(t *testing.T) {
	if list := List(t.TempDir() + "/nope"); len(list) != 0 {
		t.Fatalf("list=%v, want empty", list)
	}
}

func TestDelete(t *testing.T) {
	dir := t.TempDir()
	uid := NewSessionUID()
	if err := Append(dir, uid, Record{Response: "clear"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if !Delete(dir, uid) {
		t.Fatal("Delete=false, want true")
	}
	if Delete(dir, uid) {
		t.Fatal("second Delete=true, want false")
	}
}

func TestInvalidSessionUIDRejected(t *testing.T) {
	if err := Append(t.TempDir(), "../escape", Record{}); err == nil {
		t.Fatal("Append error=nil, want rejection of unsafe uid")
	}
	if _, err := Get(t.TempDir(), "a/b"); err == nil {
		t.Fatal("Get error=nil, want rejection of unsafe uid")
	}
}

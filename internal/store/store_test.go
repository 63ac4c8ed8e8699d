package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, so a second run must be a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2 (init + diagnostics)", result.Version)
	}
}

func TestMigrateFreshAndDirty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "fresh.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()
	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if !result.Changed || result.From != 0 || result.Version != 2 {
		t.Errorf("fresh migrate = %+v, want 0 -> 2 changed", result)
	}

	if _, err := db.Exec(`UPDATE schema_migrations SET dirty = 1`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); !errors.Is(err, ErrDirtySchema) {
		t.Fatalf("Migrate on dirty schema = %v, want ErrDirtySchema", err)
	}
}

func TestReplaceKeywordRepliesKeepsOrder(t *testing.T) {
	db := testDB(t)
	if err := db.AddKeywordReply(&KeywordReply{Keyword: "old", Response: "gone"}); err != nil {
		t.Fatal(err)
	}
	err := db.ReplaceKeywordReplies([]KeywordReply{
		{Keyword: "harga", Response: "Rp 10.000"},
		{Keyword: "alamat", Response: "Jl. Merdeka 1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	rules, err := db.ListKeywordReplies()
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 2 || rules[0].Keyword != "harga" || rules[1].Keyword != "alamat" {
		t.Fatalf("rules = %+v", rules)
	}
}

func TestMessageRoundTripPreservesFields(t *testing.T) {
	db := testDB(t)

	in := &Message{ConnectionID: "acme", Direction: Incoming, Counterparty: "6281111", DisplayName: "Budi", Body: "halo  kak\n", Timestamp: 1700000000123}
	out := &Message{ConnectionID: "acme", Direction: Outgoing, Counterparty: "6281111", Body: "hai", AttachmentName: "invoice.pdf", MessageType: "document", Timestamp: 1700000000456}
	for _, m := range []*Message{in, out} {
		if err := db.InsertMessage(m); err != nil {
			t.Fatal(err)
		}
		if m.ID == 0 {
			t.Error("InsertMessage did not set ID")
		}
	}

	incoming, err := db.ListMessages("acme", MessageFilter{Direction: Incoming})
	if err != nil {
		t.Fatal(err)
	}
	if len(incoming) != 1 {
		t.Fatalf("incoming = %d, want 1", len(incoming))
	}
	got := incoming[0]
	if got.Body != in.Body || got.Timestamp != in.Timestamp || got.Direction != Incoming || got.DisplayName != "Budi" {
		t.Errorf("incoming = %+v, want %+v", got, *in)
	}

	outgoing, err := db.ListMessages("acme", MessageFilter{Direction: Outgoing})
	if err != nil {
		t.Fatal(err)
	}
	if len(outgoing) != 1 {
		t.Fatalf("outgoing = %d, want 1", len(outgoing))
	}
	if outgoing[0].Body != "hai" || outgoing[0].Timestamp != out.Timestamp || outgoing[0].AttachmentName != "invoice.pdf" {
		t.Errorf("outgoing = %+v", outgoing[0])
	}
}

func TestListMessagesScopedAndOrdered(t *testing.T) {
	db := testDB(t)

	for i, conn := range []string{"a", "a", "b"} {
		m := &Message{ConnectionID: conn, Direction: Incoming, Counterparty: "1", Body: "m", Timestamp: int64(1000 + i)}
		if err := db.InsertMessage(m); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := db.ListMessages("a", MessageFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Timestamp < msgs[1].Timestamp {
		t.Error("messages should be newest first")
	}

	counts, err := db.CountMessages("a")
	if err != nil {
		t.Fatal(err)
	}
	if counts[Incoming] != 2 || counts[Outgoing] != 0 {
		t.Errorf("counts = %v", counts)
	}
}

func TestListMessagesClockSkewAndCursor(t *testing.T) {
	db := testDB(t)

	// Server-stamped messages may run ahead of the local clock.
	ahead := time.Now().Add(3 * time.Second).UnixMilli()
	for _, ts := range []int64{1000, ahead} {
		if err := db.InsertMessage(&Message{ConnectionID: "a", Direction: Outgoing, Counterparty: "1", Body: "m", Timestamp: ts}); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := db.ListMessages("a", MessageFilter{Direction: Outgoing})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].Timestamp != ahead {
		t.Fatalf("ListMessages() = %+v, want both messages, newest first", msgs)
	}

	msgs, err = db.ListMessages("a", MessageFilter{BeforeTs: ahead})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Timestamp != 1000 {
		t.Errorf("ListMessages(before) = %+v, want only the older message", msgs)
	}
}

func TestListMessagesQuery(t *testing.T) {
	db := testDB(t)

	for _, body := range []string{"Cek Tagihan", "halo"} {
		if err := db.InsertMessage(&Message{ConnectionID: "a", Direction: Incoming, Counterparty: "1", Body: body}); err != nil {
			t.Fatal(err)
		}
	}
	msgs, err := db.ListMessages("a", MessageFilter{Query: "tagihan"})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Body != "Cek Tagihan" {
		t.Errorf("query result = %+v", msgs)
	}
}

func TestTaskLifecycle(t *testing.T) {
	db := testDB(t)

	fireAt := time.Date(2024, 5, 9, 9, 0, 0, 0, time.UTC)
	task := &Task{ID: "t1", ConnectionID: "acme", Recipient: "6281111", Body: "reminder", FireAt: fireAt, Recurring: true}
	if err := db.InsertTask(task); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetTask("t1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || !got.FireAt.Equal(fireAt) || !got.Recurring || got.Recipient != "6281111" {
		t.Errorf("GetTask = %+v", got)
	}

	tasks, err := db.ListTasks()
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(tasks))
	}

	next := time.Date(2024, 6, 9, 9, 0, 0, 0, time.UTC)
	if ok, err := db.RescheduleTask("t1", next); err != nil || !ok {
		t.Fatalf("RescheduleTask = %v, %v", ok, err)
	}
	if got, _ := db.GetTask("t1"); got == nil || !got.FireAt.Equal(next) {
		t.Errorf("after reschedule GetTask = %+v", got)
	}
	if ok, _ := db.RescheduleTask("missing", next); ok {
		t.Error("RescheduleTask on missing id should report false")
	}

	deleted, err := db.DeleteTask("t1")
	if err != nil || !deleted {
		t.Fatalf("DeleteTask = %v, %v", deleted, err)
	}
	deleted, err = db.DeleteTask("t1")
	if err != nil || deleted {
		t.Errorf("second DeleteTask = %v, %v, want false, nil", deleted, err)
	}
	if got, _ := db.GetTask("t1"); got != nil {
		t.Error("task should be gone")
	}
}

func TestKeywordRepliesKeepOrder(t *testing.T) {
	db := testDB(t)

	for _, kw := range []string{"harga", "alamat", "promo"} {
		if err := db.AddKeywordReply(&KeywordReply{Keyword: kw, Response: kw + "!"}); err != nil {
			t.Fatal(err)
		}
	}
	rules, err := db.ListKeywordReplies()
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 3 || rules[0].Keyword != "harga" || rules[2].Keyword != "promo" {
		t.Fatalf("rules = %+v", rules)
	}

	if err := db.ReplaceKeywordReplies([]KeywordReply{{Keyword: "z", Response: "1"}, {Keyword: "a", Response: "2"}}); err != nil {
		t.Fatal(err)
	}
	rules, _ = db.ListKeywordReplies()
	if len(rules) != 2 || rules[0].Keyword != "z" {
		t.Errorf("replaced rules = %+v", rules)
	}

	ok, err := db.DeleteKeywordReply(rules[0].ID)
	if err != nil || !ok {
		t.Fatalf("DeleteKeywordReply = %v, %v", ok, err)
	}
}

func TestWebhookSettings(t *testing.T) {
	db := testDB(t)

	ws, err := db.WebhookSettings()
	if err != nil {
		t.Fatal(err)
	}
	if ws.URL != "" {
		t.Errorf("fresh URL = %q, want empty", ws.URL)
	}

	if err := db.SeedWebhookSettings(WebhookSettings{URL: "http://seed", Secret: "s"}); err != nil {
		t.Fatal(err)
	}
	if err := db.SetWebhookSettings(WebhookSettings{URL: "http://api", Secret: "k"}); err != nil {
		t.Fatal(err)
	}
	// Seeding again must not override the API value.
	if err := db.SeedWebhookSettings(WebhookSettings{URL: "http://seed", Secret: "s"}); err != nil {
		t.Fatal(err)
	}
	ws, _ = db.WebhookSettings()
	if ws.URL != "http://api" || ws.Secret != "k" {
		t.Errorf("webhook = %+v", ws)
	}
}

func TestBroadcastJobUpsert(t *testing.T) {
	db := testDB(t)

	start := time.UnixMilli(1700000000000)
	job := &BroadcastJob{ID: "j1", ConnectionID: "acme", Status: "running", Mode: "fixed", Total: 3, StartTime: start}
	if err := db.UpsertBroadcastJob(job); err != nil {
		t.Fatal(err)
	}
	end := start.Add(time.Minute)
	job.Sent, job.Failed, job.Status, job.EndTime = 2, 1, "completed", &end
	if err := db.UpsertBroadcastJob(job); err != nil {
		t.Fatal(err)
	}

	jobs, err := db.ListBroadcastJobs(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(jobs))
	}
	got := jobs[0]
	if got.Status != "completed" || got.Sent != 2 || got.Failed != 1 || got.EndTime == nil || !got.EndTime.Equal(end) {
		t.Errorf("job = %+v", got)
	}

	one, err := db.GetBroadcastJob("j1")
	if err != nil || one == nil || one.Sent != 2 || one.Status != "completed" {
		t.Errorf("GetBroadcastJob(j1) = %+v, %v", one, err)
	}
	if missing, err := db.GetBroadcastJob("nope"); err != nil || missing != nil {
		t.Errorf("GetBroadcastJob(nope) = %+v, %v; want nil, nil", missing, err)
	}
}

func TestConnectionEvents(t *testing.T) {
	db := testDB(t)

	_ = db.RecordConnectionEvent("acme", "closed", "stream error")
	_ = db.RecordConnectionEvent("acme", "connected", "")
	_ = db.RecordConnectionEvent("other", "closed", "")

	evts, err := db.ListConnectionEvents("acme", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 2 || evts[0].Kind != "connected" {
		t.Errorf("events = %+v", evts)
	}
}

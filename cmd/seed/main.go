package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/tsubaki-chat/backend/internal/config"
	"github.com/tsubaki-chat/backend/internal/db"
)

type seedEvent struct {
	Kind         string
	SourceID     string
	ActorUID     string
	RecipientUID string
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
}

func run() (err error) {
	ctx := context.Background()
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	gdb, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return fmt.Errorf("sql db: %w", err)
	}

	canSeed, err := shouldSeed(ctx, sqlDB)
	if err != nil {
		return err
	}
	if !canSeed {
		log.Printf("notification events already exist; skipping seed (set FORCE_SEED=true to override)")
		return nil
	}

	tx, err := sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	demoUID := envOr("SEED_USER_UID", "demo-user")
	actorUID := envOr("SEED_ACTOR_UID", "demo-friend")

	if err = seedPreference(ctx, tx, demoUID); err != nil {
		return err
	}
	if err = seedSubscription(ctx, tx, demoUID); err != nil {
		return err
	}

	events := []seedEvent{
		{Kind: "friend_request_received", SourceID: "seed-fr-1", ActorUID: actorUID, RecipientUID: demoUID},
		{Kind: "dm_message", SourceID: "seed-dm-1", ActorUID: actorUID, RecipientUID: demoUID},
		{Kind: "channel_mention", SourceID: "seed-mention-1", ActorUID: actorUID, RecipientUID: demoUID},
	}
	for _, ev := range events {
		if err = seedNotification(ctx, tx, ev); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	log.Printf("seeded %d notification events for %s", len(events), demoUID)
	return nil
}

func seedPreference(ctx context.Context, tx *sql.Tx, uid string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO notification_preferences (user_uid, in_app_enabled, sound_enabled)
		 VALUES (?, TRUE, TRUE)
		 ON DUPLICATE KEY UPDATE in_app_enabled = VALUES(in_app_enabled), sound_enabled = VALUES(sound_enabled)`,
		uid,
	)
	if err != nil {
		return fmt.Errorf("insert preference for %q: %w", uid, err)
	}
	return nil
}

func seedSubscription(ctx context.Context, tx *sql.Tx, uid string) error {
	// A placeholder endpoint; real sends against it dead-letter, which is
	// useful for exercising the health monitor locally.
	endpoint := fmt.Sprintf("https://fcm.googleapis.com/fcm/send/seed-%s", uid)
	_, err := tx.ExecContext(ctx,
		`INSERT IGNORE INTO push_subscriptions (user_uid, installation_id, endpoint, p256dh_key, auth_key)
		 VALUES (?, ?, ?, ?, ?)`,
		uid, "seed-installation", endpoint, "seed-p256dh", "seed-auth",
	)
	if err != nil {
		return fmt.Errorf("insert subscription for %q: %w", uid, err)
	}
	return nil
}

func seedNotification(ctx context.Context, tx *sql.Tx, ev seedEvent) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO notification_events (kind, source_id, actor_user_uid) VALUES (?, ?, ?)`,
		ev.Kind, ev.SourceID, ev.ActorUID,
	)
	if err != nil {
		return fmt.Errorf("insert event %q: %w", ev.SourceID, err)
	}
	eventID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("event last insert id: %w", err)
	}

	res, err = tx.ExecContext(ctx,
		`INSERT INTO notification_recipients (event_id, recipient_uid, deliver_in_app, deliver_sound)
		 VALUES (?, ?, TRUE, TRUE)`,
		eventID, ev.RecipientUID,
	)
	if err != nil {
		return fmt.Errorf("insert recipient for event %d: %w", eventID, err)
	}
	recipientID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("recipient last insert id: %w", err)
	}

	endpoint := fmt.Sprintf("https://fcm.googleapis.com/fcm/send/seed-%s", ev.RecipientUID)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO dispatch_jobs (event_id, recipient_id, subscription_endpoint, status, attempts, due_at)
		 VALUES (?, ?, ?, 'pending', 0, NOW())`,
		eventID, recipientID, endpoint,
	)
	if err != nil {
		return fmt.Errorf("insert job for recipient %d: %w", recipientID, err)
	}
	return nil
}

func shouldSeed(ctx context.Context, db *sql.DB) (bool, error) {
	var cnt int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notification_events`).Scan(&cnt); err != nil {
		return false, fmt.Errorf("count events: %w", err)
	}
	if cnt == 0 {
		return true, nil
	}
	return strings.EqualFold(os.Getenv("FORCE_SEED"), "true"), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

package main

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"aegis/internal/audit/integrity"
	auditService "aegis/internal/audit/service"
	auditStore "aegis/internal/audit/store"
	incidentService "aegis/internal/incident/service"
	incidentStore "aegis/internal/incident/store"
	ledgerService "aegis/internal/ledger/service"
	ledgerStore "aegis/internal/ledger/store"
	mfaService "aegis/internal/mfa/service"
	mfaStore "aegis/internal/mfa/store"
	"aegis/internal/passkey/ceremony"
	passkeyService "aegis/internal/passkey/service"
	credentialStore "aegis/internal/passkey/store/credential"
	pairingStore "aegis/internal/passkey/store/pairing"
	"aegis/internal/platform/config"
	"aegis/internal/ratelimit/ports"
	lockoutService "aegis/internal/ratelimit/service/authlockout"
	lockoutStore "aegis/internal/ratelimit/store/authlockout"
	bucketStore "aegis/internal/ratelimit/store/bucket"
	subjectStore "aegis/internal/subject/store"
	"aegis/internal/suspicious/history"
	suspiciousService "aegis/internal/suspicious/service"
	verificationService "aegis/internal/verification/service"
	verificationStore "aegis/internal/verification/store"
)

type auditRecords interface {
	auditService.Store
	integrity.RecordStore
}

// stores is the persistence set chosen at startup. Durable records go to
// Postgres and short-lived state to Redis. Either falls back to memory.
type stores struct {
	ledger       ledgerService.Store
	incidents    incidentService.Store
	audit        auditRecords
	subjects     verificationService.SubjectDirectory
	mfa          mfaService.Store
	credentials  ceremony.CredentialStore
	lockouts     lockoutService.Store
	buckets      ports.BucketStore
	pairings     passkeyService.PairingStore
	verification verificationService.Store
	history      suspiciousService.HistoryStore
}

func newStores(ctx context.Context, db *sql.DB, rdb *redis.Client, subjects config.SubjectsConfig, log *slog.Logger) (*stores, error) {
	s := &stores{}
	if db != nil {
		s.ledger = ledgerStore.NewPostgresStore(db)
		s.incidents = incidentStore.NewPostgresStore(db)
		s.audit = auditStore.NewPostgresStore(db)
		s.subjects = subjectStore.NewPostgresStore(db)
		s.mfa = mfaStore.NewPostgresStore(db)
		s.credentials = credentialStore.NewPostgresStore(db)
		s.lockouts = lockoutStore.NewPostgres(db)
		if subjects.File != "" {
			log.Warn("SUBJECTS_FILE ignored, subjects are read from postgres", "file", subjects.File)
		}
	} else {
		s.ledger = ledgerStore.NewInMemoryStore()
		s.incidents = incidentStore.NewInMemoryStore()
		s.audit = auditStore.NewInMemoryStore()
		mem := subjectStore.NewInMemoryStore()
		if subjects.File != "" {
			n, err := mem.LoadFile(ctx, subjects.File)
			if err != nil {
				return nil, err
			}
			log.Info("subjects seeded", "file", subjects.File, "count", n)
		}
		s.subjects = mem
		s.mfa = mfaStore.NewInMemoryStore()
		s.credentials = credentialStore.NewInMemoryStore()
		s.lockouts = lockoutStore.New()
	}

	if rdb != nil {
		s.buckets = bucketStore.NewRedisBucketStore(rdb)
		s.pairings = pairingStore.NewRedisStore(rdb)
		s.verification = verificationStore.NewRedisStore(rdb)
		s.history = history.NewRedisStore(rdb)
	} else {
		s.buckets = bucketStore.NewInMemoryBucketStore()
		s.pairings = pairingStore.NewInMemoryStore()
		s.verification = verificationStore.NewInMemoryStore()
		s.history = history.NewInMemoryStore()
	}
	return s, nil
}

func backendName(db *sql.DB, rdb *redis.Client) (string, string) {
	durable, ephemeral := "memory", "memory"
	if db != nil {
		durable = "postgres"
	}
	if rdb != nil {
		ephemeral = "redis"
	}
	return durable, ephemeral
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telhawk-systems/edi-stack/common/database"
	cerrors "github.com/telhawk-systems/edi-stack/common/errors"
	"github.com/telhawk-systems/edi-stack/edi/internal/models"
)

const component = "PostgresRepository"

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	pool, err := database.NewPool(ctx, connString, database.DefaultPoolConfig())
	if err != nil {
		return nil, err
	}
	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) Close() {
	r.pool.Close()
}

// storeError classifies infrastructure failures as transient so callers can
// retry. Cancellation passes through unchanged.
func storeError(err error, operation string) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return cerrors.WrapTransient(err, component, operation)
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

func (r *PostgresRepository) MessageIDExists(ctx context.Context, senderNumber, messageID string) (bool, error) {
	ctx, cancel := database.WithTimeout(ctx, database.OpRead)
	defer cancel()

	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM message_ids WHERE sender_number = $1 AND message_id = $2)`,
		senderNumber, messageID,
	).Scan(&exists)
	if err != nil {
		return false, storeError(err, "MessageIDExists")
	}
	return exists, nil
}

func (r *PostgresRepository) TransactionIDExists(ctx context.Context, senderNumber, transactionID string) (bool, error) {
	ctx, cancel := database.WithTimeout(ctx, database.OpRead)
	defer cancel()

	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM transaction_ids WHERE sender_number = $1 AND transaction_id = $2)`,
		senderNumber, transactionID,
	).Scan(&exists)
	if err != nil {
		return false, storeError(err, "TransactionIDExists")
	}
	return exists, nil
}

func (r *PostgresRepository) ReserveIdentifiers(ctx context.Context, senderNumber, messageID string, transactionIDs []string) error {
	ctx, cancel := database.WithTimeout(ctx, database.OpWrite)
	defer cancel()

	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO message_ids (sender_number, message_id) VALUES ($1, $2)`,
			senderNumber, messageID,
		); err != nil {
			if database.IsUniqueViolation(err) {
				return ErrDuplicateMessageID
			}
			return err
		}

		batch := &pgx.Batch{}
		for _, id := range transactionIDs {
			batch.Queue(
				`INSERT INTO transaction_ids (sender_number, transaction_id, message_id) VALUES ($1, $2, $3)`,
				senderNumber, id, messageID,
			)
		}
		results := tx.SendBatch(ctx, batch)
		for range transactionIDs {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				if database.IsUniqueViolation(err) {
					return ErrDuplicateTransactionID
				}
				return err
			}
		}
		return results.Close()
	})
	if err == nil || errors.Is(err, ErrDuplicateMessageID) || errors.Is(err, ErrDuplicateTransactionID) {
		return err
	}
	return storeError(fmt.Errorf("failed to reserve identifiers: %w", err), "ReserveIdentifiers")
}

// =============================================================================
// OUTGOING MESSAGES AND BUNDLING
// =============================================================================

const outgoingColumns = `id::text, external_id, document_type, receiver_number, receiver_role, business_reason,
	COALESCE(related_to_message_id, ''), record, created_at, assigned_bundle_id::text, dequeued_at`

func (r *PostgresRepository) AddOutgoingMessage(ctx context.Context, msg *models.OutgoingMessage) error {
	ctx, cancel := database.WithTimeout(ctx, database.OpWrite)
	defer cancel()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO outgoing_messages (id, external_id, document_type, receiver_number, receiver_role,
			business_reason, related_to_message_id, record, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)
	`,
		msg.ID.String(), msg.ExternalID, string(msg.DocumentType), msg.Receiver.Number, string(msg.Receiver.Role),
		string(msg.BusinessReason), msg.RelatedToMessageID, []byte(msg.Record), msg.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == database.UniqueViolation {
			return ErrDuplicateOutgoing
		}
		return storeError(fmt.Errorf("failed to add outgoing message: %w", err), "AddOutgoingMessage")
	}
	return nil
}

func (r *PostgresRepository) ListUnbundled(ctx context.Context, limit int) ([]*models.OutgoingMessage, error) {
	ctx, cancel := database.WithTimeout(ctx, database.OpRead)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT `+outgoingColumns+`
		FROM outgoing_messages
		WHERE assigned_bundle_id IS NULL
		ORDER BY created_at, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, storeError(fmt.Errorf("failed to list unbundled messages: %w", err), "ListUnbundled")
	}
	defer rows.Close()

	messages, err := scanOutgoing(rows)
	if err != nil {
		return nil, storeError(err, "ListUnbundled")
	}
	return messages, nil
}

func (r *PostgresRepository) AssignBundle(ctx context.Context, bundle *models.Bundle) error {
	ctx, cancel := database.WithTimeout(ctx, database.OpBulk)
	defer cancel()

	ids := make([]string, len(bundle.MessageIDs))
	for i, id := range bundle.MessageIDs {
		ids[i] = id.String()
	}

	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		// One writer per receiver at a time.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`,
			advisoryLockKey("bundle:"+bundle.Receiver.Number+":"+string(bundle.Receiver.Role)),
		); err != nil {
			return err
		}

		var lockable int
		if err := tx.QueryRow(ctx, `
			SELECT count(*) FROM (
				SELECT id FROM outgoing_messages
				WHERE id = ANY($1::text[]::uuid[]) AND assigned_bundle_id IS NULL
				FOR UPDATE SKIP LOCKED
			) candidates
		`, ids).Scan(&lockable); err != nil {
			return err
		}
		if lockable != len(ids) {
			return ErrAlreadyBundled
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO bundles (id, message_id, receiver_number, receiver_role, document_type,
				business_reason, related_to_message_id, max_size, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)
		`,
			bundle.ID.String(), bundle.MessageID, bundle.Receiver.Number, string(bundle.Receiver.Role),
			string(bundle.DocumentType), string(bundle.BusinessReason), bundle.RelatedToMessageID,
			bundle.MaxSize, bundle.CreatedAt,
		); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			UPDATE outgoing_messages m
			SET assigned_bundle_id = $1, bundle_position = p.position
			FROM unnest($2::text[]::uuid[]) WITH ORDINALITY AS p(id, position)
			WHERE m.id = p.id AND m.assigned_bundle_id IS NULL
		`, bundle.ID.String(), ids)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != int64(len(ids)) {
			return ErrAlreadyBundled
		}
		return nil
	})
	if err == nil || errors.Is(err, ErrAlreadyBundled) {
		return err
	}
	return storeError(fmt.Errorf("failed to assign bundle: %w", err), "AssignBundle")
}

// AcquireBundlingLock takes a session advisory lock on a dedicated
// connection. release unlocks and returns the connection to the pool.
func (r *PostgresRepository) AcquireBundlingLock(ctx context.Context) (func(), bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, false, storeError(fmt.Errorf("failed to acquire connection: %w", err), "AcquireBundlingLock")
	}

	key := advisoryLockKey("edi:bundler")
	var acquired bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, storeError(err, "AcquireBundlingLock")
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	release := func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, key)
		conn.Release()
	}
	return release, true, nil
}

func advisoryLockKey(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64())
}

// =============================================================================
// QUEUE
// =============================================================================

const bundleColumns = `id::text, message_id, receiver_number, receiver_role, document_type, business_reason,
	COALESCE(related_to_message_id, ''), max_size, created_at, dequeued_at`

func (r *PostgresRepository) OldestBundle(ctx context.Context, receiver models.Actor, documentTypes []models.DocumentType) (*models.Bundle, error) {
	ctx, cancel := database.WithTimeout(ctx, database.OpRead)
	defer cancel()

	types := make([]string, len(documentTypes))
	for i, dt := range documentTypes {
		types[i] = string(dt)
	}

	row := r.pool.QueryRow(ctx, `
		SELECT `+bundleColumns+`
		FROM bundles
		WHERE receiver_number = $1 AND receiver_role = $2
		  AND document_type = ANY($3::text[]) AND dequeued_at IS NULL
		ORDER BY created_at, id
		LIMIT 1
	`, receiver.Number, string(receiver.Role), types)

	bundle, err := scanBundle(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBundleNotFound
		}
		return nil, storeError(fmt.Errorf("failed to get oldest bundle: %w", err), "OldestBundle")
	}
	if err := r.loadMessageIDs(ctx, bundle); err != nil {
		return nil, err
	}
	return bundle, nil
}

func (r *PostgresRepository) GetBundle(ctx context.Context, id uuid.UUID) (*models.Bundle, error) {
	ctx, cancel := database.WithTimeout(ctx, database.OpRead)
	defer cancel()

	row := r.pool.QueryRow(ctx, `SELECT `+bundleColumns+` FROM bundles WHERE id = $1`, id.String())
	bundle, err := scanBundle(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBundleNotFound
		}
		return nil, storeError(fmt.Errorf("failed to get bundle: %w", err), "GetBundle")
	}
	if err := r.loadMessageIDs(ctx, bundle); err != nil {
		return nil, err
	}
	return bundle, nil
}

func (r *PostgresRepository) loadMessageIDs(ctx context.Context, bundle *models.Bundle) error {
	rows, err := r.pool.Query(ctx,
		`SELECT id::text FROM outgoing_messages WHERE assigned_bundle_id = $1 ORDER BY bundle_position`,
		bundle.ID.String())
	if err != nil {
		return storeError(err, "loadMessageIDs")
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return storeError(err, "loadMessageIDs")
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return err
		}
		bundle.MessageIDs = append(bundle.MessageIDs, parsed)
	}
	return rows.Err()
}

func (r *PostgresRepository) BundleMessages(ctx context.Context, bundleID uuid.UUID) ([]*models.OutgoingMessage, error) {
	ctx, cancel := database.WithTimeout(ctx, database.OpRead)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT `+outgoingColumns+`
		FROM outgoing_messages
		WHERE assigned_bundle_id = $1
		ORDER BY bundle_position
	`, bundleID.String())
	if err != nil {
		return nil, storeError(fmt.Errorf("failed to get bundle messages: %w", err), "BundleMessages")
	}
	defer rows.Close()

	messages, err := scanOutgoing(rows)
	if err != nil {
		return nil, storeError(err, "BundleMessages")
	}
	if len(messages) == 0 {
		return nil, ErrBundleNotFound
	}
	return messages, nil
}

func (r *PostgresRepository) MarkDequeued(ctx context.Context, bundleID uuid.UUID, at time.Time) (bool, error) {
	ctx, cancel := database.WithTimeout(ctx, database.OpWrite)
	defer cancel()

	var dequeued bool
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var current *time.Time
		err := tx.QueryRow(ctx, `SELECT dequeued_at FROM bundles WHERE id = $1 FOR UPDATE`, bundleID.String()).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrBundleNotFound
		}
		if err != nil {
			return err
		}
		if current != nil {
			return nil
		}

		if _, err := tx.Exec(ctx, `UPDATE bundles SET dequeued_at = $2 WHERE id = $1`, bundleID.String(), at); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE outgoing_messages SET dequeued_at = $2 WHERE assigned_bundle_id = $1`,
			bundleID.String(), at); err != nil {
			return err
		}
		dequeued = true
		return nil
	})
	if err == nil || errors.Is(err, ErrBundleNotFound) {
		return dequeued, err
	}
	return false, storeError(fmt.Errorf("failed to dequeue bundle: %w", err), "MarkDequeued")
}

// =============================================================================
// SCANNING
// =============================================================================

func scanOutgoing(rows pgx.Rows) ([]*models.OutgoingMessage, error) {
	var messages []*models.OutgoingMessage
	for rows.Next() {
		var (
			m                              models.OutgoingMessage
			id, documentType, role, reason string
			record                         []byte
			assigned                       *string
		)
		if err := rows.Scan(&id, &m.ExternalID, &documentType, &m.Receiver.Number, &role, &reason,
			&m.RelatedToMessageID, &record, &m.CreatedAt, &assigned, &m.DequeuedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outgoing message: %w", err)
		}

		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, err
		}
		m.ID = parsed
		m.DocumentType = models.DocumentType(documentType)
		m.Receiver.Role = models.ActorRole(role)
		m.BusinessReason = models.BusinessReason(reason)
		m.Record = json.RawMessage(record)
		if assigned != nil {
			bundleID, err := uuid.Parse(*assigned)
			if err != nil {
				return nil, err
			}
			m.AssignedBundleID = &bundleID
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

func scanBundle(row pgx.Row) (*models.Bundle, error) {
	var (
		b                              models.Bundle
		id, role, documentType, reason string
	)
	if err := row.Scan(&id, &b.MessageID, &b.Receiver.Number, &role, &documentType, &reason,
		&b.RelatedToMessageID, &b.MaxSize, &b.CreatedAt, &b.DequeuedAt); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	b.ID = parsed
	b.Receiver.Role = models.ActorRole(role)
	b.DocumentType = models.DocumentType(documentType)
	b.BusinessReason = models.BusinessReason(reason)
	return &b, nil
}

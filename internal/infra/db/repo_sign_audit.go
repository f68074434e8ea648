package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/hedera-dev/hedera-hsm-signing/internal/domain"
)

const signAuditChainID = "signer"

type SignAuditRepository struct {
	db *gorm.DB
}

func NewSignAuditRepository(db *gorm.DB) *SignAuditRepository {
	return &SignAuditRepository{db: db}
}

// Append assigns the next seq and links the event to its predecessor inside
// one transaction. The seq row lock serializes concurrent writers.
func (r *SignAuditRepository) Append(ctx context.Context, event domain.SignAuditEvent) (domain.SignAuditEvent, error) {
	if r.db == nil {
		return domain.SignAuditEvent{}, errDBUnavailable
	}
	if event.ID == "" {
		id, err := newUUID()
		if err != nil {
			return domain.SignAuditEvent{}, err
		}
		event.ID = id
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	event.CreatedAt = event.CreatedAt.UTC().Truncate(time.Microsecond)
	if event.PayloadHash == "" {
		return domain.SignAuditEvent{}, errors.New("payload_hash is required")
	}

	var out domain.SignAuditEvent
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, prevHash, err := nextSignAuditSeq(ctx, tx)
		if err != nil {
			return err
		}
		event.Seq = seq
		event.PrevEventHash = prevHash

		eventHash, err := domain.SignAuditChainHash(event)
		if err != nil {
			return err
		}
		event.EventHash = eventHash

		model := signAuditModelFromDomain(event)
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		out = event
		return nil
	})
	if err != nil {
		return domain.SignAuditEvent{}, err
	}
	return out, nil
}

// ListRecent returns the newest limit events in ascending seq order.
func (r *SignAuditRepository) ListRecent(ctx context.Context, limit int) ([]domain.SignAuditEvent, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if limit <= 0 {
		limit = 100
	}
	var models []SignAuditEventModel
	if err := r.db.WithContext(ctx).
		Order("seq DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.SignAuditEvent, len(models))
	for i, model := range models {
		out[len(models)-1-i] = signAuditFromModel(model)
	}
	return out, nil
}

func signAuditModelFromDomain(event domain.SignAuditEvent) SignAuditEventModel {
	return SignAuditEventModel{
		ID:            event.ID,
		Seq:           event.Seq,
		Backend:       string(event.Backend),
		KeyID:         event.KeyID,
		Curve:         string(event.Curve),
		PrincipalHash: stringPtrIfNotEmpty(event.PrincipalHash),
		PayloadHash:   event.PayloadHash,
		SignatureHash: stringPtrIfNotEmpty(event.SignatureHash),
		Result:        string(event.Result),
		ErrorCode:     stringPtrIfNotEmpty(event.ErrorCode),
		PrevEventHash: event.PrevEventHash,
		EventHash:     event.EventHash,
		CreatedAt:     event.CreatedAt.UTC(),
	}
}

func signAuditFromModel(model SignAuditEventModel) domain.SignAuditEvent {
	return domain.SignAuditEvent{
		ID:            model.ID,
		Seq:           model.Seq,
		Backend:       domain.BackendKind(model.Backend),
		KeyID:         model.KeyID,
		Curve:         domain.Curve(model.Curve),
		PrincipalHash: stringValue(model.PrincipalHash),
		PayloadHash:   model.PayloadHash,
		SignatureHash: stringValue(model.SignatureHash),
		Result:        domain.AuditResult(model.Result),
		ErrorCode:     stringValue(model.ErrorCode),
		PrevEventHash: model.PrevEventHash,
		EventHash:     model.EventHash,
		CreatedAt:     model.CreatedAt.UTC(),
	}
}

func nextSignAuditSeq(ctx context.Context, tx *gorm.DB) (int64, string, error) {
	if err := tx.WithContext(ctx).Exec(
		"INSERT INTO sign_audit_seq (chain_id, seq) VALUES (?, 0) ON CONFLICT (chain_id) DO NOTHING",
		signAuditChainID,
	).Error; err != nil {
		return 0, "", err
	}

	var currentSeq int64
	if err := tx.WithContext(ctx).Raw(
		"SELECT seq FROM sign_audit_seq WHERE chain_id = ? FOR UPDATE",
		signAuditChainID,
	).Scan(&currentSeq).Error; err != nil {
		return 0, "", err
	}
	nextSeq := currentSeq + 1
	if err := tx.WithContext(ctx).Exec(
		"UPDATE sign_audit_seq SET seq = ? WHERE chain_id = ?",
		nextSeq,
		signAuditChainID,
	).Error; err != nil {
		return 0, "", err
	}

	prevHash := domain.ZeroAuditHash()
	if currentSeq > 0 {
		var prev SignAuditEventModel
		if err := tx.WithContext(ctx).
			Where("seq = ?", currentSeq).
			Take(&prev).Error; err != nil {
			return 0, "", fmt.Errorf("load previous audit event: %w", err)
		}
		prevHash = prev.EventHash
	}
	if prevHash == "" {
		return 0, "", fmt.Errorf("missing previous event hash at seq %d", currentSeq)
	}
	return nextSeq, prevHash, nil
}

package usecase

import (
	"errors"
	"fmt"

	"github.com/hedera-dev/hedera-hsm-signing/internal/domain"
)

// VerifySignAuditChain checks a contiguous run of audit events in ascending
// seq order. A run that starts at seq 1 must chain from the zero hash.
func VerifySignAuditChain(events []domain.SignAuditEvent) error {
	if len(events) == 0 {
		return nil
	}
	expectedSeq := events[0].Seq
	prevHash := events[0].PrevEventHash
	if expectedSeq == 1 && prevHash != domain.ZeroAuditHash() {
		return errors.New("audit chain does not start from the zero hash")
	}
	for _, event := range events {
		if event.Seq != expectedSeq {
			return fmt.Errorf("audit chain seq mismatch: expected %d got %d", expectedSeq, event.Seq)
		}
		if event.PrevEventHash != prevHash {
			return fmt.Errorf("audit chain prev hash mismatch at seq %d", event.Seq)
		}
		if event.CreatedAt.IsZero() {
			return fmt.Errorf("audit chain missing created_at at seq %d", event.Seq)
		}
		expectedHash, err := domain.SignAuditChainHash(event)
		if err != nil {
			return fmt.Errorf("audit chain hash compute failed at seq %d: %w", event.Seq, err)
		}
		if expectedHash != event.EventHash {
			return fmt.Errorf("audit chain hash mismatch at seq %d", event.Seq)
		}
		prevHash = event.EventHash
		expectedSeq++
	}
	return nil
}

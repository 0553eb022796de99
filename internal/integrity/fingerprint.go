package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tbourn/go-credit-gate/internal/domain"
)

// Fingerprint computes the replay-detection hash of a transaction: SHA-256,
// lowercase hex, over a canonical JSON document of the immutable content
// fields. encoding/json emits map keys in sorted order at every level, the
// amount is the exact decimal string, and the timestamp is RFC 3339 with
// nanoseconds in UTC, so equal content always produces equal bytes.
//
// The id and status are deliberately excluded: id dedup catches literal
// resubmission on its own key, while the fingerprint must catch identical
// content resubmitted under a freshly minted id.
func Fingerprint(tx *domain.Transaction) (string, error) {
	doc := map[string]any{
		"amount":           tx.Amount.String(),
		"from_user_id":     tx.FromUser,
		"metadata":         tx.Metadata,
		"reference_id":     tx.ReferenceID,
		"timestamp":        tx.Timestamp.UTC().Format(time.RFC3339Nano),
		"to_user_id":       tx.ToUser,
		"transaction_type": string(tx.Type),
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("fingerprint transaction: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

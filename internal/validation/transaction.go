package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tbourn/go-credit-gate/internal/domain"
)

// TransactionRules validates the non-monetary shape of a submission: the
// type allowlist and the metadata / reference-id ceilings.
type TransactionRules struct {
	MaxMetadataBytes  int
	MaxReferenceIDLen int
}

// ValidateType normalizes raw (trim, lowercase) and checks membership in
// the closed transaction-type set.
func (r TransactionRules) ValidateType(raw string) (domain.TransactionType, error) {
	typ := domain.TransactionType(strings.ToLower(strings.TrimSpace(raw)))
	if !typ.Valid() {
		names := make([]string, 0, 5)
		for _, t := range domain.TransactionTypes() {
			names = append(names, string(t))
		}
		return "", fmt.Errorf("%w: must be one of: %s", ErrInvalidType, strings.Join(names, ", "))
	}
	return typ, nil
}

// ValidateMetadata accepts absent metadata (nil result), requires present
// metadata to be a JSON object, and caps its serialized size.
func (r TransactionRules) ValidateMetadata(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if len(raw) > r.MaxMetadataBytes {
		return nil, fmt.Errorf("%w: max %d bytes", ErrMetadataTooLarge, r.MaxMetadataBytes)
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadataType, err)
	}
	if m == nil {
		// "null" unmarshals cleanly into a nil map; treat it as absent.
		return nil, nil
	}
	return m, nil
}

// ValidateReferenceID accepts an absent reference id (empty string), and
// requires a present one to be non-blank after trimming and within the
// configured length.
func (r TransactionRules) ValidateReferenceID(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	ref := strings.TrimSpace(raw)
	if ref == "" {
		return "", fmt.Errorf("%w: must not be blank", ErrReferenceID)
	}
	if len(ref) > r.MaxReferenceIDLen {
		return "", fmt.Errorf("%w: max %d characters", ErrReferenceID, r.MaxReferenceIDLen)
	}
	return ref, nil
}

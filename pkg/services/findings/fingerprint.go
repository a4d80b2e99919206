package findings

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/secureaudit/secureaudit/pkg/models/domain"
)

// Fingerprint derives the stable finding id from the violated rule and the
// affected resource. Repeated scans of the same resource reproduce the same
// id, which is what makes ingestion idempotent. The framework set is part of
// the identity: the same misconfiguration under GDPR and under SOC2 are two
// findings with independent remediation lifecycles.
func Fingerprint(c domain.CandidateFinding) string {
	frameworks := append([]string{}, c.Frameworks...)
	sort.Strings(frameworks)

	h := sha256.New()
	for _, part := range []string{c.ResourceType, c.ResourceID, c.Title, strings.Join(frameworks, ",")} {
		h.Write([]byte(part))
		h.Write([]byte{0x1f})
	}
	return fmt.Sprintf("finding-%x", h.Sum(nil)[:12])
}

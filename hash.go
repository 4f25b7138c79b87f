package settle

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/xraph/settle/id"
	"github.com/xraph/settle/types"
)

// TransferHash identifies one spend attempt for multi-sig approval. It
// commits to the allowance, the recipient, the exact amount, and the
// second the spend executes; signers pre-compute it to approve a
// transfer before the agent submits it.
func TransferHash(allowanceID id.AllowanceID, recipient types.Principal, amount types.Money, at time.Time) string {
	payload := fmt.Sprintf("%s|%s|%d|%s|%d",
		allowanceID.String(), recipient, amount.Amount, amount.Currency, at.Unix())
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

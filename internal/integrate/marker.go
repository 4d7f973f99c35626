package integrate

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/cexll/reviewbot/internal/command"
	"github.com/cexll/reviewbot/internal/forge"
)

// pushAnchorIntent is the kind="push-anchor" intent kind, distinct from
// internal/command's intent kinds: the crash-recovery anchor spec.md
// §4.4 step 1 describes, not a command-handler decision.
const pushAnchorIntent = "push-anchor"

// pushAnchor is the hidden marker the "Going to push as commit…" comment
// carries, recording enough to detect on re-entry whether a prior attempt
// already completed (spec.md §4.4 "Atomic push-and-finalize").
type pushAnchor struct {
	PRID          int    `json:"pr"`
	TargetBranch  string `json:"targetBranch"`
	TargetHead    string `json:"targetHead"`    // T: the target head observed before rebase
	CandidateHash string `json:"candidateHash"` // the commit Push will attempt
	Digest        string `json:"digest"`        // content digest of the commit message, to identify the commit if it landed
}

// digestMessage returns a short, stable digest of msg, used to recognize
// "this is the commit our pre-push comment described" when walking the
// target branch during crash recovery, without needing the candidate
// hash to still resolve locally.
func digestMessage(msg string) string {
	sum := sha256.Sum256([]byte(msg))
	return hex.EncodeToString(sum[:])[:16]
}

// findPushAnchor returns the most recent push-anchor marker on pr, if any.
func findPushAnchor(pr *forge.PullRequest) (pushAnchor, bool) {
	var a pushAnchor
	ok := command.LatestIntent(pr.Comments, pushAnchorIntent, &a)
	return a, ok
}

func encodePushAnchor(a pushAnchor) string {
	return command.EncodeIntent(pushAnchorIntent, a)
}

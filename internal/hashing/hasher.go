package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/google/uuid"
)

// HashPage hashes the canonical serialization of a page's geometry and
// objects. Canonicalization is a decode/re-encode round trip: object keys
// come out sorted, so formatting and key order in the input do not change
// the digest.
func HashPage(content json.RawMessage) (string, error) {
	var decoded interface{}
	if err := json.Unmarshal(content, &decoded); err != nil {
		return "", fmt.Errorf("hash page: invalid page content: %w", err)
	}
	canonical, err := json.Marshal(decoded)
	if err != nil {
		return "", fmt.Errorf("hash page: canonicalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// AuthorKey folds the user-XOR-pipeline author into a stable string for
// hashing.
func AuthorKey(userID *uuid.UUID, pipelineID *int64) string {
	if userID != nil {
		return "user:" + userID.String()
	}
	if pipelineID != nil {
		return "pipeline:" + strconv.FormatInt(*pipelineID, 10)
	}
	return ""
}

// HashRevision chains the base revision's hash with the new content so that
// history order is committed: a fork always hashes differently than a no-op
// resubmission. Pure function of its inputs; page iteration order does not
// matter because pages are folded in sorted order.
func HashRevision(baseHash string, pages map[int]string, validated, failed []int, author string) string {
	h := sha256.New()
	h.Write([]byte(baseHash))

	nums := make([]int, 0, len(pages))
	for n := range pages {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	for _, n := range nums {
		fmt.Fprintf(h, "%d:%s;", n, pages[n])
	}

	for _, p := range sortedCopy(validated) {
		fmt.Fprintf(h, "v%d;", p)
	}
	for _, p := range sortedCopy(failed) {
		fmt.Fprintf(h, "f%d;", p)
	}

	h.Write([]byte(author))
	return hex.EncodeToString(h.Sum(nil))
}

func sortedCopy(in []int) []int {
	out := make([]int, len(in))
	copy(out, in)
	sort.Ints(out)
	return out
}

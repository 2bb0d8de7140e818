package models

// Issue kinds reported by a consistency check.
const (
	IssueRefCountDrift  = "refcount_drift"
	IssueMissingPayload = "missing_payload"
	IssueCorruptPayload = "corrupt_payload"
	IssueOrphanPayload  = "orphan_payload"
)

// CheckIssue is one inconsistency found by a consistency check.
type CheckIssue struct {
	Kind     string `json:"kind" yaml:"kind"`
	BlobID   string `json:"blob_id,omitempty" yaml:"blob_id,omitempty"`
	Key      string `json:"payload_key,omitempty" yaml:"payload_key,omitempty"`
	Detail   string `json:"detail" yaml:"detail"`
	Repaired bool   `json:"repaired" yaml:"repaired"`
}

// CheckReport summarizes a consistency check.
type CheckReport struct {
	Blobs          int          `json:"blobs" yaml:"blobs"`
	Files          int          `json:"files" yaml:"files"`
	PayloadsTotal  int          `json:"payloads" yaml:"payloads"`
	ReclaimedBytes int64        `json:"reclaimed_bytes" yaml:"reclaimed_bytes"`
	Repair         bool         `json:"repair" yaml:"repair"`
	Issues         []CheckIssue `json:"issues" yaml:"issues"`
}

// OK reports whether no unrepaired issue remains.
func (r *CheckReport) OK() bool {
	for _, issue := range r.Issues {
		if !issue.Repaired {
			return false
		}
	}
	return true
}

// Sharing reports who else holds the content of a file.
type Sharing struct {
	// OtherOwners lists owners, other than the requester, with a file
	// referencing the same blob.
	OtherOwners []string `json:"other_owners" yaml:"other_owners"`
	// OwnerCopies counts the requester's files referencing the blob,
	// including the file asked about.
	OwnerCopies int `json:"owner_copies" yaml:"owner_copies"`
}

// AlreadyOwned reports whether the requester held this content before.
func (s Sharing) AlreadyOwned() bool {
	return s.OwnerCopies > 1
}

package indexed

// Query paths of the external balance-indexing service, centralized so the
// client methods stay in sync with the service contract.
const (
	statusPath         = "/v1/status"
	latestSnapshotPath = "/v1/snapshots/latest"
	snapshotRowsPath   = "/v1/snapshots/rows"
	diffRowsPath       = "/v1/diffs"
	tokensPath         = "/v1/tokens"
)

package database

// Cart snapshot queries
const (
	UpsertCartSnapshotSQL = `
		INSERT INTO cart_snapshots (key, payload, version, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (key) DO UPDATE SET
			payload = EXCLUDED.payload,
			version = EXCLUDED.version,
			updated_at = NOW()`

	GetCartSnapshotSQL = `
		SELECT payload FROM cart_snapshots WHERE key = $1`

	DeleteCartSnapshotSQL = `
		DELETE FROM cart_snapshots WHERE key = $1`
)

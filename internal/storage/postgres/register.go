package postgres

import "analyticsetl/internal/storage"

func init() {
	storage.Register("postgres", New)
}

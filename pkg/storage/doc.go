// Package storage persists job history.
//
// GormStorage implements core.Storage on top of GORM and works with the
// SQLite and PostgreSQL drivers. Open picks the driver from the DSN:
//
//	hist, err := storage.Open(ctx, "file:jobs.db")
//	c, err := client.New(src, client.WithHistory(hist))
//
// Each submitted job gets one JobRecord, written at submission and again
// when the job reaches a terminal state.
package storage

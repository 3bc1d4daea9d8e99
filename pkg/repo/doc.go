// Package repo manages named recipe repositories.
//
// A repository table holds named repositories plus an ordered default
// list; the first default has the highest precedence when repositories
// carry the same recipe. Backends sync a repository's recipe tree into
// the local cache: dir replicates a local directory, ssh pulls a remote
// tree over SSH/SFTP, and dummy holds nothing.
//
// The Manager syncs repositories and loads the combined recipe store:
//
//	m := repo.NewManager(table, cacheDir, tel)
//	if err := m.Sync(ctx); err != nil { ... }
//	store, err := m.LoadStore(ctx)
package repo

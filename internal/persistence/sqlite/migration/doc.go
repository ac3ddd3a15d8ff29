// Package migration applies versioned update scripts to a SQLite database.
//
// Scripts come from a Manifest: a single XML or YAML file (FileManifest), a
// directory of {version}_{name}.sql files (DirManifest) or a Static list.
// The version reached so far is kept in the Config table under
// System/Version and advances after every script, so a failed run resumes
// from the last script that completed. Each run takes a tagged backup first
// and appends one line per applied script to the update log.
//
// Example usage:
//
//	engine, err := migration.NewEngine(ctx, migration.Deps{
//		Exec:      db,
//		Backup:    db,
//		Manifest:  migration.FileManifest{Path: "updates.xml"},
//		UpdateLog: migration.NewUpdateLog("updates.log"),
//	})
//	if err != nil {
//		return err
//	}
//	if _, err := engine.Apply(ctx); err != nil {
//		return err
//	}
package migration

package catalog

import (
	"github.com/rpattn/entitystore/internal/migration"
)

// ProjectMigrations upgrade project documents to version 2
func ProjectMigrations() []migration.Migration {
	return []migration.Migration{
		{
			EntityType:  ProjectType.Name,
			FromVersion: 0,
			Aliases:     []string{"repository"},
			Description: "rename legacy desc to description",
			Transform: migration.Chain(
				migration.RenameRoot("repository", ProjectType.Name),
				migration.RenameTag("desc", "description"),
			),
		},
		{
			EntityType:  ProjectType.Name,
			FromVersion: 1,
			Description: "drop revision counters",
			Transform:   migration.RemoveTag("revision"),
		},
	}
}

// IssuesMigrations upgrade issue tracker documents to version 19. Versions
// before 16 differ only in fields that are read leniently.
func IssuesMigrations() []migration.Migration {
	var ms []migration.Migration
	for from := 0; from < 16; from++ {
		ms = append(ms, migration.Migration{
			EntityType:  IssuesType.Name,
			FromVersion: from,
			Description: "no structural change",
			Transform:   migration.Noop,
		})
	}
	return append(ms,
		migration.Migration{
			EntityType:  IssuesType.Name,
			FromVersion: 16,
			Aliases:     []string{"issue-tracker"},
			Description: "rename issue-tracker root to issues",
			Transform:   migration.RenameRoot("issue-tracker", IssuesType.Name),
		},
		migration.Migration{
			EntityType:  IssuesType.Name,
			FromVersion: 17,
			Description: "strip legacy extension wrappers",
			Transform:   migration.UnwrapTag("extension"),
		},
		migration.Migration{
			EntityType:  IssuesType.Name,
			FromVersion: 18,
			Description: "mark trackers stale by default",
			Transform:   migration.InsertDefault("properties/stale", "true"),
		},
	)
}

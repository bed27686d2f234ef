package sqlinline

import (
	"regexp"
	"strings"
	"testing"
)

var markerPattern = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func TestQueriesCarryUniqueMarkers(t *testing.T) {
	queries := map[string]string{
		"QInsertPost":                   QInsertPost,
		"QListPostsLatest":              QListPostsLatest,
		"QListPostsTop":                 QListPostsTop,
		"QPostHighWater":                QPostHighWater,
		"QIncrementRemixCount":          QIncrementRemixCount,
		"QPostStats":                    QPostStats,
		"QInsertCharacter":              QInsertCharacter,
		"QActivateCharacter":            QActivateCharacter,
		"QDeleteCharacter":              QDeleteCharacter,
		"QSelectCharacterByUsername":    QSelectCharacterByUsername,
		"QUpdateCharacterDisplayName":   QUpdateCharacterDisplayName,
		"QSearchCharacters":             QSearchCharacters,
		"QOwnerHasActiveCharacter":      QOwnerHasActiveCharacter,
		"QUpsertUser":                   QUpsertUser,
		"QSelectUserByID":               QSelectUserByID,
		"QSelectUserByUsername":         QSelectUserByUsername,
		"QSearchUsers":                  QSearchUsers,
		"QInsertAPIToken":               QInsertAPIToken,
		"QSelectAPITokenByID":           QSelectAPITokenByID,
		"QSelectAPITokenByHash":         QSelectAPITokenByHash,
		"QInsertJob":                    QInsertJob,
		"QUpdateJob":                    QUpdateJob,
		"QSelectJob":                    QSelectJob,
		"QSelectIntegrationToken":       QSelectIntegrationToken,
		"QUpsertIntegrationToken":       QUpsertIntegrationToken,
		"QFailStaleJobs":                QFailStaleJobs,
		"QDeleteStalePendingCharacters": QDeleteStalePendingCharacters,
	}
	seen := map[string]string{}
	for name, q := range queries {
		first, _, _ := strings.Cut(q, "\n")
		if !markerPattern.MatchString(first) {
			t.Fatalf("%s: first line %q is not a --sql marker", name, first)
		}
		if other, dup := seen[first]; dup {
			t.Fatalf("%s reuses the marker of %s", name, other)
		}
		seen[first] = name
	}
}

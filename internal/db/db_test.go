package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/albapepper/burrito-league/internal/config"
)

func TestSchemaDeclaresEveryTable(t *testing.T) {
	schema := Schema()
	for _, table := range []string{
		config.PollRunsTable,
		config.SegmentSnapshotsTable,
		config.PollDetailsTable,
		config.ChapterCoordinatesTable,
	} {
		assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table+" (")
	}
}

func TestSchemaIsIdempotent(t *testing.T) {
	for _, line := range strings.Split(Schema(), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "CREATE ") {
			assert.Contains(t, trimmed, "IF NOT EXISTS", trimmed)
		}
	}
}

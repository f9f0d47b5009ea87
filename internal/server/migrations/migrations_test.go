package migrations

import (
	"io/fs"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_TemplateIDWidthsAgree(t *testing.T) {
	col := regexp.MustCompile(`(?m)^\s*template_id\s+VARCHAR\((\d+)\)`)

	files, err := fs.Glob(Migrations, "*.sql")
	require.NoError(t, err)

	widths := map[string]string{}
	for _, name := range files {
		body, err := Migrations.ReadFile(name)
		require.NoError(t, err)
		for _, m := range col.FindAllStringSubmatch(string(body), -1) {
			widths[name] = m[1]
		}
	}

	assert.Equal(t, map[string]string{
		"00002_scans.sql":          "254",
		"00003_scan_templates.sql": "254",
	}, widths, "every code a scan can carry must fit the template table")
}

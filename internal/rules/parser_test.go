package rules

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const validRules = `
# Flood rules, trimmed.

# Rule 3: saturated flat ground
Zone(?z) ^ hasSlope(?z, ?s) ^ swrlb:lessThan(?s, 1.0) ^
hasSoilType(?z, "hydromorphic")
-> hasRiskLevel(?z, "HighRisk")

# Rule 6: low-lying zones
Zone(?z) ^ hasAltitude(?z, ?a) ^ swrlb:lessThan(?a, 290.0)
-> isFloodProne(?z, "true")
`

func TestParse_ValidFile(t *testing.T) {
	set, err := Parse(strings.NewReader(validRules))
	require.NoError(t, err)
	require.Len(t, set.Rules(), 2)

	r3, ok := set.Find(3)
	require.True(t, ok)
	assert.Equal(t, "saturated flat ground", r3.Description)
	require.Len(t, r3.Body, 4)
	assert.IsType(t, ClassAtom{}, r3.Body[0])
	assert.IsType(t, PropertyAtom{}, r3.Body[1])
	assert.IsType(t, ComparisonAtom{}, r3.Body[2])
	assert.Equal(t, Head{Property: "hasRiskLevel", Subject: "z", Value: "HighRisk"}, r3.Head)

	r6, ok := set.Find(6)
	require.True(t, ok)
	assert.Equal(t, Head{Property: "isFloodProne", Subject: "z", Value: "true"}, r6.Head)
}

func TestParse_RelationAtoms(t *testing.T) {
	set, err := Parse(strings.NewReader(`
# Rule 4: downstream propagation
HydrologicalData(?h) ^ measuredAt(?h, ?s) ^ Zone(?z) ^ isDownstreamOf(?z, ?s)
-> hasRiskLevel(?z, "ModerateRisk")
`))
	require.NoError(t, err)
	r := set.Rules()[0]
	assert.IsType(t, RelationAtom{}, r.Body[1])
	assert.IsType(t, RelationAtom{}, r.Body[3])
}

func TestParse_Errors(t *testing.T) {
	cases := map[string]string{
		"missing arrow":      "# Rule 1: x\nZone(?z)",
		"two arrows":         "# Rule 1: x\nZone(?z) -> a(?z, \"v\") -> b(?z, \"v\")",
		"duplicate id":       "# Rule 1: x\nZone(?z) -> a(?z, \"v\")\n# Rule 1: y\nZone(?z) -> a(?z, \"v\")",
		"text before header": "Zone(?z) -> a(?z, \"v\")",
		"unknown builtin":    "# Rule 1: x\nswrlb:between(?a, 1.0) -> a(?z, \"v\")",
		"bad literal":        "# Rule 1: x\nhasSlope(?z, 1..0) -> a(?z, \"v\")",
		"relation head":      "# Rule 1: x\nZone(?z) -> protects(?z, ?d)",
		"numeric head value": "# Rule 1: x\nZone(?z) -> hasRiskLevel(?z, 2.0)",
		"empty file":         "# just a comment\n",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(input))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrRuleParse)
		})
	}
}

func TestRuleText_Rendering(t *testing.T) {
	set, err := Parse(strings.NewReader(validRules))
	require.NoError(t, err)
	r6, _ := set.Find(6)
	assert.Equal(t,
		`Zone(?z) ^ hasAltitude(?z, ?a) ^ swrlb:lessThan(?a, 290) -> isFloodProne(?z, "true")`,
		r6.Text())
}

func TestRuleset_ReloadKeepsActiveSetOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/rules.txt"
	writeFile(t, path, validRules)

	rs, err := LoadRuleset(path)
	require.NoError(t, err)
	require.Len(t, rs.Active().Rules(), 2)

	writeFile(t, path, "# Rule 9: broken\nZone(?z)")
	err = rs.Reload()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRuleParse)
	assert.Len(t, rs.Active().Rules(), 2, "failed reload keeps the previous set")

	writeFile(t, path, "# Rule 9: fixed\nZone(?z) -> isFloodProne(?z, \"true\")")
	require.NoError(t, rs.Reload())
	assert.Len(t, rs.Active().Rules(), 1)
}

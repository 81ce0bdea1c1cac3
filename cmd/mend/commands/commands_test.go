package commands

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/mend/am"
	"github.com/teranos/mend/version"
)

func TestVersionJSON(t *testing.T) {
	var out bytes.Buffer
	VersionCmd.SetOut(&out)
	VersionCmd.SetArgs([]string{"--json"})
	t.Cleanup(func() {
		VersionCmd.SetArgs(nil)
		_ = VersionCmd.Flags().Set("json", "false")
	})

	require.NoError(t, VersionCmd.Execute())

	var info version.Info
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Equal(t, version.Get().GoVersion, info.GoVersion)
}

func TestAmShow_Formats(t *testing.T) {
	am.Reset()
	t.Cleanup(am.Reset)
	t.Cleanup(func() { configFormat = "toml" })

	for _, format := range []string{"toml", "json", "yaml"} {
		t.Run(format, func(t *testing.T) {
			var out bytes.Buffer
			amShowCmd.SetOut(&out)
			configFormat = format
			require.NoError(t, runAmShow(amShowCmd, nil))
			assert.NotEmpty(t, out.String())
		})
	}

	configFormat = "xml"
	err := runAmShow(amShowCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}

func TestLoadRules_RequiresPath(t *testing.T) {
	_, err := loadRules(&am.Config{}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no rule file configured")
}

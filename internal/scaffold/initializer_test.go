package scaffold

import (
	"os"
	"testing"

	"github.com/dyluth/blockmul/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name      string
		force     bool
		setupFunc func(t *testing.T)
	}{
		{
			name:      "fresh initialization",
			setupFunc: func(t *testing.T) {},
		},
		{
			name:  "force initialization replaces existing files",
			force: true,
			setupFunc: func(t *testing.T) {
				require.NoError(t, os.WriteFile(config.DefaultFile, []byte("old content"), 0644))
				require.NoError(t, os.WriteFile(DockerfileName, []byte("FROM scratch"), 0644))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			tt.setupFunc(t)

			require.NoError(t, Initialize(tt.force))

			for _, f := range Files {
				info, err := os.Stat(f.Path)
				require.NoError(t, err, "%s should exist", f.Path)
				assert.Equal(t, f.Permissions, info.Mode().Perm())
			}

			dockerfile, err := os.ReadFile(DockerfileName)
			require.NoError(t, err)
			assert.Contains(t, string(dockerfile), `ENTRYPOINT ["blockmul"]`)
		})
	}
}

func TestInitialize_TemplateMatchesDefault(t *testing.T) {
	chdir(t, t.TempDir())
	require.NoError(t, Initialize(false))

	cfg, err := config.Load(config.DefaultFile)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

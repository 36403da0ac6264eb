package testdb

import (
	"testing"

	"github.com/phrazzld/taskforge/internal/ciutil"
	"github.com/stretchr/testify/assert"
)

func TestDatabaseURL(t *testing.T) {
	t.Setenv(ciutil.EnvTestDBURL, "postgres://localhost/tasks_test")
	assert.Equal(t, "postgres://localhost/tasks_test", DatabaseURL(t))
}

func TestDatabaseURLSkipsOutsideCI(t *testing.T) {
	for _, name := range []string{ciutil.EnvCI, ciutil.EnvGitHubActions, ciutil.EnvGitLabCI, ciutil.EnvJenkinsURL, ciutil.EnvCircleCI, ciutil.EnvTestDBURL, ciutil.EnvDatabaseURL} {
		t.Setenv(name, "")
	}

	var skipped bool
	t.Run("inner", func(t *testing.T) {
		defer func() { skipped = t.Skipped() }()
		DatabaseURL(t)
	})
	assert.True(t, skipped)
}

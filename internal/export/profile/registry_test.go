package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validProfiles = `
profiles:
  substack:
    default: true
    subscribers:
      members: ["subscribers", "email_list"]
      created_at: created_at
      paid_flag: active_subscription
    posts:
      members: ["posts.csv"]
      date: post_date
      title: title
      published_flag: is_published
  minimal:
    subscribers:
      members: ["members.csv"]
      created_at: joined_at
    posts:
      members: ["articles.csv"]
      date: published_at
      title: headline
`

func writeProfiles(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export_profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseProfiles(t *testing.T) {
	t.Run("valid document", func(t *testing.T) {
		profiles, err := ParseProfiles([]byte(validProfiles))
		require.NoError(t, err)
		require.Len(t, profiles, 2)
		sub := profiles["substack"]
		assert.True(t, sub.Default)
		assert.Equal(t, "substack", sub.Name)
		assert.Equal(t, "created_at", sub.Subscribers.CreatedAt)
		assert.Equal(t, []string{"posts.csv"}, sub.Posts.Members)
	})

	t.Run("schema violations rejected", func(t *testing.T) {
		cases := map[string]string{
			"no profiles key": "other: {}\n",
			"empty profiles":  "profiles: {}\n",
			"missing created_at": `
profiles:
  broken:
    subscribers:
      members: ["subscribers"]
    posts:
      members: ["posts.csv"]
      date: post_date
      title: title
`,
			"empty members": `
profiles:
  broken:
    subscribers:
      members: []
      created_at: created_at
    posts:
      members: ["posts.csv"]
      date: post_date
      title: title
`,
		}
		for name, doc := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := ParseProfiles([]byte(doc))
				assert.Error(t, err)
			})
		}
	})

	t.Run("not yaml", func(t *testing.T) {
		_, err := ParseProfiles([]byte("\t{{{"))
		assert.Error(t, err)
	})
}

func TestRegistryLookup(t *testing.T) {
	r, err := NewRegistry(writeProfiles(t, validProfiles))
	require.NoError(t, err)

	t.Run("by name", func(t *testing.T) {
		p, ok := r.Profile("minimal")
		require.True(t, ok)
		assert.Equal(t, "joined_at", p.Subscribers.CreatedAt)
	})

	t.Run("default fallback on empty name", func(t *testing.T) {
		p, ok := r.Profile("")
		require.True(t, ok)
		assert.Equal(t, "substack", p.Name)
	})

	t.Run("unknown name", func(t *testing.T) {
		_, ok := r.Profile("nope")
		assert.False(t, ok)
	})

	snap := r.Snapshot()
	assert.Equal(t, int64(1), snap.Version)
	assert.Len(t, snap.Profiles, 2)
}

func TestRegistryKeepsSnapshotOnReloadFailure(t *testing.T) {
	path := writeProfiles(t, validProfiles)
	r, err := NewRegistry(path)
	require.NoError(t, err)

	// 文件被写坏后重载失败，旧快照必须原样保留
	require.NoError(t, os.WriteFile(path, []byte("profiles: {}\n"), 0o644))
	assert.Error(t, r.reload())

	snap := r.Snapshot()
	assert.Equal(t, int64(1), snap.Version)
	require.Len(t, snap.Profiles, 2)
	p, ok := r.Profile("substack")
	require.True(t, ok)
	assert.Equal(t, "created_at", p.Subscribers.CreatedAt)

	// 文件修好后重载生效，版本推进
	require.NoError(t, os.WriteFile(path, []byte(validProfiles), 0o644))
	require.NoError(t, r.reload())
	assert.Equal(t, int64(2), r.Snapshot().Version)
}

func TestRegistryRejectsBrokenFile(t *testing.T) {
	_, err := NewRegistry(writeProfiles(t, "profiles: {}\n"))
	assert.Error(t, err)

	_, err = NewRegistry("")
	assert.Error(t, err)
}

package export

import (
	"archive/zip"
	"bytes"
	"testing"

	"letterpulse/internal/export/profile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func substackProfile() profile.Profile {
	return profile.Profile{
		Name: "substack",
		Subscribers: profile.SubscriberMapping{
			Members:   []string{"subscribers", "email_list"},
			CreatedAt: "created_at",
			PaidFlag:  "active_subscription",
			Email:     "email",
		},
		Posts: profile.PostMapping{
			Members:       []string{"posts.csv"},
			Date:          "post_date",
			Title:         "title",
			PublishedFlag: "is_published",
			Type:          "type",
		},
	}
}

func buildZip(t *testing.T, members map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range members {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

const subscribersCSV = "email,created_at,active_subscription\n" +
	"a@x.io,2024-01-03T08:00:00Z,true\n" +
	"b@x.io,2024-01-01T09:30:00Z,false\n" +
	"c@x.io,2024-01-02T10:00:00Z,TRUE\n"

const postsCSV = "post_date,title,is_published,type\n" +
	"2024-01-02T12:00:00Z,Launch Post,true,newsletter\n" +
	"2024-01-05T12:00:00Z,Draft,false,newsletter\n" +
	"2024-01-04T12:00:00Z,Second Post,true,podcast\n"

func TestLoad(t *testing.T) {
	t.Run("happy path", func(t *testing.T) {
		data := buildZip(t, map[string]string{
			"export/subscribers.csv":    subscribersCSV,
			"export/posts.csv":          postsCSV,
			"__MACOSX/._subscribers.csv": "junk",
		})
		ds, err := Load(data, substackProfile())
		require.NoError(t, err)
		require.Len(t, ds.Subscribers, 3)
		assert.True(t, ds.HasPaidFlag)
		assert.Equal(t, 2, ds.PaidCount())
		// 按 created_at 排序
		assert.Equal(t, "b@x.io", ds.Subscribers[0].Email)
		assert.Equal(t, "a@x.io", ds.Subscribers[2].Email)
		// 未发布的文章被过滤，且按日期排序
		require.Len(t, ds.Posts, 2)
		assert.Equal(t, "Launch Post", ds.Posts[0].Title)
		assert.Equal(t, "podcast", ds.Posts[1].Type)
		assert.Equal(t, "export/subscribers.csv", ds.SubscriberMember)
	})

	t.Run("email_list fallback", func(t *testing.T) {
		data := buildZip(t, map[string]string{
			"email_list.csv": subscribersCSV,
			"posts.csv":      postsCSV,
		})
		ds, err := Load(data, substackProfile())
		require.NoError(t, err)
		assert.Equal(t, "email_list.csv", ds.SubscriberMember)
		assert.Len(t, ds.Subscribers, 3)
	})

	t.Run("not a zip", func(t *testing.T) {
		_, err := Load([]byte("definitely not a zip"), substackProfile())
		assert.ErrorIs(t, err, ErrBadArchive)
	})

	t.Run("missing posts member", func(t *testing.T) {
		data := buildZip(t, map[string]string{"subscribers.csv": subscribersCSV})
		_, err := Load(data, substackProfile())
		assert.ErrorIs(t, err, ErrMissingPosts)
	})

	t.Run("missing subscribers member", func(t *testing.T) {
		data := buildZip(t, map[string]string{"posts.csv": postsCSV})
		_, err := Load(data, substackProfile())
		assert.ErrorIs(t, err, ErrMissingSubscribers)
	})

	t.Run("missing created_at column", func(t *testing.T) {
		data := buildZip(t, map[string]string{
			"subscribers.csv": "email\na@x.io\n",
			"posts.csv":       postsCSV,
		})
		_, err := Load(data, substackProfile())
		assert.ErrorIs(t, err, ErrMissingColumn)
	})

	t.Run("macosx member never wins", func(t *testing.T) {
		data := buildZip(t, map[string]string{
			"__MACOSX/posts.csv": "garbage",
			"posts.csv":          postsCSV,
			"subscribers.csv":    subscribersCSV,
		})
		ds, err := Load(data, substackProfile())
		require.NoError(t, err)
		assert.Equal(t, "posts.csv", ds.PostMember)
	})
}

func TestParseSubscribersWithoutPaidFlag(t *testing.T) {
	csv := "email,created_at\na@x.io,2024-01-01\nb@x.io,2024-01-02\n"
	data := buildZip(t, map[string]string{
		"subscribers.csv": csv,
		"posts.csv":       postsCSV,
	})
	ds, err := Load(data, substackProfile())
	require.NoError(t, err)
	assert.False(t, ds.HasPaidFlag)
	assert.Zero(t, ds.PaidCount())
}

func TestHeaderIndexStripsBOM(t *testing.T) {
	// Excel 导出的 CSV 常带 UTF-8 BOM，首列列名不应因此失配
	csv := "\ufeffemail,created_at\na@x.io,2024-01-01\n"
	data := buildZip(t, map[string]string{
		"subscribers.csv": csv,
		"posts.csv":       postsCSV,
	})
	ds, err := Load(data, substackProfile())
	require.NoError(t, err)
	require.Len(t, ds.Subscribers, 1)
	assert.Equal(t, "a@x.io", ds.Subscribers[0].Email)
}

func TestParseFlexibleTime(t *testing.T) {
	cases := []string{
		"2024-03-01T10:20:30Z",
		"2024-03-01T10:20:30.123Z",
		"2024-03-01 10:20:30",
		"2024-03-01",
	}
	for _, raw := range cases {
		ts, err := parseFlexibleTime(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, 2024, ts.Year())
	}
	_, err := parseFlexibleTime("tomorrow")
	assert.Error(t, err)
}

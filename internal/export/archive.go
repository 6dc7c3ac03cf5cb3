package export

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"letterpulse/internal/export/profile"

	"golang.org/x/sync/errgroup"
)

// 解析失败的哨兵错误，HTTP 层据此映射为 400。
var (
	ErrBadArchive         = errors.New("上传的文件不是有效的 zip 压缩包")
	ErrMissingSubscribers = errors.New("压缩包中未找到订阅者表")
	ErrMissingPosts       = errors.New("压缩包中未找到文章表")
	ErrMissingColumn      = errors.New("导出表缺少必需列")
)

// Load 解析导出包：定位两张 CSV 表并并发解析。
func Load(data []byte, p profile.Profile) (*Dataset, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArchive, err)
	}

	subFile := findMember(zr.File, p.Subscribers.Members)
	if subFile == nil {
		return nil, fmt.Errorf("%w（期望 %s）", ErrMissingSubscribers, strings.Join(p.Subscribers.Members, " / "))
	}
	postFile := findMember(zr.File, p.Posts.Members)
	if postFile == nil {
		return nil, fmt.Errorf("%w（期望 %s）", ErrMissingPosts, strings.Join(p.Posts.Members, " / "))
	}

	ds := &Dataset{
		SubscriberMember: subFile.Name,
		PostMember:       postFile.Name,
	}
	var group errgroup.Group
	group.Go(func() error {
		rc, err := subFile.Open()
		if err != nil {
			return fmt.Errorf("打开 %s 失败: %w", subFile.Name, err)
		}
		defer rc.Close()
		subs, hasPaid, err := parseSubscribers(rc, p.Subscribers)
		if err != nil {
			return err
		}
		ds.Subscribers = subs
		ds.HasPaidFlag = hasPaid
		return nil
	})
	group.Go(func() error {
		rc, err := postFile.Open()
		if err != nil {
			return fmt.Errorf("打开 %s 失败: %w", postFile.Name, err)
		}
		defer rc.Close()
		posts, err := parsePosts(rc, p.Posts)
		if err != nil {
			return err
		}
		ds.Posts = posts
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(ds.Subscribers, func(i, j int) bool {
		return ds.Subscribers[i].CreatedAt.Before(ds.Subscribers[j].CreatedAt)
	})
	sort.SliceStable(ds.Posts, func(i, j int) bool {
		return ds.Posts[i].Date.Before(ds.Posts[j].Date)
	})
	return ds, nil
}

// findMember 按匹配规则定位 zip 成员：以 ".csv" 结尾的匹配串按后缀比较，
// 其余按子串比较（仍要求成员是 CSV），并跳过 __MACOSX 资源分支。
func findMember(files []*zip.File, matchers []string) *zip.File {
	for _, matcher := range matchers {
		matcher = strings.ToLower(strings.TrimSpace(matcher))
		if matcher == "" {
			continue
		}
		for _, f := range files {
			name := strings.ToLower(f.Name)
			if strings.Contains(name, "__macosx") || !strings.HasSuffix(name, ".csv") {
				continue
			}
			if strings.HasSuffix(matcher, ".csv") {
				if strings.HasSuffix(name, matcher) {
					return f
				}
				continue
			}
			if strings.Contains(name, matcher) {
				return f
			}
		}
	}
	return nil
}

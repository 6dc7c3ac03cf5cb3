package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"letterpulse/internal/export/profile"
)

// 导出文件中常见的几种时间写法。
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseFlexibleTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("日期为空")
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("无法解析日期 %q", raw)
}

// headerIndex 构建大小写不敏感的表头索引。
func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, col := range header {
		col = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))
		if col == "" {
			continue
		}
		if _, dup := idx[col]; !dup {
			idx[col] = i
		}
	}
	return idx
}

func columnOf(idx map[string]int, name string) (int, bool) {
	if strings.TrimSpace(name) == "" {
		return 0, false
	}
	i, ok := idx[strings.ToLower(strings.TrimSpace(name))]
	return i, ok
}

func cell(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func isTrue(raw string) bool {
	return strings.EqualFold(strings.TrimSpace(raw), "true")
}

// parseSubscribers 按映射解析订阅者表。返回订阅者列表与付费列是否存在。
func parseSubscribers(r io.Reader, m profile.SubscriberMapping) ([]Subscriber, bool, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, false, fmt.Errorf("订阅者表读取失败: %w", err)
	}
	idx := headerIndex(header)
	createdAt, ok := columnOf(idx, m.CreatedAt)
	if !ok {
		return nil, false, fmt.Errorf("%w: 订阅者表缺少 %q 列", ErrMissingColumn, m.CreatedAt)
	}
	paidCol, hasPaid := columnOf(idx, m.PaidFlag)
	emailCol, hasEmail := columnOf(idx, m.Email)

	var subs []Subscriber
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, fmt.Errorf("订阅者表第 %d 行损坏: %w", line+1, err)
		}
		line++
		ts, err := parseFlexibleTime(cell(record, createdAt))
		if err != nil {
			return nil, false, fmt.Errorf("订阅者表第 %d 行: %w", line, err)
		}
		sub := Subscriber{CreatedAt: ts}
		if hasEmail {
			sub.Email = cell(record, emailCol)
		}
		if hasPaid {
			sub.Paid = isTrue(cell(record, paidCol))
		}
		subs = append(subs, sub)
	}
	return subs, hasPaid, nil
}

// parsePosts 按映射解析文章表，过滤未发布的文章。
func parsePosts(r io.Reader, m profile.PostMapping) ([]Post, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("文章表读取失败: %w", err)
	}
	idx := headerIndex(header)
	dateCol, ok := columnOf(idx, m.Date)
	if !ok {
		return nil, fmt.Errorf("%w: 文章表缺少 %q 列", ErrMissingColumn, m.Date)
	}
	titleCol, ok := columnOf(idx, m.Title)
	if !ok {
		return nil, fmt.Errorf("%w: 文章表缺少 %q 列", ErrMissingColumn, m.Title)
	}
	publishedCol, hasPublished := columnOf(idx, m.PublishedFlag)
	typeCol, hasType := columnOf(idx, m.Type)
	audienceCol, hasAudience := columnOf(idx, m.Audience)

	var posts []Post
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("文章表第 %d 行损坏: %w", line+1, err)
		}
		line++
		if hasPublished && !isTrue(cell(record, publishedCol)) {
			continue
		}
		ts, err := parseFlexibleTime(cell(record, dateCol))
		if err != nil {
			return nil, fmt.Errorf("文章表第 %d 行: %w", line, err)
		}
		post := Post{Title: cell(record, titleCol), Date: ts}
		if hasType {
			post.Type = cell(record, typeCol)
		}
		if hasAudience {
			post.Audience = cell(record, audienceCol)
		}
		posts = append(posts, post)
	}
	return posts, nil
}

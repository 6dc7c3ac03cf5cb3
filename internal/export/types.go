package export

import "time"

// Subscriber 对应订阅者表的一行（按 created_at 排序后构成累计序列）。
type Subscriber struct {
	Email     string
	CreatedAt time.Time
	Paid      bool
}

// Post 对应文章表中一篇已发布的文章。
type Post struct {
	Title    string
	Date     time.Time
	Type     string
	Audience string
}

// Dataset 是一次导出包解析出的全部数据，仅存在于进程内存。
type Dataset struct {
	Subscribers []Subscriber
	Posts       []Post

	// HasPaidFlag 标记订阅者表是否带付费列；缺失时转化率展示为 N/A。
	HasPaidFlag bool

	SubscriberMember string
	PostMember       string
}

// PaidCount 统计付费订阅者数量。
func (d *Dataset) PaidCount() int {
	if d == nil || !d.HasPaidFlag {
		return 0
	}
	n := 0
	for _, s := range d.Subscribers {
		if s.Paid {
			n++
		}
	}
	return n
}

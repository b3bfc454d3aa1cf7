package shared

const (
	// DefaultPageSize 列表查询默认每页条数
	DefaultPageSize = 20
	// MaxPageSize 单页上限，防止对账审计明细一次拉全表
	MaxPageSize = 100
)

// NormalizePagination 归一化分页参数
func NormalizePagination(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case pageSize <= 0:
		pageSize = DefaultPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}
	return page, pageSize
}

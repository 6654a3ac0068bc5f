package activity

import "errors"

// 反序列化错误：在任何业务逻辑运行前拒绝
var (
	// ErrMissingType 活动缺少 type 字段
	ErrMissingType = errors.New("activity: missing type")
	// ErrNotObject 请求体不是 JSON 对象
	ErrNotObject = errors.New("activity: body is not a JSON object")
	// ErrMalformed 请求体无法解析
	ErrMalformed = errors.New("activity: malformed body")
	// ErrBadTimestamp 时间字段不是可识别的 ISO-8601 字符串
	ErrBadTimestamp = errors.New("activity: unrecognized timestamp")
)

// IsDecodeError 判断是否为反序列化类错误（应映射为 400）
func IsDecodeError(err error) bool {
	return errors.Is(err, ErrMissingType) ||
		errors.Is(err, ErrNotObject) ||
		errors.Is(err, ErrMalformed) ||
		errors.Is(err, ErrBadTimestamp)
}

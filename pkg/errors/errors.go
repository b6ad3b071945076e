package errors

// CodeSuccess 成功码
const (
	CodeSuccess = 200
)

// HTTP层错误码 (400-599)
const (
	CodeInvalidParam = 400
	CodeUnauthorized = 401
	CodeForbidden    = 403
	CodeNotFound     = 404
	CodeConflict     = 409
	CodeServerError  = 500
)

// 业务错误码：前三位为对应的HTTP状态码，收银端据此区分处理
const (
	CodeInvalidCredentials = 40101 // 用户名或密码错误
	CodeAccountInactive    = 40102 // 账户未激活或已停用
	CodeEntityInactive     = 40103 // 经营主体已停用

	CodeDuplicate          = 40901 // 记录已存在
	CodeInvalidState       = 40902 // 状态不允许
	CodeInUse              = 40903 // 记录被引用
	CodeInsufficientStock  = 40904 // 库存不足
	CodeSessionAlreadyOpen = 40905 // 已有打开的收银会话
	CodeNoOpenSession      = 40906 // 没有打开的收银会话
)

// HTTPStatus 业务码对应的HTTP状态码，无法识别时为500
func HTTPStatus(code int) int {
	if code >= 10000 {
		code /= 100
	}
	if code < 400 || code > 599 {
		return CodeServerError
	}
	return code
}

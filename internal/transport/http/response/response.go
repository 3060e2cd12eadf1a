package response

import "net/http"

type ErrorBody struct {
	Error string `json:"error"`
}

// Error 失败响应；msg 为空时用状态码的标准文案
func Error(status int, msg string) ErrorBody {
	if msg == "" {
		msg = http.StatusText(status)
	}
	return ErrorBody{Error: msg}
}

// BatchFailure 批量中途失败：Count 为已落库条数
type BatchFailure struct {
	Error string `json:"error"`
	Count int    `json:"count"`
}

func BatchError(msg string, committed int) BatchFailure {
	return BatchFailure{Error: msg, Count: committed}
}

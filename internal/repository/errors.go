package repository

import "errors"

// ErrNotFound 记录不存在（供上层区分 404 与持久化失败）
var ErrNotFound = errors.New("not found")

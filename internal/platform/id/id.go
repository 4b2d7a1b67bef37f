package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New 生成带前缀的简易唯一 ID（chk_/vis_/evt_/doc_/sig_/req_/job_）：
// 前缀 + 毫秒时间戳 + 6 字节随机后缀。
// 单机现场部署下足够唯一，前缀让审计日志与 folio 查询一眼可辨记录类型。
func New(prefix string) string {
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixMilli(), hex.EncodeToString(buf))
}

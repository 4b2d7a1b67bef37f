package webapp

import (
	"fmt"
	"net/http"
	"path/filepath"
)

// serveFile 以附件形式返回磁盘文件（保养单 PDF / 巡访 ZIP 的下载出口）。
// downloadBase 非空时用它重写下载文件名并保留原扩展名，
// 避免把带时间戳的内部落盘名直接暴露给客户。
func serveFile(w http.ResponseWriter, r *http.Request, path string, downloadBase string) {
	name := filepath.Base(path)
	if downloadBase != "" {
		ext := filepath.Ext(name)
		name = downloadBase + ext
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, path)
}

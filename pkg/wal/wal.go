// Package wal 是追加寫入的 JSON Lines 日誌，memory store 以它在重啟後重建狀態。
package wal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
)

// FileMode rw------- 帳務資料只允許擁有者讀寫
const FileMode fs.FileMode = 0600

// WAL 每筆紀錄是一行 JSON，寫入後 fsync
type WAL struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	records int
	noSync  bool
}

type Option func(*WAL)

// WithoutSync 寫入後不呼叫 fsync，只適合測試
func WithoutSync() Option {
	return func(w *WAL) {
		w.noSync = true
	}
}

// Open 開啟或建立 WAL 檔案 (O_APPEND: 寫入永遠接在檔尾)
func Open(path string, opts ...Option) (*WAL, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, FileMode)
	if err != nil {
		return nil, fmt.Errorf("open wal %s: %w", path, err)
	}
	w := &WAL{file: file, path: path}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Append 把 v 編碼成一行 JSON 並以單次 write 寫入
func (w *WAL) Append(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode wal record: %w", err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.Write(line); err != nil {
		return err
	}
	if !w.noSync {
		if err := w.file.Sync(); err != nil {
			return err
		}
	}
	w.records++
	return nil
}

// Replay 從檔頭依序把每筆紀錄交給 fn，fn 回傳錯誤時中止。
//
// 檔尾沒有換行的殘缺紀錄 (寫到一半當機) 會被截掉，之後的 Append 從完整紀錄之後接續。
func (w *WAL) Replay(fn func(raw []byte) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	reader := bufio.NewReader(w.file)
	var offset int64
	n := 0
	for {
		line, err := reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			if len(line) > 0 {
				if err := w.file.Truncate(offset); err != nil {
					return fmt.Errorf("truncate torn wal tail: %w", err)
				}
			}
			break
		}
		if err != nil {
			return err
		}
		offset += int64(len(line))
		raw := bytes.TrimSpace(line)
		if len(raw) == 0 {
			continue
		}
		n++
		if err := fn(raw); err != nil {
			return fmt.Errorf("wal record %d: %w", n, err)
		}
	}
	w.records = n
	return nil
}

// Records 目前檔案中的完整紀錄數 (Replay 之後才準確)
func (w *WAL) Records() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.records
}

func (w *WAL) Path() string {
	return w.path
}

func (w *WAL) Close() error {
	return w.file.Close()
}

// internal/storage/pending_log.go
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EntityKind 待确认日志中的实体类别
type EntityKind string

const (
	KindScene     EntityKind = "scene"
	KindCharacter EntityKind = "character"
	KindLocation  EntityKind = "location"
	KindProp      EntityKind = "prop"
)

// PendingEntry 一条近期写入记录
type PendingEntry struct {
	Entity    json.RawMessage `json:"entity"`
	WrittenAt time.Time       `json:"written_at"`
}

// screenplayLog 单个剧本的待确认状态
type screenplayLog struct {
	Writes  map[EntityKind]map[string]PendingEntry `json:"writes"`
	Deletes map[EntityKind]map[string]time.Time    `json:"deletes"`
}

func newScreenplayLog() *screenplayLog {
	return &screenplayLog{
		Writes:  make(map[EntityKind]map[string]PendingEntry),
		Deletes: make(map[EntityKind]map[string]time.Time),
	}
}

// PendingLog 按剧本维度持久化"最终一致窗口补丁"：
// 近期创建/更新的实体快照，以及近期删除的实体id墓碑。
// 它不是事实来源，只用于桥接远端读写滞后；超过新鲜度窗口的条目被修剪以限制体积。
type PendingLog struct {
	baseDir string
	window  time.Duration

	mutex sync.RWMutex
	logs  map[string]*screenplayLog // screenplayID -> 状态

	fileLocks sync.Map // 文件级别锁 path -> *sync.Mutex
}

// NewPendingLog 创建待确认日志
func NewPendingLog(baseDir string, window time.Duration) (*PendingLog, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("创建日志目录失败: %w", err)
	}

	if window <= 0 {
		window = 5 * time.Minute
	}

	return &PendingLog{
		baseDir: baseDir,
		window:  window,
		logs:    make(map[string]*screenplayLog),
	}, nil
}

// Window 返回新鲜度窗口
func (p *PendingLog) Window() time.Duration {
	return p.window
}

func (p *PendingLog) getFileLock(path string) *sync.Mutex {
	value, _ := p.fileLocks.LoadOrStore(path, &sync.Mutex{})
	return value.(*sync.Mutex)
}

func (p *PendingLog) filePath(screenplayID string) string {
	return filepath.Join(p.baseDir, fmt.Sprintf("pending_%s.json", screenplayID))
}

// getLog 加载（或初始化）指定剧本的日志，调用方需持有 p.mutex 写锁
func (p *PendingLog) getLogLocked(screenplayID string) *screenplayLog {
	if log, exists := p.logs[screenplayID]; exists {
		return log
	}

	log := newScreenplayLog()

	// 尝试从磁盘恢复
	data, err := os.ReadFile(p.filePath(screenplayID))
	if err == nil {
		var saved screenplayLog
		if json.Unmarshal(data, &saved) == nil {
			if saved.Writes != nil {
				log.Writes = saved.Writes
			}
			if saved.Deletes != nil {
				log.Deletes = saved.Deletes
			}
		}
	}

	p.logs[screenplayID] = log
	return log
}

// RecordWrite 记录一次近期创建/更新
func (p *PendingLog) RecordWrite(screenplayID string, kind EntityKind, id string, entity interface{}) error {
	raw, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("序列化待确认实体失败: %w", err)
	}

	p.mutex.Lock()
	log := p.getLogLocked(screenplayID)
	if log.Writes[kind] == nil {
		log.Writes[kind] = make(map[string]PendingEntry)
	}
	log.Writes[kind][id] = PendingEntry{Entity: raw, WrittenAt: time.Now()}
	// 写入即撤销同id的墓碑（重建同名实体的场景）
	if log.Deletes[kind] != nil {
		delete(log.Deletes[kind], id)
	}
	p.pruneLocked(log)
	p.mutex.Unlock()

	return p.persist(screenplayID)
}

// RecordDelete 记录一次近期删除（墓碑）
func (p *PendingLog) RecordDelete(screenplayID string, kind EntityKind, id string) error {
	p.mutex.Lock()
	log := p.getLogLocked(screenplayID)
	if log.Deletes[kind] == nil {
		log.Deletes[kind] = make(map[string]time.Time)
	}
	log.Deletes[kind][id] = time.Now()
	if log.Writes[kind] != nil {
		delete(log.Writes[kind], id)
	}
	p.pruneLocked(log)
	p.mutex.Unlock()

	return p.persist(screenplayID)
}

// RecentWrites 返回窗口内的近期写入快照
func (p *PendingLog) RecentWrites(screenplayID string, kind EntityKind) map[string]PendingEntry {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	log := p.getLogLocked(screenplayID)
	p.pruneLocked(log)

	result := make(map[string]PendingEntry, len(log.Writes[kind]))
	for id, entry := range log.Writes[kind] {
		result[id] = entry
	}
	return result
}

// DeletedIDs 返回窗口内的墓碑id集合
func (p *PendingLog) DeletedIDs(screenplayID string, kind EntityKind) map[string]bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	log := p.getLogLocked(screenplayID)
	p.pruneLocked(log)

	result := make(map[string]bool, len(log.Deletes[kind]))
	for id := range log.Deletes[kind] {
		result[id] = true
	}
	return result
}

// pruneLocked 修剪超过新鲜度窗口的条目，调用方需持有写锁
func (p *PendingLog) pruneLocked(log *screenplayLog) {
	cutoff := time.Now().Add(-p.window)

	for kind, entries := range log.Writes {
		for id, entry := range entries {
			if entry.WrittenAt.Before(cutoff) {
				delete(entries, id)
			}
		}
		if len(entries) == 0 {
			delete(log.Writes, kind)
		}
	}

	for kind, tombstones := range log.Deletes {
		for id, deletedAt := range tombstones {
			if deletedAt.Before(cutoff) {
				delete(tombstones, id)
			}
		}
		if len(tombstones) == 0 {
			delete(log.Deletes, kind)
		}
	}
}

// persist 原子性落盘
func (p *PendingLog) persist(screenplayID string) error {
	p.mutex.RLock()
	log, exists := p.logs[screenplayID]
	var data []byte
	var err error
	if exists {
		data, err = json.MarshalIndent(log, "", "  ")
	}
	p.mutex.RUnlock()

	if !exists {
		return nil
	}
	if err != nil {
		return fmt.Errorf("序列化待确认日志失败: %w", err)
	}

	path := p.filePath(screenplayID)
	lock := p.getFileLock(path)
	lock.Lock()
	defer lock.Unlock()

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("保存临时文件失败: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("保存待确认日志失败: %w", err)
	}

	return nil
}

// Clear 清空指定剧本的日志（全量重建后调用）
func (p *PendingLog) Clear(screenplayID string) error {
	p.mutex.Lock()
	p.logs[screenplayID] = newScreenplayLog()
	p.mutex.Unlock()

	return p.persist(screenplayID)
}

package cache

// entryStore 按键保存条目并维护总大小。
// 不做任何加锁，由 Cache 在同一把锁下同时修改 store 与 tagIndex。
type entryStore struct {
	entries   map[string]*CacheEntry
	totalSize int64
}

func newEntryStore() *entryStore {
	return &entryStore{
		entries: make(map[string]*CacheEntry),
	}
}

func (s *entryStore) get(key string) *CacheEntry {
	return s.entries[key]
}

// put 写入条目，返回被替换的旧条目（如有）
func (s *entryStore) put(e *CacheEntry) *CacheEntry {
	old, exists := s.entries[e.Key]
	if exists {
		s.totalSize -= old.Size
	}
	s.entries[e.Key] = e
	s.totalSize += e.Size
	if !exists {
		return nil
	}
	return old
}

func (s *entryStore) remove(key string) (*CacheEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	delete(s.entries, key)
	s.totalSize -= e.Size
	return e, true
}

func (s *entryStore) keys() []string {
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	return keys
}

func (s *entryStore) len() int {
	return len(s.entries)
}

func (s *entryStore) size() int64 {
	return s.totalSize
}

// recount 全量重新求和，仅用于一致性自检
func (s *entryStore) recount() int64 {
	var sum int64
	for _, e := range s.entries {
		sum += e.Size
	}
	return sum
}

func (s *entryStore) reset() {
	s.entries = make(map[string]*CacheEntry)
	s.totalSize = 0
}

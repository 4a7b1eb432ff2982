package workspace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"aira/internal/logging"
)

var emptyContent = json.RawMessage(`{}`)

// Store owns the workspace state. Every mutation swaps in a complete new State,
// so readers never observe a partial update. Files and folders are persisted in
// the background after each committed change; tabs live in memory only.
type Store struct {
	mu        sync.RWMutex
	state     State
	persister Persister
	logger    *log.Logger
	ids       *idSource
	now       func() time.Time

	subsMu  sync.Mutex
	subs    map[int]func(State)
	nextSub int

	saveMu    sync.Mutex
	saveCond  *sync.Cond
	reqGen    uint64
	savedGen  uint64
	lastSaved []byte
	closed    bool
	saveCh    chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// NewStore loads the persisted records once and starts the persistence worker.
// A nil persister keeps everything in memory.
func NewStore(p Persister, logger *log.Logger) (*Store, error) {
	s := &Store{
		persister: p,
		logger:    logging.OrDiscard(logger),
		ids:       newIDSource(),
		now:       time.Now,
		subs:      make(map[int]func(State)),
		saveCh:    make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	s.saveCond = sync.NewCond(&s.saveMu)
	if p != nil {
		recs, err := p.Load()
		if err != nil {
			return nil, fmt.Errorf("load workspace: %w", err)
		}
		recs = normalizeRecords(recs)
		s.state.Files = recs.Files
		s.state.Folders = recs.Folders
		for _, f := range recs.Files {
			s.ids.observe(f.ID)
		}
		for _, f := range recs.Folders {
			s.ids.observe(f.ID)
		}
		s.lastSaved, _ = json.Marshal(recs)
		s.logger.Printf("workspace loaded: %d files, %d folders", len(recs.Files), len(recs.Folders))
	}
	if s.state.Files == nil {
		s.state.Files = []File{}
	}
	if s.state.Folders == nil {
		s.state.Folders = []Folder{}
	}
	s.state.OpenTabs = []Tab{}
	go s.persistLoop()
	return s, nil
}

// State returns a copy of the full workspace state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Files returns a copy of the file list in creation order.
func (s *Store) Files() []File {
	return s.State().Files
}

// Folders returns a copy of the folder list.
func (s *Store) Folders() []Folder {
	return s.State().Folders
}

// File looks up one file by id.
func (s *Store) File(id string) (File, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.state.fileIndex(id); i >= 0 {
		return s.state.Files[i].clone(), true
	}
	return File{}, false
}

// FindFile resolves a reference typed by a user: an exact id first, then a
// case-insensitive name.
func (s *Store) FindFile(ref string) (File, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return File{}, false
	}
	if f, ok := s.File(ref); ok {
		return f, true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.state.Files {
		if strings.EqualFold(f.Name, ref) {
			return f.clone(), true
		}
	}
	return File{}, false
}

// FindFolder resolves a folder by id or case-insensitive name.
func (s *Store) FindFolder(ref string) (Folder, bool) {
	ref = strings.TrimSpace(ref)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.state.folderIndex(ref); i >= 0 {
		return s.state.Folders[i], true
	}
	for _, f := range s.state.Folders {
		if strings.EqualFold(f.Name, ref) {
			return f, true
		}
	}
	return Folder{}, false
}

// Subscribe registers fn to receive the state after every committed change.
// Callbacks run outside the store lock and may call back into the store.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subsMu.Unlock()
	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

// CreateFile inserts an empty file, opens it in a new tab and makes it active.
func (s *Store) CreateFile(name string, kind Kind) (File, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return File{}, ErrEmptyName
	}
	if kind != KindDoc && kind != KindSheet {
		return File{}, ErrInvalidKind
	}
	file := File{
		ID:        s.ids.next(),
		Name:      name,
		Kind:      kind,
		Content:   append(json.RawMessage(nil), emptyContent...),
		CreatedAt: s.timestamp(),
	}
	s.update(func(st *State) bool {
		st.Files = append(st.Files, file)
		st.OpenTabs = append(st.OpenTabs, Tab{ID: file.ID, Name: file.Name, Kind: file.Kind})
		st.ActiveTab = strPtr(file.ID)
		return true
	})
	s.logger.Printf("created %s %q (%s)", kind, name, file.ID)
	return file.clone(), nil
}

// CreateFolder inserts a folder. Nothing is opened.
func (s *Store) CreateFolder(name string) (Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Folder{}, ErrEmptyName
	}
	folder := Folder{ID: s.ids.next(), Name: name, CreatedAt: s.timestamp()}
	s.update(func(st *State) bool {
		st.Folders = append(st.Folders, folder)
		return true
	})
	s.logger.Printf("created folder %q (%s)", name, folder.ID)
	return folder, nil
}

// DeleteFile removes the file and its tab, clearing the active tab if it
// pointed at the file. Unknown ids are ignored.
func (s *Store) DeleteFile(id string) {
	s.update(func(st *State) bool {
		i := st.fileIndex(id)
		if i < 0 {
			return false
		}
		st.Files = append(st.Files[:i], st.Files[i+1:]...)
		st.OpenTabs = removeTab(st.OpenTabs, id)
		if st.Active() == id {
			st.ActiveTab = nil
		}
		return true
	})
}

// DeleteFolder removes the folder and moves its files to the root.
func (s *Store) DeleteFolder(id string) {
	s.update(func(st *State) bool {
		i := st.folderIndex(id)
		if i < 0 {
			return false
		}
		st.Folders = append(st.Folders[:i], st.Folders[i+1:]...)
		for j := range st.Files {
			if p := st.Files[j].ParentFolderID; p != nil && *p == id {
				st.Files[j].ParentFolderID = nil
			}
		}
		return true
	})
}

// UpdateFile replaces a file's content snapshot. Unknown ids are ignored and
// the content shape is not validated.
func (s *Store) UpdateFile(id string, content json.RawMessage) {
	content = compactContent(content)
	s.update(func(st *State) bool {
		i := st.fileIndex(id)
		if i < 0 {
			return false
		}
		if bytes.Equal(st.Files[i].Content, content) {
			return false
		}
		st.Files[i].Content = content
		return true
	})
}

// UpdateFileParent moves a file into a folder, or to the root when parentID is
// nil or empty. Folders that do not exist are rejected.
func (s *Store) UpdateFileParent(id string, parentID *string) error {
	if parentID != nil && strings.TrimSpace(*parentID) == "" {
		parentID = nil
	}
	var err error
	s.update(func(st *State) bool {
		i := st.fileIndex(id)
		if i < 0 {
			err = fmt.Errorf("%w: %s", ErrUnknownFile, id)
			return false
		}
		if parentID != nil {
			if st.folderIndex(*parentID) < 0 {
				err = fmt.Errorf("%w: %s", ErrUnknownFolder, *parentID)
				return false
			}
			st.Files[i].ParentFolderID = strPtr(*parentID)
		} else {
			st.Files[i].ParentFolderID = nil
		}
		return true
	})
	return err
}

// OpenTab focuses the file's tab, appending one if needed. It reports false
// and leaves the state untouched when the file is unknown.
func (s *Store) OpenTab(id string) bool {
	opened := false
	s.update(func(st *State) bool {
		i := st.fileIndex(id)
		if i < 0 {
			return false
		}
		opened = true
		if !st.TabOpen(id) {
			f := st.Files[i]
			st.OpenTabs = append(st.OpenTabs, Tab{ID: f.ID, Name: f.Name, Kind: f.Kind})
		}
		if st.Active() == id {
			return false
		}
		st.ActiveTab = strPtr(id)
		return true
	})
	return opened
}

// CloseTab removes a tab. Closing the active tab promotes the first remaining
// tab, or leaves none active.
func (s *Store) CloseTab(id string) {
	s.update(func(st *State) bool {
		if !st.TabOpen(id) {
			return false
		}
		st.OpenTabs = removeTab(st.OpenTabs, id)
		if st.Active() == id {
			if len(st.OpenTabs) > 0 {
				st.ActiveTab = strPtr(st.OpenTabs[0].ID)
			} else {
				st.ActiveTab = nil
			}
		}
		return true
	})
}

// SetActiveTab focuses an already open tab.
func (s *Store) SetActiveTab(id string) error {
	var err error
	s.update(func(st *State) bool {
		if !st.TabOpen(id) {
			err = fmt.Errorf("%w: %s", ErrTabNotOpen, id)
			return false
		}
		if st.Active() == id {
			return false
		}
		st.ActiveTab = strPtr(id)
		return true
	})
	return err
}

// Reload re-reads the persisted records after another process changed them.
// It does nothing while a local save is pending or when the records match the
// last local save.
func (s *Store) Reload() error {
	if s.persister == nil {
		return nil
	}
	s.saveMu.Lock()
	gen := s.reqGen
	pending := s.savedGen < gen
	last := s.lastSaved
	s.saveMu.Unlock()
	if pending {
		logging.DevLog("workspace reload skipped: local save pending")
		return nil
	}
	recs, err := s.persister.Load()
	if err != nil {
		return fmt.Errorf("reload workspace: %w", err)
	}
	recs = normalizeRecords(recs)
	data, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	if bytes.Equal(data, last) {
		return nil
	}
	for _, f := range recs.Files {
		s.ids.observe(f.ID)
	}
	for _, f := range recs.Folders {
		s.ids.observe(f.ID)
	}
	s.mu.Lock()
	// update bumps reqGen while holding mu, so a change committed during the
	// load is visible here.
	s.saveMu.Lock()
	changed := s.reqGen != gen
	if !changed {
		s.lastSaved = data
	}
	s.saveMu.Unlock()
	if changed {
		s.mu.Unlock()
		logging.DevLog("workspace reload dropped: local change during load")
		return nil
	}
	next := s.state.clone()
	next.Files = recs.Files
	next.Folders = recs.Folders
	kept := next.OpenTabs[:0]
	for _, t := range next.OpenTabs {
		if next.fileIndex(t.ID) >= 0 {
			kept = append(kept, t)
		}
	}
	next.OpenTabs = kept
	if active := next.Active(); active != "" && !next.TabOpen(active) {
		if len(next.OpenTabs) > 0 {
			next.ActiveTab = strPtr(next.OpenTabs[0].ID)
		} else {
			next.ActiveTab = nil
		}
	}
	s.state = next
	snapshot := next.clone()
	s.mu.Unlock()

	s.logger.Printf("workspace reloaded from storage: %d files, %d folders", len(recs.Files), len(recs.Folders))
	s.notify(snapshot)
	return nil
}

// Flush blocks until every change committed so far has been handed to the persister.
func (s *Store) Flush() {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	target := s.reqGen
	for s.savedGen < target && !s.closed {
		s.saveCond.Wait()
	}
}

// Close writes any pending change and stops the persistence worker.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		<-s.doneCh
	})
	return nil
}

func (s *Store) update(fn func(*State) bool) {
	s.mu.Lock()
	next := s.state.clone()
	if !fn(&next) {
		s.mu.Unlock()
		return
	}
	s.state = next
	snapshot := next.clone()
	queued := s.bumpSaveGen()
	s.mu.Unlock()

	if queued {
		s.signalSave()
	}
	s.notify(snapshot)
}

func (s *Store) notify(st State) {
	s.subsMu.Lock()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subsMu.Unlock()
	for _, fn := range fns {
		fn(st.clone())
	}
}

// bumpSaveGen records that the state changed since the last save.
func (s *Store) bumpSaveGen() bool {
	if s.persister == nil {
		return false
	}
	s.saveMu.Lock()
	s.reqGen++
	s.saveMu.Unlock()
	return true
}

func (s *Store) signalSave() {
	select {
	case s.saveCh <- struct{}{}:
	default:
	}
}

func (s *Store) persistLoop() {
	defer close(s.doneCh)
	for {
		select {
		case <-s.saveCh:
			s.persistOnce()
		case <-s.stopCh:
			s.persistOnce()
			s.saveMu.Lock()
			s.closed = true
			s.saveCond.Broadcast()
			s.saveMu.Unlock()
			return
		}
	}
}

func (s *Store) persistOnce() {
	if s.persister == nil {
		return
	}
	s.saveMu.Lock()
	gen := s.reqGen
	last := s.lastSaved
	s.saveMu.Unlock()
	if gen == 0 && last != nil {
		return
	}

	s.mu.RLock()
	recs := Records{Files: s.state.clone().Files, Folders: append([]Folder(nil), s.state.Folders...)}
	s.mu.RUnlock()

	data, err := json.Marshal(recs)
	if err != nil {
		logging.ErrorLog("encode workspace records: %v", err)
	} else if !bytes.Equal(data, last) {
		if err := s.persister.Save(recs); err != nil {
			// The in-memory state stays authoritative; the next change retries.
			logging.ErrorLog("persist workspace: %v", err)
			s.logger.Printf("persist workspace failed: %v", err)
		} else {
			s.saveMu.Lock()
			s.lastSaved = data
			s.saveMu.Unlock()
			logging.DevLog("workspace persisted (%d bytes)", len(data))
		}
	}

	s.saveMu.Lock()
	if gen > s.savedGen {
		s.savedGen = gen
	}
	s.saveCond.Broadcast()
	s.saveMu.Unlock()
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func removeTab(tabs []Tab, id string) []Tab {
	out := tabs[:0]
	for _, t := range tabs {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}

// compactContent normalizes a snapshot to compact JSON; invalid or empty input
// becomes the empty object.
func compactContent(content json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return append(json.RawMessage(nil), emptyContent...)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		logging.ErrorLog("discarding malformed content snapshot: %v", err)
		return append(json.RawMessage(nil), emptyContent...)
	}
	return json.RawMessage(buf.Bytes())
}

func normalizeRecords(recs Records) Records {
	if recs.Files == nil {
		recs.Files = []File{}
	}
	if recs.Folders == nil {
		recs.Folders = []Folder{}
	}
	for i := range recs.Files {
		recs.Files[i].Content = compactContent(recs.Files[i].Content)
	}
	return recs
}

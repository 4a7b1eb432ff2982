package editor

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
)

const (
	defaultSheetID   = "sheet-01"
	defaultSheetName = "Sheet1"
	defaultRowCount  = 1000
	defaultColCount  = 20
)

// SheetEngine edits workbooks of the form
// {"id", "sheetOrder": [...], "sheets": {id: {"rowCount", "columnCount", "cellData"}}}.
// Commands target sheetOrder[0].
type SheetEngine struct{}

type sheetInstance struct {
	mu       sync.Mutex
	fields   map[string]json.RawMessage
	order    []string
	sheets   map[string]*worksheet
	disposed bool
}

type worksheet struct {
	fields   map[string]json.RawMessage
	rowCount int
	colCount int
	// row -> col -> cell object
	cells map[int]map[int]map[string]json.RawMessage
}

func (SheetEngine) Load(fileID string, snapshot json.RawMessage) (Instance, error) {
	s := &sheetInstance{fields: map[string]json.RawMessage{}, sheets: map[string]*worksheet{}}
	if err := json.Unmarshal(snapshot, &s.fields); err != nil {
		return nil, fmt.Errorf("decode workbook: %w", err)
	}
	if s.fields == nil {
		s.fields = map[string]json.RawMessage{}
	}
	if raw, ok := s.fields["sheetOrder"]; ok {
		if err := json.Unmarshal(raw, &s.order); err != nil {
			return nil, fmt.Errorf("decode sheet order: %w", err)
		}
	}
	var rawSheets map[string]json.RawMessage
	if raw, ok := s.fields["sheets"]; ok {
		if err := json.Unmarshal(raw, &rawSheets); err != nil {
			return nil, fmt.Errorf("decode sheets: %w", err)
		}
	}
	for id, raw := range rawSheets {
		ws, err := decodeWorksheet(raw)
		if err != nil {
			return nil, fmt.Errorf("decode sheet %s: %w", id, err)
		}
		s.sheets[id] = ws
	}

	// Keep only ordered ids that exist, then append unordered sheets by id.
	seen := map[string]bool{}
	order := s.order[:0]
	for _, id := range s.order {
		if s.sheets[id] != nil && !seen[id] {
			order = append(order, id)
			seen[id] = true
		}
	}
	var rest []string
	for id := range s.sheets {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	s.order = append(order, rest...)
	if len(s.order) == 0 {
		s.addDefaultSheet()
	}
	if _, ok := s.fields["id"]; !ok {
		s.fields["id"], _ = json.Marshal(fileID)
	}
	return s, nil
}

func (SheetEngine) Blank(fileID string) Instance {
	id, _ := json.Marshal(fileID)
	s := &sheetInstance{fields: map[string]json.RawMessage{"id": id}, sheets: map[string]*worksheet{}}
	s.addDefaultSheet()
	return s
}

func (s *sheetInstance) addDefaultSheet() {
	id, _ := json.Marshal(defaultSheetID)
	name, _ := json.Marshal(defaultSheetName)
	s.sheets[defaultSheetID] = &worksheet{
		fields:   map[string]json.RawMessage{"id": id, "name": name},
		rowCount: defaultRowCount,
		colCount: defaultColCount,
		cells:    map[int]map[int]map[string]json.RawMessage{},
	}
	s.order = []string{defaultSheetID}
}

func decodeWorksheet(raw json.RawMessage) (*worksheet, error) {
	ws := &worksheet{fields: map[string]json.RawMessage{}, rowCount: defaultRowCount, colCount: defaultColCount, cells: map[int]map[int]map[string]json.RawMessage{}}
	if err := json.Unmarshal(raw, &ws.fields); err != nil {
		return nil, err
	}
	if ws.fields == nil {
		ws.fields = map[string]json.RawMessage{}
	}
	if v, ok := ws.fields["rowCount"]; ok {
		if err := json.Unmarshal(v, &ws.rowCount); err != nil {
			return nil, fmt.Errorf("rowCount: %w", err)
		}
	}
	if v, ok := ws.fields["columnCount"]; ok {
		if err := json.Unmarshal(v, &ws.colCount); err != nil {
			return nil, fmt.Errorf("columnCount: %w", err)
		}
	}
	var data map[string]map[string]map[string]json.RawMessage
	if v, ok := ws.fields["cellData"]; ok {
		if err := json.Unmarshal(v, &data); err != nil {
			return nil, fmt.Errorf("cellData: %w", err)
		}
	}
	for rk, cols := range data {
		r, err := strconv.Atoi(rk)
		if err != nil {
			return nil, fmt.Errorf("cellData row %q: %w", rk, err)
		}
		for ck, cell := range cols {
			c, err := strconv.Atoi(ck)
			if err != nil {
				return nil, fmt.Errorf("cellData col %q: %w", ck, err)
			}
			if ws.cells[r] == nil {
				ws.cells[r] = map[int]map[string]json.RawMessage{}
			}
			if cell == nil {
				cell = map[string]json.RawMessage{}
			}
			ws.cells[r][c] = cell
		}
	}
	return ws, nil
}

func (ws *worksheet) encode() (json.RawMessage, error) {
	data := make(map[string]map[string]map[string]json.RawMessage, len(ws.cells))
	for r, cols := range ws.cells {
		row := make(map[string]map[string]json.RawMessage, len(cols))
		for c, cell := range cols {
			row[strconv.Itoa(c)] = cell
		}
		data[strconv.Itoa(r)] = row
	}
	fields := make(map[string]json.RawMessage, len(ws.fields)+3)
	for k, v := range ws.fields {
		fields[k] = v
	}
	var err error
	if fields["cellData"], err = json.Marshal(data); err != nil {
		return nil, err
	}
	fields["rowCount"], _ = json.Marshal(ws.rowCount)
	fields["columnCount"], _ = json.Marshal(ws.colCount)
	return json.Marshal(fields)
}

func (s *sheetInstance) Snapshot() (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return nil, ErrDisposed
	}
	sheets := make(map[string]json.RawMessage, len(s.sheets))
	for id, ws := range s.sheets {
		raw, err := ws.encode()
		if err != nil {
			return nil, fmt.Errorf("encode sheet %s: %w", id, err)
		}
		sheets[id] = raw
	}
	fields := make(map[string]json.RawMessage, len(s.fields)+2)
	for k, v := range s.fields {
		fields[k] = v
	}
	var err error
	if fields["sheets"], err = json.Marshal(sheets); err != nil {
		return nil, err
	}
	if fields["sheetOrder"], err = json.Marshal(s.order); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

// SetCell writes value into the active sheet. Numeric strings are stored as numbers.
func (s *sheetInstance) SetCell(row, col int, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ErrDisposed
	}
	ws := s.sheets[s.order[0]]
	if row < 0 || col < 0 || row >= ws.rowCount || col >= ws.colCount {
		return fmt.Errorf("%w: %s (sheet is %dx%d)", ErrOutOfRange, FormatA1(row, col), ws.rowCount, ws.colCount)
	}
	v, err := json.Marshal(cellValue(value))
	if err != nil {
		return err
	}
	if ws.cells[row] == nil {
		ws.cells[row] = map[int]map[string]json.RawMessage{}
	}
	cell := map[string]json.RawMessage{}
	for k, old := range ws.cells[row][col] {
		cell[k] = old
	}
	cell["v"] = v
	ws.cells[row][col] = cell
	return nil
}

func (s *sheetInstance) EnsureSize(rows, cols int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws := s.sheets[s.order[0]]
	if rows > ws.rowCount {
		ws.rowCount = rows
	}
	if cols > ws.colCount {
		ws.colCount = cols
	}
}

// Cell reads the display value of a cell in the active sheet.
func (s *sheetInstance) Cell(row, col int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws := s.sheets[s.order[0]]
	cell, ok := ws.cells[row][col]
	if !ok {
		return "", false
	}
	raw, ok := cell["v"]
	if !ok {
		return "", false
	}
	return displayValue(raw), true
}

// Text renders each sheet as tab-separated rows, headed by its name when the
// workbook has more than one sheet.
func (s *sheetInstance) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var b strings.Builder
	for i, id := range s.order {
		ws := s.sheets[id]
		if len(s.order) > 1 {
			if i > 0 {
				b.WriteString("\n")
			}
			name := id
			if raw, ok := ws.fields["name"]; ok {
				_ = json.Unmarshal(raw, &name)
			}
			fmt.Fprintf(&b, "# %s\n", name)
		}
		b.WriteString(ws.tsv())
	}
	return b.String()
}

func (ws *worksheet) tsv() string {
	maxRow, maxCol := -1, -1
	for r, cols := range ws.cells {
		for c, cell := range cols {
			if _, ok := cell["v"]; !ok {
				continue
			}
			maxRow = max(maxRow, r)
			maxCol = max(maxCol, c)
		}
	}
	var b strings.Builder
	for r := 0; r <= maxRow; r++ {
		vals := make([]string, maxCol+1)
		for c := range vals {
			if raw, ok := ws.cells[r][c]["v"]; ok {
				vals[c] = displayValue(raw)
			}
		}
		b.WriteString(strings.TrimRight(strings.Join(vals, "\t"), "\t"))
		b.WriteString("\n")
	}
	return b.String()
}

func (s *sheetInstance) Dispose() {
	s.mu.Lock()
	s.disposed = true
	s.mu.Unlock()
}

func cellValue(value string) any {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return value
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return value
	}
	return f
}

func displayValue(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return string(raw)
	}
}

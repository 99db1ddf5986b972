// Package memory implements an in-process storage.Repository. It keeps the
// contract of the SQL backends (unique keys, generated ids, savepoints and
// all-or-nothing commits) and is used by tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"bagetl/internal/schema"
	"bagetl/internal/storage"
)

type table struct {
	def      schema.Table
	index    map[string]int
	identity string
	next     int64
	rows     [][]any
}

func newTable(def schema.Table) *table {
	t := &table{def: def, index: make(map[string]int, len(def.Columns)), next: 1}
	for i, c := range def.Columns {
		t.index[c.Name] = i
		if c.Type == schema.TypeIdentity {
			t.identity = c.Name
		}
	}
	return t
}

func (t *table) clone() *table {
	c := *t
	c.rows = make([][]any, len(t.rows))
	for i, r := range t.rows {
		c.rows[i] = append([]any(nil), r...)
	}
	return &c
}

// keys returns the column groups that must be unique: the primary key, then
// every declared group.
func (t *table) keys() [][]string {
	var out [][]string
	if t.def.Key != "" {
		out = append(out, []string{t.def.Key})
	}
	return append(out, t.def.Unique...)
}

func (t *table) get(row []any, col string) any {
	i, ok := t.index[col]
	if !ok {
		return nil
	}
	return row[i]
}

func (t *table) asMap(row []any) map[string]any {
	m := make(map[string]any, len(row))
	for i, c := range t.def.Columns {
		m[c.Name] = row[i]
	}
	return m
}

// build turns a partial row into a full one, assigning the identity column
// when it is absent.
func (t *table) build(columns []string, values []any) ([]any, error) {
	if len(columns) != len(values) {
		return nil, fmt.Errorf("memory: %s: %d columns, %d values", t.def.Name, len(columns), len(values))
	}
	row := make([]any, len(t.def.Columns))
	for i, c := range columns {
		idx, ok := t.index[c]
		if !ok {
			return nil, fmt.Errorf("memory: %s: unknown column %q", t.def.Name, c)
		}
		row[idx] = values[i]
	}
	if t.identity != "" {
		idx := t.index[t.identity]
		if row[idx] == nil {
			row[idx] = t.next
			t.next++
		} else if id, ok := toInt64(row[idx]); ok && id >= t.next {
			t.next = id + 1
		}
	}
	for i, c := range t.def.Columns {
		if row[i] == nil && !c.Nullable && c.Default == "" {
			return nil, fmt.Errorf("memory: %s: column %q is NOT NULL", t.def.Name, c.Name)
		}
	}
	return row, nil
}

// conflict reports the first stored row, other than skip, that shares a
// unique group with row. Groups with a NULL member never conflict.
func (t *table) conflict(row []any, skip int) (int, []string) {
	for _, group := range t.keys() {
		want, ok := t.groupKey(row, group)
		if !ok {
			continue
		}
		for i, r := range t.rows {
			if i == skip {
				continue
			}
			if got, ok := t.groupKey(r, group); ok && got == want {
				return i, group
			}
		}
	}
	return -1, nil
}

func (t *table) groupKey(row []any, group []string) (string, bool) {
	parts := make([]string, len(group))
	for i, c := range group {
		v := t.get(row, c)
		if v == nil {
			return "", false
		}
		parts[i] = canon(v)
	}
	return strings.Join(parts, "\x00"), true
}

func (t *table) insert(row []any) error {
	if i, group := t.conflict(row, -1); i >= 0 {
		return storage.Duplicate(fmt.Errorf("memory: %s: duplicate key (%s)", t.def.Name, strings.Join(group, ", ")))
	}
	t.rows = append(t.rows, row)
	return nil
}

func (t *table) id(row []any) int64 {
	id, _ := toInt64(t.get(row, t.def.Key))
	return id
}

func (t *table) find(match func(map[string]any) bool) []int {
	var out []int
	for i, r := range t.rows {
		if match(t.asMap(r)) {
			out = append(out, i)
		}
	}
	return out
}

func (t *table) sortRows(idx []int, orderBy []string) error {
	cols := make([]int, len(orderBy))
	for i, c := range orderBy {
		j, ok := t.index[c]
		if !ok {
			return fmt.Errorf("memory: %s: unknown column %q", t.def.Name, c)
		}
		cols[i] = j
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ra, rb := t.rows[idx[a]], t.rows[idx[b]]
		for _, c := range cols {
			if d := compare(ra[c], rb[c]); d != 0 {
				return d < 0
			}
		}
		return false
	})
	return nil
}

// canon renders v so that equal numbers of different Go types share a key.
func canon(v any) string {
	if f, ok := toFloat64(v); ok {
		return "n" + strconv.FormatFloat(f, 'g', -1, 64)
	}
	return "s" + fmt.Sprint(v)
}

// compare orders NULLs first, then numbers, then everything else as text.
func compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	x, xok := toFloat64(a)
	y, yok := toFloat64(b)
	if xok && yok {
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func toInt64(v any) (int64, bool) {
	f, ok := toFloat64(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

// Repository is the in-memory store. At most one transaction is open at a
// time; Begin blocks until the previous one ends.
type Repository struct {
	sem    chan struct{}
	tables map[string]*table
}

// NewRepository returns an empty store.
func NewRepository() *Repository {
	return &Repository{sem: make(chan struct{}, 1), tables: make(map[string]*table)}
}

// Kind implements storage.Repository.
func (r *Repository) Kind() string { return "memory" }

// Close implements storage.Repository.
func (r *Repository) Close() {}

// Exec implements storage.Repository. Statements are not interpreted; tables
// are defined through EnsureTables.
func (r *Repository) Exec(_ context.Context, query string) error {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	return fmt.Errorf("memory: raw SQL is not supported")
}

// Define adds the given tables. An existing table keeps its rows.
func (r *Repository) Define(ctx context.Context, tables []schema.Table) error {
	if err := r.acquire(ctx); err != nil {
		return err
	}
	defer r.release()
	for _, t := range tables {
		if _, ok := r.tables[t.Name]; !ok {
			r.tables[t.Name] = newTable(t)
		}
	}
	return nil
}

// Rows returns a copy of the committed rows of name as column maps, in
// insertion order.
func (r *Repository) Rows(name string) []map[string]any {
	r.sem <- struct{}{}
	defer r.release()
	t, ok := r.tables[name]
	if !ok {
		return nil
	}
	out := make([]map[string]any, len(t.rows))
	for i, row := range t.rows {
		out[i] = t.asMap(row)
	}
	return out
}

func (r *Repository) acquire(ctx context.Context) error {
	select {
	case r.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Repository) release() { <-r.sem }

// Begin implements storage.Repository. The transaction works on a copy of
// the committed state.
func (r *Repository) Begin(ctx context.Context) (storage.Tx, error) {
	if err := r.acquire(ctx); err != nil {
		return nil, err
	}
	return &Tx{repo: r, work: snapshot(r.tables)}, nil
}

func snapshot(in map[string]*table) map[string]*table {
	out := make(map[string]*table, len(in))
	for k, t := range in {
		out[k] = t.clone()
	}
	return out
}

type savepoint struct {
	name   string
	tables map[string]*table
}

// Tx is a memory transaction.
type Tx struct {
	repo  *Repository
	work  map[string]*table
	saves []savepoint
	done  bool
}

var _ storage.Tx = (*Tx)(nil)

func (tx *Tx) table(name string) (*table, error) {
	if tx.done {
		return nil, fmt.Errorf("memory: transaction already finished")
	}
	t, ok := tx.work[name]
	if !ok {
		return nil, fmt.Errorf("memory: no such table %q", name)
	}
	return t, nil
}

// GetOrCreate implements storage.Tx.
func (tx *Tx) GetOrCreate(_ context.Context, name, column string, value any) (int64, error) {
	t, err := tx.table(name)
	if err != nil {
		return 0, err
	}
	for _, row := range t.rows {
		if v := t.get(row, column); v != nil && canon(v) == canon(value) {
			return t.id(row), nil
		}
	}
	row, err := t.build([]string{column}, []any{value})
	if err != nil {
		return 0, err
	}
	if err := t.insert(row); err != nil {
		return 0, err
	}
	return t.id(row), nil
}

// CopyFrom implements storage.Tx. A failing row leaves the table untouched.
func (tx *Tx) CopyFrom(_ context.Context, name string, columns []string, rows [][]any) (int64, error) {
	t, err := tx.table(name)
	if err != nil {
		return 0, err
	}
	staged := t.clone()
	for i, values := range rows {
		row, err := staged.build(columns, values)
		if err != nil {
			return 0, fmt.Errorf("row %d: %w", i, err)
		}
		if err := staged.insert(row); err != nil {
			return 0, fmt.Errorf("row %d: %w", i, err)
		}
	}
	tx.work[name] = staged
	return int64(len(rows)), nil
}

// Delete implements storage.Tx.
func (tx *Tx) Delete(_ context.Context, name string, where storage.Predicate) (int64, error) {
	t, err := tx.table(name)
	if err != nil {
		return 0, err
	}
	kept := t.rows[:0:0]
	var n int64
	for _, row := range t.rows {
		if where.Match(t.asMap(row)) {
			n++
			continue
		}
		kept = append(kept, row)
	}
	t.rows = kept
	return n, nil
}

// Select implements storage.Tx.
func (tx *Tx) Select(_ context.Context, name string, columns []string, where storage.Predicate, orderBy []string, limit int) ([][]any, error) {
	t, err := tx.table(name)
	if err != nil {
		return nil, err
	}
	for _, c := range columns {
		if _, ok := t.index[c]; !ok {
			return nil, fmt.Errorf("memory: %s: unknown column %q", name, c)
		}
	}
	idx := t.find(where.Match)
	if err := t.sortRows(idx, orderBy); err != nil {
		return nil, err
	}
	if limit > 0 && len(idx) > limit {
		idx = idx[:limit]
	}
	out := make([][]any, len(idx))
	for i, ri := range idx {
		row := make([]any, len(columns))
		for j, c := range columns {
			row[j] = t.rows[ri][t.index[c]]
		}
		out[i] = row
	}
	return out, nil
}

// Upsert implements storage.Tx.
func (tx *Tx) Upsert(_ context.Context, name string, columns []string, values []any, conflict []string) (int64, error) {
	t, err := tx.table(name)
	if err != nil {
		return 0, err
	}
	if len(columns) != len(values) {
		return 0, fmt.Errorf("memory: %s: %d columns, %d values", name, len(columns), len(values))
	}
	key := make(storage.Predicate, 0, len(conflict))
	for _, c := range conflict {
		i := indexOf(columns, c)
		if i < 0 {
			return 0, fmt.Errorf("memory: %s: conflict column %q not in row", name, c)
		}
		key = append(key, storage.Eq(c, values[i]))
	}
	if hit := t.find(key.Match); len(hit) > 0 {
		ri := hit[0]
		for i, c := range columns {
			if c == t.def.Key || indexOf(conflict, c) >= 0 {
				continue
			}
			idx, ok := t.index[c]
			if !ok {
				return 0, fmt.Errorf("memory: %s: unknown column %q", name, c)
			}
			t.rows[ri][idx] = values[i]
		}
		return t.id(t.rows[ri]), nil
	}
	row, err := t.build(columns, values)
	if err != nil {
		return 0, err
	}
	if err := t.insert(row); err != nil {
		return 0, err
	}
	return t.id(row), nil
}

// Update implements storage.Tx.
func (tx *Tx) Update(_ context.Context, name string, set []string, values []any, where storage.Predicate) (int64, error) {
	t, err := tx.table(name)
	if err != nil {
		return 0, err
	}
	if len(set) != len(values) {
		return 0, fmt.Errorf("memory: %s: %d columns, %d values", name, len(set), len(values))
	}
	cols := make([]int, len(set))
	for i, c := range set {
		idx, ok := t.index[c]
		if !ok {
			return 0, fmt.Errorf("memory: %s: unknown column %q", name, c)
		}
		cols[i] = idx
	}
	staged := t.clone()
	hit := staged.find(where.Match)
	for _, ri := range hit {
		for i, idx := range cols {
			staged.rows[ri][idx] = values[i]
		}
	}
	for _, ri := range hit {
		if j, group := staged.conflict(staged.rows[ri], ri); j >= 0 {
			return 0, storage.Duplicate(fmt.Errorf("memory: %s: duplicate key (%s)", name, strings.Join(group, ", ")))
		}
	}
	tx.work[name] = staged
	return int64(len(hit)), nil
}

// Savepoint implements storage.Tx.
func (tx *Tx) Savepoint(_ context.Context, name string) error {
	if tx.done {
		return fmt.Errorf("memory: transaction already finished")
	}
	tx.saves = append(tx.saves, savepoint{name: name, tables: snapshot(tx.work)})
	return nil
}

// RollbackTo implements storage.Tx. The savepoint stays usable; later ones
// are discarded.
func (tx *Tx) RollbackTo(_ context.Context, name string) error {
	if tx.done {
		return fmt.Errorf("memory: transaction already finished")
	}
	for i := len(tx.saves) - 1; i >= 0; i-- {
		if tx.saves[i].name == name {
			tx.work = snapshot(tx.saves[i].tables)
			tx.saves = tx.saves[:i+1]
			return nil
		}
	}
	return fmt.Errorf("memory: no savepoint %q", name)
}

// Commit implements storage.Tx.
func (tx *Tx) Commit(context.Context) error {
	if tx.done {
		return fmt.Errorf("memory: transaction already finished")
	}
	tx.done = true
	tx.repo.tables = tx.work
	tx.repo.release()
	return nil
}

// Rollback implements storage.Tx. Rolling back a finished transaction is a
// no-op.
func (tx *Tx) Rollback(context.Context) error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.repo.release()
	return nil
}

func indexOf(xs []string, s string) int {
	for i, x := range xs {
		if x == s {
			return i
		}
	}
	return -1
}

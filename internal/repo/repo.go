package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"pressflow/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const itemColumns = `id,type,title,content,excerpt,slug,status,author_id,date_local,date_utc,created_at,updated_at`

func scanItem(row *sql.Row) (domain.ContentItem, error) {
	var it domain.ContentItem
	err := row.Scan(&it.ID, &it.Type, &it.Title, &it.Content, &it.Excerpt, &it.Slug, &it.Status,
		&it.AuthorID, &it.DateLocal, &it.DateUTC, &it.CreatedAt, &it.UpdatedAt)
	if err == sql.ErrNoRows {
		return it, ErrNotFound
	}
	return it, err
}

func (r Repo) InsertItem(ctx context.Context, it domain.ContentItem) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO content_items(type,title,content,excerpt,slug,status,author_id,date_local,date_utc,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		it.Type, it.Title, it.Content, it.Excerpt, it.Slug, it.Status, it.AuthorID,
		it.DateLocal, it.DateUTC, it.CreatedAt, it.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetItem(ctx context.Context, id int64) (domain.ContentItem, error) {
	return scanItem(r.DB.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM content_items WHERE id=?`, id))
}

func (r Repo) GetItemTx(ctx context.Context, tx *sql.Tx, id int64) (domain.ContentItem, error) {
	return scanItem(tx.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM content_items WHERE id=?`, id))
}

// ItemPatch carries optional field updates; nil means keep.
type ItemPatch struct {
	Title     *string
	Content   *string
	Excerpt   *string
	Slug      *string
	Status    *string
	DateLocal *string
	DateUTC   *string
}

func (r Repo) UpdateItem(ctx context.Context, id int64, patch ItemPatch, now string) error {
	var (
		fields []string
		args   []any
	)
	set := func(col string, v *string) {
		if v != nil {
			fields = append(fields, col+"=?")
			args = append(args, *v)
		}
	}
	set("title", patch.Title)
	set("content", patch.Content)
	set("excerpt", patch.Excerpt)
	set("slug", patch.Slug)
	set("status", patch.Status)
	set("date_local", patch.DateLocal)
	set("date_utc", patch.DateUTC)
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, now, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE content_items SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDatesTx stamps both publication dates inside a transaction.
func (r Repo) SetDatesTx(ctx context.Context, tx *sql.Tx, id int64, dateLocal, dateUTC, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE content_items SET date_local=?, date_utc=?, updated_at=? WHERE id=?`,
		dateLocal, dateUTC, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TransitionStatusTx moves an item to status, guarding against items that
// are already published or scheduled. Returns ErrNotFound when the row is
// missing and false when the guard lost (another writer got there first).
func (r Repo) TransitionStatusTx(ctx context.Context, tx *sql.Tx, id int64, status, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE content_items SET status=?, updated_at=? WHERE id=? AND status NOT IN ('publish','future')`,
		status, now, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		if _, err := r.GetItemTx(ctx, tx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

type ItemFilters struct {
	Type   string
	Status string
	Limit  int
	Cursor string
}

func (r Repo) ListItems(ctx context.Context, f ItemFilters) ([]domain.ContentItem, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Cursor != "" {
		cursorID, err := strconv.ParseInt(f.Cursor, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor: %w", err)
		}
		clauses = append(clauses, "id < ?")
		args = append(args, cursorID)
	}
	query := `SELECT ` + itemColumns + ` FROM content_items WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []domain.ContentItem
	for rows.Next() {
		var it domain.ContentItem
		if err := rows.Scan(&it.ID, &it.Type, &it.Title, &it.Content, &it.Excerpt, &it.Slug, &it.Status,
			&it.AuthorID, &it.DateLocal, &it.DateUTC, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r Repo) CountItemsByStatus(ctx context.Context, itemType string) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM content_items`
	var args []any
	if itemType != "" {
		query += ` WHERE type=?`
		args = append(args, itemType)
	}
	query += ` GROUP BY status`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r Repo) DeleteItem(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM content_items WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceMeta swaps the full ordered value list for one key.
func (r Repo) ReplaceMeta(ctx context.Context, itemID int64, key string, values []string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := r.GetItemTx(ctx, tx, itemID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM item_meta WHERE item_id=? AND key=?`, itemID, key); err != nil {
		return err
	}
	for i, v := range values {
		if _, err := tx.ExecContext(ctx, `INSERT INTO item_meta(item_id,key,ord,value) VALUES (?,?,?,?)`, itemID, key, i, v); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r Repo) DeleteMeta(ctx context.Context, itemID int64, key string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM item_meta WHERE item_id=? AND key=?`, itemID, key)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetMeta returns all meta rows for an item ordered by key then ord.
func (r Repo) GetMeta(ctx context.Context, itemID int64) ([]domain.MetaEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT item_id,key,ord,value FROM item_meta WHERE item_id=? ORDER BY key, ord`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []domain.MetaEntry
	for rows.Next() {
		var m domain.MetaEntry
		if err := rows.Scan(&m.ItemID, &m.Key, &m.Ord, &m.Value); err != nil {
			return nil, err
		}
		entries = append(entries, m)
	}
	return entries, rows.Err()
}

// FirstMetaValues collapses meta to the first stored value per key.
func (r Repo) FirstMetaValues(ctx context.Context, itemID int64) (map[string]string, error) {
	entries, err := r.GetMeta(ctx, itemID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for _, e := range entries {
		if _, seen := out[e.Key]; !seen {
			out[e.Key] = e.Value
		}
	}
	return out, nil
}

// ReplaceTerms swaps the term set for one taxonomy.
func (r Repo) ReplaceTerms(ctx context.Context, itemID int64, taxonomy string, terms []domain.Term) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := r.GetItemTx(ctx, tx, itemID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM item_terms WHERE item_id=? AND taxonomy=?`, itemID, taxonomy); err != nil {
		return err
	}
	for _, t := range terms {
		if _, err := tx.ExecContext(ctx, `INSERT INTO item_terms(item_id,term_id,taxonomy,name) VALUES (?,?,?,?)`,
			itemID, t.ID, taxonomy, t.Name); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetTerms returns taxonomy -> terms for an item; taxonomies with no
// terms do not appear.
func (r Repo) GetTerms(ctx context.Context, itemID int64) (map[string][]domain.Term, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT term_id,taxonomy,name FROM item_terms WHERE item_id=? ORDER BY taxonomy, term_id`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string][]domain.Term)
	for rows.Next() {
		var t domain.Term
		if err := rows.Scan(&t.ID, &t.Taxonomy, &t.Name); err != nil {
			return nil, err
		}
		out[t.Taxonomy] = append(out[t.Taxonomy], t)
	}
	return out, rows.Err()
}

func (r Repo) ListEvents(ctx context.Context, afterID int64, limit int) ([]domain.Event, error) {
	query := `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE id > ? ORDER BY id ASC`
	args := []any{afterID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

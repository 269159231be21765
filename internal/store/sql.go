package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lumen-api/lumen/internal/params"
	"github.com/lumen-api/lumen/internal/refine"
	"github.com/lumen-api/lumen/internal/schema"
)

// Placeholder renders the bind parameter for position n (1-based).
type Placeholder func(n int) string

// Question is the placeholder style used by sqlite and mysql drivers.
func Question(int) string { return "?" }

// Dollar is the placeholder style used by postgres drivers.
func Dollar(n int) string { return fmt.Sprintf("$%d", n) }

// SQLScope is a scope implemented as a SQL fragment appended to the WHERE
// clause, e.g. "published = TRUE".
type SQLScope string

// SQL is a read-side Source backed by database/sql. Scopes are registered
// as SQL fragments at setup time; remote methods run on the fetched record.
// The driver is the caller's choice — sqlite and postgres are wired by the
// server binary.
type SQL struct {
	schema      *schema.Resource
	db          *sql.DB
	table       string
	placeholder Placeholder
	set         *SQLSet
	scopes      map[string]SQLScope
	remotes     map[string]RemoteFunc
}

// SQLSet resolves sibling SQL stores for association traversal.
type SQLSet struct {
	stores map[string]*SQL
}

// NewSQLSet creates an empty SQL store set.
func NewSQLSet() *SQLSet {
	return &SQLSet{stores: make(map[string]*SQL)}
}

// NewSQL creates a store over db for the given schema. The table name
// defaults to the schema's collection name.
func (s *SQLSet) NewSQL(res *schema.Resource, db *sql.DB, placeholder Placeholder) *SQL {
	st := &SQL{
		schema:      res,
		db:          db,
		table:       res.CollectionName(),
		placeholder: placeholder,
		set:         s,
		scopes:      make(map[string]SQLScope),
		remotes:     make(map[string]RemoteFunc),
	}
	s.stores[res.Name()] = st
	return st
}

// Get retrieves the store for a resource by singular name.
func (s *SQLSet) Get(name string) (*SQL, bool) {
	st, ok := s.stores[name]
	return st, ok
}

// Table overrides the backing table name.
func (s *SQL) Table(name string) *SQL {
	s.table = name
	return s
}

// RegisterScope installs the SQL fragment backing a declared scope.
func (s *SQL) RegisterScope(name string, fragment SQLScope) {
	s.scopes[name] = fragment
}

// RegisterRemote installs the implementation of a declared remote method.
func (s *SQL) RegisterRemote(name string, fn RemoteFunc) {
	s.remotes[name] = fn
}

// Schema returns the store's frozen schema.
func (s *SQL) Schema() *schema.Resource { return s.schema }

// Collection returns the unrefined collection over the backing table.
func (s *SQL) Collection() refine.Collection {
	return &sqlCollection{store: s}
}

// Find resolves a record by primary key, falling back to the natural key.
func (s *SQL) Find(ctx context.Context, id string) (refine.Record, error) {
	recs, err := s.Collection().Where("id", id).Limit(1).Records(ctx)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		if key := s.schema.NaturalKey(); key != "" {
			recs, err = s.Collection().Where(key, id).Limit(1).Records(ctx)
			if err != nil {
				return nil, err
			}
		}
	}
	if len(recs) == 0 {
		return nil, &NotFoundError{Resource: s.schema.Name(), ID: id}
	}
	return recs[0], nil
}

// Association returns the target collection for a reflection of rec.
func (s *SQL) Association(ctx context.Context, rec refine.Record, refl *schema.Reflection) (refine.Collection, error) {
	if refl.Through != "" {
		through := s.schema.Reflection(refl.Through)
		if through == nil || through.Kind != schema.BelongsTo {
			return nil, fmt.Errorf("through association must be a belongs_to")
		}
		throughStore, err := s.sibling(through.Target)
		if err != nil {
			return nil, err
		}
		throughRec, err := throughStore.Find(ctx, stringifyID(rec[through.ForeignKey]))
		if err != nil {
			return nil, err
		}
		target, err := s.sibling(refl.Target)
		if err != nil {
			return nil, err
		}
		return target.Collection().Where("id", throughRec[refl.ForeignKey]), nil
	}

	target, err := s.sibling(refl.Target)
	if err != nil {
		return nil, err
	}
	switch refl.Kind {
	case schema.BelongsTo:
		return target.Collection().Where("id", rec[refl.ForeignKey]), nil
	case schema.HasMany, schema.HasOne:
		return target.Collection().Where(refl.ForeignKey, rec["id"]), nil
	default:
		return nil, fmt.Errorf("association %s is not traversable", refl.Name)
	}
}

// Remote invokes a registered remote method implementation.
func (s *SQL) Remote(ctx context.Context, rec refine.Record, name string) (any, error) {
	fn, ok := s.remotes[name]
	if !ok {
		return nil, fmt.Errorf("remote method %s declared but not implemented on %s", name, s.schema.Name())
	}
	return fn(ctx, rec)
}

func (s *SQL) sibling(name string) (*SQL, error) {
	target, ok := s.set.Get(name)
	if !ok {
		return nil, fmt.Errorf("no store registered for resource %s", name)
	}
	return target, nil
}

// sqlCollection accumulates refinements and renders a single SELECT at
// materialization time.
type sqlCollection struct {
	store  *SQL
	scopes []SQLScope
	preds  []predicate
	order  []params.OrderColumn
	limit  *int
	offset *int
}

func (c *sqlCollection) clone() *sqlCollection {
	next := &sqlCollection{store: c.store, limit: c.limit, offset: c.offset}
	next.scopes = append(next.scopes, c.scopes...)
	next.preds = append(next.preds, c.preds...)
	next.order = append(next.order, c.order...)
	return next
}

func (c *sqlCollection) Scope(name string) (refine.Collection, error) {
	fragment, ok := c.store.scopes[name]
	if !ok {
		return nil, fmt.Errorf("scope %s declared but not implemented on %s", name, c.store.schema.Name())
	}
	next := c.clone()
	next.scopes = append(next.scopes, fragment)
	return next, nil
}

func (c *sqlCollection) Where(field string, value any) refine.Collection {
	next := c.clone()
	next.preds = append(next.preds, predicate{field: field, value: value})
	return next
}

func (c *sqlCollection) Order(terms []params.OrderColumn) refine.Collection {
	next := c.clone()
	next.order = append([]params.OrderColumn{}, terms...)
	return next
}

func (c *sqlCollection) Limit(n int) refine.Collection {
	next := c.clone()
	next.limit = &n
	return next
}

func (c *sqlCollection) Offset(n int) refine.Collection {
	next := c.clone()
	next.offset = &n
	return next
}

// Records builds and runs the SELECT. Column and order names were already
// validated against the schema by the refiner, so only values are bound.
func (c *sqlCollection) Records(ctx context.Context) ([]refine.Record, error) {
	query, args := c.build()

	rows, err := c.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", c.store.table, err)
	}
	defer rows.Close()

	return scanRows(rows)
}

func (c *sqlCollection) build() (string, []any) {
	var sb strings.Builder
	var args []any
	n := 0

	fmt.Fprintf(&sb, "SELECT * FROM %s", c.store.table)

	var conditions []string
	for _, scope := range c.scopes {
		conditions = append(conditions, fmt.Sprintf("(%s)", scope))
	}
	for _, pred := range c.preds {
		n++
		conditions = append(conditions, fmt.Sprintf("%s = %s", pred.field, c.store.placeholder(n)))
		args = append(args, pred.value)
	}
	if len(conditions) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conditions, " AND "))
	}

	if len(c.order) > 0 {
		var terms []string
		for _, term := range c.order {
			dir := "ASC"
			if term.Direction == "desc" {
				dir = "DESC"
			}
			terms = append(terms, fmt.Sprintf("%s %s", term.Name, dir))
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(terms, ", "))
	}

	if c.limit != nil {
		fmt.Fprintf(&sb, " LIMIT %d", *c.limit)
	} else if c.offset != nil && c.store.placeholder(1) == "?" {
		// sqlite rejects OFFSET without a LIMIT clause; -1 reads as
		// unbounded. postgres takes a bare OFFSET.
		sb.WriteString(" LIMIT -1")
	}
	if c.offset != nil {
		fmt.Fprintf(&sb, " OFFSET %d", *c.offset)
	}
	return sb.String(), args
}

func scanRows(rows *sql.Rows) ([]refine.Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []refine.Record
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		rec := make(refine.Record, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				rec[col] = string(b)
			} else {
				rec[col] = values[i]
			}
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

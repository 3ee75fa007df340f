package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound indicates the medicine does not exist in the catalog.
var ErrNotFound = errors.New("catalog: medicine not found")

// ErrInsufficientStock indicates a conditional stock decrement found fewer
// units than requested at commit time.
var ErrInsufficientStock = errors.New("catalog: insufficient stock")

type pgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides catalog reads and stock mutations over PostgreSQL.
type Store struct {
	db pgxDB
}

// NewStore builds a Postgres-backed catalog store.
func NewStore(db pgxDB) *Store {
	if db == nil {
		panic("catalog: pgx pool cannot be nil")
	}
	return &Store{db: db}
}

const medicineColumns = `id, name, price, package_size, description, stock, prescription_required, max_safe_dosage, created_at, updated_at`

func scanMedicine(row pgx.Row) (*Medicine, error) {
	var m Medicine
	err := row.Scan(&m.ID, &m.Name, &m.Price, &m.PackageSize, &m.Description,
		&m.Stock, &m.PrescriptionRequired, &m.MaxSafeDosage, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("catalog: failed to scan medicine: %w", err)
	}
	return &m, nil
}

// GetByName fetches a medicine by its exact canonical name.
func (s *Store) GetByName(ctx context.Context, name string) (*Medicine, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+medicineColumns+`
		FROM medicines
		WHERE name = $1
	`, name)
	return scanMedicine(row)
}

// ListNames returns every canonical medicine name, the input the fuzzy
// matcher scores against.
func (s *Store) ListNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT name FROM medicines ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to list names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("catalog: failed to scan name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// List returns the full catalog, used to build the inventory snapshot
// handed to the compliance oracle.
func (s *Store) List(ctx context.Context) ([]Medicine, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+medicineColumns+`
		FROM medicines
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to list medicines: %w", err)
	}
	defer rows.Close()
	return collectMedicines(rows)
}

// ListLowStock returns medicines at or below the given stock threshold.
func (s *Store) ListLowStock(ctx context.Context, threshold int) ([]Medicine, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+medicineColumns+`
		FROM medicines
		WHERE stock <= $1
		ORDER BY stock ASC, name
	`, threshold)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to list low stock: %w", err)
	}
	defer rows.Close()
	return collectMedicines(rows)
}

// SearchByKeywords returns up to limit medicines whose name or description
// matches any of the given keywords.
func (s *Store) SearchByKeywords(ctx context.Context, keywords []string, limit int) ([]Medicine, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 3
	}

	conditions := make([]string, 0, len(keywords))
	args := make([]any, 0, len(keywords)+1)
	for i, kw := range keywords {
		args = append(args, "%"+kw+"%")
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d OR description ILIKE $%d", i+1, i+1))
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT `+medicineColumns+`
		FROM medicines
		WHERE %s
		ORDER BY name
		LIMIT $%d
	`, strings.Join(conditions, " OR "), len(keywords)+1)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to search medicines: %w", err)
	}
	defer rows.Close()
	return collectMedicines(rows)
}

// DecrementStock atomically subtracts quantity from the medicine's stock.
// The WHERE clause re-validates availability at the moment of the write, so
// concurrent orders can never drive stock negative.
func (s *Store) DecrementStock(ctx context.Context, name string, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("catalog: decrement quantity must be positive, got %d", quantity)
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE medicines
		SET stock = stock - $2, updated_at = $3
		WHERE name = $1 AND stock >= $2
	`, name, quantity, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("catalog: failed to decrement stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the medicine vanished or another order got there first.
		if _, getErr := s.GetByName(ctx, name); errors.Is(getErr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrInsufficientStock
	}
	return nil
}

// Restock adds quantity units to the medicine's stock.
func (s *Store) Restock(ctx context.Context, name string, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("catalog: restock quantity must be positive, got %d", quantity)
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE medicines
		SET stock = stock + $2, updated_at = $3
		WHERE name = $1
	`, name, quantity, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("catalog: failed to restock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Import upserts catalog entries, keyed by name. Existing rows keep their
// stock; import never clobbers live inventory counts.
func (s *Store) Import(ctx context.Context, medicines []Medicine) (int, error) {
	imported := 0
	for _, m := range medicines {
		now := time.Now().UTC()
		tag, err := s.db.Exec(ctx, `
			INSERT INTO medicines (name, price, package_size, description, stock, prescription_required, max_safe_dosage, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
			ON CONFLICT (name) DO UPDATE
			SET price = EXCLUDED.price,
			    package_size = EXCLUDED.package_size,
			    description = EXCLUDED.description,
			    prescription_required = EXCLUDED.prescription_required,
			    max_safe_dosage = EXCLUDED.max_safe_dosage,
			    updated_at = EXCLUDED.updated_at
		`, m.Name, m.Price, m.PackageSize, m.Description, m.Stock, m.PrescriptionRequired, m.MaxSafeDosage, now)
		if err != nil {
			return imported, fmt.Errorf("catalog: failed to import %q: %w", m.Name, err)
		}
		imported += int(tag.RowsAffected())
	}
	return imported, nil
}

func collectMedicines(rows pgx.Rows) ([]Medicine, error) {
	var medicines []Medicine
	for rows.Next() {
		var m Medicine
		if err := rows.Scan(&m.ID, &m.Name, &m.Price, &m.PackageSize, &m.Description,
			&m.Stock, &m.PrescriptionRequired, &m.MaxSafeDosage, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("catalog: failed to scan medicine: %w", err)
		}
		medicines = append(medicines, m)
	}
	return medicines, rows.Err()
}

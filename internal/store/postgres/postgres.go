package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"

	"nexuspos/backend/internal/domain"
	"nexuspos/backend/internal/store"
	"nexuspos/backend/internal/xid"
)

const schema = `
CREATE TABLE IF NOT EXISTS app_users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	full_name     TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS products (
	owner_id    TEXT NOT NULL,
	id          TEXT NOT NULL,
	name        TEXT NOT NULL,
	sku         TEXT NOT NULL,
	cost_cents  BIGINT NOT NULL DEFAULT 0,
	price_cents BIGINT NOT NULL,
	stock       INTEGER NOT NULL DEFAULT 0,
	category    TEXT NOT NULL,
	image_url   TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (owner_id, id),
	UNIQUE (owner_id, sku)
);

CREATE TABLE IF NOT EXISTS services (
	owner_id    TEXT NOT NULL,
	id          TEXT NOT NULL,
	name        TEXT NOT NULL,
	description TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (owner_id, id)
);

CREATE TABLE IF NOT EXISTS transactions (
	owner_id          TEXT NOT NULL,
	id                TEXT NOT NULL,
	tx_type           TEXT NOT NULL,
	items             JSONB NOT NULL,
	subtotal_cents    BIGINT NOT NULL,
	tax_rate_percent  DOUBLE PRECISION NOT NULL DEFAULT 0,
	tax_cents         BIGINT NOT NULL,
	total_cents       BIGINT NOT NULL,
	payment_method    TEXT NOT NULL,
	amount_paid_cents BIGINT NOT NULL,
	change_cents      BIGINT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (owner_id, id)
);

CREATE INDEX IF NOT EXISTS transactions_owner_type_created_idx
	ON transactions (owner_id, tx_type, created_at DESC);
`

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "ensure schema")
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) ListProducts(ctx context.Context, ownerID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, sku, cost_cents, price_cents, stock, category, COALESCE(image_url, '')
		FROM products
		WHERE owner_id = $1
		ORDER BY name
	`, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.SKU, &p.CostCents, &p.PriceCents, &p.Stock, &p.Category, &p.ImageURL); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, ownerID string, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.SKU == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalid
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (owner_id, id, name, sku, cost_cents, price_cents, stock, category, image_url, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now(),now())
	`, ownerID, product.ID, product.Name, product.SKU, product.CostCents, product.PriceCents, product.Stock, product.Category, nullIfEmpty(product.ImageURL))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, errors.Wrapf(err, "insert product %s", product.SKU)
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, ownerID string, product domain.Product) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $3, sku = $4, cost_cents = $5, price_cents = $6, stock = $7, category = $8, image_url = $9, updated_at = now()
		WHERE owner_id = $1 AND id = $2
	`, ownerID, product.ID, product.Name, product.SKU, product.CostCents, product.PriceCents, product.Stock, product.Category, nullIfEmpty(product.ImageURL))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, errors.Wrapf(err, "update product %s", product.ID)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, ownerID string, productID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE owner_id = $1 AND id = $2`, ownerID, productID)
	if err != nil {
		return errors.Wrapf(err, "delete product %s", productID)
	}
	return requireAffected(res)
}

func (s *Store) ListServices(ctx context.Context, ownerID string) ([]domain.Service, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(description, '')
		FROM services
		WHERE owner_id = $1
		ORDER BY name
	`, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "list services")
	}
	defer rows.Close()

	services := make([]domain.Service, 0, 16)
	for rows.Next() {
		var svc domain.Service
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.Description); err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return services, nil
}

func (s *Store) CreateService(ctx context.Context, ownerID string, service domain.Service) (*domain.Service, error) {
	if service.ID == "" || service.Name == "" {
		return nil, store.ErrInvalid
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO services (owner_id, id, name, description, created_at)
		VALUES ($1,$2,$3,$4,now())
	`, ownerID, service.ID, service.Name, nullIfEmpty(service.Description))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, errors.Wrapf(err, "insert service %s", service.ID)
	}

	created := service
	return &created, nil
}

func (s *Store) UpdateService(ctx context.Context, ownerID string, service domain.Service) (*domain.Service, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE services SET name = $3, description = $4
		WHERE owner_id = $1 AND id = $2
	`, ownerID, service.ID, service.Name, nullIfEmpty(service.Description))
	if err != nil {
		return nil, errors.Wrapf(err, "update service %s", service.ID)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}

	updated := service
	return &updated, nil
}

func (s *Store) DeleteService(ctx context.Context, ownerID string, serviceID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM services WHERE owner_id = $1 AND id = $2`, ownerID, serviceID)
	if err != nil {
		return errors.Wrapf(err, "delete service %s", serviceID)
	}
	return requireAffected(res)
}

func (s *Store) InsertTransaction(ctx context.Context, ownerID string, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.ID == "" || len(tx.Items) == 0 {
		return nil, store.ErrInvalid
	}
	items, err := json.Marshal(tx.Items)
	if err != nil {
		return nil, errors.Wrap(err, "encode transaction items")
	}

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin transaction insert")
	}
	defer func() { _ = pgTx.Rollback() }()

	res, err := pgTx.ExecContext(ctx, `
		INSERT INTO transactions (
			owner_id, id, tx_type, items, subtotal_cents, tax_rate_percent, tax_cents,
			total_cents, payment_method, amount_paid_cents, change_cents, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (owner_id, id) DO NOTHING
	`, ownerID, tx.ID, string(tx.Type), items, tx.SubtotalCents, tx.TaxRatePercent, tx.TaxCents,
		tx.TotalCents, string(tx.PaymentMethod), tx.AmountPaidCents, tx.ChangeCents, tx.Date.UTC())
	if err != nil {
		return nil, errors.Wrapf(err, "insert transaction %s", tx.ID)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		_ = pgTx.Rollback()
		existing, err := s.findTransaction(ctx, ownerID, tx.ID)
		if err != nil {
			return nil, err
		}
		if !existing.SameSale(tx) {
			return nil, errors.Wrapf(store.ErrConflict, "transaction %s already stored with different contents", tx.ID)
		}
		return existing, nil
	}

	if tx.Type == domain.TxTypeProduct {
		for _, line := range tx.Items {
			if line.Kind != domain.LineKindProduct || line.Product == nil {
				continue
			}
			if _, err := pgTx.ExecContext(ctx, `
				UPDATE products SET stock = GREATEST(stock - $3, 0), updated_at = now()
				WHERE owner_id = $1 AND id = $2
			`, ownerID, line.Product.ID, line.Quantity); err != nil {
				return nil, errors.Wrapf(err, "deduct stock for %s", line.Product.ID)
			}
		}
	}
	if err := pgTx.Commit(); err != nil {
		return nil, errors.Wrapf(err, "commit transaction %s", tx.ID)
	}

	created := tx.Clone()
	created.OwnerID = ownerID
	return &created, nil
}

func (s *Store) ListTransactions(ctx context.Context, ownerID string, txType domain.TransactionType) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tx_type, items, subtotal_cents, tax_rate_percent, tax_cents,
			total_cents, payment_method, amount_paid_cents, change_cents, created_at
		FROM transactions
		WHERE owner_id = $1 AND tx_type = $2
		ORDER BY created_at DESC
	`, ownerID, string(txType))
	if err != nil {
		return nil, errors.Wrap(err, "list transactions")
	}
	defer rows.Close()

	out := make([]domain.Transaction, 0, 64)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		tx.OwnerID = ownerID
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) findTransaction(ctx context.Context, ownerID string, id string) (*domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tx_type, items, subtotal_cents, tax_rate_percent, tax_cents,
			total_cents, payment_method, amount_paid_cents, change_cents, created_at
		FROM transactions
		WHERE owner_id = $1 AND id = $2
	`, ownerID, id)
	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	tx.OwnerID = ownerID
	return &tx, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (domain.Transaction, error) {
	var (
		tx      domain.Transaction
		txType  string
		method  string
		rawItem []byte
	)
	if err := row.Scan(&tx.ID, &txType, &rawItem, &tx.SubtotalCents, &tx.TaxRatePercent, &tx.TaxCents,
		&tx.TotalCents, &method, &tx.AmountPaidCents, &tx.ChangeCents, &tx.Date); err != nil {
		return domain.Transaction{}, err
	}
	if err := json.Unmarshal(rawItem, &tx.Items); err != nil {
		return domain.Transaction{}, errors.Wrapf(err, "decode items of %s", tx.ID)
	}
	tx.Type = domain.TransactionType(txType)
	tx.PaymentMethod = domain.PaymentMethod(method)
	tx.Date = tx.Date.UTC()
	return tx, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" || user.PasswordHash == "" {
		return nil, store.ErrInvalid
	}
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (id, email, full_name, password_hash, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.ID, user.Email, user.FullName, user.PasswordHash, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, errors.Wrap(err, "insert user")
	}

	created := user
	return &created, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, full_name, password_hash, created_at
		FROM app_users
		WHERE email = $1
	`, strings.ToLower(strings.TrimSpace(email))).Scan(&user.ID, &user.Email, &user.FullName, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, errors.Wrap(err, "find user")
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

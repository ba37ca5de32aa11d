package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"regcore/internal/whois"
	"regcore/pkg/platform/sentinel"
	"regcore/pkg/platform/tx"
)

const contactColumns = `
	c.identifier, p.name, p.org, p.street1, p.street2, p.street3,
	p.city, p.sp, p.pc, p.cc, c.voice, c.fax, c.email
`

// PostgresStore reads WHOIS records. A domain answer spans several tables
// and is read inside one read-only transaction.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindDomain(ctx context.Context, name string, maxNameservers int) (*whois.Domain, error) {
	var d whois.Domain
	err := tx.ReadOnly(ctx, s.db, func(ctx context.Context) error {
		q := tx.Pick(ctx, s.db)

		var (
			registrarID  int64
			registrantID sql.NullInt64
			updated      sql.NullTime
		)
		err := q.QueryRowContext(ctx, `
			SELECT d.id, d.name, t.tld, d.crdate, d."update", d.exdate, d.clid, d.registrant
			FROM domain d
			JOIN domain_tld t ON t.id = d.tldid
			WHERE d.name = $1
		`, name).Scan(&d.ID, &d.Name, &d.TLD, &d.Created, &updated, &d.Expires, &registrarID, &registrantID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("domain %s: %w", name, sentinel.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get domain: %w", err)
		}
		if updated.Valid {
			d.Updated = updated.Time
		}

		r, err := s.registrarByID(ctx, q, registrarID)
		if err != nil {
			return err
		}
		if r != nil {
			d.Registrar = *r
		}

		if d.Statuses, err = s.statuses(ctx, q, d.ID); err != nil {
			return err
		}
		if registrantID.Valid {
			d.Registrant, err = scanContact(q.QueryRowContext(ctx,
				`SELECT `+contactColumns+`
				FROM contact c
				JOIN contact_postalInfo p ON p.contact_id = c.id
				WHERE c.id = $1
				ORDER BY p.id
				LIMIT 1`, registrantID.Int64))
			if err != nil {
				return fmt.Errorf("get registrant: %w", err)
			}
		}
		for _, role := range []struct {
			kind string
			dst  **whois.Contact
		}{{"admin", &d.Admin}, {"billing", &d.Billing}, {"tech", &d.Tech}} {
			*role.dst, err = scanContact(q.QueryRowContext(ctx,
				`SELECT `+contactColumns+`
				FROM domain_contact_map m
				JOIN contact c ON c.id = m.contact_id
				JOIN contact_postalInfo p ON p.contact_id = c.id
				WHERE m.domain_id = $1 AND m.type = $2
				ORDER BY m.id, p.id
				LIMIT 1`, d.ID, role.kind))
			if err != nil {
				return fmt.Errorf("get %s contact: %w", role.kind, err)
			}
		}

		if d.Nameservers, err = s.nameservers(ctx, q, d.ID, maxNameservers); err != nil {
			return err
		}
		err = q.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM secdns WHERE domain_id = $1)`, d.ID,
		).Scan(&d.Signed)
		if err != nil {
			return fmt.Errorf("check secdns: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *PostgresStore) FindHost(ctx context.Context, name string) (*whois.Host, error) {
	var h whois.Host
	err := tx.ReadOnly(ctx, s.db, func(ctx context.Context) error {
		q := tx.Pick(ctx, s.db)
		var registrarID int64
		err := q.QueryRowContext(ctx, `SELECT name, clid FROM host WHERE name = $1`, name).Scan(&h.Name, &registrarID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("host %s: %w", name, sentinel.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get host: %w", err)
		}
		h.Registrar, err = s.registrarByID(ctx, q, registrarID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (s *PostgresStore) FindRegistrar(ctx context.Context, name string) (*whois.Registrar, error) {
	var r *whois.Registrar
	err := tx.ReadOnly(ctx, s.db, func(ctx context.Context) error {
		q := tx.Pick(ctx, s.db)
		var err error
		r, err = scanRegistrar(q.QueryRowContext(ctx, `
			SELECT id, name, iana_id, whois_server, url, abuse_email, abuse_phone
			FROM registrar
			WHERE name = $1
		`, name))
		if err != nil {
			return fmt.Errorf("get registrar: %w", err)
		}
		if r == nil {
			return fmt.Errorf("registrar %s: %w", name, sentinel.ErrNotFound)
		}

		var c whois.RegistrarContact
		err = q.QueryRowContext(ctx, `
			SELECT street1, city, pc, cc, voice, fax, email
			FROM registrar_contact
			WHERE id = $1
		`, r.ID).Scan(&c.Street, &c.City, &c.PostalCode, &c.Country, &c.Phone, &c.Fax, &c.Email)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("get registrar contact: %w", err)
		default:
			r.Contact = &c
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// IncrementCounter bumps a settings counter in one statement so concurrent
// listeners never lose an update.
func (s *PostgresStore) IncrementCounter(ctx context.Context, name string) error {
	_, err := tx.Pick(ctx, s.db).ExecContext(ctx, `
		INSERT INTO settings (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = settings.value + 1
	`, name)
	if err != nil {
		return fmt.Errorf("increment counter %s: %w", name, err)
	}
	return nil
}

func (s *PostgresStore) Counter(ctx context.Context, name string) (int64, error) {
	var value int64
	err := tx.Pick(ctx, s.db).QueryRowContext(ctx, `SELECT value FROM settings WHERE name = $1`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get counter %s: %w", name, err)
	}
	return value, nil
}

func (s *PostgresStore) registrarByID(ctx context.Context, q tx.Querier, id int64) (*whois.Registrar, error) {
	r, err := scanRegistrar(q.QueryRowContext(ctx, `
		SELECT id, name, iana_id, whois_server, url, abuse_email, abuse_phone
		FROM registrar
		WHERE id = $1
	`, id))
	if err != nil {
		return nil, fmt.Errorf("get registrar %d: %w", id, err)
	}
	return r, nil
}

func (s *PostgresStore) statuses(ctx context.Context, q tx.Querier, domainID int64) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT status FROM domain_status WHERE domain_id = $1 ORDER BY id`, domainID)
	if err != nil {
		return nil, fmt.Errorf("list domain statuses: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return nil, fmt.Errorf("scan domain status: %w", err)
		}
		out = append(out, status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate domain statuses: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) nameservers(ctx context.Context, q tx.Querier, domainID int64, limit int) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT h.name
		FROM domain_host_map m
		JOIN host h ON h.id = m.host_id
		WHERE m.domain_id = $1
		ORDER BY m.id
		LIMIT $2
	`, domainID, limit)
	if err != nil {
		return nil, fmt.Errorf("list nameservers: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan nameserver: %w", err)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nameservers: %w", err)
	}
	return out, nil
}

// scanRegistrar returns nil without error when the row does not exist.
func scanRegistrar(row *sql.Row) (*whois.Registrar, error) {
	var (
		r      whois.Registrar
		ianaID sql.NullInt64
	)
	err := row.Scan(&r.ID, &r.Name, &ianaID, &r.WHOISServer, &r.URL, &r.AbuseEmail, &r.AbusePhone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if ianaID.Valid {
		r.IANAID = strconv.FormatInt(ianaID.Int64, 10)
	}
	return &r, nil
}

// scanContact returns nil without error when the row does not exist.
func scanContact(row *sql.Row) (*whois.Contact, error) {
	var c whois.Contact
	err := row.Scan(&c.Identifier, &c.Name, &c.Organization, &c.Street[0], &c.Street[1], &c.Street[2],
		&c.City, &c.Province, &c.PostalCode, &c.Country, &c.Phone, &c.Fax, &c.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sqlc-dev/pqtype"

	"ottie/internal/jobs"
	"ottie/internal/model"
)

// Postgres stores previews in Postgres through the pgx stdlib driver.
// Config columns are json, not jsonb, so the canonical key order written
// by the generator is returned unchanged.
type Postgres struct {
	DB *sql.DB
}

// NewPostgres creates a Store that uses a shared *sql.DB with pooling.
func NewPostgres(database *sql.DB) *Postgres {
	return &Postgres{DB: database}
}

const previewColumns = `id, external_url, status, source_domain,
	raw_html, raw_json, gallery_raw_html, gallery_image_urls,
	structured_data, cleaned_html, normalized_text, markdown,
	generated_config, final_config, call1_started_at, call2_started_at,
	error_message, claimed_at, site_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPreview(row rowScanner) (*model.Preview, error) {
	var (
		p                                       model.Preview
		status                                  string
		sourceDomain, rawHTML, galleryHTML      sql.NullString
		cleaned, normalized, markdown, errMsg   sql.NullString
		rawJSON, images, structured, gen, final pqtype.NullRawMessage
		call1, call2, claimed                   sql.NullTime
		siteID                                  uuid.NullUUID
	)
	err := row.Scan(
		&p.ID, &p.ExternalURL, &status, &sourceDomain,
		&rawHTML, &rawJSON, &galleryHTML, &images,
		&structured, &cleaned, &normalized, &markdown,
		&gen, &final, &call1, &call2,
		&errMsg, &claimed, &siteID, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.Status = model.Status(status)
	p.SourceDomain = sourceDomain.String
	p.RawHTML = rawHTML.String
	p.GalleryRawHTML = galleryHTML.String
	p.CleanedHTML = cleaned.String
	p.NormalizedText = normalized.String
	p.Markdown = markdown.String
	p.ErrorMessage = errMsg.String
	if rawJSON.Valid {
		p.RawJSON = rawJSON.RawMessage
	}
	if images.Valid {
		p.GalleryImageURLs = unmarshalImages(images.RawMessage)
	}
	if structured.Valid {
		p.StructuredData = structured.RawMessage
	}
	if gen.Valid {
		p.GeneratedConfig = gen.RawMessage
	}
	if final.Valid {
		p.FinalConfig = final.RawMessage
	}
	p.Call1StartedAt = nullTime(call1)
	p.Call2StartedAt = nullTime(call2)
	p.ClaimedAt = nullTime(claimed)
	if siteID.Valid {
		id := siteID.UUID
		p.SiteID = &id
	}
	return &p, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullJSON(raw json.RawMessage) pqtype.NullRawMessage {
	return pqtype.NullRawMessage{RawMessage: raw, Valid: len(raw) > 0}
}

// statusIn renders "status IN ($n, ...)" starting at placeholder n.
func statusIn(n int, statuses []model.Status) (string, []any) {
	if len(statuses) == 0 {
		return "FALSE", nil
	}
	marks := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, s := range statuses {
		marks[i] = fmt.Sprintf("$%d", n+i)
		args[i] = string(s)
	}
	return "status IN (" + strings.Join(marks, ", ") + ")", args
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func (s *Postgres) CreatePreview(ctx context.Context, id uuid.UUID, externalURL string) (*model.Preview, error) {
	row := s.DB.QueryRowContext(ctx,
		`INSERT INTO previews (id, external_url, status) VALUES ($1, $2, $3)
		 RETURNING `+previewColumns,
		id, externalURL, string(model.StatusQueued),
	)
	return scanPreview(row)
}

func (s *Postgres) GetPreview(ctx context.Context, id uuid.UUID) (*model.Preview, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+previewColumns+` FROM previews WHERE id = $1`, id)
	return scanPreview(row)
}

// exec runs an update on one preview and maps "no rows" to ErrNotFound.
func (s *Postgres) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// transition sets status to `to` plus any extra assignments, but only
// when the current status allows it. args start at $3.
// transitionQuery builds the guarded status UPDATE. set may reference
// $3 onwards for its own args; the allowed source statuses follow them.
func transitionQuery(id uuid.UUID, to model.Status, from []model.Status, set string, args ...any) (string, []any) {
	cond, condArgs := statusIn(3+len(args), from)
	query := `UPDATE previews SET status = $2, updated_at = now()`
	if set != "" {
		query += ", " + set
	}
	query += " WHERE id = $1 AND " + cond

	all := append([]any{id, string(to)}, args...)
	return query, append(all, condArgs...)
}

func (s *Postgres) transition(ctx context.Context, id uuid.UUID, to model.Status, from []model.Status, set string, args ...any) error {
	query, all := transitionQuery(id, to, from, set, args...)
	res, err := s.DB.ExecContext(ctx, query, all...)
	if err != nil {
		return fmt.Errorf("set status %s: %w", to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := s.GetPreview(ctx, id); err != nil {
		return err
	}
	return ErrInvalidTransition
}

func (s *Postgres) MarkScraping(ctx context.Context, id uuid.UUID, sourceDomain string, claimedAt time.Time) error {
	return s.transition(ctx, id, model.StatusScraping, jobs.AllowedFrom(model.StatusScraping),
		"source_domain = $3, claimed_at = $4", sourceDomain, claimedAt)
}

func (s *Postgres) SaveCapture(ctx context.Context, id uuid.UUID, c model.Capture) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE previews SET raw_html = $2, raw_json = $3, gallery_raw_html = $4, updated_at = now()
		 WHERE id = $1 AND raw_html IS NULL AND raw_json IS NULL`,
		id, nullString(c.RawHTML), nullJSON(c.RawJSON), nullString(c.GalleryRawHTML),
	)
	if err != nil {
		return fmt.Errorf("save capture: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := s.GetPreview(ctx, id); err != nil {
		return err
	}
	return ErrCaptured
}

func (s *Postgres) SaveGallery(ctx context.Context, id uuid.UUID, images []string) error {
	raw, err := marshalImages(images)
	if err != nil {
		return err
	}
	return s.exec(ctx,
		`UPDATE previews SET gallery_image_urls = $2, updated_at = now() WHERE id = $1`,
		id, nullJSON(raw),
	)
}

func (s *Postgres) SaveExtraction(ctx context.Context, id uuid.UUID, e model.Extraction) error {
	return s.exec(ctx,
		`UPDATE previews SET structured_data = $2, cleaned_html = $3, normalized_text = $4, markdown = $5,
		 updated_at = now() WHERE id = $1`,
		id, nullJSON(e.StructuredData), nullString(e.CleanedHTML), nullString(e.NormalizedText), nullString(e.Markdown),
	)
}

func (s *Postgres) MarkPending(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, model.StatusPending, jobs.AllowedFrom(model.StatusPending), "")
}

func (s *Postgres) MarkCallStarted(ctx context.Context, id uuid.UUID, stage model.Stage, at time.Time) error {
	switch stage {
	case model.StageCall1:
		return s.exec(ctx,
			`UPDATE previews SET call1_started_at = $2, call2_started_at = NULL,
			 generated_config = NULL, final_config = NULL, updated_at = now() WHERE id = $1`,
			id, at,
		)
	case model.StageCall2:
		return s.exec(ctx,
			`UPDATE previews SET call2_started_at = $2, final_config = NULL, updated_at = now() WHERE id = $1`,
			id, at,
		)
	default:
		return ErrInvalidTransition
	}
}

func (s *Postgres) SaveGeneratedConfig(ctx context.Context, id uuid.UUID, cfg json.RawMessage) error {
	return s.exec(ctx,
		`UPDATE previews SET generated_config = $2, updated_at = now() WHERE id = $1`,
		id, nullJSON(cfg),
	)
}

func (s *Postgres) SaveFinalConfig(ctx context.Context, id uuid.UUID, cfg json.RawMessage) error {
	return s.exec(ctx,
		`UPDATE previews SET final_config = $2, updated_at = now() WHERE id = $1`,
		id, nullJSON(cfg),
	)
}

func (s *Postgres) Complete(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, model.StatusCompleted, jobs.AllowedFrom(model.StatusCompleted), "")
}

func (s *Postgres) Fail(ctx context.Context, id uuid.UUID, message string) error {
	return s.transition(ctx, id, model.StatusError, jobs.AllowedFrom(model.StatusError),
		"error_message = $3", message)
}

func (s *Postgres) Resume(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, model.StatusPending, jobs.ResumableFrom(model.StatusPending),
		"error_message = NULL")
}

func listByStatusQuery(statuses []model.Status, updatedBefore time.Time, limit int) (string, []any) {
	cond, args := statusIn(1, statuses)
	query := `SELECT ` + previewColumns + ` FROM previews WHERE ` + cond
	if !updatedBefore.IsZero() {
		args = append(args, updatedBefore)
		query += fmt.Sprintf(" AND updated_at < $%d", len(args))
	}
	query += " ORDER BY created_at, id"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args
}

func (s *Postgres) ListByStatus(ctx context.Context, statuses []model.Status, updatedBefore time.Time, limit int) ([]*model.Preview, error) {
	query, args := listByStatusQuery(statuses, updatedBefore, limit)
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Preview
	for rows.Next() {
		p, err := scanPreview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Postgres) DeleteExpiredPreviews(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM previews WHERE site_id IS NULL AND created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Postgres) ClaimPreview(ctx context.Context, site model.Site) (*model.Site, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		status string
		siteID uuid.NullUUID
		final  pqtype.NullRawMessage
	)
	err = tx.QueryRowContext(ctx,
		`SELECT status, site_id, final_config FROM previews WHERE id = $1 FOR UPDATE`,
		site.PreviewID,
	).Scan(&status, &siteID, &final)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if siteID.Valid {
		existing, err := scanSite(tx.QueryRowContext(ctx,
			`SELECT id, preview_id, workspace_id, user_id, slug, config, created_at FROM sites WHERE id = $1`,
			siteID.UUID,
		))
		if err != nil {
			return nil, err
		}
		return existing, tx.Commit()
	}
	if model.Status(status) != model.StatusCompleted {
		return nil, ErrNotCompleted
	}

	site.Config = final.RawMessage
	created, err := scanSite(tx.QueryRowContext(ctx,
		`INSERT INTO sites (id, preview_id, workspace_id, user_id, slug, config)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, preview_id, workspace_id, user_id, slug, config, created_at`,
		site.ID, site.PreviewID, site.WorkspaceID, site.UserID, site.Slug, nullJSON(site.Config),
	))
	if err != nil {
		return nil, fmt.Errorf("insert site: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE previews SET site_id = $2, updated_at = now() WHERE id = $1`,
		site.PreviewID, created.ID,
	); err != nil {
		return nil, err
	}
	return created, tx.Commit()
}

func scanSite(row rowScanner) (*model.Site, error) {
	var (
		site model.Site
		cfg  pqtype.NullRawMessage
	)
	if err := row.Scan(&site.ID, &site.PreviewID, &site.WorkspaceID, &site.UserID, &site.Slug, &cfg, &site.CreatedAt); err != nil {
		return nil, err
	}
	if cfg.Valid {
		site.Config = cfg.RawMessage
	}
	return &site, nil
}

func (s *Postgres) SlugTaken(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := s.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sites WHERE slug = $1)`, slug).Scan(&exists)
	return exists, err
}

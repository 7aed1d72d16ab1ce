package services

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/learnhub/backend/internal/models"
)

// CatalogService is the read side of the course and exam catalog. It
// exists for the cart (price snapshots) and for popularity listings fed
// by the counters checkout increments; content itself lives elsewhere.
type CatalogService struct {
	db *sql.DB
}

func NewCatalogService(db *sql.DB) *CatalogService {
	return &CatalogService{db: db}
}

// List returns catalog items, optionally filtered by kind.
func (s *CatalogService) List(ctx context.Context, kind string, limit int) ([]models.Course, error) {
	query := `
		SELECT id, kind, name, price, description, thumbnail, popularity, created_at
		FROM courses`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = $1`
		args = append(args, kind)
	}
	query += ` ORDER BY name LIMIT $` + strconv.Itoa(len(args)+1)
	args = append(args, limit)

	return s.query(ctx, query, args...)
}

// Popular returns the most purchased items.
func (s *CatalogService) Popular(ctx context.Context, limit int) ([]models.Course, error) {
	return s.query(ctx, `
		SELECT id, kind, name, price, description, thumbnail, popularity, created_at
		FROM courses
		ORDER BY popularity DESC, name
		LIMIT $1`, limit)
}

// Get returns one catalog item.
func (s *CatalogService) Get(ctx context.Context, id string) (*models.Course, error) {
	var c models.Course
	err := s.db.QueryRowContext(ctx, `
		SELECT id, kind, name, price, description, thumbnail, popularity, created_at
		FROM courses
		WHERE id = $1`, id,
	).Scan(&c.ID, &c.Kind, &c.Name, &c.Price, &c.Description, &c.Thumbnail, &c.Popularity, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ruleViolation(RuleNotFound, "item %s not found", id)
		}
		return nil, storageErr("catalog lookup", err)
	}
	return &c, nil
}

func (s *CatalogService) query(ctx context.Context, query string, args ...any) ([]models.Course, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("catalog query", err)
	}
	defer rows.Close()

	courses := []models.Course{}
	for rows.Next() {
		var c models.Course
		if err := rows.Scan(&c.ID, &c.Kind, &c.Name, &c.Price, &c.Description,
			&c.Thumbnail, &c.Popularity, &c.CreatedAt); err != nil {
			return nil, storageErr("catalog scan", err)
		}
		courses = append(courses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("catalog rows", err)
	}

	return courses, nil
}

// ListHandler returns catalog items
// @Summary List catalog items
// @Tags catalog
// @Produce json
// @Param kind query string false "Filter by kind (course|exam)"
// @Success 200 {object} object{items=[]models.Course,count=int}
// @Router /catalog [get]
func (s *CatalogService) ListHandler(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	if kind != "" && kind != models.ItemKindCourse && kind != models.ItemKindExam {
		SendErrorResponse(w, "invalid kind filter", http.StatusBadRequest, nil)
		return
	}

	items, err := s.List(r.Context(), kind, 100)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch catalog", http.StatusInternalServerError, nil)
		return
	}

	SendJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

// PopularHandler returns the most purchased items
// @Summary List popular items
// @Tags catalog
// @Produce json
// @Success 200 {array} models.Course
// @Router /catalog/popular [get]
func (s *CatalogService) PopularHandler(w http.ResponseWriter, r *http.Request) {
	items, err := s.Popular(r.Context(), 20)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch catalog", http.StatusInternalServerError, nil)
		return
	}

	SendJSON(w, http.StatusOK, items)
}

// GetHandler returns one catalog item
// @Summary Get catalog item
// @Tags catalog
// @Produce json
// @Param itemId path string true "Item ID"
// @Success 200 {object} models.Course
// @Failure 404 {object} services.ErrorResponse
// @Router /catalog/{itemId} [get]
func (s *CatalogService) GetHandler(w http.ResponseWriter, r *http.Request) {
	item, err := s.Get(r.Context(), chi.URLParam(r, "itemId"))
	if err != nil {
		SendCoreError(w, err)
		return
	}

	SendJSON(w, http.StatusOK, item)
}

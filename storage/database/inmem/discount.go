package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/intellibus/aimasterclass/core"
	"github.com/intellibus/aimasterclass/core/discount"
)

type discountRepository struct {
	db *DB
}

var _ discount.Repository = (*discountRepository)(nil) // interface compliance check

func NewDiscountRepository(db *DB) *discountRepository {
	return &discountRepository{db: db}
}

func (repo *discountRepository) CreateRequest(_ context.Context, req discount.Request, _ ...core.DBExecutor) (discount.Request, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	repo.db.discounts[req.ID] = &req
	return req, nil
}

func (repo *discountRepository) GetRequest(_ context.Context, id string, _ ...core.DBExecutor) (discount.Request, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if req, ok := repo.db.discounts[id]; ok {
		return *req, nil
	}
	return discount.Request{}, discount.ErrNotFound
}

func (repo *discountRepository) UpdateRequest(_ context.Context, req discount.Request, _ ...core.DBExecutor) (discount.Request, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.discounts[req.ID]; !ok {
		return discount.Request{}, discount.ErrNotFound
	}
	repo.db.discounts[req.ID] = &req
	return req, nil
}

func (repo *discountRepository) matches(req discount.Request, filter *discount.QueryFilter) bool {
	if filter == nil {
		return true
	}
	if filter.Status != "" && req.Status != filter.Status {
		return false
	}
	if filter.Search != "" {
		s := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(req.Name), s) &&
			!strings.Contains(strings.ToLower(req.Email), s) &&
			!strings.Contains(strings.ToLower(req.Company), s) {
			return false
		}
	}
	return true
}

func (repo *discountRepository) QueryRequests(_ context.Context, filter *discount.QueryFilter, limit, offset int, _ ...core.DBExecutor) ([]discount.Request, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	out := make([]discount.Request, 0)
	for _, req := range repo.db.discounts {
		if repo.matches(*req, filter) {
			out = append(out, *req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if limit <= 0 {
		return out, nil
	}
	if offset >= len(out) {
		return []discount.Request{}, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (repo *discountRepository) CountRequests(_ context.Context, filter *discount.QueryFilter, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var cnt int
	for _, req := range repo.db.discounts {
		if repo.matches(*req, filter) {
			cnt++
		}
	}
	return cnt, nil
}

func (repo *discountRepository) CountPendingRequests(_ context.Context, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var cnt int
	for _, req := range repo.db.discounts {
		if req.Status == discount.StatusPending {
			cnt++
		}
	}
	return cnt, nil
}

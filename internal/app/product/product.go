// Package product is the catalog module: product pages, a paged listing and
// product creation.
package product

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/wangfeng/cherrycake-gateway/internal/repository"
	"github.com/wangfeng/cherrycake-gateway/pkg/action"
	"github.com/wangfeng/cherrycake-gateway/pkg/models"
	"github.com/wangfeng/cherrycake-gateway/pkg/module"
	"github.com/wangfeng/cherrycake-gateway/pkg/request"
	"github.com/wangfeng/cherrycake-gateway/pkg/security"
)

// Name is the module name actions refer to.
const Name = "Product"

// Action names mapped by the module.
const (
	ActionShow   = "productShow"
	ActionList   = "productList"
	ActionCreate = "productCreate"
	ActionCoupon = "productCoupon"
)

// PageSize is the number of products per listing page.
const PageSize = 20

// MaxPage bounds the page query parameter.
const MaxPage = 100000

// CacheResetter drops cached action outcomes.
type CacheResetter interface {
	ResetCache(ctx context.Context, name string, params map[string]string) error
}

// Module serves the catalog.
type Module struct {
	repo   repository.ProductRepository
	seed   []models.Product
	logger *slog.Logger
	resets CacheResetter
}

// New creates the product module. Seed products are stored on Init.
func New(repo repository.ProductRepository, logger *slog.Logger, seed ...models.Product) *Module {
	if logger == nil {
		logger = slog.Default()
	}
	return &Module{repo: repo, seed: seed, logger: logger}
}

func (m *Module) Name() string            { return Name }
func (m *Module) Kind() action.ModuleKind { return action.ModuleApp }

// Init stores the seed products that are not stored yet.
func (m *Module) Init(ctx context.Context) error {
	for i := range m.seed {
		p := m.seed[i]
		err := m.repo.Create(ctx, &p)
		if err != nil && !errors.Is(err, repository.ErrDuplicateSlug) {
			return fmt.Errorf("seed %s: %w", p.Slug, err)
		}
	}
	return nil
}

func (m *Module) Methods() map[string]action.HandlerFunc {
	return map[string]action.HandlerFunc{
		"show":   m.show,
		"list":   m.list,
		"create": m.create,
		"coupon": m.coupon,
	}
}

// MapActions maps the catalog actions. When the mapper can also reset
// cached outcomes, creating a product resets every listing page that holds
// products. Cached pages past the last one keep a stale total until they
// expire.
func (m *Module) MapActions(mp module.Mapper) error {
	if r, ok := mp.(CacheResetter); ok {
		m.resets = r
	}

	slug := request.Parameter{
		Name:          "slug",
		Source:        request.SourcePath,
		SecurityRules: []string{security.RuleNotEmpty, security.RuleSlug},
		Filters:       []string{security.FilterTrim, security.FilterLower},
		Description:   "Product slug",
	}

	actions := []struct {
		name   string
		action *action.Action
	}{
		{ActionCreate, &action.Action{
			ModuleKind: action.ModuleApp,
			ModuleName: Name,
			MethodName: "create",
			Request: request.MustNew(request.Config{
				Path: []request.PathComponent{request.Fixed("products"), request.Fixed("new")},
				Parameters: []request.Parameter{
					{Name: "slug", Source: request.SourceBody, SecurityRules: []string{security.RuleNotEmpty, security.RuleSlug}, Filters: []string{security.FilterTrim}},
					{Name: "name", Source: request.SourceBody, SecurityRules: []string{security.RuleNotEmpty, security.RuleMaxChars + "=120"}, Filters: []string{security.FilterTrim, security.FilterStripTags}},
					{Name: "description", Source: request.SourceBody, Filters: []string{security.FilterTrim, security.FilterStripTags}},
					{Name: "price", Source: request.SourceBody, SecurityRules: []string{security.RuleInteger, security.RuleMinValue + "=0"}, Filters: []string{security.FilterTrim}},
				},
				CSRF:        true,
				Description: "Create a product",
			}),
		}},
		{ActionList, &action.Action{
			ModuleKind: action.ModuleApp,
			ModuleName: Name,
			MethodName: "list",
			Request: request.MustNew(request.Config{
				Path: []request.PathComponent{request.Fixed("products")},
				Parameters: []request.Parameter{
					{Name: "page", Source: request.SourceQuery, SecurityRules: []string{security.RulePositive, security.RuleMaxValue + "=" + strconv.Itoa(MaxPage)}, Filters: []string{security.FilterTrim, security.FilterInt}, Description: "Page number, from 1"},
				},
				Description: "List products",
			}),
			Cache: action.CacheConfig{Enabled: true},
		}},
		{ActionShow, &action.Action{
			ModuleKind: action.ModuleApp,
			ModuleName: Name,
			MethodName: "show",
			Request: request.MustNew(request.Config{
				Path:        []request.PathComponent{request.Fixed("product"), request.Variable("slug")},
				Parameters:  []request.Parameter{slug},
				Description: "Show a product",
			}),
		}},
		{ActionCoupon, &action.Action{
			ModuleKind: action.ModuleApp,
			ModuleName: Name,
			MethodName: "coupon",
			Request: request.MustNew(request.Config{
				Path: []request.PathComponent{request.Fixed("product"), request.Variable("slug"), request.Fixed("coupon")},
				Parameters: []request.Parameter{
					slug,
					{Name: "code", Source: request.SourceQuery, SecurityRules: []string{security.RuleNotEmpty, security.RuleAlphanumeric, security.RuleMaxChars + "=32"}, Filters: []string{security.FilterTrim, security.FilterUpper}},
				},
				Description: "Check a coupon code",
			}),
			SensitiveToBruteForce: true,
		}},
	}

	for _, a := range actions {
		if err := mp.MapAction(a.name, a.action); err != nil {
			return err
		}
	}
	return nil
}

// show declines unknown slugs so another action, or not found, can answer.
func (m *Module) show(ctx context.Context, call *action.Call) action.Outcome {
	p, err := m.repo.GetBySlug(ctx, call.Param("slug"))
	if errors.Is(err, repository.ErrNotFound) {
		return action.Declined()
	}
	if err != nil {
		return action.Error(err)
	}
	if err := call.RespondJSON(http.StatusOK, p); err != nil {
		return action.Error(err)
	}
	return action.Accepted()
}

func (m *Module) list(ctx context.Context, call *action.Call) action.Outcome {
	page := 1
	if call.Values.IsReceived("page") {
		n, err := strconv.Atoi(call.Param("page"))
		if err != nil || n < 1 || n > MaxPage {
			return action.Declined()
		}
		page = n
	}

	total, err := m.repo.Count(ctx)
	if err != nil {
		return action.Error(err)
	}
	products, err := m.repo.List(ctx, (page-1)*PageSize, PageSize)
	if err != nil {
		return action.Error(err)
	}

	if err := call.RespondJSON(http.StatusOK, models.Page{
		Number:   page,
		Size:     PageSize,
		Total:    total,
		Products: products,
	}); err != nil {
		return action.Error(err)
	}
	return action.Accepted()
}

func (m *Module) create(ctx context.Context, call *action.Call) action.Outcome {
	p := &models.Product{
		Slug:        call.Param("slug"),
		Name:        call.Param("name"),
		Description: call.Param("description"),
	}
	if call.Values.IsReceived("price") {
		price, err := strconv.ParseInt(call.Param("price"), 10, 64)
		if err != nil {
			return action.Declined()
		}
		p.PriceCents = price
	}

	err := m.repo.Create(ctx, p)
	if errors.Is(err, repository.ErrDuplicateSlug) {
		if err := call.RespondJSON(http.StatusConflict, map[string]string{"error": "Slug already exists"}); err != nil {
			return action.Error(err)
		}
		return action.Accepted()
	}
	if err != nil {
		return action.Error(err)
	}

	m.resetListing(ctx)

	if err := call.RespondJSON(http.StatusCreated, p); err != nil {
		return action.Error(err)
	}
	return action.Accepted()
}

// resetListing drops the cached listing without a page parameter and every
// page up to the last one.
func (m *Module) resetListing(ctx context.Context) {
	if m.resets == nil {
		return
	}
	total, err := m.repo.Count(ctx)
	if err != nil {
		m.logger.WarnContext(ctx, "Failed to count products", slog.String("error", err.Error()))
		total = PageSize
	}
	last := min(max((total+PageSize-1)/PageSize, 1), MaxPage)

	params := []map[string]string{nil}
	for page := 1; page <= last; page++ {
		params = append(params, map[string]string{"page": strconv.Itoa(page)})
	}
	for _, p := range params {
		if err := m.resets.ResetCache(ctx, ActionList, p); err != nil {
			m.logger.WarnContext(ctx, "Failed to reset listing cache", slog.String("error", err.Error()))
		}
	}
}

// coupon declines wrong codes; the action is brute force sensitive so every
// wrong guess is slowed down.
func (m *Module) coupon(ctx context.Context, call *action.Call) action.Outcome {
	p, err := m.repo.GetBySlug(ctx, call.Param("slug"))
	if errors.Is(err, repository.ErrNotFound) {
		return action.Declined()
	}
	if err != nil {
		return action.Error(err)
	}

	code := p.Attributes["coupon"]
	if code == "" || subtle.ConstantTimeCompare([]byte(code), []byte(call.Param("code"))) != 1 {
		return action.Declined()
	}

	if err := call.RespondJSON(http.StatusOK, map[string]string{
		"product":  p.Slug,
		"discount": p.Attributes["discount"],
	}); err != nil {
		return action.Error(err)
	}
	return action.Accepted()
}

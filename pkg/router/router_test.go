package router_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangfeng/cherrycake-gateway/pkg/action"
	"github.com/wangfeng/cherrycake-gateway/pkg/cache"
	"github.com/wangfeng/cherrycake-gateway/pkg/module"
	"github.com/wangfeng/cherrycake-gateway/pkg/output"
	"github.com/wangfeng/cherrycake-gateway/pkg/request"
	"github.com/wangfeng/cherrycake-gateway/pkg/router"
	"github.com/wangfeng/cherrycake-gateway/pkg/security"
)

// testModule counts invocations per method.
type testModule struct {
	name    string
	methods map[string]action.HandlerFunc

	mu    sync.Mutex
	calls map[string]int
}

func newTestModule(name string) *testModule {
	return &testModule{name: name, methods: make(map[string]action.HandlerFunc), calls: make(map[string]int)}
}

func (m *testModule) Name() string               { return m.name }
func (m *testModule) Kind() action.ModuleKind    { return action.ModuleApp }
func (m *testModule) Init(context.Context) error { return nil }

func (m *testModule) Methods() map[string]action.HandlerFunc {
	out := make(map[string]action.HandlerFunc, len(m.methods))
	for name, h := range m.methods {
		name, h := name, h
		out[name] = func(ctx context.Context, call *action.Call) action.Outcome {
			m.mu.Lock()
			m.calls[name]++
			m.mu.Unlock()
			return h(ctx, call)
		}
	}
	return out
}

func (m *testModule) handle(method string, h action.HandlerFunc) *testModule {
	m.methods[method] = h
	return m
}

func (m *testModule) count(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

type harness struct {
	actions *router.Actions
	memory  *cache.Memory
	slept   []time.Duration
}

func newHarness(t *testing.T, modules ...module.Module) *harness {
	t.Helper()
	h := &harness{memory: cache.NewMemory()}

	loader := module.NewLoader(nil)
	require.NoError(t, loader.Register(modules...))
	caches := cache.NewRegistry()
	caches.Register("fast", h.memory)

	var mu sync.Mutex
	h.actions = router.New(router.DefaultConfig().WithBruteForce(0, 3), router.Deps{
		Caches:   caches,
		Loader:   loader,
		Security: security.NewChecker(),
		CSRF:     security.NewCSRF(),
		Sleep: func(d time.Duration) {
			mu.Lock()
			h.slept = append(h.slept, d)
			mu.Unlock()
		},
	})
	return h
}

func accept(body string) action.HandlerFunc {
	return func(_ context.Context, call *action.Call) action.Outcome {
		call.Respond(output.Text(http.StatusOK, body))
		return action.Accepted()
	}
}

func decline(context.Context, *action.Call) action.Outcome { return action.Declined() }

func pathAction(module, method string, path []request.PathComponent, params ...request.Parameter) *action.Action {
	return &action.Action{
		ModuleKind: action.ModuleApp,
		ModuleName: module,
		MethodName: method,
		Request:    request.MustNew(request.Config{Path: path, Parameters: params}),
	}
}

func productShow() *action.Action {
	return pathAction("Product", "show",
		[]request.PathComponent{request.Fixed("product"), request.Variable("slug")},
		request.Parameter{Name: "slug", Source: request.SourcePath, SecurityRules: []string{security.RuleNotEmpty, security.RuleSlug}})
}

func TestSplitPath(t *testing.T) {
	tests := []struct {
		uri  string
		want []string
	}{
		{"", nil},
		{"/", nil},
		{"/product/red-shoes?utm=x", []string{"product", "red-shoes"}},
		{"product/red-shoes/", []string{"product", "red-shoes"}},
		{"/tags/a%20b", []string{"tags", "a b"}},
		{"/a//b", []string{"a", "", "b"}},
		{"/?q=1", nil},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			assert.Equal(t, tt.want, router.SplitPath(tt.uri))
		})
	}
}

func TestMapActionLastWriteWinsKeepsPosition(t *testing.T) {
	h := newHarness(t)
	first := pathAction("M", "one", []request.PathComponent{request.Fixed("a")})
	second := pathAction("M", "two", []request.PathComponent{request.Fixed("b")})
	replacement := pathAction("M", "three", []request.PathComponent{request.Fixed("c")})

	require.NoError(t, h.actions.MapAction("first", first))
	require.NoError(t, h.actions.MapAction("second", second))

	got, err := h.actions.GetAction("first")
	require.NoError(t, err)
	assert.Same(t, first, got)

	require.NoError(t, h.actions.MapAction("first", replacement))
	got, err = h.actions.GetAction("first")
	require.NoError(t, err)
	assert.Same(t, replacement, got)
	assert.Equal(t, []string{"first", "second"}, h.actions.Names())
	assert.Equal(t, 2, h.actions.Count())

	_, err = h.actions.GetAction("missing")
	assert.ErrorIs(t, err, router.ErrActionNotFound)
}

func TestMapActionRejectsBadActions(t *testing.T) {
	h := newHarness(t)
	var mappingErr *router.MappingError

	err := h.actions.MapAction("", productShow())
	require.ErrorAs(t, err, &mappingErr)
	assert.ErrorIs(t, err, router.ErrEmptyName)

	err = h.actions.MapAction("noModule", &action.Action{MethodName: "x", Request: request.MustNew(request.Config{})})
	assert.ErrorIs(t, err, action.ErrInvalidAction)

	unknownRule := pathAction("M", "m", nil, request.Parameter{Name: "q", SecurityRules: []string{"bogus"}})
	err = h.actions.MapAction("unknownRule", unknownRule)
	require.ErrorAs(t, err, &mappingErr)
	assert.Equal(t, "unknownRule", mappingErr.Name)
	assert.ErrorIs(t, err, security.ErrUnknownRule)

	badProvider := productShow()
	badProvider.Cache = action.CacheConfig{Enabled: true, Provider: "huge"}
	assert.ErrorIs(t, h.actions.MapAction("badProvider", badProvider), cache.ErrProviderNotFound)

	assert.Equal(t, 0, h.actions.Count())
}

func TestMapActionAppliesCacheDefaults(t *testing.T) {
	h := newHarness(t)
	a := productShow()
	a.Cache.Enabled = true
	require.NoError(t, h.actions.MapAction("show", a))

	cfg := router.DefaultConfig()
	assert.Equal(t, cfg.DefaultCacheProvider, a.Cache.Provider)
	assert.Equal(t, cfg.DefaultCachePrefix, a.Cache.Prefix)
	assert.Equal(t, cfg.DefaultCacheTTL, a.Cache.TTL)
}

func TestRunProductExample(t *testing.T) {
	var slug string
	product := newTestModule("Product").handle("show", func(_ context.Context, call *action.Call) action.Outcome {
		slug = call.Param("slug")
		call.Respond(output.Text(http.StatusOK, "shoes"))
		return action.Accepted()
	})
	h := newHarness(t, product)
	require.NoError(t, h.actions.MapAction("show", productShow()))

	d := h.actions.Run(context.Background(), router.Inbound{URI: "/product/red-shoes?utm=x"})

	assert.Equal(t, router.StatusAccepted, d.Status)
	assert.Equal(t, "show", d.ActionName)
	assert.Equal(t, "red-shoes", slug)
	assert.Equal(t, 1, product.count("show"))
	require.NotNil(t, d.Response)
	assert.Equal(t, "shoes", string(d.Response.Body))
	assert.NotEmpty(t, d.ID)
}

func TestRunSegmentCountMismatchIsNotFound(t *testing.T) {
	product := newTestModule("Product").handle("show", accept("ok"))
	h := newHarness(t, product)
	require.NoError(t, h.actions.MapAction("show", productShow()))

	for _, uri := range []string{"/", "/product", "/product/red-shoes/extra"} {
		d := h.actions.Run(context.Background(), router.Inbound{URI: uri})
		assert.Equal(t, router.StatusNotFound, d.Status, uri)
		assert.Equal(t, http.StatusNotFound, d.Response.StatusCode())
	}
	assert.Equal(t, 0, product.count("show"))
}

func TestRunSkipsCandidatesFailingValidation(t *testing.T) {
	items := newTestModule("Items").
		handle("byID", accept("by id")).
		handle("bySlug", accept("by slug"))
	h := newHarness(t, items)

	byID := pathAction("Items", "byID",
		[]request.PathComponent{request.Fixed("items"), request.Variable("key")},
		request.Parameter{Name: "key", Source: request.SourcePath, SecurityRules: []string{security.RuleInteger}})
	bySlug := pathAction("Items", "bySlug",
		[]request.PathComponent{request.Fixed("items"), request.Variable("key")},
		request.Parameter{Name: "key", Source: request.SourcePath, SecurityRules: []string{security.RuleSlug}})
	require.NoError(t, h.actions.MapAction("itemByID", byID))
	require.NoError(t, h.actions.MapAction("itemBySlug", bySlug))

	d := h.actions.Run(context.Background(), router.Inbound{URI: "/items/blue-hat"})
	assert.Equal(t, "itemBySlug", d.ActionName)
	assert.Equal(t, 0, items.count("byID"))
	assert.Equal(t, 1, items.count("bySlug"))

	d = h.actions.Run(context.Background(), router.Inbound{URI: "/items/12"})
	assert.Equal(t, "itemByID", d.ActionName)
	assert.Equal(t, 1, items.count("byID"))
}

func TestRunDeclineFallsThrough(t *testing.T) {
	m := newTestModule("Pages").
		handle("special", decline).
		handle("generic", accept("generic"))
	h := newHarness(t, m)
	path := []request.PathComponent{request.Fixed("pages"), request.Variable("name")}
	param := request.Parameter{Name: "name", Source: request.SourcePath}
	require.NoError(t, h.actions.MapAction("special", pathAction("Pages", "special", path, param)))
	require.NoError(t, h.actions.MapAction("generic", pathAction("Pages", "generic", path, param)))

	d := h.actions.Run(context.Background(), router.Inbound{URI: "/pages/about"})
	assert.Equal(t, router.StatusAccepted, d.Status)
	assert.Equal(t, "generic", d.ActionName)
	assert.Equal(t, 1, m.count("special"))
	assert.Equal(t, 1, m.count("generic"))
}

func TestRunAllDeclineIsNotFound(t *testing.T) {
	m := newTestModule("Login").handle("check", decline)
	h := newHarness(t, m)
	a := pathAction("Login", "check", []request.PathComponent{request.Fixed("login")})
	a.SensitiveToBruteForce = true
	require.NoError(t, h.actions.MapAction("login", a))

	d := h.actions.Run(context.Background(), router.Inbound{URI: "/login"})
	assert.Equal(t, router.StatusNotFound, d.Status)
	require.Len(t, h.slept, 1)
	assert.LessOrEqual(t, h.slept[0], 3*time.Second)
}

func TestRunErrorStopsDispatch(t *testing.T) {
	m := newTestModule("Pages").
		handle("broken", func(context.Context, *action.Call) action.Outcome { return action.Error(errors.New("db down")) }).
		handle("generic", accept("generic"))
	h := newHarness(t, m)
	path := []request.PathComponent{request.Fixed("pages")}
	require.NoError(t, h.actions.MapAction("broken", pathAction("Pages", "broken", path)))
	require.NoError(t, h.actions.MapAction("generic", pathAction("Pages", "generic", path)))

	d := h.actions.Run(context.Background(), router.Inbound{URI: "/pages"})
	assert.Equal(t, router.StatusError, d.Status)
	assert.Equal(t, "broken", d.ActionName)
	assert.EqualError(t, d.Outcome.Err, "db down")
	assert.Equal(t, http.StatusInternalServerError, d.Response.StatusCode())
	assert.Equal(t, 0, m.count("generic"))
}

func TestRunMissingModuleIsError(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.actions.MapAction("show", productShow()))

	d := h.actions.Run(context.Background(), router.Inbound{URI: "/product/x"})
	assert.Equal(t, router.StatusError, d.Status)
	assert.ErrorIs(t, d.Outcome.Err, module.ErrModuleNotFound)
}

func TestRunWithoutLoaderIsError(t *testing.T) {
	actions := router.New(router.DefaultConfig(), router.Deps{})
	require.NoError(t, actions.MapAction("show", productShow()))

	d := actions.Run(context.Background(), router.Inbound{URI: "/product/x"})
	assert.Equal(t, router.StatusError, d.Status)
	assert.ErrorIs(t, d.Outcome.Err, action.ErrNoLoader)
	assert.Equal(t, http.StatusInternalServerError, d.Response.StatusCode())
}

func TestRunCachedAndReset(t *testing.T) {
	m := newTestModule("Catalog").handle("list", func(_ context.Context, call *action.Call) action.Outcome {
		call.Respond(output.Text(http.StatusOK, "page "+call.Param("page")))
		return action.Accepted()
	})
	h := newHarness(t, m)
	a := pathAction("Catalog", "list", []request.PathComponent{request.Fixed("catalog")},
		request.Parameter{Name: "page", Source: request.SourceQuery, SecurityRules: []string{security.RulePositive}, Filters: []string{security.FilterTrim}})
	a.Cache.Enabled = true
	require.NoError(t, h.actions.MapAction("catalog", a))
	ctx := context.Background()

	first := h.actions.Run(ctx, router.Inbound{URI: "/catalog", Query: url.Values{"page": {"2"}}})
	second := h.actions.Run(ctx, router.Inbound{URI: "/catalog?page=2"})
	assert.Equal(t, 1, m.count("list"))
	assert.True(t, second.Outcome.CacheHit)
	assert.Equal(t, first.Response.Body, second.Response.Body)

	require.NoError(t, h.actions.ResetCache(ctx, "catalog", map[string]string{"page": " 2 "}))
	third := h.actions.Run(ctx, router.Inbound{URI: "/catalog?page=2"})
	assert.False(t, third.Outcome.CacheHit)
	assert.Equal(t, 2, m.count("list"))

	assert.ErrorIs(t, h.actions.ResetCache(ctx, "nope", nil), router.ErrActionNotFound)
}

func TestBuildURLRoundTrip(t *testing.T) {
	var id string
	m := newTestModule("Items").handle("show", func(_ context.Context, call *action.Call) action.Outcome {
		id = call.Param("id")
		return action.Accepted()
	})
	h := newHarness(t, m)
	require.NoError(t, h.actions.MapAction("item", pathAction("Items", "show",
		[]request.PathComponent{request.Fixed("items"), request.Variable("id")},
		request.Parameter{Name: "id", Source: request.SourcePath})))

	u, err := h.actions.BuildURL("item", map[string]string{"id": "42"}, request.URLOptions{})
	require.NoError(t, err)
	assert.Equal(t, "/items/42", u)

	d := h.actions.Run(context.Background(), router.Inbound{URI: u})
	assert.Equal(t, router.StatusAccepted, d.Status)
	assert.Equal(t, "42", id)

	_, err = h.actions.BuildURL("missing", nil, request.URLOptions{})
	assert.ErrorIs(t, err, router.ErrActionNotFound)
}

func TestRunConcurrentDispatches(t *testing.T) {
	m := newTestModule("Items").handle("show", func(_ context.Context, call *action.Call) action.Outcome {
		call.Respond(output.Text(http.StatusOK, call.Param("id")))
		return action.Accepted()
	})
	h := newHarness(t, m)
	require.NoError(t, h.actions.MapAction("item", pathAction("Items", "show",
		[]request.PathComponent{request.Fixed("items"), request.Variable("id")},
		request.Parameter{Name: "id", Source: request.SourcePath})))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			d := h.actions.Run(context.Background(), router.Inbound{URI: "/items/" + id})
			assert.Equal(t, id, string(d.Response.Body))
		}(strconv.Itoa(i))
	}
	wg.Wait()
}

func TestOpenAPI(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.actions.MapAction("show", productShow()))
	create := pathAction("Product", "create", []request.PathComponent{request.Fixed("product")},
		request.Parameter{Name: "name", Source: request.SourceBody, SecurityRules: []string{security.RuleNotEmpty}})
	require.NoError(t, h.actions.MapAction("create", create))
	list := pathAction("Product", "list", []request.PathComponent{request.Fixed("product")},
		request.Parameter{Name: "page", Source: request.SourceQuery, SecurityRules: []string{security.RulePositive}})
	require.NoError(t, h.actions.MapAction("list", list))

	doc := h.actions.OpenAPI("cherrycake", "test")
	assert.Equal(t, 2, doc.Paths.Len())

	show := doc.Paths.Value("/product/{slug}")
	require.NotNil(t, show)
	require.NotNil(t, show.Get)
	assert.Equal(t, "show", show.Get.OperationID)
	require.Len(t, show.Get.Parameters, 1)
	assert.Equal(t, "path", show.Get.Parameters[0].Value.In)

	root := doc.Paths.Value("/product")
	require.NotNil(t, root)
	require.NotNil(t, root.Post)
	assert.Equal(t, "create", root.Post.OperationID)
	require.NotNil(t, root.Get)
	assert.Equal(t, "list", root.Get.OperationID)
}

package request_test

import (
	"errors"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangfeng/cherrycake-gateway/pkg/request"
	"github.com/wangfeng/cherrycake-gateway/pkg/security"
)

func itemsRequest(t *testing.T) *request.Request {
	t.Helper()
	r, err := request.New(request.Config{
		Path: []request.PathComponent{request.Fixed("items"), request.Variable("id")},
		Parameters: []request.Parameter{
			{Name: "id", Source: request.SourcePath, SecurityRules: []string{security.RuleNotEmpty, security.RuleInteger}},
			{Name: "page", Source: request.SourceQuery, SecurityRules: []string{security.RulePositive}, Filters: []string{security.FilterTrim}},
			{Name: "note", Source: request.SourceBody, Filters: []string{security.FilterTrim}},
		},
	})
	require.NoError(t, err)
	return r
}

func TestNewRejectsBadDefinitions(t *testing.T) {
	tests := []struct {
		name string
		cfg  request.Config
	}{
		{
			name: "undeclared variable parameter",
			cfg:  request.Config{Path: []request.PathComponent{request.Fixed("items"), request.Variable("id")}},
		},
		{
			name: "variable bound to query parameter",
			cfg: request.Config{
				Path:       []request.PathComponent{request.Variable("id")},
				Parameters: []request.Parameter{{Name: "id", Source: request.SourceQuery}},
			},
		},
		{
			name: "duplicate parameter",
			cfg: request.Config{
				Parameters: []request.Parameter{{Name: "q"}, {Name: "q"}},
			},
		},
		{
			name: "unbound path parameter",
			cfg: request.Config{
				Path:       []request.PathComponent{request.Fixed("items")},
				Parameters: []request.Parameter{{Name: "id", Source: request.SourcePath}},
			},
		},
		{
			name: "empty literal",
			cfg:  request.Config{Path: []request.PathComponent{request.Fixed("")}},
		},
		{
			name: "literal with slash",
			cfg:  request.Config{Path: []request.PathComponent{request.Fixed("a/b")}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := request.New(tt.cfg)
			assert.ErrorIs(t, err, request.ErrInvalidRequest)
		})
	}
}

func TestValidateUsesSecurityTables(t *testing.T) {
	r := request.MustNew(request.Config{
		Parameters: []request.Parameter{{Name: "q", SecurityRules: []string{"bogus"}}},
	})
	assert.ErrorIs(t, r.Validate(security.NewChecker()), security.ErrUnknownRule)

	r = request.MustNew(request.Config{
		Parameters: []request.Parameter{{Name: "q", Filters: []string{"bogus"}}},
	})
	assert.ErrorIs(t, r.Validate(security.NewChecker()), security.ErrUnknownFilter)

	assert.NoError(t, itemsRequest(t).Validate(security.NewChecker()))
}

func TestMatchesPath(t *testing.T) {
	r := itemsRequest(t)

	assert.True(t, r.MatchesPath([]string{"items", "42"}))
	assert.False(t, r.MatchesPath([]string{"items"}))
	assert.False(t, r.MatchesPath([]string{"items", "42", "edit"}))
	assert.False(t, r.MatchesPath([]string{"products", "42"}))
	assert.False(t, r.MatchesPath([]string{"items", ""}))

	root := request.MustNew(request.Config{})
	assert.True(t, root.MatchesPath(nil))
	assert.False(t, root.MatchesPath([]string{"x"}))
}

func TestRetrieveBindsValuesPerCall(t *testing.T) {
	r := itemsRequest(t)
	sec := security.NewChecker()

	v, err := r.Retrieve([]string{"items", "42"}, url.Values{"page": {" 3 "}, "utm": {"x"}}, url.Values{"note": {" hi "}}, sec)
	require.NoError(t, err)

	assert.True(t, v.IsReceived("id"))
	assert.Equal(t, "42", v.Get("id"))
	raw, ok := v.Raw("page")
	assert.True(t, ok)
	assert.Equal(t, " 3 ", raw)
	assert.Equal(t, "3", v.Get("page"))
	assert.Equal(t, "hi", v.Get("note"))
	assert.False(t, v.IsReceived("utm"))
	assert.Equal(t, map[string]string{"id": "42", "page": "3", "note": "hi"}, v.Map())

	other, err := r.Retrieve([]string{"items", "7"}, nil, nil, sec)
	require.NoError(t, err)
	assert.Equal(t, "7", other.Get("id"))
	assert.False(t, other.IsReceived("page"))
	assert.Equal(t, "42", v.Get("id"), "earlier values must not be overwritten")
}

func TestRetrieveRejectsFailingRules(t *testing.T) {
	r := itemsRequest(t)
	sec := security.NewChecker()

	_, err := r.Retrieve([]string{"items", "abc"}, nil, nil, sec)
	require.Error(t, err)
	assert.ErrorIs(t, err, request.ErrRejected)

	var rej *request.RejectionError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, "id", rej.Parameter)
	assert.False(t, rej.Report.OK())

	_, err = r.Retrieve([]string{"items", "1"}, url.Values{"page": {"0"}}, nil, sec)
	assert.ErrorIs(t, err, request.ErrRejected)

	_, err = r.Retrieve([]string{"other", "1"}, nil, nil, sec)
	assert.ErrorIs(t, err, request.ErrPathMismatch)
}

func TestRetrieveMissingRequiredQueryParameter(t *testing.T) {
	r := request.MustNew(request.Config{
		Path:       []request.PathComponent{request.Fixed("search")},
		Parameters: []request.Parameter{{Name: "q", Source: request.SourceQuery, SecurityRules: []string{security.RuleNotEmpty}}},
	})

	_, err := r.Retrieve([]string{"search"}, nil, nil, security.NewChecker())
	assert.ErrorIs(t, err, request.ErrRejected)

	v, err := r.Retrieve([]string{"search"}, url.Values{"q": {"shoes"}}, nil, security.NewChecker())
	require.NoError(t, err)
	assert.Equal(t, "shoes", v.Get("q"))
}

func TestBuildURLRoundTrip(t *testing.T) {
	r := itemsRequest(t)

	u, err := r.BuildURL(map[string]string{"id": "42"}, request.URLOptions{})
	require.NoError(t, err)
	assert.Equal(t, "/items/42", u)

	v, err := r.Retrieve([]string{"items", "42"}, nil, nil, security.NewChecker())
	require.NoError(t, err)
	assert.Equal(t, "42", v.Get("id"))

	u, err = r.BuildURL(map[string]string{"id": "42", "page": "2", "note": "ignored"}, request.URLOptions{Locale: "es", CacheBust: "v9"})
	require.NoError(t, err)
	assert.Equal(t, "/es/items/42?cb=v9&page=2", u)

	_, err = r.BuildURL(map[string]string{}, request.URLOptions{})
	assert.ErrorIs(t, err, request.ErrMissingParameter)

	escaped := request.MustNew(request.Config{
		Path:       []request.PathComponent{request.Fixed("tags"), request.Variable("tag")},
		Parameters: []request.Parameter{{Name: "tag", Source: request.SourcePath}},
	})
	u, err = escaped.BuildURL(map[string]string{"tag": "a b/c"}, request.URLOptions{})
	require.NoError(t, err)
	assert.Equal(t, "/tags/a%20b%2Fc", u)

	root := request.MustNew(request.Config{})
	u, err = root.BuildURL(nil, request.URLOptions{})
	require.NoError(t, err)
	assert.Equal(t, "/", u)
}

func TestCacheKeyIsDeterministic(t *testing.T) {
	r := request.MustNew(request.Config{
		Path: []request.PathComponent{request.Fixed("items"), request.Variable("id")},
		Parameters: []request.Parameter{
			{Name: "id", Source: request.SourcePath},
			{Name: "page", Source: request.SourceQuery},
		},
		AdditionalCacheKeys: map[string]string{"lang": "en"},
	})

	a := r.CacheKey(map[string]string{"page": "2", "id": "42"})
	b := r.CacheKey(map[string]string{"id": "42", "page": "2", "undeclared": "x"})
	assert.Equal(t, a, b)
	assert.Equal(t, "items/{id}?id=42&lang=en&page=2", a)
	assert.NotEqual(t, a, r.CacheKey(map[string]string{"id": "43", "page": "2"}))
	assert.Equal(t, "/items/{id}", r.Pattern())
}

func TestConcurrentRetrieveDoesNotShareState(t *testing.T) {
	r := itemsRequest(t)
	sec := security.NewChecker()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			v, err := r.Retrieve([]string{"items", id}, nil, nil, sec)
			if assert.NoError(t, err) {
				assert.Equal(t, id, v.Get("id"))
			}
		}(url.PathEscape(string(rune('1' + i%9))))
	}
	wg.Wait()
}

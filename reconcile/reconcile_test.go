package reconcile

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/sardine-ai/fieldview/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discovered(keys ...string) []model.Discovered {
	out := make([]model.Discovered, len(keys))
	for i, k := range keys {
		out[i] = model.Discovered{Key: k, Label: "L-" + k}
	}
	return out
}

func TestReconcileFirstRunEnablesEverything(t *testing.T) {
	got := Reconcile(discovered("region", "department", "status"), nil, Defaults())
	want := model.Configuration{
		{Key: "region", Label: "L-region", Enabled: true},
		{Key: "department", Label: "L-department", Enabled: true},
		{Key: "status", Label: "L-status", Enabled: true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestReconcileAppendsNewFieldsWithDefaults(t *testing.T) {
	persisted := model.Configuration{
		{Key: "status", Label: "Old status", Enabled: true},
		{Key: "region", Label: "Region", Enabled: false},
	}
	got := Reconcile(discovered("region", "department", "status", "owner"), persisted, Defaults("department"))
	want := model.Configuration{
		{Key: "status", Label: "L-status", Enabled: true},
		{Key: "region", Label: "L-region", Enabled: false},
		{Key: "department", Label: "L-department", Enabled: true},
		{Key: "owner", Label: "L-owner", Enabled: false},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestReconcilePrunesVanishedFields(t *testing.T) {
	persisted := model.Configuration{
		{Key: "status", Label: "Status", Enabled: true},
		{Key: "legacy", Label: "Legacy", Enabled: true},
		{Key: "region", Label: "Region", Enabled: false},
	}
	got := Reconcile(discovered("region", "status"), persisted, Defaults())
	assert.Equal(t, []string{"status", "region"}, got.Keys())
	assert.Equal(t, -1, got.Index("legacy"))
}

func TestReconcileIsIdempotent(t *testing.T) {
	testCases := []struct {
		name      string
		found     []model.Discovered
		persisted model.Configuration
		defaults  KeySet
	}{
		{name: "first run", found: discovered("a", "b", "c")},
		{name: "nothing discovered", persisted: model.Configuration{{Key: "a", Label: "A", Enabled: true}}},
		{
			name:  "disjoint",
			found: discovered("x", "y"),
			persisted: model.Configuration{
				{Key: "a", Label: "A", Enabled: true},
			},
			defaults: Defaults("y"),
		},
		{
			name:  "mixed",
			found: discovered("d", "b", "a", "e"),
			persisted: model.Configuration{
				{Key: "a", Label: "A", Enabled: false},
				{Key: "c", Label: "C", Enabled: true},
				{Key: "b", Label: "B", Enabled: true},
			},
			defaults: Defaults("e"),
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			once := Reconcile(tc.found, tc.persisted, tc.defaults)
			twice := Reconcile(tc.found, once, tc.defaults)
			if diff := cmp.Diff(once, twice); diff != "" {
				t.Errorf("reconcile is not idempotent (-once +twice):\n%s", diff)
			}
		})
	}
}

func TestReconcilePreservesOrderAndFlags(t *testing.T) {
	persisted := model.Configuration{
		{Key: "c", Label: "C", Enabled: false},
		{Key: "a", Label: "A", Enabled: true},
		{Key: "b", Label: "B", Enabled: false},
	}
	got := Reconcile(discovered("a", "b", "c", "z"), persisted, Defaults())
	for _, p := range persisted {
		idx := got.Index(p.Key)
		require.GreaterOrEqual(t, idx, 0, p.Key)
		assert.Equal(t, p.Enabled, got[idx].Enabled, p.Key)
	}
	assert.Equal(t, []string{"c", "a", "b", "z"}, got.Keys())
}

func TestReconcileSkipsInvalidAndDuplicateDiscoveries(t *testing.T) {
	found := []model.Discovered{
		{Key: "a", Label: ""},
		{Key: "bad key", Label: "Bad"},
		{Key: "a", Label: "Again"},
	}
	got := Reconcile(found, nil, nil)
	want := model.Configuration{{Key: "a", Label: "a", Enabled: true}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestSetEnabledEnforcesCap(t *testing.T) {
	cfg := model.Configuration{
		{Key: "a", Label: "A", Enabled: true},
		{Key: "b", Label: "B", Enabled: true},
		{Key: "c", Label: "C", Enabled: false},
	}

	got, err := SetEnabled(cfg, "c", true, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCapExceeded))
	assert.Equal(t, 2, got.EnabledCount())
	assert.False(t, cfg[2].Enabled)

	got, err = SetEnabled(cfg, "a", false, 2)
	require.NoError(t, err)
	assert.False(t, got[0].Enabled)
	assert.True(t, cfg[0].Enabled, "input must not be mutated")

	got, err = SetEnabled(got, "c", true, 2)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, true}, []bool{got[0].Enabled, got[1].Enabled, got[2].Enabled})

	_, err = SetEnabled(cfg, "nope", true, 2)
	assert.True(t, errors.Is(err, ErrUnknownField))

	got, err = SetEnabled(cfg, "c", true, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, got.EnabledCount())
}

func TestDefaultsIgnoresInvalidKeys(t *testing.T) {
	set := Defaults("status", "", "a b")
	assert.True(t, set.Has("status"))
	assert.Len(t, set, 1)
	var empty KeySet
	assert.False(t, empty.Has("status"))
}

func TestFresh(t *testing.T) {
	d := discovered("region", "department", "status")

	all := Fresh(d, Defaults())
	assert.Equal(t, 3, all.EnabledCount())

	got := Fresh(d, Defaults("status", "not a key"))
	want := model.Configuration{
		{Key: "region", Label: "L-region", Enabled: false},
		{Key: "department", Label: "L-department", Enabled: false},
		{Key: "status", Label: "L-status", Enabled: true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestOrderLearnsHostOrder(t *testing.T) {
	var o Order
	o.Learn(discovered("a", "b", "c"))
	assert.Equal(t, []string{"a", "b", "c"}, o.Keys())

	// the view was rearranged since, known keys keep their place
	o.Learn(discovered("c", "a", "b"))
	assert.Equal(t, []string{"a", "b", "c"}, o.Keys())

	// new keys go before the known key that follows them, or last
	o.Learn(discovered("c", "x", "a", "b", "y"))
	assert.Equal(t, []string{"x", "a", "b", "c", "y"}, o.Keys())
}

func TestOrderSort(t *testing.T) {
	var o Order
	o.Learn(discovered("a", "b", "c"))

	got := o.Sort(discovered("c", "z", "a", "b"))
	keys := make([]string, len(got))
	for i, d := range got {
		keys[i] = d.Key
	}
	assert.Equal(t, []string{"a", "b", "c", "z"}, keys)

	var empty Order
	if diff := cmp.Diff(discovered("b", "a"), empty.Sort(discovered("b", "a"))); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

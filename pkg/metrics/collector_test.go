package metrics

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/ace-go/pkg/playbook"
)

func TestCollectorDeltaApplied(t *testing.T) {
	collector := NewCollector()

	collector.DeltaApplied(&playbook.ApplyResult{
		Added:      []string{"a", "b"},
		Merged:     []string{"c"},
		Reinforced: []string{"d", "e", "f"},
		Deprecated: []string{"g"},
		Evicted:    []string{"h"},
		Missing:    []string{"ghost"},
	}, 42)

	assert.Equal(t, 42.0, testutil.ToFloat64(collector.playbookSize))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.deltasApplied))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.itemsAdded))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.itemsMerged))
	assert.Equal(t, 3.0, testutil.ToFloat64(collector.reinforced))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.deprecated))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.evicted))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.missingOps))

	collector.DeltaApplied(&playbook.ApplyResult{Added: []string{"i"}}, 40)
	assert.Equal(t, 40.0, testutil.ToFloat64(collector.playbookSize))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.deltasApplied))
	assert.Equal(t, 3.0, testutil.ToFloat64(collector.itemsAdded))
}

func TestCollectorRecordRetrieval(t *testing.T) {
	collector := NewCollector()
	collector.RecordRetrieval()
	collector.RecordRetrieval()
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.retrievals))
}

func TestCollectorHandler(t *testing.T) {
	collector := NewCollector()
	collector.DeltaApplied(&playbook.ApplyResult{Added: []string{"a"}}, 1)

	recorder := httptest.NewRecorder()
	collector.Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, recorder.Code)
	body := recorder.Body.String()
	assert.True(t, strings.Contains(body, "ace_playbook_size 1"))
	assert.True(t, strings.Contains(body, "ace_items_added_total 1"))
}

func TestCollectorObservesMerger(t *testing.T) {
	collector := NewCollector()

	pb, err := playbook.New(playbook.DefaultConfig())
	require.NoError(t, err)
	merger := playbook.NewMerger(pb, nil, playbook.WithObserver(collector))

	delta := playbook.BuildDelta([]playbook.ProposedOperation{
		{Type: "ADD", Content: "first insight", Kind: "insight", Section: "s"},
		{Type: "ADD", Content: "second insight", Kind: "insight", Section: "s"},
	}, "")
	_, err = merger.Apply(context.Background(), delta)
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.playbookSize))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.itemsAdded))
}

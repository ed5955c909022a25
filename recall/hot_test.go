package recall

import (
	"context"
	"reflect"
	"testing"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/pkg/utils"
)

func TestHot_Recall(t *testing.T) {
	repo := fixture()
	tests := []struct {
		name    string
		hot     *Hot
		ratings map[int64]float64
		want    []int64
	}{
		{name: "all popular", hot: &Hot{Store: repo}, want: []int64{1, 2, 3, 4, 10}},
		{name: "skips rated", hot: &Hot{Store: repo, Limit: 2}, ratings: map[int64]float64{1: 4}, want: []int64{2, 3}},
		{name: "memory ids", hot: &Hot{IDs: []int64{7, 8, 9}}, ratings: map[int64]float64{8: 1}, want: []int64{7, 9}},
		{name: "nothing left", hot: &Hot{IDs: []int64{7}}, ratings: map[int64]float64{7: 1}, want: []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.hot.Process(context.Background(), core.NewRecommendContext("", tt.ratings), nil)
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			if !reflect.DeepEqual(ids(got), tt.want) {
				t.Errorf("Process() = %v, want %v", ids(got), tt.want)
			}
			for _, it := range got {
				if it.Score != 0 || it.LabelValue(utils.LabelRecallSource) != SourcePopular {
					t.Errorf("item %d = score %v source %q", it.ID, it.Score, it.LabelValue(utils.LabelRecallSource))
				}
			}
		})
	}
}

func TestFanout_PriorityMerge(t *testing.T) {
	cf := NewItemCF(fixture(), testConfig())
	rctx := core.NewRecommendContext("", map[int64]float64{1: 5})
	rctx.Params["n"] = 5

	node := &Fanout{
		Sources:       []Source{cf, &Hot{Store: fixture(), Limit: 3}},
		Dedup:         true,
		MergeStrategy: "priority",
		MaxConcurrent: 1,
	}
	got, err := node.Process(context.Background(), rctx, nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if want := []int64{2, 3, 4}; !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("Process() = %v, want %v", ids(got), want)
	}
	if src := got[0].LabelValue(utils.LabelRecallSource); src != SourceCF {
		t.Errorf("item 2 recall_source = %q, want cf", src)
	}
	if src := got[1].LabelValue(utils.LabelRecallSource); src != SourcePopular {
		t.Errorf("item 3 recall_source = %q, want popular", src)
	}
}

func TestFanout_FirstMergesLabels(t *testing.T) {
	node := &Fanout{
		Sources: []Source{&Hot{IDs: []int64{1, 2}}, &Hot{IDs: []int64{2, 3}}},
		Dedup:   true,
	}
	got, err := node.Process(context.Background(), core.NewRecommendContext("", nil), nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if want := []int64{1, 2, 3}; !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("Process() = %v, want %v", ids(got), want)
	}
	if p := got[1].LabelValue(labelRecallPriority); p != "0|1" {
		t.Errorf("item 2 recall_priority = %q, want 0|1", p)
	}
}

func TestCFNode_Process(t *testing.T) {
	cf := NewItemCF(fixture(), testConfig())
	rctx := core.NewRecommendContext("", map[int64]float64{10: 5})

	tests := []struct {
		name string
		node *CFNode
		n    any
		want int
	}{
		{name: "fixed size", node: &CFNode{CF: cf, N: 2}, want: 2},
		{name: "size from params", node: &CFNode{CF: cf}, n: 3, want: 3},
		{name: "params above fixed size", node: &CFNode{CF: cf, N: 1}, n: 3, want: 3},
		{name: "fixed size above params", node: &CFNode{CF: cf, N: 3}, n: 2, want: 3},
		{name: "engine default", node: &CFNode{CF: cf}, want: 4}, // num_recommendations=5，但只有 4 个未评物品
		{name: "nil engine", node: &CFNode{}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delete(rctx.Params, "n")
			if tt.n != nil {
				rctx.Params["n"] = tt.n
			}
			got, err := tt.node.Process(context.Background(), rctx, nil)
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("Process() len = %d, want %d", len(got), tt.want)
			}
		})
	}
}

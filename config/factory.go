package config

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/feature"
	"github.com/rushteam/movierec/filter"
	"github.com/rushteam/movierec/pipeline"
	"github.com/rushteam/movierec/pkg/conv"
	"github.com/rushteam/movierec/recall"
	"github.com/rushteam/movierec/rerank"
)

// Dependencies 是构建 Node 时需要注入的运行时对象。
type Dependencies struct {
	CF           *recall.ItemCF
	Metadata     feature.MetadataStore
	Popularity   recall.PopularityStore
	Store        core.Store // 黑名单等小文档
	BlacklistKey string
	Logger       *zap.Logger
}

// NewFactory 返回包含所有内置 Node 的工厂：
// recall.cf / recall.hot / recall.fanout / feature.enrich / filter / rerank.diversity / rerank.topn。
func NewFactory(deps Dependencies) *pipeline.NodeFactory {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	b := &builders{deps: deps}

	factory := pipeline.NewNodeFactory()

	// 注册 Recall Nodes
	factory.Register("recall.cf", b.cf)
	factory.Register("recall.hot", b.hot)
	factory.Register("recall.fanout", b.fanout)

	// 注册 Feature Nodes
	factory.Register("feature.enrich", b.enrich)

	// 注册 Filter Nodes
	factory.Register("filter", b.filter)

	// 注册 ReRank Nodes
	factory.Register("rerank.diversity", b.diversity)
	factory.Register("rerank.topn", b.topN)

	return factory
}

// ValidatePipeline 校验 spec 中所有 node 类型均已注册；若有未支持类型则返回包含已支持列表的错误。
func ValidatePipeline(factory *pipeline.NodeFactory, spec pipeline.Spec) error {
	supported := factory.Types()
	for _, nc := range spec.Nodes {
		if !factory.Has(nc.Type) {
			return fmt.Errorf("unsupported node type %q (supported: %v)", nc.Type, supported)
		}
	}
	return nil
}

type builders struct {
	deps Dependencies
}

func (b *builders) cf(config map[string]any) (pipeline.Node, error) {
	if b.deps.CF == nil {
		return nil, fmt.Errorf("recall.cf: engine not configured")
	}
	return &recall.CFNode{CF: b.deps.CF, N: int(conv.ConfigGetInt64(config, "n", 0))}, nil
}

func (b *builders) hot(config map[string]any) (pipeline.Node, error) {
	return b.hotSource(config), nil
}

func (b *builders) hotSource(config map[string]any) *recall.Hot {
	hot := &recall.Hot{
		IDs:   conv.SliceAnyToInt64(config["ids"]),
		Limit: int(conv.ConfigGetInt64(config, "limit", 0)),
	}
	if len(hot.IDs) == 0 && b.deps.Popularity != nil {
		hot.Store = b.deps.Popularity
	}
	return hot
}

func (b *builders) fanout(config map[string]any) (pipeline.Node, error) {
	sourcesConfig, ok := config["sources"].([]any)
	if !ok {
		return nil, fmt.Errorf("recall.fanout: sources not found or invalid")
	}

	sources := make([]recall.Source, 0, len(sourcesConfig))
	for _, sc := range sourcesConfig {
		sourceMap, ok := sc.(map[string]any)
		if !ok {
			continue
		}
		switch sourceType := conv.ConfigGet[string](sourceMap, "type", ""); sourceType {
		case "cf":
			if b.deps.CF == nil {
				return nil, fmt.Errorf("recall.fanout: cf source without engine")
			}
			sources = append(sources, b.deps.CF)
		case "hot":
			sources = append(sources, b.hotSource(sourceMap))
		default:
			return nil, fmt.Errorf("recall.fanout: unknown source type: %s", sourceType)
		}
	}

	fanout := &recall.Fanout{
		Sources:       sources,
		Dedup:         conv.ConfigGet[bool](config, "dedup", true),
		MaxConcurrent: int(conv.ConfigGetInt64(config, "max_concurrent", 0)),
		MergeStrategy: conv.ConfigGet[string](config, "merge_strategy", "priority"),
		Logger:        b.deps.Logger,
	}
	if ms := conv.ConfigGetInt64(config, "timeout_ms", 0); ms > 0 {
		fanout.Timeout = time.Duration(ms) * time.Millisecond
	}
	return fanout, nil
}

func (b *builders) enrich(map[string]any) (pipeline.Node, error) {
	if b.deps.Metadata == nil {
		return nil, fmt.Errorf("feature.enrich: metadata store not configured")
	}
	return &feature.EnrichNode{Store: b.deps.Metadata}, nil
}

func (b *builders) filter(config map[string]any) (pipeline.Node, error) {
	filtersConfig, _ := config["filters"].([]any)

	filters := make([]filter.Filter, 0, len(filtersConfig))
	for _, fc := range filtersConfig {
		fm, ok := fc.(map[string]any)
		if !ok {
			continue
		}
		switch filterType := conv.ConfigGet[string](fm, "type", ""); filterType {
		case "rated":
			filters = append(filters, &filter.RatedFilter{})
		case "blacklist":
			var adapter *filter.StoreAdapter
			key := conv.ConfigGet[string](fm, "key", b.deps.BlacklistKey)
			if b.deps.Store != nil && key != "" {
				adapter = filter.NewStoreAdapter(b.deps.Store)
			}
			filters = append(filters, filter.NewBlacklistFilter(conv.SliceAnyToInt64(fm["ids"]), adapter, key))
		case "expr":
			f, err := filter.NewExprFilter(conv.ConfigGet[string](fm, "expr", ""), conv.ConfigGet[bool](fm, "invert", false))
			if err != nil {
				return nil, fmt.Errorf("filter: %w", err)
			}
			filters = append(filters, f)
		default:
			return nil, fmt.Errorf("filter: unknown filter type: %s", filterType)
		}
	}
	return &filter.FilterNode{Filters: filters, Logger: b.deps.Logger}, nil
}

func (b *builders) diversity(config map[string]any) (pipeline.Node, error) {
	return &rerank.Diversity{
		LabelKey:       conv.ConfigGet[string](config, "label_key", ""),
		MaxPerCategory: int(conv.ConfigGetInt64(config, "max_per_category", 0)),
		Backfill:       conv.ConfigGet[bool](config, "backfill", false),
	}, nil
}

func (b *builders) topN(config map[string]any) (pipeline.Node, error) {
	return &rerank.TopNNode{N: int(conv.ConfigGetInt64(config, "n", 0))}, nil
}

package feature

import (
	"context"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/pipeline"
	"github.com/rushteam/movierec/pkg/utils"
)

// MetadataStore 提供物品元数据，dataset.Repository 实现了它。
type MetadataStore interface {
	// TitleOf 返回标题；未知物品返回占位名
	TitleOf(itemID int64) string

	// GenresOf 返回类型列表；未知物品返回空列表
	GenresOf(itemID int64) []string
}

// 写入 Item.Meta 的 key
const (
	MetaTitle  = "title"
	MetaGenres = "genres"
)

// EnrichNode 是元数据注入节点：把标题、类型写入 Item.Meta，
// 并把主类型（第一个类型）写成 genre label，供过滤表达式与多样性重排使用。
type EnrichNode struct {
	Store MetadataStore
}

func (n *EnrichNode) Name() string {
	return "feature.enrich"
}

func (n *EnrichNode) Kind() pipeline.Kind {
	return pipeline.KindPostProcess
}

func (n *EnrichNode) Process(
	_ context.Context,
	_ *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if n.Store == nil || len(items) == 0 {
		return items, nil
	}

	for _, it := range items {
		if it == nil {
			continue
		}
		if it.Meta == nil {
			it.Meta = make(map[string]any)
		}
		genres := n.Store.GenresOf(it.ID)
		it.Meta[MetaTitle] = n.Store.TitleOf(it.ID)
		it.Meta[MetaGenres] = genres
		if len(genres) > 0 {
			it.PutLabel(utils.LabelGenre, utils.Label{Value: genres[0], Source: "feature"})
		}
	}
	return items, nil
}

// Title 读取 Item.Meta 中的标题。
func Title(it *core.Item) string {
	if it == nil || it.Meta == nil {
		return ""
	}
	s, _ := it.Meta[MetaTitle].(string)
	return s
}

// Genres 读取 Item.Meta 中的类型列表，未设置时返回空列表。
func Genres(it *core.Item) []string {
	if it == nil || it.Meta == nil {
		return []string{}
	}
	if g, ok := it.Meta[MetaGenres].([]string); ok {
		return g
	}
	return []string{}
}

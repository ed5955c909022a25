package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/feature"
	"github.com/rushteam/movierec/filter"
	"github.com/rushteam/movierec/pipeline"
	"github.com/rushteam/movierec/pkg/conv"
	"github.com/rushteam/movierec/pkg/utils"
)

const (
	defaultListSize = 10
	maxListSize     = core.CandidatePoolSize
)

var validate = validator.New()

type movieResponse struct {
	ItemID      int64    `json:"item_id"`
	Title       string   `json:"title"`
	ReleaseDate string   `json:"release_date,omitempty"`
	URL         string   `json:"url,omitempty"`
	Genres      []string `json:"genres"`
	NumRatings  int      `json:"num_ratings"`
	MeanRating  *float64 `json:"mean_rating,omitempty"`
}

type itemsResponse struct {
	Items []movieResponse `json:"items"`
}

type ratingsResponse struct {
	Ratings map[string]float64 `json:"ratings"`
}

type putRatingRequest struct {
	Rating float64 `json:"rating" validate:"gte=1,lte=5"`
}

type predictRequest struct {
	Ratings map[string]float64 `json:"ratings"`
	ItemID  int64              `json:"item_id" validate:"gt=0"`
	K       int                `json:"k" validate:"gte=0"`
}

type predictResponse struct {
	ItemID int64   `json:"item_id"`
	Score  float64 `json:"score"`
}

type recommendRequest struct {
	Ratings map[string]float64 `json:"ratings"`
	N       int                `json:"n" validate:"gte=0,lte=1000"`
	Filter  string             `json:"filter"`
}

type recommendation struct {
	ItemID int64    `json:"item_id"`
	Title  string   `json:"title"`
	Genres []string `json:"genres"`
	Score  float64  `json:"score"`
	Source string   `json:"source"`
}

type recommendResponse struct {
	Items []recommendation `json:"items"`
}

type nearestUserRequest struct {
	Ratings map[string]float64 `json:"ratings"`
}

type healthResponse struct {
	Status     string `json:"status"`
	Engine     string `json:"engine"`
	Builds     int64  `json:"builds"`
	NumRatings int    `json:"num_ratings"`
}

// Health handles GET /healthz.
func (s *Server) Health(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	if s.catalog.NumRatings() == 0 {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:     status,
		Engine:     s.engine.State().String(),
		Builds:     s.engine.Builds(),
		NumRatings: s.catalog.NumRatings(),
	})
}

// PopularItems handles GET /v1/items/popular?n=.
func (s *Server) PopularItems(w http.ResponseWriter, r *http.Request) {
	n, err := listSize(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, core.ErrorCodeInvalidInput, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.movies(s.catalog.TopPopular(n)))
}

// RandomItems handles GET /v1/items/random?n=.
func (s *Server) RandomItems(w http.ResponseWriter, r *http.Request) {
	n, err := listSize(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, core.ErrorCodeInvalidInput, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.movies(s.catalog.RandomSample(n)))
}

// GetItem handles GET /v1/items/{id}.
func (s *Server) GetItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, core.ErrorCodeInvalidInput, err.Error())
		return
	}
	if _, ok := s.catalog.Movie(id); !ok && s.catalog.RatingCount(id) == 0 {
		writeError(w, http.StatusNotFound, core.ErrorCodeNotFound, "item not found")
		return
	}
	writeJSON(w, http.StatusOK, s.movie(id))
}

// GetLocalRatings handles GET /v1/local/ratings.
func (s *Server) GetLocalRatings(w http.ResponseWriter, r *http.Request) {
	ratings, err := s.local.Get(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ratingsResponse{Ratings: conv.Int64KeysToString(ratings)})
}

// PutLocalRating handles PUT /v1/local/ratings/{id}.
func (s *Server) PutLocalRating(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, core.ErrorCodeInvalidInput, err.Error())
		return
	}
	var req putRatingRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.local.Upsert(r.Context(), id, req.Rating); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	s.GetLocalRatings(w, r)
}

// ClearLocalRatings handles DELETE /v1/local/ratings.
func (s *Server) ClearLocalRatings(w http.ResponseWriter, r *http.Request) {
	if err := s.local.Clear(r.Context()); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Predict handles POST /v1/predict.
func (s *Server) Predict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if !decode(w, r, &req) {
		return
	}
	ratings, ok := s.ratings(w, r, req.Ratings)
	if !ok {
		return
	}
	score, err := s.engine.PredictK(r.Context(), ratings, req.ItemID, req.K)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, predictResponse{ItemID: req.ItemID, Score: score})
}

// Recommend handles POST /v1/recommend. filter 为 CEL 表达式，只保留表达式为 true 的物品。
func (s *Server) Recommend(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if !decode(w, r, &req) {
		return
	}
	ratings, ok := s.ratings(w, r, req.Ratings)
	if !ok {
		return
	}

	p := s.pipeline
	if req.Filter != "" {
		f, err := newExprNode(req.Filter)
		if err != nil {
			writeError(w, http.StatusBadRequest, core.ErrorCodeInvalidInput, fmt.Sprintf("invalid filter: %v", err))
			return
		}
		p = withFilter(p, f)
	}

	n := req.N
	if n <= 0 {
		n = s.engine.Config().NumRecommendations
	}
	rctx := core.NewRecommendContext("local", ratings)
	rctx.Params["n"] = n

	items, err := p.Run(r.Context(), rctx, nil)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	out := make([]recommendation, 0, len(items))
	for _, it := range items {
		out = append(out, recommendation{
			ItemID: it.ID,
			Title:  feature.Title(it),
			Genres: feature.Genres(it),
			Score:  it.Score,
			Source: it.LabelValue(utils.LabelRecallSource),
		})
	}
	writeJSON(w, http.StatusOK, recommendResponse{Items: out})
}

// NearestUser handles POST /v1/nearest-user.
func (s *Server) NearestUser(w http.ResponseWriter, r *http.Request) {
	var req nearestUserRequest
	if !decode(w, r, &req) {
		return
	}
	ratings, ok := s.ratings(w, r, req.Ratings)
	if !ok {
		return
	}
	nb, found, err := s.engine.FindNearestRealUser(r.Context(), ratings)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, core.ErrorCodeNotFound, "no user shares enough ratings")
		return
	}
	writeJSON(w, http.StatusOK, nb)
}

// ratings 返回请求携带的评分；未携带时读取本地评分存储。
func (s *Server) ratings(w http.ResponseWriter, r *http.Request, raw map[string]float64) (map[int64]float64, bool) {
	if raw == nil {
		ratings, err := s.local.Get(r.Context())
		if err != nil {
			s.handleDomainError(w, r, err)
			return nil, false
		}
		return ratings, true
	}
	ratings := conv.StringKeysToInt64(raw)
	if len(ratings) != len(raw) {
		writeError(w, http.StatusBadRequest, core.ErrorCodeInvalidInput, "ratings keys must be item ids")
		return nil, false
	}
	for id, v := range ratings {
		if !core.ValidRating(v) {
			writeError(w, http.StatusBadRequest, core.ErrorCodeInvalidInput,
				fmt.Sprintf("rating for item %d must be within [1,5]", id))
			return nil, false
		}
	}
	return ratings, true
}

func (s *Server) movies(ids []int64) itemsResponse {
	out := make([]movieResponse, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.movie(id))
	}
	return itemsResponse{Items: out}
}

func (s *Server) movie(id int64) movieResponse {
	m, ok := s.catalog.Movie(id)
	resp := movieResponse{
		ItemID:     id,
		Title:      fmt.Sprintf("Movie %d", id),
		Genres:     []string{},
		NumRatings: s.catalog.RatingCount(id),
	}
	if ok {
		resp.Title = m.Title
		resp.ReleaseDate = m.ReleaseDate
		resp.URL = m.URL
		if m.Genres != nil {
			resp.Genres = m.Genres
		}
	}
	if mean, ok := s.catalog.ItemMean(id); ok {
		resp.MeanRating = &mean
	}
	return resp
}

func newExprNode(expr string) (pipeline.Node, error) {
	f, err := filter.NewExprFilter(expr, false)
	if err != nil {
		return nil, err
	}
	return &filter.FilterNode{Filters: []filter.Filter{f}}, nil
}

// withFilter 返回在第一个重排 Node 之前插入 f 的新 Pipeline，原 Pipeline 不变。
func withFilter(p *pipeline.Pipeline, f pipeline.Node) *pipeline.Pipeline {
	nodes := make([]pipeline.Node, 0, len(p.Nodes)+1)
	inserted := false
	for _, n := range p.Nodes {
		if !inserted && n.Kind() == pipeline.KindReRank {
			nodes = append(nodes, f)
			inserted = true
		}
		nodes = append(nodes, n)
	}
	if !inserted {
		nodes = append(nodes, f)
	}
	return &pipeline.Pipeline{Nodes: nodes}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, core.ErrorCodeInvalidInput, "invalid request body: "+err.Error())
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, core.ErrorCodeInvalidInput, err.Error())
		return false
	}
	return true
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid item id %q", raw)
	}
	return id, nil
}

func listSize(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("n")
	if raw == "" {
		return defaultListSize, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > maxListSize {
		return 0, fmt.Errorf("n must be an integer within [0,%d]", maxListSize)
	}
	return n, nil
}
